package sched

import (
	"testing"

	"github.com/sel4kernel/taskcore/mcs"
	"github.com/sel4kernel/taskcore/tcb"
	"github.com/sel4kernel/taskcore/tstate"
)

func testTiming() mcs.Timing {
	return mcs.Timing{KernelWCETTicks: 2, MinBudget: 4, MaxReleaseTime: 1 << 40}
}

func spawnRunnable(k *Kernel, cpu, prio int) tcb.Handle {
	h := k.TCBs.New()
	t := k.TCBs.Get(h)
	t.Affinity = cpu
	t.Priority = prio
	t.TimeSlice = DefaultTimeSlice
	t.State = tstate.Restart
	return h
}

func TestNewKernel_CreatesIdlePerCPU(t *testing.T) {
	k := NewKernel(2, 256, 16, false, nil, testTiming(), nil)
	if got := k.NumCPUs(); got != 2 {
		t.Fatalf("NumCPUs() = %d, want 2", got)
	}
	for cpu := 0; cpu < 2; cpu++ {
		if got := k.Current(cpu); got != k.Idle(cpu) {
			t.Fatalf("cpu %d should start running its idle thread", cpu)
		}
	}
}

func TestPossibleSwitchTo_HigherPriorityBecomesCandidate(t *testing.T) {
	k := NewKernel(1, 256, 16, false, nil, testTiming(), nil)
	h := spawnRunnable(k, 0, 100)

	k.PossibleSwitchTo(0, h)
	k.Schedule(0)
	k.ActivateThread(0)

	if got := k.Current(0); got != h {
		t.Fatalf("Current(0) = %v, want the newly restarted thread %v", got, h)
	}
}

func TestSchedule_HigherPriorityPreemptsLower(t *testing.T) {
	k := NewKernel(1, 256, 16, false, nil, testTiming(), nil)
	low := spawnRunnable(k, 0, 10)
	k.PossibleSwitchTo(0, low)
	k.Schedule(0)
	k.ActivateThread(0)
	if k.Current(0) != low {
		t.Fatalf("expected low-priority thread running, got %v", k.Current(0))
	}

	high := spawnRunnable(k, 0, 200)
	k.PossibleSwitchTo(0, high)
	k.Schedule(0)
	k.ActivateThread(0)

	if got := k.Current(0); got != high {
		t.Fatalf("Current(0) = %v, want higher-priority thread %v", got, high)
	}
	// The preempted thread should have been requeued, not lost.
	if got := k.ReadyQueueDepth(0, 0, 10); got != 1 {
		t.Fatalf("ReadyQueueDepth for the preempted priority = %d, want 1", got)
	}
}

func TestSchedule_SamePriorityDoesNotPreempt(t *testing.T) {
	k := NewKernel(1, 256, 16, false, nil, testTiming(), nil)
	first := spawnRunnable(k, 0, 50)
	k.PossibleSwitchTo(0, first)
	k.Schedule(0)
	k.ActivateThread(0)

	second := spawnRunnable(k, 0, 50)
	k.PossibleSwitchTo(0, second)
	k.Schedule(0)
	k.ActivateThread(0)

	if got := k.Current(0); got != first {
		t.Fatalf("Current(0) = %v, want the still-running equal-priority thread %v", got, first)
	}
	if got := k.ReadyQueueDepth(0, 0, 50); got != 1 {
		t.Fatalf("ReadyQueueDepth(50) = %d, want 1 (the newcomer queued behind)", got)
	}
}

func TestTimerTick_RoundRobinsOnExhaustion(t *testing.T) {
	k := NewKernel(1, 256, 16, false, nil, testTiming(), nil)
	a := spawnRunnable(k, 0, 50)
	b := spawnRunnable(k, 0, 50)
	k.PossibleSwitchTo(0, a)
	k.Schedule(0)
	k.ActivateThread(0)
	k.PossibleSwitchTo(0, b)

	for i := 0; i < DefaultTimeSlice; i++ {
		k.TimerTick(0)
	}
	k.Schedule(0)
	k.ActivateThread(0)

	if got := k.Current(0); got != b {
		t.Fatalf("Current(0) after timeslice exhaustion = %v, want round-robin successor %v", got, b)
	}
}

func TestSuspendAndRestart(t *testing.T) {
	k := NewKernel(1, 256, 16, false, nil, testTiming(), nil)
	h := spawnRunnable(k, 0, 100)
	k.PossibleSwitchTo(0, h)
	k.Schedule(0)
	k.ActivateThread(0)
	if k.Current(0) != h {
		t.Fatal("setup: thread should be current")
	}

	k.Suspend(0, h)
	if got := k.TCBs.Get(h).State; got != tstate.Inactive {
		t.Fatalf("state after Suspend = %v, want Inactive", got)
	}
	k.Schedule(0)
	if got := k.Current(0); got != k.Idle(0) {
		t.Fatalf("Current(0) after suspending the only runnable thread = %v, want idle", got)
	}

	k.Restart(0, h)
	k.Schedule(0)
	k.ActivateThread(0)
	if got := k.Current(0); got != h {
		t.Fatalf("Current(0) after Restart = %v, want %v", got, h)
	}
}

func TestSetPriority_RehomesQueuedThread(t *testing.T) {
	k := NewKernel(1, 256, 16, false, nil, testTiming(), nil)
	running := spawnRunnable(k, 0, 200)
	k.PossibleSwitchTo(0, running)
	k.Schedule(0)
	k.ActivateThread(0)

	waiting := spawnRunnable(k, 0, 50)
	k.SchedEnqueue(0, waiting)

	// SetPriority hands the runnable, non-current thread to
	// PossibleSwitchTo, which makes it the pending candidate; Schedule then
	// finds the priority-200 current thread still higher and queues the
	// candidate at its new priority.
	k.SetPriority(0, waiting, 150)
	k.Schedule(0)
	if got := k.ReadyQueueDepth(0, 0, 50); got != 0 {
		t.Fatalf("old-priority queue depth = %d, want 0", got)
	}
	if got := k.ReadyQueueDepth(0, 0, 150); got != 1 {
		t.Fatalf("new-priority queue depth = %d, want 1", got)
	}
}

func TestSetPriority_CurrentThreadTriggersReschedule(t *testing.T) {
	k := NewKernel(1, 256, 16, false, nil, testTiming(), nil)
	running := spawnRunnable(k, 0, 100)
	k.PossibleSwitchTo(0, running)
	k.Schedule(0)
	k.ActivateThread(0)
	if k.Current(0) != running {
		t.Fatal("setup: thread should be current")
	}

	contender := spawnRunnable(k, 0, 50)
	k.SchedEnqueue(0, contender)

	// running is current, not queued, so a naive "only re-enqueue if
	// wasQueued" implementation would never reschedule it here.
	k.SetPriority(0, running, 10)
	k.Schedule(0)
	k.ActivateThread(0)

	if got := k.Current(0); got != contender {
		t.Fatalf("Current(0) after lowering the running thread's priority = %v, want the contender %v", got, contender)
	}
}

type fakeEPRequeuer struct {
	reordered []tcb.Handle
	blocking  []tstate.BlockingObject
}

func (f *fakeEPRequeuer) Reorder(blocking tstate.BlockingObject, h tcb.Handle) {
	f.reordered = append(f.reordered, h)
	f.blocking = append(f.blocking, blocking)
}

func TestSetPriority_MCSBlockedThreadReordersInsteadOfRequeueing(t *testing.T) {
	k := NewKernel(1, 256, 16, true, nil, testTiming(), nil)
	requeuer := &fakeEPRequeuer{}
	k.SetEPRequeuer(requeuer)

	h := k.TCBs.New()
	t2 := k.TCBs.Get(h)
	t2.State = tstate.BlockedOnReceive
	t2.Flags.Blocking = tstate.BlockingObject(42)

	k.SetPriority(0, h, 150)

	if got := t2.Priority; got != 150 {
		t.Fatalf("Priority after SetPriority on a blocked thread = %d, want 150", got)
	}
	if len(requeuer.reordered) != 1 || requeuer.reordered[0] != h {
		t.Fatalf("expected Reorder called once with %v, got %v", h, requeuer.reordered)
	}
	if len(requeuer.blocking) != 1 || requeuer.blocking[0] != tstate.BlockingObject(42) {
		t.Fatalf("expected Reorder called with blocking object 42, got %v", requeuer.blocking)
	}
	if k.TCBs.Get(h).Flags.Queued {
		t.Fatal("a blocked thread must never be folded into a ready queue by SetPriority")
	}
}

func TestSetDomain_CurrentThreadTriggersReschedule(t *testing.T) {
	k := NewKernel(1, 256, 16, false, nil, testTiming(), nil)
	running := spawnRunnable(k, 0, 100)
	k.TCBs.Get(running).Domain = 0
	k.PossibleSwitchTo(0, running)
	k.Schedule(0)
	k.ActivateThread(0)
	if k.Current(0) != running {
		t.Fatal("setup: thread should be current")
	}

	contender := spawnRunnable(k, 0, 50)
	k.TCBs.Get(contender).Domain = 0
	k.SchedEnqueue(0, contender)

	// running is current, not queued, so a naive "only re-enqueue if
	// wasQueued" implementation would never reschedule or requeue it.
	k.SetDomain(0, running, 1)
	if got := k.ReadyQueueDepth(0, 1, 100); got != 1 {
		t.Fatalf("ReadyQueueDepth(domain=1, prio=100) after SetDomain = %d, want 1 (a current thread must be folded into the ready queue at its new domain)", got)
	}

	c := k.cpu(0)
	c.curDomain = 1
	k.Schedule(0)
	k.ActivateThread(0)
	if got := k.Current(0); got != running {
		t.Fatalf("Current(0) after SetDomain rotated into domain 1 = %v, want %v", got, running)
	}
}

func TestRestart_NoopOnAlreadyRunnableThread(t *testing.T) {
	k := NewKernel(1, 256, 16, false, nil, testTiming(), nil)
	h := spawnRunnable(k, 0, 100)
	k.PossibleSwitchTo(0, h)
	k.Schedule(0)
	k.ActivateThread(0)
	depthBefore := k.ReadyQueueDepth(0, 0, 100)

	k.Restart(0, h)

	if got := k.ReadyQueueDepth(0, 0, 100); got != depthBefore {
		t.Fatalf("ReadyQueueDepth after Restart on an already-runnable thread = %d, want unchanged %d", got, depthBefore)
	}
}

func TestRestart_MCSPostponesWhenBudgetInsufficient(t *testing.T) {
	k := newMCSKernel(1)
	h := spawnMCSThread(k, 0, 100, 20, 100)
	sc := k.SCs.Get(k.TCBs.Get(h).SchedContext)

	k.Suspend(0, h)
	// Drain the head refill below MIN_BUDGET while blocked, as a sporadic
	// context not current on its own cpu would be.
	sc.Charge(19, k.Timing)

	k.Restart(0, h)

	if got := k.TCBs.Get(h).Flags.InReleaseQueue; !got {
		t.Fatal("Restart on a thread with an unready scheduling context should postpone it onto the release queue, not the ready queue")
	}
	if k.TCBs.Get(h).Flags.Queued {
		t.Fatal("a restarted thread postponed to the release queue must not also be in the ready queue")
	}

	// Schedule() must not trip the IsSchedulable assertion in
	// chooseThread: the thread is legitimately absent from the ready
	// queue right now.
	k.Schedule(0)
}

func TestDomainRotation_AdvancesAfterDomainTimeExpires(t *testing.T) {
	ds, err := NewDomainSchedule(
		DomainScheduleEntry{Domain: 0, Length: 1},
		DomainScheduleEntry{Domain: 1, Length: 1},
	)
	if err != nil {
		t.Fatalf("NewDomainSchedule: %v", err)
	}
	k := NewKernel(1, 256, 16, false, ds, testTiming(), nil)

	domZero := spawnRunnable(k, 0, 100)
	k.TCBs.Get(domZero).Domain = 0
	domOne := spawnRunnable(k, 0, 100)
	k.TCBs.Get(domOne).Domain = 1
	k.SchedEnqueue(0, domZero)
	k.SchedEnqueue(0, domOne)

	// domainTime starts at the first entry's length (1); the first
	// Schedule() call should already find it exhausted and roll over.
	c := k.cpu(0)
	c.domainTime = 0
	k.RescheduleRequired(c)
	k.Schedule(0)

	if got := k.cpu(0).curDomain; got != 1 {
		t.Fatalf("curDomain after rollover = %d, want 1", got)
	}
	if got := k.Current(0); got != domOne {
		t.Fatalf("Current(0) after domain rollover = %v, want the domain-1 thread %v", got, domOne)
	}
}

func TestNewDomainSchedule_RejectsEmptyAndZeroLength(t *testing.T) {
	if _, err := NewDomainSchedule(); err == nil {
		t.Fatal("NewDomainSchedule() with no entries should fail")
	}
	if _, err := NewDomainSchedule(DomainScheduleEntry{Domain: 0, Length: 0}); err == nil {
		t.Fatal("NewDomainSchedule() with a zero-length entry should fail")
	}
}

func TestMigrateTCB_MovesAffinityAndRequestsIPI(t *testing.T) {
	k := NewKernel(2, 256, 16, false, nil, testTiming(), nil)
	h := spawnRunnable(k, 0, 100)
	k.SchedEnqueue(0, h)

	k.MigrateTCB(h, 1)
	if got := k.TCBs.Get(h).Affinity; got != 1 {
		t.Fatalf("Affinity after migrate = %d, want 1", got)
	}
	if got := k.ReadyQueueDepth(0, 0, 100); got != 0 {
		t.Fatalf("old CPU ready-queue depth after migrate = %d, want 0", got)
	}
	if got := k.ReadyQueueDepth(1, 0, 100); got != 1 {
		t.Fatalf("new CPU ready-queue depth after migrate = %d, want 1", got)
	}
	if !k.cpu(1).pendingIPI.Load() {
		t.Fatal("MigrateTCB should leave a reschedule IPI pending on cpu 1")
	}
}
