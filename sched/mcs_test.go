package sched

import (
	"testing"

	"github.com/sel4kernel/taskcore/tcb"
	"github.com/sel4kernel/taskcore/tstate"
)

func newMCSKernel(numCPUs int) *Kernel {
	return NewKernel(numCPUs, 256, 16, true, nil, testTiming(), nil)
}

func spawnMCSThread(k *Kernel, cpu, prio int, budget, period uint64) tcb.Handle {
	h := k.TCBs.New()
	t := k.TCBs.Get(h)
	t.Affinity = cpu
	t.Priority = prio
	t.State = tstate.Restart
	sc := k.NewSchedContext(3, budget, period, cpu)
	if err := k.BindSC(cpu, sc, h); err != nil {
		panic(err)
	}
	return h
}

func TestBindSC_MakesThreadSchedulable(t *testing.T) {
	k := newMCSKernel(1)
	h := spawnMCSThread(k, 0, 100, 20, 100)

	k.Schedule(0)
	k.ActivateThread(0)
	if got := k.Current(0); got != h {
		t.Fatalf("Current(0) = %v, want the freshly bound thread %v", got, h)
	}
}

func TestUnbindSC_MakesThreadUnschedulable(t *testing.T) {
	k := newMCSKernel(1)
	h := spawnMCSThread(k, 0, 100, 20, 100)
	sc := k.TCBs.Get(h).SchedContext

	k.Schedule(0)
	k.ActivateThread(0)
	if k.Current(0) != h {
		t.Fatal("setup: thread should be current")
	}

	k.UnbindSC(sc)
	if got := k.TCBs.Get(h).SchedContext; got != tcb.NoSC {
		t.Fatalf("SchedContext after UnbindSC = %v, want NoSC", got)
	}
	k.Schedule(0)
	if got := k.Current(0); got != k.Idle(0) {
		t.Fatalf("Current(0) after unbinding the only thread's context = %v, want idle", got)
	}
}

func TestResume_PostponesWhenBudgetInsufficient(t *testing.T) {
	k := newMCSKernel(1)
	h := spawnMCSThread(k, 0, 100, 20, 100)
	sc := k.SCs.Get(k.TCBs.Get(h).SchedContext)

	// Drain the head refill below MIN_BUDGET by charging almost all of it.
	sc.Charge(19, k.Timing)

	k.Resume(0, h)
	if got := k.TCBs.Get(h).Flags.InReleaseQueue; !got {
		t.Fatal("Resume() should postpone a thread whose context lacks sufficient budget")
	}
	if got := k.ReleaseQueueLength(0); got != 1 {
		t.Fatalf("ReleaseQueueLength(0) = %d, want 1", got)
	}
}

func TestAwaken_PromotesReadyReleasedContext(t *testing.T) {
	k := newMCSKernel(1)
	h := spawnMCSThread(k, 0, 100, 20, 100)
	sc := k.SCs.Get(k.TCBs.Get(h).SchedContext)
	sc.Charge(19, k.Timing) // leaves head below MIN_BUDGET, forces a refill roll

	k.Resume(0, h)
	if k.ReleaseQueueLength(0) != 1 {
		t.Fatal("setup: thread should have been postponed")
	}

	// Advance time to when the refill becomes ready again and let
	// Schedule's awaken() pick it back up.
	headTime := sc.RefillHead().Time
	k.AdvanceTime(0, headTime)
	k.Schedule(0)
	k.ActivateThread(0)

	if got := k.ReleaseQueueLength(0); got != 0 {
		t.Fatalf("ReleaseQueueLength(0) after awaken = %d, want 0", got)
	}
	if got := k.Current(0); got != h {
		t.Fatalf("Current(0) after awaken = %v, want %v", got, h)
	}
}

func TestChargeBudget_ReschedulesWhenStillSchedulable(t *testing.T) {
	k := newMCSKernel(1)
	h := spawnMCSThread(k, 0, 100, 20, 100)
	k.Schedule(0)
	k.ActivateThread(0)
	if k.Current(0) != h {
		t.Fatal("setup: thread should be current")
	}

	// The thread ran for the 5 ticks being charged; without the clock
	// moving, the charged head refill would not yet be ready.
	k.AdvanceTime(0, 5)
	var timedOut bool
	k.ChargeBudget(0, 5, true, func(_ tcb.Handle, canTimeoutFault bool) {
		timedOut = canTimeoutFault
	})

	if !timedOut {
		t.Fatal("endTimeslice should have been invoked with canTimeoutFault=true")
	}
	if got := k.cpu(0).action.kind; got != ChooseNew {
		t.Fatalf("pending action after ChargeBudget = %v, want ChooseNew", got)
	}
}

func TestYieldTo_MakesDoneeImmediatelySchedulable(t *testing.T) {
	k := newMCSKernel(1)
	donor := spawnMCSThread(k, 0, 100, 20, 100)
	donee := k.TCBs.New()
	dt := k.TCBs.Get(donee)
	dt.Affinity = 0
	dt.Priority = 250
	dt.State = tstate.Inactive // not yet runnable on its own

	doneeSC := k.NewSchedContext(3, 20, 100, 0)
	donorT := k.TCBs.Get(donor)

	k.YieldTo(0, donor, doneeSC)
	if donorT.YieldTo != doneeSC {
		t.Fatalf("donor.YieldTo = %v, want %v", donorT.YieldTo, doneeSC)
	}
	// donee is not bound to doneeSC yet in this scenario, so YieldTo should
	// not have crashed trying to reschedule an unbound thread.
}

func TestSwitchSchedContext_CommitsOutstandingTimeOnChange(t *testing.T) {
	k := newMCSKernel(1)
	h1 := spawnMCSThread(k, 0, 100, 20, 100)
	k.Schedule(0)
	k.ActivateThread(0)
	sc1 := k.SCs.Get(k.TCBs.Get(h1).SchedContext)

	k.cpu(0).consumed.Store(7)
	spawnMCSThread(k, 0, 200, 20, 100)
	k.Schedule(0)
	k.ActivateThread(0)

	if got := sc1.Consumed.Load(); got != 7 {
		t.Fatalf("sc1.Consumed after switching away = %d, want 7", got)
	}
	if got := k.cpu(0).consumed.Load(); got != 0 {
		t.Fatalf("cpu.consumed after commit = %d, want 0", got)
	}
}
