package sched

import (
	"github.com/sel4kernel/taskcore/archregs"
	"github.com/sel4kernel/taskcore/internal/kassert"
	"github.com/sel4kernel/taskcore/tcb"
	"github.com/sel4kernel/taskcore/tstate"
)

// RescheduleRequired implements reschedule_required: convert a
// TCB-specific pending action back into ChooseNew, enqueuing that TCB
// first (under MCS, only if it is still schedulable — it may have lost
// its scheduling context since being set as the candidate).
func (k *Kernel) RescheduleRequired(c *CPU) {
	if c.action.kind == SwitchToCandidate {
		t := k.TCBs.Get(c.action.candidate)
		if !k.MCSEnabled || k.IsSchedulable(t) {
			k.SchedEnqueue(c.id, c.action.candidate)
		}
	}
	c.action = Action{kind: ChooseNew}
}

// PossibleSwitchTo implements possible_switch_to(target), evaluated from
// the perspective of callerCPU — the CPU actually making the decision,
// which is not necessarily target's home CPU. A newly-runnable thread
// either becomes callerCPU's pending candidate, forces callerCPU to
// reschedule, or is simply enqueued (on its own home CPU, with an IPI to
// that CPU if warranted — see SchedEnqueue), depending on domain/affinity
// relative to callerCPU and callerCPU's current pending action.
func (k *Kernel) PossibleSwitchTo(callerCPU int, target tcb.Handle) {
	t := k.TCBs.Get(target)
	if k.MCSEnabled {
		if t.SchedContext == tcb.NoSC || t.Flags.InReleaseQueue {
			return
		}
	}
	c := k.cpu(callerCPU)
	if t.Domain != c.curDomain {
		k.SchedEnqueue(callerCPU, target)
		return
	}
	if t.Affinity != c.id {
		k.SchedEnqueue(callerCPU, target)
		return
	}
	if c.action.kind != ResumeCurrent {
		k.RescheduleRequired(c)
		k.SchedEnqueue(callerCPU, target)
		return
	}
	c.action = Action{kind: SwitchToCandidate, candidate: target}
}

// TimerTick implements the non-MCS timer_tick: decrement the running
// thread's time slice, and on exhaustion reload it, requeue the thread
// round-robin, and force a reschedule.
func (k *Kernel) TimerTick(cpuID int) {
	c := k.cpu(cpuID)
	t := k.TCBs.Get(c.current)
	if t.State != tstate.Running {
		return
	}
	t.TimeSlice--
	if t.TimeSlice > 0 {
		return
	}
	t.TimeSlice = DefaultTimeSlice
	k.SchedAppend(c.id, c.current)
	k.RescheduleRequired(c)
}

// DefaultTimeSlice is CONFIG_TIME_SLICE: the number of ticks a non-MCS
// round-robin thread runs before being requeued.
const DefaultTimeSlice = 5

// ActivateThread implements activate_thread, called at kernel exit.
func (k *Kernel) ActivateThread(cpuID int) {
	c := k.cpu(cpuID)
	if k.MCSEnabled {
		k.completeYield(c)
	}
	t := k.TCBs.Get(c.current)
	switch t.State {
	case tstate.Running, tstate.IdleThreadState:
		return
	case tstate.Restart:
		t.Regs.Set(archregs.NextIP, t.Regs.Get(archregs.FaultIP))
		t.State = tstate.Running
	default:
		kassert.Unreachable("sched: activate_thread on state %s", t.State)
	}
}

func (k *Kernel) completeYield(c *CPU) {
	t := k.TCBs.Get(c.current)
	if t.YieldTo == tcb.NoSC {
		return
	}
	k.SCs.CompleteYield(t)
}

// schedule_choose_new_thread: advance the domain if its time has expired,
// then choose_thread.
func (k *Kernel) scheduleChooseNewThread(c *CPU) {
	if c.domainTime == 0 {
		k.advanceDomain(c)
	}
	k.chooseThread(c)
}

func (k *Kernel) advanceDomain(c *CPU) {
	c.domScheduleIdx = (c.domScheduleIdx + 1) % len(c.domSchedule.entries)
	entry := c.domSchedule.entries[c.domScheduleIdx]
	c.curDomain = entry.Domain
	c.domainWorkUnits = 0
	if k.MCSEnabled {
		c.domainTime = usToTicks(entry.Length * usInMS)
	} else {
		c.domainTime = entry.Length
	}
}

const usInMS = 1000

// usToTicks converts microseconds to scheduler ticks. The core has no
// opinion on tick granularity beyond 1:1 in simulation; real deployments
// would scale by the timer's tick frequency.
func usToTicks(us uint64) uint64 { return us }

// Schedule implements the top-level schedule() algorithm.
func (k *Kernel) Schedule(cpuID int) {
	c := k.cpu(cpuID)

	if k.MCSEnabled {
		k.awaken(c)
		k.checkDomainTime(c)
	}

	if c.action.kind != ResumeCurrent {
		cur := k.TCBs.Get(c.current)
		wasRunnable := k.IsSchedulable(cur)
		if wasRunnable {
			k.SchedEnqueue(c.id, c.current)
		}
		switch c.action.kind {
		case ChooseNew:
			k.scheduleChooseNewThread(c)
		case SwitchToCandidate:
			k.scheduleSwitchToCandidate(c, wasRunnable)
		}
	}

	c.action = Action{kind: ResumeCurrent}

	if k.SMP {
		k.dispatchPendingIPIs(c)
	}

	if k.MCSEnabled {
		k.switchSchedContext(c)
		if c.reprogram {
			// Programming the actual timer deadline is an external
			// collaborator's job; the core only needs to clear the flag
			// once it has notionally happened.
			c.reprogram = false
		}
	}
}

func (k *Kernel) scheduleSwitchToCandidate(c *CPU, wasRunnable bool) {
	candidate := c.action.candidate
	curT := k.TCBs.Get(c.current)
	candT := k.TCBs.Get(candidate)

	fastfail := c.current == c.idle || candT.Priority < curT.Priority
	switch {
	case fastfail && !k.IsHighestPrio(c.id, c.curDomain, candT.Priority):
		k.SchedEnqueue(c.id, candidate)
		c.action = Action{kind: ChooseNew}
		k.scheduleChooseNewThread(c)
	case wasRunnable && candT.Priority == curT.Priority:
		k.SchedAppend(c.id, candidate)
		c.action = Action{kind: ChooseNew}
		k.scheduleChooseNewThread(c)
	default:
		k.switchToThisThread(c, candidate)
	}
}
