package sched

import (
	"github.com/sel4kernel/taskcore/internal/kassert"
	"github.com/sel4kernel/taskcore/tcb"
)

// releaseEnqueue implements release_enqueue: insert t's scheduling context
// into the release queue ordered by wakeup time, marking reprogram exactly
// when the head changes. This resolves the upstream ambiguity over
// whether reprogram should be set unconditionally or only on a head
// change — see DESIGN.md for the reasoning; this module takes the
// head-changed-only reading, since that is the only case that can
// actually move the next timer deadline.
func (k *Kernel) releaseEnqueue(c *CPU, h tcb.Handle) {
	t := k.TCBs.Get(h)
	kassert.Invariant(t.SchedContext != tcb.NoSC, "sched: release_enqueue on tcb %d with no scheduling context", h)
	headChanged := k.SCs.Enqueue(&c.releaseQueue, t.SchedContext)
	t.Flags.InReleaseQueue = true
	if headChanged {
		c.reprogram = true
	}
}

// releaseRemove implements release_remove: if the scheduling context is
// at the head, mark reprogram (the next deadline is no longer valid);
// remove it; clear in_release_queue.
func (k *Kernel) releaseRemove(c *CPU, h tcb.Handle) {
	t := k.TCBs.Get(h)
	sc := t.SchedContext
	if !c.releaseQueue.Empty() && c.releaseQueue.Head() == sc {
		c.reprogram = true
	}
	k.SCs.Remove(&c.releaseQueue, sc)
	t.Flags.InReleaseQueue = false
}

// releaseDequeue implements release_dequeue: pop the head (asserting
// non-empty and that it is not the current thread), mark reprogram.
func (k *Kernel) releaseDequeue(c *CPU) tcb.Handle {
	kassert.Assert(!c.releaseQueue.Empty(), "sched: release_dequeue on empty release queue")
	scH := c.releaseQueue.Head()
	sc := k.SCs.Get(scH)
	kassert.Invariant(sc.TCB != c.current, "sched: release_dequeue head is the current thread")
	k.SCs.Dequeue(&c.releaseQueue)
	t := k.TCBs.Get(sc.TCB)
	t.Flags.InReleaseQueue = false
	c.reprogram = true
	return sc.TCB
}

// awaken implements awaken(): while the release queue's head context is
// refill-ready, dequeue it and possible_switch_to it.
func (k *Kernel) awaken(c *CPU) {
	for !c.releaseQueue.Empty() {
		headSC := k.SCs.Get(c.releaseQueue.Head())
		if !headSC.RefillReady(c.now, k.Timing) {
			break
		}
		h := k.releaseDequeue(c)
		k.PossibleSwitchTo(c.id, h)
	}
}

// checkDomainTime implements check_domain_time(): if domain time is
// exhausted, mark reprogram and force a reschedule.
func (k *Kernel) checkDomainTime(c *CPU) {
	if c.domainTime != 0 {
		return
	}
	c.reprogram = true
	k.RescheduleRequired(c)
}

// postpone implements the MCS "resume" helper: dequeue h from ready and
// move its scheduling context onto the release queue, marking reprogram.
func (k *Kernel) postpone(c *CPU, h tcb.Handle) {
	k.SchedDequeue(h)
	k.releaseEnqueue(c, h)
	c.reprogram = true
}

// Resume implements sched_context_resume: if the bound thread is
// schedulable but its context is not (yet) ready-and-sufficient,
// postpone it onto the release queue instead of the ready queue.
func (k *Kernel) Resume(cpuID int, h tcb.Handle) {
	c := k.cpu(cpuID)
	t := k.TCBs.Get(h)
	if !t.State.Runnable() {
		return
	}
	if t.SchedContext == tcb.NoSC {
		return
	}
	sc := k.SCs.Get(t.SchedContext)
	if sc.RefillReady(c.now, k.Timing) && sc.RefillSufficient(0, k.Timing) {
		return
	}
	k.postpone(c, h)
}

// switchSchedContext implements switch_sched_context(): if the current
// thread's bound scheduling context differs from the CPU's last-committed
// one, commit the outstanding consumed time onto the old context and
// begin tracking the new one.
func (k *Kernel) switchSchedContext(c *CPU) {
	cur := k.TCBs.Get(c.current)
	if cur.SchedContext == c.currentSC {
		return
	}
	if c.currentSC != tcb.NoSC {
		k.CommitTime(c)
	}
	c.currentSC = cur.SchedContext
}

// CommitTime implements commit_time(): fold ksConsumed into the active
// scheduling context's refill ring (round-robin: shift head->tail;
// sporadic: refill_budget_check), add it to the running total, and reset
// ksConsumed.
func (k *Kernel) CommitTime(c *CPU) {
	consumed := c.consumed.Load()
	if c.currentSC == tcb.NoSC || consumed == 0 {
		c.consumed.Store(0)
		return
	}
	sc := k.SCs.Get(c.currentSC)
	if sc.Period == 0 {
		sc.CommitRoundRobin(consumed)
	} else {
		sc.RefillBudgetCheck(consumed, k.Timing)
	}
	sc.Consumed.Add(consumed)
	c.consumed.Store(0)
}

// ChargeBudget implements charge_budget(consumed, canTimeoutFault): the
// accounting half of an MCS preemption. endTimeslice is the external
// "endTimeslice" collaborator hook, invoked only when the thread is still
// schedulable at the moment its budget runs out.
func (k *Kernel) ChargeBudget(cpuID int, consumed uint64, canTimeoutFault bool, endTimeslice func(tcb.Handle, bool)) {
	c := k.cpu(cpuID)
	if c.currentSC != tcb.NoSC && c.currentSC != k.idleSC(c) {
		k.SCs.Get(c.currentSC).Charge(consumed, k.Timing)
	}
	c.consumed.Store(0)
	cur := k.TCBs.Get(c.current)
	if k.IsSchedulable(cur) {
		if endTimeslice != nil {
			endTimeslice(c.current, canTimeoutFault)
		}
		k.RescheduleRequired(c)
		c.reprogram = true
	}
}

func (k *Kernel) idleSC(c *CPU) tcb.SCHandle {
	return k.TCBs.Get(c.idle).SchedContext
}

// MCSPreemptionPoint implements mcs_preemption_point(): called from long
// kernel operations. If the current thread is still schedulable, runs a
// budget check; if there is an active scheduling context, charges the
// accumulated consumed ticks against it, otherwise simply discards them.
func (k *Kernel) MCSPreemptionPoint(cpuID int, elapsed uint64, endTimeslice func(tcb.Handle, bool)) {
	c := k.cpu(cpuID)
	consumed := c.consumed.Add(elapsed)
	cur := k.TCBs.Get(c.current)
	if !k.IsSchedulable(cur) {
		c.consumed.Store(0)
		return
	}
	if c.currentSC != tcb.NoSC {
		k.ChargeBudget(cpuID, consumed, false, endTimeslice)
	} else {
		c.consumed.Store(0)
	}
}

// AdvanceTime moves a CPU's current-time snapshot forward by delta ticks.
// Simulation/tests call this in place of reading a real hardware clock
// (package kernclock supplies the real one for cmd/taskcoresim).
func (k *Kernel) AdvanceTime(cpuID int, delta uint64) {
	k.cpu(cpuID).now += delta
}

// Now returns a CPU's current-time snapshot.
func (k *Kernel) Now(cpuID int) uint64 { return k.cpu(cpuID).now }
