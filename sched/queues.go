package sched

import (
	"github.com/sel4kernel/taskcore/internal/kassert"
	"github.com/sel4kernel/taskcore/tcb"
	"github.com/sel4kernel/taskcore/tstate"
)

// IsSchedulable reports whether t could be placed in a ready queue right
// now: Runnable, and under MCS additionally bound to a scheduling context
// that is refill-ready and has enough budget left to be worth running.
func (k *Kernel) IsSchedulable(t *tcb.TCB) bool {
	if !t.State.Runnable() {
		return false
	}
	if !k.MCSEnabled {
		return true
	}
	if t.SchedContext == tcb.NoSC {
		return false
	}
	sc := k.SCs.Get(t.SchedContext)
	return sc.RefillReady(k.cpu(t.Affinity).now, k.Timing) && sc.RefillSufficient(0, k.Timing)
}

// SchedEnqueue implements sched_enqueue: prepend t to the head of its
// (domain, priority) ready queue and mark the bitmap, unless already
// queued. Asserts the mutual-exclusion invariant against the release
// queue. callerCPU is the CPU on whose behalf the enqueue happens; when it
// differs from t's own CPU this also applies the SMP mask-reschedule rule
// (see maybeRequestIPI).
func (k *Kernel) SchedEnqueue(callerCPU int, h tcb.Handle) {
	t := k.TCBs.Get(h)
	if t.Flags.Queued {
		return
	}
	kassert.Invariant(!t.Flags.InReleaseQueue, "sched: tcb %d queued while in release queue", h)
	c := k.cpu(t.Affinity)
	q := k.queue(c, t.Domain, t.Priority)
	if q.Empty() {
		c.bitmaps[t.Domain].Add(t.Priority)
	}
	q.Prepend(k.schedAccessor(), h)
	t.Flags.Queued = true
	k.maybeRequestIPI(callerCPU, c, t)
}

// SchedAppend implements the append half of sched_enqueue used by
// round-robin requeueing (timer_tick, schedule's candidate-at-same-prio
// case): same as SchedEnqueue but appends to the tail instead.
func (k *Kernel) SchedAppend(callerCPU int, h tcb.Handle) {
	t := k.TCBs.Get(h)
	if t.Flags.Queued {
		return
	}
	kassert.Invariant(!t.Flags.InReleaseQueue, "sched: tcb %d queued while in release queue", h)
	c := k.cpu(t.Affinity)
	q := k.queue(c, t.Domain, t.Priority)
	if q.Empty() {
		c.bitmaps[t.Domain].Add(t.Priority)
	}
	q.Append(k.schedAccessor(), h)
	t.Flags.Queued = true
	k.maybeRequestIPI(callerCPU, c, t)
}

// maybeRequestIPI implements the SMP cross-core wake rule omitted from the
// first pass at SchedEnqueue/SchedAppend: a thread just placed on a CPU
// other than the one that placed it needs a reschedule IPI if that CPU is
// idling or running something of lower priority, since it has no other way
// to notice the new arrival.
func (k *Kernel) maybeRequestIPI(callerCPU int, owner *CPU, t *tcb.TCB) {
	if !k.SMP || owner.id == callerCPU {
		return
	}
	curT := k.TCBs.Get(owner.current)
	if owner.current == owner.idle || t.Priority > curT.Priority {
		k.RequestIPI(owner.id)
	}
}

// SchedDequeue implements sched_dequeue: remove t from its ready queue and
// clear the bitmap bit if the queue is now empty. Safe to call on a TCB
// that is not currently queued.
func (k *Kernel) SchedDequeue(h tcb.Handle) {
	t := k.TCBs.Get(h)
	if !t.Flags.Queued {
		return
	}
	c := k.cpu(t.Affinity)
	q := k.queue(c, t.Domain, t.Priority)
	q.Remove(k.schedAccessor(), h)
	if q.Empty() {
		c.bitmaps[t.Domain].Remove(t.Priority)
	}
	t.Flags.Queued = false
}

// IsHighestPrio reports whether prio is (tied for) the highest ready
// priority in domain on the given CPU.
func (k *Kernel) IsHighestPrio(cpuID, domain, prio int) bool {
	return k.cpu(cpuID).bitmaps[domain].IsHighest(prio)
}

// chooseThread implements choose_thread: pick the highest-priority ready
// thread in the current domain and switch to it, or fall back to idle.
func (k *Kernel) chooseThread(c *CPU) {
	idx := c.bitmaps[c.curDomain]
	if idx.Empty() {
		k.switchToThisThread(c, c.idle)
		return
	}
	prio := idx.Highest()
	q := k.queue(c, c.curDomain, prio)
	kassert.Invariant(!q.Empty(), "sched: bitmap set for (domain=%d,prio=%d) but queue empty", c.curDomain, prio)
	h := q.Head
	t := k.TCBs.Get(h)
	kassert.Invariant(k.IsSchedulable(t), "sched: chose unschedulable thread %d at (domain=%d,prio=%d)", h, c.curDomain, prio)
	k.switchToThisThread(c, h)
}

// switchToThisThread implements switch_to_this_thread: dequeue h (if
// queued) and install it as current.
func (k *Kernel) switchToThisThread(c *CPU, h tcb.Handle) {
	k.SchedDequeue(h)
	if c.current != h {
		c.contextSwitches.Inc()
	}
	c.current = h
}

// SwitchToThisThread is the exported form used by external callers
// (suspend/restart machinery) to force an immediate switch outside the
// normal schedule() decision path.
func (k *Kernel) SwitchToThisThread(cpuID int, h tcb.Handle) {
	k.switchToThisThread(k.cpu(cpuID), h)
}

// Current returns the handle of the CPU's currently-running thread.
func (k *Kernel) Current(cpuID int) tcb.Handle { return k.cpu(cpuID).current }

// Idle returns the handle of the CPU's idle thread.
func (k *Kernel) Idle(cpuID int) tcb.Handle { return k.cpu(cpuID).idle }

// EPRequeuer is the external collaborator owning IPC endpoint and
// notification wait queues (out of scope for this package): when a thread
// blocked on one of them has its priority changed, the core only needs to
// re-splice it via tcbqueue.EPAppendPriority, which requires knowing which
// queue. Reorder is handed the thread's own blocking-object reference and
// its handle; the collaborator looks up the queue and does the splice.
type EPRequeuer interface {
	Reorder(blocking tstate.BlockingObject, h tcb.Handle)
}

// SetEPRequeuer installs the collaborator used to reorder a thread within
// its endpoint/notification wait queue when SetPriority changes its
// priority while blocked.
func (k *Kernel) SetEPRequeuer(r EPRequeuer) { k.epRequeuer = r }

// SetPriority implements set_priority(new): the non-MCS path dequeues,
// updates, and either reschedule_requires the CPU (if the thread is
// current) or possible_switch_tos it (if merely runnable elsewhere). Under
// MCS the behavior is state-dependent: a Running/Restart thread that is
// queued or current is requeued at the new priority and rescheduled; a
// thread blocked on an endpoint or notification is reordered within that
// queue instead, since its ready-queue placement is unaffected; any other
// state just updates the field. callerCPU is the CPU the change is being
// made from, used for the SMP mask-reschedule decision.
func (k *Kernel) SetPriority(callerCPU int, h tcb.Handle, prio int) {
	t := k.TCBs.Get(h)
	c := k.cpu(t.Affinity)

	if !k.MCSEnabled {
		k.SchedDequeue(h)
		t.Priority = prio
		if !t.State.Runnable() {
			return
		}
		if c.current == h {
			k.RescheduleRequired(c)
		} else {
			k.PossibleSwitchTo(callerCPU, h)
		}
		return
	}

	switch {
	case t.State == tstate.Running || t.State == tstate.Restart:
		if t.Flags.Queued || c.current == h {
			k.SchedDequeue(h)
			t.Priority = prio
			k.SchedEnqueue(callerCPU, h)
			k.RescheduleRequired(c)
		} else {
			t.Priority = prio
		}
	case t.State == tstate.BlockedOnSend || t.State == tstate.BlockedOnReceive || t.State == tstate.BlockedOnNotification:
		t.Priority = prio
		if k.epRequeuer != nil {
			k.epRequeuer.Reorder(t.Flags.Blocking, h)
		}
	default:
		t.Priority = prio
	}
}

// SetDomain implements set_domain(dom): dequeue, update, re-enqueue if the
// thread is still schedulable at the new domain (regardless of whether it
// was queued before — a current thread gets folded into the ready queue
// here too), and force a reschedule if it is current.
func (k *Kernel) SetDomain(callerCPU int, h tcb.Handle, domain int) {
	t := k.TCBs.Get(h)
	c := k.cpu(t.Affinity)
	k.SchedDequeue(h)
	t.Domain = domain
	if k.IsSchedulable(t) {
		k.SchedEnqueue(callerCPU, h)
	}
	if c.current == h {
		k.RescheduleRequired(c)
	}
}

// Suspend implements the suspend-thread external operation: remove t from
// whatever queue it occupies (ready or, under MCS, release), transition it
// to Inactive, and force a reschedule if it was current.
func (k *Kernel) Suspend(cpuID int, h tcb.Handle) {
	t := k.TCBs.Get(h)
	c := k.cpu(cpuID)
	if t.Flags.InReleaseQueue {
		k.releaseRemove(c, h)
	}
	k.SchedDequeue(h)
	t.State = tstate.Inactive
	if c.current == h {
		k.RescheduleRequired(c)
	}
}

// Restart implements the restart-thread external operation: only valid on
// a currently stopped thread (one that is not already runnable). Sets
// Restart (activate_thread will copy fault IP into next IP on its next
// kernel exit) and attempts to switch to it. Under MCS, a sporadic context
// that isn't the one actively ticking on its own CPU needs
// refill_unblock_check first so its head refill reflects time actually
// elapsed while blocked; sched_context_resume then decides whether the
// thread goes straight to the ready queue or is postponed onto the release
// queue instead. callerCPU is the CPU the restart is being issued from.
func (k *Kernel) Restart(callerCPU int, h tcb.Handle) {
	t := k.TCBs.Get(h)
	if !t.State.Stopped() {
		return
	}
	t.State = tstate.Restart
	if k.MCSEnabled && t.SchedContext != tcb.NoSC {
		owner := k.cpu(t.Affinity)
		sc := k.SCs.Get(t.SchedContext)
		if sc.Period != 0 && owner.currentSC != t.SchedContext {
			sc.RefillUnblockCheck(owner.now, k.Timing)
		}
		k.Resume(t.Affinity, h)
	}
	k.PossibleSwitchTo(callerCPU, h)
}
