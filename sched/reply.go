package sched

import (
	"github.com/sel4kernel/taskcore/internal/kassert"
	"github.com/sel4kernel/taskcore/reply"
	"github.com/sel4kernel/taskcore/tcb"
	"github.com/sel4kernel/taskcore/tstate"
)

// ReplyPush implements reply.push(caller, callee, can_donate): transition
// caller to BlockedOnReply, link it to the reply object, and — if
// donation applies — move the caller's scheduling context onto callee.
// Ready-queue consequences of the donation (the callee may now be
// schedulable where it wasn't, the caller must be dequeued since it's
// blocking) are this package's responsibility; reply.Push only updates
// the arena-level bindings.
func (k *Kernel) ReplyPush(callerCPU int, h reply.Handle, callerTCB, calleeTCB tcb.Handle, canDonate bool) {
	caller := k.TCBs.Get(callerTCB)
	kassert.Invariant(caller.Flags.Reply == tstate.NoReplyObject, "sched: reply_push on caller %d that already has a reply bound", callerTCB)

	k.SchedDequeue(callerTCB)
	caller.State = tstate.BlockedOnReply
	caller.Flags.Blocking = tstate.NoBlockingObject

	// reply.Push clears caller.SchedContext as part of the donation itself,
	// so whether a donation is about to happen has to be captured before
	// the call, not read off caller afterward.
	willDonate := canDonate && caller.SchedContext != tcb.NoSC

	reply.Push(h, k.Replies, k.SCs, k.TCBs, callerTCB, calleeTCB, canDonate)

	if willDonate && k.IsSchedulable(k.TCBs.Get(calleeTCB)) {
		// The callee inherited the caller's scheduling context; if it is
		// now schedulable where it wasn't, make it visible to the
		// scheduler.
		k.PossibleSwitchTo(callerCPU, calleeTCB)
	}
}

// ReplyPop implements reply.pop(tcb): the thread at calleeTCB has
// replied. Unblock the waiting caller, restore its scheduling context if
// one was donated (the caller is set to Restart and offered to the
// scheduler), and dequeue calleeTCB if it handed a donated context back
// while queued. calleeTCB's thread state is left unchanged.
func (k *Kernel) ReplyPop(callerCPU int, h reply.Handle, calleeTCB tcb.Handle) {
	callerTCB, donated := reply.Pop(h, k.Replies, k.SCs, k.TCBs, calleeTCB)
	if callerTCB == tcb.NoHandle {
		return
	}
	caller := k.TCBs.Get(callerTCB)
	caller.State = tstate.Restart
	k.PossibleSwitchTo(callerCPU, callerTCB)

	if donated {
		// The callee no longer has a scheduling context; if it was
		// current or queued on its own account it needs to be
		// reconsidered by the scheduler.
		callee := k.TCBs.Get(calleeTCB)
		if callee.Flags.Queued {
			k.SchedDequeue(calleeTCB)
		}
	}
}

// ReplyRemove implements reply.remove(tcb): unlink without a donation
// handoff — e.g. the caller was destroyed while its reply was still
// outstanding.
func (k *Kernel) ReplyRemove(h reply.Handle) {
	reply.Remove(h, k.Replies, k.TCBs, k.SCs)
}
