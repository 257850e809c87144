// Package reply implements reply objects: the call-stack
// bookkeeping that lets a scheduling context donated across a chain of
// synchronous IPC calls find its way back to the original caller when the
// final callee replies, rather than being stranded on whichever thread
// happened to be running when the chain unwound.
package reply

import (
	"github.com/rs/xid"

	"github.com/sel4kernel/taskcore/internal/kassert"
	"github.com/sel4kernel/taskcore/mcs"
	"github.com/sel4kernel/taskcore/tcb"
	"github.com/sel4kernel/taskcore/tstate"
)

// Handle is a stable reference to a reply object within an Arena.
type Handle = mcs.ReplyHandle

// NoHandle is the "no reply object" sentinel.
const NoHandle = mcs.NoReply

// Reply is one node of a call stack: it remembers which thread is waiting
// for a reply (replyTCB) and, if that thread's scheduling context was
// itself on loan from a grander caller, the reply object one level up the
// chain.
type Reply struct {
	debugID string

	callerTCB tcb.Handle // tcb.NoHandle if unbound
	callerSC  mcs.Handle // the caller's own scheduling context, remembered so Pop can restore it

	// prev is the reply object representing the next frame up the call
	// stack: set when the callee being called here was itself running on a
	// context donated to it by a still-earlier caller's Push.
	prev Handle
}

// Arena owns a growable, append-only set of reply objects, mirroring
// tcb.Arena's handle-stability contract.
type Arena struct {
	replies []Reply
}

// NewArena returns an empty reply-object arena.
func NewArena() *Arena { return &Arena{} }

// New allocates an unbound reply object and returns its handle.
func (a *Arena) New() Handle {
	a.replies = append(a.replies, Reply{debugID: xid.New().String(), callerTCB: tcb.NoHandle, callerSC: mcs.NoHandle, prev: NoHandle})
	return Handle(len(a.replies) - 1)
}

// Get returns the reply object for h.
func (a *Arena) Get(h Handle) *Reply {
	kassert.Invariant(h >= 0 && int(h) < len(a.replies), "reply: handle %d out of range (len=%d)", h, len(a.replies))
	return &a.replies[h]
}

// DebugID returns a short, human-loggable identifier distinct from the
// arena handle that is this reply object's actual identity.
func (r *Reply) DebugID() string { return r.debugID }

// Push implements reply_push: record that callerTCB is
// blocked awaiting a reply through h, and, if canDonate, move the caller's
// scheduling context onto calleeTCB so the callee inherits the caller's
// temporal budget for the duration of the call. If the caller's scheduling
// context already carries a reply object (the caller is itself running on
// a context donated further up the call chain), this reply is linked in
// front of it so Pop can unwind the whole chain frame by frame.
func Push(h Handle, replies *Arena, mcss *mcs.Arena, tcbs *tcb.Arena, callerTCB, calleeTCB tcb.Handle, canDonate bool) {
	r := replies.Get(h)
	caller := tcbs.Get(callerTCB)

	r.callerTCB = callerTCB
	r.callerSC = caller.SchedContext
	r.prev = NoHandle
	caller.Flags.Reply = handleToFlags(h)

	if !canDonate || caller.SchedContext == mcs.NoHandle {
		return
	}
	sc := mcss.Get(caller.SchedContext)
	// If the caller's own context already has a reply object on top of
	// its donation stack (it is itself running on budget donated one
	// level further up the call chain), chain this frame underneath it so
	// Pop can unwind the stack one call at a time.
	r.prev = sc.Reply
	sc.Reply = h
	mcss.Donate(caller.SchedContext, calleeTCB, tcbs)
}

// Pop implements reply_pop: the callee at calleeTCB has
// replied. Hand the (possibly-donated) scheduling context back to the
// original caller, unbind the reply object, and report which thread
// should now have which context so the scheduler can place both correctly.
//
// Returns the caller thread that was unblocked and whether a scheduling
// context changed hands back to it (false if the call never donated one).
func Pop(h Handle, replies *Arena, mcss *mcs.Arena, tcbs *tcb.Arena, calleeTCB tcb.Handle) (callerTCB tcb.Handle, donated bool) {
	r := replies.Get(h)
	if r.callerTCB == tcb.NoHandle {
		return tcb.NoHandle, false
	}
	caller := r.callerTCB
	if r.callerSC != mcs.NoHandle {
		sc := mcss.Get(r.callerSC)
		if sc.TCB == calleeTCB && sc.Reply == h {
			sc.Reply = r.prev
			mcss.Donate(r.callerSC, caller, tcbs)
			donated = true
		}
	}
	tcbs.Get(caller).Flags.Reply = tstate.NoReplyObject
	clear(r)
	return caller, donated
}

// Remove implements reply_remove: unbind h without
// performing a donation handoff, e.g. because the caller was destroyed or
// cancelled while still waiting.
func Remove(h Handle, replies *Arena, tcbs *tcb.Arena, mcss *mcs.Arena) {
	r := replies.Get(h)
	if r.callerTCB != tcb.NoHandle {
		tcbs.Get(r.callerTCB).Flags.Reply = tstate.NoReplyObject
	}
	if r.callerSC != mcs.NoHandle {
		sc := mcss.Get(r.callerSC)
		if sc.Reply == h {
			sc.Reply = r.prev
		}
	}
	clear(r)
}

func clear(r *Reply) {
	r.callerTCB = tcb.NoHandle
	r.callerSC = mcs.NoHandle
	r.prev = NoHandle
}

func handleToFlags(h Handle) tstate.ReplyObject {
	if h == NoHandle {
		return tstate.NoReplyObject
	}
	return tstate.ReplyObject(h) + 1
}
