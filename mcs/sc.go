package mcs

import (
	"errors"

	"github.com/rs/xid"
	"go.uber.org/atomic"

	"github.com/sel4kernel/taskcore/internal/kassert"
	"github.com/sel4kernel/taskcore/tcb"
)

// ReplyHandle is an opaque reference to a reply object (package reply).
// Declared here, not there, so mcs has no import dependency on reply;
// reply imports both tcb and mcs instead.
type ReplyHandle int32

// NoReply means "no reply object bound".
const NoReply ReplyHandle = -1

// NtfnHandle is an opaque reference to a notification object. The
// notification object's own queue/signal semantics live outside this
// package; scheduling contexts only need to remember which one they're
// bound to for SC-donation-on-signal.
type NtfnHandle int32

// NoNtfn means "no notification bound".
const NoNtfn NtfnHandle = -1

// SchedContext is a scheduling context: a thread's temporal
// budget, expressed as a refill ring, plus the bindings that let it be
// donated across an IPC call chain.
type SchedContext struct {
	debugID string

	refills []Refill
	RefillMax int
	Period    uint64
	Consumed  atomic.Uint64

	Core int // SMP: the CPU this context's budget accounting runs on

	TCB  tcb.Handle // bound thread, tcb.NoHandle if unbound
	Ntfn NtfnHandle
	Reply ReplyHandle // the reply object currently tracking this context's call stack, for unbind-time cleanup

	InReleaseQueue bool
	releaseLinks   struct{ Prev, Next int32 } // release-queue membership; index into Arena.scs, not a tcbqueue.Handle, since the release queue is mcs-private

	YieldFrom tcb.Handle // MCS: the thread that yielded its timeslice to this context's bound thread, tcb.NoHandle if none
}

// Handle is a stable reference to a SchedContext within an Arena.
type Handle = tcb.SCHandle

// NoHandle is the "no scheduling context" sentinel.
const NoHandle = tcb.NoSC

// Arena owns a growable, append-only set of scheduling contexts,
// mirroring tcb.Arena's handle-stability contract.
type Arena struct {
	scs []SchedContext
}

// NewArena returns an empty scheduling-context arena.
func NewArena() *Arena { return &Arena{} }

// New allocates a scheduling context with budget/period already configured
// via RefillNew, and returns its handle.
func (a *Arena) New(maxRefills int, budget, period uint64, core int, now uint64) Handle {
	sc := SchedContext{debugID: xid.New().String(), Core: core, TCB: tcb.NoHandle, Ntfn: NoNtfn, Reply: NoReply, YieldFrom: tcb.NoHandle}
	sc.RefillNew(maxRefills, budget, period, now)
	a.scs = append(a.scs, sc)
	return Handle(len(a.scs) - 1)
}

// DebugID returns a short, human-loggable identifier distinct from the
// arena handle that is this context's actual identity.
func (sc *SchedContext) DebugID() string { return sc.debugID }

// Get returns the scheduling context for h.
func (a *Arena) Get(h Handle) *SchedContext {
	kassert.Invariant(h >= 0 && int(h) < len(a.scs), "mcs: handle %d out of range (len=%d)", h, len(a.scs))
	return &a.scs[h]
}

var (
	// ErrAlreadyBound is returned by BindTCB/BindNtfn when the target slot
	// is already occupied.
	ErrAlreadyBound = errors.New("mcs: already bound")
	// ErrNotBound is returned by Unbind* when there is nothing to unbind.
	ErrNotBound = errors.New("mcs: not bound")
)

// BindTCB implements sched_context_bind_tcb: associate a
// scheduling context with a thread. The thread must not already have one.
func (a *Arena) BindTCB(h Handle, t tcb.Handle, tcbs *tcb.Arena) error {
	sc := a.Get(h)
	if sc.TCB != tcb.NoHandle {
		return ErrAlreadyBound
	}
	thread := tcbs.Get(t)
	if thread.SchedContext != NoHandle {
		return ErrAlreadyBound
	}
	sc.TCB = t
	thread.SchedContext = h
	return nil
}

// UnbindTCB implements sched_context_unbind_tcb: the
// scheduler-side consequences (removing the thread from ready/release
// queues, picking a new thread if it was current) are the caller's
// (package sched) responsibility; this only clears the binding itself.
func (a *Arena) UnbindTCB(h Handle, tcbs *tcb.Arena) {
	sc := a.Get(h)
	if sc.TCB == tcb.NoHandle {
		return
	}
	thread := tcbs.Get(sc.TCB)
	thread.SchedContext = NoHandle
	sc.TCB = tcb.NoHandle
}

// UnbindAllTCBs is the degenerate case of UnbindTCB used when destroying a
// scheduling context object outright: since exactly one TCB
// can ever be bound at a time, this is UnbindTCB under another name, kept
// distinct for call-site clarity at destruction time.
func (a *Arena) UnbindAllTCBs(h Handle, tcbs *tcb.Arena) {
	a.UnbindTCB(h, tcbs)
}

// BindNtfn implements sched_context_bind_ntfn: a scheduling
// context can additionally be bound to a notification, so that signalling
// it can donate the (otherwise idle) context's budget to whichever thread
// is waiting on the notification.
func (a *Arena) BindNtfn(h Handle, n NtfnHandle) error {
	sc := a.Get(h)
	if sc.Ntfn != NoNtfn {
		return ErrAlreadyBound
	}
	sc.Ntfn = n
	return nil
}

// UnbindNtfn implements sched_context_unbind_ntfn.
func (a *Arena) UnbindNtfn(h Handle) {
	a.Get(h).Ntfn = NoNtfn
}

// Donate implements sched_context_donate: move a scheduling
// context from its currently-bound thread (if any) to a new one. The
// caller (package sched) is responsible for the ready-queue consequences
// of both the old and new thread's state changing.
func (a *Arena) Donate(h Handle, to tcb.Handle, tcbs *tcb.Arena) {
	sc := a.Get(h)
	if sc.TCB != tcb.NoHandle {
		tcbs.Get(sc.TCB).SchedContext = NoHandle
	}
	sc.TCB = to
	tcbs.Get(to).SchedContext = h
}

// YieldTo lends a thread's scheduling priority boost to another thread's
// scheduling context temporarily: fromThread records targetSC as its
// outstanding claim, and targetSC
// records fromThread as the lender so CompleteYield can find it again. The
// scheduler (package sched) completes the yield, restoring fromThread's
// own context, once the target thread blocks or targetSC's budget is
// exhausted.
func (a *Arena) YieldTo(fromThread *tcb.TCB, fromHandle tcb.Handle, targetSC Handle) {
	fromThread.YieldTo = targetSC
	a.Get(targetSC).YieldFrom = fromHandle
}

// CompleteYield reverses YieldTo: clears both sides of the donation. The
// caller is responsible for any ready-queue consequences of fromThread
// regaining its own context's priority.
func (a *Arena) CompleteYield(fromThread *tcb.TCB) {
	if fromThread.YieldTo == NoHandle {
		return
	}
	a.Get(fromThread.YieldTo).YieldFrom = tcb.NoHandle
	fromThread.YieldTo = NoHandle
}

// UnbindYieldFrom clears a
// scheduling context's outstanding YieldFrom claim, e.g. when the lending
// thread is destroyed before the yield completes.
func (a *Arena) UnbindYieldFrom(h Handle) {
	a.Get(h).YieldFrom = tcb.NoHandle
}
