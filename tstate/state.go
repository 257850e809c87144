// Package tstate defines the thread-state enumeration and the small
// bit-packed flag set carried alongside it. Layout is a serialization
// concern only: this package exposes typed accessors, never raw bits.
package tstate

// State is the primary thread-state value.
type State uint8

const (
	Inactive State = iota
	Running
	Restart
	BlockedOnReceive
	BlockedOnSend
	BlockedOnReply
	BlockedOnNotification
	IdleThreadState
	Exited
)

func (s State) String() string {
	switch s {
	case Inactive:
		return "Inactive"
	case Running:
		return "Running"
	case Restart:
		return "Restart"
	case BlockedOnReceive:
		return "BlockedOnReceive"
	case BlockedOnSend:
		return "BlockedOnSend"
	case BlockedOnReply:
		return "BlockedOnReply"
	case BlockedOnNotification:
		return "BlockedOnNotification"
	case IdleThreadState:
		return "IdleThreadState"
	case Exited:
		return "Exited"
	default:
		return "Unknown"
	}
}

// Runnable reports whether a thread in this state is eligible to be placed
// in a ready queue at all (the MCS schedulability predicate in package
// sched layers further conditions on top of this).
func (s State) Runnable() bool {
	switch s {
	case Running, Restart, IdleThreadState:
		return true
	default:
		return false
	}
}

// Stopped reports whether a thread in this state is eligible for
// restart(): not already runnable, and not permanently Exited.
func (s State) Stopped() bool {
	return !s.Runnable() && s != Exited
}

// Blocked reports whether the state is one of the three blocking states
// that pairs with a blocking-object reference (an EP or notification).
func (s State) Blocked() bool {
	switch s {
	case BlockedOnReceive, BlockedOnSend, BlockedOnNotification:
		return true
	default:
		return false
	}
}

// BlockingObject identifies the EP/notification a thread is blocked in;
// the core treats it as an opaque handle supplied by the IPC layer (out of
// scope).
type BlockingObject uint64

// NoBlockingObject is the zero value: not blocked on anything.
const NoBlockingObject BlockingObject = 0

// ReplyObject identifies the reply object (MCS) linked to a
// BlockedOnReply thread, also opaque to this package.
type ReplyObject uint64

// NoReplyObject is the zero value: no linked reply object.
const NoReplyObject ReplyObject = 0

// Flags is the bit-packed side information thread_state.rs keeps next to
// the state tag: queue membership and blocking/reply linkage. Queued and
// InReleaseQueue are never both set; package sched flips these two bits
// and keeps that invariant.
type Flags struct {
	Queued         bool
	InReleaseQueue bool
	Blocking       BlockingObject
	Reply          ReplyObject
}
