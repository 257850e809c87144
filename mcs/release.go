package mcs

import "github.com/sel4kernel/taskcore/internal/kassert"

// ReleaseQueue orders scheduling contexts not yet ready to run by their
// head refill's wakeup time, soonest first. It is a doubly-linked list of
// Arena-relative indices, kept separate from tcbqueue since it links
// scheduling contexts, not TCBs.
type ReleaseQueue struct {
	head, tail Handle
}

// NewReleaseQueue returns an empty release queue.
func NewReleaseQueue() ReleaseQueue { return ReleaseQueue{head: NoHandle, tail: NoHandle} }

// Empty reports whether no scheduling context is waiting for release.
func (rq *ReleaseQueue) Empty() bool { return rq.head == NoHandle }

// Head returns the soonest-waking scheduling context. Callers must check
// Empty first.
func (rq *ReleaseQueue) Head() Handle {
	kassert.Assert(rq.head != NoHandle, "mcs: Head called on empty release queue")
	return rq.head
}

// Enqueue implements release_enqueue: insert h, ordered by
// its head refill's time, soonest first; ties keep earlier arrivals ahead.
// Reports whether the queue's head changed, since the caller (package
// sched) must reprogram its deadline timer exactly when it did.
func (a *Arena) Enqueue(rq *ReleaseQueue, h Handle) (headChanged bool) {
	sc := a.Get(h)
	kassert.Invariant(!sc.InReleaseQueue, "mcs: release_enqueue on %d already queued", h)
	wake := sc.refills[0].Time

	cur := rq.head
	for cur != NoHandle && a.Get(cur).refills[0].Time <= wake {
		cur = a.Get(cur).releaseNext()
	}

	sc.setReleaseLinks(a.releasePrevOf(cur, rq), cur)
	if cur == NoHandle {
		rq.tail = h
	} else {
		a.Get(cur).setReleasePrev(h)
	}
	prev := sc.releasePrev()
	if prev == NoHandle {
		rq.head = h
	} else {
		a.Get(prev).setReleaseNext(h)
	}
	sc.InReleaseQueue = true
	return rq.head == h
}

// Remove implements release_remove.
func (a *Arena) Remove(rq *ReleaseQueue, h Handle) {
	sc := a.Get(h)
	kassert.Invariant(sc.InReleaseQueue, "mcs: release_remove on %d not queued", h)
	prev, next := sc.releasePrev(), sc.releaseNext()
	if prev == NoHandle {
		rq.head = next
	} else {
		a.Get(prev).setReleaseNext(next)
	}
	if next == NoHandle {
		rq.tail = prev
	} else {
		a.Get(next).setReleasePrev(prev)
	}
	sc.setReleaseLinks(NoHandle, NoHandle)
	sc.InReleaseQueue = false
}

// Dequeue implements release_dequeue: pop and return the
// head.
func (a *Arena) Dequeue(rq *ReleaseQueue) Handle {
	h := rq.Head()
	a.Remove(rq, h)
	return h
}

// Len counts the scheduling contexts currently parked on rq. O(n);
// intended for metrics/introspection, not the scheduling hot path.
func (a *Arena) Len(rq *ReleaseQueue) int {
	n := 0
	for cur := rq.head; cur != NoHandle; cur = a.Get(cur).releaseNext() {
		n++
	}
	return n
}

func (sc *SchedContext) releasePrev() Handle { return Handle(sc.releaseLinks.Prev) }
func (sc *SchedContext) releaseNext() Handle { return Handle(sc.releaseLinks.Next) }
func (sc *SchedContext) setReleasePrev(h Handle) { sc.releaseLinks.Prev = int32(h) }
func (sc *SchedContext) setReleaseNext(h Handle) { sc.releaseLinks.Next = int32(h) }
func (sc *SchedContext) setReleaseLinks(prev, next Handle) {
	sc.releaseLinks.Prev = int32(prev)
	sc.releaseLinks.Next = int32(next)
}

func (a *Arena) releasePrevOf(cur Handle, rq *ReleaseQueue) Handle {
	if cur == NoHandle {
		return rq.tail
	}
	return a.Get(cur).releasePrev()
}
