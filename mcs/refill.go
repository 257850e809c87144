// Package mcs implements the Mixed-Criticality System extension's
// temporal-isolation core: scheduling contexts, their
// refill rings, and the release queue they feed. It depends only on
// package tcb (for thread handles); the scheduler orchestrates these
// primitives alongside ready-queue placement in package sched.
package mcs

import "github.com/sel4kernel/taskcore/internal/kassert"

// Refill is a {time, amount} pair: amount of budget becomes available at
// time.
type Refill struct {
	Time   uint64
	Amount uint64
}

// Timing bundles the configuration constants the refill algorithms are
// parameterized over: MIN_BUDGET, MAX_RELEASE_TIME, kernel_wcet_ticks.
type Timing struct {
	KernelWCETTicks uint64
	MinBudget       uint64 // 2 * KernelWCETTicks * scale, per GLOSSARY
	MaxReleaseTime  uint64
}

// DefaultTiming returns reasonable tick-unit defaults: a 2-tick kernel
// WCET and the MIN_BUDGET formula from the GLOSSARY with scale=1.
func DefaultTiming() Timing {
	const wcet = 2
	return Timing{
		KernelWCETTicks: wcet,
		MinBudget:       2 * wcet,
		MaxReleaseTime:  ^uint64(0) / 2,
	}
}

// refills is implemented as an explicit, capacity-bounded vector rather
// than literal head/tail modulo-indexed array slots. refills[0] is the current head; the last element is the
// tail. RefillHead/RefillTail/RefillSize/etc. below give the named
// head/tail operations at the semantic level.

// RefillHead returns the current (oldest) refill.
func (sc *SchedContext) RefillHead() *Refill { return &sc.refills[0] }

// RefillTail returns the most recently scheduled refill.
func (sc *SchedContext) RefillTail() *Refill { return &sc.refills[len(sc.refills)-1] }

// RefillSize returns the number of live refills, 0 <= size <= RefillMax.
func (sc *SchedContext) RefillSize() int { return len(sc.refills) }

// RefillTotal returns the sum of every live refill's amount: the total
// budget this context could spend across its full period right now.
func (sc *SchedContext) RefillTotal() uint64 {
	var total uint64
	for _, r := range sc.refills {
		total += r.Amount
	}
	return total
}

// RefillFull reports whether the ring is at capacity.
func (sc *SchedContext) RefillFull() bool { return len(sc.refills) >= sc.RefillMax }

// RefillSingle reports whether exactly one refill is live.
func (sc *SchedContext) RefillSingle() bool { return len(sc.refills) == 1 }

// refillPopHead advances past the current head. Asserts at least two
// refills are live, matching refill_pop_head contract.
func (sc *SchedContext) refillPopHead() {
	kassert.Invariant(len(sc.refills) >= 2, "mcs: refill_pop_head on %d refills", len(sc.refills))
	sc.refills = sc.refills[1:]
}

// refillAddTail appends a new tail refill. Asserts the ring is not full.
func (sc *SchedContext) refillAddTail(r Refill) {
	kassert.Invariant(!sc.RefillFull(), "mcs: refill_add_tail on full ring (max=%d)", sc.RefillMax)
	sc.refills = append(sc.refills, r)
}

// RefillNew initializes the refill ring for a freshly bound/retyped
// scheduling context: a single head refill of the full
// budget; for round-robin contexts (period == 0) a second, empty trailing
// entry so the ring always has the two slots Charge's swap needs.
func (sc *SchedContext) RefillNew(maxRefills int, budget, period uint64, now uint64) {
	sc.RefillMax = maxRefills
	sc.Period = period
	sc.refills = make([]Refill, 0, maxRefills)
	sc.refills = append(sc.refills, Refill{Time: now, Amount: budget})
	if period == 0 {
		sc.refillAddTail(Refill{Time: now, Amount: 0})
	}
}

// RefillUpdate reconfigures an existing context's period/budget/capacity:
// truncates to head-only, resets the head's time to now if
// it's ready, then either trims the head to the new budget or schedules a
// tail for the remainder at head.time + newPeriod.
func (sc *SchedContext) RefillUpdate(newPeriod, newBudget uint64, newMax int, now uint64, t Timing) {
	head := sc.refills[0]
	if sc.refillReadyAt(head, now, t) {
		head.Time = now
	}
	sc.RefillMax = newMax
	sc.Period = newPeriod
	sc.refills = make([]Refill, 0, newMax)
	if head.Amount >= newBudget {
		head.Amount = newBudget
		sc.refills = append(sc.refills, head)
		return
	}
	remainder := newBudget - head.Amount
	sc.refills = append(sc.refills, head)
	sc.refills = append(sc.refills, Refill{Time: head.Time + newPeriod, Amount: remainder})
}

func (sc *SchedContext) refillReadyAt(r Refill, now uint64, t Timing) bool {
	return r.Time <= now+t.KernelWCETTicks
}

// RefillReady reports whether the head refill's time has arrived, within
// kernel-WCET slack.
func (sc *SchedContext) RefillReady(now uint64, t Timing) bool {
	return sc.refillReadyAt(sc.refills[0], now, t)
}

// RefillSufficient reports whether the head refill, after usage is
// deducted, still clears MIN_BUDGET.
func (sc *SchedContext) RefillSufficient(usage uint64, t Timing) bool {
	head := sc.refills[0].Amount
	var remaining uint64
	if head > usage {
		remaining = head - usage
	}
	return remaining >= t.MinBudget
}

// RefillHeadOverlapping reports whether the head refill's window reaches
// into the next one.
func (sc *SchedContext) RefillHeadOverlapping() bool {
	if len(sc.refills) < 2 {
		return false
	}
	return sc.refills[0].Time+sc.refills[0].Amount >= sc.refills[1].Time
}

// RefillUnblockCheck implements refill_unblock_check: only
// meaningful for non-round-robin contexts. If the head is ready, pull its
// time up to now, then merge any subsequent refill whose time has already
// been subsumed by the (growing) head window. Finishes by asserting
// sufficiency.
func (sc *SchedContext) RefillUnblockCheck(now uint64, t Timing) {
	if sc.Period == 0 {
		return
	}
	if sc.RefillReady(now, t) {
		sc.refills[0].Time = now
		for len(sc.refills) > 1 && sc.refills[0].Amount+sc.refills[0].Time >= sc.refills[1].Time {
			sc.refills[0].Amount += sc.refills[1].Amount
			sc.refills[0].Time = sc.refills[1].Time
			sc.refills = append(sc.refills[:1:1], sc.refills[2:]...)
		}
	}
	kassert.Invariant(sc.RefillSufficient(0, t), "mcs: refill insufficient after unblock check")
}

// scheduleUsed implements schedule_used: fold a freshly
// drained refill back into the tail if it abuts/overlaps it, otherwise
// append a new tail, otherwise (ring full) squash it into the existing
// tail by pulling the tail's time back to cover the gap.
func (sc *SchedContext) scheduleUsed(r Refill) {
	tail := &sc.refills[len(sc.refills)-1]
	if tail.Time+tail.Amount >= r.Time {
		tail.Amount += r.Amount
		return
	}
	if !sc.RefillFull() {
		sc.refillAddTail(r)
		return
	}
	tail.Time = r.Time
	tail.Amount += r.Amount
}

// RefillBudgetCheck implements refill_budget_check, called
// when charging usage against the context: drain fully-consumed head
// refills forward by one period each, split a partially-consumed head,
// then coalesce any resulting head too small to be schedulable.
func (sc *SchedContext) RefillBudgetCheck(usage uint64, t Timing) {
	for sc.refills[0].Amount <= usage && sc.refills[0].Time < t.MaxReleaseTime {
		usage -= sc.refills[0].Amount
		amount := sc.refills[0].Amount
		newTime := sc.refills[0].Time + sc.Period
		if sc.RefillSingle() {
			sc.refills[0].Time = newTime
			break
		}
		sc.refillPopHead()
		sc.scheduleUsed(Refill{Time: newTime, Amount: amount})
	}
	if usage > 0 {
		oldTime := sc.refills[0].Time
		sc.refills[0].Amount -= usage
		sc.refills[0].Time += usage
		sc.scheduleUsed(Refill{Time: oldTime + sc.Period, Amount: usage})
	}
	for sc.refills[0].Amount < t.MinBudget && len(sc.refills) > 1 {
		amount := sc.refills[0].Amount
		sc.refills = sc.refills[1:]
		sc.refills[0].Amount += amount
	}
}

// Charge implements charge_budget refill-math half: either
// swap the round-robin pair's amounts, or run RefillBudgetCheck; asserts
// the MIN_BUDGET floor afterward and folds
// consumed into the running total.
func (sc *SchedContext) Charge(consumed uint64, t Timing) {
	if sc.Period == 0 {
		last := len(sc.refills) - 1
		sc.refills[0].Amount, sc.refills[last].Amount = sc.refills[last].Amount, sc.refills[0].Amount
	} else {
		sc.RefillBudgetCheck(consumed, t)
	}
	kassert.Invariant(sc.refills[0].Amount >= t.MinBudget, "mcs: head refill %d below MIN_BUDGET %d after charge", sc.refills[0].Amount, t.MinBudget)
	sc.Consumed.Add(consumed)
}

// CommitRoundRobin implements the round-robin half of
// commit_time: move consumed ticks from head to tail incrementally,
// rather than Charge's full swap.
func (sc *SchedContext) CommitRoundRobin(consumed uint64) {
	last := len(sc.refills) - 1
	sc.refills[0].Amount -= consumed
	sc.refills[last].Amount += consumed
}

// MaxRefillsForSize computes the maximum refill ring capacity a scheduling
// context object of 2^sizeBits bytes can hold, after the fixed header.
func MaxRefillsForSize(sizeBits uint, headerBytes, refillBytes uint) int {
	total := uint(1) << sizeBits
	if total <= headerBytes {
		return 0
	}
	return int((total - headerBytes) / refillBytes)
}
