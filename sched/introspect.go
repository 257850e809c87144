package sched

import "github.com/sel4kernel/taskcore/mcs"

// NumCPUs returns the number of CPUs this Kernel was constructed with.
func (k *Kernel) NumCPUs() int { return len(k.CPUs) }

// ReadyQueueDepth returns the number of threads currently queued at
// (cpu, domain, prio). Intended for metrics; walks the intrusive queue,
// so it is O(n) in the queue depth rather than O(1).
func (k *Kernel) ReadyQueueDepth(cpu, domain, prio int) int {
	return len(k.queue(k.cpu(cpu), domain, prio).ToSlice(k.schedAccessor()))
}

// BitmapOccupancy returns the number of priorities with a non-empty
// ready queue in (cpu, domain).
func (k *Kernel) BitmapOccupancy(cpu, domain int) int {
	return k.cpu(cpu).bitmaps[domain].Count()
}

// ReleaseQueueLength returns the number of scheduling contexts parked in
// cpu's MCS release queue.
func (k *Kernel) ReleaseQueueLength(cpu int) int {
	c := k.cpu(cpu)
	return k.SCs.Len(&c.releaseQueue)
}

// ContextSwitches returns the cumulative count of thread context switches
// performed on cpu.
func (k *Kernel) ContextSwitches(cpu int) uint64 { return k.cpu(cpu).contextSwitches.Load() }

// IPIsDispatched returns the cumulative count of reschedule IPIs
// dispatched targeting cpu.
func (k *Kernel) IPIsDispatched(cpu int) uint64 { return k.cpu(cpu).ipisDispatched.Load() }

// RefillBudget returns the currently-running scheduling context's
// consumed and total (sum of all refill amounts) ticks on cpu. Both are
// zero if MCS is disabled or no context is bound.
func (k *Kernel) RefillBudget(cpu int) (used, total uint64) {
	c := k.cpu(cpu)
	if !k.MCSEnabled || c.currentSC == mcs.NoHandle {
		return 0, 0
	}
	sc := k.SCs.Get(c.currentSC)
	return sc.Consumed.Load(), sc.RefillTotal()
}
