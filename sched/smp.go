package sched

import "github.com/sel4kernel/taskcore/tcb"

// IPISender is the external collaborator that actually delivers a
// reschedule interrupt to a remote CPU (the "SMP mask-reschedule"
// symbol); dispatchPendingIPIs calls it once per targeted CPU at the end
// of schedule(), matching the "targeted reschedule IPIs sent at the end
// of schedule" rule: there is no cross-CPU locking in this package, only
// this one-way notification.
type IPISender interface {
	SendRescheduleIPI(cpuID int)
}

// RequestIPI marks cpuID as needing a reschedule IPI. Called by whichever
// CPU observed a cross-core effect (e.g. a higher-priority thread's
// affinity points at cpuID) — never by cpuID itself, since this core has
// no cross-CPU locking and a CPU never needs to interrupt itself.
func (k *Kernel) RequestIPI(cpuID int) {
	k.cpu(cpuID).pendingIPI.Store(true)
}

// dispatchPendingIPIs sends and clears every CPU's pending reschedule IPI.
// sender may be nil in single-core simulation/tests where no wakeup is
// actually needed.
func (k *Kernel) dispatchPendingIPIs(_ *CPU) {
	if k.ipiSender == nil {
		k.clearPendingIPIs()
		return
	}
	for _, c := range k.CPUs {
		if c.pendingIPI.CompareAndSwap(true, false) {
			c.ipisDispatched.Inc()
			k.ipiSender.SendRescheduleIPI(c.id)
		}
	}
}

func (k *Kernel) clearPendingIPIs() {
	for _, c := range k.CPUs {
		c.pendingIPI.Store(false)
	}
}

// SetIPISender installs the collaborator used to actually deliver
// cross-CPU reschedule interrupts.
func (k *Kernel) SetIPISender(s IPISender) { k.ipiSender = s }

// MigrateTCB implements the external migrate_tcb operation: move a
// thread's affinity to a new CPU by dequeuing it from its current CPU's
// ready queue (forcing a reschedule there if it was current), updating
// its affinity, and requesting an IPI on the destination CPU so that CPU
// notices the newly-affine thread.
func (k *Kernel) MigrateTCB(h tcb.Handle, newCPU int) {
	t := k.TCBs.Get(h)
	oldCPU := t.Affinity
	oldC := k.cpu(oldCPU)
	if oldC.current == h {
		k.RescheduleRequired(oldC)
	} else {
		k.SchedDequeue(h)
	}
	t.Affinity = newCPU
	if k.MCSEnabled && t.SchedContext != tcb.NoSC {
		k.SCs.Get(t.SchedContext).Core = newCPU
	}
	k.PossibleSwitchTo(oldCPU, h)
	k.RequestIPI(newCPU)
}
