package sched

import "github.com/sel4kernel/taskcore/tcb"

// FPUController is the external collaborator that actually saves and
// restores architectural FPU register state; the core only tracks which
// thread currently owns each CPU's FPU, consistent with register
// save/restore being out of scope for this package. May be nil, in which
// case ClaimFPU only updates ownership bookkeeping.
type FPUController interface {
	SaveFPUState(owner tcb.Handle)
	RestoreFPUState(new tcb.Handle)
}

// SetFPUController installs the collaborator used to actually move FPU
// register state between threads on a trap.
func (k *Kernel) SetFPUController(c FPUController) { k.fpuController = c }

// ClaimFPU implements the lazy-switch trap handler: switchToThisThread
// does not force an FPU restore, so the first FPU instruction a newly
// running thread executes traps here. The previous owner's state (if any)
// is saved, the new owner's is restored, and ownership moves to h.
func (k *Kernel) ClaimFPU(cpuID int, h tcb.Handle) {
	c := k.cpu(cpuID)
	if c.fpuOwner == h {
		return
	}
	if k.fpuController != nil {
		if c.fpuOwner != tcb.NoHandle {
			k.fpuController.SaveFPUState(c.fpuOwner)
		}
		k.fpuController.RestoreFPUState(h)
	}
	c.fpuOwner = h
	k.TCBs.Get(h).HasFPUState = true
}

// FPUOwner returns the thread that currently owns cpuID's FPU state,
// tcb.NoHandle if none has claimed it yet.
func (k *Kernel) FPUOwner(cpuID int) tcb.Handle { return k.cpu(cpuID).fpuOwner }

// EvictFPU clears ownership without a corresponding claim, e.g. when its
// owning thread is destroyed.
func (k *Kernel) EvictFPU(h tcb.Handle) {
	for _, c := range k.CPUs {
		if c.fpuOwner == h {
			if k.fpuController != nil {
				k.fpuController.SaveFPUState(h)
			}
			c.fpuOwner = tcb.NoHandle
		}
	}
}
