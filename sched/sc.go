package sched

import (
	"github.com/sel4kernel/taskcore/mcs"
	"github.com/sel4kernel/taskcore/tcb"
)

// NewSchedContext allocates a scheduling context sized for maxRefills,
// configured with the given budget/period, pinned to core for accounting
// purposes.
func (k *Kernel) NewSchedContext(maxRefills int, budget, period uint64, core int) mcs.Handle {
	return k.SCs.New(maxRefills, budget, period, core, k.Now(core))
}

// BindSC implements sched_context_bind_tcb's scheduler-facing half: bind h
// to t, and if t is now schedulable where it wasn't, make it visible to
// the scheduler. callerCPU is the CPU the bind is issued from.
func (k *Kernel) BindSC(callerCPU int, h mcs.Handle, t tcb.Handle) error {
	if err := k.SCs.BindTCB(h, t, k.TCBs); err != nil {
		return err
	}
	if k.IsSchedulable(k.TCBs.Get(t)) {
		k.PossibleSwitchTo(callerCPU, t)
	}
	return nil
}

// UnbindSC implements sched_context_unbind_tcb: tear down any outstanding
// yield_to relationship first (clearing the yielding thread's and this
// context's yield links through CompleteYield), then remove the thread from
// scheduling consideration before clearing the binding, since it is no
// longer schedulable once its context is gone.
func (k *Kernel) UnbindSC(h mcs.Handle) {
	sc := k.SCs.Get(h)
	if sc.YieldFrom != tcb.NoHandle {
		k.unbindYieldFrom(h)
	}
	if sc.TCB != tcb.NoHandle {
		bound := sc.TCB
		if k.cpu(k.TCBs.Get(bound).Affinity).current == bound {
			k.RescheduleRequired(k.cpu(k.TCBs.Get(bound).Affinity))
		} else {
			k.SchedDequeue(bound)
		}
	}
	k.SCs.UnbindTCB(h, k.TCBs)
}

func (k *Kernel) unbindYieldFrom(h mcs.Handle) {
	sc := k.SCs.Get(h)
	donor := k.TCBs.Get(sc.YieldFrom)
	k.SCs.CompleteYield(donor)
}

// DonateSC implements sched_context_donate's scheduler-facing half.
// callerCPU is the CPU the donate is issued from.
func (k *Kernel) DonateSC(callerCPU int, h mcs.Handle, to tcb.Handle) {
	k.SCs.Donate(h, to, k.TCBs)
	k.PossibleSwitchTo(callerCPU, to)
}

// YieldTo implements sched_context_yield_to: fromTCB temporarily lends its
// own bound context's remaining budget to targetSC's bound thread. The
// donee becomes immediately schedulable on the lent context's priority;
// ActivateThread reverses the loan once the donee blocks or its budget is
// exhausted. callerCPU is the CPU the yield is issued from (normally
// fromTCB's own CPU, since yield_to is a syscall the donor makes of
// itself).
func (k *Kernel) YieldTo(callerCPU int, fromTCB tcb.Handle, targetSC mcs.Handle) {
	from := k.TCBs.Get(fromTCB)
	k.SCs.YieldTo(from, fromTCB, targetSC)
	donee := k.SCs.Get(targetSC).TCB
	if donee != tcb.NoHandle {
		k.PossibleSwitchTo(callerCPU, donee)
	}
}
