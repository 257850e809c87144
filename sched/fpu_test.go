package sched

import (
	"testing"

	"github.com/sel4kernel/taskcore/tcb"
)

type fakeFPUController struct {
	saved, restored []tcb.Handle
}

func (f *fakeFPUController) SaveFPUState(owner tcb.Handle)  { f.saved = append(f.saved, owner) }
func (f *fakeFPUController) RestoreFPUState(new tcb.Handle) { f.restored = append(f.restored, new) }

func TestClaimFPU_SavesPreviousOwnerAndRestoresNew(t *testing.T) {
	k := NewKernel(1, 256, 16, false, nil, testTiming(), nil)
	ctrl := &fakeFPUController{}
	k.SetFPUController(ctrl)

	a := spawnRunnable(k, 0, 100)
	b := spawnRunnable(k, 0, 100)

	k.ClaimFPU(0, a)
	if got := k.FPUOwner(0); got != a {
		t.Fatalf("FPUOwner(0) = %v, want %v", got, a)
	}
	if !k.TCBs.Get(a).HasFPUState {
		t.Fatal("HasFPUState should be set once a thread claims the FPU")
	}
	if len(ctrl.saved) != 0 {
		t.Fatalf("no prior owner to save, got saves = %v", ctrl.saved)
	}
	if len(ctrl.restored) != 1 || ctrl.restored[0] != a {
		t.Fatalf("restored = %v, want [%v]", ctrl.restored, a)
	}

	k.ClaimFPU(0, b)
	if len(ctrl.saved) != 1 || ctrl.saved[0] != a {
		t.Fatalf("saved = %v, want [%v] (the previous owner)", ctrl.saved, a)
	}
	if got := k.FPUOwner(0); got != b {
		t.Fatalf("FPUOwner(0) = %v, want %v", got, b)
	}
}

func TestClaimFPU_SameOwnerIsNoOp(t *testing.T) {
	k := NewKernel(1, 256, 16, false, nil, testTiming(), nil)
	ctrl := &fakeFPUController{}
	k.SetFPUController(ctrl)
	a := spawnRunnable(k, 0, 100)

	k.ClaimFPU(0, a)
	k.ClaimFPU(0, a)

	if len(ctrl.restored) != 1 {
		t.Fatalf("restoring the already-current owner should be a no-op, got %v", ctrl.restored)
	}
}

func TestEvictFPU_ClearsOwnershipAndSaves(t *testing.T) {
	k := NewKernel(1, 256, 16, false, nil, testTiming(), nil)
	ctrl := &fakeFPUController{}
	k.SetFPUController(ctrl)
	a := spawnRunnable(k, 0, 100)
	k.ClaimFPU(0, a)

	k.EvictFPU(a)
	if got := k.FPUOwner(0); got != tcb.NoHandle {
		t.Fatalf("FPUOwner(0) after evict = %v, want NoHandle", got)
	}
	if len(ctrl.saved) != 1 || ctrl.saved[0] != a {
		t.Fatalf("EvictFPU should save the evicted owner's state, got saves = %v", ctrl.saved)
	}
}

func TestEvictFPU_NonOwnerIsNoOp(t *testing.T) {
	k := NewKernel(1, 256, 16, false, nil, testTiming(), nil)
	ctrl := &fakeFPUController{}
	k.SetFPUController(ctrl)
	a := spawnRunnable(k, 0, 100)

	k.EvictFPU(a) // a never claimed the FPU; must not panic or touch the controller
	if len(ctrl.saved) != 0 {
		t.Fatalf("saves = %v, want none", ctrl.saved)
	}
}
