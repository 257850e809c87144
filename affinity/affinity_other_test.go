//go:build !linux
// +build !linux

package affinity

import "testing"

func TestOther_SetAffinityIsANoOp(t *testing.T) {
	a := New()
	if err := a.SetAffinity(3); err != nil {
		t.Fatalf("SetAffinity on the fallback implementation: %v", err)
	}
	cpus, err := a.GetAffinity()
	if err != nil || cpus != nil {
		t.Fatalf("GetAffinity() = (%v, %v), want (nil, nil)", cpus, err)
	}
}
