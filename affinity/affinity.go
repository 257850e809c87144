// Package affinity is the external CPU-affinity collaborator behind
// migrate_tcb: the core only tracks which logical CPU a thread is
// affine to (sched.Kernel.MigrateTCB); actually pinning the OS thread
// backing a simulated CPU to a physical core is this package's job, split
// by build tag the way the teacher splits its kernel-version detection
// between a real linux implementation and an unsupported-platform stub.
package affinity

// CPUAffinity pins the calling OS thread to a physical CPU. A simulation
// or test harness can run without ever constructing one; it only matters
// when a taskcoresim worker goroutine should track a particular
// sched.CPU 1:1 with a physical core.
type CPUAffinity interface {
	// SetAffinity pins the calling OS thread to cpuID.
	SetAffinity(cpuID int) error
	// GetAffinity returns the OS thread's current affinity mask as a
	// slice of CPU indices.
	GetAffinity() ([]int, error)
}
