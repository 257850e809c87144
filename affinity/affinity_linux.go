//go:build linux
// +build linux

package affinity

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// Linux pins via unix.SchedSetaffinity/SchedGetaffinity against the
// calling thread (pid 0 means "this thread" to both syscalls). SetAffinity
// calls runtime.LockOSThread itself, so the calling goroutine stays on the
// OS thread it pinned; GetAffinity does not lock and reports the mask of
// whichever OS thread it runs on.
type Linux struct{}

// New returns the linux CPUAffinity implementation.
func New() CPUAffinity { return Linux{} }

func (Linux) SetAffinity(cpuID int) error {
	runtime.LockOSThread()
	var set unix.CPUSet
	set.Zero()
	set.Set(cpuID)
	return unix.SchedSetaffinity(0, &set)
}

// maxProbedCPU bounds the IsSet scan; CPUSet itself has no way to report
// its highest configured index.
const maxProbedCPU = 1024

func (Linux) GetAffinity() ([]int, error) {
	var set unix.CPUSet
	if err := unix.SchedGetaffinity(0, &set); err != nil {
		return nil, err
	}
	cpus := make([]int, 0, set.Count())
	for i := 0; i < maxProbedCPU && len(cpus) < set.Count(); i++ {
		if set.IsSet(i) {
			cpus = append(cpus, i)
		}
	}
	return cpus, nil
}
