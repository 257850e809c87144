//go:build !linux
// +build !linux

package affinity

// Other is the no-op fallback for platforms without a CPU-affinity
// syscall the simulation cares about. SetAffinity is a no-op rather than
// an error, since a taskcoresim run without true pinning is still a
// correct (if less deterministic) simulation.
type Other struct{}

// New returns the no-op CPUAffinity implementation for this platform.
func New() CPUAffinity { return Other{} }

func (Other) SetAffinity(int) error      { return nil }
func (Other) GetAffinity() ([]int, error) { return nil, nil }
