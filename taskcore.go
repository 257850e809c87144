// Package taskcore is the root package: it assembles the sched, mcs,
// affinity and kernclock packages into a single buildable kernel whose
// methods satisfy metrics.Source, mirroring the teacher's own root package as a thin composition
// layer over its pkg/ subpackages.
package taskcore

import (
	"github.com/sirupsen/logrus"

	"github.com/sel4kernel/taskcore/affinity"
	"github.com/sel4kernel/taskcore/kernclock"
	"github.com/sel4kernel/taskcore/mcs"
	"github.com/sel4kernel/taskcore/sched"
)

// Config holds the compile-time-equivalent options a real kernel build
// would fix via Kconfig: kernel_mcs, enable_smp, the ready-queue/domain
// table sizes, and the refill timing constants. Built with functional
// options, the same constructor-with-options idiom as
// NewHTTPClientWithSockStats/NewTCPInfoCollector.
type Config struct {
	numCPUs       int
	numPriorities int
	numDomains    int
	mcs           bool
	domSchedule   *sched.DomainSchedule
	timing        mcs.Timing
	log           *logrus.Entry
	affinity      affinity.CPUAffinity
	clock         kernclock.Clock
}

// Option configures a Config.
type Option func(*Config)

// WithSMP enables multi-core simulation with nCPU per-CPU scheduler
// states. Single-CPU (nCPU=1) is the default.
func WithSMP(nCPU int) Option {
	return func(c *Config) { c.numCPUs = nCPU }
}

// WithMCS enables the Mixed-Criticality System extension: scheduling
// contexts, the release queue, and reply-object donation.
func WithMCS() Option {
	return func(c *Config) { c.mcs = true }
}

// WithNumPriorities overrides the default 256-priority ready-queue sizing.
func WithNumPriorities(n int) Option {
	return func(c *Config) { c.numPriorities = n }
}

// WithNumDomains overrides the default 16-domain sizing.
func WithNumDomains(n int) Option {
	return func(c *Config) { c.numDomains = n }
}

// WithDomainSchedule installs a custom domain rotation table in place of
// DefaultDomainSchedule().
func WithDomainSchedule(ds *sched.DomainSchedule) Option {
	return func(c *Config) { c.domSchedule = ds }
}

// WithTiming overrides the default refill timing constants (MIN_BUDGET,
// kernel WCET, MAX_RELEASE_TIME).
func WithTiming(t mcs.Timing) Option {
	return func(c *Config) { c.timing = t }
}

// WithLogger installs a *logrus.Entry on the scheduler. The scheduler
// writes no log lines through it; nil (the default) is safe.
func WithLogger(log *logrus.Entry) Option {
	return func(c *Config) { c.log = log }
}

// WithAffinity installs the CPU-affinity collaborator for pinning worker
// goroutines to physical cores, returned by Kernel.Affinity. Defaults to affinity.New(),
// the platform-appropriate implementation.
func WithAffinity(a affinity.CPUAffinity) Option {
	return func(c *Config) { c.affinity = a }
}

// WithClock installs the timer collaborator used to read wall-clock ticks
// and program the next deadline. Defaults to a kernclock.Fake, since a
// Kernel built without one is assumed to be test/simulation-driven via
// Kernel.AdvanceTime.
func WithClock(clk kernclock.Clock) Option {
	return func(c *Config) { c.clock = clk }
}

func defaultConfig() Config {
	return Config{
		numCPUs:       1,
		numPriorities: 256,
		numDomains:    16,
		timing:        mcs.DefaultTiming(),
		affinity:      affinity.New(),
		clock:         kernclock.NewFake(),
	}
}

// Kernel is a fully assembled task-management core: the scheduler plus
// its external collaborators (CPU affinity, wall-clock timer).
type Kernel struct {
	*sched.Kernel

	affinity affinity.CPUAffinity
	clock    kernclock.Clock
}

// New builds a Kernel from opts, applied over sane defaults (single CPU,
// 256 priorities, 16 domains, MCS disabled, the default domain schedule,
// default refill timing).
func New(opts ...Option) *Kernel {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	k := sched.NewKernel(cfg.numCPUs, cfg.numPriorities, cfg.numDomains, cfg.mcs, cfg.domSchedule, cfg.timing, cfg.log)
	return &Kernel{Kernel: k, affinity: cfg.affinity, clock: cfg.clock}
}

// Affinity returns the CPU-affinity collaborator this Kernel was built
// with.
func (k *Kernel) Affinity() affinity.CPUAffinity { return k.affinity }

// Clock returns the timer collaborator this Kernel was built with.
func (k *Kernel) Clock() kernclock.Clock { return k.clock }

// NumDomains and NumPriorities adapt sched.Kernel's public fields of the
// same name to the method shape metrics.Source requires.
func (k *Kernel) NumDomains() int    { return k.Kernel.NumDomains }
func (k *Kernel) NumPriorities() int { return k.Kernel.NumPriorities }
