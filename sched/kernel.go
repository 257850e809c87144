// Package sched implements the scheduler: per-CPU ready queues and their
// bitmap index, the idle thread, the schedule()/possible_switch_to()
// decision logic, timer-tick time-slicing, domain rotation, and (when MCS
// is enabled) the release queue and refill-driven preemption hooks. It is
// the top of the dependency graph: it imports tcb, mcs, reply, bitmap and
// tcbqueue, and none of those import it back.
package sched

import (
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"

	"github.com/sel4kernel/taskcore/bitmap"
	"github.com/sel4kernel/taskcore/internal/kassert"
	"github.com/sel4kernel/taskcore/mcs"
	"github.com/sel4kernel/taskcore/reply"
	"github.com/sel4kernel/taskcore/tcb"
	"github.com/sel4kernel/taskcore/tcbqueue"
)

// Action is the scheduler's decision for what runs next at the end of the
// current kernel entry.
type Action struct {
	kind      actionKind
	candidate tcb.Handle
}

type actionKind uint8

const (
	ResumeCurrent actionKind = iota
	ChooseNew
	SwitchToCandidate
)

// DomainScheduleEntry is one slot of the static domain rotation table.
type DomainScheduleEntry struct {
	Domain int
	Length uint64
}

// DomainSchedule is a validated, non-empty domain rotation table.
type DomainSchedule struct {
	entries []DomainScheduleEntry
}

// NewDomainSchedule validates and wraps entries: the schedule must be
// non-empty and every entry's Length must be positive, mirroring the boot
// assertion in the upstream scheduler.
func NewDomainSchedule(entries ...DomainScheduleEntry) (*DomainSchedule, error) {
	if len(entries) == 0 {
		return nil, errEmptyDomainSchedule
	}
	for i, e := range entries {
		if e.Length == 0 {
			return nil, errZeroLengthDomain(i)
		}
	}
	cp := make([]DomainScheduleEntry, len(entries))
	copy(cp, entries)
	return &DomainSchedule{entries: cp}, nil
}

// DefaultDomainSchedule is the single-domain default: {0, 60}.
func DefaultDomainSchedule() *DomainSchedule {
	ds, err := NewDomainSchedule(DomainScheduleEntry{Domain: 0, Length: 60})
	kassert.Invariant(err == nil, "sched: default domain schedule failed validation: %v", err)
	return ds
}

// CPU is one core's worth of scheduler state. In non-SMP builds a Kernel
// has exactly one CPU. In SMP builds another CPU's ready queues are
// written directly (SchedEnqueue, PossibleSwitchTo), and each CPU's
// pendingIPI flag records a reschedule request made against it.
type CPU struct {
	id int

	readyQueues [][]tcbqueue.Queue // indexed [domain][priority]
	bitmaps     []*bitmap.Index    // indexed [domain]

	current tcb.Handle
	idle    tcb.Handle
	action  Action

	domSchedule   *DomainSchedule
	domScheduleIdx int
	curDomain     int
	domainTime    uint64
	domainWorkUnits uint64

	// MCS per-CPU state.
	releaseQueue mcs.ReleaseQueue
	consumed     atomic.Uint64 // ksConsumed
	now          uint64        // current-time snapshot
	reprogram    bool
	currentSC    mcs.Handle

	pendingIPI atomic.Bool // reschedule IPI requested against this CPU by a remote core

	fpuOwner tcb.Handle // lazy FPU switch: the thread whose state is currently loaded, tcb.NoHandle if none

	contextSwitches atomic.Uint64
	ipisDispatched  atomic.Uint64
}

// Kernel owns every arena and every CPU's scheduler state. It is the
// single entry point for all scheduling operations.
type Kernel struct {
	MCSEnabled bool
	SMP        bool

	NumPriorities int
	NumDomains    int

	TCBs    *tcb.Arena
	SCs     *mcs.Arena
	Replies *reply.Arena

	CPUs []*CPU

	Timing mcs.Timing

	log           *logrus.Entry
	ipiSender     IPISender
	fpuController FPUController
	epRequeuer    EPRequeuer
}

func (k *Kernel) logger() *logrus.Entry {
	if k.log == nil {
		return logrus.NewEntry(logrus.StandardLogger())
	}
	return k.log
}

// sched accessor: ready queues thread TCBs through sched_prev/next.
func (k *Kernel) schedAccessor() tcb.SchedAccessor { return tcb.SchedAccessor{A: k.TCBs} }

func (k *Kernel) cpu(id int) *CPU {
	kassert.Invariant(id >= 0 && id < len(k.CPUs), "sched: cpu %d out of range (n=%d)", id, len(k.CPUs))
	return k.CPUs[id]
}

func (k *Kernel) queue(c *CPU, domain, prio int) *tcbqueue.Queue {
	return &c.readyQueues[domain][prio]
}
