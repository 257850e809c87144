package sched

import (
	"github.com/sirupsen/logrus"

	"github.com/sel4kernel/taskcore/bitmap"
	"github.com/sel4kernel/taskcore/mcs"
	"github.com/sel4kernel/taskcore/reply"
	"github.com/sel4kernel/taskcore/tcb"
	"github.com/sel4kernel/taskcore/tcbqueue"
	"github.com/sel4kernel/taskcore/tstate"
)

// idleSCBudget is the (effectively infinite, for simulation purposes)
// round-robin budget given to each CPU's idle scheduling context, so it is
// always refill-ready and sufficient.
const idleSCBudget = 1 << 40

// NewKernel constructs a Kernel with numCPUs per-CPU scheduler states,
// each sized for numPriorities priorities across numDomains domains, and
// creates an idle thread (and, under MCS, idle scheduling context) per
// CPU, installed as that CPU's current thread rather than enqueued. domSchedule defaults to DefaultDomainSchedule() if
// nil.
func NewKernel(numCPUs, numPriorities, numDomains int, mcsEnabled bool, domSchedule *DomainSchedule, timing mcs.Timing, log *logrus.Entry) *Kernel {
	if domSchedule == nil {
		domSchedule = DefaultDomainSchedule()
	}
	k := &Kernel{
		MCSEnabled:    mcsEnabled,
		SMP:           numCPUs > 1,
		NumPriorities: numPriorities,
		NumDomains:    numDomains,
		TCBs:          tcb.NewArena(),
		SCs:           mcs.NewArena(),
		Replies:       reply.NewArena(),
		Timing:        timing,
		log:           log,
	}
	for i := 0; i < numCPUs; i++ {
		k.CPUs = append(k.CPUs, k.newCPU(i, domSchedule))
	}
	return k
}

func (k *Kernel) newCPU(id int, domSchedule *DomainSchedule) *CPU {
	c := &CPU{
		id:          id,
		domSchedule: domSchedule,
		action:       Action{kind: ResumeCurrent},
		releaseQueue: mcs.NewReleaseQueue(),
		currentSC:    mcs.NoHandle,
		fpuOwner:     tcb.NoHandle,
	}
	c.readyQueues = make([][]tcbqueue.Queue, k.NumDomains)
	c.bitmaps = make([]*bitmap.Index, k.NumDomains)
	for d := 0; d < k.NumDomains; d++ {
		c.readyQueues[d] = make([]tcbqueue.Queue, k.NumPriorities)
		for p := range c.readyQueues[d] {
			c.readyQueues[d][p] = tcbqueue.New()
		}
		c.bitmaps[d] = bitmap.NewIndex(k.NumPriorities)
	}
	c.curDomain = domSchedule.entries[0].Domain
	c.domainTime = domSchedule.entries[0].Length

	idle := k.TCBs.New()
	t := k.TCBs.Get(idle)
	t.State = tstate.IdleThreadState
	t.Priority = 0
	t.Domain = c.curDomain
	t.Affinity = id
	t.Regs.ConfigureIdle()
	c.idle = idle
	c.current = idle

	if k.MCSEnabled {
		sc := k.SCs.New(2, idleSCBudget, 0, id, 0)
		_ = k.SCs.BindTCB(sc, idle, k.TCBs)
		c.currentSC = sc
	}
	return c
}
