package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

type fakeSource struct {
	numCPUs, numDomains, numPriorities int
	readyDepth                         map[[3]int]int
	bitmapOcc                          map[[2]int]int
	releaseLen                         map[int]int
	ctxSwitches, ipiDispatched         map[int]uint64
	refillUsed, refillTotal            map[int]uint64
}

func (f *fakeSource) NumCPUs() int       { return f.numCPUs }
func (f *fakeSource) NumDomains() int    { return f.numDomains }
func (f *fakeSource) NumPriorities() int { return f.numPriorities }
func (f *fakeSource) ReadyQueueDepth(cpu, domain, prio int) int {
	return f.readyDepth[[3]int{cpu, domain, prio}]
}
func (f *fakeSource) BitmapOccupancy(cpu, domain int) int { return f.bitmapOcc[[2]int{cpu, domain}] }
func (f *fakeSource) ReleaseQueueLength(cpu int) int      { return f.releaseLen[cpu] }
func (f *fakeSource) ContextSwitches(cpu int) uint64      { return f.ctxSwitches[cpu] }
func (f *fakeSource) IPIsDispatched(cpu int) uint64       { return f.ipiDispatched[cpu] }
func (f *fakeSource) RefillBudget(cpu int) (used, total uint64) {
	return f.refillUsed[cpu], f.refillTotal[cpu]
}

func drain(c *SchedulerCollector) []prometheus.Metric {
	ch := make(chan prometheus.Metric, 64)
	go func() {
		c.Collect(ch)
		close(ch)
	}()
	var out []prometheus.Metric
	for m := range ch {
		out = append(out, m)
	}
	return out
}

func TestCollect_SkipsEmptyReadyQueues(t *testing.T) {
	src := &fakeSource{
		numCPUs: 1, numDomains: 1, numPriorities: 3,
		readyDepth: map[[3]int]int{{0, 0, 1}: 2},
	}
	c := NewSchedulerCollector(src, nil)
	metrics := drain(c)

	readyCount := 0
	for _, m := range metrics {
		var pb dto.Metric
		if err := m.Write(&pb); err != nil {
			t.Fatalf("Write: %v", err)
		}
		if m.Desc().String() == c.readyDepth.String() {
			readyCount++
		}
	}
	if readyCount != 1 {
		t.Fatalf("emitted %d ready-depth series, want 1 (priorities 0 and 2 are empty)", readyCount)
	}
}

func TestCollect_EmitsFixedSeriesPerCPU(t *testing.T) {
	src := &fakeSource{
		numCPUs: 2, numDomains: 1, numPriorities: 0,
		releaseLen:    map[int]int{0: 1, 1: 3},
		ctxSwitches:   map[int]uint64{0: 10, 1: 20},
		ipiDispatched: map[int]uint64{0: 1, 1: 2},
		refillUsed:    map[int]uint64{0: 5, 1: 6},
		refillTotal:   map[int]uint64{0: 20, 1: 20},
	}
	c := NewSchedulerCollector(src, nil)
	metrics := drain(c)

	// Per CPU: 1 bitmap-occupancy (domain 0) + release + ctxSwitches + ipi +
	// refillBudget + refillRemaining = 6, times 2 CPUs = 12.
	if len(metrics) != 12 {
		t.Fatalf("emitted %d metrics, want 12", len(metrics))
	}
}

func TestCollect_ValuesMatchSource(t *testing.T) {
	src := &fakeSource{
		numCPUs: 1, numDomains: 1, numPriorities: 0,
		releaseLen:    map[int]int{0: 4},
		ctxSwitches:   map[int]uint64{0: 99},
		ipiDispatched: map[int]uint64{0: 7},
		refillUsed:    map[int]uint64{0: 3},
		refillTotal:   map[int]uint64{0: 15},
	}
	c := NewSchedulerCollector(src, nil)

	got := map[string]float64{}
	for _, m := range drain(c) {
		var pb dto.Metric
		if err := m.Write(&pb); err != nil {
			t.Fatalf("Write: %v", err)
		}
		switch {
		case pb.Counter != nil:
			got[m.Desc().String()] = pb.Counter.GetValue()
		case pb.Gauge != nil:
			got[m.Desc().String()] = pb.Gauge.GetValue()
		}
	}

	if v := got[c.releaseLen.String()]; v != 4 {
		t.Fatalf("releaseLen = %v, want 4", v)
	}
	if v := got[c.ctxSwitches.String()]; v != 99 {
		t.Fatalf("ctxSwitches = %v, want 99", v)
	}
	if v := got[c.ipiDispatched.String()]; v != 7 {
		t.Fatalf("ipiDispatched = %v, want 7", v)
	}
	if v := got[c.refillBudget.String()]; v != 3 {
		t.Fatalf("refillBudget = %v, want 3", v)
	}
	if v := got[c.refillRemaining.String()]; v != 15 {
		t.Fatalf("refillRemaining = %v, want 15", v)
	}
}

var _ Source = (*fakeSource)(nil)
