// Package metrics exposes a sched.Kernel's live state as Prometheus
// metrics, in the same Describe/Collect shape as pkg/exporter/exporter.go:
// a fixed list of (descriptor, supplier) pairs walked once per scrape
// rather than a registry of independently-updated gauges, since the
// kernel's ready queues and bitmaps are themselves the source of truth.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Source is the subset of sched.Kernel's read-only introspection surface
// the collector needs. Kept narrow and interface-typed so tests can
// supply a fake without constructing a full Kernel.
type Source interface {
	NumCPUs() int
	NumDomains() int
	NumPriorities() int
	ReadyQueueDepth(cpu, domain, prio int) int
	BitmapOccupancy(cpu, domain int) int
	ReleaseQueueLength(cpu int) int
	ContextSwitches(cpu int) uint64
	IPIsDispatched(cpu int) uint64
	RefillBudget(cpu int) (used, total uint64)
}

// SchedulerCollector implements prometheus.Collector over a Source, one
// per Kernel.
type SchedulerCollector struct {
	src Source

	readyDepth      *prometheus.Desc
	bitmapOcc       *prometheus.Desc
	releaseLen      *prometheus.Desc
	ctxSwitches     *prometheus.Desc
	ipiDispatched   *prometheus.Desc
	refillBudget    *prometheus.Desc
	refillRemaining *prometheus.Desc
}

// NewSchedulerCollector builds a collector reading from src. constLabels
// is meant for labels constant for the process lifetime (e.g. instance
// id), mirroring NewTCPInfoCollector's constLabels parameter.
func NewSchedulerCollector(src Source, constLabels prometheus.Labels) *SchedulerCollector {
	return &SchedulerCollector{
		src: src,
		readyDepth: prometheus.NewDesc(
			"taskcore_ready_queue_depth",
			"Number of runnable threads queued at a given CPU/domain/priority.",
			[]string{"cpu", "domain", "priority"}, constLabels),
		bitmapOcc: prometheus.NewDesc(
			"taskcore_bitmap_occupied_priorities",
			"Count of priorities with a non-empty ready queue in a CPU's domain, per the two-tier bitmap index.",
			[]string{"cpu", "domain"}, constLabels),
		releaseLen: prometheus.NewDesc(
			"taskcore_release_queue_length",
			"Number of scheduling contexts currently parked in a CPU's MCS release queue.",
			[]string{"cpu"}, constLabels),
		ctxSwitches: prometheus.NewDesc(
			"taskcore_context_switches_total",
			"Cumulative count of thread context switches performed on a CPU.",
			[]string{"cpu"}, constLabels),
		ipiDispatched: prometheus.NewDesc(
			"taskcore_reschedule_ipis_total",
			"Cumulative count of cross-core reschedule IPIs dispatched targeting a CPU.",
			[]string{"cpu"}, constLabels),
		refillBudget: prometheus.NewDesc(
			"taskcore_refill_budget_used_ticks",
			"Ticks consumed from the currently-running scheduling context's budget on a CPU.",
			[]string{"cpu"}, constLabels),
		refillRemaining: prometheus.NewDesc(
			"taskcore_refill_budget_total_ticks",
			"Total ticks available in the currently-running scheduling context's budget on a CPU.",
			[]string{"cpu"}, constLabels),
	}
}

func (c *SchedulerCollector) Describe(descs chan<- *prometheus.Desc) {
	descs <- c.readyDepth
	descs <- c.bitmapOcc
	descs <- c.releaseLen
	descs <- c.ctxSwitches
	descs <- c.ipiDispatched
	descs <- c.refillBudget
	descs <- c.refillRemaining
}

func (c *SchedulerCollector) Collect(metrics chan<- prometheus.Metric) {
	for cpu := 0; cpu < c.src.NumCPUs(); cpu++ {
		cpuLabel := strconv.Itoa(cpu)

		for domain := 0; domain < c.src.NumDomains(); domain++ {
			domainLabel := strconv.Itoa(domain)
			metrics <- prometheus.MustNewConstMetric(c.bitmapOcc, prometheus.GaugeValue,
				float64(c.src.BitmapOccupancy(cpu, domain)), cpuLabel, domainLabel)
			for prio := 0; prio < c.src.NumPriorities(); prio++ {
				if depth := c.src.ReadyQueueDepth(cpu, domain, prio); depth > 0 {
					metrics <- prometheus.MustNewConstMetric(c.readyDepth, prometheus.GaugeValue,
						float64(depth), cpuLabel, domainLabel, strconv.Itoa(prio))
				}
			}
		}

		metrics <- prometheus.MustNewConstMetric(c.releaseLen, prometheus.GaugeValue,
			float64(c.src.ReleaseQueueLength(cpu)), cpuLabel)
		metrics <- prometheus.MustNewConstMetric(c.ctxSwitches, prometheus.CounterValue,
			float64(c.src.ContextSwitches(cpu)), cpuLabel)
		metrics <- prometheus.MustNewConstMetric(c.ipiDispatched, prometheus.CounterValue,
			float64(c.src.IPIsDispatched(cpu)), cpuLabel)

		used, total := c.src.RefillBudget(cpu)
		metrics <- prometheus.MustNewConstMetric(c.refillBudget, prometheus.GaugeValue, float64(used), cpuLabel)
		metrics <- prometheus.MustNewConstMetric(c.refillRemaining, prometheus.GaugeValue, float64(total), cpuLabel)
	}
}

var _ prometheus.Collector = (*SchedulerCollector)(nil)
