package main

import (
	"flag"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/sel4kernel/taskcore"
	"github.com/sel4kernel/taskcore/metrics"
)

func main() {
	mcsEnabled := flag.Bool("mcs", false, "enable the MCS scheduling-context extension")
	smp := flag.Int("smp", 1, "number of simulated CPUs")
	ticks := flag.Int("ticks", 200, "number of timer ticks to simulate")
	metricsAddr := flag.String("metrics-addr", "", "if set, serve Prometheus metrics on this address instead of exiting after the run")
	flag.Parse()

	log := logrus.NewEntry(logrus.StandardLogger())

	opts := []taskcore.Option{taskcore.WithSMP(*smp), taskcore.WithLogger(log)}
	if *mcsEnabled {
		opts = append(opts, taskcore.WithMCS())
	}
	k := taskcore.New(opts...)

	spawnWorkload(k, log)

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	collector := metrics.NewSchedulerCollector(k, prometheus.Labels{
		"app":      "taskcoresim",
		"hostname": hostname,
	})
	prometheus.MustRegister(collector)

	for tick := 0; tick < *ticks; tick++ {
		for cpu := 0; cpu < k.NumCPUs(); cpu++ {
			k.TimerTick(cpu)
			k.Schedule(cpu)
			k.ActivateThread(cpu)
		}
		if *mcsEnabled {
			for cpu := 0; cpu < k.NumCPUs(); cpu++ {
				k.AdvanceTime(cpu, 1)
			}
		}
	}

	log.Infof("simulated %d ticks across %d CPU(s): %d context switches on CPU0", *ticks, k.NumCPUs(), k.ContextSwitches(0))

	if *metricsAddr == "" {
		return
	}
	http.Handle("/metrics", promhttp.Handler())
	log.Infof("serving metrics on %s/metrics", *metricsAddr)
	if err := http.ListenAndServe(*metricsAddr, nil); err != nil {
		log.Fatalf("serve: %v", err)
	}
}

// spawnWorkload creates a handful of runnable threads across a spread of
// priorities so the simulated run has something to schedule.
func spawnWorkload(k *taskcore.Kernel, log *logrus.Entry) {
	priorities := []int{10, 10, 100, 200, 250}
	for i, prio := range priorities {
		h := k.TCBs.New()
		t := k.TCBs.Get(h)
		t.Priority = prio
		t.MCP = prio
		t.Affinity = i % k.NumCPUs()

		// Restart before binding a scheduling context: under MCS the thread
		// is not actually schedulable until it has one, so this transitions
		// the state without yet touching the ready queue; BindSC's own
		// possible_switch_to is what places it once it has budget to run.
		k.Restart(t.Affinity, h)

		if k.MCSEnabled {
			sc := k.NewSchedContext(3, 20, 100, t.Affinity)
			if err := k.BindSC(t.Affinity, sc, h); err != nil {
				log.Warnf("bind scheduling context for thread %d: %v", h, err)
			}
		}

		log.Debugf("spawned thread %s at priority %d on cpu %d", t.DebugID(), prio, t.Affinity)
	}
}
