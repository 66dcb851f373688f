package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// KeeperMetrics tracks the scheduled maintenance jobs run against the vault.
type KeeperMetrics struct {
	runs          *prometheus.CounterVec
	delegated     prometheus.Counter
	released      prometheus.Counter
	lastRun       *prometheus.GaugeVec
	indexedEvents prometheus.Counter
}

var (
	keeperOnce     sync.Once
	keeperRegistry *KeeperMetrics
)

func Keeper() *KeeperMetrics {
	keeperOnce.Do(func() {
		keeperRegistry = &KeeperMetrics{
			runs: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "keeper_job_runs_total",
				Help: "Count of keeper job executions by job and outcome.",
			}, []string{"job", "outcome"}),
			delegated: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "keeper_delegated_native_total",
				Help: "Native units moved into delegation by keeper batches.",
			}),
			released: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "keeper_unbonds_released_total",
				Help: "Unbonding entries released by keeper settlement runs.",
			}),
			lastRun: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "keeper_job_last_run_timestamp",
				Help: "Unix time of the last completed run per job.",
			}, []string{"job"}),
			indexedEvents: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "keeper_indexed_events_total",
				Help: "Committed events written to the event index.",
			}),
		}
		prometheus.MustRegister(
			keeperRegistry.runs,
			keeperRegistry.delegated,
			keeperRegistry.released,
			keeperRegistry.lastRun,
			keeperRegistry.indexedEvents,
		)
	})
	return keeperRegistry
}

func (m *KeeperMetrics) ObserveRun(job string, err error, at time.Time) {
	if m == nil {
		return
	}
	if job == "" {
		job = "unknown"
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.runs.WithLabelValues(job, outcome).Inc()
	m.lastRun.WithLabelValues(job).Set(float64(at.Unix()))
}

func (m *KeeperMetrics) AddDelegated(amount uint64) {
	if m == nil {
		return
	}
	m.delegated.Add(float64(amount))
}

func (m *KeeperMetrics) AddReleased(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.released.Add(float64(count))
}

func (m *KeeperMetrics) AddIndexed(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.indexedEvents.Add(float64(count))
}

func (m *KeeperMetrics) InitJob(job string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(job, "success").Add(0)
	m.runs.WithLabelValues(job, "error").Add(0)
}
