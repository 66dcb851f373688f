package observability

import (
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
)

type vaultMetrics struct {
	operations *prometheus.CounterVec
	errors     *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	collateral prometheus.Gauge
	debt       prometheus.Gauge
	delegated  prometheus.Gauge
	pending    prometheus.Gauge
}

var (
	vaultMetricsOnce sync.Once
	vaultRegistry    *vaultMetrics
)

// Vault returns the lazily-initialised registry tracking vault operations and
// ledger totals.
func Vault() *vaultMetrics {
	vaultMetricsOnce.Do(func() {
		vaultRegistry = &vaultMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stakevault",
				Subsystem: "vault",
				Name:      "operations_total",
				Help:      "Vault operations segmented by operation and outcome.",
			}, []string{"op", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stakevault",
				Subsystem: "vault",
				Name:      "errors_total",
				Help:      "Failed vault operations segmented by operation and error code.",
			}, []string{"op", "code"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "stakevault",
				Subsystem: "vault",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for vault operations including commit.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"op"}),
			collateral: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "stakevault",
				Subsystem: "vault",
				Name:      "total_collateral_native",
				Help:      "Total collateral held by the vault in whole native coins.",
			}),
			debt: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "stakevault",
				Subsystem: "vault",
				Name:      "total_debt_tokens",
				Help:      "Total outstanding debt in whole debt tokens.",
			}),
			delegated: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "stakevault",
				Subsystem: "vault",
				Name:      "total_delegated_native",
				Help:      "Collateral currently delegated to the validator.",
			}),
			pending: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "stakevault",
				Subsystem: "vault",
				Name:      "pending_delegation_native",
				Help:      "Collateral queued for the next delegation batch.",
			}),
		}
		prometheus.MustRegister(
			vaultRegistry.operations,
			vaultRegistry.errors,
			vaultRegistry.latency,
			vaultRegistry.collateral,
			vaultRegistry.debt,
			vaultRegistry.delegated,
			vaultRegistry.pending,
		)
	})
	return vaultRegistry
}

// Observe records the outcome of one operation. An empty code marks success.
func (m *vaultMetrics) Observe(op, code string, duration time.Duration) {
	if m == nil {
		return
	}
	op = normalizeLabel(op)
	outcome := "success"
	if code != "" {
		outcome = "error"
		m.errors.WithLabelValues(op, code).Inc()
	}
	m.operations.WithLabelValues(op, outcome).Inc()
	if duration > 0 {
		m.latency.WithLabelValues(op).Observe(duration.Seconds())
	}
}

// LedgerTotals is the snapshot published to the gauges.
type LedgerTotals struct {
	Collateral *uint256.Int
	Debt       *uint256.Int
	Delegated  *uint256.Int
	Pending    *uint256.Int
}

// SetTotals publishes ledger totals. Native amounts are scaled by 1e9 and
// debt by 1e18.
func (m *vaultMetrics) SetTotals(t LedgerTotals) {
	if m == nil {
		return
	}
	m.collateral.Set(scaled(t.Collateral, 9))
	m.debt.Set(scaled(t.Debt, 18))
	m.delegated.Set(scaled(t.Delegated, 9))
	m.pending.Set(scaled(t.Pending, 9))
}

func scaled(v *uint256.Int, decimals int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v.ToBig()).Float64()
	return f / math.Pow10(decimals)
}

func normalizeLabel(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "unknown"
	}
	return v
}
