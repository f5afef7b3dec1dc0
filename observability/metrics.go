package observability

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	stakingMetricsOnce sync.Once
	stakingRegistry    *StakingMetrics
)

// ModuleMetrics returns the lazily-initialised module metrics registry used to
// record RPC module activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lsd",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total JSON-RPC requests segmented by module and method.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lsd",
				Subsystem: "rpc",
				Name:      "errors_total",
				Help:      "Total JSON-RPC errors segmented by module, method, and error code.",
			}, []string{"module", "method", "code"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "lsd",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lsd",
				Subsystem: "rpc",
				Name:      "throttles_total",
				Help:      "Count of requests rejected due to throttling policies.",
			}, []string{"module", "reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of a JSON-RPC request. A zero code means the
// handler wrote a result.
func (m *moduleMetrics) Observe(module, method string, code int, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if code != 0 {
		outcome = "error"
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", code)).Inc()
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied module and
// reason. Reasons should be stable strings such as "rate_limit".
func (m *moduleMetrics) RecordThrottle(module, reason string) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(module, reason).Inc()
}

// StakingMetrics tracks entry point outcomes and the protocol aggregates.
type StakingMetrics struct {
	calls       *prometheus.CounterVec
	volume      *prometheus.CounterVec
	totalStaked prometheus.Gauge
	totalSupply prometheus.Gauge
}

// Staking returns the staking metrics registry.
func Staking() *StakingMetrics {
	stakingMetricsOnce.Do(func() {
		stakingRegistry = &StakingMetrics{
			calls: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lsd",
				Subsystem: "staking",
				Name:      "calls_total",
				Help:      "Signed calls processed segmented by operation and outcome.",
			}, []string{"op", "outcome"}),
			volume: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lsd",
				Subsystem: "staking",
				Name:      "volume_total",
				Help:      "Amount moved by successful calls segmented by operation.",
			}, []string{"op"}),
			totalStaked: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "lsd",
				Subsystem: "staking",
				Name:      "total_staked",
				Help:      "Sum of all stake positions.",
			}),
			totalSupply: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "lsd",
				Subsystem: "staking",
				Name:      "total_supply",
				Help:      "Outstanding receipt token supply.",
			}),
		}
		prometheus.MustRegister(
			stakingRegistry.calls,
			stakingRegistry.volume,
			stakingRegistry.totalStaked,
			stakingRegistry.totalSupply,
		)
	})
	return stakingRegistry
}

// RecordCall records the outcome of one call. Outcome should be "success" or a
// stable error reason such as "lock_period".
func (m *StakingMetrics) RecordCall(op, outcome string, amount uint64) {
	if m == nil {
		return
	}
	op = strings.TrimSpace(op)
	if op == "" {
		op = "unknown"
	}
	if outcome == "" {
		outcome = "unspecified"
	}
	m.calls.WithLabelValues(op, outcome).Inc()
	if outcome == "success" && amount > 0 {
		m.volume.WithLabelValues(op).Add(float64(amount))
	}
}

// SetTotals publishes the latest aggregates.
func (m *StakingMetrics) SetTotals(staked, supply uint64) {
	if m == nil {
		return
	}
	m.totalStaked.Set(float64(staked))
	m.totalSupply.Set(float64(supply))
}
