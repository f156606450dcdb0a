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

type lpstakeMetrics struct {
	instructions   *prometheus.CounterVec
	latency        *prometheus.HistogramVec
	accPerShare    *prometheus.GaugeVec
	vaultBalance   *prometheus.GaugeVec
	totalStaked    *prometheus.GaugeVec
	totalDeposited *prometheus.GaugeVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	lpstakeMetricsOnce sync.Once
	lpstakeRegistry    *lpstakeMetrics
)

// ModuleMetrics returns the lazily-initialised registry used to record HTTP
// API activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lpstake",
				Subsystem: "api",
				Name:      "requests_total",
				Help:      "Total API requests segmented by route and outcome.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lpstake",
				Subsystem: "api",
				Name:      "errors_total",
				Help:      "Total API errors segmented by route and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "lpstake",
				Subsystem: "api",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for API handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lpstake",
				Subsystem: "api",
				Name:      "throttles_total",
				Help:      "Count of API requests rejected by the rate limiter.",
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

// Observe records the outcome of an API request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *moduleMetrics) Observe(module, method string, status int, duration time.Duration) {
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
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", status)).Inc()
	}
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

// LPStake returns the singleton registry for instruction processing.
func LPStake() *lpstakeMetrics {
	lpstakeMetricsOnce.Do(func() {
		lpstakeRegistry = &lpstakeMetrics{
			instructions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lpstake",
				Subsystem: "engine",
				Name:      "instructions_total",
				Help:      "Instructions processed segmented by kind and outcome.",
			}, []string{"instruction", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "lpstake",
				Subsystem: "engine",
				Name:      "instruction_duration_seconds",
				Help:      "Time spent executing and committing an instruction.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"instruction"}),
			accPerShare: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "lpstake",
				Subsystem: "pool",
				Name:      "acc_reward_per_share",
				Help:      "Accumulated reward per staked share divided by the fixed-point scale.",
			}, []string{"pool"}),
			vaultBalance: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "lpstake",
				Subsystem: "pool",
				Name:      "vault_balance",
				Help:      "Reward vault balance in base units.",
			}, []string{"pool"}),
			totalStaked: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "lpstake",
				Subsystem: "pool",
				Name:      "total_staked",
				Help:      "Pool shares currently staked.",
			}, []string{"pool"}),
			totalDeposited: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "lpstake",
				Subsystem: "pool",
				Name:      "total_deposited",
				Help:      "Collateral held by the pool in base units.",
			}, []string{"pool"}),
		}
		prometheus.MustRegister(
			lpstakeRegistry.instructions,
			lpstakeRegistry.latency,
			lpstakeRegistry.accPerShare,
			lpstakeRegistry.vaultBalance,
			lpstakeRegistry.totalStaked,
			lpstakeRegistry.totalDeposited,
		)
	})
	return lpstakeRegistry
}

// ObserveInstruction records an instruction outcome labelled by its error
// code. An empty code counts as success.
func (m *lpstakeMetrics) ObserveInstruction(kind, code string, duration time.Duration) {
	if m == nil {
		return
	}
	kind = strings.TrimSpace(kind)
	if kind == "" {
		kind = "unknown"
	}
	if code == "" {
		code = "ok"
	}
	m.instructions.WithLabelValues(kind, code).Inc()
	m.latency.WithLabelValues(kind).Observe(duration.Seconds())
}

// PoolSnapshot carries the gauge values published for one pool.
type PoolSnapshot struct {
	Pool              string
	AccRewardPerShare float64
	VaultBalance      uint64
	TotalStaked       uint64
	TotalDeposited    uint64
}

// RecordPool publishes the gauges for a pool after a committed instruction.
func (m *lpstakeMetrics) RecordPool(s PoolSnapshot) {
	if m == nil || s.Pool == "" {
		return
	}
	m.accPerShare.WithLabelValues(s.Pool).Set(s.AccRewardPerShare)
	m.vaultBalance.WithLabelValues(s.Pool).Set(float64(s.VaultBalance))
	m.totalStaked.WithLabelValues(s.Pool).Set(float64(s.TotalStaked))
	m.totalDeposited.WithLabelValues(s.Pool).Set(float64(s.TotalDeposited))
}
