package observability

import (
	"math"
	"math/big"
	"strconv"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "nhb"

func counter(subsystem, name, help string, labels ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: subsystem, Name: name, Help: help,
	}, labels)
}

func gauge(subsystem, name, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: subsystem, Name: name, Help: help,
	})
}

func histogram(subsystem, name, help string, labels ...string) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: subsystem, Name: name, Help: help,
		Buckets: prometheus.DefBuckets,
	}, labels)
}

// APIMetrics records HTTP surface activity.
type APIMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

// VaultMetrics records engine activity. It satisfies vault.Metrics.
type VaultMetrics struct {
	operations *prometheus.CounterVec
	rejections *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	totalValue prometheus.Gauge
	paused     prometheus.Gauge
	priceAge   prometheus.Gauge
}

var (
	apiOnce    sync.Once
	apiMetrics *APIMetrics

	vaultOnce    sync.Once
	vaultMetrics *VaultMetrics
)

// API returns the process-wide HTTP metrics, registering them on first use.
func API() *APIMetrics {
	apiOnce.Do(func() {
		apiMetrics = &APIMetrics{
			requests:  counter("api", "requests_total", "API requests by route and outcome.", "route", "outcome"),
			errors:    counter("api", "errors_total", "API errors by route and status code.", "route", "status"),
			latency:   histogram("api", "request_duration_seconds", "API handler latency.", "route"),
			throttles: counter("api", "throttles_total", "Requests rejected by the rate limiter.", "reason"),
		}
		prometheus.MustRegister(apiMetrics.requests, apiMetrics.errors, apiMetrics.latency, apiMetrics.throttles)
	})
	return apiMetrics
}

// Observe records a finished request. status is the code written to the
// client.
func (m *APIMetrics) Observe(route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
		m.errors.WithLabelValues(route, strconv.Itoa(status)).Inc()
	}
	m.requests.WithLabelValues(route, outcome).Inc()
	m.latency.WithLabelValues(route).Observe(elapsed.Seconds())
}

// RecordThrottle counts a request refused by a throttling policy.
func (m *APIMetrics) RecordThrottle(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(reason).Inc()
}

// Vault returns the process-wide engine metrics.
func Vault() *VaultMetrics {
	vaultOnce.Do(func() {
		vaultMetrics = &VaultMetrics{
			operations: counter("vault", "operations_total", "Vault operations by operation and outcome.", "op", "outcome"),
			rejections: counter("vault", "rejections_total", "Aborted vault operations by error code.", "op", "reason"),
			duration:   histogram("vault", "operation_duration_seconds", "Vault operation latency including custody calls.", "op"),
			totalValue: gauge("vault", "total_value_usd6", "Recorded total value held, in USD6 units."),
			paused:     gauge("vault", "paused", "1 while the vault is paused."),
			priceAge:   gauge("vault", "oracle_price_age_seconds", "Age of the last oracle report consumed."),
		}
		prometheus.MustRegister(
			vaultMetrics.operations,
			vaultMetrics.rejections,
			vaultMetrics.duration,
			vaultMetrics.totalValue,
			vaultMetrics.paused,
			vaultMetrics.priceAge,
		)
	})
	return vaultMetrics
}

func (m *VaultMetrics) ObserveOperation(op, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, outcome).Inc()
	m.duration.WithLabelValues(op).Observe(elapsed.Seconds())
}

func (m *VaultMetrics) ObserveRejection(op, reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.rejections.WithLabelValues(op, reason).Inc()
}

func (m *VaultMetrics) SetTotalValue(usd6 *uint256.Int) {
	if m == nil || usd6 == nil {
		return
	}
	m.totalValue.Set(bigToFloat(usd6.ToBig()))
}

func (m *VaultMetrics) SetPaused(paused bool) {
	if m == nil {
		return
	}
	var v float64
	if paused {
		v = 1
	}
	m.paused.Set(v)
}

func (m *VaultMetrics) ObservePriceAge(age time.Duration) {
	if m == nil {
		return
	}
	m.priceAge.Set(age.Seconds())
}

// bigToFloat is lossy above 2^53; NaN and Inf collapse to zero.
func bigToFloat(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(value).Float64()
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}
