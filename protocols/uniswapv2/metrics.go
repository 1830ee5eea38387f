package uniswapv2

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Metrics instruments the engine's operations. One instance is shared by a
// factory and all pairs it creates.
type Metrics struct {
	ops        *prometheus.CounterVec
	opDuration *prometheus.HistogramVec
	pools      prometheus.Gauge
}

// NewMetrics registers the engine's collectors on the given registry.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "amm_engine",
			Name:      "operations_total",
			Help:      "Engine operations by type and result.",
		}, []string{"op", "result"}),
		opDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "amm_engine",
			Name:      "operation_duration_seconds",
			Help:      "Latency of engine operations.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
		}, []string{"op"}),
		pools: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "amm_engine",
			Name:      "pools",
			Help:      "Number of pools in the registry.",
		}),
	}
	registry.MustRegister(m.ops, m.opDuration, m.pools)
	return m
}

// observe records one operation outcome.
func (m *Metrics) observe(op string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.ops.WithLabelValues(op, result).Inc()
	m.opDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
