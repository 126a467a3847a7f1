// Package metrics implements the Metrics port on Prometheus collectors.
package metrics

import (
	"time"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ericfisherdev/passvault/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.Metrics = (*Prometheus)(nil)

// Prometheus records call, storage and refund metrics.
type Prometheus struct {
	calls         *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	storageBytes  *prometheus.CounterVec
	refunds       *prometheus.CounterVec
	refundedUnits *prometheus.CounterVec
}

// NewPrometheus creates the collectors and registers them with reg.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	p := &Prometheus{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "passvault",
			Subsystem: "accounts",
			Name:      "calls_total",
			Help:      "Account manager calls segmented by operation and outcome.",
		}, []string{"op", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "passvault",
			Subsystem: "accounts",
			Name:      "call_duration_seconds",
			Help:      "Latency distribution of account manager calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		storageBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "passvault",
			Subsystem: "storage",
			Name:      "bytes_total",
			Help:      "Bytes of state consumed or released by committed calls.",
		}, []string{"op", "direction"}),
		refunds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "passvault",
			Subsystem: "refunds",
			Name:      "issued_total",
			Help:      "Refund transfers issued, by reason.",
		}, []string{"reason"}),
		refundedUnits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "passvault",
			Subsystem: "refunds",
			Name:      "units_total",
			Help:      "Approximate amount refunded, by reason. Float precision only.",
		}, []string{"reason"}),
	}
	reg.MustRegister(p.calls, p.latency, p.storageBytes, p.refunds, p.refundedUnits)
	return p
}

// ObserveCall implements driven.Metrics.
func (p *Prometheus) ObserveCall(op, outcome string, elapsed time.Duration) {
	p.calls.WithLabelValues(op, outcome).Inc()
	p.latency.WithLabelValues(op).Observe(elapsed.Seconds())
}

// ObserveStorage implements driven.Metrics.
func (p *Prometheus) ObserveStorage(op string, deltaBytes int64) {
	switch {
	case deltaBytes > 0:
		p.storageBytes.WithLabelValues(op, "consumed").Add(float64(deltaBytes))
	case deltaBytes < 0:
		p.storageBytes.WithLabelValues(op, "released").Add(float64(-deltaBytes))
	}
}

// ObserveRefund implements driven.Metrics.
func (p *Prometheus) ObserveRefund(reason string, amount *uint256.Int) {
	p.refunds.WithLabelValues(reason).Inc()
	p.refundedUnits.WithLabelValues(reason).Add(amount.Float64())
}
