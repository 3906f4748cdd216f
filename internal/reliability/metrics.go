package reliability

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles the Prometheus collectors the Broker Publisher, Consumer Runtime and
// Expiry Scheduler increment as events are tagged with a failure class. OpenAllocationsGauge
// is registered but not set anywhere in this repository, so it stays at 0.
type Metrics struct {
	FailuresTotal          *prometheus.CounterVec
	ExpiredAllocations     prometheus.Counter
	AllocationDriftTotal   prometheus.Counter
	OpenAllocationsGauge   prometheus.Gauge
}

// NewMetrics registers the reliability collectors against reg. Pass prometheus.NewRegistry()
// in tests to avoid colliding with the default registry across package-level test runs.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "creditcore",
			Name:      "event_failures_total",
			Help:      "Count of outbound events whose acknowledgment came back failed, by class.",
		}, []string{"class"}),
		ExpiredAllocations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "creditcore",
			Name:      "expired_allocations_total",
			Help:      "Count of seasonal allocations transitioned to expired by the scheduler.",
		}),
		AllocationDriftTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "creditcore",
			Name:      "allocation_drift_total",
			Help:      "Count of expiry sweeps where deducted balance differed from unused credits.",
		}),
		OpenAllocationsGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "creditcore",
			Name:      "open_allocations",
			Help:      "Allocations currently active and not yet expired.",
		}),
	}

	reg.MustRegister(m.FailuresTotal, m.ExpiredAllocations, m.AllocationDriftTotal, m.OpenAllocationsGauge)

	return m
}

// Record increments the failure counter for class.
func (m *Metrics) Record(class FailureClass) {
	m.FailuresTotal.WithLabelValues(string(class)).Inc()
}
