package metrics

import "github.com/prometheus/client_golang/prometheus"

// Checkout results
const (
	CheckoutStarted   = "started"
	CheckoutCompleted = "completed"
	CheckoutFailed    = "failed"
)

// LeaseMetrics captures lease lifecycle and checkout signals.
// A nil *LeaseMetrics is valid and records nothing.
type LeaseMetrics struct {
	leaseTransitions *prometheus.CounterVec
	checkouts        *prometheus.CounterVec
	overdueCycles    prometheus.Counter
	paidCycles       prometheus.Counter
	sweepDuration    prometheus.Histogram
}

// New registers the lease metrics on registerer (prometheus.DefaultRegisterer when nil).
func New(registerer prometheus.Registerer) *LeaseMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &LeaseMetrics{
		leaseTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lease_transitions_total",
			Help: "Lease status transitions by target status.",
		}, []string{"status"}),
		checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lease_checkouts_total",
			Help: "Checkout attempts by result.",
		}, []string{"result"}),
		overdueCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "billing_cycles_overdue_total",
			Help: "Billing cycles marked overdue by the sweep.",
		}),
		paidCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "billing_cycles_paid_total",
			Help: "Billing cycles paid after lease creation.",
		}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "lease_sweep_duration_seconds",
			Help:    "Duration of the lease expiration sweep.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}),
	}

	registerer.MustRegister(m.leaseTransitions, m.checkouts, m.overdueCycles, m.paidCycles, m.sweepDuration)
	return m
}

func (m *LeaseMetrics) LeaseTransition(status string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.leaseTransitions.WithLabelValues(status).Add(float64(n))
}

func (m *LeaseMetrics) Checkout(result string) {
	if m == nil {
		return
	}
	m.checkouts.WithLabelValues(result).Inc()
}

func (m *LeaseMetrics) CyclesOverdue(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.overdueCycles.Add(float64(n))
}

func (m *LeaseMetrics) CyclePaid() {
	if m == nil {
		return
	}
	m.paidCycles.Inc()
}

func (m *LeaseMetrics) ObserveSweep(seconds float64) {
	if m == nil {
		return
	}
	m.sweepDuration.Observe(seconds)
}
