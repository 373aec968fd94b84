package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for the booking wizard.
type BookingMetrics struct {
	sessionsStarted    *prometheus.CounterVec
	stepTransitions    *prometheus.CounterVec
	validationFailures *prometheus.CounterVec
	submissionsTotal   *prometheus.CounterVec
	submissionLatency  *prometheus.HistogramVec
	outboxDeliveries   *prometheus.CounterVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		sessionsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vocalbooking",
			Subsystem: "wizard",
			Name:      "sessions_started_total",
			Help:      "Wizard sessions started, by deep-linked service",
		}, []string{"service"}),
		stepTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vocalbooking",
			Subsystem: "wizard",
			Name:      "step_transitions_total",
			Help:      "Successful step transitions",
		}, []string{"from", "to"}),
		validationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vocalbooking",
			Subsystem: "wizard",
			Name:      "validation_failures_total",
			Help:      "Rejected transitions and updates, by step",
		}, []string{"step"}),
		submissionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vocalbooking",
			Subsystem: "wizard",
			Name:      "submissions_total",
			Help:      "Booking submissions by service and outcome",
		}, []string{"service", "outcome"}),
		submissionLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "vocalbooking",
			Subsystem: "wizard",
			Name:      "submission_latency_seconds",
			Help:      "Latency of the booking backend hand-off",
			Buckets:   prometheus.DefBuckets,
		}, []string{"service"}),
		outboxDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vocalbooking",
			Subsystem: "outbox",
			Name:      "deliveries_total",
			Help:      "Outbox delivery attempts by event type and outcome",
		}, []string{"type", "outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.sessionsStarted, m.stepTransitions, m.validationFailures, m.submissionsTotal, m.submissionLatency, m.outboxDeliveries)
	return m
}

func (m *BookingMetrics) ObserveSessionStarted(service string) {
	if m == nil {
		return
	}
	if service == "" {
		service = "none"
	}
	m.sessionsStarted.WithLabelValues(service).Inc()
}

func (m *BookingMetrics) ObserveStep(from, to string) {
	if m == nil {
		return
	}
	m.stepTransitions.WithLabelValues(from, to).Inc()
}

func (m *BookingMetrics) ObserveValidationFailure(step string) {
	if m == nil {
		return
	}
	m.validationFailures.WithLabelValues(step).Inc()
}

// ObserveSubmission records one submission outcome (success, failed,
// cancelled, invalid) and, when seconds > 0, its latency.
func (m *BookingMetrics) ObserveSubmission(service, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.submissionsTotal.WithLabelValues(service, outcome).Inc()
	if seconds > 0 {
		m.submissionLatency.WithLabelValues(service).Observe(seconds)
	}
}

// ObserveDelivery counts one outbox attempt (delivered, failed, exhausted).
func (m *BookingMetrics) ObserveDelivery(eventType, outcome string) {
	if m == nil {
		return
	}
	m.outboxDeliveries.WithLabelValues(eventType, outcome).Inc()
}
