// Package metrics exposes the prometheus instruments for the payment
// lifecycle engine and the scheduler.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	paymentOutcomes  *prometheus.CounterVec
	gatewayLatency   *prometheus.HistogramVec
	billingTransits  *prometheus.CounterVec
	schedulerJobRuns *prometheus.CounterVec
	schedulerJobErrs *prometheus.CounterVec
	retriesScheduled prometheus.Counter
	eventsPublished  *prometheus.CounterVec
}

func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		paymentOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "premia_payment_outcomes_total",
			Help: "Payment attempts by gateway outcome.",
		}, []string{"outcome", "method"}),
		gatewayLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "premia_gateway_request_seconds",
			Help:    "Latency of outbound gateway charge calls.",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
		billingTransits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "premia_billing_transitions_total",
			Help: "Billing status transitions by edge.",
		}, []string{"from", "to"}),
		schedulerJobRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "premia_scheduler_job_runs_total",
			Help: "Scheduler job executions.",
		}, []string{"job"}),
		schedulerJobErrs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "premia_scheduler_job_errors_total",
			Help: "Scheduler job failures.",
		}, []string{"job"}),
		retriesScheduled: factory.NewCounter(prometheus.CounterOpts{
			Name: "premia_payment_retries_scheduled_total",
			Help: "Payment retries enqueued by the reconciler.",
		}),
		eventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "premia_billing_events_published_total",
			Help: "Outbox events handed to the bus.",
		}, []string{"event_type"}),
	}
}

func (m *Metrics) RecordPaymentOutcome(outcome, method string) {
	if m == nil {
		return
	}
	m.paymentOutcomes.WithLabelValues(outcome, method).Inc()
}

func (m *Metrics) ObserveGatewayLatency(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.gatewayLatency.WithLabelValues(outcome).Observe(d.Seconds())
}

func (m *Metrics) IncBillingTransition(from, to string) {
	if m == nil {
		return
	}
	m.billingTransits.WithLabelValues(from, to).Inc()
}

func (m *Metrics) IncJobRun(job string) {
	if m == nil {
		return
	}
	m.schedulerJobRuns.WithLabelValues(job).Inc()
}

func (m *Metrics) IncJobError(job string) {
	if m == nil {
		return
	}
	m.schedulerJobErrs.WithLabelValues(job).Inc()
}

func (m *Metrics) IncRetryScheduled() {
	if m == nil {
		return
	}
	m.retriesScheduled.Inc()
}

func (m *Metrics) IncEventPublished(eventType string) {
	if m == nil {
		return
	}
	m.eventsPublished.WithLabelValues(eventType).Inc()
}
