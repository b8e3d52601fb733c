package metrics

import "github.com/prometheus/client_golang/prometheus"

// MessagingMetrics exposes counters/histograms for dispatch and webhook flows.
type MessagingMetrics struct {
	dispatchTotal  *prometheus.CounterVec
	jobDuration    *prometheus.HistogramVec
	webhookTotal   *prometheus.CounterVec
	webhookLatency *prometheus.HistogramVec
}

func NewMessagingMetrics(reg prometheus.Registerer) *MessagingMetrics {
	m := &MessagingMetrics{
		dispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "messaging",
			Name:      "dispatch_total",
			Help:      "Outbound dispatch outcomes per job",
		}, []string{"job", "outcome", "gateway"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "messaging",
			Name:      "job_duration_seconds",
			Help:      "Duration of scheduler job invocations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"job"}),
		webhookTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "messaging",
			Name:      "inbound_webhook_total",
			Help:      "Inbound webhook outcomes per provider",
		}, []string{"provider", "outcome", "reason"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "messaging",
			Name:      "webhook_latency_seconds",
			Help:      "Latency of inbound webhook processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.dispatchTotal, m.jobDuration, m.webhookTotal, m.webhookLatency)
	return m
}

// ObserveDispatch counts one message outcome (sent, failed, skipped, simulated).
func (m *MessagingMetrics) ObserveDispatch(job, outcome, gateway string) {
	if m == nil {
		return
	}
	m.dispatchTotal.WithLabelValues(job, outcome, gateway).Inc()
}

func (m *MessagingMetrics) ObserveJobDuration(job string, seconds float64) {
	if m == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(seconds)
}

func (m *MessagingMetrics) ObserveWebhook(provider, outcome, reason string) {
	if m == nil {
		return
	}
	m.webhookTotal.WithLabelValues(provider, outcome, reason).Inc()
}

func (m *MessagingMetrics) ObserveWebhookLatency(provider string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(provider).Observe(seconds)
}
