package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func findFamily(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func TestMessagingMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMessagingMetrics(reg)
	m.ObserveDispatch("campaign", "sent", "zapi")
	m.ObserveDispatch("campaign", "sent", "zapi")
	m.ObserveDispatch("reminder", "skipped", "simulation")
	m.ObserveJobDuration("campaign", 0.2)
	m.ObserveWebhook("evolution", "ignored", "self_sent")
	m.ObserveWebhookLatency("evolution", 0.05)

	dispatch := findFamily(t, reg, "clinic_messaging_dispatch_total")
	require.NotNil(t, dispatch)
	require.Len(t, dispatch.GetMetric(), 2)
	var sent float64
	for _, metric := range dispatch.GetMetric() {
		for _, label := range metric.GetLabel() {
			if label.GetName() == "job" && label.GetValue() == "campaign" {
				sent = metric.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, float64(2), sent)

	webhooks := findFamily(t, reg, "clinic_messaging_inbound_webhook_total")
	require.NotNil(t, webhooks)
	assert.Equal(t, float64(1), webhooks.GetMetric()[0].GetCounter().GetValue())
}

func TestMessagingMetricsNilSafe(t *testing.T) {
	var m *MessagingMetrics
	m.ObserveDispatch("campaign", "sent", "zapi")
	m.ObserveJobDuration("campaign", 0.1)
	m.ObserveWebhook("zapi", "success", "")
	m.ObserveWebhookLatency("zapi", 0.1)
}
