package prom

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, CreateWithRegistry(reg, "test-host", "test", "smscredits"))

	PaymentInitiated("SUBSCRIPTION", "ok")
	PaymentInitiated("SUBSCRIPTION", "ok")
	CallbackReconciled("applied")
	CreditsGranted(500)
	CreditsSpent(3)
	DispatchUnbilled()
	DispatchRecipient("Success", 3)

	assert.Equal(t, float64(2), value(t, counterVecs[SystemPayments+MetricPaymentsInitiated].WithLabelValues("SUBSCRIPTION", "ok")))
	assert.Equal(t, float64(1), value(t, counterVecs[SystemPayments+MetricCallbacks].WithLabelValues("applied")))
	assert.Equal(t, float64(500), value(t, counters[SystemPayments+MetricCreditsGranted]))
	assert.Equal(t, float64(3), value(t, counters[SystemDispatch+MetricCreditsSpent]))
	assert.Equal(t, float64(1), value(t, counters[SystemDispatch+MetricDispatchUnbilled]))
	assert.Equal(t, float64(3), value(t, counterVecs[SystemDispatch+MetricDispatchRecipients].WithLabelValues("Success")))
}

func TestCreateMetric_UnknownType(t *testing.T) {
	assert.Error(t, CreateMetric("summary", "x", "y"))
}

func value(t *testing.T, m prometheus.Metric) float64 {
	t.Helper()
	var out dto.Metric
	require.NoError(t, m.Write(&out))
	return out.GetCounter().GetValue()
}
