package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersAllCollectorsOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New("gatewaytest", reg)

	m.HTTPRequestsTotal.WithLabelValues("GET", "/search", "200").Inc()
	m.LaneLatencyMS.WithLabelValues("web").Observe(42)
	m.ProviderCircuitState.WithLabelValues("openai").Set(1)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestLaneGaugeValue(t *testing.T) {
	assert.Equal(t, float64(0), LaneGaugeValue(true, false))
	assert.Equal(t, float64(1), LaneGaugeValue(false, true))
	assert.Equal(t, float64(2), LaneGaugeValue(false, false))
}

func TestMetricNamesMatchSpecEnumeration(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New("gatewaytest", reg)
	m.HTTPErrorsTotal.WithLabelValues("GET", "/search", "500").Inc()
	m.SSEConnectionsTotal.WithLabelValues("completed").Inc()

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["gatewaytest_http_errors_total"])
	assert.True(t, names["gatewaytest_sse_connections_total"])
}
