package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}

func TestRegisterIdempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg))
	require.NoError(t, Register(reg))
	assert.True(t, Registered())
}

func TestSetStateExclusive(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg))

	SetState("running")
	assert.Equal(t, 1.0, gaugeValue(t, serverState.WithLabelValues("running")))
	assert.Equal(t, 0.0, gaugeValue(t, serverState.WithLabelValues("stopped")))

	SetState("error")
	assert.Equal(t, 0.0, gaugeValue(t, serverState.WithLabelValues("running")))
	assert.Equal(t, 1.0, gaugeValue(t, serverState.WithLabelValues("error")))
}

func TestObserveResources(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg))

	ObserveResources(42.5, 2048)
	assert.Equal(t, 42.5, gaugeValue(t, cpuPercent))
	assert.Equal(t, 2048.0, gaugeValue(t, memoryMB))
}
