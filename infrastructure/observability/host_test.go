package observability

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostSampler_SampleSetsGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	h := NewHostSampler(reg, nil)

	h.sample(context.Background())

	metricFamilies, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, metricFamilies)

	var foundMem bool
	for _, mf := range metricFamilies {
		if mf.GetName() == "host_memory_used_percent" {
			foundMem = true
			require.Len(t, mf.Metric, 1)
			assert.GreaterOrEqual(t, mf.Metric[0].GetGauge().GetValue(), float64(0))
		}
	}
	assert.True(t, foundMem)
}

func TestHostSampler_RunStopsOnContextCancel(t *testing.T) {
	reg := prometheus.NewRegistry()
	h := NewHostSampler(reg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
