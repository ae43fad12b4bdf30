package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	totals := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				totals[m.Name] += dp.Value
			}
		}
	}
	return totals
}

func TestMetrics_Counters(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewMetrics(mp)
	require.NoError(t, err)

	ctx := context.Background()
	m.Dispatched(ctx, "ci.yml")
	m.TransientRetry(ctx, "dispatch")
	m.TransientRetry(ctx, "poll")
	m.RunCompleted(ctx, "success")
	m.NotifyFailed(ctx, "webhook")

	totals := collect(t, reader)
	assert.Equal(t, int64(1), totals["dispatchwait.dispatches"])
	assert.Equal(t, int64(2), totals["dispatchwait.transient_retries"])
	assert.Equal(t, int64(1), totals["dispatchwait.runs_completed"])
	assert.Equal(t, int64(1), totals["dispatchwait.notify_failures"])
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Dispatched(context.Background(), "ci.yml")
		m.RunCompleted(context.Background(), "failure")
	})
}

func TestSetup_NoEndpointIsNoop(t *testing.T) {
	t.Setenv(EndpointEnv, "")
	shutdown, err := Setup(context.Background(), "dispatchwait", nil)
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestFlush_WithoutSDKProviders(t *testing.T) {
	assert.NoError(t, Flush(context.Background()))
}
