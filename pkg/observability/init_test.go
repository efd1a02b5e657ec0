package observability_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layerlens/layerlens/pkg/observability"
)

func TestInit_NoEndpointUsesNoopProviders(t *testing.T) {
	t.Parallel()

	providers, err := observability.Init(observability.DefaultConfig())
	require.NoError(t, err)

	require.NotNil(t, providers.Tracer)
	require.NotNil(t, providers.Meter)
	require.NotNil(t, providers.Logger)
	require.NotNil(t, providers.Shutdown)

	require.NoError(t, providers.Shutdown(context.Background()))
}

func TestNewREDMetrics_RecordsWithoutPanic(t *testing.T) {
	t.Parallel()

	providers, err := observability.Init(observability.DefaultConfig())
	require.NoError(t, err)

	red, err := observability.NewREDMetrics(providers.Meter)
	require.NoError(t, err)

	ctx := context.Background()

	red.RecordRequest(ctx, "engine.run", "ok", 250*time.Millisecond)
	red.RecordRequest(ctx, "engine.run", "error", time.Second)

	done := red.TrackInflight(ctx, "engine.run")
	done()
}

func TestParseOTLPHeaders(t *testing.T) {
	t.Parallel()

	assert.Nil(t, observability.ParseOTLPHeaders(""))
	assert.Nil(t, observability.ParseOTLPHeaders("no-equals-sign"))

	headers := observability.ParseOTLPHeaders("a=1, b = 2 ,c=three")
	require.Len(t, headers, 3)
	assert.Equal(t, "1", headers["a"])
	assert.Equal(t, "2", headers["b"])
	assert.Equal(t, "three", headers["c"])
}

func TestPrometheusHandler(t *testing.T) {
	t.Parallel()

	mp, handler, err := observability.PrometheusHandler()
	require.NoError(t, err)
	require.NotNil(t, mp)
	require.NotNil(t, handler)
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := observability.DefaultConfig()

	assert.Equal(t, "layerlens", cfg.ServiceName)
	assert.Equal(t, observability.ModeCLI, cfg.Mode)
	assert.Positive(t, cfg.ShutdownTimeoutSec)
}
