package infrastructure

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

func newTestProviders(t *testing.T, traceOut io.Writer) *OTelProviders {
	t.Helper()
	providers, err := InitializeOTel(&OTelConfig{
		ServiceName:    "tabtweak-test",
		ServiceVersion: "test",
		Environment:    "test",
		EnableTracing:  true,
		TraceWriter:    traceOut,
		SampleRatio:    1,
		Registry:       prom.NewRegistry(),
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = providers.Shutdown(context.Background()) })
	return providers
}

func TestOTelInitialization(t *testing.T) {
	var spans bytes.Buffer
	providers := newTestProviders(t, &spans)
	require.NotNil(t, providers.Tracer)
	require.NotNil(t, providers.Meter)
	require.NotNil(t, providers.PrometheusHTTP)

	ctx, span := providers.Tracer.Start(context.Background(), "tweak")
	assert.NotEmpty(t, GetTraceID(ctx))
	RecordError(ctx, errors.New("boom"))
	span.End()

	require.NoError(t, providers.TracerProvider.ForceFlush(context.Background()))
	assert.Contains(t, spans.String(), `"Name":"tweak"`)
	assert.Contains(t, spans.String(), "boom")
}

func TestTweakMetricsExposed(t *testing.T) {
	providers := newTestProviders(t, nil)
	m, err := CreateTweakMetrics(providers.Meter)
	require.NoError(t, err)

	ctx := context.Background()
	m.PipelineRuns.Add(ctx, 1, metric.WithAttributes(attribute.String("dataset", "nyc"), StatusAttr(nil)))
	m.CacheMisses.Add(ctx, 2)
	m.OperationsActive.Add(ctx, 1)

	rec := httptest.NewRecorder()
	providers.PrometheusHTTP.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "tweak_pipeline_runs_total")
	assert.Contains(t, body, `dataset="nyc"`)
	assert.Contains(t, body, "table_cache_misses_total")
}

func TestStatusAttr(t *testing.T) {
	assert.Equal(t, "success", StatusAttr(nil).Value.AsString())
	assert.Equal(t, "failure", StatusAttr(errors.New("x")).Value.AsString())
}
