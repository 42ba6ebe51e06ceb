package observability

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/signalsfoundry/flighttask-auto/core"
	"github.com/signalsfoundry/flighttask-auto/internal/logging"
	"github.com/signalsfoundry/flighttask-auto/model"
)

func TestTracingConfigFromEnv(t *testing.T) {
	t.Setenv("FLIGHTTASK_TRACING_ENABLED", "TRUE")
	t.Setenv("FLIGHTTASK_TRACING_EXPORTER", "OTLP")
	t.Setenv("FLIGHTTASK_TRACING_SERVICE_NAME", "sim-a")
	t.Setenv("FLIGHTTASK_TRACING_SAMPLE_RATIO", "0.5")
	t.Setenv("FLIGHTTASK_OTLP_ENDPOINT", "collector:4317")

	cfg := TracingConfigFromEnv()
	assert.True(t, cfg.Enabled)
	assert.Equal(t, "otlp", cfg.Exporter)
	assert.Equal(t, "sim-a", cfg.ServiceName)
	assert.Equal(t, 0.5, cfg.SampleRatio)
	assert.Equal(t, "collector:4317", cfg.Endpoint)
}

func TestTracingConfigFromEnvDefaults(t *testing.T) {
	t.Setenv("FLIGHTTASK_TRACING_ENABLED", "")
	t.Setenv("FLIGHTTASK_TRACING_EXPORTER", "")
	t.Setenv("FLIGHTTASK_TRACING_SERVICE_NAME", "")
	t.Setenv("FLIGHTTASK_TRACING_SAMPLE_RATIO", "7")

	cfg := TracingConfigFromEnv()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "stdout", cfg.Exporter)
	assert.Equal(t, "flighttask-simulator", cfg.ServiceName)
	assert.Equal(t, 0.01, cfg.SampleRatio, "out-of-range ratio falls back to default")
}

func TestInitTracingDisabledIsNoop(t *testing.T) {
	ctx := context.Background()
	shutdown, err := InitTracing(ctx, TracingConfig{Enabled: false}, logging.Noop())
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	_, span := StartCycleSpan(ctx, 7)
	assert.False(t, span.SpanContext().IsSampled())
	span.End()
	assert.NoError(t, shutdown(ctx))
}

func TestInitTracingRejectsUnknownExporter(t *testing.T) {
	_, err := InitTracing(context.Background(), TracingConfig{Enabled: true, Exporter: "carrier-pigeon"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported tracing exporter")
}

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithSpanProcessor(rec),
	)
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return rec
}

func spanAttrs(s sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	out := make(map[attribute.Key]attribute.Value)
	for _, kv := range s.Attributes() {
		out[kv.Key] = kv.Value
	}
	return out
}

func TestCycleSpanSetpoints(t *testing.T) {
	rec := recordSpans(t)

	_, span := StartCycleSpan(context.Background(), 42)
	span.Setpoints(core.Setpoints{
		State:         core.TrackOfftrack,
		Type:          model.WaypointLoiter,
		SpeedAtTarget: 2.5,
		CruiseSpeed:   4,
		YawLocked:     true,
	}, 3)
	span.End()

	ended := rec.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "flighttask.cycle", ended[0].Name())
	attrs := spanAttrs(ended[0])
	assert.Equal(t, int64(42), attrs["flighttask.cycle"].AsInt64())
	assert.Equal(t, "offtrack", attrs["flighttask.track_state"].AsString())
	assert.Equal(t, "loiter", attrs["flighttask.waypoint_type"].AsString())
	assert.Equal(t, 2.5, attrs["flighttask.speed_at_target"].AsFloat64())
	assert.Equal(t, 4.0, attrs["flighttask.cruise_speed"].AsFloat64())
	assert.True(t, attrs["flighttask.yaw_locked"].AsBool())
	assert.False(t, attrs["flighttask.new_target"].AsBool())
	assert.Equal(t, int64(3), attrs["flighttask.leg"].AsInt64())
	assert.Equal(t, codes.Unset, ended[0].Status().Code)
}

func TestCycleSpanHolding(t *testing.T) {
	rec := recordSpans(t)

	_, span := StartCycleSpan(context.Background(), 1)
	span.Holding(1500 * time.Millisecond)
	span.End()

	attrs := spanAttrs(rec.Ended()[0])
	assert.True(t, attrs["flighttask.holding"].AsBool())
	assert.Equal(t, int64(1500), attrs["flighttask.triplet_age_ms"].AsInt64())
}

func TestCycleSpanFailed(t *testing.T) {
	rec := recordSpans(t)

	_, span := StartCycleSpan(context.Background(), 1)
	span.Failed(fmt.Errorf("activate: %w", core.ErrNoGlobalReference))
	span.End()
	_, span = StartCycleSpan(context.Background(), 2)
	span.Failed(errors.New("boom"))
	span.End()

	ended := rec.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Contains(t, ended[0].Status().Description, "activate")
	assert.Len(t, ended[0].Events(), 1, "error recorded as an event")
	assert.True(t, spanAttrs(ended[0])["flighttask.holding"].AsBool())

	assert.Equal(t, codes.Error, ended[1].Status().Code)
	_, holding := spanAttrs(ended[1])["flighttask.holding"]
	assert.False(t, holding, "only evaluation failures hold the vehicle")
}
