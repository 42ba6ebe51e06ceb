package observability

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/signalsfoundry/flighttask-auto/core"
	"github.com/signalsfoundry/flighttask-auto/internal/logging"
)

// tracerName is the instrumentation scope for control cycle spans.
const tracerName = "github.com/signalsfoundry/flighttask-auto"

const (
	envTracingEnabled  = "FLIGHTTASK_TRACING_ENABLED"
	envTracingExporter = "FLIGHTTASK_TRACING_EXPORTER"
	envTracingService  = "FLIGHTTASK_TRACING_SERVICE_NAME"
	envTracingRatio    = "FLIGHTTASK_TRACING_SAMPLE_RATIO"
	envOTLPEndpoint    = "FLIGHTTASK_OTLP_ENDPOINT"

	defaultServiceName  = "flighttask-simulator"
	defaultOTLPEndpoint = "localhost:4317"
	// Control loops run at tens of Hz; one cycle in a hundred is plenty.
	defaultSampleRatio = 0.01
)

// Span attribute keys for control cycles.
const (
	attrCycle         = attribute.Key("flighttask.cycle")
	attrHolding       = attribute.Key("flighttask.holding")
	attrTripletAge    = attribute.Key("flighttask.triplet_age_ms")
	attrTrackState    = attribute.Key("flighttask.track_state")
	attrWaypointType  = attribute.Key("flighttask.waypoint_type")
	attrSpeedAtTarget = attribute.Key("flighttask.speed_at_target")
	attrCruiseSpeed   = attribute.Key("flighttask.cruise_speed")
	attrYawLocked     = attribute.Key("flighttask.yaw_locked")
	attrNewTarget     = attribute.Key("flighttask.new_target")
	attrLeg           = attribute.Key("flighttask.leg")
)

// TracingConfig selects the span exporter for the control loop.
type TracingConfig struct {
	Enabled     bool
	ServiceName string
	Exporter    string // stdout | otlp
	Endpoint    string // OTLP collector, host:port
	SampleRatio float64
}

// TracingConfigFromEnv reads the FLIGHTTASK_TRACING_* variables. Unset or
// malformed values fall back to defaults.
func TracingConfigFromEnv() TracingConfig {
	cfg := TracingConfig{
		Enabled:     strings.EqualFold(os.Getenv(envTracingEnabled), "true"),
		ServiceName: envOr(envTracingService, defaultServiceName),
		Exporter:    strings.ToLower(envOr(envTracingExporter, "stdout")),
		Endpoint:    os.Getenv(envOTLPEndpoint),
		SampleRatio: defaultSampleRatio,
	}
	if raw := os.Getenv(envTracingRatio); raw != "" {
		if r, err := strconv.ParseFloat(raw, 64); err == nil && r >= 0 && r <= 1 {
			cfg.SampleRatio = r
		}
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// InitTracing installs the global tracer provider. When tracing is disabled a
// noop provider is installed and the returned shutdown does nothing.
func InitTracing(ctx context.Context, cfg TracingConfig, log logging.Logger) (func(context.Context) error, error) {
	if log == nil {
		log = logging.Noop()
	}
	otel.SetTextMapPropagator(propagation.TraceContext{})

	if !cfg.Enabled {
		otel.SetTracerProvider(trace.NewNoopTracerProvider())
		log.Info(ctx, "tracing disabled")
		return func(context.Context) error { return nil }, nil
	}

	exp, err := newSpanExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithHost(),
		resource.WithAttributes(
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("service.namespace", "flighttask"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("tracing resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	log.Info(ctx, "tracing enabled",
		logging.String("exporter", cfg.Exporter),
		logging.String("service_name", cfg.ServiceName),
		logging.Float64("sample_ratio", cfg.SampleRatio),
	)
	return tp.Shutdown, nil
}

func newSpanExporter(ctx context.Context, cfg TracingConfig) (sdktrace.SpanExporter, error) {
	switch strings.ToLower(cfg.Exporter) {
	case "", "stdout":
		return stdouttrace.New(stdouttrace.WithWriter(os.Stdout), stdouttrace.WithoutTimestamps())
	case "otlp", "otlpgrpc":
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = defaultOTLPEndpoint
		}
		return otlptrace.New(ctx, otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		))
	default:
		return nil, fmt.Errorf("unsupported tracing exporter: %s", cfg.Exporter)
	}
}

// ShutdownWithTimeout flushes pending spans, giving up after five seconds.
func ShutdownWithTimeout(ctx context.Context, shutdown func(context.Context) error, log logging.Logger) {
	if shutdown == nil {
		return
	}
	if log == nil {
		log = logging.Noop()
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		log.Warn(ctx, "tracing shutdown failed", logging.Err(err))
	}
}

// CycleSpan is the span covering one control cycle. Exactly one of Holding,
// Failed or Setpoints describes how the cycle ended.
type CycleSpan struct {
	span trace.Span
}

// StartCycleSpan starts the span for cycle.
func StartCycleSpan(ctx context.Context, cycle uint64) (context.Context, *CycleSpan) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "flighttask.cycle",
		trace.WithAttributes(attrCycle.Int64(int64(cycle))),
	)
	return ctx, &CycleSpan{span: span}
}

// Holding marks a cycle skipped because the navigator triplet is stale.
func (c *CycleSpan) Holding(tripletAge time.Duration) {
	c.span.SetAttributes(
		attrHolding.Bool(true),
		attrTripletAge.Int64(tripletAge.Milliseconds()),
	)
}

// Failed marks a cycle in which the task produced no setpoints.
func (c *CycleSpan) Failed(err error) {
	c.span.RecordError(err)
	c.span.SetStatus(codes.Error, err.Error())
	if core.IsEvaluationFailure(err) {
		c.span.SetAttributes(attrHolding.Bool(true))
	}
}

// Setpoints annotates the span with the cycle's output.
func (c *CycleSpan) Setpoints(sp core.Setpoints, leg int) {
	c.span.SetAttributes(
		attrTrackState.String(sp.State.String()),
		attrWaypointType.String(sp.Type.String()),
		attrSpeedAtTarget.Float64(sp.SpeedAtTarget),
		attrCruiseSpeed.Float64(sp.CruiseSpeed),
		attrYawLocked.Bool(sp.YawLocked),
		attrNewTarget.Bool(sp.NewTarget),
		attrLeg.Int(leg),
	)
}

// SpanContext returns the underlying span context.
func (c *CycleSpan) SpanContext() trace.SpanContext { return c.span.SpanContext() }

// End finishes the span.
func (c *CycleSpan) End() { c.span.End() }
