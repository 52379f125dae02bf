package observability

import (
	"context"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

// Tracer wraps an OpenTelemetry TracerProvider configured without an OTLP
// exporter: spans are created and ended in-process and are neither
// shipped to a collector nor kept for later reading
// (this module has no otlptrace dependency — grounded on the teacher's
// pkg/telemetry.setupTraceProvider, whose own no-OTEL_EXPORTER_OTLP_ENDPOINT
// branch returns exactly this bare sdktrace.NewTracerProvider(WithResource)
// construction). It structurally satisfies the Tracer interface each of
// kernel/ranker/autonomy/mcp declares locally.
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
	enabled  bool
}

// NewTracer builds a Tracer for serviceName. If enabled is false, it returns
// a Tracer whose StartSpan is a no-op — the same `OTEL_SDK_DISABLED`-style
// escape hatch the teacher's NewAutoOTEL exposes, driven here by
// core.ObservabilityConfig.TracingEnabled instead of an env var.
func NewTracer(serviceName string, enabled bool) *Tracer {
	if !enabled || os.Getenv("OTEL_SDK_DISABLED") == "true" {
		return &Tracer{tracer: otel.Tracer("noop"), enabled: false}
	}

	res := resource.NewSchemaless(
		semconv.ServiceNameKey.String(serviceName),
		attribute.String("agentkernel.component", "agentctl"),
	)
	provider := sdktrace.NewTracerProvider(sdktrace.WithResource(res))
	otel.SetTracerProvider(provider)

	return &Tracer{
		provider: provider,
		tracer:   provider.Tracer(serviceName),
		enabled:  true,
	}
}

// StartSpan starts a span named name and returns a closer that records err
// (if non-nil) as the span's status before ending it — satisfying every
// package-local Tracer interface in this codebase
// (kernel.Tracer/ranker.Tracer/autonomy.Tracer/mcp.Tracer).
func (t *Tracer) StartSpan(ctx context.Context, name string) (context.Context, func(error)) {
	ctx, span := t.tracer.Start(ctx, name)
	return ctx, func(err error) {
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			span.RecordError(err)
		}
		span.End()
	}
}

// Shutdown flushes and releases the underlying TracerProvider. A no-op when
// tracing was disabled at construction.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}
