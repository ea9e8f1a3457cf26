// Package telemetry sets up the process-wide OpenTelemetry tracer provider,
// grounded on the teacher's pkg/faker/telemetry.Tracer: a no-op
// implementation when no endpoint is configured, and an OTLP/HTTP exporter
// otherwise. The store's per-method spans are exported through that
// provider; the scheduler and worker do not import this package.
package telemetry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/alirezaght/arazzo/internal/config"
)

const tracerName = "arazzorun.executor"

// Tracer abstracts span creation and provider shutdown over the configured
// exporter. cmd/arazzorun constructs one at startup and calls Shutdown on
// exit; it starts no spans through it.
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span)
	RecordError(span trace.Span, err error)
	SetStatus(span trace.Span, code codes.Code, description string)
	Shutdown(ctx context.Context) error
}

type tracerImpl struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// New builds a Tracer from cfg. A disabled or endpoint-less config yields a
// no-op tracer so callers never need a nil check.
func New(cfg config.Telemetry) (Tracer, error) {
	if !cfg.Enabled || cfg.Endpoint == "" {
		return &noopTracer{}, nil
	}

	ctx := context.Background()

	useHTTPS := strings.HasPrefix(cfg.Endpoint, "https://")
	endpoint := strings.TrimPrefix(strings.TrimPrefix(cfg.Endpoint, "https://"), "http://")

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
	if !useHTTPS {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating OTLP exporter: %w", err)
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "arazzorun"
	}
	res := resource.NewSchemaless(
		semconv.ServiceName(serviceName),
		semconv.DeploymentEnvironment(cfg.Environment),
	)

	sampler := sdktrace.AlwaysSample()
	if cfg.SampleRate > 0 && cfg.SampleRate < 1 {
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(provider)

	return &tracerImpl{provider: provider, tracer: otel.Tracer(tracerName)}, nil
}

func (t *tracerImpl) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func (t *tracerImpl) RecordError(span trace.Span, err error) { span.RecordError(err) }

func (t *tracerImpl) SetStatus(span trace.Span, code codes.Code, description string) {
	span.SetStatus(code, description)
}

func (t *tracerImpl) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return t.provider.Shutdown(shutdownCtx)
}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return ctx, trace.SpanFromContext(ctx)
}
func (noopTracer) RecordError(trace.Span, error)            {}
func (noopTracer) SetStatus(trace.Span, codes.Code, string) {}
func (noopTracer) Shutdown(context.Context) error           { return nil }
