package observability

import (
	"context"
	"fmt"

	"github.com/aws/aws-xray-sdk-go/xray"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// FunctionTracer runs fn inside a named span
type FunctionTracer interface {
	TraceFunction(ctx context.Context, name string, fn func(context.Context) error) error
}

// XRayTracer provides X-Ray tracing for the Lambda deployment
type XRayTracer struct {
	serviceName string
}

// NewXRayTracer creates a new tracer instance
func NewXRayTracer(serviceName string) *XRayTracer {
	return &XRayTracer{
		serviceName: serviceName,
	}
}

// StartSubsegment starts a new subsegment within an existing segment
func (t *XRayTracer) StartSubsegment(ctx context.Context, name string) (context.Context, *xray.Segment) {
	return xray.BeginSubsegment(ctx, fmt.Sprintf("%s.%s", t.serviceName, name))
}

// TraceFunction wraps a function with a subsegment. Outside a traced request
// there is no parent segment and fn runs untraced.
func (t *XRayTracer) TraceFunction(ctx context.Context, name string, fn func(context.Context) error) error {
	if xray.GetSegment(ctx) == nil {
		return fn(ctx)
	}
	ctx, seg := t.StartSubsegment(ctx, name)
	err := fn(ctx)
	seg.Close(err)
	return err
}

// AddAnnotation adds an indexed annotation to the current segment
func (t *XRayTracer) AddAnnotation(ctx context.Context, key string, value string) {
	if seg := xray.GetSegment(ctx); seg != nil {
		_ = seg.AddAnnotation(key, value)
	}
}

// TracerProvider wraps the OpenTelemetry SDK provider used by the standalone
// server
type TracerProvider struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// InitTracing installs a global OTLP/gRPC tracer provider
func InitTracing(ctx context.Context, serviceName, environment, endpoint string) (*TracerProvider, error) {
	exporter, err := otlptrace.New(ctx,
		otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithInsecure(),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			attribute.String("service.name", serviceName),
			attribute.String("deployment.environment", environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return &TracerProvider{provider: tp, tracer: tp.Tracer(serviceName)}, nil
}

// NewTracerProvider wraps an existing SDK provider. Tests pass one backed by
// an in-memory span recorder.
func NewTracerProvider(tp *sdktrace.TracerProvider, name string) *TracerProvider {
	return &TracerProvider{provider: tp, tracer: tp.Tracer(name)}
}

// Tracer returns the named tracer
func (tp *TracerProvider) Tracer() trace.Tracer {
	return tp.tracer
}

// Shutdown flushes pending spans
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	return tp.provider.Shutdown(ctx)
}

// TraceFunction implements FunctionTracer
func (tp *TracerProvider) TraceFunction(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := tp.tracer.Start(ctx, name)
	defer span.End()

	err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// NopTracer runs functions without tracing
type NopTracer struct{}

// TraceFunction implements FunctionTracer
func (NopTracer) TraceFunction(ctx context.Context, _ string, fn func(context.Context) error) error {
	return fn(ctx)
}
