package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Observability owns the OTel meter and tracer providers for one process.
type Observability struct {
	meterProvider  *metric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	tracer         trace.Tracer
	requestCount   otelmetric.Int64Counter
	requestLatency otelmetric.Float64Histogram
}

// New installs global providers. Metrics are exported through the Prometheus
// default registry, so they show up on the same /metrics endpoint as the
// promauto collectors.
func New(serviceName string) (*Observability, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, err
	}

	mp := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(mp)

	tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(0.1))))
	otel.SetTracerProvider(tp)

	obs := &Observability{
		meterProvider:  mp,
		tracerProvider: tp,
	}
	obs.init(serviceName)
	return obs, nil
}

// NewNoop returns an Observability backed by whatever global providers are
// installed (no-op by default). Used by tests and by callers that skip New.
func NewNoop(serviceName string) *Observability {
	obs := &Observability{}
	obs.init(serviceName)
	return obs
}

func (o *Observability) init(serviceName string) {
	meter := otel.GetMeterProvider().Meter(serviceName)
	o.tracer = otel.GetTracerProvider().Tracer(serviceName)

	o.requestCount, _ = meter.Int64Counter(
		"backend.requests",
		otelmetric.WithDescription("Number of backend requests"),
	)
	o.requestLatency, _ = meter.Float64Histogram(
		"backend.request.duration",
		otelmetric.WithDescription("Backend request duration"),
		otelmetric.WithUnit("ms"),
	)
}

// StartSpan starts a client span for one backend call.
func (o *Observability) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return o.tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(attrs...))
}

// RecordRequest records count and latency of one backend call.
func (o *Observability) RecordRequest(ctx context.Context, method, route string, status int, duration time.Duration) {
	attrs := otelmetric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.Int("status", status),
	)
	if o.requestCount != nil {
		o.requestCount.Add(ctx, 1, attrs)
	}
	if o.requestLatency != nil {
		o.requestLatency.Record(ctx, float64(duration.Milliseconds()), attrs)
	}
}

func (o *Observability) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if o.tracerProvider != nil {
		_ = o.tracerProvider.Shutdown(ctx)
	}
	if o.meterProvider != nil {
		_ = o.meterProvider.Shutdown(ctx)
	}
}
