package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/KevoDB/tovs"

// Option configures a TelemetryProvider
type Option func(*providerOptions)

type providerOptions struct {
	out io.Writer
}

// WithWriter sends exported spans and metrics to w instead of stdout
func WithWriter(w io.Writer) Option {
	return func(o *providerOptions) {
		o.out = w
	}
}

// TelemetryProvider implements Telemetry using the OpenTelemetry SDK.
type TelemetryProvider struct {
	config         Config
	meterProvider  *sdkmetric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	meter          metric.Meter
	tracer         oteltrace.Tracer

	mu         sync.Mutex
	counters   map[string]metric.Int64Counter
	histograms map[string]metric.Float64Histogram
}

// New creates a Telemetry for cfg. A disabled config yields a no-op.
func New(cfg Config, opts ...Option) (Telemetry, error) {
	if !cfg.Enabled {
		return NewNoop(), nil
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid telemetry config: %w", err)
	}

	o := providerOptions{out: os.Stdout}
	for _, opt := range opts {
		opt(&o)
	}

	resource := sdkresource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
	)

	traceOpts := []stdouttrace.Option{stdouttrace.WithWriter(o.out)}
	metricOpts := []stdoutmetric.Option{stdoutmetric.WithWriter(o.out)}
	if cfg.PrettyPrint {
		traceOpts = append(traceOpts, stdouttrace.WithPrettyPrint())
		metricOpts = append(metricOpts, stdoutmetric.WithPrettyPrint())
	}

	traceExporter, err := stdouttrace.New(traceOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout trace exporter: %w", err)
	}
	metricExporter, err := stdoutmetric.New(metricOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout metric exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(traceExporter),
		sdktrace.WithResource(resource),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SampleRate)),
	)
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
		sdkmetric.WithResource(resource),
	)

	return &TelemetryProvider{
		config:         cfg,
		meterProvider:  mp,
		tracerProvider: tp,
		meter:          mp.Meter(instrumentationName),
		tracer:         tp.Tracer(instrumentationName),
		counters:       make(map[string]metric.Int64Counter),
		histograms:     make(map[string]metric.Float64Histogram),
	}, nil
}

// RecordHistogram records value in the named histogram.
func (p *TelemetryProvider) RecordHistogram(ctx context.Context, name string, value float64, attrs ...attribute.KeyValue) {
	h, err := p.histogram(name)
	if err != nil {
		return
	}
	h.Record(ctx, value, metric.WithAttributes(attrs...))
}

// RecordCounter adds value to the named counter.
func (p *TelemetryProvider) RecordCounter(ctx context.Context, name string, value int64, attrs ...attribute.KeyValue) {
	c, err := p.counter(name)
	if err != nil {
		return
	}
	c.Add(ctx, value, metric.WithAttributes(attrs...))
}

// StartSpan starts a span on the provider's tracer.
func (p *TelemetryProvider) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, oteltrace.Span) {
	return p.tracer.Start(ctx, name, oteltrace.WithAttributes(attrs...))
}

// Shutdown flushes and stops both providers.
func (p *TelemetryProvider) Shutdown(ctx context.Context) error {
	return errors.Join(
		p.tracerProvider.Shutdown(ctx),
		p.meterProvider.Shutdown(ctx),
	)
}

func (p *TelemetryProvider) counter(name string) (metric.Int64Counter, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.counters[name]; ok {
		return c, nil
	}
	c, err := p.meter.Int64Counter(name)
	if err != nil {
		return nil, err
	}
	p.counters[name] = c
	return c, nil
}

func (p *TelemetryProvider) histogram(name string) (metric.Float64Histogram, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if h, ok := p.histograms[name]; ok {
		return h, nil
	}
	h, err := p.meter.Float64Histogram(name, metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	p.histograms[name] = h
	return h, nil
}
