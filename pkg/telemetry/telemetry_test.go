package telemetry

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

func TestNoopTelemetry(t *testing.T) {
	tel := NewNoop()
	ctx := context.Background()

	tel.RecordCounter(ctx, MetricOperations, 1)
	tel.RecordHistogram(ctx, MetricOperationDuration, 0.5)
	RecordDuration(ctx, tel, MetricOperationDuration, time.Now())

	spanCtx, span := tel.StartSpan(ctx, "noop")
	if spanCtx != ctx {
		t.Error("Noop StartSpan should return the original context")
	}
	span.End()

	if err := tel.Shutdown(ctx); err != nil {
		t.Errorf("Noop Shutdown returned %v", err)
	}
}

func TestNewDisabledIsNoop(t *testing.T) {
	tel, err := New(DisabledConfig())
	if err != nil {
		t.Fatalf("New returned %v", err)
	}
	if _, ok := tel.(*NoopTelemetry); !ok {
		t.Errorf("Expected NoopTelemetry, got %T", tel)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SampleRate = 2
	if _, err := New(cfg); err == nil {
		t.Error("Expected error for invalid sample rate")
	}
}

func TestProviderExportsSpans(t *testing.T) {
	var buf bytes.Buffer
	tel, err := New(DefaultConfig(), WithWriter(&buf))
	if err != nil {
		t.Fatalf("New returned %v", err)
	}
	if _, ok := tel.(*TelemetryProvider); !ok {
		t.Fatalf("Expected TelemetryProvider, got %T", tel)
	}

	ctx := context.Background()
	_, span := tel.StartSpan(ctx, "store.insert", attribute.Int(AttrKey, 42))
	span.End()

	tel.RecordCounter(ctx, MetricOperations, 1, attribute.String(AttrOperationType, OpTypeInsert))
	tel.RecordHistogram(ctx, MetricOperationDuration, 0.001)

	if err := tel.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown returned %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "store.insert") {
		t.Errorf("Expected span in exporter output, got: %s", out)
	}
	if !strings.Contains(out, MetricOperations) {
		t.Errorf("Expected metric in exporter output, got: %s", out)
	}
}

func TestConfigValidate(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty service name", func(c *Config) { c.ServiceName = "" }},
		{"empty service version", func(c *Config) { c.ServiceVersion = "" }},
		{"negative sample rate", func(c *Config) { c.SampleRate = -0.1 }},
		{"network exporter", func(c *Config) { c.Exporters = []string{"otlp"} }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}

	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config invalid: %v", err)
	}
	if !cfg.HasExporter("stdout") || cfg.HasExporter("otlp") {
		t.Error("HasExporter returned unexpected results")
	}
}

func TestConfigLoadFromEnv(t *testing.T) {
	t.Setenv("TOVS_TELEMETRY_ENABLED", "false")
	t.Setenv("TOVS_TELEMETRY_SERVICE_NAME", "tovs-test")
	t.Setenv("TOVS_TELEMETRY_SAMPLE_RATE", "0.25")
	t.Setenv("TOVS_TELEMETRY_EXPORTERS", " stdout ")

	cfg := DefaultConfig()
	cfg.LoadFromEnv()

	if cfg.Enabled {
		t.Error("Expected telemetry disabled from env")
	}
	if cfg.ServiceName != "tovs-test" {
		t.Errorf("Expected service name tovs-test, got %s", cfg.ServiceName)
	}
	if cfg.SampleRate != 0.25 {
		t.Errorf("Expected sample rate 0.25, got %f", cfg.SampleRate)
	}
	if len(cfg.Exporters) != 1 || cfg.Exporters[0] != "stdout" {
		t.Errorf("Expected trimmed exporters, got %v", cfg.Exporters)
	}
}
