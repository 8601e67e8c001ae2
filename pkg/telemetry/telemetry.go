// Package telemetry is the store's thin layer over OpenTelemetry. Components
// record spans and metrics through the Telemetry interface and never import
// the SDK directly.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry records metrics and spans.
type Telemetry interface {
	// RecordHistogram records a histogram value with optional attributes.
	RecordHistogram(ctx context.Context, name string, value float64, attrs ...attribute.KeyValue)

	// RecordCounter records a counter increment with optional attributes.
	RecordCounter(ctx context.Context, name string, value int64, attrs ...attribute.KeyValue)

	// StartSpan creates a new tracing span with the given name and attributes.
	StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span)

	// Shutdown flushes pending data and releases the providers.
	Shutdown(ctx context.Context) error
}

// NoopTelemetry discards everything.
type NoopTelemetry struct{}

// NewNoop creates a new no-operation telemetry instance.
func NewNoop() Telemetry {
	return &NoopTelemetry{}
}

// RecordHistogram is a no-op.
func (n *NoopTelemetry) RecordHistogram(ctx context.Context, name string, value float64, attrs ...attribute.KeyValue) {
}

// RecordCounter is a no-op.
func (n *NoopTelemetry) RecordCounter(ctx context.Context, name string, value int64, attrs ...attribute.KeyValue) {
}

// StartSpan returns the original context and the span already in it.
func (n *NoopTelemetry) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return ctx, trace.SpanFromContext(ctx)
}

// Shutdown is a no-op.
func (n *NoopTelemetry) Shutdown(ctx context.Context) error {
	return nil
}

// NewForTesting returns telemetry that records nothing, for tests.
func NewForTesting() Telemetry {
	return NewNoop()
}

// RecordDuration records the time elapsed since start in seconds.
func RecordDuration(ctx context.Context, tel Telemetry, name string, start time.Time, attrs ...attribute.KeyValue) {
	tel.RecordHistogram(ctx, name, time.Since(start).Seconds(), attrs...)
}

// RecordBytes records a byte count in a counter.
func RecordBytes(ctx context.Context, tel Telemetry, name string, bytes int64, attrs ...attribute.KeyValue) {
	tel.RecordCounter(ctx, name, bytes, attrs...)
}

// Attribute keys
const (
	AttrOperationType = "operation.type"
	AttrComponent     = "component"
	AttrStatus        = "status"
	AttrErrorType     = "error.type"
	AttrKey           = "record.key"
	AttrBlock         = "block.index"
)

// Operation types
const (
	OpTypeInsert         = "insert"
	OpTypeSearch         = "search"
	OpTypeLogicalDelete  = "logical_delete"
	OpTypePhysicalDelete = "physical_delete"
	OpTypeScan           = "scan"
	OpTypeRepack         = "repack"
	OpTypeBulkLoad       = "bulk_load"
	OpTypeCompact        = "compact"
	OpTypeVerify         = "verify"
	OpTypeExport         = "export"
	OpTypeImport         = "import"
)

// Status values
const (
	StatusSuccess   = "success"
	StatusError     = "error"
	StatusNotFound  = "not_found"
	StatusDuplicate = "duplicate"
)

// Component names
const (
	ComponentStore  = "store"
	ComponentBackup = "backup"
)

// Metric names
const (
	MetricOperationDuration = "tovs.operation.duration"
	MetricOperations        = "tovs.operations"
	MetricBlocksWritten     = "tovs.blocks.written"
	MetricBytesWritten      = "tovs.bytes.written"
	MetricBlocksRead        = "tovs.blocks.read"
)
