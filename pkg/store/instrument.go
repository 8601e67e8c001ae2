package store

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/KevoDB/tovs/pkg/stats"
	"github.com/KevoDB/tovs/pkg/telemetry"
)

// begin opens a span for an operation and returns the function that closes
// it. Duplicate and not-found results are counted as outcomes, not errors.
func (s *Store) begin(ctx context.Context, op stats.OperationType, opType string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	opAttr := attribute.String(telemetry.AttrOperationType, opType)
	ctx, span := s.tel.StartSpan(ctx, "store."+opType, append(attrs, opAttr)...)

	return ctx, func(err error) {
		status := telemetry.StatusSuccess
		switch {
		case err == nil:
		case errors.Is(err, ErrNotFound):
			status = telemetry.StatusNotFound
			s.stats.TrackOutcome(stats.OutcomeNotFound)
		case errors.Is(err, ErrDuplicateKey):
			status = telemetry.StatusDuplicate
			s.stats.TrackOutcome(stats.OutcomeDuplicate)
		default:
			status = telemetry.StatusError
			s.stats.TrackError(errorType(err))
			span.RecordError(err)
		}

		s.stats.TrackOperationWithLatency(op, uint64(time.Since(start).Nanoseconds()))
		statusAttr := attribute.String(telemetry.AttrStatus, status)
		span.SetAttributes(statusAttr)
		span.End()

		telemetry.RecordDuration(ctx, s.tel, telemetry.MetricOperationDuration, start, opAttr, statusAttr)
		s.tel.RecordCounter(ctx, telemetry.MetricOperations, 1, opAttr, statusAttr)
	}
}

func errorType(err error) string {
	switch {
	case errors.Is(err, ErrStoreClosed):
		return "closed"
	case errors.Is(err, ErrIO):
		return "io"
	case errors.Is(err, ErrCorruptBlock), errors.Is(err, ErrCorruptHeader):
		return "corruption"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "invalid"
	}
}
