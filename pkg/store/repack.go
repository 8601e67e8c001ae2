package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/KevoDB/tovs/pkg/block"
	"github.com/KevoDB/tovs/pkg/header"
	"github.com/KevoDB/tovs/pkg/record"
	"github.com/KevoDB/tovs/pkg/telemetry"
)

// repack rewrites the whole file from records and persists the new header.
// Must be called with s.mu held.
func (s *Store) repack(ctx context.Context, records []record.Record) error {
	if err := checkContext(ctx); err != nil {
		return err
	}

	start := time.Now()
	ctx, span := s.tel.StartSpan(ctx, "store.repack",
		attribute.Int("record.count", len(records)))
	defer span.End()

	var (
		h   header.Header
		err error
	)
	if s.cfg.AtomicRepack {
		h, err = s.repackAtomic(records)
	} else {
		h, err = s.repackInPlace(records)
	}
	if err != nil {
		span.RecordError(err)
		s.logger.Error("Repack of %d records failed: %v", len(records), err)
		return err
	}

	s.hdr = h
	s.stats.TrackRepack()
	s.stats.TrackBlocks(true, uint64(h.BlockCount))
	written := int64(header.Size) + int64(h.BlockCount)*int64(block.EncodedSize(s.capacity))
	s.stats.TrackBytes(true, uint64(written))

	telemetry.RecordDuration(ctx, s.tel, telemetry.MetricOperationDuration, start,
		attribute.String(telemetry.AttrOperationType, telemetry.OpTypeRepack))
	s.tel.RecordCounter(ctx, telemetry.MetricBlocksWritten, int64(h.BlockCount))
	telemetry.RecordBytes(ctx, s.tel, telemetry.MetricBytesWritten, written)

	s.logger.Debug("Repacked %d records into %d blocks", h.RecordCount, h.BlockCount)
	return nil
}

// repackInPlace overwrites blocks from 0 forward, truncates the tail and
// writes the header last. A failure part way leaves a partially rewritten
// file.
func (s *Store) repackInPlace(records []record.Record) (header.Header, error) {
	h, err := block.Pack(records, s.capacity, func(index uint32, b *block.Block) error {
		if err := block.Write(s.file, index, b); err != nil {
			return fmt.Errorf("%w: %w", ErrIO, err)
		}
		return nil
	})
	if err != nil {
		return header.Header{}, err
	}

	if err := s.file.Truncate(block.Offset(h.BlockCount, s.capacity)); err != nil {
		return header.Header{}, fmt.Errorf("%w: truncate: %w", ErrIO, err)
	}
	if err := header.Write(s.file, h); err != nil {
		return header.Header{}, fmt.Errorf("%w: %w", ErrIO, err)
	}
	if err := s.sync(); err != nil {
		return header.Header{}, err
	}
	return h, nil
}

// repackAtomic stages header and blocks in a sibling temporary file and
// renames it over the store file. The open handle is swapped for the new
// file; on failure before the rename the original file is untouched.
func (s *Store) repackAtomic(records []record.Record) (header.Header, error) {
	dir := filepath.Dir(s.path)
	tmpPath := filepath.Join(dir, fmt.Sprintf(".%s.tmp", filepath.Base(s.path)))

	tmp, err := os.OpenFile(tmpPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return header.Header{}, fmt.Errorf("%w: create temporary file: %w", ErrIO, err)
	}
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	h, err := block.Pack(records, s.capacity, func(index uint32, b *block.Block) error {
		if err := block.Write(tmp, index, b); err != nil {
			return fmt.Errorf("%w: %w", ErrIO, err)
		}
		return nil
	})
	if err != nil {
		cleanup()
		return header.Header{}, err
	}

	if err := header.Write(tmp, h); err != nil {
		cleanup()
		return header.Header{}, fmt.Errorf("%w: %w", ErrIO, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return header.Header{}, fmt.Errorf("%w: sync temporary file: %w", ErrIO, err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		cleanup()
		return header.Header{}, fmt.Errorf("%w: rename temporary file: %w", ErrIO, err)
	}

	// The renamed file is the store now; keep its handle and drop the old one
	old := s.file
	s.file = tmp
	if err := old.Close(); err != nil {
		s.logger.Warn("Failed to close replaced store file: %v", err)
	}
	return h, nil
}
