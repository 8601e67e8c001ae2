package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"

	"go.opentelemetry.io/otel/attribute"

	"github.com/KevoDB/tovs/pkg/block"
	"github.com/KevoDB/tovs/pkg/record"
	"github.com/KevoDB/tovs/pkg/stats"
	"github.com/KevoDB/tovs/pkg/telemetry"
)

// Insert adds rec in key order and repacks the file. An active record with
// the same key makes Insert return ErrDuplicateKey without touching the file.
func (s *Store) Insert(ctx context.Context, rec record.Record) error {
	ctx, finish := s.begin(ctx, stats.OpInsert, telemetry.OpTypeInsert, attribute.Int(telemetry.AttrKey, int(rec.Key)))

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.insertLocked(ctx, rec)
	finish(err)
	return err
}

func (s *Store) insertLocked(ctx context.Context, rec record.Record) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	rec.Tombstone = false
	if err := rec.Validate(); err != nil {
		return err
	}

	records, err := s.loadAll(ctx)
	if err != nil {
		return err
	}

	if slices.ContainsFunc(records, func(r record.Record) bool {
		return r.IsActive() && r.Key == rec.Key
	}) {
		s.logger.Debug("Rejected duplicate key %d", rec.Key)
		return fmt.Errorf("%w: %d", ErrDuplicateKey, rec.Key)
	}

	pos := slices.IndexFunc(records, func(r record.Record) bool {
		return r.Key >= rec.Key
	})
	if pos < 0 {
		pos = len(records)
	}
	records = slices.Insert(records, pos, rec)

	if err := s.repack(ctx, records); err != nil {
		return err
	}
	s.logger.Debug("Inserted key %d at position %d", rec.Key, pos)
	return nil
}

// LogicalDelete tombstones the first active record with key. Only the block
// holding it is rewritten and the header is left as it was.
func (s *Store) LogicalDelete(ctx context.Context, key int32) error {
	ctx, finish := s.begin(ctx, stats.OpLogicalDelete, telemetry.OpTypeLogicalDelete, attribute.Int(telemetry.AttrKey, int(key)))

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.logicalDeleteLocked(ctx, key)
	finish(err)
	return err
}

func (s *Store) logicalDeleteLocked(ctx context.Context, key int32) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := checkContext(ctx); err != nil {
		return err
	}

	var (
		target *block.Block
		loc    Location
		hit    bool
	)
	err := s.scanLocked(func(l Location, raw *block.Block, r record.Record) (bool, error) {
		if r.IsActive() && r.Key == key {
			target, loc, hit = raw, l, true
			return false, nil
		}
		return true, nil
	})
	if err != nil {
		return err
	}
	if !hit {
		s.logger.Debug("Logical delete: key %d not found", key)
		return fmt.Errorf("%w: %d", ErrNotFound, key)
	}

	// Flipping the flag never changes the token length
	tokens := target.Tokens()
	r, err := record.Decode(tokens[loc.Position])
	if err != nil {
		return fmt.Errorf("%w: block %d position %d: %w", ErrCorruptBlock, loc.Block, loc.Position, err)
	}
	r.Tombstone = true
	token, err := record.Encode(r)
	if err != nil {
		return err
	}
	tokens[loc.Position] = token
	if err := target.SetTokens(tokens); err != nil {
		return fmt.Errorf("%w: block %d: %w", ErrCorruptBlock, loc.Block, err)
	}

	if err := block.Write(s.file, loc.Block, target); err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	if err := s.sync(); err != nil {
		return err
	}

	s.stats.TrackBlocks(true, 1)
	s.stats.TrackBytes(true, uint64(block.EncodedSize(s.capacity)))
	s.tel.RecordCounter(ctx, telemetry.MetricBlocksWritten, 1)

	s.logger.Debug("Tombstoned key %d at %s", key, loc)
	return nil
}

// PhysicalDelete removes every record with key, tombstoned ones included, and
// repacks the file. It returns how many records were dropped.
func (s *Store) PhysicalDelete(ctx context.Context, key int32) (int, error) {
	ctx, finish := s.begin(ctx, stats.OpPhysicalDelete, telemetry.OpTypePhysicalDelete, attribute.Int(telemetry.AttrKey, int(key)))

	s.mu.Lock()
	defer s.mu.Unlock()

	removed, err := s.removeLocked(ctx, func(r record.Record) bool {
		return r.Key == key
	})
	if err == nil && removed == 0 {
		s.logger.Debug("Physical delete: key %d not found", key)
		err = fmt.Errorf("%w: %d", ErrNotFound, key)
	}
	finish(err)
	if err != nil {
		return 0, err
	}
	s.logger.Debug("Removed %d records with key %d", removed, key)
	return removed, nil
}

// Compact drops every tombstoned record in a single repack. A store without
// tombstones is not rewritten.
func (s *Store) Compact(ctx context.Context) (int, error) {
	ctx, finish := s.begin(ctx, stats.OpCompact, telemetry.OpTypeCompact)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed, err := s.removeLocked(ctx, func(r record.Record) bool {
		return r.Tombstone
	})
	finish(err)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.logger.Info("Compacted %d tombstoned records", removed)
	}
	return removed, nil
}

// removeLocked drops records matching drop and repacks when anything matched
func (s *Store) removeLocked(ctx context.Context, drop func(record.Record) bool) (int, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}

	records, err := s.loadAll(ctx)
	if err != nil {
		return 0, err
	}

	before := len(records)
	records = slices.DeleteFunc(records, drop)
	removed := before - len(records)
	if removed == 0 {
		return 0, nil
	}

	if err := s.repack(ctx, records); err != nil {
		return 0, err
	}
	return removed, nil
}

// BulkLoad inserts synthesized records with keys 1..n in ascending order.
// Keys already present are skipped. It returns the number inserted.
func (s *Store) BulkLoad(ctx context.Context, n int) (int, error) {
	ctx, finish := s.begin(ctx, stats.OpBulkLoad, telemetry.OpTypeBulkLoad, attribute.Int("record.count", n))

	if n < 0 || n > math.MaxInt32 {
		err := fmt.Errorf("%w: %d", ErrInvalidCount, n)
		finish(err)
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	inserted, skipped := 0, 0
	var err error
	for key := 1; key <= n; key++ {
		err = s.insertLocked(ctx, record.Synthesize(int32(key)))
		if err == nil {
			inserted++
			continue
		}
		if errors.Is(err, ErrDuplicateKey) {
			skipped++
			s.logger.Warn("Bulk load skipped duplicate key %d", key)
			err = nil
			continue
		}
		break
	}
	finish(err)
	if err != nil {
		return inserted, err
	}

	s.logger.Info("Bulk loaded %d records (%d duplicates skipped)", inserted, skipped)
	return inserted, nil
}
