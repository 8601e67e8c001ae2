package store

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/KevoDB/tovs/pkg/block"
	"github.com/KevoDB/tovs/pkg/record"
	"github.com/KevoDB/tovs/pkg/stats"
	"github.com/KevoDB/tovs/pkg/telemetry"
)

// decodedBlock is one block read back from disk
type decodedBlock struct {
	raw     *block.Block
	records []record.Record
}

func decodeBlock(index uint32, b *block.Block) ([]record.Record, error) {
	tokens := b.Tokens()
	records := make([]record.Record, 0, len(tokens))
	for pos, token := range tokens {
		r, err := record.Decode(token)
		if err != nil {
			return nil, fmt.Errorf("%w: block %d position %d: %w", ErrCorruptBlock, index, pos, err)
		}
		records = append(records, r)
	}
	return records, nil
}

// loadBlocks reads and decodes every block. Blocks are decoded concurrently
// and returned in block order. Must be called with s.mu held.
func (s *Store) loadBlocks(ctx context.Context) ([]decodedBlock, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	n := s.hdr.BlockCount
	blocks := make([]decodedBlock, n)

	var g errgroup.Group
	g.SetLimit(s.cfg.DecodeWorkers)
	for i := uint32(0); i < n; i++ {
		g.Go(func() error {
			b, err := s.readBlock(s.file, i)
			if err != nil {
				return err
			}
			records, err := decodeBlock(i, b)
			if err != nil {
				return err
			}
			blocks[i] = decodedBlock{raw: b, records: records}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return blocks, nil
}

// loadAll returns every record, tombstoned ones included, in on-disk order.
// Must be called with s.mu held.
func (s *Store) loadAll(ctx context.Context) ([]record.Record, error) {
	blocks, err := s.loadBlocks(ctx)
	if err != nil {
		return nil, err
	}

	records := make([]record.Record, 0, s.hdr.RecordCount)
	for _, b := range blocks {
		records = append(records, b.records...)
	}
	return records, nil
}

// scanLocked walks blocks in order and calls fn for every record, active or
// not, until fn returns false. Must be called with s.mu held.
func (s *Store) scanLocked(fn func(loc Location, raw *block.Block, r record.Record) (bool, error)) error {
	for i := uint32(0); i < s.hdr.BlockCount; i++ {
		b, err := s.readBlock(s.file, i)
		if err != nil {
			return err
		}
		records, err := decodeBlock(i, b)
		if err != nil {
			return err
		}
		for pos, r := range records {
			more, err := fn(Location{Block: i, Position: pos}, b, r)
			if err != nil || !more {
				return err
			}
		}
	}
	return nil
}

// Search returns the first active record with key and where it lives.
// A miss is reported as ErrNotFound.
func (s *Store) Search(ctx context.Context, key int32) (Location, record.Record, error) {
	ctx, finish := s.begin(ctx, stats.OpSearch, telemetry.OpTypeSearch, attribute.Int(telemetry.AttrKey, int(key)))

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(); err != nil {
		finish(err)
		return Location{}, record.Record{}, err
	}

	var (
		found Location
		rec   record.Record
		hit   bool
	)
	err := s.scanLocked(func(loc Location, _ *block.Block, r record.Record) (bool, error) {
		if r.IsActive() && r.Key == key {
			found, rec, hit = loc, r, true
			return false, nil
		}
		return true, nil
	})
	if err == nil && !hit {
		err = ErrNotFound
	}
	finish(err)
	if err != nil {
		return Location{}, record.Record{}, err
	}
	return found, rec, nil
}

// Scan calls fn for every active record in on-disk order until fn returns false.
// fn runs with the store locked and must not call back into the Store; collect
// what it needs and act after Scan returns.
func (s *Store) Scan(ctx context.Context, fn func(Location, record.Record) bool) error {
	_, finish := s.begin(ctx, stats.OpScan, telemetry.OpTypeScan)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(); err != nil {
		finish(err)
		return err
	}

	err := s.scanLocked(func(loc Location, _ *block.Block, r record.Record) (bool, error) {
		if !r.IsActive() {
			return true, nil
		}
		return fn(loc, r), nil
	})
	finish(err)
	return err
}

// Enumerate returns every active record in on-disk order
func (s *Store) Enumerate(ctx context.Context) ([]record.Record, error) {
	var records []record.Record
	err := s.Scan(ctx, func(_ Location, r record.Record) bool {
		records = append(records, r)
		return true
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// DumpBlock returns the active records of a single block
func (s *Store) DumpBlock(ctx context.Context, index uint32) ([]record.Record, error) {
	_, finish := s.begin(ctx, stats.OpScan, telemetry.OpTypeScan, attribute.Int(telemetry.AttrBlock, int(index)))

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(); err != nil {
		finish(err)
		return nil, err
	}
	if index >= s.hdr.BlockCount {
		err := fmt.Errorf("%w: %d of %d", ErrBlockOutOfRange, index, s.hdr.BlockCount)
		finish(err)
		return nil, err
	}

	b, err := s.readBlock(s.file, index)
	if err != nil {
		finish(err)
		return nil, err
	}
	records, err := decodeBlock(index, b)
	if err != nil {
		finish(err)
		return nil, err
	}

	active := make([]record.Record, 0, len(records))
	for _, r := range records {
		if r.IsActive() {
			active = append(active, r)
		}
	}
	finish(nil)
	return active, nil
}
