// Package store implements the tovs record store: a single flat file holding
// an 8-byte header followed by fixed-size blocks of sorted, delimiter-joined
// text records.
//
// Every structural change (insert, physical delete, compaction, import) loads
// the whole record set, edits it in memory and repacks it into blocks from
// block 0 onwards. Logical deletes only rewrite the block holding the record.
//
// A Store serializes its own operations; it is not meant to be shared between
// processes.
package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/KevoDB/tovs/pkg/block"
	"github.com/KevoDB/tovs/pkg/common/log"
	"github.com/KevoDB/tovs/pkg/config"
	"github.com/KevoDB/tovs/pkg/header"
	"github.com/KevoDB/tovs/pkg/stats"
	"github.com/KevoDB/tovs/pkg/telemetry"
)

// Location identifies a record by block index and position inside the block
type Location struct {
	Block    uint32
	Position int
}

// String implements fmt.Stringer
func (l Location) String() string {
	return fmt.Sprintf("block %d, position %d", l.Block, l.Position)
}

// Option configures a Store at open time
type Option func(*Store)

// WithConfig replaces the default configuration
func WithConfig(cfg *config.Config) Option {
	return func(s *Store) {
		s.cfg = cfg
	}
}

// WithLogger sets the logger
func WithLogger(logger log.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithStats sets the statistics collector
func WithStats(collector stats.Collector) Option {
	return func(s *Store) {
		s.stats = collector
	}
}

// WithTelemetry sets the telemetry sink
func WithTelemetry(tel telemetry.Telemetry) Option {
	return func(s *Store) {
		s.tel = tel
	}
}

// Store is an open record store file
type Store struct {
	mu sync.Mutex

	path     string
	cfg      *config.Config
	capacity int

	file   *os.File
	hdr    header.Header
	closed bool
	unlock func() error

	logger log.Logger
	stats  stats.Collector
	tel    telemetry.Telemetry
}

// Open opens the store file at path, creating it with an empty header when
// it does not exist.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{path: path}
	for _, opt := range opts {
		opt(s)
	}

	if s.cfg == nil {
		s.cfg = config.NewDefaultConfig(path)
	}
	if err := s.cfg.Validate(); err != nil {
		return nil, err
	}
	s.capacity = s.cfg.BlockSize

	if s.logger == nil {
		s.logger = log.GetDefaultLogger()
	}
	s.logger = s.logger.WithField("component", "store").WithField("path", path)
	if s.stats == nil {
		s.stats = stats.NewAtomicCollector()
	}
	if s.tel == nil {
		s.tel = telemetry.NewNoop()
	}

	if s.cfg.LockFile {
		unlock, err := acquireLock(path)
		if err != nil {
			return nil, err
		}
		s.unlock = unlock
	}

	if err := s.openFile(); err != nil {
		s.releaseLock()
		return nil, err
	}

	s.logger.Info("Opened store: %s, block size %d", s.hdr, s.capacity)
	return s, nil
}

func (s *Store) openFile() error {
	f, err := os.OpenFile(s.path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("%w: open %s: %w", ErrIO, s.path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("%w: stat %s: %w", ErrIO, s.path, err)
	}

	if info.Size() == 0 {
		// Fresh file
		if err := header.Write(f, header.Header{}); err != nil {
			f.Close()
			return fmt.Errorf("%w: %w", ErrIO, err)
		}
		if err := f.Sync(); err != nil {
			f.Close()
			return fmt.Errorf("%w: sync: %w", ErrIO, err)
		}
		s.file = f
		s.hdr = header.Header{}
		return nil
	}

	h, err := readHeader(f)
	if err != nil {
		f.Close()
		return err
	}

	if err := s.checkHeader(h, info.Size()); err != nil {
		f.Close()
		return err
	}

	s.file = f
	s.hdr = h
	return nil
}

// readHeader reads the header of an existing file. A file too short to hold
// one is corrupt; any other read failure is an I/O error.
func readHeader(r io.ReaderAt) (header.Header, error) {
	h, err := header.Read(r)
	if err == nil {
		return h, nil
	}
	if errors.Is(err, header.ErrShortRead) {
		return header.Header{}, fmt.Errorf("%w: %w", ErrCorruptHeader, err)
	}
	return header.Header{}, fmt.Errorf("%w: %w", ErrIO, err)
}

// checkHeader rejects headers that promise more than the file holds, before
// anything is sized from them
func (s *Store) checkHeader(h header.Header, size int64) error {
	needed := block.Offset(h.BlockCount, s.capacity)
	if needed > size {
		return fmt.Errorf("%w: %d blocks of %d bytes need %d bytes, file has %d",
			ErrCorruptHeader, h.BlockCount, block.EncodedSize(s.capacity), needed, size)
	}
	if uint64(h.RecordCount) > uint64(h.BlockCount)*uint64(s.capacity) {
		return fmt.Errorf("%w: %d records cannot fit in %d blocks",
			ErrCorruptHeader, h.RecordCount, h.BlockCount)
	}
	return nil
}

// Close flushes the header and releases the file. Closing twice is a no-op.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var firstErr error
	if s.file != nil {
		if err := header.Write(s.file, s.hdr); err != nil {
			firstErr = fmt.Errorf("%w: %w", ErrIO, err)
		}
		if err := s.file.Sync(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("%w: sync: %w", ErrIO, err)
		}
		if err := s.file.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("%w: close: %w", ErrIO, err)
		}
		s.file = nil
	}

	if err := s.releaseLock(); err != nil && firstErr == nil {
		firstErr = err
	}

	s.logger.Info("Closed store: %s", s.hdr)
	return firstErr
}

func (s *Store) releaseLock() error {
	if s.unlock == nil {
		return nil
	}
	err := s.unlock()
	s.unlock = nil
	return err
}

// Header returns the in-memory header
func (s *Store) Header() header.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hdr
}

// Path returns the store file path
func (s *Store) Path() string {
	return s.path
}

// BlockSize returns the payload capacity of a block
func (s *Store) BlockSize() int {
	return s.capacity
}

// Stats returns the operation statistics of this handle
func (s *Store) Stats() map[string]interface{} {
	result := s.stats.GetStats()
	h := s.Header()
	result["block_count"] = h.BlockCount
	result["record_count"] = h.RecordCount
	return result
}

// checkOpen must be called with s.mu held
func (s *Store) checkOpen() error {
	if s.closed || s.file == nil {
		return ErrStoreClosed
	}
	return nil
}

func (s *Store) sync() error {
	if !s.cfg.SyncWrites {
		return nil
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("%w: sync: %w", ErrIO, err)
	}
	return nil
}

// readBlock reads and accounts for one block of the current file
func (s *Store) readBlock(r io.ReaderAt, index uint32) (*block.Block, error) {
	b, err := block.Read(r, index, s.capacity)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}
	s.stats.TrackBlocks(false, 1)
	s.stats.TrackBytes(false, uint64(block.EncodedSize(s.capacity)))
	return b, nil
}

// checkContext reports cancellation before any rewrite begins
func checkContext(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	return ctx.Err()
}
