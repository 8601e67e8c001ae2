package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"

	"github.com/KevoDB/tovs/pkg/block"
	"github.com/KevoDB/tovs/pkg/record"
	"github.com/KevoDB/tovs/pkg/stats"
	"github.com/KevoDB/tovs/pkg/telemetry"
)

// Report is the result of a consistency check
type Report struct {
	Blocks       uint32
	Records      uint32
	Active       int
	Tombstones   int
	FileSize     int64
	ExpectedSize int64

	// Digest is the xxhash64 of every block payload in block order
	Digest uint64

	Problems []string
	Warnings []string
}

// OK reports whether no problems were found. Warnings do not count.
func (r Report) OK() bool {
	return len(r.Problems) == 0
}

// String implements fmt.Stringer
func (r Report) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "blocks=%d records=%d active=%d tombstones=%d size=%d/%d digest=%016x",
		r.Blocks, r.Records, r.Active, r.Tombstones, r.FileSize, r.ExpectedSize, r.Digest)
	for _, p := range r.Problems {
		sb.WriteString("\nproblem: ")
		sb.WriteString(p)
	}
	for _, w := range r.Warnings {
		sb.WriteString("\nwarning: ")
		sb.WriteString(w)
	}
	return sb.String()
}

func (r *Report) problem(format string, args ...interface{}) {
	r.Problems = append(r.Problems, fmt.Sprintf(format, args...))
}

func (r *Report) warn(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Verify reads the whole file and checks it against the layout invariants.
// Inconsistencies are collected in the report; the error is only set when
// the file cannot be read at all.
func (s *Store) Verify(ctx context.Context) (Report, error) {
	ctx, finish := s.begin(ctx, stats.OpVerify, telemetry.OpTypeVerify)

	s.mu.Lock()
	defer s.mu.Unlock()

	report, err := s.verifyLocked(ctx)
	finish(err)
	if err != nil {
		return Report{}, err
	}

	if report.OK() {
		s.logger.Info("Verified store: %d blocks, %d records, %d warnings",
			report.Blocks, report.Records, len(report.Warnings))
	} else {
		s.logger.Warn("Store verification found %d problems", len(report.Problems))
	}
	return report, nil
}

func (s *Store) verifyLocked(ctx context.Context) (Report, error) {
	if err := s.checkOpen(); err != nil {
		return Report{}, err
	}
	if err := checkContext(ctx); err != nil {
		return Report{}, err
	}

	info, err := s.file.Stat()
	if err != nil {
		return Report{}, fmt.Errorf("%w: stat: %w", ErrIO, err)
	}

	report := Report{
		Blocks:       s.hdr.BlockCount,
		Records:      s.hdr.RecordCount,
		FileSize:     info.Size(),
		ExpectedSize: block.Offset(s.hdr.BlockCount, s.capacity),
	}
	switch {
	case report.FileSize < report.ExpectedSize:
		report.problem("file is %d bytes, header needs %d", report.FileSize, report.ExpectedSize)
		return report, nil
	case report.FileSize > report.ExpectedSize:
		report.warn("%d trailing bytes after last block", report.FileSize-report.ExpectedSize)
	}

	raws := make([]*block.Block, report.Blocks)
	var g errgroup.Group
	g.SetLimit(s.cfg.DecodeWorkers)
	for i := uint32(0); i < report.Blocks; i++ {
		g.Go(func() error {
			b, err := s.readBlock(s.file, i)
			if err != nil {
				return err
			}
			raws[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	digest := xxhash.New()
	var (
		total   int
		started bool
		lastKey int32
		active  = make(map[int32]Location)
	)
	for i, b := range raws {
		index := uint32(i)
		digest.Write(b.Payload())

		if b.Empty() {
			report.warn("block %d is empty", index)
		}
		if int(b.BytesUsed) != b.Len() || int(b.RecordCount) != b.Records() {
			report.warn("block %d trailer says %d bytes/%d records, payload has %d/%d",
				index, b.BytesUsed, b.RecordCount, b.Len(), b.Records())
		}

		for pos, token := range b.Tokens() {
			total++
			r, err := record.Decode(token)
			if err != nil {
				report.problem("block %d position %d: %v", index, pos, err)
				continue
			}
			loc := Location{Block: index, Position: pos}

			if started && r.Key < lastKey {
				report.problem("key %d at %s follows key %d", r.Key, loc, lastKey)
			}
			started, lastKey = true, r.Key

			if !r.IsActive() {
				report.Tombstones++
				continue
			}
			report.Active++
			if prev, ok := active[r.Key]; ok {
				report.problem("key %d active at both %s and %s", r.Key, prev, loc)
				continue
			}
			active[r.Key] = loc
		}
	}

	if total != int(report.Records) {
		report.problem("header counts %d records, blocks hold %d", report.Records, total)
	}
	report.Digest = digest.Sum64()
	return report, nil
}
