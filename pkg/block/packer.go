package block

import (
	"fmt"

	"github.com/KevoDB/tovs/pkg/header"
	"github.com/KevoDB/tovs/pkg/record"
)

// EmitFunc receives each finished block in index order
type EmitFunc func(index uint32, b *Block) error

// Packer lays a sorted record sequence out into the minimum number of blocks.
// Records must be added in non-decreasing key order and no two active records
// may share a key.
type Packer struct {
	capacity int
	emit     EmitFunc
	current  *Block

	blocks  uint32
	records uint32

	started       bool
	lastKey       int32
	lastActiveKey int32
	haveActive    bool
}

// NewPacker creates a packer writing blocks of the given capacity through emit
func NewPacker(capacity int, emit EmitFunc) (*Packer, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCapacity, capacity)
	}
	return &Packer{
		capacity: capacity,
		emit:     emit,
		current:  New(capacity),
	}, nil
}

// Add appends a record, flushing the current block first when it would overflow
func (p *Packer) Add(r record.Record) error {
	if err := p.checkOrder(r); err != nil {
		return err
	}

	token, err := record.Encode(r)
	if err != nil {
		return fmt.Errorf("failed to encode record %d: %w", r.Key, err)
	}
	if len(token) > p.capacity {
		return fmt.Errorf("%w: record %d is %d bytes, capacity %d",
			ErrRecordTooLarge, r.Key, len(token), p.capacity)
	}

	if !p.current.Fits(token) {
		if err := p.flush(); err != nil {
			return err
		}
	}

	if err := p.current.Append(token); err != nil {
		return err
	}
	p.records++
	return nil
}

// Finish flushes the last non-empty block and returns the resulting header
func (p *Packer) Finish() (header.Header, error) {
	if !p.current.Empty() {
		if err := p.flush(); err != nil {
			return header.Header{}, err
		}
	}
	return header.Header{BlockCount: p.blocks, RecordCount: p.records}, nil
}

// Blocks returns the number of blocks flushed so far
func (p *Packer) Blocks() uint32 {
	return p.blocks
}

func (p *Packer) flush() error {
	if err := p.emit(p.blocks, p.current); err != nil {
		return err
	}
	p.blocks++
	p.current = New(p.capacity)
	return nil
}

func (p *Packer) checkOrder(r record.Record) error {
	if p.started && r.Key < p.lastKey {
		return fmt.Errorf("%w: got %d after %d", ErrUnsorted, r.Key, p.lastKey)
	}
	if r.IsActive() {
		if p.haveActive && r.Key == p.lastActiveKey {
			return fmt.Errorf("%w: %d", ErrDuplicateKey, r.Key)
		}
		p.lastActiveKey = r.Key
		p.haveActive = true
	}
	p.started = true
	p.lastKey = r.Key
	return nil
}

// Pack lays out records and hands every block to emit
func Pack(records []record.Record, capacity int, emit EmitFunc) (header.Header, error) {
	p, err := NewPacker(capacity, emit)
	if err != nil {
		return header.Header{}, err
	}
	for _, r := range records {
		if err := p.Add(r); err != nil {
			return header.Header{}, err
		}
	}
	return p.Finish()
}
