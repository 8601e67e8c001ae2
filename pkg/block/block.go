package block

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"github.com/KevoDB/tovs/pkg/header"
)

// Block is an in-memory copy of one on-disk block.
//
// BytesUsed and RecordCount mirror the persisted trailer. They are kept up to
// date on write but the payload itself is the only source of truth on reload.
type Block struct {
	Data        []byte
	BytesUsed   uint32
	RecordCount uint32

	used    int
	records int
}

// New creates an empty block with the given payload capacity
func New(capacity int) *Block {
	return &Block{Data: make([]byte, capacity)}
}

// EncodedSize returns the on-disk size of a block with the given capacity
func EncodedSize(capacity int) int {
	return capacity + TrailerSize
}

// Offset returns the file offset of the block at index
func Offset(index uint32, capacity int) int64 {
	return int64(header.Size) + int64(index)*int64(EncodedSize(capacity))
}

// Capacity returns the payload capacity in bytes
func (b *Block) Capacity() int {
	return len(b.Data)
}

// Len returns the number of payload bytes in use
func (b *Block) Len() int {
	return b.used
}

// Records returns the number of tokens appended to or decoded from the block
func (b *Block) Records() int {
	return b.records
}

// Empty reports whether the block holds no records
func (b *Block) Empty() bool {
	return b.records == 0
}

// Cost returns the number of bytes appending token would consume
func (b *Block) Cost(token string) int {
	if b.records > 0 {
		return len(token) + 1
	}
	return len(token)
}

// Fits reports whether token can be appended without exceeding capacity
func (b *Block) Fits(token string) bool {
	return b.used+b.Cost(token) <= len(b.Data)
}

// Append adds an encoded record to the payload
func (b *Block) Append(token string) error {
	if len(token) > len(b.Data) {
		return fmt.Errorf("%w: %d bytes, capacity %d", ErrRecordTooLarge, len(token), len(b.Data))
	}
	if !b.Fits(token) {
		return fmt.Errorf("%w: need %d bytes, %d free", ErrBlockFull, b.Cost(token), len(b.Data)-b.used)
	}

	if b.records > 0 {
		b.Data[b.used] = Delimiter
		b.used++
	}
	b.used += copy(b.Data[b.used:], token)
	b.records++

	b.BytesUsed = uint32(b.used)
	b.RecordCount = uint32(b.records)
	return nil
}

// Reset clears the payload and trailer
func (b *Block) Reset() {
	clear(b.Data)
	b.used = 0
	b.records = 0
	b.BytesUsed = 0
	b.RecordCount = 0
}

// SetTokens replaces the payload with the given tokens
func (b *Block) SetTokens(tokens []string) error {
	b.Reset()
	for _, t := range tokens {
		if err := b.Append(t); err != nil {
			return err
		}
	}
	return nil
}

// Payload returns the delimiter-joined payload bytes
func (b *Block) Payload() []byte {
	return b.Data[:b.used]
}

// Tokens splits the payload into encoded records
func (b *Block) Tokens() []string {
	if b.used == 0 {
		return nil
	}
	return strings.Split(string(b.Payload()), string(Delimiter))
}

// Encode serializes the block to its on-disk form
func (b *Block) Encode() []byte {
	result := make([]byte, EncodedSize(len(b.Data)))
	copy(result, b.Data)
	binary.LittleEndian.PutUint32(result[len(b.Data):], b.BytesUsed)
	binary.LittleEndian.PutUint32(result[len(b.Data)+4:], b.RecordCount)
	return result
}

// Decode parses a block from its on-disk form
func Decode(data []byte, capacity int) (*Block, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCapacity, capacity)
	}
	if len(data) < EncodedSize(capacity) {
		return nil, fmt.Errorf("block data too small: %d bytes, expected %d",
			len(data), EncodedSize(capacity))
	}

	b := &Block{
		Data:        append([]byte(nil), data[:capacity]...),
		BytesUsed:   binary.LittleEndian.Uint32(data[capacity:]),
		RecordCount: binary.LittleEndian.Uint32(data[capacity+4:]),
	}

	// The payload runs up to the first zero byte; the trailer is ignored
	if i := bytes.IndexByte(b.Data, 0); i >= 0 {
		b.used = i
	} else {
		b.used = capacity
	}
	if b.used > 0 {
		b.records = bytes.Count(b.Data[:b.used], []byte{Delimiter}) + 1
	}

	return b, nil
}

// Read reads exactly one block at index
func Read(r io.ReaderAt, index uint32, capacity int) (*Block, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCapacity, capacity)
	}

	buf := make([]byte, EncodedSize(capacity))
	n, err := r.ReadAt(buf, Offset(index, capacity))
	if n < len(buf) {
		if err == nil || err == io.EOF {
			err = ErrShortRead
		}
		return nil, fmt.Errorf("failed to read block %d (%d of %d bytes): %w", index, n, len(buf), err)
	}

	return Decode(buf, capacity)
}

// Write writes exactly one block at index
func Write(w io.WriterAt, index uint32, b *Block) error {
	data := b.Encode()
	n, err := w.WriteAt(data, Offset(index, b.Capacity()))
	if err != nil {
		return fmt.Errorf("failed to write block %d: %w", index, err)
	}
	if n != len(data) {
		return fmt.Errorf("wrote incomplete block %d: %d of %d bytes: %w", index, n, len(data), ErrShortWrite)
	}
	return nil
}
