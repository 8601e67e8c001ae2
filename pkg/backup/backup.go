// Package backup writes and reads portable exports of a record set.
//
// An export is a fixed frame header followed by the body:
//
//	magic(8) | version(4) | codec(4) | count(4) | rawLen(4) | checksum(8) | body
//
// The body is the encoded records joined by the block delimiter, optionally
// compressed. The checksum is the xxhash64 of the uncompressed body.
package backup

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/KevoDB/tovs/pkg/record"
)

const (
	// FrameSize is the size of the frame header in bytes
	FrameSize = 32
	// Magic identifies a tovs export
	Magic = uint64(0x50584553564F5421)
	// CurrentVersion is the current export format version
	CurrentVersion = uint32(1)
	// MaxBodySize bounds the uncompressed body accepted by Import
	MaxBodySize = 1 << 30
)

var (
	// ErrInvalidMagic is returned when the input is not an export
	ErrInvalidMagic = errors.New("invalid export magic")
	// ErrUnsupportedVersion is returned for exports of a newer format
	ErrUnsupportedVersion = errors.New("unsupported export version")
	// ErrChecksumMismatch is returned when the body does not match its checksum
	ErrChecksumMismatch = errors.New("export checksum mismatch")
	// ErrCountMismatch is returned when the body holds a different number of records
	ErrCountMismatch = errors.New("export record count mismatch")
	// ErrTooLarge is returned when the body exceeds MaxBodySize
	ErrTooLarge = errors.New("export body too large")
)

// Frame is the header preceding an export body
type Frame struct {
	Magic    uint64
	Version  uint32
	Codec    Codec
	Count    uint32
	RawLen   uint32
	Checksum uint64
}

// Encode serializes the frame header
func (f Frame) Encode() []byte {
	result := make([]byte, FrameSize)
	binary.LittleEndian.PutUint64(result[0:8], f.Magic)
	binary.LittleEndian.PutUint32(result[8:12], f.Version)
	binary.LittleEndian.PutUint32(result[12:16], uint32(f.Codec))
	binary.LittleEndian.PutUint32(result[16:20], f.Count)
	binary.LittleEndian.PutUint32(result[20:24], f.RawLen)
	binary.LittleEndian.PutUint64(result[24:32], f.Checksum)
	return result
}

// DecodeFrame parses and checks a frame header
func DecodeFrame(data []byte) (Frame, error) {
	if len(data) < FrameSize {
		return Frame{}, fmt.Errorf("frame data too small: %d bytes, expected %d",
			len(data), FrameSize)
	}

	f := Frame{
		Magic:    binary.LittleEndian.Uint64(data[0:8]),
		Version:  binary.LittleEndian.Uint32(data[8:12]),
		Codec:    Codec(binary.LittleEndian.Uint32(data[12:16])),
		Count:    binary.LittleEndian.Uint32(data[16:20]),
		RawLen:   binary.LittleEndian.Uint32(data[20:24]),
		Checksum: binary.LittleEndian.Uint64(data[24:32]),
	}

	if f.Magic != Magic {
		return Frame{}, fmt.Errorf("%w: %x, expected %x", ErrInvalidMagic, f.Magic, Magic)
	}
	if f.Version == 0 || f.Version > CurrentVersion {
		return Frame{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, f.Version)
	}
	if _, ok := codecNames[f.Codec]; !ok {
		return Frame{}, fmt.Errorf("%w: %d", ErrUnknownCodec, uint32(f.Codec))
	}
	if f.RawLen > MaxBodySize {
		return Frame{}, fmt.Errorf("%w: %d bytes", ErrTooLarge, f.RawLen)
	}
	return f, nil
}

// Export writes records to w. Records are written in the given order,
// tombstoned ones included.
func Export(w io.Writer, records []record.Record, codec Codec) (Frame, error) {
	if _, ok := codecNames[codec]; !ok {
		return Frame{}, fmt.Errorf("%w: %d", ErrUnknownCodec, uint32(codec))
	}

	tokens := make([]string, 0, len(records))
	for _, r := range records {
		token, err := record.Encode(r)
		if err != nil {
			return Frame{}, fmt.Errorf("failed to encode record %d: %w", r.Key, err)
		}
		tokens = append(tokens, token)
	}
	raw := []byte(strings.Join(tokens, record.Delimiter))
	if len(raw) > MaxBodySize {
		return Frame{}, fmt.Errorf("%w: %d bytes", ErrTooLarge, len(raw))
	}

	body, err := compress(raw, codec)
	if err != nil {
		return Frame{}, err
	}

	f := Frame{
		Magic:    Magic,
		Version:  CurrentVersion,
		Codec:    codec,
		Count:    uint32(len(records)),
		RawLen:   uint32(len(raw)),
		Checksum: xxhash.Sum64(raw),
	}
	if _, err := w.Write(f.Encode()); err != nil {
		return Frame{}, fmt.Errorf("failed to write export frame: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return Frame{}, fmt.Errorf("failed to write export body: %w", err)
	}
	return f, nil
}

// Import reads an export written by Export
func Import(r io.Reader) ([]record.Record, Frame, error) {
	buf := make([]byte, FrameSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, Frame{}, fmt.Errorf("failed to read export frame: %w", err)
	}
	f, err := DecodeFrame(buf)
	if err != nil {
		return nil, Frame{}, err
	}

	// Compressed bodies are never much larger than the raw body
	limit := int64(f.RawLen) + int64(f.RawLen)/2 + 1024
	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, Frame{}, fmt.Errorf("failed to read export body: %w", err)
	}
	if int64(len(body)) > limit {
		return nil, Frame{}, fmt.Errorf("%w: body exceeds %d bytes", ErrTooLarge, limit)
	}

	raw, err := decompress(body, f.Codec, int(f.RawLen))
	if err != nil {
		return nil, Frame{}, err
	}
	if sum := xxhash.Sum64(raw); sum != f.Checksum {
		return nil, Frame{}, fmt.Errorf("%w: frame has %x, calculated %x", ErrChecksumMismatch, f.Checksum, sum)
	}

	if len(raw) == 0 {
		if f.Count != 0 {
			return nil, Frame{}, fmt.Errorf("%w: frame has %d, body is empty", ErrCountMismatch, f.Count)
		}
		return nil, f, nil
	}

	tokens := strings.Split(string(raw), record.Delimiter)
	if len(tokens) != int(f.Count) {
		return nil, Frame{}, fmt.Errorf("%w: frame has %d, body has %d", ErrCountMismatch, f.Count, len(tokens))
	}

	records := make([]record.Record, 0, len(tokens))
	for i, token := range tokens {
		rec, err := record.Decode(token)
		if err != nil {
			return nil, Frame{}, fmt.Errorf("record %d: %w", i, err)
		}
		records = append(records, rec)
	}
	return records, f, nil
}
