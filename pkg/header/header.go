// Package header implements the fixed-width file header that sits at offset 0
// of every tovs store file.
package header

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// Size is the encoded size of the header in bytes
	Size = 8
)

var (
	// ErrShortRead is returned when fewer than Size bytes could be read
	ErrShortRead = errors.New("short header read")
	// ErrShortWrite is returned when fewer than Size bytes could be written
	ErrShortWrite = errors.New("short header write")
)

// Header is the file-level metadata of a store file.
//
// RecordCount counts every encoded record, tombstoned ones included.
type Header struct {
	// Number of blocks physically written after the header
	BlockCount uint32
	// Number of records encoded across all blocks
	RecordCount uint32
}

// Encode serializes the header to a byte slice
func (h Header) Encode() []byte {
	result := make([]byte, Size)
	binary.LittleEndian.PutUint32(result[0:4], h.BlockCount)
	binary.LittleEndian.PutUint32(result[4:8], h.RecordCount)
	return result
}

// Decode parses a header from a byte slice
func Decode(data []byte) (Header, error) {
	if len(data) < Size {
		return Header{}, fmt.Errorf("header data too small: %d bytes, expected %d",
			len(data), Size)
	}

	return Header{
		BlockCount:  binary.LittleEndian.Uint32(data[0:4]),
		RecordCount: binary.LittleEndian.Uint32(data[4:8]),
	}, nil
}

// Read loads the header stored at offset 0
func Read(r io.ReaderAt) (Header, error) {
	buf := make([]byte, Size)
	n, err := r.ReadAt(buf, 0)
	if n < Size {
		if err == nil || err == io.EOF {
			err = ErrShortRead
		}
		return Header{}, fmt.Errorf("failed to read header (%d of %d bytes): %w", n, Size, err)
	}
	return Decode(buf)
}

// Write overwrites the header at offset 0 as a single write
func Write(w io.WriterAt, h Header) error {
	n, err := w.WriteAt(h.Encode(), 0)
	if err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if n != Size {
		return fmt.Errorf("wrote incomplete header: %d of %d bytes: %w", n, Size, ErrShortWrite)
	}
	return nil
}

// String implements fmt.Stringer
func (h Header) String() string {
	return fmt.Sprintf("blocks=%d records=%d", h.BlockCount, h.RecordCount)
}
