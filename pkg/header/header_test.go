package header

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestHeaderEncodeDecode(t *testing.T) {
	h := Header{BlockCount: 7, RecordCount: 1234}

	encoded := h.Encode()
	if len(encoded) != Size {
		t.Fatalf("Encoded header size is %d, expected %d", len(encoded), Size)
	}

	// block_count comes first, little endian
	if encoded[0] != 7 || encoded[4] != 0xD2 || encoded[5] != 0x04 {
		t.Errorf("Unexpected header bytes: %v", encoded)
	}

	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Failed to decode header: %v", err)
	}
	if decoded != h {
		t.Errorf("Header mismatch: got %+v, expected %+v", decoded, h)
	}
}

func TestHeaderDecodeTooSmall(t *testing.T) {
	if _, err := Decode([]byte{1, 2, 3}); err == nil {
		t.Error("Expected error decoding truncated header")
	}
}

func TestHeaderReadWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "header.dat")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}
	defer f.Close()

	// Reading an empty file is a short read
	if _, err := Read(f); !errors.Is(err, ErrShortRead) {
		t.Errorf("Expected ErrShortRead on empty file, got %v", err)
	}

	want := Header{BlockCount: 3, RecordCount: 9}
	if err := Write(f, want); err != nil {
		t.Fatalf("Failed to write header: %v", err)
	}

	got, err := Read(f)
	if err != nil {
		t.Fatalf("Failed to read header: %v", err)
	}
	if got != want {
		t.Errorf("Read header %+v, expected %+v", got, want)
	}

	// Overwrite in place
	want.RecordCount = 10
	if err := Write(f, want); err != nil {
		t.Fatalf("Failed to rewrite header: %v", err)
	}
	info, _ := f.Stat()
	if info.Size() != Size {
		t.Errorf("File size %d after rewrite, expected %d", info.Size(), Size)
	}
}
