package backup

import (
	"errors"
	"fmt"
	"strings"

	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
)

var (
	// ErrUnknownCodec is returned when an unsupported compression codec is specified
	ErrUnknownCodec = errors.New("unknown compression codec")

	// ErrInvalidCompressedData is returned when the body cannot be decompressed
	ErrInvalidCompressedData = errors.New("invalid compressed data")
)

// Codec identifies how the export body is compressed
type Codec uint32

const (
	// CodecNone stores the body uncompressed
	CodecNone Codec = iota
	// CodecZstd compresses the body with zstd
	CodecZstd
	// CodecSnappy compresses the body with snappy
	CodecSnappy
)

var codecNames = map[Codec]string{
	CodecNone:   "none",
	CodecZstd:   "zstd",
	CodecSnappy: "snappy",
}

// String returns the codec name
func (c Codec) String() string {
	if name, ok := codecNames[c]; ok {
		return name
	}
	return fmt.Sprintf("codec(%d)", uint32(c))
}

// ParseCodec converts a codec name to a Codec
func ParseCodec(name string) (Codec, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for c, n := range codecNames {
		if n == name {
			return c, nil
		}
	}
	return CodecNone, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
}

func compress(data []byte, codec Codec) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}

	switch codec {
	case CodecNone:
		return data, nil

	case CodecZstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create ZSTD encoder: %w", err)
		}
		defer enc.Close()
		return enc.EncodeAll(data, nil), nil

	case CodecSnappy:
		return snappy.Encode(nil, data), nil

	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownCodec, codec)
	}
}

// decompress expands data and rejects bodies that do not expand to rawLen
func decompress(data []byte, codec Codec, rawLen int) ([]byte, error) {
	var (
		result []byte
		err    error
	)

	if rawLen == 0 {
		if len(data) != 0 {
			return nil, fmt.Errorf("%w: %d bytes for an empty body", ErrInvalidCompressedData, len(data))
		}
		return data, nil
	}

	switch codec {
	case CodecNone:
		result = data

	case CodecZstd:
		dec, derr := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(MaxBodySize))
		if derr != nil {
			return nil, fmt.Errorf("failed to create ZSTD decoder: %w", derr)
		}
		defer dec.Close()
		result, err = dec.DecodeAll(data, make([]byte, 0, rawLen))

	case CodecSnappy:
		n, lerr := snappy.DecodedLen(data)
		if lerr != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCompressedData, lerr)
		}
		if n != rawLen {
			return nil, fmt.Errorf("%w: snappy body expands to %d bytes, expected %d",
				ErrInvalidCompressedData, n, rawLen)
		}
		result, err = snappy.Decode(nil, data)

	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownCodec, codec)
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCompressedData, err)
	}
	if len(result) != rawLen {
		return nil, fmt.Errorf("%w: body is %d bytes, expected %d",
			ErrInvalidCompressedData, len(result), rawLen)
	}
	return result, nil
}
