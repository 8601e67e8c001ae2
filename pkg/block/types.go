// Package block implements the fixed-size blocks that follow the header in a
// store file, and the packer that lays sorted records out into them.
package block

import "errors"

const (
	// DefaultCapacity is the payload capacity of a block in bytes
	DefaultCapacity = 256
	// TrailerSize is the size of the auxiliary metadata (bytes used + record count)
	TrailerSize = 4 + 4
	// Delimiter separates encoded records inside a payload
	Delimiter = '|'
)

var (
	// ErrShortRead is returned when a block could not be read completely
	ErrShortRead = errors.New("short block read")
	// ErrShortWrite is returned when a block could not be written completely
	ErrShortWrite = errors.New("short block write")
	// ErrBlockFull is returned when a token does not fit in the remaining space
	ErrBlockFull = errors.New("block is full")
	// ErrRecordTooLarge is returned when a single encoded record exceeds the block capacity
	ErrRecordTooLarge = errors.New("encoded record exceeds block capacity")
	// ErrUnsorted is returned when records are not handed to the packer in key order
	ErrUnsorted = errors.New("records must be packed in ascending key order")
	// ErrDuplicateKey is returned when two active records share a key
	ErrDuplicateKey = errors.New("duplicate active key")
	// ErrInvalidCapacity is returned for a non-positive block capacity
	ErrInvalidCapacity = errors.New("invalid block capacity")
)
