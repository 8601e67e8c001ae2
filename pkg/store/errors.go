package store

import "errors"

var (
	// ErrStoreClosed is returned when operations are performed on a closed store
	ErrStoreClosed = errors.New("store is closed")
	// ErrNotFound is returned when no active record matches a key
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateKey is returned when inserting a key that is already active
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrIO wraps every read, write, seek or sync failure on the store file
	ErrIO = errors.New("store I/O failure")
	// ErrCorruptHeader is returned when the header disagrees with the file
	ErrCorruptHeader = errors.New("corrupt store header")
	// ErrCorruptBlock is returned when a block payload cannot be decoded
	ErrCorruptBlock = errors.New("corrupt block")
	// ErrBlockOutOfRange is returned for a block index past the last block
	ErrBlockOutOfRange = errors.New("block index out of range")
	// ErrLocked is returned when another handle holds the store lock
	ErrLocked = errors.New("store is locked by another handle")
	// ErrInvalidCount is returned for a bulk load count outside the key space
	ErrInvalidCount = errors.New("invalid record count")
)
