// Package record defines the fixed-schema record stored in tovs blocks and
// its comma separated text encoding.
//
// A record is encoded as
//
//	key,first_name,last_name,description,tombstone
//
// where tombstone is 0 or 1. Field values are not escaped, so values holding
// the field separator, the block delimiter or a NUL byte cannot be encoded and
// are rejected by Encode.
package record

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	// FieldSeparator separates fields inside an encoded record
	FieldSeparator = ","
	// Delimiter separates encoded records inside a block payload
	Delimiter = "|"

	// MaxFirstName is the maximum first name length in bytes
	MaxFirstName = 9
	// MaxLastName is the maximum last name length in bytes
	MaxLastName = 9
	// MaxDescription is the maximum description length in bytes
	MaxDescription = 59

	// MaxEncodedLen is the longest possible encoded record
	MaxEncodedLen = len("-2147483648") + MaxFirstName + MaxLastName + MaxDescription + 1 + 4

	fieldCount = 5
)

var (
	// ErrInvalidField is returned when a field holds a character that would
	// corrupt the token stream
	ErrInvalidField = errors.New("field contains a reserved character")
	// ErrFieldTooLong is returned when a field exceeds its declared width
	ErrFieldTooLong = errors.New("field exceeds maximum length")
	// ErrMalformed is returned when a token cannot be decoded
	ErrMalformed = errors.New("malformed record token")
)

// Record is a single fixed-schema row
type Record struct {
	Key         int32
	FirstName   string
	LastName    string
	Description string
	Tombstone   bool
}

// IsActive reports whether the record has not been logically deleted
func (r Record) IsActive() bool {
	return !r.Tombstone
}

// Validate checks field widths and reserved characters
func (r Record) Validate() error {
	fields := []struct {
		name  string
		value string
		max   int
	}{
		{"first_name", r.FirstName, MaxFirstName},
		{"last_name", r.LastName, MaxLastName},
		{"description", r.Description, MaxDescription},
	}

	for _, f := range fields {
		if len(f.value) > f.max {
			return fmt.Errorf("%w: %s is %d bytes, max %d", ErrFieldTooLong, f.name, len(f.value), f.max)
		}
		if strings.ContainsAny(f.value, FieldSeparator+Delimiter+"\x00") {
			return fmt.Errorf("%w: %s=%q", ErrInvalidField, f.name, f.value)
		}
	}
	return nil
}

// Encode converts a record to its text token
func Encode(r Record) (string, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}

	flag := "0"
	if r.Tombstone {
		flag = "1"
	}

	var sb strings.Builder
	sb.Grow(MaxEncodedLen)
	sb.WriteString(strconv.FormatInt(int64(r.Key), 10))
	for _, s := range []string{r.FirstName, r.LastName, r.Description, flag} {
		sb.WriteString(FieldSeparator)
		sb.WriteString(s)
	}
	return sb.String(), nil
}

// Decode parses a text token back into a record. String fields longer than
// their declared width are truncated.
func Decode(token string) (Record, error) {
	parts := strings.SplitN(token, FieldSeparator, fieldCount)
	if len(parts) != fieldCount {
		return Record{}, fmt.Errorf("%w: expected %d fields, got %d in %q",
			ErrMalformed, fieldCount, len(parts), token)
	}

	key, err := strconv.ParseInt(parts[0], 10, 32)
	if err != nil {
		return Record{}, fmt.Errorf("%w: bad key %q: %v", ErrMalformed, parts[0], err)
	}

	flag, err := strconv.Atoi(parts[4])
	if err != nil {
		return Record{}, fmt.Errorf("%w: bad tombstone flag %q: %v", ErrMalformed, parts[4], err)
	}

	return Record{
		Key:         int32(key),
		FirstName:   truncate(parts[1], MaxFirstName),
		LastName:    truncate(parts[2], MaxLastName),
		Description: truncate(parts[3], MaxDescription),
		Tombstone:   flag != 0,
	}, nil
}

// Synthesize builds the deterministic record used by bulk loading
func Synthesize(key int32) Record {
	return Record{
		Key:         key,
		FirstName:   truncate(fmt.Sprintf("first%d", key), MaxFirstName),
		LastName:    truncate(fmt.Sprintf("last%d", key), MaxLastName),
		Description: truncate(fmt.Sprintf("synthetic record number %d", key), MaxDescription),
	}
}

// String implements fmt.Stringer
func (r Record) String() string {
	state := "active"
	if r.Tombstone {
		state = "deleted"
	}
	return fmt.Sprintf("%d %s %s %q (%s)", r.Key, r.FirstName, r.LastName, r.Description, state)
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}
