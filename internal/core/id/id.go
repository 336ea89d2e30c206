// Package id provides the key shapes used by entities: UUIDv7 for most records
// and 64-bit integers for identity-column tables (addresses, changes log).
package id

import (
	"strconv"

	"github.com/google/uuid"
)

// ID is a type alias for UUID.
type ID = uuid.UUID

// Long is the integer key shape.
type Long = int64

// New generates a new UUIDv7 (time-ordered UUID), falling back to V4.
func New() ID {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return id
}

// Parse converts string to ID with validation.
func Parse(s string) (ID, error) {
	return uuid.Parse(s)
}

// MustParse converts string to ID, panics on error.
// Use only for constants and tests.
func MustParse(s string) ID {
	return uuid.MustParse(s)
}

// IsNil checks if ID is zero-value.
func IsNil(id ID) bool {
	return id == uuid.Nil
}

// ParseAny interprets s as a UUID first and as a long key second.
// Exactly one of the returned pointers is non-nil when ok is true.
func ParseAny(s string) (guid *ID, long *Long, ok bool) {
	if g, err := uuid.Parse(s); err == nil {
		return &g, nil, true
	}
	if l, err := strconv.ParseInt(s, 10, 64); err == nil {
		return nil, &l, true
	}
	return nil, nil, false
}
