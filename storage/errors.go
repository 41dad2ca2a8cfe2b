package storage

import (
	"errors"
)

var (
	// ErrNotFound is returned when a retrieved key does not exist in the
	// database.
	ErrNotFound = errors.New("key not found")

	// ErrDataMismatch is returned when a write would overwrite an existing
	// entry with different content. For chunk parts this is the conflicting
	// part condition: it implies either a bug or a malicious equivocation
	// and must never be silently accepted.
	ErrDataMismatch = errors.New("data mismatch for stored key")
)
