package storage

import (
	"errors"
)

var (
	// ErrNotFound is returned by every storage module when the requested
	// entry is absent. badger.ErrKeyNotFound never leaves storage/badger.
	ErrNotFound = errors.New("key not found")

	// ErrAlreadyExists is returned when an insert would overwrite an entry.
	ErrAlreadyExists = errors.New("key already exists")
)
