package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested key does not exist.
var ErrNotFound = errors.New("not found")

// Entry describes a stored key without its value.
type Entry struct {
	Key       string
	UpdatedAt time.Time
}
