package dao

import "errors"

// Sentinel errors shared by every store implementation so that callers can rely on
// errors.Is instead of comparing driver specific messages.
var (
	// ErrNotFound is returned when the requested run, RunJob or resource does not exist.
	ErrNotFound = errors.New("dao: not found")

	// ErrInvalidID indicates that the supplied ID/key is empty.
	ErrInvalidID = errors.New("dao: invalid id")

	// ErrNilEntity is returned when the caller attempts to persist a nil pointer.
	ErrNilEntity = errors.New("dao: nil entity")

	// ErrAlreadyExists is returned when creating an entity whose id is taken.
	ErrAlreadyExists = errors.New("dao: already exists")
)
