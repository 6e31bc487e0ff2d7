package database

import "errors"

// Sentinel errors returned by store operations.
var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrIllegalTransition indicates a status update that would move a
	// record backward or out of a terminal state.
	ErrIllegalTransition = errors.New("illegal status transition")

	// ErrDuplicateEmail indicates a user registration with an email that
	// is already taken.
	ErrDuplicateEmail = errors.New("email already exists")
)
