package domain

import "errors"

var (
	// ErrInvalid marks validation failures rejected before any process runs.
	ErrInvalid = errors.New("invalid request")
	// ErrNotFound marks unknown projects and execution ids.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists marks a duplicate (name, branch) pair.
	ErrAlreadyExists = errors.New("already exists")
	// ErrClosed is returned by the executor once it stopped accepting plans.
	ErrClosed = errors.New("executor closed")
)
