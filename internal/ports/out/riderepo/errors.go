package riderepo

import "errors"

var (
	ErrNotFound      = errors.New("ride not found")
	ErrAlreadyExists = errors.New("ride already exists")

	// ErrConflict indicates a concurrent update won the race and retries were exhausted.
	// Nothing was written; the caller may retry.
	ErrConflict = errors.New("ride update conflict")
)
