package db

import "errors"

// TransientError marks a storage failure caused by transient contention
// (deadlock, serialization conflict, lock timeout). Units of work failing
// with a transient error are safe to re-execute from scratch.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return "transient storage error: " + e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// MarkTransient wraps err so IsTransient reports true for it
func MarkTransient(err error) error {
	return &TransientError{Err: err}
}

// IsTransient reports whether err is (or wraps) a transient storage error
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
