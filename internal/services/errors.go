package services

import "errors"

// Error kinds. Every service sentinel wraps exactly one kind so callers can classify
// failures with errors.Is without knowing the individual sentinels.
var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrState      = errors.New("invalid state")
	ErrUpstream   = errors.New("upstream unavailable")
)

type kindedError struct {
	kind    error
	message string
}

func (e *kindedError) Error() string { return e.message }

func (e *kindedError) Unwrap() error { return e.kind }

func newKindError(kind error, message string) error {
	return &kindedError{kind: kind, message: message}
}

// ErrorKind returns the kind sentinel wrapped by err, or nil when err is unclassified.
func ErrorKind(err error) error {
	for _, kind := range []error{ErrValidation, ErrNotFound, ErrConflict, ErrState, ErrUpstream} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
