package repositories

import "fmt"

// CapacityErrorCode enumerates failure reasons for weekly capacity operations.
type CapacityErrorCode string

const (
	// CapacityErrorUnknown represents an unspecified failure.
	CapacityErrorUnknown CapacityErrorCode = "capacity_unknown"
	// CapacityErrorInvalidInput indicates the caller supplied invalid arguments such as a zero capacity.
	CapacityErrorInvalidInput CapacityErrorCode = "capacity_invalid_input"
)

// CapacityError wraps capacity-specific failures with machine readable codes.
type CapacityError struct {
	Op      string
	Code    CapacityErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *CapacityError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *CapacityError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewCapacityError constructs a typed capacity error.
func NewCapacityError(op string, code CapacityErrorCode, message string, err error) *CapacityError {
	if message == "" {
		message = string(code)
	}
	return &CapacityError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
