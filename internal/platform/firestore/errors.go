package firestore

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type errorKind uint8

const (
	kindUnavailable errorKind = iota
	kindNotFound
	kindConflict
)

// Error satisfies repositories.RepositoryError so catalog reads map onto the service error kinds.
type Error struct {
	op   string
	kind errorKind
	err  error
}

func (e *Error) Error() string {
	if e.op == "" {
		return e.err.Error()
	}
	return e.op + ": " + e.err.Error()
}

func (e *Error) Unwrap() error { return e.err }

func (e *Error) IsNotFound() bool    { return e != nil && e.kind == kindNotFound }
func (e *Error) IsConflict() bool    { return e != nil && e.kind == kindConflict }
func (e *Error) IsUnavailable() bool { return e != nil && e.kind == kindUnavailable }

// NotFound builds a not-found error for documents that exist but must not be served, such as an
// inactive shape.
func NotFound(op, format string, args ...any) error {
	return &Error{op: op, kind: kindNotFound, err: fmt.Errorf(format, args...)}
}

// WrapError maps a gRPC status onto an Error. Context errors are returned as is; anything the
// backend did not classify is treated as an outage.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if existing := new(Error); errors.As(err, &existing) {
		return existing
	}

	code := status.Code(err)
	if code == codes.Canceled {
		return context.Canceled
	}
	return &Error{op: op, kind: kindFor(code), err: err}
}

func kindFor(code codes.Code) errorKind {
	switch code {
	case codes.NotFound:
		return kindNotFound
	case codes.AlreadyExists, codes.FailedPrecondition, codes.Aborted:
		return kindConflict
	default:
		return kindUnavailable
	}
}

func isDone(err error) bool {
	return errors.Is(err, iterator.Done)
}
