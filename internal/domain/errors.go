package domain

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

// ErrorKind classifies failures surfaced by the coordination layer.
type ErrorKind string

const (
	KindTransportFailure    ErrorKind = "transport_failure"
	KindRemoteRejected      ErrorKind = "remote_rejected"
	KindNoCredential        ErrorKind = "no_credential"
	KindMissingRefreshToken ErrorKind = "missing_refresh_token"
	KindPersistenceFailure  ErrorKind = "persistence_failure"
	KindCancelled           ErrorKind = "cancelled"
	KindTimedOut            ErrorKind = "timed_out"
	KindNotFound            ErrorKind = "not_found"
	KindInvalidInput        ErrorKind = "invalid_input"
)

// Error carries a kind plus whatever the remote side told us.
type Error struct {
	Kind       ErrorKind
	Op         string
	Message    string
	StatusCode int
	Code       string
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, msg)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Cause satisfies github.com/pkg/errors.Cause.
func (e *Error) Cause() error { return e.Err }

// NewError builds an error of the given kind.
func NewError(kind ErrorKind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// WrapError wraps err with a kind. A nil err yields nil.
func WrapError(kind ErrorKind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: errors.WithStack(err)}
}

// KindOf returns the kind of the first *Error in err's chain. Context errors
// map to KindCancelled/KindTimedOut; anything else is "".
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimedOut
	case errors.Is(err, context.Canceled):
		return KindCancelled
	}
	return ""
}

// IsKind reports whether err is of kind k.
func IsKind(err error, k ErrorKind) bool {
	return err != nil && KindOf(err) == k
}
