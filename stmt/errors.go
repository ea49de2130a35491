package stmt

import (
	"errors"
	"fmt"

	"github.com/tomyedwab/tdsshim/client"
)

// ErrorKind classifies statement errors.
type ErrorKind int

const (
	// KindUnknown is never produced by this package
	KindUnknown ErrorKind = iota
	// KindPrepare means the server produced no usable statement handle
	KindPrepare
	// KindExecution means the database reported an error while running
	KindExecution
	// KindUsage means the caller asked for something this layer cannot do
	KindUsage
)

func (k ErrorKind) String() string {
	switch k {
	case KindPrepare:
		return "prepare"
	case KindExecution:
		return "execution"
	case KindUsage:
		return "usage"
	default:
		return "unknown"
	}
}

// Error is returned by every statement operation that fails.
type Error struct {
	Kind    ErrorKind
	Op      string
	Message string
	Cause   error
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := "stmt: " + e.Op + ": " + e.Message
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause error
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsKind checks if the error is of a specific kind
func (e *Error) IsKind(kind ErrorKind) bool {
	return e.Kind == kind
}

// IsKind reports whether err is, or wraps, an *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

func newError(kind ErrorKind, op, message string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Cause: cause}
}

func usageError(op, message string) *Error {
	return newError(KindUsage, op, message, nil)
}

// executionError sorts a client failure into a prepare or an execution error.
func executionError(op string, err error) *Error {
	if errors.Is(err, client.ErrPrepare) {
		return newError(KindPrepare, op, "prepare failed", err)
	}
	return newError(KindExecution, op, "execute failed", err)
}
