// Package xerrors defines the error kinds shared by the ledger, matching
// engine, and market-data fan-out (spec.md §7).
package xerrors

import (
	"errors"
	"fmt"
)

// Kind is one of the six error kinds spec.md §7 names.
type Kind string

const (
	// NotFound: referenced account, order, market, or balance does not exist.
	NotFound Kind = "not_found"
	// InsufficientBalance: available < required for a reserve or withdraw.
	InsufficientBalance Kind = "insufficient_balance"
	// InvalidOrder: malformed order (bad side/type combination, price
	// violations, out-of-range quantity).
	InvalidOrder Kind = "invalid_order"
	// InvalidState: operation not legal in the current state (cancel of a
	// terminal order).
	InvalidState Kind = "invalid_state"
	// Database: storage port failure, including transaction conflicts;
	// retriable by caller.
	Database Kind = "database"
	// Internal: invariant violation; not retriable.
	Internal Kind = "internal"
)

// Error is the typed error value every component returns.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a kinded error with a message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf builds a kinded error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to an underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the kind, defaulting to Internal for untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// HTTPStatus maps a kind to the status code spec.md §7 specifies for the
// (out-of-scope) gateway to use; kept here since the port's contract is
// in-scope even though the gateway itself is not.
func (k Kind) HTTPStatus() int {
	switch k {
	case NotFound:
		return 404
	case InvalidOrder, InsufficientBalance:
		return 400
	case Internal, Database:
		return 500
	default:
		return 500
	}
}
