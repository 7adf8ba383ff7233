package ledger

import (
	"errors"
	"fmt"
)

// Kind classifies a ledger operation failure. Exactly one kind is
// attached to every failed operation; only ConcurrencyAborted is worth
// retrying.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindInactive
	KindInsufficientBalance
	KindInsufficientStock
	KindInvalidAmount
	KindBelowMinimumThreshold
	KindConcurrencyAborted
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInactive:
		return "inactive"
	case KindInsufficientBalance:
		return "insufficient_balance"
	case KindInsufficientStock:
		return "insufficient_stock"
	case KindInvalidAmount:
		return "invalid_amount"
	case KindBelowMinimumThreshold:
		return "below_minimum_threshold"
	case KindConcurrencyAborted:
		return "concurrency_aborted"
	default:
		return "unknown"
	}
}

// Error is the tagged failure every executor and session operation
// returns. The transaction that produced it left zero mutation behind.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Retryable reports whether the caller may retry the operation.
func (e *Error) Retryable() bool {
	return e.Kind == KindConcurrencyAborted
}

func NewError(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the failure kind from an error chain, KindUnknown if
// the error is not a ledger error.
func KindOf(err error) Kind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given failure kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
