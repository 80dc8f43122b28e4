package engine

import (
	"errors"
	"fmt"

	"github.com/mcdev12/gavel/go/internal/auction/state"
)

var (
	// ErrPersistence wraps every collaborator I/O failure. It is logged and
	// never rolls back an in-memory transition.
	ErrPersistence = errors.New("persistence failure")

	// ErrTimerInvariantViolation signals a bug in timer sequencing, e.g. both
	// timers running at once or an expiry for a phase that has no timer.
	ErrTimerInvariantViolation = errors.New("timer invariant violation")

	// ErrValidation matches every *ValidationError via errors.Is.
	ErrValidation = errors.New("validation failed")
)

// Reason is a machine readable bid rejection reason
type Reason string

const (
	ReasonNonPositiveAmount     Reason = "non_positive_amount"
	ReasonBelowMinimumIncrement Reason = "below_minimum_increment"
	ReasonInsufficientBudget    Reason = "insufficient_budget"
	ReasonUnknownBidder         Reason = "unknown_bidder"
	ReasonNoActiveItem          Reason = "no_active_item"
)

// ValidationError rejects a malformed bid. No state changes. Phase is the
// auction phase the bid was checked against.
type ValidationError struct {
	Reason Reason
	Detail string
	Phase  state.Phase
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("invalid bid: %s", e.Reason)
	}
	return fmt.Sprintf("invalid bid: %s: %s", e.Reason, e.Detail)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func persistenceError(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrPersistence, op, err)
}
