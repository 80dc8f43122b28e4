package state

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransition matches every *InvalidTransitionError via errors.Is.
	ErrInvalidTransition = errors.New("invalid transition")
	ErrAlreadyResolved   = errors.New("item already resolved")
	ErrNoCurrentItem     = errors.New("no item in progress")
	ErrBidNotHigher      = errors.New("bid does not exceed the high bid")
)

// InvalidTransitionError reports a command issued in a phase that forbids it.
// The state is left unchanged.
type InvalidTransitionError struct {
	Op    string
	Phase Phase
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s while %s", e.Op, e.Phase)
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

func invalid(op string, phase Phase) error {
	return &InvalidTransitionError{Op: op, Phase: phase}
}
