package rpc

import (
	"context"
	"errors"

	"connectrpc.com/connect"
	"github.com/mcdev12/gavel/go/internal/auction/engine"
	"github.com/mcdev12/gavel/go/internal/auction/state"
	"github.com/mcdev12/gavel/go/internal/auction/store"
	"github.com/mcdev12/gavel/go/internal/auth"
)

// Error metadata keys carried on Connect errors
const (
	PhaseMetadataKey  = "auction-phase"
	ReasonMetadataKey = "bid-rejection-reason"
)

// toConnectError maps engine and store errors to Connect codes
func toConnectError(err error) error {
	if err == nil {
		return nil
	}
	var connectErr *connect.Error
	if errors.As(err, &connectErr) {
		return err
	}

	var invalidErr *state.InvalidTransitionError
	var validationErr *engine.ValidationError
	switch {
	case errors.As(err, &invalidErr):
		cerr := connect.NewError(connect.CodeFailedPrecondition, err)
		cerr.Meta().Set(PhaseMetadataKey, string(invalidErr.Phase))
		return cerr
	case errors.As(err, &validationErr):
		cerr := connect.NewError(connect.CodeInvalidArgument, err)
		cerr.Meta().Set(ReasonMetadataKey, string(validationErr.Reason))
		if validationErr.Phase != "" {
			cerr.Meta().Set(PhaseMetadataKey, string(validationErr.Phase))
		}
		return cerr
	case errors.Is(err, store.ErrNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, auth.ErrMissingToken), errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrInvalidCredentials):
		return connect.NewError(connect.CodeUnauthenticated, err)
	case errors.Is(err, auth.ErrForbidden):
		return connect.NewError(connect.CodePermissionDenied, err)
	case errors.Is(err, engine.ErrPersistence):
		return connect.NewError(connect.CodeUnavailable, err)
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	case errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeCanceled, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}

// PhaseFromError returns the phase carried by a FailedPrecondition or
// InvalidArgument error
func PhaseFromError(err error) string {
	var connectErr *connect.Error
	if errors.As(err, &connectErr) {
		return connectErr.Meta().Get(PhaseMetadataKey)
	}
	return ""
}

// ReasonFromError returns the rejection reason carried by an InvalidArgument error
func ReasonFromError(err error) string {
	var connectErr *connect.Error
	if errors.As(err, &connectErr) {
		return connectErr.Meta().Get(ReasonMetadataKey)
	}
	return ""
}
