package ledger

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/light-bringer/supplytrace-ledger/internal/app/product/contracts"
	"github.com/light-bringer/supplytrace-ledger/internal/app/product/domain"
)

// mapDomainErrorToGRPC converts domain errors to gRPC status codes.
func mapDomainErrorToGRPC(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, domain.ErrProductNotFound):
		return status.Error(codes.NotFound, err.Error())

	case errors.Is(err, domain.ErrInvalidRegistrationData),
		errors.Is(err, domain.ErrInvalidEventType),
		errors.Is(err, domain.ErrUnknownStatus),
		errors.Is(err, contracts.ErrInvalidPageToken):
		return status.Error(codes.InvalidArgument, err.Error())

	case errors.Is(err, domain.ErrDuplicateFingerprint),
		errors.Is(err, domain.ErrProductAlreadyExists):
		return status.Error(codes.AlreadyExists, err.Error())

	case errors.Is(err, domain.ErrInvalidTransition):
		return status.Error(codes.FailedPrecondition, err.Error())

	case errors.Is(err, domain.ErrChainCorrupt):
		return status.Error(codes.DataLoss, err.Error())

	case errors.Is(err, domain.ErrConcurrentModification),
		errors.Is(err, contracts.ErrHeadConflict):
		return status.Error(codes.Aborted, err.Error())

	case errors.Is(err, contracts.ErrTransient):
		return status.Error(codes.Unavailable, err.Error())

	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())

	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())

	default:
		// Unknown error - return Internal
		return status.Error(codes.Internal, "internal server error")
	}
}
