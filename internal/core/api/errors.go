package api

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/solatis/editcheck/internal/lookup"
	"github.com/solatis/editcheck/internal/types"
)

// toStatus maps service errors to gRPC codes. Auth errors are mapped by the
// auth interceptor before handlers run.
func toStatus(err error) error {
	switch {
	case errors.Is(err, lookup.ErrInvalidQuery):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, types.ErrConnectivity):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
