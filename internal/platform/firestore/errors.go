package firestore

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/retailops/api/internal/platform/store"
)

// WrapError classifies Firestore failures into store error kinds. Context cancellations pass through.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var already *store.Error
	if errors.As(err, &already) {
		return err
	}

	switch status.Code(err) {
	case codes.Canceled:
		return context.Canceled
	case codes.NotFound:
		return store.NewError(op, store.ErrNotFound, err)
	case codes.AlreadyExists:
		return store.NewError(op, store.ErrAlreadyExists, err)
	case codes.FailedPrecondition, codes.Aborted, codes.OutOfRange:
		return store.NewError(op, store.ErrVersionConflict, err)
	case codes.Unavailable, codes.ResourceExhausted, codes.Internal, codes.DeadlineExceeded:
		return store.NewError(op, store.ErrUnavailable, err)
	}
	return store.NewError(op, nil, err)
}
