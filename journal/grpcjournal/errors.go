package grpcjournal

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"xdao.co/consent/journal"
)

// mapErr converts journal errors to gRPC status errors for the wire.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case journal.IsNotOwner(err):
		return status.Error(codes.PermissionDenied, journal.ErrNotOwner.Error())
	case journal.IsIntegrity(err):
		return status.Error(codes.DataLoss, journal.ErrIntegrity.Error())
	case errors.Is(err, journal.ErrInvalidIdentity):
		return status.Error(codes.InvalidArgument, journal.ErrInvalidIdentity.Error())
	case errors.Is(err, journal.ErrBadEnvelope):
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// mapRPC converts gRPC status errors back to the journal error taxonomy.
func mapRPC(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	switch st.Code() {
	case codes.PermissionDenied:
		return journal.ErrNotOwner
	case codes.DataLoss:
		return journal.ErrIntegrity
	case codes.InvalidArgument:
		if st.Message() == journal.ErrInvalidIdentity.Error() {
			return journal.ErrInvalidIdentity
		}
		return journal.ErrBadEnvelope
	default:
		// Best-effort: if the server sent a known journal error message, preserve it.
		switch st.Message() {
		case journal.ErrNotOwner.Error():
			return journal.ErrNotOwner
		case journal.ErrIntegrity.Error():
			return journal.ErrIntegrity
		case journal.ErrInvalidIdentity.Error():
			return journal.ErrInvalidIdentity
		default:
			return err
		}
	}
}
