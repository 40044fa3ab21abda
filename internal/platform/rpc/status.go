package rpc

import (
	"context"
	"errors"
	"strconv"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"account-identity-core/internal/account/domain"
	identitydomain "account-identity-core/internal/identity/domain"
)

// RemainingAttemptsTrailer carries the wrong-password budget left after a failed login.
const RemainingAttemptsTrailer = "x-remaining-attempts"

var kindCodes = []struct {
	kind error
	code codes.Code
}{
	{domain.ErrInvalidInput, codes.InvalidArgument},
	{domain.ErrDuplicateIdentity, codes.AlreadyExists},
	{domain.ErrNotFound, codes.NotFound},
	{domain.ErrAccountLocked, codes.PermissionDenied},
	{domain.ErrInvalidCredentials, codes.Unauthenticated},
	{domain.ErrInvalidOrExpiredToken, codes.Unauthenticated},
	{domain.ErrNotVerified, codes.FailedPrecondition},
	{domain.ErrAlreadyVerified, codes.FailedPrecondition},
	{domain.ErrInvalidPairing, codes.FailedPrecondition},
	{domain.ErrCodeExpired, codes.InvalidArgument},
	{domain.ErrInvalidCode, codes.InvalidArgument},
	{domain.ErrRateLimited, codes.ResourceExhausted},
	{domain.ErrConflict, codes.Aborted},
	{domain.ErrUpstreamDeliveryFailure, codes.Unavailable},
	{identitydomain.ErrProviderNotConfigured, codes.Unimplemented},
}

// Code returns the gRPC code for an error kind, or codes.Internal for unknown errors.
func Code(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	if s, ok := status.FromError(err); ok {
		return s.Code()
	}
	for _, kc := range kindCodes {
		if errors.Is(err, kc.kind) {
			return kc.code
		}
	}
	if errors.Is(err, context.Canceled) {
		return codes.Canceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return codes.DeadlineExceeded
	}
	return codes.Internal
}

// ToStatus converts err into a gRPC status error. Client kinds keep their message; wrong-password
// errors are reported without the attempt count, which travels in the trailer instead. Anything else
// becomes a generic internal error.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	code := Code(err)
	switch {
	case code == codes.Internal:
		return status.Error(code, "internal error")
	case errors.Is(err, domain.ErrInvalidCredentials):
		return status.Error(code, domain.ErrInvalidCredentials.Error())
	case errors.Is(err, domain.ErrInvalidOrExpiredToken):
		return status.Error(code, domain.ErrInvalidOrExpiredToken.Error())
	default:
		return status.Error(code, err.Error())
	}
}

// ErrorsUnary returns a unary server interceptor that maps error kinds to gRPC statuses, attaches
// the remaining-attempts trailer, and logs server faults.
func ErrorsUnary(log *zap.Logger) grpc.UnaryServerInterceptor {
	if log == nil {
		log = zap.NewNop()
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		resp, err := handler(ctx, req)
		if err == nil {
			return resp, nil
		}
		if n, ok := domain.RemainingAttempts(err); ok {
			_ = grpc.SetTrailer(ctx, metadata.Pairs(RemainingAttemptsTrailer, strconv.Itoa(n)))
		}
		if Code(err) == codes.Internal {
			log.Error("rpc failed", zap.String("method", info.FullMethod), zap.Error(err))
		}
		return nil, ToStatus(err)
	}
}
