package interceptors

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	sessiondomain "account-identity-core/internal/session/domain"
)

const bearerPrefix = "bearer "

// Authenticator resolves an access token to the account it was issued for.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*sessiondomain.Principal, error)
}

// AuthUnary returns a unary server interceptor that validates the Bearer (access) token
// from gRPC metadata and sets account_id and user_id in context for protected RPCs.
// publicMethods is the set of full method names that do not require a Bearer token
// (e.g. Register, Login, RequestPasswordReset; the health check).
func AuthUnary(auth Authenticator, publicMethods map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		token := ExtractBearer(ctx)
		public := publicMethods[info.FullMethod]

		if token == "" {
			if public {
				return handler(ctx, req)
			}
			return nil, status.Error(codes.Unauthenticated, "missing or invalid authorization")
		}

		p, err := auth.Authenticate(ctx, token)
		if err != nil || p == nil {
			if public {
				return handler(ctx, req)
			}
			return nil, status.Error(codes.Unauthenticated, "missing or invalid authorization")
		}

		ctx = WithIdentity(ctx, p.AccountID, p.UserID)
		return handler(ctx, req)
	}
}

// ExtractBearer returns the Bearer token from ctx metadata, or "" if missing or malformed.
func ExtractBearer(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	vals := md.Get("authorization")
	if len(vals) == 0 {
		return ""
	}
	v := strings.TrimSpace(vals[0])
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
