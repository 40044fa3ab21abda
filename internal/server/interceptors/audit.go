package interceptors

import (
	"context"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"

	"account-identity-core/internal/audit"
	"account-identity-core/internal/platform/rpc"
)

// AuditUnary returns a unary server interceptor that writes one structured audit line per RPC.
// skipMethods is the set of full method names to not audit (e.g. the health check).
// Request bodies are never logged; they carry passwords, codes and tokens.
func AuditUnary(log *zap.Logger, skipMethods map[string]bool) grpc.UnaryServerInterceptor {
	if log == nil {
		log = zap.NewNop()
	}
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if skipMethods[info.FullMethod] {
			return resp, err
		}
		accountID, _ := GetAccountID(ctx)
		ar := audit.ParseFullMethod(info.FullMethod)
		log.Info("audit",
			zap.String("action", ar.Action),
			zap.String("resource", ar.Resource),
			zap.String("account_id", accountID),
			zap.String("ip", ClientIP(ctx)),
			zap.String("code", rpc.Code(err).String()),
			zap.Duration("duration", time.Since(start)),
		)
		return resp, err
	}
}

// ClientIP returns the client IP from gRPC metadata (x-forwarded-for, x-real-ip) or peer, or "unknown".
func ClientIP(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if vals := md.Get("x-forwarded-for"); len(vals) > 0 {
			if s := strings.TrimSpace(vals[0]); s != "" {
				if i := strings.Index(s, ","); i > 0 {
					s = strings.TrimSpace(s[:i])
				}
				return s
			}
		}
		if vals := md.Get("x-real-ip"); len(vals) > 0 {
			if s := strings.TrimSpace(vals[0]); s != "" {
				return s
			}
		}
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		if host, _, err := net.SplitHostPort(p.Addr.String()); err == nil {
			return host
		}
		return p.Addr.String()
	}
	return "unknown"
}
