// Package server assembles the gRPC server: interceptors, service registration and the health service.
package server

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	identityhandler "account-identity-core/internal/identity/handler"
	"account-identity-core/internal/platform/rpc"
	profilehandler "account-identity-core/internal/profile/handler"
	"account-identity-core/internal/server/interceptors"
	sessionhandler "account-identity-core/internal/session/handler"
)

// Deps holds the handlers and cross-cutting collaborators of the gRPC server.
type Deps struct {
	// Account, Session and Profile are the service handlers. Nil handlers are not registered.
	Account *identityhandler.Server
	Session *sessionhandler.Server
	Profile *profilehandler.Server
	// Authenticator resolves Bearer tokens for protected RPCs.
	Authenticator interceptors.Authenticator
	// Health is the standard health service; the readiness monitor flips its status. If nil, a
	// fresh always-serving health server is registered.
	Health *health.Server
	// Telemetry enables the otelgrpc stats handler.
	Telemetry bool
	Log       *zap.Logger
}

// ServiceNames lists the account services exposed by RegisterServices.
var ServiceNames = []string{identityhandler.ServiceName, sessionhandler.ServiceName, profilehandler.ServiceName}

// PublicMethods returns the full method names that do not require a Bearer token.
func PublicMethods() map[string]bool {
	m := make(map[string]bool)
	for _, list := range [][]string{identityhandler.PublicMethods, sessionhandler.PublicMethods} {
		for _, name := range list {
			m[name] = true
		}
	}
	m[healthpb.Health_Check_FullMethodName] = true
	m[healthpb.Health_Watch_FullMethodName] = true
	return m
}

// New returns a gRPC server with the interceptor chain (errors, auth, audit) and every service
// registered. The JSON codec is selected per call through the content-subtype.
func New(deps Deps, opts ...grpc.ServerOption) *grpc.Server {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	skipAudit := map[string]bool{
		healthpb.Health_Check_FullMethodName: true,
		healthpb.Health_Watch_FullMethodName: true,
	}
	serverOpts := []grpc.ServerOption{
		grpc.MaxRecvMsgSize(profilehandler.MaxRequestBytes),
		grpc.ChainUnaryInterceptor(
			rpc.ErrorsUnary(log),
			interceptors.AuthUnary(deps.Authenticator, PublicMethods()),
			interceptors.AuditUnary(log, skipAudit),
		),
	}
	if deps.Telemetry {
		serverOpts = append(serverOpts, grpc.StatsHandler(otelgrpc.NewServerHandler()))
	}
	s := grpc.NewServer(append(serverOpts, opts...)...)
	RegisterServices(s, deps)
	return s
}

// RegisterServices registers every account service and the health service with s.
//
// Service → handler mapping:
//   - account.v1.AccountService → internal/identity/handler
//   - account.v1.SessionService → internal/session/handler
//   - account.v1.ProfileService → internal/profile/handler
//   - grpc.health.v1.Health     → google.golang.org/grpc/health, fed by internal/health
func RegisterServices(s grpc.ServiceRegistrar, deps Deps) {
	if deps.Account != nil {
		identityhandler.Register(s, deps.Account)
	}
	if deps.Session != nil {
		sessionhandler.Register(s, deps.Session)
	}
	if deps.Profile != nil {
		profilehandler.Register(s, deps.Profile)
	}
	hs := deps.Health
	if hs == nil {
		hs = health.NewServer()
	}
	healthpb.RegisterHealthServer(s, hs)
}
