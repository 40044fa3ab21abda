// Package handler exposes session refresh, logout and introspection as account.v1.SessionService.
package handler

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	accountdomain "account-identity-core/internal/account/domain"
	"account-identity-core/internal/account/repository"
	"account-identity-core/internal/platform/rpc"
	"account-identity-core/internal/server/interceptors"
	"account-identity-core/internal/session/service"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "account.v1.SessionService"

// PublicMethods lists the RPCs that do not require a Bearer token.
var PublicMethods = []string{
	rpc.FullMethod(ServiceName, "Refresh"),
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type TokensResponse struct {
	AccountID        string    `json:"accountId"`
	UserID           string    `json:"userId"`
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

type MeResponse struct {
	Account *accountdomain.Summary `json:"account"`
}

// SessionServiceServer is the server API for SessionService.
type SessionServiceServer interface {
	Refresh(context.Context, *RefreshRequest) (*TokensResponse, error)
	Logout(context.Context, *rpc.Empty) (*rpc.Empty, error)
	Me(context.Context, *rpc.Empty) (*MeResponse, error)
}

// Server implements SessionService. If the issuer is nil, all RPCs return Unimplemented.
type Server struct {
	issuer   *service.Issuer
	accounts repository.Repository
}

// NewServer returns a new Session gRPC server.
func NewServer(issuer *service.Issuer, accounts repository.Repository) *Server {
	return &Server{issuer: issuer, accounts: accounts}
}

// ServiceDesc describes SessionService for grpc.ServiceRegistrar.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SessionServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		rpc.Unary(ServiceName, "Refresh", SessionServiceServer.Refresh),
		rpc.Unary(ServiceName, "Logout", SessionServiceServer.Logout),
		rpc.Unary(ServiceName, "Me", SessionServiceServer.Me),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "account/v1/session.json",
}

// Register registers srv with s.
func Register(s grpc.ServiceRegistrar, srv SessionServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Refresh rotates the refresh token. Reusing a rotated token ends the session.
func (s *Server) Refresh(ctx context.Context, req *RefreshRequest) (*TokensResponse, error) {
	if s.issuer == nil {
		return nil, status.Error(codes.Unimplemented, "method Refresh not implemented")
	}
	t, err := s.issuer.Refresh(ctx, req.RefreshToken)
	if err != nil {
		return nil, err
	}
	return &TokensResponse{
		AccountID:        t.AccountID,
		UserID:           t.UserID,
		AccessToken:      t.AccessToken,
		RefreshToken:     t.RefreshToken,
		AccessExpiresAt:  t.AccessExpiresAt,
		RefreshExpiresAt: t.RefreshExpiresAt,
	}, nil
}

// Logout revokes the caller's session.
func (s *Server) Logout(ctx context.Context, _ *rpc.Empty) (*rpc.Empty, error) {
	if s.issuer == nil {
		return nil, status.Error(codes.Unimplemented, "method Logout not implemented")
	}
	accountID, ok := interceptors.GetAccountID(ctx)
	if !ok || accountID == "" {
		return nil, status.Error(codes.Unauthenticated, "account context required")
	}
	if err := s.issuer.Revoke(ctx, accountID); err != nil {
		return nil, err
	}
	return &rpc.Empty{}, nil
}

// Me returns the caller's account.
func (s *Server) Me(ctx context.Context, _ *rpc.Empty) (*MeResponse, error) {
	if s.accounts == nil {
		return nil, status.Error(codes.Unimplemented, "method Me not implemented")
	}
	accountID, ok := interceptors.GetAccountID(ctx)
	if !ok || accountID == "" {
		return nil, status.Error(codes.Unauthenticated, "account context required")
	}
	a, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, accountdomain.ErrNotFound
	}
	return &MeResponse{Account: a.Summary()}, nil
}
