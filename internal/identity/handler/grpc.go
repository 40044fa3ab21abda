// Package handler exposes the account lifecycle over gRPC as account.v1.AccountService.
package handler

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	accountdomain "account-identity-core/internal/account/domain"
	"account-identity-core/internal/identity/service"
	"account-identity-core/internal/passwordreset"
	"account-identity-core/internal/platform/rbac"
	"account-identity-core/internal/platform/rpc"
	"account-identity-core/internal/server/interceptors"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "account.v1.AccountService"

// PublicMethods lists the RPCs that do not require a Bearer token.
var PublicMethods = []string{
	rpc.FullMethod(ServiceName, "Register"),
	rpc.FullMethod(ServiceName, "Login"),
	rpc.FullMethod(ServiceName, "LoginWithProvider"),
	rpc.FullMethod(ServiceName, "ResendVerification"),
	rpc.FullMethod(ServiceName, "VerifyEmail"),
	rpc.FullMethod(ServiceName, "RequestPasswordReset"),
	rpc.FullMethod(ServiceName, "ConfirmPasswordReset"),
}

type RegisterRequest struct {
	UserID   string `json:"userId"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	UserID   string `json:"userId"`
	Password string `json:"password"`
}

type LoginWithProviderRequest struct {
	Provider string `json:"provider"`
	AuthCode string `json:"authCode"`
}

type UserIDRequest struct {
	UserID string `json:"userId"`
}

type VerifyEmailRequest struct {
	UserID string `json:"userId"`
	Code   string `json:"code"`
}

type DeleteAccountRequest struct {
	// AccountID defaults to the caller.
	AccountID string `json:"accountId,omitempty"`
	Password  string `json:"password,omitempty"`
}

type LinkAccountsRequest struct {
	PrimaryAccountID   string `json:"primaryAccountId"`
	SecondaryAccountID string `json:"secondaryAccountId"`
	// SecondaryAccessToken proves the caller also controls the secondary account.
	SecondaryAccessToken string `json:"secondaryAccessToken"`
}

type ConfirmPasswordResetRequest struct {
	Token         string `json:"token"`
	NewPassword   string `json:"newPassword"`
	UnlockAccount bool   `json:"unlockAccount,omitempty"`
}

type AccountResponse struct {
	Account *accountdomain.Summary `json:"account"`
}

type AuthResponse struct {
	Account            *accountdomain.Summary `json:"account"`
	AccessToken        string                 `json:"accessToken"`
	RefreshToken       string                 `json:"refreshToken"`
	AccessExpiresAt    time.Time              `json:"accessExpiresAt"`
	RefreshExpiresAt   time.Time              `json:"refreshExpiresAt"`
	OnboardingRequired bool                   `json:"onboardingRequired"`
	Created            bool                   `json:"created,omitempty"`
}

// AccountServiceServer is the server API for AccountService.
type AccountServiceServer interface {
	Register(context.Context, *RegisterRequest) (*AccountResponse, error)
	Login(context.Context, *LoginRequest) (*AuthResponse, error)
	LoginWithProvider(context.Context, *LoginWithProviderRequest) (*AuthResponse, error)
	ResendVerification(context.Context, *UserIDRequest) (*rpc.Empty, error)
	VerifyEmail(context.Context, *VerifyEmailRequest) (*AccountResponse, error)
	DeleteAccount(context.Context, *DeleteAccountRequest) (*rpc.Empty, error)
	LinkAccounts(context.Context, *LinkAccountsRequest) (*AccountResponse, error)
	RequestPasswordReset(context.Context, *UserIDRequest) (*rpc.Empty, error)
	ConfirmPasswordReset(context.Context, *ConfirmPasswordResetRequest) (*rpc.Empty, error)
}

// Server implements AccountService. Nil collaborators make their RPCs return Unimplemented.
type Server struct {
	auth   *service.AuthService
	linker *service.Linker
	reset  *passwordreset.Service
	authn  interceptors.Authenticator
	authz  rbac.Authorizer
}

// NewServer returns a new Account gRPC server.
func NewServer(auth *service.AuthService, linker *service.Linker, reset *passwordreset.Service, authn interceptors.Authenticator, authz rbac.Authorizer) *Server {
	return &Server{auth: auth, linker: linker, reset: reset, authn: authn, authz: authz}
}

// ServiceDesc describes AccountService for grpc.ServiceRegistrar.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AccountServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		rpc.Unary(ServiceName, "Register", AccountServiceServer.Register),
		rpc.Unary(ServiceName, "Login", AccountServiceServer.Login),
		rpc.Unary(ServiceName, "LoginWithProvider", AccountServiceServer.LoginWithProvider),
		rpc.Unary(ServiceName, "ResendVerification", AccountServiceServer.ResendVerification),
		rpc.Unary(ServiceName, "VerifyEmail", AccountServiceServer.VerifyEmail),
		rpc.Unary(ServiceName, "DeleteAccount", AccountServiceServer.DeleteAccount),
		rpc.Unary(ServiceName, "LinkAccounts", AccountServiceServer.LinkAccounts),
		rpc.Unary(ServiceName, "RequestPasswordReset", AccountServiceServer.RequestPasswordReset),
		rpc.Unary(ServiceName, "ConfirmPasswordReset", AccountServiceServer.ConfirmPasswordReset),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "account/v1/account.json",
}

// Register registers srv with s.
func Register(s grpc.ServiceRegistrar, srv AccountServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func unimplemented(method string) error {
	return status.Errorf(codes.Unimplemented, "method %s not implemented", method)
}

// Register creates an email account and sends its verification code.
func (s *Server) Register(ctx context.Context, req *RegisterRequest) (*AccountResponse, error) {
	if s.auth == nil {
		return nil, unimplemented("Register")
	}
	a, err := s.auth.Register(ctx, req.UserID, req.Email, req.Password)
	if err != nil {
		return nil, err
	}
	return &AccountResponse{Account: a.Summary()}, nil
}

// Login authenticates with user id and password.
func (s *Server) Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error) {
	if s.auth == nil {
		return nil, unimplemented("Login")
	}
	res, err := s.auth.Login(ctx, req.UserID, req.Password)
	if err != nil {
		return nil, err
	}
	return authResponse(res), nil
}

// LoginWithProvider exchanges an identity-provider authorization code for a session.
func (s *Server) LoginWithProvider(ctx context.Context, req *LoginWithProviderRequest) (*AuthResponse, error) {
	if s.auth == nil {
		return nil, unimplemented("LoginWithProvider")
	}
	res, err := s.auth.LoginWithProvider(ctx, req.Provider, req.AuthCode)
	if err != nil {
		return nil, err
	}
	return authResponse(res), nil
}

// ResendVerification issues and emails a fresh verification code.
func (s *Server) ResendVerification(ctx context.Context, req *UserIDRequest) (*rpc.Empty, error) {
	if s.auth == nil {
		return nil, unimplemented("ResendVerification")
	}
	if err := s.auth.ResendVerification(ctx, req.UserID); err != nil {
		return nil, err
	}
	return &rpc.Empty{}, nil
}

// VerifyEmail confirms the emailed code.
func (s *Server) VerifyEmail(ctx context.Context, req *VerifyEmailRequest) (*AccountResponse, error) {
	if s.auth == nil {
		return nil, unimplemented("VerifyEmail")
	}
	a, err := s.auth.VerifyEmail(ctx, req.UserID, req.Code)
	if err != nil {
		return nil, err
	}
	return &AccountResponse{Account: a.Summary()}, nil
}

// DeleteAccount deletes the caller's account. Password accounts must confirm the password.
func (s *Server) DeleteAccount(ctx context.Context, req *DeleteAccountRequest) (*rpc.Empty, error) {
	if s.auth == nil {
		return nil, unimplemented("DeleteAccount")
	}
	accountID, err := rbac.RequireOwner(ctx, s.authz, "delete", req.AccountID)
	if err != nil {
		return nil, err
	}
	if err := s.auth.DeleteAccount(ctx, accountID, req.Password); err != nil {
		return nil, err
	}
	return &rpc.Empty{}, nil
}

// LinkAccounts merges the secondary account into the primary. The caller must hold access tokens
// for both.
func (s *Server) LinkAccounts(ctx context.Context, req *LinkAccountsRequest) (*AccountResponse, error) {
	if s.linker == nil || s.authn == nil {
		return nil, unimplemented("LinkAccounts")
	}
	var secondaryPrincipal string
	if req.SecondaryAccessToken != "" {
		p, err := s.authn.Authenticate(ctx, req.SecondaryAccessToken)
		if err != nil {
			return nil, status.Error(codes.PermissionDenied, "secondary account token invalid")
		}
		secondaryPrincipal = p.AccountID
	}
	if err := rbac.RequireLinkOwner(ctx, s.authz, req.PrimaryAccountID, req.SecondaryAccountID, secondaryPrincipal); err != nil {
		return nil, err
	}
	a, err := s.linker.Link(ctx, req.PrimaryAccountID, req.SecondaryAccountID)
	if err != nil {
		return nil, err
	}
	return &AccountResponse{Account: a.Summary()}, nil
}

// RequestPasswordReset emails a reset link when the account exists. The response never reveals
// whether it does.
func (s *Server) RequestPasswordReset(ctx context.Context, req *UserIDRequest) (*rpc.Empty, error) {
	if s.reset == nil {
		return nil, unimplemented("RequestPasswordReset")
	}
	if err := s.reset.RequestReset(ctx, req.UserID); err != nil {
		return nil, err
	}
	return &rpc.Empty{}, nil
}

// ConfirmPasswordReset redeems a percent-encoded reset token.
func (s *Server) ConfirmPasswordReset(ctx context.Context, req *ConfirmPasswordResetRequest) (*rpc.Empty, error) {
	if s.reset == nil {
		return nil, unimplemented("ConfirmPasswordReset")
	}
	if _, err := s.reset.ConfirmReset(ctx, req.Token, req.NewPassword, passwordreset.ConfirmOptions{Unlock: req.UnlockAccount}); err != nil {
		return nil, err
	}
	return &rpc.Empty{}, nil
}

func authResponse(res *service.AuthResult) *AuthResponse {
	out := &AuthResponse{
		Account:            res.Account.Summary(),
		OnboardingRequired: res.OnboardingRequired,
		Created:            res.Created,
	}
	if t := res.Tokens; t != nil {
		out.AccessToken = t.AccessToken
		out.RefreshToken = t.RefreshToken
		out.AccessExpiresAt = t.AccessExpiresAt
		out.RefreshExpiresAt = t.RefreshExpiresAt
	}
	return out
}
