package handler

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	accountdomain "account-identity-core/internal/account/domain"
	"account-identity-core/internal/account/repository"
	"account-identity-core/internal/platform/rpc"
	"account-identity-core/internal/security"
	"account-identity-core/internal/server/interceptors"
	"account-identity-core/internal/session/service"
)

func newSessionServer(t *testing.T) (*Server, *service.Issuer, *accountdomain.Account) {
	t.Helper()
	repo := repository.NewMemoryRepository()
	a := &accountdomain.Account{ID: "acc-1", UserID: "alice", Email: "alice@x.com", Provider: accountdomain.ProviderEmail, PasswordHash: "h", IsVerified: true}
	if err := repo.Create(context.Background(), a); err != nil {
		t.Fatal(err)
	}
	issuer := service.NewIssuer(repo, security.NewTestTokenProvider(t), zap.NewNop())
	return NewServer(issuer, repo), issuer, a
}

func TestServer_NilIssuer(t *testing.T) {
	srv := NewServer(nil, nil)
	ctx := context.Background()
	if _, err := srv.Refresh(ctx, &RefreshRequest{}); status.Code(err) != codes.Unimplemented {
		t.Errorf("Refresh: %v", err)
	}
	if _, err := srv.Logout(ctx, &rpc.Empty{}); status.Code(err) != codes.Unimplemented {
		t.Errorf("Logout: %v", err)
	}
	if _, err := srv.Me(ctx, &rpc.Empty{}); status.Code(err) != codes.Unimplemented {
		t.Errorf("Me: %v", err)
	}
}

func TestServer_RefreshRotates(t *testing.T) {
	srv, issuer, a := newSessionServer(t)
	ctx := context.Background()
	first, err := issuer.Issue(ctx, a)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	next, err := srv.Refresh(ctx, &RefreshRequest{RefreshToken: first.RefreshToken})
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if next.AccountID != "acc-1" || next.RefreshToken == first.RefreshToken {
		t.Errorf("response = %+v", next)
	}
	if _, err := srv.Refresh(ctx, &RefreshRequest{RefreshToken: first.RefreshToken}); !errors.Is(err, accountdomain.ErrInvalidOrExpiredToken) {
		t.Errorf("reused refresh token: %v", err)
	}
}

func TestServer_LogoutAndMe(t *testing.T) {
	srv, issuer, a := newSessionServer(t)
	ctx := interceptors.WithIdentity(context.Background(), a.ID, a.UserID)
	tokens, err := issuer.Issue(context.Background(), a)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	me, err := srv.Me(ctx, &rpc.Empty{})
	if err != nil {
		t.Fatalf("Me: %v", err)
	}
	if me.Account.UserID != "alice" {
		t.Errorf("Me = %+v", me.Account)
	}
	if _, err := srv.Me(context.Background(), &rpc.Empty{}); status.Code(err) != codes.Unauthenticated {
		t.Errorf("anonymous Me: %v", err)
	}

	if _, err := srv.Logout(ctx, &rpc.Empty{}); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := issuer.Authenticate(context.Background(), tokens.AccessToken); err == nil {
		t.Error("access token should be revoked")
	}
	if _, err := srv.Logout(context.Background(), &rpc.Empty{}); status.Code(err) != codes.Unauthenticated {
		t.Errorf("anonymous Logout: %v", err)
	}
}
