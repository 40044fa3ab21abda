// Package service issues, rotates and revokes account sessions. The SHA-256 hashes of the current
// access and refresh tokens live on the account row, so one write revokes both.
package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	accountdomain "account-identity-core/internal/account/domain"
	"account-identity-core/internal/account/repository"
	"account-identity-core/internal/platform/retry"
	"account-identity-core/internal/security"
	"account-identity-core/internal/session/domain"
)

// Issuer implements the session lifecycle on top of the account store.
type Issuer struct {
	accounts repository.Repository
	tokens   *security.TokenProvider
	log      *zap.Logger
	retry    retry.Policy
}

// NewIssuer returns an Issuer.
func NewIssuer(accounts repository.Repository, tokens *security.TokenProvider, log *zap.Logger) *Issuer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Issuer{accounts: accounts, tokens: tokens, log: log, retry: retry.DefaultPolicy()}
}

// Issue signs a new token pair for a and stores their hashes, replacing any earlier session.
func (i *Issuer) Issue(ctx context.Context, a *accountdomain.Account) (*domain.Tokens, error) {
	t, err := i.sign(a.ID, a.UserID)
	if err != nil {
		return nil, err
	}
	_, err = retry.OnConflict(ctx, i.retry, func() (*accountdomain.Account, error) {
		return i.accounts.Update(ctx, a.ID, 0, func(cur *accountdomain.Account) error {
			cur.AccessTokenHash = security.HashToken(t.AccessToken)
			cur.RefreshTokenHash = security.HashToken(t.RefreshToken)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Refresh rotates the pair identified by refreshToken. Presenting a refresh token that was already
// rotated away revokes the session.
func (i *Issuer) Refresh(ctx context.Context, refreshToken string) (*domain.Tokens, error) {
	claims, err := i.tokens.Validate(refreshToken, security.PurposeRefresh)
	if err != nil {
		i.log.Debug("refresh token rejected", zap.Error(err))
		return nil, accountdomain.ErrInvalidOrExpiredToken
	}
	t, err := i.sign(claims.Subject, claims.UserID)
	if err != nil {
		return nil, err
	}
	var reused bool
	_, err = retry.OnConflict(ctx, i.retry, func() (*accountdomain.Account, error) {
		reused = false
		return i.accounts.Update(ctx, claims.Subject, 0, func(cur *accountdomain.Account) error {
			if cur.UserID != claims.UserID || cur.RefreshTokenHash == "" {
				return accountdomain.ErrInvalidOrExpiredToken
			}
			if !security.TokenHashEqual(refreshToken, cur.RefreshTokenHash) {
				reused = true
				cur.AccessTokenHash = ""
				cur.RefreshTokenHash = ""
				return nil
			}
			cur.AccessTokenHash = security.HashToken(t.AccessToken)
			cur.RefreshTokenHash = security.HashToken(t.RefreshToken)
			return nil
		})
	})
	if errors.Is(err, accountdomain.ErrNotFound) {
		return nil, accountdomain.ErrInvalidOrExpiredToken
	}
	if err != nil {
		return nil, err
	}
	if reused {
		i.log.Warn("stale refresh token presented; session revoked", zap.String("account_id", claims.Subject))
		return nil, accountdomain.ErrInvalidOrExpiredToken
	}
	return t, nil
}

// Authenticate resolves an access token to its account. The token must be the one most recently
// issued for an account that still exists.
func (i *Issuer) Authenticate(ctx context.Context, accessToken string) (*domain.Principal, error) {
	claims, err := i.tokens.Validate(accessToken, security.PurposeAccess)
	if err != nil {
		return nil, accountdomain.ErrInvalidOrExpiredToken
	}
	a, err := i.accounts.GetByID(ctx, claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	if a == nil || a.UserID != claims.UserID || !security.TokenHashEqual(accessToken, a.AccessTokenHash) {
		return nil, accountdomain.ErrInvalidOrExpiredToken
	}
	return &domain.Principal{AccountID: a.ID, UserID: a.UserID}, nil
}

// Revoke clears the stored session of accountID. A missing account is not an error.
func (i *Issuer) Revoke(ctx context.Context, accountID string) error {
	_, err := retry.OnConflict(ctx, i.retry, func() (*accountdomain.Account, error) {
		return i.accounts.Update(ctx, accountID, 0, func(cur *accountdomain.Account) error {
			cur.AccessTokenHash = ""
			cur.RefreshTokenHash = ""
			return nil
		})
	})
	if errors.Is(err, accountdomain.ErrNotFound) {
		return nil
	}
	return err
}

func (i *Issuer) sign(accountID, userID string) (*domain.Tokens, error) {
	access, accessExp, err := i.tokens.IssueAccess(accountID, userID)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	refresh, refreshExp, err := i.tokens.IssueRefresh(accountID, userID)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}
	return &domain.Tokens{
		AccountID:        accountID,
		UserID:           userID,
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}
