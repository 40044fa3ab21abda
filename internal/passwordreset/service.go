// Package passwordreset implements the two-step reset: a signed, emailed token, then its single
// redemption for a new password.
package passwordreset

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"account-identity-core/internal/account/domain"
	"account-identity-core/internal/account/repository"
	"account-identity-core/internal/events"
	"account-identity-core/internal/limiter"
	"account-identity-core/internal/lockout"
	"account-identity-core/internal/notification"
	"account-identity-core/internal/platform/retry"
	"account-identity-core/internal/security"
	telemetry "account-identity-core/internal/telemetry/otel"
)

// nonceSlack keeps a used jti a little longer than the token could still validate.
const nonceSlack = time.Minute

// Service issues and redeems password reset tokens.
type Service struct {
	accounts repository.Repository
	tokens   *security.TokenProvider
	hasher   *security.Hasher
	mailer   notification.Mailer
	nonces   NonceStore
	limiter  limiter.Limiter
	baseURL  string
	emitter  events.Emitter
	metrics  *telemetry.Metrics
	log      *zap.Logger
	retry    retry.Policy
	nowF     func() time.Time
}

// NewService returns a Service. A nil limiter disables throttling; a nil emitter drops events.
func NewService(
	accounts repository.Repository,
	tokens *security.TokenProvider,
	hasher *security.Hasher,
	mailer notification.Mailer,
	nonces NonceStore,
	lim limiter.Limiter,
	baseURL string,
	emitter events.Emitter,
	metrics *telemetry.Metrics,
	log *zap.Logger,
) *Service {
	if lim == nil {
		lim = limiter.Unlimited{}
	}
	if emitter == nil {
		emitter = events.Noop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		accounts: accounts,
		tokens:   tokens,
		hasher:   hasher,
		mailer:   mailer,
		nonces:   nonces,
		limiter:  lim,
		baseURL:  strings.TrimRight(baseURL, "/"),
		emitter:  emitter,
		metrics:  metrics,
		log:      log,
		retry:    retry.DefaultPolicy(),
		nowF:     func() time.Time { return time.Now().UTC() },
	}
}

// ResetLink returns the emailed URL carrying the percent-encoded token.
func (s *Service) ResetLink(token string) string {
	return s.baseURL + "/" + security.EncodeTokenForURL(token)
}

// RequestReset emails a reset link when userID names an account with a password and an email.
// The result never reveals whether the account exists: unknown users, throttled requests and
// delivery failures all return nil. Only store failures are returned.
func (s *Service) RequestReset(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil
	}
	switch err := s.limiter.Allow(ctx, "reset:"+userID); {
	case errors.Is(err, limiter.ErrLimited):
		s.log.Info("reset request throttled", zap.String("user_id", userID))
		s.metrics.Reset(ctx, "request", "throttled")
		return nil
	case err != nil:
		s.log.Warn("reset limiter unavailable; allowing request", zap.Error(err))
	}

	a, err := s.accounts.GetByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("load account: %w", err)
	}
	if a == nil || a.Email == "" || !a.HasPassword() {
		s.metrics.Reset(ctx, "request", "skipped")
		return nil
	}

	token, _, exp, err := s.tokens.IssueReset(a.ID, a.UserID, security.PasswordFingerprint(a.PasswordHash))
	if err != nil {
		return fmt.Errorf("issue reset token: %w", err)
	}
	err = s.mailer.Send(ctx, a.Email, notification.KindPasswordReset, map[string]string{
		notification.KeyUserID:    a.UserID,
		notification.KeyResetLink: s.ResetLink(token),
		notification.KeyExpiresIn: exp.Sub(s.nowF()).Round(time.Minute).String(),
	})
	if err != nil {
		s.log.Warn("reset email failed", zap.String("account_id", a.ID), zap.Error(err))
		s.metrics.Reset(ctx, "request", "delivery_failed")
		return nil
	}
	s.metrics.Reset(ctx, "request", "sent")
	return nil
}

// ConfirmOptions control side effects of a redemption.
type ConfirmOptions struct {
	// Unlock clears the lockout state in the same write as the new password.
	Unlock bool
}

// ConfirmReset redeems a percent-encoded reset token. The account is taken from the verified claims
// only. Every token failure is reported as domain.ErrInvalidOrExpiredToken; a token works once.
// Existing sessions are revoked.
func (s *Service) ConfirmReset(ctx context.Context, encodedToken, newPassword string, opts ConfirmOptions) (*domain.Account, error) {
	a, err := s.confirm(ctx, encodedToken, newPassword, opts)
	switch {
	case err == nil:
		s.metrics.Reset(ctx, "confirm", "success")
	case errors.Is(err, domain.ErrInvalidOrExpiredToken):
		s.metrics.Reset(ctx, "confirm", "invalid_token")
	case domain.IsClientError(err):
		s.metrics.Reset(ctx, "confirm", "rejected")
	default:
		s.metrics.Reset(ctx, "confirm", "error")
	}
	return a, err
}

func (s *Service) confirm(ctx context.Context, encodedToken, newPassword string, opts ConfirmOptions) (*domain.Account, error) {
	raw, err := security.DecodeTokenFromURL(strings.TrimSpace(encodedToken))
	if err != nil || raw == "" {
		return nil, domain.ErrInvalidOrExpiredToken
	}
	claims, err := s.tokens.Validate(raw, security.PurposePasswordReset)
	if err != nil {
		if security.IsExpired(err) {
			s.log.Info("reset token expired")
		} else {
			s.log.Warn("reset token rejected", zap.Error(err))
		}
		return nil, domain.ErrInvalidOrExpiredToken
	}
	if err := domain.ValidatePassword(newPassword); err != nil {
		return nil, err
	}

	a, err := s.accounts.GetByID(ctx, claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	if !claimsMatch(a, claims) {
		s.log.Info("reset token no longer matches account", zap.String("account_id", claims.Subject))
		return nil, domain.ErrInvalidOrExpiredToken
	}

	hash, err := s.hasher.Hash([]byte(newPassword))
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	ttl := nonceSlack
	if claims.ExpiresAt != nil {
		ttl += claims.ExpiresAt.Sub(s.nowF())
	}
	fresh, err := s.nonces.Consume(ctx, claims.ID, ttl)
	if err != nil {
		return nil, err
	}
	if !fresh {
		s.log.Info("reset token replayed", zap.String("account_id", claims.Subject))
		return nil, domain.ErrInvalidOrExpiredToken
	}

	updated, err := retry.OnConflict(ctx, s.retry, func() (*domain.Account, error) {
		return s.accounts.Update(ctx, claims.Subject, 0, func(a *domain.Account) error {
			if !claimsMatch(a, claims) {
				return domain.ErrInvalidOrExpiredToken
			}
			a.PasswordHash = hash
			a.AccessTokenHash = ""
			a.RefreshTokenHash = ""
			if opts.Unlock {
				lockout.Unlock(a)
			}
			return nil
		})
	})
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrInvalidOrExpiredToken
	}
	if err != nil {
		return nil, err
	}
	_ = s.emitter.Emit(ctx, events.New(events.TypePasswordReset, updated.ID, updated.UserID, map[string]string{
		"unlocked": fmt.Sprint(opts.Unlock),
	}))
	return updated, nil
}

// claimsMatch reports whether the token still describes a: same user id and unchanged password.
func claimsMatch(a *domain.Account, c *security.Claims) bool {
	if a == nil || !a.HasPassword() {
		return false
	}
	return a.UserID == c.UserID && security.PasswordFingerprint(a.PasswordHash) == c.PasswordFingerprint
}
