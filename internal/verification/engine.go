// Package verification runs the email ownership state machine:
// unverified, code pending until expiry, verified.
package verification

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"account-identity-core/internal/account/domain"
	"account-identity-core/internal/account/repository"
	"account-identity-core/internal/notification"
)

// DefaultCodeTTL is how long an issued code stays valid.
const DefaultCodeTTL = 30 * time.Minute

// MaxCodeAttempts is how many wrong guesses a pending code survives. The guess that reaches it
// discards the code; the user must request a new one.
const MaxCodeAttempts = 5

// Engine issues and confirms verification codes.
type Engine struct {
	accounts repository.Repository
	mailer   notification.Mailer
	log      *zap.Logger
	ttl      time.Duration
	nowF     func() time.Time
	codeF    func() (string, error)
}

// NewEngine returns an Engine. A non-positive ttl uses DefaultCodeTTL.
func NewEngine(accounts repository.Repository, mailer notification.Mailer, ttl time.Duration, log *zap.Logger) *Engine {
	if ttl <= 0 {
		ttl = DefaultCodeTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		accounts: accounts,
		mailer:   mailer,
		log:      log,
		ttl:      ttl,
		nowF:     func() time.Time { return time.Now().UTC() },
		codeF:    GenerateCode,
	}
}

// TTL returns the code lifetime.
func (e *Engine) TTL() time.Duration { return e.ttl }

// Pending returns a fresh code and its expiry without storing it. Registration uses it to create the
// account and its first code in the same write.
func (e *Engine) Pending() (code string, expiresAt time.Time, err error) {
	code, err = e.codeF()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("generate verification code: %w", err)
	}
	return code, e.nowF().Add(e.ttl), nil
}

// IssueCode stores a new code for the account, replacing any pending one, and emails it.
// The stored code survives a delivery failure; the returned error then matches
// domain.ErrUpstreamDeliveryFailure.
func (e *Engine) IssueCode(ctx context.Context, accountID string) (string, error) {
	code, exp, err := e.Pending()
	if err != nil {
		return "", err
	}
	a, err := e.accounts.Update(ctx, accountID, 0, func(a *domain.Account) error {
		if a.IsVerified {
			return domain.ErrAlreadyVerified
		}
		a.VerificationCode = code
		a.VerificationExpiry = &exp
		a.VerificationAttempts = 0
		return nil
	})
	if err != nil {
		return "", err
	}
	if err := e.Send(ctx, a, code); err != nil {
		return code, err
	}
	return code, nil
}

// Send emails code to the account. Accounts without an email are skipped.
func (e *Engine) Send(ctx context.Context, a *domain.Account, code string) error {
	if a.Email == "" {
		return nil
	}
	err := e.mailer.Send(ctx, a.Email, notification.KindVerificationCode, map[string]string{
		notification.KeyUserID:    a.UserID,
		notification.KeyCode:      code,
		notification.KeyExpiresIn: formatTTL(e.ttl),
	})
	if err != nil {
		e.log.Warn("verification email failed", zap.String("account_id", a.ID), zap.Error(err))
		return fmt.Errorf("%w: %w", domain.ErrUpstreamDeliveryFailure, err)
	}
	return nil
}

// ConfirmCode marks the account verified when supplied matches the pending, unexpired code.
// A wrong guess is counted against the code and MaxCodeAttempts of them discard it. An expired code
// stays stored until it is reissued.
func (e *Engine) ConfirmCode(ctx context.Context, accountID, supplied string) (*domain.Account, error) {
	now := e.nowF()
	var rejected error
	a, err := e.accounts.Update(ctx, accountID, 0, func(a *domain.Account) error {
		if a.IsVerified {
			return domain.ErrAlreadyVerified
		}
		if a.VerificationCode == "" {
			return domain.ErrInvalidCode
		}
		if !CodeEqual(supplied, a.VerificationCode) {
			a.VerificationAttempts++
			if a.VerificationAttempts >= MaxCodeAttempts {
				a.VerificationCode = ""
				a.VerificationExpiry = nil
				a.VerificationAttempts = 0
			}
			rejected = domain.ErrInvalidCode
			return nil
		}
		if a.VerificationExpiry == nil || !now.Before(*a.VerificationExpiry) {
			return domain.ErrCodeExpired
		}
		a.IsVerified = true
		a.VerificationCode = ""
		a.VerificationExpiry = nil
		a.VerificationAttempts = 0
		return nil
	})
	if err == nil {
		err = rejected
	}
	if err != nil {
		if domain.IsClientError(err) {
			e.log.Debug("verification rejected", zap.String("account_id", accountID), zap.Error(err))
		}
		return nil, err
	}
	return a, nil
}

func formatTTL(d time.Duration) string {
	if d%time.Minute == 0 {
		return fmt.Sprintf("%d minutes", int(d/time.Minute))
	}
	return d.String()
}
