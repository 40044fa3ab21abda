// Package service orchestrates registration, password and provider login, verification and
// account deletion on top of the account store and its policies.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	accountdomain "account-identity-core/internal/account/domain"
	"account-identity-core/internal/account/repository"
	"account-identity-core/internal/events"
	identitydomain "account-identity-core/internal/identity/domain"
	"account-identity-core/internal/limiter"
	"account-identity-core/internal/lockout"
	"account-identity-core/internal/notification"
	"account-identity-core/internal/platform/retry"
	"account-identity-core/internal/security"
	sessiondomain "account-identity-core/internal/session/domain"
	sessionservice "account-identity-core/internal/session/service"
	telemetry "account-identity-core/internal/telemetry/otel"
	"account-identity-core/internal/verification"
)

// AuthResult is the outcome of a successful login.
type AuthResult struct {
	Account            *accountdomain.Account
	Tokens             *sessiondomain.Tokens
	OnboardingRequired bool
	Created            bool
}

// Deps holds the collaborators of AuthService. Emitter, Metrics, Limiter and Log may be nil.
type Deps struct {
	Accounts repository.Repository
	Hasher   *security.Hasher
	Verifier *verification.Engine
	Lockout  *lockout.Policy
	Sessions *sessionservice.Issuer
	Binder   *Binder
	Exchange identitydomain.Exchange
	Mailer   notification.Mailer
	Limiter  limiter.Limiter
	Emitter  events.Emitter
	Metrics  *telemetry.Metrics
	Log      *zap.Logger

	// AbortOnDeliveryFailure removes a freshly registered account when its verification email
	// cannot be sent.
	AbortOnDeliveryFailure bool
}

// AuthService implements the account lifecycle entry points.
type AuthService struct {
	accounts repository.Repository
	hasher   *security.Hasher
	verifier *verification.Engine
	lockout  *lockout.Policy
	sessions *sessionservice.Issuer
	binder   *Binder
	exchange identitydomain.Exchange
	mailer   notification.Mailer
	limiter  limiter.Limiter
	emitter  events.Emitter
	metrics  *telemetry.Metrics
	log      *zap.Logger
	retry    retry.Policy

	abortOnDeliveryFailure bool
}

// NewAuthService returns an AuthService with the given dependencies.
func NewAuthService(d Deps) *AuthService {
	s := &AuthService{
		accounts:               d.Accounts,
		hasher:                 d.Hasher,
		verifier:               d.Verifier,
		lockout:                d.Lockout,
		sessions:               d.Sessions,
		binder:                 d.Binder,
		exchange:               d.Exchange,
		mailer:                 d.Mailer,
		limiter:                d.Limiter,
		emitter:                d.Emitter,
		metrics:                d.Metrics,
		log:                    d.Log,
		retry:                  retry.DefaultPolicy(),
		abortOnDeliveryFailure: d.AbortOnDeliveryFailure,
	}
	if s.limiter == nil {
		s.limiter = limiter.Unlimited{}
	}
	if s.emitter == nil {
		s.emitter = events.Noop{}
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.lockout == nil {
		s.lockout = lockout.NewPolicy(d.Accounts)
	}
	if s.binder == nil {
		s.binder = NewBinder(d.Accounts, s.emitter, d.Metrics, s.log)
	}
	return s
}

// Register creates an unverified email account with a pending code and emails the code.
func (s *AuthService) Register(ctx context.Context, userID, email, password string) (*accountdomain.Account, error) {
	userID = strings.TrimSpace(userID)
	email = accountdomain.NormalizeEmail(email)
	if err := accountdomain.ValidateUserID(userID); err != nil {
		return nil, err
	}
	if err := accountdomain.ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := accountdomain.ValidatePassword(password); err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash([]byte(password))
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	code, exp, err := s.verifier.Pending()
	if err != nil {
		return nil, err
	}
	a := &accountdomain.Account{
		ID:                 uuid.New().String(),
		UserID:             userID,
		Email:              email,
		Provider:           accountdomain.ProviderEmail,
		PasswordHash:       hash,
		VerificationCode:   code,
		VerificationExpiry: &exp,
		ProfileImage:       accountdomain.DefaultProfileImage(),
	}
	if _, err := retry.OnConflict(ctx, s.retry, func() (struct{}, error) {
		return struct{}{}, s.accounts.Create(ctx, a)
	}); err != nil {
		return nil, err
	}

	if err := s.verifier.Send(ctx, a, code); err != nil {
		if s.abortOnDeliveryFailure {
			if derr := s.accounts.Delete(ctx, a.ID); derr != nil {
				s.log.Error("remove undeliverable registration", zap.String("account_id", a.ID), zap.Error(derr))
			}
			return nil, err
		}
		s.log.Warn("registration kept without verification email", zap.String("account_id", a.ID))
	}

	s.metrics.Registration(ctx, string(accountdomain.ProviderEmail))
	_ = s.emitter.Emit(ctx, events.New(events.TypeRegistered, a.ID, a.UserID, map[string]string{
		"provider": string(accountdomain.ProviderEmail),
	}))
	return a, nil
}

// Login authenticates userID with password: lock check, password compare, counter update, verified
// check, then a new session. A wrong password on an existing account returns a
// *accountdomain.CredentialsError with the attempts left.
func (s *AuthService) Login(ctx context.Context, userID, password string) (*AuthResult, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" || password == "" {
		return nil, accountdomain.ErrInvalidCredentials
	}
	a, err := s.accounts.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	if a == nil || !a.HasPassword() {
		s.metrics.Login(ctx, "password", "unknown")
		return nil, accountdomain.ErrInvalidCredentials
	}
	a, err = s.checkPassword(ctx, a, password)
	if err != nil {
		return nil, err
	}
	if !a.IsVerified {
		s.metrics.Login(ctx, "password", "unverified")
		return nil, accountdomain.ErrNotVerified
	}
	tokens, err := s.sessions.Issue(ctx, a)
	if err != nil {
		return nil, err
	}
	s.metrics.Login(ctx, "password", "success")
	return &AuthResult{Account: a, Tokens: tokens, OnboardingRequired: !a.HasCompletedPreferences}, nil
}

// LoginWithProvider exchanges authCode with the provider, binds or creates the account and starts a
// session. Tokens are always issued; OnboardingRequired tells the client to collect preferences.
func (s *AuthService) LoginWithProvider(ctx context.Context, provider, authCode string) (*AuthResult, error) {
	p, err := accountdomain.ParseProvider(provider)
	if err != nil {
		return nil, err
	}
	if !p.External() {
		return nil, accountdomain.ErrInvalidProvider
	}
	if s.exchange == nil {
		return nil, fmt.Errorf("%w: %s", identitydomain.ErrProviderNotConfigured, p)
	}
	claim, err := s.exchange.Exchange(ctx, p, authCode)
	if err != nil {
		s.metrics.Login(ctx, "provider", "exchange_failed")
		return nil, err
	}
	if claim.Provider != p {
		return nil, identitydomain.ErrExchangeRejected
	}
	a, created, err := s.binder.BindOrCreate(ctx, claim)
	if err != nil {
		return nil, err
	}
	tokens, err := s.sessions.Issue(ctx, a)
	if err != nil {
		return nil, err
	}
	s.metrics.Login(ctx, "provider", "success")
	return &AuthResult{Account: a, Tokens: tokens, OnboardingRequired: !a.HasCompletedPreferences, Created: created}, nil
}

// ResendVerification issues a fresh code for userID and emails it. Requests are throttled per user.
func (s *AuthService) ResendVerification(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	switch err := s.limiter.Allow(ctx, "verify:"+userID); {
	case errors.Is(err, limiter.ErrLimited):
		return accountdomain.ErrRateLimited
	case err != nil:
		s.log.Warn("verification limiter unavailable; allowing request", zap.Error(err))
	}
	a, err := s.accounts.GetByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("load account: %w", err)
	}
	if a == nil {
		return accountdomain.ErrNotFound
	}
	_, err = s.verifier.IssueCode(ctx, a.ID)
	return err
}

// VerifyEmail confirms the code emailed to userID.
func (s *AuthService) VerifyEmail(ctx context.Context, userID, code string) (*accountdomain.Account, error) {
	a, err := s.accounts.GetByUserID(ctx, strings.TrimSpace(userID))
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	if a == nil {
		return nil, accountdomain.ErrNotFound
	}
	a, err = s.verifier.ConfirmCode(ctx, a.ID, strings.TrimSpace(code))
	if err != nil {
		return nil, err
	}
	_ = s.emitter.Emit(ctx, events.New(events.TypeVerified, a.ID, a.UserID, nil))
	return a, nil
}

// DeleteAccount removes accountID after confirming password. Accounts without a password are
// removed on the strength of the caller's session alone.
func (s *AuthService) DeleteAccount(ctx context.Context, accountID, password string) error {
	a, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return fmt.Errorf("load account: %w", err)
	}
	if a == nil {
		return accountdomain.ErrNotFound
	}
	if a.HasPassword() {
		if a, err = s.checkPassword(ctx, a, password); err != nil {
			return err
		}
	}
	if err := s.accounts.Delete(ctx, a.ID); err != nil {
		return err
	}
	if a.Email != "" && s.mailer != nil {
		if err := s.mailer.Send(ctx, a.Email, notification.KindAccountDeleted, map[string]string{
			notification.KeyUserID: a.UserID,
		}); err != nil {
			s.log.Warn("account deletion email failed", zap.String("account_id", a.ID), zap.Error(err))
		}
	}
	_ = s.emitter.Emit(ctx, events.New(events.TypeDeleted, a.ID, a.UserID, nil))
	return nil
}

// checkPassword applies the lockout policy around one password comparison.
func (s *AuthService) checkPassword(ctx context.Context, a *accountdomain.Account, password string) (*accountdomain.Account, error) {
	if err := s.lockout.Check(a); err != nil {
		s.metrics.Login(ctx, "password", "locked")
		return nil, err
	}
	if err := s.hasher.Compare(a.PasswordHash, []byte(password)); err != nil {
		f, err := s.lockout.RecordFailure(ctx, a.ID)
		if err != nil {
			if errors.Is(err, accountdomain.ErrNotFound) {
				return nil, accountdomain.ErrInvalidCredentials
			}
			return nil, err
		}
		s.metrics.Login(ctx, "password", "bad_password")
		if f.Locked {
			s.metrics.Lockout(ctx)
			s.log.Info("account locked", zap.String("account_id", a.ID))
			_ = s.emitter.Emit(ctx, events.New(events.TypeLocked, a.ID, a.UserID, nil))
		}
		return nil, &accountdomain.CredentialsError{RemainingAttempts: f.Remaining}
	}
	updated, err := s.lockout.RecordSuccess(ctx, a)
	if errors.Is(err, accountdomain.ErrNotFound) {
		return nil, accountdomain.ErrInvalidCredentials
	}
	return updated, err
}
