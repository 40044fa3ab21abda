package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	accountdomain "account-identity-core/internal/account/domain"
	"account-identity-core/internal/account/repository"
	"account-identity-core/internal/events"
	"account-identity-core/internal/platform/retry"
	telemetry "account-identity-core/internal/telemetry/otel"
)

// Linker merges two accounts of the same person into one.
type Linker struct {
	accounts repository.Repository
	emitter  events.Emitter
	metrics  *telemetry.Metrics
	log      *zap.Logger
	retry    retry.Policy
}

// NewLinker returns a Linker.
func NewLinker(accounts repository.Repository, emitter events.Emitter, metrics *telemetry.Metrics, log *zap.Logger) *Linker {
	if emitter == nil {
		emitter = events.Noop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Linker{accounts: accounts, emitter: emitter, metrics: metrics, log: log, retry: retry.DefaultPolicy()}
}

// Link folds secondaryID into primaryID in one store transaction and deletes the secondary.
// On any error neither account has changed.
func (l *Linker) Link(ctx context.Context, primaryID, secondaryID string) (*accountdomain.Account, error) {
	if primaryID == "" || secondaryID == "" || primaryID == secondaryID {
		l.metrics.Link(ctx, "invalid_pairing")
		return nil, accountdomain.ErrInvalidPairing
	}
	merged, err := retry.OnConflict(ctx, l.retry, func() (*accountdomain.Account, error) {
		return l.accounts.Merge(ctx, primaryID, secondaryID, MergeAccounts)
	})
	if err != nil {
		switch {
		case errors.Is(err, accountdomain.ErrInvalidPairing):
			l.metrics.Link(ctx, "invalid_pairing")
		case errors.Is(err, accountdomain.ErrConflict):
			l.metrics.Link(ctx, "conflict")
		default:
			l.metrics.Link(ctx, "error")
		}
		return nil, err
	}
	l.metrics.Link(ctx, "success")
	l.log.Info("accounts linked", zap.String("account_id", merged.ID), zap.String("merged_account_id", secondaryID))
	_ = l.emitter.Emit(ctx, events.New(events.TypeLinked, merged.ID, merged.UserID, map[string]string{
		"merged_account_id": secondaryID,
	}))
	return merged, nil
}

// MergeAccounts applies the merge rule to p using s. p keeps its id and user id, adopts whichever
// of email and sns id it lacks, takes the password of a password-backed secondary, and becomes
// combined. Two accounts of the same provider cannot be merged.
func MergeAccounts(p, s *accountdomain.Account) error {
	if p.Provider == s.Provider {
		return accountdomain.ErrInvalidPairing
	}
	if p.Email == "" {
		p.Email = s.Email
	}
	if p.SnsID == "" {
		p.SnsID = s.SnsID
	}
	if s.HasPassword() && (s.Provider == accountdomain.ProviderEmail || !p.HasPassword()) {
		p.PasswordHash = s.PasswordHash
	}
	if s.IsVerified && !p.IsVerified {
		p.IsVerified = true
		p.VerificationCode = ""
		p.VerificationExpiry = nil
		p.VerificationAttempts = 0
	}
	if !p.HasCompletedPreferences && s.HasCompletedPreferences {
		p.HasCompletedPreferences = true
		p.StylePreferences = s.StylePreferences
		p.Size = s.Size
	}
	p.Provider = accountdomain.ProviderCombined
	return nil
}
