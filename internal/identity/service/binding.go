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
	telemetry "account-identity-core/internal/telemetry/otel"
)

// maxBindAttempts bounds user id disambiguation when creating a provider account.
const maxBindAttempts = 5

// Binder finds or creates the account for a verified provider claim.
type Binder struct {
	accounts repository.Repository
	emitter  events.Emitter
	metrics  *telemetry.Metrics
	log      *zap.Logger
}

// NewBinder returns a Binder.
func NewBinder(accounts repository.Repository, emitter events.Emitter, metrics *telemetry.Metrics, log *zap.Logger) *Binder {
	if emitter == nil {
		emitter = events.Noop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Binder{accounts: accounts, emitter: emitter, metrics: metrics, log: log}
}

// BindOrCreate resolves claim in order: an account already holding the provider identity, then any
// account with the claimed email (returned as is; attaching a second identity is Link's job), then a
// new verified provider account. created reports the last case.
func (b *Binder) BindOrCreate(ctx context.Context, claim *identitydomain.VerifiedClaim) (a *accountdomain.Account, created bool, err error) {
	claim.Normalize()
	if err := claim.Validate(); err != nil {
		return nil, false, err
	}
	snsID := claim.SnsID()

	// One round trip covers the common cases: nothing matches, or the match holds the identity.
	a, err = b.accounts.FindByEmailOrSnsID(ctx, claim.Email, []string{snsID})
	if err != nil {
		return nil, false, fmt.Errorf("lookup by email or sns id: %w", err)
	}
	if a != nil && a.Provider != accountdomain.ProviderEmail && a.SnsID == snsID {
		return b.backfillEmail(ctx, a, claim.Email), false, nil
	}
	if a != nil {
		// An older account matched on email. A holder of the identity still takes precedence.
		holder, err := b.accounts.GetBySnsID(ctx, snsID)
		if err != nil {
			return nil, false, fmt.Errorf("lookup by sns id: %w", err)
		}
		if holder != nil {
			return b.backfillEmail(ctx, holder, claim.Email), false, nil
		}
		if claim.Email != "" && !strings.EqualFold(a.Email, claim.Email) {
			if a, err = b.accounts.GetByEmail(ctx, claim.Email); err != nil {
				return nil, false, fmt.Errorf("lookup by email: %w", err)
			}
		}
		if a != nil && claim.Email != "" {
			return a, false, nil
		}
	}

	base := string(claim.Provider) + "_" + claim.Subject
	for attempt := 1; attempt <= maxBindAttempts; attempt++ {
		userID := base
		if attempt > 1 {
			userID = fmt.Sprintf("%s_%d", base, attempt)
		}
		draft := &accountdomain.Account{
			ID:           uuid.New().String(),
			UserID:       userID,
			Email:        claim.Email,
			SnsID:        snsID,
			Provider:     claim.Provider,
			IsVerified:   true,
			ProfileImage: accountdomain.DefaultProfileImage(),
		}
		err = b.accounts.Create(ctx, draft)
		if err == nil {
			b.metrics.Registration(ctx, string(claim.Provider))
			_ = b.emitter.Emit(ctx, events.New(events.TypeProviderCreated, draft.ID, draft.UserID, map[string]string{
				"provider": string(claim.Provider),
			}))
			return draft, true, nil
		}
		if !errors.Is(err, accountdomain.ErrDuplicateIdentity) {
			return nil, false, err
		}
		// A concurrent bind for the same claim may have won.
		if existing, lerr := b.accounts.GetBySnsID(ctx, snsID); lerr == nil && existing != nil {
			return existing, false, nil
		}
		b.log.Debug("provider user id taken", zap.String("user_id", userID), zap.Int("attempt", attempt))
	}
	return nil, false, accountdomain.ErrDuplicateIdentity
}

// backfillEmail stores email on a when it has none. Failure is logged and a is returned unchanged.
func (b *Binder) backfillEmail(ctx context.Context, a *accountdomain.Account, email string) *accountdomain.Account {
	if a.Email != "" || email == "" {
		return a
	}
	updated, err := b.accounts.Update(ctx, a.ID, 0, func(cur *accountdomain.Account) error {
		if cur.Email == "" {
			cur.Email = email
		}
		return nil
	})
	if err != nil {
		b.log.Info("email backfill skipped", zap.String("account_id", a.ID), zap.Error(err))
		return a
	}
	return updated
}
