package repository

import (
	"context"

	"account-identity-core/internal/account/domain"
)

// MutateFunc edits a locked copy of an account. Returning an error aborts the transaction with no write.
type MutateFunc func(a *domain.Account) error

// MergeFunc edits the locked primary using the locked secondary. The secondary is deleted on success.
type MergeFunc func(primary, secondary *domain.Account) error

// Repository defines persistence for accounts. Every method is a single transaction.
//
// Lookups return nil, nil when no row matches. Create fails with domain.ErrDuplicateIdentity when a
// uniqueness rule would be broken. Update and Merge fail with domain.ErrNotFound when a row is gone and
// with domain.ErrConflict when an optimistic version check or a serialization check fails.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	GetByUserID(ctx context.Context, userID string) (*domain.Account, error)
	GetBySnsID(ctx context.Context, snsID string) (*domain.Account, error)
	// GetByEmail returns the oldest account with email regardless of provider.
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	FindByEmailOrSnsID(ctx context.Context, email string, snsIDs []string) (*domain.Account, error)
	Create(ctx context.Context, a *domain.Account) error
	// Update applies mutate under a row lock. expectedVersion 0 skips the optimistic check.
	Update(ctx context.Context, id string, expectedVersion int64, mutate MutateFunc) (*domain.Account, error)
	Delete(ctx context.Context, id string) error
	Merge(ctx context.Context, primaryID, secondaryID string, merge MergeFunc) (*domain.Account, error)
}

// IndexCounter reports how many indexes exist on the accounts table. Used by the advisory monitor.
type IndexCounter interface {
	CountIndexes(ctx context.Context) (int, error)
}
