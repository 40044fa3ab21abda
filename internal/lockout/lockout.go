// Package lockout tracks consecutive failed password attempts and locks an account at the threshold.
// The counter and the lock flag always change in the same store write.
package lockout

import (
	"context"

	"account-identity-core/internal/account/domain"
	"account-identity-core/internal/account/repository"
)

// Policy applies the lockout rules to password logins.
type Policy struct {
	accounts repository.Repository
}

// NewPolicy returns a Policy backed by accounts.
func NewPolicy(accounts repository.Repository) *Policy {
	return &Policy{accounts: accounts}
}

// Check fails with domain.ErrAccountLocked before any password work is done.
func (p *Policy) Check(a *domain.Account) error {
	if a.IsLocked {
		return domain.ErrAccountLocked
	}
	return nil
}

// Failure is the outcome of a recorded wrong password.
type Failure struct {
	Remaining int
	Locked    bool
	Account   *domain.Account
}

// RecordFailure increments the counter and locks the account when it reaches domain.LockThreshold.
// An account locked by a concurrent request fails with domain.ErrAccountLocked and is not changed.
func (p *Policy) RecordFailure(ctx context.Context, accountID string) (*Failure, error) {
	a, err := p.accounts.Update(ctx, accountID, 0, func(a *domain.Account) error {
		if a.IsLocked {
			return domain.ErrAccountLocked
		}
		a.FailedAttempts++
		if a.FailedAttempts >= domain.LockThreshold {
			a.IsLocked = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Failure{Remaining: a.RemainingAttempts(), Locked: a.IsLocked, Account: a}, nil
}

// RecordSuccess clears the counter after a correct password. The lock flag is left alone; an account
// locked between Check and here fails with domain.ErrAccountLocked.
func (p *Policy) RecordSuccess(ctx context.Context, a *domain.Account) (*domain.Account, error) {
	if a.FailedAttempts == 0 {
		return a, nil
	}
	return p.accounts.Update(ctx, a.ID, 0, func(a *domain.Account) error {
		if a.IsLocked {
			return domain.ErrAccountLocked
		}
		a.FailedAttempts = 0
		return nil
	})
}

// Unlock clears the lock and the counter. Only explicit remediation calls it.
func Unlock(a *domain.Account) {
	a.IsLocked = false
	a.FailedAttempts = 0
}
