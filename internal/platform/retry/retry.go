// Package retry re-runs store operations that lost an optimistic or serialization race.
package retry

import (
	"context"
	"errors"
	"time"

	"account-identity-core/internal/account/domain"

	"github.com/cenkalti/backoff/v5"
)

// Policy bounds conflict retries.
type Policy struct {
	MaxTries        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultPolicy retries a conflict up to 4 times with jittered exponential backoff.
func DefaultPolicy() Policy {
	return Policy{MaxTries: 4, InitialInterval: 20 * time.Millisecond, MaxInterval: 250 * time.Millisecond}
}

// OnConflict runs op and retries it while it fails with domain.ErrConflict. Any other error is
// returned immediately. When retries are exhausted the last ErrConflict is returned.
func OnConflict[T any](ctx context.Context, p Policy, op func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.RandomizationFactor = 0.5

	tries := p.MaxTries
	if tries == 0 {
		tries = 1
	}
	return backoff.Retry(ctx, func() (T, error) {
		v, err := op()
		if err != nil && !errors.Is(err, domain.ErrConflict) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(tries))
}
