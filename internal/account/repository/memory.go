package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"account-identity-core/internal/account/domain"
)

// MemoryRepository is an in-process Repository with the same uniqueness and transaction semantics as
// the Postgres implementation. Used for local development (STORE_DRIVER=memory) and tests.
type MemoryRepository struct {
	mu      sync.Mutex
	byID    map[string]*domain.Account
	deleted map[string]time.Time
	nowF    func() time.Time
}

// NewMemoryRepository returns an empty in-memory account store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:    make(map[string]*domain.Account),
		deleted: make(map[string]time.Time),
		nowF:    func() time.Time { return time.Now().UTC() },
	}
}

// GetByID returns a copy of the account with id, or nil if not found.
func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byID[id].Clone(), nil
}

// GetByUserID returns a copy of the account with userID, or nil if not found.
func (r *MemoryRepository) GetByUserID(ctx context.Context, userID string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.findLocked(func(a *domain.Account) bool { return a.UserID == userID }).Clone(), nil
}

// GetBySnsID returns a copy of the non-email account holding snsID, or nil if not found.
func (r *MemoryRepository) GetBySnsID(ctx context.Context, snsID string) (*domain.Account, error) {
	if snsID == "" {
		return nil, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.findLocked(func(a *domain.Account) bool {
		return a.Provider != domain.ProviderEmail && a.SnsID == snsID
	}).Clone(), nil
}

// GetByEmail returns a copy of the oldest account with email, or nil if not found.
func (r *MemoryRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	if email == "" {
		return nil, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.findLocked(func(a *domain.Account) bool { return strings.EqualFold(a.Email, email) }).Clone(), nil
}

// FindByEmailOrSnsID returns the first account matching email or any of snsIDs.
func (r *MemoryRepository) FindByEmailOrSnsID(ctx context.Context, email string, snsIDs []string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.findLocked(func(a *domain.Account) bool {
		if email != "" && strings.EqualFold(a.Email, email) {
			return true
		}
		for _, s := range snsIDs {
			if s != "" && a.SnsID == s {
				return true
			}
		}
		return false
	}).Clone(), nil
}

// Create stores a copy of a. It fails with ErrDuplicateIdentity if any uniqueness rule would break.
func (r *MemoryRepository) Create(ctx context.Context, a *domain.Account) error {
	if err := a.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[a.ID]; ok {
		return domain.ErrDuplicateIdentity
	}
	if _, ok := r.deleted[a.ID]; ok {
		return domain.ErrDuplicateIdentity
	}
	if r.collidesLocked(a, "") {
		return domain.ErrDuplicateIdentity
	}
	now := r.nowF()
	c := a.Clone()
	c.Version = 1
	c.CreatedAt, c.UpdatedAt = now, now
	r.byID[c.ID] = c
	a.Version, a.CreatedAt, a.UpdatedAt = c.Version, c.CreatedAt, c.UpdatedAt
	return nil
}

// Update applies mutate to a copy of the account and commits it if every invariant still holds.
func (r *MemoryRepository) Update(ctx context.Context, id string, expectedVersion int64, mutate MutateFunc) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if expectedVersion != 0 && cur.Version != expectedVersion {
		return nil, domain.ErrConflict
	}
	next := cur.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	next.ID = cur.ID
	if err := next.Validate(); err != nil {
		return nil, err
	}
	if r.collidesLocked(next, id) {
		return nil, domain.ErrDuplicateIdentity
	}
	next.Version = cur.Version + 1
	next.UpdatedAt = r.nowF()
	r.byID[id] = next
	return next.Clone(), nil
}

// Delete removes the account and records a tombstone so the id is never reused.
func (r *MemoryRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.byID, id)
	r.deleted[id] = r.nowF()
	return nil
}

// Merge applies merge to copies of both accounts, deletes the secondary, and commits the primary.
// Nothing changes when merge or any invariant check fails.
func (r *MemoryRepository) Merge(ctx context.Context, primaryID, secondaryID string, merge MergeFunc) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[primaryID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	s, ok := r.byID[secondaryID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	next := p.Clone()
	if err := merge(next, s.Clone()); err != nil {
		return nil, err
	}
	next.ID = p.ID
	if err := next.Validate(); err != nil {
		return nil, err
	}
	if r.collidesLocked(next, primaryID, secondaryID) {
		return nil, domain.ErrDuplicateIdentity
	}
	now := r.nowF()
	next.Version = p.Version + 1
	next.UpdatedAt = now
	delete(r.byID, secondaryID)
	r.deleted[secondaryID] = now
	r.byID[primaryID] = next
	return next.Clone(), nil
}

// CountIndexes reports the number of logical unique indexes this store enforces.
func (r *MemoryRepository) CountIndexes(ctx context.Context) (int, error) {
	return 4, nil
}

// findLocked returns the oldest account matching pred. Caller must hold r.mu.
func (r *MemoryRepository) findLocked(pred func(*domain.Account) bool) *domain.Account {
	var matches []*domain.Account
	for _, a := range r.byID {
		if pred(a) {
			matches = append(matches, a)
		}
	}
	if len(matches) == 0 {
		return nil
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].CreatedAt.Equal(matches[j].CreatedAt) {
			return matches[i].ID < matches[j].ID
		}
		return matches[i].CreatedAt.Before(matches[j].CreatedAt)
	})
	return matches[0]
}

// collidesLocked reports whether a would violate a unique index against any account other than skip ids.
func (r *MemoryRepository) collidesLocked(a *domain.Account, skip ...string) bool {
	for id, o := range r.byID {
		if id == a.ID || contains(skip, id) {
			continue
		}
		if o.UserID == a.UserID {
			return true
		}
		if a.Email != "" && a.Provider == domain.ProviderEmail && o.Provider == domain.ProviderEmail && strings.EqualFold(o.Email, a.Email) {
			return true
		}
		if a.SnsID != "" && a.Provider != domain.ProviderEmail && o.Provider != domain.ProviderEmail && o.SnsID == a.SnsID {
			return true
		}
	}
	return false
}

func contains(ids []string, id string) bool {
	for _, s := range ids {
		if s == id {
			return true
		}
	}
	return false
}
