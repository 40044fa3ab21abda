package repository

import (
	"context"
	"errors"
	"sync"
	"testing"

	"account-identity-core/internal/account/domain"

	"github.com/google/uuid"
)

func newEmailAccount(userID, email string) *domain.Account {
	return &domain.Account{
		ID:           uuid.NewString(),
		UserID:       userID,
		Email:        email,
		Provider:     domain.ProviderEmail,
		PasswordHash: "hash",
		ProfileImage: domain.DefaultProfileImage(),
	}
}

func newProviderAccount(userID, email string, p domain.Provider, subject string) *domain.Account {
	return &domain.Account{
		ID:           uuid.NewString(),
		UserID:       userID,
		Email:        email,
		SnsID:        domain.SnsID(p, subject),
		Provider:     p,
		IsVerified:   true,
		ProfileImage: domain.DefaultProfileImage(),
	}
}

// testRepositoryContract exercises behavior every Repository implementation must share.
func testRepositoryContract(t *testing.T, newRepo func(t *testing.T) Repository) {
	ctx := context.Background()

	t.Run("create and lookup", func(t *testing.T) {
		r := newRepo(t)
		a := newEmailAccount("alice", "alice@x.com")
		a.StylePreferences = []domain.StylePreference{domain.StyleMinimal}
		if err := r.Create(ctx, a); err != nil {
			t.Fatalf("Create: %v", err)
		}
		if a.Version != 1 {
			t.Errorf("Version = %d, want 1", a.Version)
		}
		got, err := r.GetByUserID(ctx, "alice")
		if err != nil || got == nil {
			t.Fatalf("GetByUserID = %v, %v", got, err)
		}
		if got.ID != a.ID || got.Email != "alice@x.com" || len(got.StylePreferences) != 1 {
			t.Errorf("GetByUserID = %+v", got)
		}
		if got, _ := r.GetByEmail(ctx, "ALICE@x.com"); got == nil || got.ID != a.ID {
			t.Errorf("GetByEmail should be case-insensitive, got %v", got)
		}
		if got, err := r.GetByID(ctx, uuid.NewString()); got != nil || err != nil {
			t.Errorf("missing GetByID = %v, %v; want nil, nil", got, err)
		}
	})

	t.Run("uniqueness", func(t *testing.T) {
		r := newRepo(t)
		if err := r.Create(ctx, newEmailAccount("alice", "alice@x.com")); err != nil {
			t.Fatalf("Create: %v", err)
		}
		if err := r.Create(ctx, newEmailAccount("alice", "other@x.com")); !errors.Is(err, domain.ErrDuplicateIdentity) {
			t.Errorf("duplicate userId: got %v", err)
		}
		if err := r.Create(ctx, newEmailAccount("alice2", "Alice@X.com")); !errors.Is(err, domain.ErrDuplicateIdentity) {
			t.Errorf("duplicate email: got %v", err)
		}
		g := newProviderAccount("google_1", "alice@x.com", domain.ProviderGoogle, "1")
		if err := r.Create(ctx, g); err != nil {
			t.Errorf("provider account may share an email with a password account: %v", err)
		}
		dup := newProviderAccount("google_1b", "", domain.ProviderGoogle, "1")
		if err := r.Create(ctx, dup); !errors.Is(err, domain.ErrDuplicateIdentity) {
			t.Errorf("duplicate snsId: got %v", err)
		}
		if got, _ := r.GetBySnsID(ctx, domain.SnsID(domain.ProviderGoogle, "1")); got == nil || got.ID != g.ID {
			t.Errorf("GetBySnsID = %v", got)
		}
	})

	t.Run("concurrent creates with colliding email", func(t *testing.T) {
		r := newRepo(t)
		const n = 16
		var wg sync.WaitGroup
		var mu sync.Mutex
		ok, dup := 0, 0
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				err := r.Create(ctx, newEmailAccount("user"+uuid.NewString()[:8], "race@x.com"))
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					ok++
				case errors.Is(err, domain.ErrDuplicateIdentity):
					dup++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}(i)
		}
		wg.Wait()
		if ok != 1 || dup != n-1 {
			t.Errorf("successes = %d, duplicates = %d; want 1 and %d", ok, dup, n-1)
		}
	})

	t.Run("update", func(t *testing.T) {
		r := newRepo(t)
		a := newEmailAccount("bob", "bob@x.com")
		if err := r.Create(ctx, a); err != nil {
			t.Fatalf("Create: %v", err)
		}
		updated, err := r.Update(ctx, a.ID, 0, func(acc *domain.Account) error {
			acc.FailedAttempts = 3
			return nil
		})
		if err != nil {
			t.Fatalf("Update: %v", err)
		}
		if updated.FailedAttempts != 3 || updated.Version != 2 {
			t.Errorf("Update = attempts %d version %d", updated.FailedAttempts, updated.Version)
		}

		boom := errors.New("boom")
		if _, err := r.Update(ctx, a.ID, 0, func(acc *domain.Account) error {
			acc.FailedAttempts = 9
			return boom
		}); !errors.Is(err, boom) {
			t.Errorf("mutate error: got %v", err)
		}
		if got, _ := r.GetByID(ctx, a.ID); got.FailedAttempts != 3 {
			t.Errorf("aborted mutation was written: attempts = %d", got.FailedAttempts)
		}

		if _, err := r.Update(ctx, a.ID, 1, func(*domain.Account) error { return nil }); !errors.Is(err, domain.ErrConflict) {
			t.Errorf("stale version: got %v", err)
		}
		if _, err := r.Update(ctx, uuid.NewString(), 0, func(*domain.Account) error { return nil }); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("missing account: got %v", err)
		}
		if _, err := r.Update(ctx, a.ID, 0, func(acc *domain.Account) error {
			acc.IsLocked = true
			return nil
		}); err == nil {
			t.Error("locking below the threshold should violate an invariant")
		}
	})

	t.Run("delete tombstones id", func(t *testing.T) {
		r := newRepo(t)
		a := newEmailAccount("carol", "carol@x.com")
		if err := r.Create(ctx, a); err != nil {
			t.Fatalf("Create: %v", err)
		}
		if err := r.Delete(ctx, a.ID); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if got, _ := r.GetByID(ctx, a.ID); got != nil {
			t.Error("account still present after Delete")
		}
		again := newEmailAccount("carol", "carol@x.com")
		again.ID = a.ID
		if err := r.Create(ctx, again); !errors.Is(err, domain.ErrDuplicateIdentity) {
			t.Errorf("reusing a deleted id: got %v", err)
		}
		if err := r.Delete(ctx, a.ID); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("second Delete: got %v", err)
		}
	})

	t.Run("merge", func(t *testing.T) {
		r := newRepo(t)
		p := newEmailAccount("dave", "dave@x.com")
		p.IsVerified = true
		s := newProviderAccount("google_9", "dave@x.com", domain.ProviderGoogle, "9")
		for _, a := range []*domain.Account{p, s} {
			if err := r.Create(ctx, a); err != nil {
				t.Fatalf("Create: %v", err)
			}
		}

		boom := errors.New("boom")
		if _, err := r.Merge(ctx, p.ID, s.ID, func(primary, secondary *domain.Account) error {
			primary.Provider = domain.ProviderCombined
			return boom
		}); !errors.Is(err, boom) {
			t.Fatalf("failed merge: got %v", err)
		}
		if got, _ := r.GetByID(ctx, s.ID); got == nil {
			t.Fatal("secondary removed by a failed merge")
		}
		if got, _ := r.GetByID(ctx, p.ID); got.Provider != domain.ProviderEmail {
			t.Fatal("primary changed by a failed merge")
		}

		merged, err := r.Merge(ctx, p.ID, s.ID, func(primary, secondary *domain.Account) error {
			primary.SnsID = secondary.SnsID
			primary.Provider = domain.ProviderCombined
			return nil
		})
		if err != nil {
			t.Fatalf("Merge: %v", err)
		}
		if merged.Provider != domain.ProviderCombined || merged.SnsID != s.SnsID || merged.UserID != "dave" {
			t.Errorf("Merge = %+v", merged)
		}
		if got, _ := r.GetByID(ctx, s.ID); got != nil {
			t.Error("secondary still present after merge")
		}
		if got, _ := r.GetBySnsID(ctx, s.SnsID); got == nil || got.ID != p.ID {
			t.Errorf("snsId should resolve to the primary, got %v", got)
		}
		if _, err := r.Merge(ctx, p.ID, s.ID, func(*domain.Account, *domain.Account) error { return nil }); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("merge with deleted secondary: got %v", err)
		}
	})

	t.Run("email uniqueness is scoped to email accounts", func(t *testing.T) {
		r := newRepo(t)
		e := newEmailAccount("bob", "bob@x.com")
		g := newProviderAccount("google_3", "bob@x.com", domain.ProviderGoogle, "3")
		k := newProviderAccount("kakao_3", "bob@x.com", domain.ProviderKakao, "3")
		for _, a := range []*domain.Account{e, g, k} {
			if err := r.Create(ctx, a); err != nil {
				t.Fatalf("Create %s: %v", a.UserID, err)
			}
		}
		merged, err := r.Merge(ctx, g.ID, k.ID, func(primary, secondary *domain.Account) error {
			primary.Provider = domain.ProviderCombined
			return nil
		})
		if err != nil {
			t.Fatalf("Merge beside an email account with the same address: %v", err)
		}
		if merged.Provider != domain.ProviderCombined || merged.Email != "bob@x.com" {
			t.Errorf("Merge = %+v", merged)
		}
		if err := r.Create(ctx, newEmailAccount("bob2", "BOB@x.com")); !errors.Is(err, domain.ErrDuplicateIdentity) {
			t.Errorf("second email account with the same address: got %v", err)
		}
	})

	t.Run("find by email or sns id", func(t *testing.T) {
		r := newRepo(t)
		g := newProviderAccount("kakao_5", "", domain.ProviderKakao, "5")
		if err := r.Create(ctx, g); err != nil {
			t.Fatalf("Create: %v", err)
		}
		got, err := r.FindByEmailOrSnsID(ctx, "", []string{"naver:1", g.SnsID})
		if err != nil || got == nil || got.ID != g.ID {
			t.Errorf("FindByEmailOrSnsID = %v, %v", got, err)
		}
		if got, _ := r.FindByEmailOrSnsID(ctx, "nobody@x.com", nil); got != nil {
			t.Errorf("FindByEmailOrSnsID for unknown = %v", got)
		}
	})
}
