// seed inserts development accounts for local testing.
// Idempotent: skips an account whose user id already exists.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"account-identity-core/internal/account/domain"
	"account-identity-core/internal/account/repository"
	"account-identity-core/internal/config"
	"account-identity-core/internal/db"
	"account-identity-core/internal/security"
)

const devPassword = "password123!"

type seedAccount struct {
	userID    string
	email     string
	onboarded bool
	styles    []domain.StylePreference
	size      domain.Size
}

var devAccounts = []seedAccount{
	{userID: "devuser", email: "dev@example.com", onboarded: true, styles: []domain.StylePreference{domain.StyleMinimal, domain.StyleStreet}, size: domain.SizeM},
	{userID: "newcomer", email: "newcomer@example.com"},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	ctx := context.Background()
	conn, err := db.Open(ctx, cfg.DatabaseURL, db.DefaultPoolConfig())
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	repo := repository.NewPostgresRepository(conn)
	hash, err := security.NewHasher(cfg.BcryptCost).Hash([]byte(devPassword))
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}

	created := 0
	for _, s := range devAccounts {
		existing, err := repo.GetByUserID(ctx, s.userID)
		if err != nil {
			log.Fatalf("seed check %s: %v", s.userID, err)
		}
		if existing != nil {
			log.Printf("Seed account %s exists. Skipping.", s.userID)
			continue
		}
		a := &domain.Account{
			ID:                      uuid.New().String(),
			UserID:                  s.userID,
			Email:                   s.email,
			Provider:                domain.ProviderEmail,
			PasswordHash:            hash,
			IsVerified:              true,
			HasCompletedPreferences: s.onboarded,
			StylePreferences:        s.styles,
			Size:                    s.size,
			ProfileImage:            domain.DefaultProfileImage(),
		}
		if err := repo.Create(ctx, a); err != nil {
			if errors.Is(err, domain.ErrDuplicateIdentity) {
				log.Printf("Seed account %s conflicts with an existing account. Skipping.", s.userID)
				continue
			}
			log.Fatalf("create %s: %v", s.userID, err)
		}
		created++
	}

	log.Printf("Seed completed: %d account(s) created.", created)
	for _, s := range devAccounts {
		fmt.Printf("Dev login: %s / %s\n", s.userID, devPassword)
	}
}
