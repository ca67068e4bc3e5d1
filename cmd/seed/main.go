// seed inserts verified development accounts for local testing.
// Idempotent: accounts whose email already exists are skipped.
package main

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"identity-core/backend/internal/account/domain"
	accountrepo "identity-core/backend/internal/account/repository"
	"identity-core/backend/internal/config"
	"identity-core/backend/internal/db"
	"identity-core/backend/internal/security"
)

const devPassword = "password123"

var seedAccounts = []struct {
	email string
	name  string
	role  domain.Role
}{
	{"dev@example.com", "Dev User", domain.RoleAdmin},
	{"member@example.com", "Member User", domain.RoleUser},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env or export DATABASE_URL")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	hasher := security.NewHasher(cfg.BcryptCost)
	passwordHash, err := hasher.Hash(devPassword)
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}

	now := time.Now().UTC()
	err = db.WithTx(ctx, conn, func(ctx context.Context, tx db.DBTX) error {
		accounts := accountrepo.NewPostgresRepository(tx)
		for _, s := range seedAccounts {
			existing, err := accounts.GetByEmail(ctx, s.email)
			if err != nil {
				return err
			}
			if existing != nil {
				log.Printf("seed: %s exists, skipping", s.email)
				continue
			}
			a := &domain.Account{
				ID:           uuid.New().String(),
				Email:        s.email,
				Name:         s.name,
				PasswordHash: passwordHash,
				Verified:     true,
				Role:         s.role,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			if err := a.Validate(); err != nil {
				return err
			}
			if err := accounts.Create(ctx, a); err != nil {
				return err
			}
			log.Printf("seed: created %s (%s)", s.email, s.role)
		}
		return nil
	})
	if err != nil {
		log.Fatalf("seed: %v", err)
	}
	log.Printf("seed complete; password for seeded accounts: %s", devPassword)
}
