package repository

import (
	"context"
	"errors"

	"identity-core/backend/internal/account/domain"
)

// ErrDuplicate is returned when an email or phone number already belongs to another account.
var ErrDuplicate = errors.New("account: duplicate email or phone")

// Repository defines persistence for accounts. Lookups return nil, nil when no account matches.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	GetByPhone(ctx context.Context, phone string) (*domain.Account, error)
	// Create persists a. The ID must already be set; it is not assigned by this method.
	Create(ctx context.Context, a *domain.Account) error
	// SetPassword replaces the password hash and clears the refresh reference. An empty hash
	// removes the password credential.
	SetPassword(ctx context.Context, id, hash string) error
	MarkVerified(ctx context.Context, id string) error
	// SetEmail rebinds the account's email. Returns ErrDuplicate when another account holds it.
	SetEmail(ctx context.Context, id, email string) error
	// SetRefreshTokenHash replaces the stored refresh reference. An empty hash signs the account out.
	SetRefreshTokenHash(ctx context.Context, id, hash string) error
}
