package repository

import (
	"context"

	"identity-core/backend/internal/otp/domain"
)

// Repository defines persistence for one-time codes.
type Repository interface {
	Create(ctx context.Context, c *domain.Code) error
	// Latest returns the most recently created code for accountID, or nil if there is none.
	Latest(ctx context.Context, accountID string) (*domain.Code, error)
	MarkVerified(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	// DeleteByAccount removes every code for accountID. Deleting nothing is not an error.
	DeleteByAccount(ctx context.Context, accountID string) error
}
