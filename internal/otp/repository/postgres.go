package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"identity-core/backend/internal/db"
	"identity-core/backend/internal/otp/domain"
)

type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns a one-time code repository backed by the one_time_codes table.
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

func (r *PostgresRepository) Create(ctx context.Context, c *domain.Code) error {
	var expires sql.NullTime
	if c.ExpiresAt != nil {
		expires = sql.NullTime{Time: *c.ExpiresAt, Valid: true}
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO one_time_codes (id, account_id, channel, destination, purpose, code_hash, verified, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		c.ID, c.AccountID, string(c.Channel), c.Destination, string(c.Purpose), c.CodeHash, c.Verified, c.CreatedAt, expires,
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Latest returns the newest code for the account. Ties on created_at are broken by id.
func (r *PostgresRepository) Latest(ctx context.Context, accountID string) (*domain.Code, error) {
	var (
		c       domain.Code
		channel string
		purpose string
		expires sql.NullTime
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, account_id, channel, destination, purpose, code_hash, verified, created_at, expires_at
		 FROM one_time_codes WHERE account_id = $1
		 ORDER BY created_at DESC, id DESC LIMIT 1`,
		accountID,
	).Scan(&c.ID, &c.AccountID, &channel, &c.Destination, &purpose, &c.CodeHash, &c.Verified, &c.CreatedAt, &expires)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	c.Channel = domain.Channel(channel)
	c.Purpose = domain.Purpose(purpose)
	if expires.Valid {
		t := expires.Time
		c.ExpiresAt = &t
	}
	return &c, nil
}

func (r *PostgresRepository) MarkVerified(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE one_time_codes SET verified = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM one_time_codes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DeleteByAccount(ctx context.Context, accountID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM one_time_codes WHERE account_id = $1`, accountID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
