package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"identity-core/backend/internal/account/domain"
	"identity-core/backend/internal/db"
)

const uniqueViolation = "23505"

const accountColumns = `id, email, phone, name, password_hash, verified, role, refresh_token_hash, created_at, updated_at`

type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns an account repository backed by the accounts table.
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// GetByID returns the account for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	return r.getOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
}

// GetByEmail returns the account with the given email, or nil if not found.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return r.getOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email)
}

// GetByPhone returns the account with the given phone number, or nil if not found.
func (r *PostgresRepository) GetByPhone(ctx context.Context, phone string) (*domain.Account, error) {
	return r.getOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE phone = $1`, phone)
}

func (r *PostgresRepository) Create(ctx context.Context, a *domain.Account) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (`+accountColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		a.ID, nullString(a.Email), nullString(a.Phone), a.Name, nullString(a.PasswordHash),
		a.Verified, string(a.Role), nullString(a.RefreshTokenHash), a.CreatedAt, a.UpdatedAt,
	)
	return mapWriteErr(err)
}

// SetPassword stores hash as the password credential and signs the account out.
func (r *PostgresRepository) SetPassword(ctx context.Context, id, hash string) error {
	return r.exec(ctx,
		`UPDATE accounts SET password_hash = $2, refresh_token_hash = NULL, updated_at = $3 WHERE id = $1`,
		id, nullString(hash), time.Now().UTC(),
	)
}

func (r *PostgresRepository) MarkVerified(ctx context.Context, id string) error {
	return r.exec(ctx,
		`UPDATE accounts SET verified = TRUE, updated_at = $2 WHERE id = $1`,
		id, time.Now().UTC(),
	)
}

func (r *PostgresRepository) SetEmail(ctx context.Context, id, email string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET email = $2, updated_at = $3 WHERE id = $1`,
		id, nullString(email), time.Now().UTC(),
	)
	return mapWriteErr(err)
}

func (r *PostgresRepository) SetRefreshTokenHash(ctx context.Context, id, hash string) error {
	return r.exec(ctx,
		`UPDATE accounts SET refresh_token_hash = $2, updated_at = $3 WHERE id = $1`,
		id, nullString(hash), time.Now().UTC(),
	)
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) error {
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg any) (*domain.Account, error) {
	var a domain.Account
	var email, phone, passwordHash, refresh sql.NullString
	var role string
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&a.ID, &email, &phone, &a.Name, &passwordHash, &a.Verified, &role, &refresh, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	a.Email = email.String
	a.Phone = phone.String
	a.PasswordHash = passwordHash.String
	a.RefreshTokenHash = refresh.String
	a.Role = domain.Role(role)
	return &a, nil
}

func mapWriteErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrDuplicate
	}
	return fmt.Errorf("db error: %w", err)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
