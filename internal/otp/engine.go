package otp

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"identity-core/backend/internal/otp/domain"
	"identity-core/backend/internal/otp/repository"
)

// ErrCodeNotFound is returned by Verify when the account has no code at all.
var ErrCodeNotFound = errors.New("otp: no code issued")

// ExpiryPolicy holds the lifetime of a code per channel. Zero means the code never expires.
type ExpiryPolicy struct {
	Email time.Duration
	Phone time.Duration
}

func (p ExpiryPolicy) ttl(ch domain.Channel) time.Duration {
	if ch == domain.ChannelPhone {
		return p.Phone
	}
	return p.Email
}

// Result is the outcome of Verify. Expired is only set together with Matched.
type Result struct {
	Matched bool
	Expired bool
}

// Engine issues, verifies and consumes codes. It does no locking of its own: callers serialize
// sequences per account (see platform/lock).
type Engine struct {
	repo   repository.Repository
	policy ExpiryPolicy
	now    func() time.Time
	newID  func() string
	gen    func() (int, error)
}

// NewEngine returns an engine storing codes in repo with the given expiry policy.
func NewEngine(repo repository.Repository, policy ExpiryPolicy) *Engine {
	return &Engine{
		repo:   repo,
		policy: policy,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
		gen:    GenerateCode,
	}
}

// Issue creates a new code for the account bound to t and returns its plaintext value. Earlier
// codes are left in place; the newest one is the active code. An empty purpose is PurposeVerify.
func (e *Engine) Issue(ctx context.Context, accountID string, t domain.Target) (int, error) {
	code, err := e.gen()
	if err != nil {
		return 0, err
	}
	now := e.now()
	c := &domain.Code{
		ID:        e.newID(),
		AccountID: accountID,
		Channel:     t.Channel,
		Destination: t.To,
		Purpose:     t.Purpose,
		CodeHash:    HashCode(code),
		CreatedAt:   now,
	}
	if c.Purpose == "" {
		c.Purpose = domain.PurposeVerify
	}
	if ttl := e.policy.ttl(t.Channel); ttl > 0 {
		exp := now.Add(ttl)
		c.ExpiresAt = &exp
	}
	if err := e.repo.Create(ctx, c); err != nil {
		return 0, err
	}
	return code, nil
}

// Reissue removes every code for the account and issues a new one.
func (e *Engine) Reissue(ctx context.Context, accountID string, t domain.Target) (int, error) {
	if err := e.repo.DeleteByAccount(ctx, accountID); err != nil {
		return 0, err
	}
	return e.Issue(ctx, accountID, t)
}

// Verify checks submitted against the active code. A code already marked verified never
// matches again. A matching code past its expiry is deleted and reported as Expired.
func (e *Engine) Verify(ctx context.Context, accountID, submitted string) (Result, error) {
	c, err := e.repo.Latest(ctx, accountID)
	if err != nil {
		return Result{}, err
	}
	if c == nil {
		return Result{}, ErrCodeNotFound
	}
	n, ok := ParseCode(submitted)
	if !ok || c.Verified || !CodeEqual(n, c.CodeHash) {
		return Result{}, nil
	}
	if c.Expired(e.now()) {
		if err := e.repo.Delete(ctx, c.ID); err != nil {
			return Result{}, err
		}
		return Result{Matched: true, Expired: true}, nil
	}
	return Result{Matched: true}, nil
}

// Active returns the active code for the account, or nil when none exists.
func (e *Engine) Active(ctx context.Context, accountID string) (*domain.Code, error) {
	return e.repo.Latest(ctx, accountID)
}

// MarkVerified flags the active code as verified so a later step can rely on it. No-op when
// the account has no code.
func (e *Engine) MarkVerified(ctx context.Context, accountID string) error {
	c, err := e.repo.Latest(ctx, accountID)
	if err != nil || c == nil {
		return err
	}
	return e.repo.MarkVerified(ctx, c.ID)
}

// Consume deletes every code for the account. Idempotent.
func (e *Engine) Consume(ctx context.Context, accountID string) error {
	return e.repo.DeleteByAccount(ctx, accountID)
}
