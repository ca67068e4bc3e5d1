package repository

import (
	"context"
	"sync"
	"time"

	"identity-core/backend/internal/account/domain"
)

// MemoryRepository keeps accounts in process memory. Used when DATABASE_URL is empty and in tests.
type MemoryRepository struct {
	mu   sync.RWMutex
	byID map[string]*domain.Account
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: make(map[string]*domain.Account)}
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return clone(r.byID[id]), nil
}

func (r *MemoryRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	if email == "" {
		return nil, nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.byID {
		if a.Email == email {
			return clone(a), nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) GetByPhone(ctx context.Context, phone string) (*domain.Account, error) {
	if phone == "" {
		return nil, nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.byID {
		if a.Phone == phone {
			return clone(a), nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) Create(ctx context.Context, a *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[a.ID]; ok || r.conflicts(a) {
		return ErrDuplicate
	}
	r.byID[a.ID] = clone(a)
	return nil
}

func (r *MemoryRepository) SetPassword(ctx context.Context, id, hash string) error {
	return r.modify(id, func(a *domain.Account) {
		a.PasswordHash = hash
		a.RefreshTokenHash = ""
	})
}

func (r *MemoryRepository) MarkVerified(ctx context.Context, id string) error {
	return r.modify(id, func(a *domain.Account) { a.Verified = true })
}

func (r *MemoryRepository) SetEmail(ctx context.Context, id, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok {
		return nil
	}
	if r.conflicts(&domain.Account{ID: id, Email: email}) {
		return ErrDuplicate
	}
	a.Email = email
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemoryRepository) SetRefreshTokenHash(ctx context.Context, id, hash string) error {
	return r.modify(id, func(a *domain.Account) { a.RefreshTokenHash = hash })
}

// modify applies fn to the stored account for id and bumps UpdatedAt. Unknown ids are ignored.
func (r *MemoryRepository) modify(id string, fn func(a *domain.Account)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.byID[id]; ok {
		fn(a)
		a.UpdatedAt = time.Now().UTC()
	}
	return nil
}

// conflicts reports whether another account already holds a's email or phone. Caller holds mu.
func (r *MemoryRepository) conflicts(a *domain.Account) bool {
	for id, other := range r.byID {
		if id == a.ID {
			continue
		}
		if a.Email != "" && other.Email == a.Email {
			return true
		}
		if a.Phone != "" && other.Phone == a.Phone {
			return true
		}
	}
	return false
}

func clone(a *domain.Account) *domain.Account {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}
