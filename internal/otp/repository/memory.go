package repository

import (
	"context"
	"sync"

	"identity-core/backend/internal/otp/domain"
)

// MemoryRepository keeps codes in process memory, in insertion order per account.
type MemoryRepository struct {
	mu        sync.Mutex
	byAccount map[string][]*domain.Code
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byAccount: make(map[string][]*domain.Code)}
}

func (r *MemoryRepository) Create(ctx context.Context, c *domain.Code) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.byAccount[c.AccountID] = append(r.byAccount[c.AccountID], &cp)
	return nil
}

// Latest returns the last inserted code for the account.
func (r *MemoryRepository) Latest(ctx context.Context, accountID string) (*domain.Code, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	codes := r.byAccount[accountID]
	if len(codes) == 0 {
		return nil, nil
	}
	cp := *codes[len(codes)-1]
	return &cp, nil
}

func (r *MemoryRepository) MarkVerified(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, codes := range r.byAccount {
		for _, c := range codes {
			if c.ID == id {
				c.Verified = true
				return nil
			}
		}
	}
	return nil
}

func (r *MemoryRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for acc, codes := range r.byAccount {
		for i, c := range codes {
			if c.ID != id {
				continue
			}
			codes = append(codes[:i], codes[i+1:]...)
			if len(codes) == 0 {
				delete(r.byAccount, acc)
			} else {
				r.byAccount[acc] = codes
			}
			return nil
		}
	}
	return nil
}

func (r *MemoryRepository) DeleteByAccount(ctx context.Context, accountID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byAccount, accountID)
	return nil
}

// Count returns how many codes are stored for accountID.
func (r *MemoryRepository) Count(accountID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byAccount[accountID])
}
