package repository

import (
	"context"
	"testing"

	"identity-core/backend/internal/otp/domain"
)

func TestMemory_LatestIsNewest(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	if got, err := r.Latest(ctx, "a1"); got != nil || err != nil {
		t.Fatalf("empty Latest = %+v, %v", got, err)
	}
	_ = r.Create(ctx, &domain.Code{ID: "c1", AccountID: "a1", CodeHash: "h1"})
	_ = r.Create(ctx, &domain.Code{ID: "c2", AccountID: "a1", CodeHash: "h2"})
	_ = r.Create(ctx, &domain.Code{ID: "x1", AccountID: "a2", CodeHash: "hx"})

	got, _ := r.Latest(ctx, "a1")
	if got.ID != "c2" {
		t.Errorf("Latest = %s, want c2", got.ID)
	}

	_ = r.Delete(ctx, "c2")
	got, _ = r.Latest(ctx, "a1")
	if got.ID != "c1" {
		t.Errorf("Latest after delete = %s, want c1", got.ID)
	}
}

func TestMemory_MarkVerifiedAndDeleteByAccount(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	_ = r.Create(ctx, &domain.Code{ID: "c1", AccountID: "a1"})
	_ = r.MarkVerified(ctx, "c1")
	got, _ := r.Latest(ctx, "a1")
	if !got.Verified {
		t.Error("code should be verified")
	}

	_ = r.Create(ctx, &domain.Code{ID: "c2", AccountID: "a1"})
	if n := r.Count("a1"); n != 2 {
		t.Fatalf("Count = %d, want 2", n)
	}
	_ = r.DeleteByAccount(ctx, "a1")
	_ = r.DeleteByAccount(ctx, "a1")
	if n := r.Count("a1"); n != 0 {
		t.Errorf("Count after delete = %d, want 0", n)
	}
}
