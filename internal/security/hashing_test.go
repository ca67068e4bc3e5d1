package security

import (
	"testing"
)

func TestHasher_HashAndMatch(t *testing.T) {
	h := NewHasher(4)
	hash, err := h.Hash("secret123")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if hash == "" || hash == "secret123" {
		t.Fatalf("Hash = %q", hash)
	}
	if !h.Matches(hash, "secret123") {
		t.Error("Matches should accept the right password")
	}
	if h.Matches(hash, "wrong") {
		t.Error("Matches should reject a wrong password")
	}
	if h.Matches("not-a-bcrypt-hash", "secret123") {
		t.Error("malformed hash must never match")
	}
}

func TestHasher_Cost(t *testing.T) {
	tests := []struct{ in, want int }{{12, 12}, {0, 10}, {2, 4}, {40, 31}}
	for _, tt := range tests {
		if got := NewHasher(tt.in).Cost; got != tt.want {
			t.Errorf("NewHasher(%d).Cost = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestRefreshTokenHash(t *testing.T) {
	h := HashRefreshToken("tok")
	if len(h) != 64 || h != HashRefreshToken("tok") {
		t.Fatalf("hash = %q", h)
	}
	if !RefreshTokenHashEqual("tok", h) {
		t.Error("same token should match")
	}
	if RefreshTokenHashEqual("other", h) {
		t.Error("different token matched")
	}
	if RefreshTokenHashEqual("", "") {
		t.Error("empty stored hash must never match")
	}
}
