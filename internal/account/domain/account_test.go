package domain

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestAccount_Validate(t *testing.T) {
	tests := []struct {
		name    string
		acc     Account
		wantErr string
	}{
		{"email only", Account{ID: "a1", Email: "a@example.com"}, ""},
		{"phone only", Account{ID: "a1", Phone: "15550001"}, ""},
		{"missing id", Account{Email: "a@example.com"}, "id is required"},
		{"no contact", Account{ID: "a1"}, "email or phone is required"},
		{"bad role", Account{ID: "a1", Email: "a@example.com", Role: "root"}, "invalid role"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.acc.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				if tt.acc.Role != RoleUser {
					t.Errorf("Role = %q, want default %q", tt.acc.Role, RoleUser)
				}
				return
			}
			if err == nil || err.Error() != tt.wantErr {
				t.Fatalf("err = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestAccount_PublicOmitsSecrets(t *testing.T) {
	a := Account{
		ID:               "a1",
		Email:            "a@example.com",
		Phone:            "15550001",
		Name:             "Ann",
		PasswordHash:     "$2a$12$secret",
		RefreshTokenHash: "deadbeef",
		Verified:         true,
		Role:             RoleAdmin,
	}
	b, err := json.Marshal(a.Public())
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	s := string(b)
	if strings.Contains(s, "secret") || strings.Contains(s, "deadbeef") {
		t.Fatalf("public projection leaks credentials: %s", s)
	}
	for _, want := range []string{`"_id":"a1"`, `"phoneNumber":"15550001"`, `"verified":true`, `"role":"admin"`} {
		if !strings.Contains(s, want) {
			t.Errorf("missing %s in %s", want, s)
		}
	}
}

func TestAccount_HasPassword(t *testing.T) {
	if (&Account{}).HasPassword() {
		t.Error("empty hash should not count as a password")
	}
	if !(&Account{PasswordHash: "x"}).HasPassword() {
		t.Error("HasPassword = false")
	}
}
