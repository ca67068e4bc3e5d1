package domain

import (
	"errors"
	"time"
)

// Account is a person known to the system. Accounts are never hard-deleted.
type Account struct {
	ID               string
	Email            string // optional; unique, lower-cased
	Phone            string // optional; unique
	Name             string
	PasswordHash     string // empty for provider and phone accounts
	Verified         bool
	Role             Role
	RefreshTokenHash string // hash of the current refresh token; empty when signed out
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Validate validates the account for persistence. Returns an error describing the first validation failure.
func (a *Account) Validate() error {
	if a.ID == "" {
		return errors.New("id is required")
	}
	if a.Email == "" && a.Phone == "" {
		return errors.New("email or phone is required")
	}
	if a.Role == "" {
		a.Role = RoleUser
	}
	if a.Role != RoleUser && a.Role != RoleAdmin {
		return errors.New("invalid role")
	}
	return nil
}

// HasPassword reports whether the account can sign in with a password.
func (a *Account) HasPassword() bool { return a.PasswordHash != "" }

// PublicAccount is the client-facing projection of an Account.
type PublicAccount struct {
	ID          string `json:"_id"`
	Email       string `json:"email,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	Name        string `json:"name,omitempty"`
	Verified    bool   `json:"verified"`
	Role        Role   `json:"role"`
}

// Public returns the projection without the password hash or refresh token reference.
func (a *Account) Public() PublicAccount {
	return PublicAccount{
		ID:          a.ID,
		Email:       a.Email,
		PhoneNumber: a.Phone,
		Name:        a.Name,
		Verified:    a.Verified,
		Role:        a.Role,
	}
}
