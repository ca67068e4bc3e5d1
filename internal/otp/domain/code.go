package domain

import "time"

// Channel is the delivery channel a one-time code was issued for.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelPhone Channel = "phone"
)

// Purpose is what a verified code authorizes.
type Purpose string

const (
	// PurposeVerify proves control of the destination.
	PurposeVerify Purpose = "verify"
	// PurposeReset authorizes one password update once verified.
	PurposeReset Purpose = "reset"
)

// Target is where a code is sent and what it is for.
type Target struct {
	Channel Channel
	To      string
	Purpose Purpose
}

// Code is a stored one-time code (one_time_codes table). Only the hash of the code is kept.
type Code struct {
	ID          string
	AccountID   string
	Channel     Channel
	Destination string // address or phone number the code was sent to
	Purpose     Purpose
	CodeHash    string
	Verified    bool
	CreatedAt   time.Time
	ExpiresAt   *time.Time // nil: never expires
}

// Expired reports whether the code has an expiry at or before now.
func (c *Code) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && !now.Before(*c.ExpiresAt)
}
