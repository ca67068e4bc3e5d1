package domain

import "time"

// Actions recorded for account lifecycle events.
const (
	ActionRegister         = "register"
	ActionOTPSent          = "otp_sent"
	ActionOTPVerified      = "otp_verified"
	ActionLoginSuccess     = "login_success"
	ActionLoginFailure     = "login_failure"
	ActionPasswordReset    = "password_reset_requested"
	ActionPasswordUpdated  = "password_updated"
	ActionEmailUpdated     = "email_updated"
	ActionProviderSignIn   = "provider_sign_in"
	ActionPhoneSignIn      = "phone_sign_in"
	ActionSessionRefreshed = "session_refreshed"
	ActionLogout           = "logout"
)

// AuditLog represents an audit event.
type AuditLog struct {
	ID        string
	AccountID string // empty when the request did not resolve to an account
	Action    string
	Channel   string // email, phone, or a provider name
	IP        string
	Metadata  string
	CreatedAt time.Time
}
