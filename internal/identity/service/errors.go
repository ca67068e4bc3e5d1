package service

import "identity-core/backend/internal/platform/apperr"

// Errors returned by the auth service; handlers map Kind to a status and show Message as is.
var (
	ErrEmailPasswordRequired = apperr.BadRequest("Email and Password are Required")
	ErrEmailRequired         = apperr.BadRequest("Email is Required")
	ErrEmailOTPRequired      = apperr.BadRequest("Email and OTP are Required")
	ErrPhoneRequired         = apperr.BadRequest("Phone Number is Required")
	ErrPhoneOTPRequired      = apperr.BadRequest("Phone Number and OTP are Required")
	ErrTokenRequired         = apperr.BadRequest("Invalid or Missing Token")
	ErrCodeRequired          = apperr.BadRequest("Code is Required")
	ErrPasswordTooLong       = apperr.BadRequest("Password must be at most 72 bytes")

	ErrEmailTaken      = apperr.Conflict("User with this email already exists !")
	ErrAccountNotFound = apperr.NotFound("User not found")
	ErrInvalidOTP      = apperr.BadRequest("Invalid OTP")
	ErrOTPExpired      = apperr.BadRequest("OTP has expired")
	ErrNoPassword      = apperr.BadRequest("User not registered with email and password")
	ErrNotVerified     = apperr.Forbidden("User not verified")
	ErrInvalidPassword = apperr.BadRequest("Invalid Password")
	ErrNotAuthorized   = apperr.PaymentRequired("User not Authorized")

	ErrUnknownProvider     = apperr.BadRequest("Unsupported sign-in provider")
	ErrProviderUnavailable = apperr.Upstream("Identity provider unavailable")
	ErrProviderNoEmail     = apperr.Upstream("Identity provider did not return an email")

	ErrInvalidRefreshToken = apperr.Unauthorized("Invalid or expired refresh token")
	ErrUnauthorized        = apperr.Unauthorized("Unauthorized request")
)
