package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"identity-core/backend/internal/account/domain"
	auditdomain "identity-core/backend/internal/audit/domain"
	otpdomain "identity-core/backend/internal/otp/domain"
	"identity-core/backend/internal/platform/apperr"
	"identity-core/backend/internal/platform/lock"
)

const (
	subjectVerify = "Verify OTP"
	subjectReset  = "Reset Password"
)

func newAccountID() string { return uuid.New().String() }

func codeEmailText(email string, code int) string {
	return fmt.Sprintf("Hello %s, Your OTP for verification is %d", email, code)
}

// Register creates an unverified password account and emails it a verification code.
func (s *AuthService) Register(ctx context.Context, email, password, name string) (_ *domain.PublicAccount, err error) {
	ctx, end := s.start(ctx, "Register")
	defer end(&err)

	email = normalizeEmail(email)
	if email == "" || strings.TrimSpace(password) == "" {
		return nil, ErrEmailPasswordRequired
	}
	if err := checkPassword(password); err != nil {
		return nil, err
	}
	var (
		acct *domain.Account
		code int
	)
	err = s.withLock(ctx, lock.EmailKey(email), func() error {
		existing, err := s.accounts.GetByEmail(ctx, email)
		if err != nil {
			return apperr.Internal(err)
		}
		if existing != nil {
			return ErrEmailTaken
		}
		hashed, err := s.hasher.Hash(password)
		if err != nil {
			return apperr.Internal(err)
		}
		acct = s.newAccount(email, "", name, false)
		acct.PasswordHash = hashed
		if err := s.createAccount(ctx, acct); err != nil {
			return err
		}
		code, err = s.issueCode(ctx, acct.ID, emailTarget(email, otpdomain.PurposeVerify), true)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.sendCodeEmail(email, subjectVerify, code)
	s.audit.LogEvent(ctx, acct.ID, auditdomain.ActionRegister, string(otpdomain.ChannelEmail), "")
	s.log.InfoContext(ctx, "account registered", "account_id", acct.ID)
	pub := acct.Public()
	return &pub, nil
}

func emailTarget(email string, purpose otpdomain.Purpose) otpdomain.Target {
	return otpdomain.Target{Channel: otpdomain.ChannelEmail, To: email, Purpose: purpose}
}

// accountByEmail resolves email to an account id. The account is read again under its lock
// before anything is decided on it.
func (s *AuthService) accountByEmail(ctx context.Context, email string) (string, error) {
	acct, err := s.accounts.GetByEmail(ctx, email)
	if err := lookupErr(acct, err); err != nil {
		return "", err
	}
	return acct.ID, nil
}

// reloadByEmail re-reads the account id under its lock and checks it still owns email.
func (s *AuthService) reloadByEmail(ctx context.Context, id, email string) (*domain.Account, error) {
	acct, err := s.reload(ctx, id)
	if err != nil {
		return nil, err
	}
	if acct.Email != email {
		return nil, ErrAccountNotFound
	}
	return acct, nil
}

// VerifyOTP checks the emailed code, marks the account verified and signs it in. The code is
// kept, flagged verified, so a following UpdatePassword can rely on a verified reset code.
func (s *AuthService) VerifyOTP(ctx context.Context, email, code string) (_ *Session, err error) {
	ctx, end := s.start(ctx, "VerifyOTP")
	defer end(&err)

	email = normalizeEmail(email)
	code = strings.TrimSpace(code)
	if email == "" || code == "" {
		return nil, ErrEmailOTPRequired
	}
	id, err := s.accountByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	var sess *Session
	err = s.withLock(ctx, lock.AccountKey(id), func() error {
		acct, err := s.reloadByEmail(ctx, id, email)
		if err != nil {
			return err
		}
		if err := s.checkCode(ctx, id, email, code); err != nil {
			return err
		}
		if err := s.codes.MarkVerified(ctx, id); err != nil {
			return apperr.Internal(err)
		}
		if err := s.markVerified(ctx, acct); err != nil {
			return err
		}
		sess, err = s.signIn(ctx, acct)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.audit.LogEvent(ctx, id, auditdomain.ActionOTPVerified, string(otpdomain.ChannelEmail), "")
	return sess, nil
}

func (s *AuthService) markVerified(ctx context.Context, acct *domain.Account) error {
	if acct.Verified {
		return nil
	}
	if err := s.accounts.MarkVerified(ctx, acct.ID); err != nil {
		return apperr.Internal(err)
	}
	acct.Verified = true
	return nil
}

// SendOTP emails a code to email on behalf of the signed-in account, ahead of UpdateEmail.
// Earlier codes stay in place.
func (s *AuthService) SendOTP(ctx context.Context, accountID, email string) (_ string, err error) {
	ctx, end := s.start(ctx, "SendOTP")
	defer end(&err)

	email = normalizeEmail(email)
	if email == "" {
		return "", ErrEmailRequired
	}
	if accountID == "" {
		return "", ErrUnauthorized
	}
	acct, err := s.accounts.GetByID(ctx, accountID)
	if err := lookupErr(acct, err); err != nil {
		return "", err
	}
	if err := s.ensureEmailFree(ctx, email, acct.ID); err != nil {
		return "", err
	}
	var code int
	err = s.withLock(ctx, lock.AccountKey(acct.ID), func() error {
		code, err = s.issueCode(ctx, acct.ID, emailTarget(email, otpdomain.PurposeVerify), false)
		return err
	})
	if err != nil {
		return "", err
	}
	s.sendCodeEmail(email, subjectVerify, code)
	s.audit.LogEvent(ctx, acct.ID, auditdomain.ActionOTPSent, string(otpdomain.ChannelEmail), "send")
	return email, nil
}

// ResendOTP replaces the account's codes with a new one and emails it.
func (s *AuthService) ResendOTP(ctx context.Context, email string) (_ string, err error) {
	ctx, end := s.start(ctx, "ResendOTP")
	defer end(&err)
	return s.reissueByEmail(ctx, email, otpdomain.PurposeVerify)
}

// ForgotPassword replaces the account's codes with a reset code and emails it.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) (_ string, err error) {
	ctx, end := s.start(ctx, "ForgotPassword")
	defer end(&err)
	return s.reissueByEmail(ctx, email, otpdomain.PurposeReset)
}

func (s *AuthService) reissueByEmail(ctx context.Context, email string, purpose otpdomain.Purpose) (string, error) {
	email = normalizeEmail(email)
	if email == "" {
		return "", ErrEmailRequired
	}
	id, err := s.accountByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	var code int
	err = s.withLock(ctx, lock.AccountKey(id), func() error {
		code, err = s.issueCode(ctx, id, emailTarget(email, purpose), true)
		return err
	})
	if err != nil {
		return "", err
	}
	subject, action, reason := subjectVerify, auditdomain.ActionOTPSent, "resend"
	if purpose == otpdomain.PurposeReset {
		subject, action, reason = subjectReset, auditdomain.ActionPasswordReset, "forgot-password"
	}
	s.sendCodeEmail(email, subject, code)
	s.audit.LogEvent(ctx, id, action, string(otpdomain.ChannelEmail), reason)
	return email, nil
}

// UpdateEmail moves the signed-in account to newEmail once the code SendOTP sent to that
// address is confirmed.
func (s *AuthService) UpdateEmail(ctx context.Context, accountID, newEmail, code string) (_ *Session, err error) {
	ctx, end := s.start(ctx, "UpdateEmail")
	defer end(&err)

	newEmail = normalizeEmail(newEmail)
	if newEmail == "" {
		return nil, ErrEmailRequired
	}
	if accountID == "" {
		return nil, ErrUnauthorized
	}
	if err := s.ensureEmailFree(ctx, newEmail, accountID); err != nil {
		return nil, err
	}
	var sess *Session
	err = s.withLock(ctx, lock.AccountKey(accountID), func() error {
		acct, err := s.reload(ctx, accountID)
		if err != nil {
			return err
		}
		if err := s.checkCode(ctx, accountID, newEmail, code); err != nil {
			return err
		}
		if err := s.accounts.SetEmail(ctx, accountID, newEmail); err != nil {
			return mapAccountWrite(err)
		}
		acct.Email = newEmail
		if err := s.codes.Consume(ctx, accountID); err != nil {
			return apperr.Internal(err)
		}
		sess, err = s.signIn(ctx, acct)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.audit.LogEvent(ctx, accountID, auditdomain.ActionEmailUpdated, string(otpdomain.ChannelEmail), "")
	return sess, nil
}

func (s *AuthService) ensureEmailFree(ctx context.Context, email, accountID string) error {
	other, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		return apperr.Internal(err)
	}
	if other != nil && other.ID != accountID {
		return ErrEmailTaken
	}
	return nil
}

// Login signs in a verified password account. The password is checked against the account as
// read under its lock, so a concurrent UpdatePassword is either fully before or fully after.
func (s *AuthService) Login(ctx context.Context, email, password string) (_ *Session, err error) {
	ctx, end := s.start(ctx, "Login")
	defer end(&err)

	email = normalizeEmail(email)
	if email == "" || strings.TrimSpace(password) == "" {
		return nil, ErrEmailPasswordRequired
	}
	id, err := s.accountByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	var sess *Session
	err = s.withLock(ctx, lock.AccountKey(id), func() error {
		acct, err := s.reloadByEmail(ctx, id, email)
		if err != nil {
			return err
		}
		if !acct.HasPassword() {
			return ErrNoPassword
		}
		if !acct.Verified {
			return ErrNotVerified
		}
		if !s.hasher.Matches(acct.PasswordHash, password) {
			return ErrInvalidPassword
		}
		sess, err = s.signIn(ctx, acct)
		return err
	})
	if errors.Is(err, ErrInvalidPassword) {
		s.audit.LogEvent(ctx, id, auditdomain.ActionLoginFailure, "password", "")
	}
	if err != nil {
		return nil, err
	}
	s.audit.LogEvent(ctx, id, auditdomain.ActionLoginSuccess, "password", "")
	return sess, nil
}

// UpdatePassword sets a new password once a reset code has been verified. The code is consumed
// and the stored refresh token is cleared, signing out existing sessions.
func (s *AuthService) UpdatePassword(ctx context.Context, email, password string) (_ string, err error) {
	ctx, end := s.start(ctx, "UpdatePassword")
	defer end(&err)

	email = normalizeEmail(email)
	if email == "" || strings.TrimSpace(password) == "" {
		return "", ErrEmailPasswordRequired
	}
	if err := checkPassword(password); err != nil {
		return "", err
	}
	id, err := s.accountByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	err = s.withLock(ctx, lock.AccountKey(id), func() error {
		if _, err := s.reloadByEmail(ctx, id, email); err != nil {
			return err
		}
		active, err := s.codes.Active(ctx, id)
		if err != nil {
			return apperr.Internal(err)
		}
		if active == nil {
			return ErrNotAuthorized
		}
		if !active.Verified {
			return ErrNotVerified
		}
		if active.Purpose != otpdomain.PurposeReset {
			return ErrNotAuthorized
		}
		hashed, err := s.hasher.Hash(password)
		if err != nil {
			return apperr.Internal(err)
		}
		if err := s.accounts.SetPassword(ctx, id, hashed); err != nil {
			return apperr.Internal(err)
		}
		if err := s.codes.Consume(ctx, id); err != nil {
			return apperr.Internal(err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	s.audit.LogEvent(ctx, id, auditdomain.ActionPasswordUpdated, "", "")
	s.log.InfoContext(ctx, "password updated", "account_id", id)
	return email, nil
}
