package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"identity-core/backend/internal/account/domain"
	auditdomain "identity-core/backend/internal/audit/domain"
	"identity-core/backend/internal/federation"
	otpdomain "identity-core/backend/internal/otp/domain"
	"identity-core/backend/internal/platform/apperr"
	"identity-core/backend/internal/platform/lock"
)

// SignInWithProvider verifies a provider assertion and signs in the account for the verified
// email, creating a verified password-less account on first sign-in.
func (s *AuthService) SignInWithProvider(ctx context.Context, provider, assertion string) (_ *Session, err error) {
	ctx, end := s.start(ctx, "SignInWithProvider")
	defer end(&err)

	provider = strings.ToLower(strings.TrimSpace(provider))
	v, ok := s.verifiers.Lookup(provider)
	if !ok {
		return nil, ErrUnknownProvider
	}
	assertion = strings.TrimSpace(assertion)
	if assertion == "" {
		if provider == federation.ProviderGoogle {
			return nil, ErrTokenRequired
		}
		return nil, ErrCodeRequired
	}
	profile, err := v.Verify(ctx, assertion)
	if err != nil {
		if errors.Is(err, federation.ErrInvalidToken) {
			return nil, ErrTokenRequired.Wrap(err)
		}
		s.log.WarnContext(ctx, "identity provider call failed", "provider", provider, "error", err)
		return nil, ErrProviderUnavailable.Wrap(err)
	}
	email := normalizeEmail(profile.Email)
	if email == "" {
		return nil, ErrProviderNoEmail
	}

	var id string
	err = s.withLock(ctx, lock.EmailKey(email), func() error {
		acct, err := s.accounts.GetByEmail(ctx, email)
		if err != nil {
			return apperr.Internal(err)
		}
		if acct == nil {
			acct = s.newAccount(email, "", profile.Name, true)
			if err := s.createAccount(ctx, acct); err != nil {
				return err
			}
		}
		id = acct.ID
		return nil
	})
	if err != nil {
		return nil, err
	}
	var sess *Session
	err = s.withLock(ctx, lock.AccountKey(id), func() error {
		acct, err := s.reloadByEmail(ctx, id, email)
		if err != nil {
			return err
		}
		if err := s.claimUnverified(ctx, acct); err != nil {
			return err
		}
		sess, err = s.signIn(ctx, acct)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.audit.LogEvent(ctx, id, auditdomain.ActionProviderSignIn, provider, "")
	return sess, nil
}

// claimUnverified hands an unverified account to the provider-verified owner of its email. The
// password and pending codes were set by whoever registered the address without proving it, so
// both are dropped before the account is marked verified.
func (s *AuthService) claimUnverified(ctx context.Context, acct *domain.Account) error {
	if acct.Verified {
		return nil
	}
	if acct.HasPassword() {
		if err := s.accounts.SetPassword(ctx, acct.ID, ""); err != nil {
			return apperr.Internal(err)
		}
		acct.PasswordHash = ""
		acct.RefreshTokenHash = ""
		s.log.InfoContext(ctx, "unverified password dropped on provider sign-in", "account_id", acct.ID)
	}
	if err := s.codes.Consume(ctx, acct.ID); err != nil {
		return apperr.Internal(err)
	}
	return s.markVerified(ctx, acct)
}

// SignInWithPhoneNumber finds or creates the account for phone and texts it a fresh code.
// The send is awaited; a failed send is reported to the caller.
func (s *AuthService) SignInWithPhoneNumber(ctx context.Context, name, phone string) (_ string, err error) {
	ctx, end := s.start(ctx, "SignInWithPhoneNumber")
	defer end(&err)

	phone = strings.TrimSpace(phone)
	if phone == "" {
		return "", ErrPhoneRequired
	}
	var acct *domain.Account
	err = s.withLock(ctx, lock.PhoneKey(phone), func() error {
		existing, err := s.accounts.GetByPhone(ctx, phone)
		if err != nil {
			return apperr.Internal(err)
		}
		if existing != nil {
			acct = existing
			return nil
		}
		acct = s.newAccount("", phone, name, false)
		return s.createAccount(ctx, acct)
	})
	if err != nil {
		return "", err
	}
	var code int
	err = s.withLock(ctx, lock.AccountKey(acct.ID), func() error {
		target := otpdomain.Target{Channel: otpdomain.ChannelPhone, To: phone, Purpose: otpdomain.PurposeVerify}
		code, err = s.issueCode(ctx, acct.ID, target, true)
		return err
	})
	if err != nil {
		return "", err
	}
	res := s.dispatcher.SendSMS(ctx, phone, fmt.Sprintf("Your OTP is %d", code))
	if !res.Success {
		s.log.WarnContext(ctx, "sms send failed", "account_id", acct.ID, "error", res.Error)
		return "", apperr.Upstream("Error sending OTP: " + res.Error)
	}
	s.audit.LogEvent(ctx, acct.ID, auditdomain.ActionOTPSent, string(otpdomain.ChannelPhone), "phone-sign-in")
	return phone, nil
}

// VerifyPhoneNumber checks the texted code, consumes it and signs the account in.
func (s *AuthService) VerifyPhoneNumber(ctx context.Context, phone, code string) (_ *Session, err error) {
	ctx, end := s.start(ctx, "VerifyPhoneNumber")
	defer end(&err)

	phone = strings.TrimSpace(phone)
	code = strings.TrimSpace(code)
	if phone == "" || code == "" {
		return nil, ErrPhoneOTPRequired
	}
	acct, err := s.accounts.GetByPhone(ctx, phone)
	if err := lookupErr(acct, err); err != nil {
		return nil, err
	}
	id := acct.ID
	var sess *Session
	err = s.withLock(ctx, lock.AccountKey(id), func() error {
		acct, err := s.reload(ctx, id)
		if err != nil {
			return err
		}
		if acct.Phone != phone {
			return ErrAccountNotFound
		}
		if err := s.checkCode(ctx, id, phone, code); err != nil {
			return err
		}
		if err := s.codes.Consume(ctx, id); err != nil {
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
	s.audit.LogEvent(ctx, id, auditdomain.ActionPhoneSignIn, string(otpdomain.ChannelPhone), "")
	return sess, nil
}
