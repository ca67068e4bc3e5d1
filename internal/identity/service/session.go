package service

import (
	"context"
	"strings"

	auditdomain "identity-core/backend/internal/audit/domain"
	"identity-core/backend/internal/platform/apperr"
	"identity-core/backend/internal/platform/lock"
	"identity-core/backend/internal/security"
)

// RefreshSession exchanges the current refresh token for a new pair. A token that is not the
// account's current one is rejected, so each refresh token works once.
func (s *AuthService) RefreshSession(ctx context.Context, refreshToken string) (_ *Session, err error) {
	ctx, end := s.start(ctx, "RefreshSession")
	defer end(&err)

	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil, ErrInvalidRefreshToken
	}
	accountID, err := s.tokens.ValidateRefresh(refreshToken)
	if err != nil {
		return nil, ErrInvalidRefreshToken.Wrap(err)
	}
	var sess *Session
	err = s.withLock(ctx, lock.AccountKey(accountID), func() error {
		acct, err := s.accounts.GetByID(ctx, accountID)
		if err != nil {
			return apperr.Internal(err)
		}
		if acct == nil || !security.RefreshTokenHashEqual(refreshToken, acct.RefreshTokenHash) {
			return ErrInvalidRefreshToken
		}
		sess, err = s.signIn(ctx, acct)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.audit.LogEvent(ctx, accountID, auditdomain.ActionSessionRefreshed, "", "")
	return sess, nil
}

// Logout clears the account's stored refresh token. Access tokens already issued stay valid
// until they expire.
func (s *AuthService) Logout(ctx context.Context, accountID string) (err error) {
	ctx, end := s.start(ctx, "Logout")
	defer end(&err)

	if accountID == "" {
		return ErrUnauthorized
	}
	err = s.withLock(ctx, lock.AccountKey(accountID), func() error {
		if err := s.accounts.SetRefreshTokenHash(ctx, accountID, ""); err != nil {
			return apperr.Internal(err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.audit.LogEvent(ctx, accountID, auditdomain.ActionLogout, "", "")
	return nil
}
