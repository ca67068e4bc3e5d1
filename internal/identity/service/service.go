package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"identity-core/backend/internal/account/domain"
	accountrepo "identity-core/backend/internal/account/repository"
	"identity-core/backend/internal/audit"
	"identity-core/backend/internal/federation"
	"identity-core/backend/internal/notify"
	"identity-core/backend/internal/otp"
	otpdomain "identity-core/backend/internal/otp/domain"
	"identity-core/backend/internal/platform/apperr"
	"identity-core/backend/internal/platform/lock"
	"identity-core/backend/internal/security"
)

const instrumentationName = "identity-core/backend/internal/identity/service"

// maxPasswordBytes is the bcrypt input limit.
const maxPasswordBytes = 72

// AccountRepo is the minimal account repository needed by the auth service.
type AccountRepo interface {
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	GetByPhone(ctx context.Context, phone string) (*domain.Account, error)
	Create(ctx context.Context, a *domain.Account) error
	SetPassword(ctx context.Context, id, hash string) error
	MarkVerified(ctx context.Context, id string) error
	SetEmail(ctx context.Context, id, email string) error
	SetRefreshTokenHash(ctx context.Context, id, hash string) error
}

// CodeEngine is the subset of the OTP engine used by the auth service.
type CodeEngine interface {
	Issue(ctx context.Context, accountID string, t otpdomain.Target) (int, error)
	Reissue(ctx context.Context, accountID string, t otpdomain.Target) (int, error)
	Verify(ctx context.Context, accountID, submitted string) (otp.Result, error)
	Active(ctx context.Context, accountID string) (*otpdomain.Code, error)
	MarkVerified(ctx context.Context, accountID string) error
	Consume(ctx context.Context, accountID string) error
}

// Session is the outcome of every operation that signs an account in.
type Session struct {
	Account domain.PublicAccount
	Tokens  security.SessionTokens
}

// AuthService orchestrates registration, one-time code flows, password and provider sign-in,
// and session refresh for accounts.
type AuthService struct {
	accounts   AccountRepo
	codes      CodeEngine
	hasher     *security.Hasher
	tokens     *security.TokenProvider
	verifiers  federation.Registry
	dispatcher *notify.Dispatcher
	locker     lock.Locker
	audit      audit.AuditLogger
	log        *slog.Logger
	mailFrom   string
	now        func() time.Time
	newID      func() string

	tracer         trace.Tracer
	codesIssued    metric.Int64Counter
	sessionsMinted metric.Int64Counter
}

// Option configures optional AuthService collaborators.
type Option func(*AuthService)

// WithMailFrom sets the From address of outgoing code emails.
func WithMailFrom(from string) Option { return func(s *AuthService) { s.mailFrom = from } }

// WithAuditLogger records lifecycle events through l.
func WithAuditLogger(l audit.AuditLogger) Option {
	return func(s *AuthService) {
		if l != nil {
			s.audit = l
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *AuthService) {
		if l != nil {
			s.log = l
		}
	}
}

// NewAuthService returns an AuthService with the given dependencies.
func NewAuthService(
	accounts AccountRepo,
	codes CodeEngine,
	hasher *security.Hasher,
	tokens *security.TokenProvider,
	verifiers federation.Registry,
	dispatcher *notify.Dispatcher,
	locker lock.Locker,
	opts ...Option,
) *AuthService {
	s := &AuthService{
		accounts:   accounts,
		codes:      codes,
		hasher:     hasher,
		tokens:     tokens,
		verifiers:  verifiers,
		dispatcher: dispatcher,
		locker:     locker,
		audit:      audit.Nop{},
		log:        slog.Default(),
		now:        func() time.Time { return time.Now().UTC() },
		newID:      newAccountID,
		tracer:     otel.Tracer(instrumentationName),
	}
	for _, o := range opts {
		o(s)
	}
	meter := otel.Meter(instrumentationName)
	// Instrument creation only fails on invalid names; the returned instrument is then a no-op.
	s.codesIssued, _ = meter.Int64Counter("identity.otp.issued",
		metric.WithDescription("One-time codes issued"))
	s.sessionsMinted, _ = meter.Int64Counter("identity.sessions.minted",
		metric.WithDescription("Session token pairs minted"))
	return s
}

func normalizeEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

// start opens the span for one service operation. end records err on the span.
func (s *AuthService) start(ctx context.Context, op string) (context.Context, func(err *error)) {
	ctx, span := s.tracer.Start(ctx, "AuthService."+op)
	return ctx, func(err *error) {
		if err != nil && *err != nil {
			span.RecordError(*err)
			span.SetStatus(codes.Error, apperr.From(*err).Message)
		}
		span.End()
	}
}

// checkPassword rejects a password longer than bcrypt accepts.
func checkPassword(password string) error {
	if len(password) > maxPasswordBytes {
		return ErrPasswordTooLong
	}
	return nil
}

// withLock runs fn while holding key.
func (s *AuthService) withLock(ctx context.Context, key string, fn func() error) error {
	release, err := s.locker.Lock(ctx, key)
	if err != nil {
		return apperr.Internal(err)
	}
	defer release()
	return fn()
}

// issueCode creates a code bound to t. fresh removes every earlier code first.
func (s *AuthService) issueCode(ctx context.Context, accountID string, t otpdomain.Target, fresh bool) (int, error) {
	var (
		code int
		err  error
	)
	if fresh {
		code, err = s.codes.Reissue(ctx, accountID, t)
	} else {
		code, err = s.codes.Issue(ctx, accountID, t)
	}
	if err != nil {
		return 0, apperr.Internal(err)
	}
	s.codesIssued.Add(ctx, 1, metric.WithAttributes(
		attribute.String("channel", string(t.Channel)),
		attribute.String("purpose", string(t.Purpose)),
	))
	return code, nil
}

// checkCode verifies submitted against the account's active code, which must have been sent to
// to. A missing code, a code sent elsewhere and a mismatch all yield ErrInvalidOTP.
func (s *AuthService) checkCode(ctx context.Context, accountID, to, submitted string) error {
	active, err := s.codes.Active(ctx, accountID)
	if err != nil {
		return apperr.Internal(err)
	}
	if active == nil || active.Destination != to {
		return ErrInvalidOTP
	}
	res, err := s.codes.Verify(ctx, accountID, submitted)
	if errors.Is(err, otp.ErrCodeNotFound) {
		return ErrInvalidOTP
	}
	if err != nil {
		return apperr.Internal(err)
	}
	if !res.Matched {
		return ErrInvalidOTP
	}
	if res.Expired {
		return ErrOTPExpired
	}
	return nil
}

// reload reads the account again. Callers hold the account lock, so the result is current for
// the rest of the locked sequence.
func (s *AuthService) reload(ctx context.Context, id string) (*domain.Account, error) {
	a, err := s.accounts.GetByID(ctx, id)
	if err := lookupErr(a, err); err != nil {
		return nil, err
	}
	return a, nil
}

// signIn mints a session for a and stores its refresh reference. Only the refresh column is
// written; callers hold the account lock.
func (s *AuthService) signIn(ctx context.Context, a *domain.Account) (*Session, error) {
	tokens, err := s.tokens.Mint(security.Principal{
		AccountID: a.ID,
		Email:     a.Email,
		Role:      string(a.Role),
	})
	if err != nil {
		return nil, apperr.Internal(err)
	}
	hash := security.HashRefreshToken(tokens.RefreshToken)
	if err := s.accounts.SetRefreshTokenHash(ctx, a.ID, hash); err != nil {
		return nil, apperr.Internal(err)
	}
	a.RefreshTokenHash = hash
	s.sessionsMinted.Add(ctx, 1)
	return &Session{Account: a.Public(), Tokens: tokens}, nil
}

func (s *AuthService) newAccount(email, phone, name string, verified bool) *domain.Account {
	now := s.now()
	return &domain.Account{
		ID:        s.newID(),
		Email:     email,
		Phone:     phone,
		Name:      strings.TrimSpace(name),
		Verified:  verified,
		Role:      domain.RoleUser,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s *AuthService) createAccount(ctx context.Context, a *domain.Account) error {
	if err := a.Validate(); err != nil {
		return apperr.BadRequest(err.Error())
	}
	if err := s.accounts.Create(ctx, a); err != nil {
		return mapAccountWrite(err)
	}
	return nil
}

func (s *AuthService) sendCodeEmail(to, subject string, code int) {
	s.dispatcher.SendEmailAsync(notify.Message{
		From:    s.mailFrom,
		To:      to,
		Subject: subject,
		Text:    codeEmailText(to, code),
	})
}

func mapAccountWrite(err error) error {
	if errors.Is(err, accountrepo.ErrDuplicate) {
		return ErrEmailTaken.Wrap(err)
	}
	return apperr.Internal(err)
}

func lookupErr(a *domain.Account, err error) error {
	if err != nil {
		return apperr.Internal(err)
	}
	if a == nil {
		return ErrAccountNotFound
	}
	return nil
}
