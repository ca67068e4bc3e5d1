package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a token is malformed, expired, or fails validation.
	ErrInvalidToken = errors.New("invalid token")
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// Principal is the account a session is minted for.
type Principal struct {
	AccountID string
	Email     string
	Role      string
}

// AccessClaims holds JWT claims for the access token.
type AccessClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	Type  string `json:"typ"`
}

// RefreshClaims holds JWT claims for the refresh token. The random jti makes every refresh
// token distinct, so its stored hash identifies one issuance.
type RefreshClaims struct {
	jwt.RegisteredClaims
	Type string `json:"typ"`
}

// SessionTokens is an access/refresh pair returned by Mint.
type SessionTokens struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// TokenProvider issues and validates access and refresh JWTs, signed with RS256/ES256 from a key
// pair or HS256 from a shared secret.
type TokenProvider struct {
	method     jwt.SigningMethod
	signKey    any
	verifyKey  any
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenProvider returns a TokenProvider that signs with privateKey (RSA or ECDSA).
// issuer and audience are set on claims and enforced on validation.
func NewTokenProvider(privateKey crypto.Signer, publicKey crypto.PublicKey, issuer, audience string, accessTTL, refreshTTL time.Duration) (*TokenProvider, error) {
	var method jwt.SigningMethod
	switch privateKey.Public().(type) {
	case *rsa.PublicKey:
		method = jwt.SigningMethodRS256
	case *ecdsa.PublicKey:
		method = jwt.SigningMethodES256
	default:
		return nil, ErrInvalidKey
	}
	if KeyAlg(publicKey) != method.Alg() {
		return nil, ErrInvalidKey
	}
	return newProvider(method, privateKey, publicKey, issuer, audience, accessTTL, refreshTTL), nil
}

// NewHMACTokenProvider returns a TokenProvider that signs with HS256 using secret.
func NewHMACTokenProvider(secret []byte, issuer, audience string, accessTTL, refreshTTL time.Duration) (*TokenProvider, error) {
	if len(secret) == 0 {
		return nil, ErrInvalidKey
	}
	return newProvider(jwt.SigningMethodHS256, secret, secret, issuer, audience, accessTTL, refreshTTL), nil
}

func newProvider(method jwt.SigningMethod, signKey, verifyKey any, issuer, audience string, accessTTL, refreshTTL time.Duration) *TokenProvider {
	return &TokenProvider{
		method:     method,
		signKey:    signKey,
		verifyKey:  verifyKey,
		issuer:     issuer,
		audience:   audience,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Mint issues a new access/refresh pair for p. Caller stores HashRefreshToken(RefreshToken)
// on the account, replacing any previous reference.
func (tp *TokenProvider) Mint(p Principal) (SessionTokens, error) {
	now := tp.now()
	accessJTI, err := generateJTI()
	if err != nil {
		return SessionTokens{}, err
	}
	refreshJTI, err := generateJTI()
	if err != nil {
		return SessionTokens{}, err
	}
	out := SessionTokens{
		AccessExpiresAt:  now.Add(tp.accessTTL),
		RefreshExpiresAt: now.Add(tp.refreshTTL),
	}
	out.AccessToken, err = tp.sign(AccessClaims{
		RegisteredClaims: tp.registered(accessJTI, p.AccountID, now, out.AccessExpiresAt),
		Email:            p.Email,
		Role:             p.Role,
		Type:             tokenTypeAccess,
	})
	if err != nil {
		return SessionTokens{}, err
	}
	out.RefreshToken, err = tp.sign(RefreshClaims{
		RegisteredClaims: tp.registered(refreshJTI, p.AccountID, now, out.RefreshExpiresAt),
		Type:             tokenTypeRefresh,
	})
	if err != nil {
		return SessionTokens{}, err
	}
	return out, nil
}

func (tp *TokenProvider) registered(jti, subject string, now, exp time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		ID:        jti,
		Subject:   subject,
		Issuer:    tp.issuer,
		Audience:  jwt.ClaimStrings{tp.audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
}

func (tp *TokenProvider) sign(claims jwt.Claims) (string, error) {
	return jwt.NewWithClaims(tp.method, claims).SignedString(tp.signKey)
}

func (tp *TokenProvider) parse(tokenString string, claims jwt.Claims) error {
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return tp.verifyKey, nil },
		jwt.WithValidMethods([]string{tp.method.Alg()}),
		jwt.WithIssuer(tp.issuer),
		jwt.WithAudience(tp.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(tp.now),
	)
	if err != nil || !token.Valid {
		return ErrInvalidToken
	}
	return nil
}

// ValidateAccess parses and validates an access token (signature, exp, iss, aud, type).
func (tp *TokenProvider) ValidateAccess(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := tp.parse(tokenString, claims); err != nil {
		return nil, err
	}
	if claims.Type != tokenTypeAccess || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ValidateRefresh parses and validates a refresh token and returns the account id it was issued to.
// The caller must still compare it against the stored hash.
func (tp *TokenProvider) ValidateRefresh(tokenString string) (accountID string, err error) {
	claims := &RefreshClaims{}
	if err := tp.parse(tokenString, claims); err != nil {
		return "", err
	}
	if claims.Type != tokenTypeRefresh || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
