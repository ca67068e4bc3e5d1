package federation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jws"
	"github.com/lestrrat-go/jwx/v3/jwt"
	"golang.org/x/sync/singleflight"
)

// DefaultGoogleCertsURL is Google's JWKS endpoint for ID token signing keys.
const DefaultGoogleCertsURL = "https://www.googleapis.com/oauth2/v3/certs"

const (
	jwksCacheTTL      = time.Hour
	jwksMinRefresh    = time.Minute
	maxJWKSBodyLength = 1 << 20
)

var googleIssuers = []string{"accounts.google.com", "https://accounts.google.com"}

// GoogleVerifier validates Google ID tokens against the published signing keys.
type GoogleVerifier struct {
	clientID string
	certsURL string
	client   *http.Client
	now      func() time.Time

	fetches singleflight.Group

	mu        sync.Mutex
	keys      jwk.Set
	fetchedAt time.Time
}

// NewGoogleVerifier returns a verifier accepting tokens issued for clientID. An empty certsURL uses
// DefaultGoogleCertsURL.
func NewGoogleVerifier(clientID, certsURL string, client *http.Client) (*GoogleVerifier, error) {
	if strings.TrimSpace(clientID) == "" {
		return nil, errors.New("federation: google client id is not configured")
	}
	if certsURL == "" {
		certsURL = DefaultGoogleCertsURL
	}
	if client == nil {
		client = NewHTTPClient(0)
	}
	return &GoogleVerifier{clientID: clientID, certsURL: certsURL, client: client, now: time.Now}, nil
}

// Verify checks signature, expiry, audience, issuer and email_verified. Any failure of the token
// itself is ErrInvalidToken; failing to fetch keys is ErrUpstream.
func (v *GoogleVerifier) Verify(ctx context.Context, idToken string) (*Profile, error) {
	if strings.TrimSpace(idToken) == "" {
		return nil, ErrInvalidToken
	}
	set, err := v.keySet(ctx, false)
	if err != nil {
		return nil, err
	}
	tok, err := v.parse(idToken, set)
	if err != nil {
		// Keys rotate; retry once with a fresh set.
		if fresh, ferr := v.keySet(ctx, true); ferr == nil && fresh != set {
			tok, err = v.parse(idToken, fresh)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
	}

	iss, _ := tok.Issuer()
	if !validGoogleIssuer(iss) {
		return nil, fmt.Errorf("%w: unexpected issuer %q", ErrInvalidToken, iss)
	}
	var verified any
	if err := tok.Get("email_verified", &verified); err != nil || !truthy(verified) {
		return nil, fmt.Errorf("%w: email not verified", ErrInvalidToken)
	}
	p := &Profile{}
	_ = tok.Get("email", &p.Email)
	_ = tok.Get("name", &p.Name)
	return p, nil
}

func (v *GoogleVerifier) parse(idToken string, set jwk.Set) (jwt.Token, error) {
	return jwt.Parse([]byte(idToken),
		jwt.WithKeySet(set, jws.WithInferAlgorithmFromKey(true)),
		jwt.WithAudience(v.clientID),
		jwt.WithClock(jwt.ClockFunc(v.now)),
		jwt.WithAcceptableSkew(30*time.Second),
	)
}

// keySet returns the cached JWKS, fetching it when missing or stale. force refetches unless the
// cache was refreshed within jwksMinRefresh. Concurrent callers share one fetch; each stops waiting
// when its own ctx is done.
func (v *GoogleVerifier) keySet(ctx context.Context, force bool) (jwk.Set, error) {
	if set, ok := v.cached(force); ok {
		return set, nil
	}
	ch := v.fetches.DoChan("jwks", func() (any, error) {
		if set, ok := v.cached(force); ok {
			return set, nil
		}
		set, err := v.fetch(context.WithoutCancel(ctx))
		v.mu.Lock()
		defer v.mu.Unlock()
		if err != nil {
			if v.keys != nil {
				return v.keys, nil
			}
			return nil, err
		}
		v.keys = set
		v.fetchedAt = v.now()
		return set, nil
	})
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: fetch certs: %v", ErrUpstream, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(jwk.Set), nil
	}
}

func (v *GoogleVerifier) cached(force bool) (jwk.Set, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	age := v.now().Sub(v.fetchedAt)
	if v.keys != nil && age < jwksCacheTTL && (!force || age < jwksMinRefresh) {
		return v.keys, true
	}
	return nil, false
}

func (v *GoogleVerifier) fetch(ctx context.Context) (jwk.Set, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.certsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch certs: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: fetch certs: status %d", ErrUpstream, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJWKSBodyLength))
	if err != nil {
		return nil, fmt.Errorf("%w: read certs: %v", ErrUpstream, err)
	}
	set, err := jwk.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("%w: parse certs: %v", ErrUpstream, err)
	}
	return set, nil
}

func validGoogleIssuer(iss string) bool {
	for _, want := range googleIssuers {
		if iss == want {
			return true
		}
	}
	return false
}

func truthy(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return b == "true"
	default:
		return false
	}
}
