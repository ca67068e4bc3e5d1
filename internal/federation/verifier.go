// Package federation verifies assertions from third-party identity providers and returns the
// profile they vouch for.
package federation

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"time"
)

var (
	// ErrInvalidToken is returned when an assertion is malformed, expired, or not meant for us.
	ErrInvalidToken = errors.New("federation: invalid token")
	// ErrUpstream is returned when the provider could not be reached or answered unexpectedly.
	ErrUpstream = errors.New("federation: provider error")
)

// Provider names accepted by the sign-in routes.
const (
	ProviderGoogle   = "google"
	ProviderFacebook = "facebook"
	ProviderLinkedIn = "linkedin"
)

// Profile is the identity a provider vouches for. Email may be empty when the provider
// did not release it.
type Profile struct {
	Email string
	Name  string
}

// Verifier turns a provider assertion (ID token or authorization code) into a Profile.
type Verifier interface {
	Verify(ctx context.Context, assertion string) (*Profile, error)
}

// Registry maps provider names to verifiers. It is built once at startup and read-only after.
type Registry map[string]Verifier

// Lookup returns the verifier for provider.
func (r Registry) Lookup(provider string) (Verifier, bool) {
	v, ok := r[provider]
	return v, ok
}

// Names returns the registered provider names, sorted.
func (r Registry) Names() []string {
	names := make([]string, 0, len(r))
	for n := range r {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// NewHTTPClient returns the client used for provider calls, bounded by timeout.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{Timeout: timeout}
}
