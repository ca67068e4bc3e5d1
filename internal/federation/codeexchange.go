package federation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/facebook"
	"golang.org/x/oauth2/linkedin"
)

const (
	facebookProfileURL = "https://graph.facebook.com/me?fields=name,email"
	linkedInProfileURL = "https://api.linkedin.com/v2/userinfo"

	maxProfileBodyLength = 1 << 20
)

// CodeExchangeConfig configures an authorization-code provider.
type CodeExchangeConfig struct {
	Name         string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Endpoint     oauth2.Endpoint
	ProfileURL   string
	Scopes       []string
}

// CodeExchangeVerifier redeems an authorization code for an access token and reads the
// profile endpoint with it.
type CodeExchangeVerifier struct {
	name       string
	oauth      *oauth2.Config
	profileURL string
	client     *http.Client
}

// NewCodeExchangeVerifier validates cfg and returns a verifier using client for every call.
func NewCodeExchangeVerifier(cfg CodeExchangeConfig, client *http.Client) (*CodeExchangeVerifier, error) {
	if strings.TrimSpace(cfg.ClientID) == "" || strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, fmt.Errorf("federation: %s client id and secret are required", cfg.Name)
	}
	if cfg.ProfileURL == "" || cfg.Endpoint.TokenURL == "" {
		return nil, fmt.Errorf("federation: %s endpoints are required", cfg.Name)
	}
	if client == nil {
		client = NewHTTPClient(0)
	}
	endpoint := cfg.Endpoint
	endpoint.AuthStyle = oauth2.AuthStyleInParams
	return &CodeExchangeVerifier{
		name: cfg.Name,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       cfg.Scopes,
		},
		profileURL: cfg.ProfileURL,
		client:     client,
	}, nil
}

// NewFacebookVerifier returns a code-exchange verifier for Facebook Login.
func NewFacebookVerifier(clientID, clientSecret, redirectURL string, client *http.Client) (*CodeExchangeVerifier, error) {
	return NewCodeExchangeVerifier(CodeExchangeConfig{
		Name:         ProviderFacebook,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Endpoint:     facebook.Endpoint,
		ProfileURL:   facebookProfileURL,
		Scopes:       []string{"email", "public_profile"},
	}, client)
}

// NewLinkedInVerifier returns a code-exchange verifier for Sign In with LinkedIn (OpenID Connect).
func NewLinkedInVerifier(clientID, clientSecret, redirectURL string, client *http.Client) (*CodeExchangeVerifier, error) {
	return NewCodeExchangeVerifier(CodeExchangeConfig{
		Name:         ProviderLinkedIn,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Endpoint:     linkedin.Endpoint,
		ProfileURL:   linkedInProfileURL,
		Scopes:       []string{"openid", "profile", "email"},
	}, client)
}

// Verify exchanges code and fetches the profile. A rejected code is ErrInvalidToken; transport
// failures and malformed answers are ErrUpstream.
func (v *CodeExchangeVerifier) Verify(ctx context.Context, code string) (*Profile, error) {
	if strings.TrimSpace(code) == "" {
		return nil, ErrInvalidToken
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, v.client)
	tok, err := v.oauth.Exchange(ctx, code)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil && re.Response.StatusCode < 500 {
			return nil, fmt.Errorf("%w: %s exchange: %v", ErrInvalidToken, v.name, err)
		}
		return nil, fmt.Errorf("%w: %s exchange: %v", ErrUpstream, v.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.profileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	tok.SetAuthHeader(req)
	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s profile: %v", ErrUpstream, v.name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s profile: status %d", ErrUpstream, v.name, resp.StatusCode)
	}
	var body struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxProfileBodyLength)).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: %s profile: %v", ErrUpstream, v.name, err)
	}
	return &Profile{Email: body.Email, Name: body.Name}, nil
}
