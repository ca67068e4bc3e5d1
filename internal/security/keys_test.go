package security

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadPEM(t *testing.T) {
	if _, err := LoadPEM("  "); err != ErrInvalidKey {
		t.Errorf("empty: err = %v", err)
	}

	b, err := LoadPEM(`-----BEGIN PUBLIC KEY-----\nAAAA\n-----END PUBLIC KEY-----`)
	if err != nil {
		t.Fatalf("inline: %v", err)
	}
	if strings.Contains(string(b), `\n`) || strings.Count(string(b), "\n") != 2 {
		t.Errorf("literal \\n not expanded: %q", b)
	}

	path := filepath.Join(t.TempDir(), "key.pem")
	if err := os.WriteFile(path, []byte(testPublicKeyPEM), 0o600); err != nil {
		t.Fatal(err)
	}
	b, err = LoadPEM(path)
	if err != nil || !strings.HasPrefix(string(b), "-----BEGIN PUBLIC KEY") {
		t.Errorf("file: %q, %v", b, err)
	}
}

func TestParseKeys(t *testing.T) {
	signer, err := ParsePrivateKey(testPrivateKeyPEM)
	if err != nil {
		t.Fatalf("ParsePrivateKey: %v", err)
	}
	pub, err := ParsePublicKey(testPublicKeyPEM)
	if err != nil {
		t.Fatalf("ParsePublicKey: %v", err)
	}
	if KeyAlg(pub) != "RS256" || KeyAlg(signer.Public()) != "RS256" {
		t.Errorf("KeyAlg = %q", KeyAlg(pub))
	}
	if KeyAlg("not a key") != "" {
		t.Error("KeyAlg of unknown type should be empty")
	}

	if _, err := ParsePrivateKey(testPublicKeyPEM); err != ErrInvalidKey {
		t.Errorf("public PEM as private: err = %v", err)
	}
	if _, err := ParsePublicKey("-----BEGIN NOTHING-----"); err != ErrInvalidKey {
		t.Errorf("garbage PEM: err = %v", err)
	}
}

func TestNewTokenProviderFromConfig(t *testing.T) {
	tp, err := NewTokenProviderFromConfig(TokenConfig{
		PrivateKey: testPrivateKeyPEM, PublicKey: testPublicKeyPEM,
		Issuer: "i", Audience: "a", AccessTTL: time.Minute, RefreshTTL: time.Hour,
	})
	if err != nil {
		t.Fatalf("key pair: %v", err)
	}
	if tp.method.Alg() != "RS256" {
		t.Errorf("alg = %s", tp.method.Alg())
	}

	tp, err = NewTokenProviderFromConfig(TokenConfig{Secret: "s", Issuer: "i", Audience: "a", AccessTTL: time.Minute, RefreshTTL: time.Hour})
	if err != nil || tp.method.Alg() != "HS256" {
		t.Fatalf("secret: %v", err)
	}

	if _, err := NewTokenProviderFromConfig(TokenConfig{PrivateKey: testPrivateKeyPEM}); err == nil {
		t.Error("private key without public key should fail")
	}
	if _, err := NewTokenProviderFromConfig(TokenConfig{}); err != ErrInvalidKey {
		t.Errorf("nothing configured: err = %v", err)
	}
}
