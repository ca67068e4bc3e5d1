package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"

	"identity-core/backend/internal/platform/logging"
	"identity-core/backend/internal/security"
)

func TestWithIdentity_SetsAllValues(t *testing.T) {
	ctx := WithIdentity(context.Background(), "acct-1", "a@example.com", "user")

	if v, ok := GetAccountID(ctx); !ok || v != "acct-1" {
		t.Errorf("account_id = %q, %v", v, ok)
	}
	if v, ok := GetEmail(ctx); !ok || v != "a@example.com" {
		t.Errorf("email = %q, %v", v, ok)
	}
	if v, ok := GetRole(ctx); !ok || v != "user" {
		t.Errorf("role = %q, %v", v, ok)
	}
}

func TestGetAccountID_ReturnsFalseWhenNotSet(t *testing.T) {
	v, ok := GetAccountID(context.Background())
	if ok || v != "" {
		t.Errorf("GetAccountID = %q, %v; want \"\", false", v, ok)
	}
}

func TestExtractBearer(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"Bearer abc", "abc"},
		{"bearer   abc  ", "abc"},
		{"BEARER abc", "abc"},
		{"Basic abc", ""},
		{"Bearer", ""},
	}
	for _, tt := range tests {
		if got := extractBearer(tt.in); got != tt.want {
			t.Errorf("extractBearer(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func identityEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := GetAccountID(r.Context())
		email, _ := GetEmail(r.Context())
		_, _ = w.Write([]byte(id + "|" + email))
	})
}

func TestRequireAuth(t *testing.T) {
	tokens := security.NewTestHMACTokenProvider()
	pair, err := tokens.Mint(security.Principal{AccountID: "acct-1", Email: "a@example.com", Role: "user"})
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	h := RequireAuth(tokens)(identityEcho())

	t.Run("bearer", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK || rec.Body.String() != "acct-1|a@example.com" {
			t.Errorf("got %d %q", rec.Code, rec.Body.String())
		}
	})
	t.Run("cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: pair.AccessToken})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d", rec.Code)
		}
	})
	t.Run("refresh token rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+pair.RefreshToken)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})
	t.Run("missing", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name   string
		header map[string]string
		remote string
		want   string
	}{
		{"forwarded list", map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}, "10.0.0.2:1234", "203.0.113.7"},
		{"real ip", map[string]string{"X-Real-IP": "198.51.100.2"}, "10.0.0.2:1234", "198.51.100.2"},
		{"remote addr", nil, "192.0.2.9:5555", "192.0.2.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			var got string
			ClientIP(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = ClientIPFromContext(r.Context())
			})).ServeHTTP(httptest.NewRecorder(), req)
			if got != tt.want {
				t.Errorf("ip = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestObserve_PassesStatusThrough(t *testing.T) {
	r := mux.NewRouter()
	r.Use(Observe(logging.Discard()))
	r.HandleFunc("/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/items/7", nil))
	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d", rec.Code)
	}
}
