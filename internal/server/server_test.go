package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"google.golang.org/grpc"

	accountrepo "identity-core/backend/internal/account/repository"
	"identity-core/backend/internal/devotp"
	devotphandler "identity-core/backend/internal/devotp/handler"
	"identity-core/backend/internal/federation"
	"identity-core/backend/internal/health"
	identityhandler "identity-core/backend/internal/identity/handler"
	"identity-core/backend/internal/identity/service"
	"identity-core/backend/internal/notify"
	"identity-core/backend/internal/otp"
	otprepo "identity-core/backend/internal/otp/repository"
	"identity-core/backend/internal/platform/lock"
	"identity-core/backend/internal/platform/logging"
	"identity-core/backend/internal/security"
)

// mockServiceRegistrar implements grpc.ServiceRegistrar for testing.
type mockServiceRegistrar struct {
	services []string
}

func (m *mockServiceRegistrar) RegisterService(desc *grpc.ServiceDesc, impl interface{}) {
	m.services = append(m.services, desc.ServiceName)
}

func TestRegisterServices_Health(t *testing.T) {
	reg := &mockServiceRegistrar{}
	RegisterServices(reg, health.NewChecker(logging.Discard()))
	if len(reg.services) != 1 || reg.services[0] != "grpc.health.v1.Health" {
		t.Errorf("services = %v", reg.services)
	}
}

func TestNewGRPCServer(t *testing.T) {
	s := NewGRPCServer(health.NewChecker(logging.Discard()))
	defer s.Stop()
	if _, ok := s.GetServiceInfo()["grpc.health.v1.Health"]; !ok {
		t.Error("health service not registered")
	}
}

func newRouter(t *testing.T, store devotp.Store) http.Handler {
	t.Helper()
	tokens := security.NewTestHMACTokenProvider()
	var email notify.EmailNotifier = notify.LogNotifier{Logger: logging.Discard()}
	var sms notify.SMSNotifier = notify.LogNotifier{Logger: logging.Discard()}
	var dev *devotphandler.Handler
	if store != nil {
		n := devotp.NewNotifier(store, email, sms)
		email, sms, dev = n, n, devotphandler.NewHandler(store)
	}
	dispatcher := notify.NewDispatcher(email, sms, time.Second, logging.Discard())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		dispatcher.Drain(ctx)
	})
	auth := service.NewAuthService(
		accountrepo.NewMemoryRepository(),
		otp.NewEngine(otprepo.NewMemoryRepository(), otp.ExpiryPolicy{}),
		security.NewHasher(4),
		tokens,
		federation.Registry{},
		dispatcher,
		lock.NewMemoryLocker(),
	)
	return NewRouter(Deps{
		Identity: identityhandler.NewHandler(auth, logging.Discard()),
		Tokens:   tokens,
		Health:   health.NewChecker(logging.Discard()),
		DevOTP:   dev,
		Log:      logging.Discard(),
	})
}

func serve(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rec
}

func TestRouter_HealthAndNotFound(t *testing.T) {
	r := newRouter(t, nil)

	if rec := serve(r, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Errorf("/healthz = %d", rec.Code)
	}
	rec := serve(r, http.MethodGet, "/nope", "")
	if rec.Code != http.StatusNotFound || !strings.Contains(rec.Body.String(), "Route not found") {
		t.Errorf("/nope = %d %s", rec.Code, rec.Body.String())
	}
	if rec := serve(r, http.MethodGet, "/api/v1/users/dev/otp?to=a@example.com", ""); rec.Code == http.StatusOK {
		t.Error("dev route must not be mounted without a dev store")
	}
}

func TestRouter_DevOTPCapturesRegistrationCode(t *testing.T) {
	store := devotp.NewMemoryStore(time.Minute)
	r := newRouter(t, store)

	rec := serve(r, http.MethodPost, "/api/v1/users/register", `{"email":"dev@example.com","password":"pw"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register = %d %s", rec.Code, rec.Body.String())
	}
	deadline := time.Now().Add(time.Second)
	for {
		rec = serve(r, http.MethodGet, "/api/v1/users/dev/otp?to=dev@example.com", "")
		if rec.Code == http.StatusOK || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Your OTP for verification is") {
		t.Errorf("dev otp = %d %s", rec.Code, rec.Body.String())
	}
}
