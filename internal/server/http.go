// Package server assembles the HTTP router and the gRPC server.
package server

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	devotphandler "identity-core/backend/internal/devotp/handler"
	identityhandler "identity-core/backend/internal/identity/handler"
	"identity-core/backend/internal/security"
	"identity-core/backend/internal/server/middleware"
)

// Deps holds the handlers mounted on the HTTP router.
type Deps struct {
	// Identity serves /api/v1/users. Required.
	Identity *identityhandler.Handler
	// Tokens validates access tokens for protected routes. Required.
	Tokens *security.TokenProvider
	// Health answers GET /healthz. If nil, the route is not mounted.
	Health http.Handler
	// DevOTP serves GET /api/v1/users/dev/otp. Set only when dev OTP mode is enabled and not production.
	DevOTP *devotphandler.Handler
	Log    *slog.Logger
}

// NewRouter returns the HTTP router with request observation and client IP capture on every route.
func NewRouter(deps Deps) *mux.Router {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	r := mux.NewRouter()
	r.StrictSlash(true)
	r.Use(middleware.Observe(log), middleware.ClientIP)

	if deps.Health != nil {
		r.Handle("/healthz", deps.Health).Methods(http.MethodGet)
	}
	if deps.DevOTP != nil {
		r.HandleFunc(identityhandler.PathPrefix+"/dev/otp", deps.DevOTP.GetOTP).Methods(http.MethodGet)
	}
	deps.Identity.Routes(r, middleware.RequireAuth(deps.Tokens))
	r.NotFoundHandler = http.HandlerFunc(notFound)
	return r
}

func notFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte(`{"statusCode":404,"data":null,"message":"Route not found"}` + "\n"))
}
