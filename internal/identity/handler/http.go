// Package handler exposes the account lifecycle operations as a JSON API under /api/v1/users.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"identity-core/backend/internal/account/domain"
	"identity-core/backend/internal/federation"
	"identity-core/backend/internal/identity/service"
	"identity-core/backend/internal/platform/apperr"
	"identity-core/backend/internal/server/middleware"
)

// PathPrefix is where the user routes are mounted.
const PathPrefix = "/api/v1/users"

const maxBodyBytes = 1 << 20

// Handler serves the user routes.
type Handler struct {
	auth     *service.AuthService
	validate *validator.Validate
	log      *slog.Logger
}

// NewHandler returns a Handler backed by auth.
func NewHandler(auth *service.AuthService, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{auth: auth, validate: v, log: log}
}

// Routes mounts every user route on r. requireAuth guards the routes that act on the signed-in account.
func (h *Handler) Routes(r *mux.Router, requireAuth mux.MiddlewareFunc) {
	s := r.PathPrefix(PathPrefix).Subrouter()
	s.HandleFunc("/register", h.Register).Methods(http.MethodPost)
	s.HandleFunc("/verify-otp", h.VerifyOTP).Methods(http.MethodPost)
	s.HandleFunc("/resend-otp", h.ResendOTP).Methods(http.MethodPost)
	s.HandleFunc("/login", h.Login).Methods(http.MethodPost)
	s.HandleFunc("/forgot-password", h.ForgotPassword).Methods(http.MethodPost)
	s.HandleFunc("/update-password", h.UpdatePassword).Methods(http.MethodPost)
	s.HandleFunc("/google-signin", h.providerSignIn(federation.ProviderGoogle)).Methods(http.MethodPost)
	s.HandleFunc("/facebook-signin", h.providerSignIn(federation.ProviderFacebook)).Methods(http.MethodPost)
	s.HandleFunc("/linkedin-signin", h.providerSignIn(federation.ProviderLinkedIn)).Methods(http.MethodPost)
	s.HandleFunc("/phone-signin", h.PhoneSignIn).Methods(http.MethodPost)
	s.HandleFunc("/verify-phone", h.VerifyPhone).Methods(http.MethodPost)
	s.HandleFunc("/refresh-token", h.RefreshToken).Methods(http.MethodPost)

	authed := s.NewRoute().Subrouter()
	authed.Use(requireAuth)
	authed.HandleFunc("/send-otp", h.SendOTP).Methods(http.MethodPost)
	authed.HandleFunc("/update-email", h.UpdateEmail).Methods(http.MethodPost)
	authed.HandleFunc("/logout", h.Logout).Methods(http.MethodPost)
}

type registerRequest struct {
	Email    string `json:"email" validate:"omitempty,email,max=254"`
	Password string `json:"password" validate:"omitempty,max=72"`
	Name     string `json:"name" validate:"omitempty,max=128"`
}

type emailOTPRequest struct {
	Email string `json:"email" validate:"omitempty,max=254"`
	OTP   string `json:"otp" validate:"omitempty,max=16"`
}

type emailRequest struct {
	Email string `json:"email" validate:"omitempty,max=254"`
}

type credentialsRequest struct {
	Email    string `json:"email" validate:"omitempty,max=254"`
	Password string `json:"password" validate:"omitempty,max=72"`
}

type providerRequest struct {
	Token string `json:"token" validate:"omitempty,max=8192"`
	Code  string `json:"code" validate:"omitempty,max=2048"`
}

type phoneRequest struct {
	Name        string `json:"name" validate:"omitempty,max=128"`
	PhoneNumber string `json:"phoneNumber" validate:"omitempty,max=20"`
}

type phoneOTPRequest struct {
	PhoneNumber string `json:"phoneNumber" validate:"omitempty,max=20"`
	OTP         string `json:"otp" validate:"omitempty,max=16"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type sessionData struct {
	User        domain.PublicAccount `json:"user"`
	AccessToken string               `json:"accessToken"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.decode(w, r, &req) {
		return
	}
	acct, err := h.auth.Register(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeEnvelope(w, http.StatusCreated, map[string]any{"user": acct}, "User registered Succesfully")
}

func (h *Handler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req emailOTPRequest
	if !h.decode(w, r, &req) {
		return
	}
	sess, err := h.auth.VerifyOTP(r.Context(), req.Email, req.OTP)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeSession(w, sess, "User Verified Successfully")
}

func (h *Handler) SendOTP(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !h.decode(w, r, &req) {
		return
	}
	accountID, _ := middleware.GetAccountID(r.Context())
	email, err := h.auth.SendOTP(r.Context(), accountID, req.Email)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeEnvelope(w, http.StatusOK, map[string]any{"email": email}, "OTP sent Succesfully")
}

func (h *Handler) ResendOTP(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !h.decode(w, r, &req) {
		return
	}
	email, err := h.auth.ResendOTP(r.Context(), req.Email)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeEnvelope(w, http.StatusOK, map[string]any{"email": email}, "OTP sent Succesfully")
}

func (h *Handler) UpdateEmail(w http.ResponseWriter, r *http.Request) {
	var req emailOTPRequest
	if !h.decode(w, r, &req) {
		return
	}
	accountID, _ := middleware.GetAccountID(r.Context())
	sess, err := h.auth.UpdateEmail(r.Context(), accountID, req.Email, req.OTP)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeSession(w, sess, "User Verified Successfully")
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !h.decode(w, r, &req) {
		return
	}
	sess, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeSession(w, sess, "User logged in Successfully")
}

func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !h.decode(w, r, &req) {
		return
	}
	email, err := h.auth.ForgotPassword(r.Context(), req.Email)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeEnvelope(w, http.StatusOK, map[string]any{"email": email}, "OTP sent Succesfully")
}

func (h *Handler) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !h.decode(w, r, &req) {
		return
	}
	email, err := h.auth.UpdatePassword(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeEnvelope(w, http.StatusOK, map[string]any{"email": email}, "Password Updated Successfully")
}

// providerSignIn reads the ID token (Google) or authorization code (Facebook, LinkedIn).
func (h *Handler) providerSignIn(provider string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req providerRequest
		if !h.decode(w, r, &req) {
			return
		}
		assertion := req.Code
		if provider == federation.ProviderGoogle {
			assertion = req.Token
		}
		sess, err := h.auth.SignInWithProvider(r.Context(), provider, assertion)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeSession(w, sess, "User logged in Successfully")
	}
}

func (h *Handler) PhoneSignIn(w http.ResponseWriter, r *http.Request) {
	var req phoneRequest
	if !h.decode(w, r, &req) {
		return
	}
	phone, err := h.auth.SignInWithPhoneNumber(r.Context(), req.Name, req.PhoneNumber)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeEnvelope(w, http.StatusOK, map[string]any{"phoneNumber": phone}, "OTP sent Succesfully")
}

func (h *Handler) VerifyPhone(w http.ResponseWriter, r *http.Request) {
	var req phoneOTPRequest
	if !h.decode(w, r, &req) {
		return
	}
	sess, err := h.auth.VerifyPhoneNumber(r.Context(), req.PhoneNumber, req.OTP)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeSession(w, sess, "User Verified Successfully")
}

// RefreshToken rotates the session. The refresh token comes from the cookie or the JSON body.
func (h *Handler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	token := ""
	if c, err := r.Cookie(middleware.RefreshTokenCookie); err == nil {
		token = c.Value
	}
	if strings.TrimSpace(token) == "" {
		var req refreshRequest
		if !h.decode(w, r, &req) {
			return
		}
		token = req.RefreshToken
	}
	sess, err := h.auth.RefreshSession(r.Context(), token)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeSession(w, sess, "Access token refreshed")
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	accountID, _ := middleware.GetAccountID(r.Context())
	if err := h.auth.Logout(r.Context(), accountID); err != nil {
		h.writeError(w, r, err)
		return
	}
	clearCookie(w, middleware.AccessTokenCookie)
	clearCookie(w, middleware.RefreshTokenCookie)
	writeEnvelope(w, http.StatusOK, struct{}{}, "User logged out successfully")
}

// decode reads a JSON body into dst and validates it. An empty body decodes to the zero value
// so the service reports the missing fields. It writes the error response and returns false on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeEnvelope(w, http.StatusBadRequest, nil, "Invalid request body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeEnvelope(w, http.StatusBadRequest, nil, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		if fe.Tag() == "max" {
			return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
		}
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
	return "Invalid request body"
}

// writeError maps err to its status. Internal causes are logged, never echoed.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	ae := apperr.From(err)
	status := apperr.HTTPStatus(ae.Kind)
	if ae.Kind == apperr.KindInternal || ae.Kind == apperr.KindUpstream {
		h.log.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "status", status, "error", err)
	}
	writeEnvelope(w, status, nil, ae.Message)
}

type envelope struct {
	StatusCode int    `json:"statusCode"`
	Data       any    `json:"data"`
	Message    string `json:"message"`
}

func writeEnvelope(w http.ResponseWriter, status int, data any, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{StatusCode: status, Data: data, Message: message})
}

func writeSession(w http.ResponseWriter, sess *service.Session, message string) {
	setCookie(w, middleware.AccessTokenCookie, sess.Tokens.AccessToken, sess.Tokens.AccessExpiresAt)
	setCookie(w, middleware.RefreshTokenCookie, sess.Tokens.RefreshToken, sess.Tokens.RefreshExpiresAt)
	writeEnvelope(w, http.StatusOK, sessionData{User: sess.Account, AccessToken: sess.Tokens.AccessToken}, message)
}

func setCookie(w http.ResponseWriter, name, value string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
	})
}

func clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
	})
}
