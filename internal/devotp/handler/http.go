// Package handler serves captured dev messages over HTTP (GET /dev/otp?to=).
package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"identity-core/backend/internal/devotp"
)

const devOTPNote = "DEV MODE ONLY"

// Handler reads from the dev store. Only mounted when dev OTP mode is enabled and not production.
type Handler struct {
	store devotp.Store
}

func NewHandler(store devotp.Store) *Handler {
	return &Handler{store: store}
}

type response struct {
	StatusCode int           `json:"statusCode"`
	Data       *devotp.Entry `json:"data"`
	Message    string        `json:"message"`
}

// GetOTP returns the last message sent to the "to" query parameter.
func (h *Handler) GetOTP(w http.ResponseWriter, r *http.Request) {
	to := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("to")))
	if to == "" {
		writeJSON(w, http.StatusBadRequest, response{StatusCode: http.StatusBadRequest, Message: "to is required"})
		return
	}
	e, ok := h.store.Get(r.Context(), to)
	if !ok {
		// phone numbers are stored as given
		e, ok = h.store.Get(r.Context(), strings.TrimSpace(r.URL.Query().Get("to")))
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, response{StatusCode: http.StatusNotFound, Message: "OTP not found or expired"})
		return
	}
	writeJSON(w, http.StatusOK, response{StatusCode: http.StatusOK, Data: &e, Message: devOTPNote})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
