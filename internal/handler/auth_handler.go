package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/jobcoach-muenster/backend/internal/model"
)

// AuthServiceInterface ist die vom Auth-Handler benötigte Service-Schnittstelle.
type AuthServiceInterface interface {
	// Login prüft die Anmeldedaten und liefert ein signiertes Token.
	Login(ctx context.Context, email, passwort, ip, userAgent string) (string, error)
	// Logout macht das Token ungültig.
	Logout(ctx context.Context, token string) error
}

// AuthHandler bedient die Anmelde-Endpunkte der Sachbearbeiter.
type AuthHandler struct {
	service AuthServiceInterface
}

// NewAuthHandler erzeugt den AuthHandler.
func NewAuthHandler(service AuthServiceInterface) *AuthHandler {
	return &AuthHandler{service: service}
}

type loginRequest struct {
	Email    string `json:"email"`
	Passwort string `json:"passwort"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// Login verarbeitet die Anmeldung.
// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Der Request-Body konnte nicht gelesen werden.")
		return
	}
	if req.Email == "" || req.Passwort == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "E-Mail und Passwort sind erforderlich.")
		return
	}

	token, err := h.service.Login(r.Context(), req.Email, req.Passwort, clientIP(r), r.UserAgent())
	if err != nil {
		if errors.Is(err, model.ErrUngueltigeAnmeldedaten) {
			writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "E-Mail oder Passwort ist falsch.")
			return
		}
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Die Anmeldung ist fehlgeschlagen.")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{Token: token})
}

// Logout beendet die Session zum mitgeschickten Bearer-Token.
// POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
	if token == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Authorization-Header fehlt.")
		return
	}

	if err := h.service.Logout(r.Context(), token); err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Die Abmeldung ist fehlgeschlagen.")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
