// Package middleware stellt die HTTP-Middleware des Backends bereit.
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jobcoach-muenster/backend/internal/auth"
)

// contextKey ist der typsichere Schlüssel für Kontextwerte.
type contextKey string

var identitaetContextKey = contextKey("identitaet")

// TokenVerifier prüft ein Bearer-Token. Teilmenge von auth.Service.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*auth.Identitaet, error)
}

// NewAuthMiddleware liest das Bearer-Token aus dem Authorization-Header,
// prüft es und legt die Identität des Sachbearbeiters in den Kontext.
// Anfragen ohne gültiges Token erhalten 401.
func NewAuthMiddleware(verifier TokenVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ident, err := verifier.Verify(r.Context(), token)
			if err != nil {
				slog.Warn("token-prüfung fehlgeschlagen",
					slog.String("path", r.URL.Path),
				)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), identitaetContextKey, ident)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// IdentitaetFromContext liefert die Identität des angemeldeten
// Sachbearbeiters. Nur hinter der Auth-Middleware gültig.
func IdentitaetFromContext(ctx context.Context) (*auth.Identitaet, error) {
	ident, ok := ctx.Value(identitaetContextKey).(*auth.Identitaet)
	if !ok || ident == nil {
		return nil, fmt.Errorf("identity not found in context")
	}
	return ident, nil
}

// ContextWithIdentitaet legt eine Identität in den Kontext. Für Tests.
func ContextWithIdentitaet(ctx context.Context, ident *auth.Identitaet) context.Context {
	return context.WithValue(ctx, identitaetContextKey, ident)
}
