// Package auth authentifiziert Sachbearbeiter-Konten per Passwort und
// stellt JWT-gestützte Sessions aus.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/jobcoach-muenster/backend/internal/model"
	"github.com/jobcoach-muenster/backend/internal/repository"
)

// Identitaet ist das Ergebnis einer erfolgreichen Token-Prüfung.
type Identitaet struct {
	AdminID string
	Email   string
	Rolle   string
}

// Service beherrscht Login, Logout und Token-Prüfung.
type Service struct {
	admins   repository.AdminRepository
	sessions repository.SessionRepository
	secret   []byte
	ttl      time.Duration
	logger   *slog.Logger

	// now ist injizierbar für deterministische Tests.
	now func() time.Time
}

// NewService erzeugt den Auth-Service.
func NewService(admins repository.AdminRepository, sessions repository.SessionRepository, secret string, ttl time.Duration, logger *slog.Logger) *Service {
	return &Service{
		admins:   admins,
		sessions: sessions,
		secret:   []byte(secret),
		ttl:      ttl,
		logger:   logger,
		now:      time.Now,
	}
}

// Login prüft E-Mail und Passwort und stellt bei Erfolg ein signiertes JWT
// aus. Die zugehörige Session wird persistiert; Logout macht das Token vor
// Ablauf ungültig.
//
// Unbekannte E-Mail und falsches Passwort liefern denselben Fehler, damit
// die Antwort nicht verrät, ob ein Konto existiert.
func (s *Service) Login(ctx context.Context, email, passwort, ip, userAgent string) (string, error) {
	admin, err := s.admins.FindByEmail(ctx, email)
	if err != nil {
		return "", fmt.Errorf("failed to load admin: %w", err)
	}
	if admin == nil {
		// Hash-Vergleich auch bei unbekanntem Konto, damit die Antwortzeit
		// keinen Unterschied macht.
		_ = bcrypt.CompareHashAndPassword(leererHash, []byte(passwort))
		return "", model.ErrUngueltigeAnmeldedaten
	}
	if bcrypt.CompareHashAndPassword([]byte(admin.PasswortHash), []byte(passwort)) != nil {
		return "", model.ErrUngueltigeAnmeldedaten
	}

	sessionID := uuid.NewString()
	jetzt := s.now().UTC()
	ablauf := jetzt.Add(s.ttl)

	claims := jwt.MapClaims{
		"sub":   admin.ID,
		"sid":   sessionID,
		"email": admin.Email,
		"rolle": admin.Rolle,
		"iat":   jetzt.Unix(),
		"exp":   ablauf.Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	session := &model.Session{
		ID:        uuid.NewString(),
		Token:     sessionID,
		AdminID:   admin.ID,
		ExpiresAt: ablauf,
		IP:        ip,
		UserAgent: userAgent,
		CreatedAt: jetzt,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}

	s.logger.Info("anmeldung erfolgreich",
		slog.String("admin_id", admin.ID),
		slog.String("ip", ip),
	)
	return token, nil
}

// leererHash ist ein gültiger bcrypt-Hash eines Zufallswerts. Er dient nur
// dem zeitkonstanten Vergleich bei unbekannten Konten.
var leererHash = []byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")

// Verify prüft Signatur und Ablauf des Tokens und stellt sicher, dass die
// zugehörige Session noch existiert. Ein ausgeloggtes Token ist ungültig,
// auch wenn seine Signatur noch stimmt.
func (s *Service) Verify(ctx context.Context, tokenString string) (*Identitaet, error) {
	claims, err := s.parse(tokenString)
	if err != nil {
		return nil, model.ErrNichtAutorisiert
	}

	sid, _ := claims["sid"].(string)
	if sid == "" {
		return nil, model.ErrNichtAutorisiert
	}
	session, err := s.sessions.FindByToken(ctx, sid)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if session == nil || session.IstAbgelaufen(s.now().UTC()) {
		return nil, model.ErrNichtAutorisiert
	}

	adminID, _ := claims["sub"].(string)
	email, _ := claims["email"].(string)
	rolle, _ := claims["rolle"].(string)
	return &Identitaet{AdminID: adminID, Email: email, Rolle: rolle}, nil
}

// Logout löscht die Session zum Token. Ein bereits abgemeldetes oder
// unbekanntes Token ist kein Fehler.
func (s *Service) Logout(ctx context.Context, tokenString string) error {
	claims, err := s.parse(tokenString)
	if err != nil {
		return nil
	}
	sid, _ := claims["sid"].(string)
	if sid == "" {
		return nil
	}
	if err := s.sessions.DeleteByToken(ctx, sid); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (s *Service) parse(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithTimeFunc(func() time.Time { return s.now() }))
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid claims")
	}
	return claims, nil
}

// HashPasswort erzeugt den bcrypt-Hash für ein neues Sachbearbeiter-Konto.
func HashPasswort(passwort string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(passwort), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}
