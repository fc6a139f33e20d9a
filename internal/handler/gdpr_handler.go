package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jobcoach-muenster/backend/internal/gdpr"
	"github.com/jobcoach-muenster/backend/internal/middleware"
	"github.com/jobcoach-muenster/backend/internal/model"
)

// GDPRServiceInterface ist die vom GDPR-Handler benötigte Service-Schnittstelle.
type GDPRServiceInterface interface {
	// Export erstellt eine Datenauskunft als JSON-Datei.
	Export(ctx context.Context, email string) (*gdpr.ExportErgebnis, error)
	// Erase löscht sämtliche Daten einer Person.
	Erase(ctx context.Context, email string) (bool, error)
	// ScheduleDeletion terminiert die Löschung eines Antrags.
	ScheduleDeletion(ctx context.Context, antragID string, tage int) (time.Time, error)
}

// GDPRHandler bedient Datenauskünfte und Löschbegehren. Alle Endpunkte
// setzen eine angemeldete Sachbearbeiter-Identität voraus.
type GDPRHandler struct {
	service GDPRServiceInterface
	logger  *slog.Logger
}

// NewGDPRHandler erzeugt den GDPRHandler.
func NewGDPRHandler(service GDPRServiceInterface, logger *slog.Logger) *GDPRHandler {
	return &GDPRHandler{service: service, logger: logger}
}

type gdprRequest struct {
	Email string `json:"email"`
}

// Export erstellt die Datenauskunft für eine betroffene Person.
// POST /api/gdpr/export
func (h *GDPRHandler) Export(w http.ResponseWriter, r *http.Request) {
	var req gdprRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Das Feld email ist erforderlich.")
		return
	}

	ergebnis, err := h.service.Export(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, model.ErrPersonNichtGefunden) {
			writeError(w, http.StatusNotFound, "PERSON_NOT_FOUND", "Zu dieser E-Mail-Adresse sind keine Daten gespeichert.")
			return
		}
		h.logger.Error("datenauskunft fehlgeschlagen", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Die Datenauskunft konnte nicht erstellt werden.")
		return
	}

	h.protokolliere(r, "export", ergebnis.PersonID)
	writeJSON(w, http.StatusOK, ergebnis)
}

type erasureResponse struct {
	Geloescht bool `json:"geloescht"`
}

// Erasure führt ein Löschbegehren aus. Eine unbekannte E-Mail-Adresse ist
// kein Fehler: der gewünschte Endzustand besteht bereits.
// POST /api/gdpr/erasure
func (h *GDPRHandler) Erasure(w http.ResponseWriter, r *http.Request) {
	var req gdprRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Das Feld email ist erforderlich.")
		return
	}

	geloescht, err := h.service.Erase(r.Context(), req.Email)
	if err != nil {
		h.logger.Error("löschbegehren fehlgeschlagen", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Das Löschbegehren konnte nicht ausgeführt werden.")
		return
	}

	h.protokolliere(r, "erasure", "")
	writeJSON(w, http.StatusOK, erasureResponse{Geloescht: geloescht})
}

type scheduleDeletionRequest struct {
	Tage *int `json:"tage"`
}

type scheduleDeletionResponse struct {
	LoeschungGeplantAm time.Time `json:"loeschung_geplant_am"`
}

// ScheduleDeletion terminiert die Löschung eines Antrags. Ohne Angabe
// von tage gilt die Standardfrist von 30 Tagen.
// POST /api/antraege/{id}/loeschung
func (h *GDPRHandler) ScheduleDeletion(w http.ResponseWriter, r *http.Request) {
	antragID := chi.URLParam(r, "id")

	tage := 30
	var req scheduleDeletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err == nil && req.Tage != nil {
		tage = *req.Tage
	}
	if tage < 0 {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Das Feld tage darf nicht negativ sein.")
		return
	}

	zeitpunkt, err := h.service.ScheduleDeletion(r.Context(), antragID, tage)
	if err != nil {
		if errors.Is(err, model.ErrAntragNichtGefunden) {
			writeError(w, http.StatusNotFound, "ANTRAG_NOT_FOUND", "Der Antrag existiert nicht.")
			return
		}
		h.logger.Error("löschterminierung fehlgeschlagen",
			slog.String("antrag_id", antragID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Die Löschung konnte nicht terminiert werden.")
		return
	}

	writeJSON(w, http.StatusOK, scheduleDeletionResponse{LoeschungGeplantAm: zeitpunkt})
}

// protokolliere hält fest, welcher Sachbearbeiter die Maßnahme angestoßen hat.
func (h *GDPRHandler) protokolliere(r *http.Request, massnahme, personID string) {
	attrs := []any{slog.String("massnahme", massnahme)}
	if personID != "" {
		attrs = append(attrs, slog.String("person_id", personID))
	}
	if ident, err := middleware.IdentitaetFromContext(r.Context()); err == nil {
		attrs = append(attrs, slog.String("admin_id", ident.AdminID))
	}
	h.logger.Info("gdpr-maßnahme ausgeführt", attrs...)
}
