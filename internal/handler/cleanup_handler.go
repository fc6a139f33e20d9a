package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/jobcoach-muenster/backend/internal/worker/cleanup"
)

// CleanupRunner stößt einen Bereinigungslauf an. Teilmenge von cleanup.Job.
type CleanupRunner interface {
	Run(ctx context.Context) (*cleanup.Bericht, error)
}

// CleanupHandler erlaubt das manuelle Anstoßen eines Bereinigungslaufs,
// etwa nach einer Richtlinienänderung oder für Prüfzwecke.
type CleanupHandler struct {
	runner CleanupRunner
	logger *slog.Logger
}

// NewCleanupHandler erzeugt den CleanupHandler.
func NewCleanupHandler(runner CleanupRunner, logger *slog.Logger) *CleanupHandler {
	return &CleanupHandler{runner: runner, logger: logger}
}

type cleanupResponse struct {
	AntraegeGeloescht    int   `json:"antraege_geloescht"`
	AntraegeAnonymisiert int   `json:"antraege_anonymisiert"`
	DokumenteGeloescht   int   `json:"dokumente_geloescht"`
	SessionsGeloescht    int64 `json:"sessions_geloescht"`
	BlobFehler           int   `json:"blob_fehler"`
	Fehler               int   `json:"fehler"`
	DauerMs              int64 `json:"dauer_ms"`
}

// Run führt einen Bereinigungslauf synchron aus und liefert den Bericht.
// POST /api/cleanup/run
func (h *CleanupHandler) Run(w http.ResponseWriter, r *http.Request) {
	bericht, err := h.runner.Run(r.Context())
	if err != nil {
		h.logger.Error("manueller bereinigungslauf fehlgeschlagen", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Der Bereinigungslauf ist fehlgeschlagen.")
		return
	}

	writeJSON(w, http.StatusOK, cleanupResponse{
		AntraegeGeloescht:    bericht.AntraegeGeloescht,
		AntraegeAnonymisiert: bericht.AntraegeAnonymisiert,
		DokumenteGeloescht:   bericht.DokumenteGeloescht,
		SessionsGeloescht:    bericht.SessionsGeloescht,
		BlobFehler:           bericht.BlobFehler,
		Fehler:               bericht.Fehler,
		DauerMs:              bericht.Dauer.Milliseconds(),
	})
}
