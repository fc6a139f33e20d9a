// Package cleanup implementiert den periodischen Lösch- und
// Anonymisierungslauf über Anträge, Dokumente und Sessions.
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jobcoach-muenster/backend/internal/gdpr"
	"github.com/jobcoach-muenster/backend/internal/metrics"
	"github.com/jobcoach-muenster/backend/internal/model"
	"github.com/jobcoach-muenster/backend/internal/repository"
	"github.com/jobcoach-muenster/backend/internal/retention"
)

// BlobDeleter löscht eine Datei im Blob-Store.
type BlobDeleter interface {
	DeleteBlob(pfad string) error
}

// Job ist der Bereinigungslauf. Ein Job ist für wiederholte Aufrufe von
// Run und RunSessions sicher; parallele Läufe desselben Jobs sind es nicht.
type Job struct {
	antraege  repository.AntragRepository
	dokumente repository.DokumentRepository
	sessions  repository.SessionRepository
	blobs     BlobDeleter
	policy    retention.Policy
	metrics   metrics.Recorder
	logger    *slog.Logger

	batchSize   int
	maxParallel int
	opTimeout   time.Duration

	// now ist injizierbar für deterministische Tests.
	now func() time.Time
}

// Options konfiguriert den Bereinigungslauf.
type Options struct {
	// BatchSize ist die Seitengröße der Kandidatenabfrage.
	BatchSize int
	// MaxParallel begrenzt die gleichzeitig bearbeiteten Anträge.
	MaxParallel int
	// OpTimeout begrenzt die Bearbeitungszeit eines einzelnen Datensatzes.
	OpTimeout time.Duration
}

// NewJob erzeugt den Bereinigungslauf. rec darf nil sein.
func NewJob(
	antraege repository.AntragRepository,
	dokumente repository.DokumentRepository,
	sessions repository.SessionRepository,
	blobs BlobDeleter,
	policy retention.Policy,
	rec metrics.Recorder,
	logger *slog.Logger,
	opts Options,
) *Job {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 500
	}
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = 4
	}
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = 10 * time.Second
	}
	return &Job{
		antraege:    antraege,
		dokumente:   dokumente,
		sessions:    sessions,
		blobs:       blobs,
		policy:      policy,
		metrics:     rec,
		logger:      logger,
		batchSize:   opts.BatchSize,
		maxParallel: opts.MaxParallel,
		opTimeout:   opts.OpTimeout,
		now:         time.Now,
	}
}

// Bericht fasst einen Bereinigungslauf zusammen.
type Bericht struct {
	AntraegeGeloescht    int
	AntraegeAnonymisiert int
	DokumenteGeloescht   int
	SessionsGeloescht    int64
	// BlobFehler zählt fehlgeschlagene Blob-Löschungen. Sie blockieren die
	// jeweilige Zeilenlöschung nicht.
	BlobFehler int
	// Fehler zählt Datensätze, deren Bearbeitung abgebrochen wurde.
	Fehler int
	Dauer  time.Duration

	mu sync.Mutex
}

func (b *Bericht) addGeloescht(dokumente int) {
	b.mu.Lock()
	b.AntraegeGeloescht++
	b.DokumenteGeloescht += dokumente
	b.mu.Unlock()
}

func (b *Bericht) addAnonymisiert() {
	b.mu.Lock()
	b.AntraegeAnonymisiert++
	b.mu.Unlock()
}

func (b *Bericht) addBlobFehler(n int) {
	b.mu.Lock()
	b.BlobFehler += n
	b.mu.Unlock()
}

func (b *Bericht) addFehler() {
	b.mu.Lock()
	b.Fehler++
	b.mu.Unlock()
}

// Run führt einen vollständigen Bereinigungslauf durch: Anträge einstufen
// und löschen bzw. anonymisieren, verwaiste Dokumente entfernen, abgelaufene
// Sessions löschen.
//
// Der Stichtag wird einmal zu Beginn fixiert, damit alle Entscheidungen
// eines Laufs gegen denselben Zeitpunkt fallen. Fehler einzelner Datensätze
// werden gezählt und geloggt, brechen den Lauf aber nicht ab; der Bericht
// wird auch bei einem Abbruchfehler mit den bisherigen Zählern geliefert.
//
// Ein Abbruch über den Context wird an Seitengrenzen beobachtet: die bereits
// begonnene Seite wird vollständig bearbeitet, danach endet der Lauf.
func (j *Job) Run(ctx context.Context) (*Bericht, error) {
	start := j.now()
	stichtag := start.UTC()
	bericht := &Bericht{}

	j.logger.Info("bereinigungslauf gestartet", slog.Time("stichtag", stichtag))

	if err := j.bereinigeAntraege(ctx, stichtag, bericht); err != nil {
		j.abschluss(bericht, start, false)
		return bericht, err
	}
	if err := j.bereinigeVerwaisteDokumente(ctx, stichtag, bericht); err != nil {
		j.abschluss(bericht, start, false)
		return bericht, err
	}

	geloescht, err := j.bereinigeSessions(ctx, stichtag)
	if err != nil {
		j.abschluss(bericht, start, false)
		return bericht, err
	}
	bericht.SessionsGeloescht = geloescht

	j.abschluss(bericht, start, true)
	return bericht, nil
}

// RunSessions löscht nur abgelaufene Sessions. Läuft in kürzerem Takt als
// der vollständige Lauf.
func (j *Job) RunSessions(ctx context.Context) (int64, error) {
	geloescht, err := j.bereinigeSessions(ctx, j.now().UTC())
	if err != nil {
		return 0, err
	}
	if j.metrics != nil {
		j.metrics.RecordSessionsGeloescht(int(geloescht))
	}
	if geloescht > 0 {
		j.logger.Info("abgelaufene sessions gelöscht", slog.Int64("anzahl", geloescht))
	}
	return geloescht, nil
}

func (j *Job) abschluss(b *Bericht, start time.Time, ok bool) {
	b.Dauer = j.now().Sub(start)

	if j.metrics != nil {
		if ok {
			j.metrics.RecordSweepCompleted(b.Dauer)
		} else {
			j.metrics.RecordSweepFailed()
		}
		j.metrics.RecordAntraegeGeloescht(b.AntraegeGeloescht)
		j.metrics.RecordAntraegeAnonymisiert(b.AntraegeAnonymisiert)
		j.metrics.RecordDokumenteGeloescht(b.DokumenteGeloescht)
		j.metrics.RecordSessionsGeloescht(int(b.SessionsGeloescht))
		j.metrics.RecordBlobFehler(b.BlobFehler)
	}

	lvl := slog.LevelInfo
	if !ok {
		lvl = slog.LevelError
	}
	j.logger.LogAttrs(context.Background(), lvl, "bereinigungslauf beendet",
		slog.Bool("erfolgreich", ok),
		slog.Int("antraege_geloescht", b.AntraegeGeloescht),
		slog.Int("antraege_anonymisiert", b.AntraegeAnonymisiert),
		slog.Int("dokumente_geloescht", b.DokumenteGeloescht),
		slog.Int64("sessions_geloescht", b.SessionsGeloescht),
		slog.Int("blob_fehler", b.BlobFehler),
		slog.Int("fehler", b.Fehler),
		slog.Int64("duration_ms", b.Dauer.Milliseconds()),
	)
}

// bereinigeAntraege blättert durch alle Kandidaten und bearbeitet jede Seite
// mit einem begrenzten Worker-Pool. Jeder Antrag hat eine eigene ID, daher
// berühren sich parallele Bearbeitungen nie.
func (j *Job) bereinigeAntraege(ctx context.Context, stichtag time.Time, bericht *Bericht) error {
	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("cleanup aborted: %w", err)
		}

		seite, next, err := j.antraege.FindBereinigungsKandidaten(ctx, j.batchSize, cursor)
		if err != nil {
			return fmt.Errorf("failed to list cleanup candidates: %w", err)
		}
		if len(seite) == 0 {
			return nil
		}

		sem := make(chan struct{}, j.maxParallel)
		var wg sync.WaitGroup
		for _, antrag := range seite {
			entscheidung := j.policy.Classify(antrag, stichtag)
			if entscheidung == retention.Behalten {
				continue
			}

			wg.Add(1)
			sem <- struct{}{}
			go func(a *model.Antrag, e retention.Entscheidung) {
				defer wg.Done()
				defer func() { <-sem }()
				j.bearbeiteAntrag(ctx, a, e, bericht)
			}(antrag, entscheidung)
		}
		wg.Wait()

		cursor = next
	}
}

func (j *Job) bearbeiteAntrag(ctx context.Context, a *model.Antrag, e retention.Entscheidung, bericht *Bericht) {
	// Ein Abbruch des Laufs greift an Seitengrenzen, nie mitten in der
	// bereits begonnenen Seite. Einzelne Datensätze begrenzt nur opTimeout.
	opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), j.opTimeout)
	defer cancel()

	var err error
	switch e {
	case retention.Loeschen:
		err = j.loescheAntrag(opCtx, a, bericht)
	case retention.Anonymisieren:
		err = j.anonymisiereAntrag(opCtx, a, bericht)
	}
	if err != nil {
		bericht.addFehler()
		j.logger.Error("antrag-bereinigung fehlgeschlagen",
			slog.String("antrag_id", a.ID),
			slog.String("entscheidung", e.String()),
			slog.String("error", err.Error()),
		)
	}
}

// loescheAntrag entfernt zuerst die Blobs der Dokumente und danach die
// Antragszeile. Fehlgeschlagene Blob-Löschungen werden gezählt, verhindern
// die Zeilenlöschung aber nicht: die Datenbank ist die maßgebliche Quelle.
func (j *Job) loescheAntrag(ctx context.Context, a *model.Antrag, bericht *Bericht) error {
	dokumente, err := j.dokumente.ListByAntragID(ctx, a.ID)
	if err != nil {
		return fmt.Errorf("failed to list dokumente: %w", err)
	}

	blobFehler := 0
	for _, d := range dokumente {
		if err := j.blobs.DeleteBlob(d.SpeicherPfad); err != nil {
			blobFehler++
			j.logger.Error("blob-löschung fehlgeschlagen",
				slog.String("dokument_id", d.ID),
				slog.String("speicher_pfad", d.SpeicherPfad),
				slog.String("error", err.Error()),
			)
		}
	}
	if a.SignaturPfad != "" {
		if err := j.blobs.DeleteBlob(a.SignaturPfad); err != nil {
			blobFehler++
			j.logger.Error("signatur-löschung fehlgeschlagen",
				slog.String("antrag_id", a.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	if blobFehler > 0 {
		bericht.addBlobFehler(blobFehler)
	}

	// Dokumentzeilen und Statushistorie fallen per ON DELETE CASCADE mit.
	if err := j.antraege.DeleteByID(ctx, a.ID); err != nil {
		return fmt.Errorf("failed to delete antrag: %w", err)
	}

	bericht.addGeloescht(len(dokumente))
	j.logger.Info("antrag gelöscht",
		slog.String("antrag_id", a.ID),
		slog.Int("dokument_anzahl", len(dokumente)),
	)
	return nil
}

func (j *Job) anonymisiereAntrag(ctx context.Context, a *model.Antrag, bericht *Bericht) error {
	if err := j.antraege.Anonymisiere(ctx, gdpr.BaueAnonymisierung(a)); err != nil {
		return fmt.Errorf("failed to anonymize antrag: %w", err)
	}
	if a.SignaturPfad != "" {
		if err := j.blobs.DeleteBlob(a.SignaturPfad); err != nil {
			bericht.addBlobFehler(1)
			j.logger.Error("signatur-löschung fehlgeschlagen",
				slog.String("antrag_id", a.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	bericht.addAnonymisiert()
	j.logger.Info("antrag anonymisiert", slog.String("antrag_id", a.ID))
	return nil
}

// bereinigeVerwaisteDokumente löscht Dokumente ohne Antrags- und
// Personenzuordnung nach Ablauf der Waisenfrist. Die Kandidaten werden wie
// bei den Anträgen seitenweise geholt; ein Abbruch greift an Seitengrenzen.
func (j *Job) bereinigeVerwaisteDokumente(ctx context.Context, stichtag time.Time, bericht *Bericht) error {
	frist := stichtag.Add(-j.policy.WaisenFrist)
	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("orphan cleanup aborted: %w", err)
		}

		verwaiste, next, err := j.dokumente.FindVerwaiste(ctx, frist, j.batchSize, cursor)
		if err != nil {
			return fmt.Errorf("failed to list orphaned dokumente: %w", err)
		}
		if len(verwaiste) == 0 {
			return nil
		}

		for i := range verwaiste {
			d := &verwaiste[i]
			if !j.policy.IstVerwaist(d, stichtag) {
				continue
			}

			opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), j.opTimeout)
			if err := j.blobs.DeleteBlob(d.SpeicherPfad); err != nil {
				bericht.addBlobFehler(1)
				j.logger.Error("blob-löschung fehlgeschlagen",
					slog.String("dokument_id", d.ID),
					slog.String("speicher_pfad", d.SpeicherPfad),
					slog.String("error", err.Error()),
				)
			}
			if err := j.dokumente.DeleteByID(opCtx, d.ID); err != nil {
				cancel()
				bericht.addFehler()
				j.logger.Error("waisen-löschung fehlgeschlagen",
					slog.String("dokument_id", d.ID),
					slog.String("error", err.Error()),
				)
				continue
			}
			cancel()

			bericht.mu.Lock()
			bericht.DokumenteGeloescht++
			bericht.mu.Unlock()
			j.logger.Info("verwaistes dokument gelöscht", slog.String("dokument_id", d.ID))
		}

		cursor = next
	}
}

func (j *Job) bereinigeSessions(ctx context.Context, stichtag time.Time) (int64, error) {
	opCtx, cancel := context.WithTimeout(ctx, j.opTimeout)
	defer cancel()

	geloescht, err := j.sessions.DeleteAbgelaufene(opCtx, stichtag)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return geloescht, nil
}
