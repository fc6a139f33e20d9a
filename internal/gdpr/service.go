package gdpr

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/jobcoach-muenster/backend/internal/model"
	"github.com/jobcoach-muenster/backend/internal/repository"
)

// BlobDeleter löscht eine Datei im Blob-Store.
type BlobDeleter interface {
	DeleteBlob(pfad string) error
}

// Zaehler zählt durchgeführte Auskünfte und Löschbegehren.
// Teilmenge von metrics.Recorder.
type Zaehler interface {
	RecordExport()
	RecordErasure()
}

// Service bearbeitet Datenauskünfte und Löschbegehren auf Zuruf.
// Anders als der Cleanup-Job läuft er nicht nach Zeitplan.
type Service struct {
	personen  repository.PersonRepository
	antraege  repository.AntragRepository
	dokumente repository.DokumentRepository
	blobs     BlobDeleter
	zaehler   Zaehler
	exportDir string
	logger    *slog.Logger

	// now ist injizierbar für deterministische Tests.
	now func() time.Time
}

// NewService erzeugt den GDPR-Service. zaehler darf nil sein.
func NewService(
	personen repository.PersonRepository,
	antraege repository.AntragRepository,
	dokumente repository.DokumentRepository,
	blobs BlobDeleter,
	zaehler Zaehler,
	exportDir string,
	logger *slog.Logger,
) *Service {
	return &Service{
		personen:  personen,
		antraege:  antraege,
		dokumente: dokumente,
		blobs:     blobs,
		zaehler:   zaehler,
		exportDir: exportDir,
		logger:    logger,
		now:       time.Now,
	}
}

// ExportErgebnis ist der Verweis auf eine erstellte Datenauskunft.
type ExportErgebnis struct {
	PersonID   string    `json:"person_id"`
	DateiName  string    `json:"datei_name"`
	ErstelltAm time.Time `json:"erstellt_am"`
}

// exportDokument ist die serialisierte Datenauskunft.
type exportDokument struct {
	ExportErstelltAm time.Time      `json:"export_erstellt_am"`
	Person           exportPerson   `json:"person"`
	Antraege         []exportAntrag `json:"antraege"`
}

type exportPerson struct {
	ID         string    `json:"id"`
	Anrede     string    `json:"anrede,omitempty"`
	Vorname    string    `json:"vorname"`
	Nachname   string    `json:"nachname"`
	Email      string    `json:"email"`
	Telefon    *string   `json:"telefon,omitempty"`
	Strasse    *string   `json:"strasse,omitempty"`
	Hausnummer *string   `json:"hausnummer,omitempty"`
	PLZ        *string   `json:"plz,omitempty"`
	Ort        *string   `json:"ort,omitempty"`
	SteuerID   *string   `json:"steuer_id,omitempty"`
	SVNummer   *string   `json:"sv_nummer,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type exportAntrag struct {
	ID                 string                `json:"id"`
	Typ                model.AntragTyp       `json:"typ"`
	Status             model.AntragStatus    `json:"status"`
	FormularDaten      model.FormularDaten   `json:"formular_daten"`
	EingereichtAm      time.Time             `json:"eingereicht_am"`
	AktualisiertAm     time.Time             `json:"aktualisiert_am"`
	LaeuftAbAm         time.Time             `json:"laeuft_ab_am"`
	LoeschungGeplantAm *time.Time            `json:"loeschung_geplant_am,omitempty"`
	Dokumente          []exportDokumentMeta  `json:"dokumente"`
	StatusHistorie     []exportStatusEintrag `json:"status_historie"`
}

// exportDokumentMeta enthält nur Metadaten; die Dateiinhalte selbst sind
// nicht Teil der Auskunft.
type exportDokumentMeta struct {
	ID          string    `json:"id"`
	DateiName   string    `json:"datei_name"`
	MimeType    string    `json:"mime_type"`
	ByteGroesse int64     `json:"byte_groesse"`
	Vertraulich bool      `json:"vertraulich"`
	Verifiziert bool      `json:"verifiziert"`
	CreatedAt   time.Time `json:"created_at"`
}

type exportStatusEintrag struct {
	Von         model.AntragStatus `json:"von"`
	Nach        model.AntragStatus `json:"nach"`
	GeaendertAm time.Time          `json:"geaendert_am"`
}

// Export erstellt die vollständige Datenauskunft für die Person zur
// E-Mail-Adresse und legt sie als einmalig beschreibbare JSON-Datei im
// Exportverzeichnis ab. Es wird kein Datensatz verändert.
// Existiert keine Person, wird model.ErrPersonNichtGefunden geliefert.
func (s *Service) Export(ctx context.Context, email string) (*ExportErgebnis, error) {
	person, err := s.personen.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to load person for export: %w", err)
	}
	if person == nil {
		return nil, model.ErrPersonNichtGefunden
	}

	antraege, err := s.antraege.ListByPersonID(ctx, person.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load antraege for export: %w", err)
	}

	doc := exportDokument{
		ExportErstelltAm: s.now().UTC(),
		Person: exportPerson{
			ID: person.ID, Anrede: person.Anrede,
			Vorname: person.Vorname, Nachname: person.Nachname, Email: person.Email,
			Telefon: person.Telefon, Strasse: person.Strasse, Hausnummer: person.Hausnummer,
			PLZ: person.PLZ, Ort: person.Ort,
			SteuerID: person.SteuerID, SVNummer: person.SVNummer,
			CreatedAt: person.CreatedAt, UpdatedAt: person.UpdatedAt,
		},
		Antraege: []exportAntrag{},
	}

	for _, a := range antraege {
		dokumente, err := s.dokumente.ListByAntragID(ctx, a.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load dokumente for export: %w", err)
		}
		historie, err := s.antraege.ListStatusHistorie(ctx, a.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load status historie for export: %w", err)
		}

		ea := exportAntrag{
			ID: a.ID, Typ: a.Typ, Status: a.Status,
			FormularDaten:      a.FormularDaten,
			EingereichtAm:      a.CreatedAt,
			AktualisiertAm:     a.UpdatedAt,
			LaeuftAbAm:         a.ExpiresAt,
			LoeschungGeplantAm: a.LoeschungGeplantAm,
			Dokumente:          []exportDokumentMeta{},
			StatusHistorie:     []exportStatusEintrag{},
		}
		for _, d := range dokumente {
			ea.Dokumente = append(ea.Dokumente, exportDokumentMeta{
				ID: d.ID, DateiName: d.DateiName, MimeType: d.MimeType,
				ByteGroesse: d.ByteGroesse, Vertraulich: d.Vertraulich,
				Verifiziert: d.Verifiziert, CreatedAt: d.CreatedAt,
			})
		}
		for _, h := range historie {
			ea.StatusHistorie = append(ea.StatusHistorie, exportStatusEintrag{
				Von: h.Von, Nach: h.Nach, GeaendertAm: h.GeaendertAm,
			})
		}
		doc.Antraege = append(doc.Antraege, ea)
	}

	dateiName := fmt.Sprintf("gdpr-export-%s-%s.json", person.ID, uuid.NewString())
	if err := s.schreibeExport(dateiName, doc); err != nil {
		return nil, err
	}

	s.logger.Info("datenauskunft erstellt",
		slog.String("person_id", person.ID),
		slog.String("datei", dateiName),
		slog.Int("antrag_anzahl", len(doc.Antraege)),
	)
	if s.zaehler != nil {
		s.zaehler.RecordExport()
	}

	return &ExportErgebnis{
		PersonID:   person.ID,
		DateiName:  dateiName,
		ErstelltAm: doc.ExportErstelltAm,
	}, nil
}

// schreibeExport legt die Auskunft einmalig beschreibbar ab (O_EXCL):
// eine bestehende Auskunft wird nie überschrieben.
func (s *Service) schreibeExport(dateiName string, doc exportDokument) error {
	if err := os.MkdirAll(s.exportDir, 0o750); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(s.exportDir, dateiName),
		os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to write export file: %w", err)
	}
	return nil
}

// Erase löscht sämtliche Daten der Person zur E-Mail-Adresse: zuerst alle
// Blobs ihrer Dokumente (Fehler werden geloggt, blockieren aber nicht),
// danach die Personenzeile mit allen Kaskaden.
//
// Liefert (false, nil), wenn keine Person existiert: ein bereits gelöschter
// Datensatz ist für ein Löschbegehren ein Erfolgszustand, kein Fehler.
// Zwei aufeinanderfolgende Aufrufe sind deshalb beide erfolgreich.
func (s *Service) Erase(ctx context.Context, email string) (bool, error) {
	person, err := s.personen.FindByEmail(ctx, email)
	if err != nil {
		return false, fmt.Errorf("failed to load person for erasure: %w", err)
	}
	if person == nil {
		return false, nil
	}

	dokumente, err := s.dokumente.ListByPersonID(ctx, person.ID)
	if err != nil {
		return false, fmt.Errorf("failed to load dokumente for erasure: %w", err)
	}

	blobFehler := 0
	for _, d := range dokumente {
		if err := s.blobs.DeleteBlob(d.SpeicherPfad); err != nil {
			blobFehler++
			s.logger.Error("blob-löschung beim löschbegehren fehlgeschlagen",
				slog.String("dokument_id", d.ID),
				slog.String("speicher_pfad", d.SpeicherPfad),
				slog.String("error", err.Error()),
			)
		}
	}

	if err := s.personen.DeleteByID(ctx, person.ID); err != nil {
		return false, fmt.Errorf("failed to delete person: %w", err)
	}

	s.logger.Info("löschbegehren durchgeführt",
		slog.String("person_id", person.ID),
		slog.Int("dokument_anzahl", len(dokumente)),
		slog.Int("blob_fehler", blobFehler),
	)
	if s.zaehler != nil {
		s.zaehler.RecordErasure()
	}

	return true, nil
}

// ScheduleDeletion terminiert die Löschung eines Antrags in tage Tagen.
// Der terminierte Antrag wird vom nächsten fälligen Sweep gelöscht.
func (s *Service) ScheduleDeletion(ctx context.Context, antragID string, tage int) (time.Time, error) {
	if tage < 0 {
		return time.Time{}, fmt.Errorf("invalid deletion delay: %d days", tage)
	}
	zeitpunkt := s.now().UTC().AddDate(0, 0, tage)
	if err := s.antraege.SetLoeschungGeplant(ctx, antragID, zeitpunkt); err != nil {
		return time.Time{}, err
	}

	s.logger.Info("löschung terminiert",
		slog.String("antrag_id", antragID),
		slog.Time("loeschung_geplant_am", zeitpunkt),
	)
	return zeitpunkt, nil
}
