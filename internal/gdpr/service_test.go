package gdpr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jobcoach-muenster/backend/internal/model"
	"github.com/jobcoach-muenster/backend/internal/repository"
)

type mockPersonRepo struct {
	createFunc      func(ctx context.Context, person *model.Person) error
	findByIDFunc    func(ctx context.Context, id string) (*model.Person, error)
	findByEmailFunc func(ctx context.Context, email string) (*model.Person, error)
	deleteByIDFunc  func(ctx context.Context, id string) error
}

func (m *mockPersonRepo) Create(ctx context.Context, person *model.Person) error {
	return m.createFunc(ctx, person)
}

func (m *mockPersonRepo) FindByID(ctx context.Context, id string) (*model.Person, error) {
	return m.findByIDFunc(ctx, id)
}

func (m *mockPersonRepo) FindByEmail(ctx context.Context, email string) (*model.Person, error) {
	return m.findByEmailFunc(ctx, email)
}

func (m *mockPersonRepo) DeleteByID(ctx context.Context, id string) error {
	return m.deleteByIDFunc(ctx, id)
}

type mockAntragRepo struct {
	createFunc              func(ctx context.Context, antrag *model.Antrag) error
	findByIDFunc            func(ctx context.Context, id string) (*model.Antrag, error)
	findKandidatenFunc      func(ctx context.Context, limit int, cursor string) ([]*model.Antrag, string, error)
	deleteByIDFunc          func(ctx context.Context, id string) error
	anonymisiereFunc        func(ctx context.Context, a repository.Anonymisierung) error
	setLoeschungGeplantFunc func(ctx context.Context, id string, zeitpunkt time.Time) error
	listByPersonIDFunc      func(ctx context.Context, personID string) ([]*model.Antrag, error)
	listStatusHistorieFunc  func(ctx context.Context, antragID string) ([]model.StatusEintrag, error)
}

func (m *mockAntragRepo) Create(ctx context.Context, antrag *model.Antrag) error {
	return m.createFunc(ctx, antrag)
}

func (m *mockAntragRepo) FindByID(ctx context.Context, id string) (*model.Antrag, error) {
	return m.findByIDFunc(ctx, id)
}

func (m *mockAntragRepo) FindBereinigungsKandidaten(ctx context.Context, limit int, cursor string) ([]*model.Antrag, string, error) {
	return m.findKandidatenFunc(ctx, limit, cursor)
}

func (m *mockAntragRepo) DeleteByID(ctx context.Context, id string) error {
	return m.deleteByIDFunc(ctx, id)
}

func (m *mockAntragRepo) Anonymisiere(ctx context.Context, a repository.Anonymisierung) error {
	return m.anonymisiereFunc(ctx, a)
}

func (m *mockAntragRepo) SetLoeschungGeplant(ctx context.Context, id string, zeitpunkt time.Time) error {
	return m.setLoeschungGeplantFunc(ctx, id, zeitpunkt)
}

func (m *mockAntragRepo) ListByPersonID(ctx context.Context, personID string) ([]*model.Antrag, error) {
	return m.listByPersonIDFunc(ctx, personID)
}

func (m *mockAntragRepo) ListStatusHistorie(ctx context.Context, antragID string) ([]model.StatusEintrag, error) {
	return m.listStatusHistorieFunc(ctx, antragID)
}

type mockDokumentRepo struct {
	createFunc         func(ctx context.Context, dok *model.Dokument) error
	listByAntragIDFunc func(ctx context.Context, antragID string) ([]model.Dokument, error)
	listByPersonIDFunc func(ctx context.Context, personID string) ([]model.Dokument, error)
	findVerwaisteFunc  func(ctx context.Context, stichtag time.Time, limit int, cursor string) ([]model.Dokument, string, error)
	deleteByIDFunc     func(ctx context.Context, id string) error
}

func (m *mockDokumentRepo) Create(ctx context.Context, dok *model.Dokument) error {
	return m.createFunc(ctx, dok)
}

func (m *mockDokumentRepo) ListByAntragID(ctx context.Context, antragID string) ([]model.Dokument, error) {
	return m.listByAntragIDFunc(ctx, antragID)
}

func (m *mockDokumentRepo) ListByPersonID(ctx context.Context, personID string) ([]model.Dokument, error) {
	return m.listByPersonIDFunc(ctx, personID)
}

func (m *mockDokumentRepo) FindVerwaiste(ctx context.Context, stichtag time.Time, limit int, cursor string) ([]model.Dokument, string, error) {
	return m.findVerwaisteFunc(ctx, stichtag, limit, cursor)
}

func (m *mockDokumentRepo) DeleteByID(ctx context.Context, id string) error {
	return m.deleteByIDFunc(ctx, id)
}

type mockBlobDeleter struct {
	deleteFunc func(pfad string) error
	geloescht  []string
}

func (m *mockBlobDeleter) DeleteBlob(pfad string) error {
	m.geloescht = append(m.geloescht, pfad)
	if m.deleteFunc != nil {
		return m.deleteFunc(pfad)
	}
	return nil
}

func testPerson() *model.Person {
	tel := "0251 123456"
	return &model.Person{
		ID:        "p-1",
		Vorname:   "Maria",
		Nachname:  "Schmidt",
		Email:     "maria.schmidt@example.de",
		Telefon:   &tel,
		CreatedAt: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestExport(t *testing.T) {
	person := testPerson()
	antrag := &model.Antrag{
		ID:       "a-1",
		Typ:      model.TypWohngeld,
		PersonID: person.ID,
		Status:   model.StatusInBearbeitung,
		FormularDaten: model.FormularDaten{
			SchemaVersion: 1,
			Felder: map[string]json.RawMessage{
				"vorname": json.RawMessage(`"Maria"`),
			},
		},
		CreatedAt: time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2025, 7, 2, 9, 0, 0, 0, time.UTC),
		ExpiresAt: time.Date(2025, 7, 31, 9, 0, 0, 0, time.UTC),
	}

	personen := &mockPersonRepo{
		findByEmailFunc: func(ctx context.Context, email string) (*model.Person, error) {
			if email != person.Email {
				t.Errorf("unerwartete email: %s", email)
			}
			return person, nil
		},
	}
	antraege := &mockAntragRepo{
		listByPersonIDFunc: func(ctx context.Context, personID string) ([]*model.Antrag, error) {
			return []*model.Antrag{antrag}, nil
		},
		listStatusHistorieFunc: func(ctx context.Context, antragID string) ([]model.StatusEintrag, error) {
			return []model.StatusEintrag{
				{AntragID: antragID, Von: model.StatusEingereicht, Nach: model.StatusInBearbeitung, GeaendertAm: antrag.UpdatedAt},
			}, nil
		},
	}
	dokumente := &mockDokumentRepo{
		listByAntragIDFunc: func(ctx context.Context, antragID string) ([]model.Dokument, error) {
			return []model.Dokument{
				{ID: "d-1", DateiName: "mietvertrag.pdf", MimeType: "application/pdf", ByteGroesse: 4096},
			}, nil
		},
	}

	dir := t.TempDir()
	svc := NewService(personen, antraege, dokumente, &mockBlobDeleter{}, nil, dir, slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil)))
	svc.now = func() time.Time { return time.Date(2026, 1, 15, 3, 0, 0, 0, time.UTC) }

	ergebnis, err := svc.Export(context.Background(), person.Email)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if ergebnis.PersonID != "p-1" {
		t.Errorf("PersonID = %q", ergebnis.PersonID)
	}
	if !strings.HasPrefix(ergebnis.DateiName, "gdpr-export-p-1-") {
		t.Errorf("DateiName = %q", ergebnis.DateiName)
	}

	raw, err := os.ReadFile(filepath.Join(dir, ergebnis.DateiName))
	if err != nil {
		t.Fatalf("export file missing: %v", err)
	}
	var doc exportDokument
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("export file is not valid JSON: %v", err)
	}
	if doc.Person.Email != person.Email {
		t.Errorf("Person.Email = %q", doc.Person.Email)
	}
	if len(doc.Antraege) != 1 {
		t.Fatalf("Antraege = %d, want 1", len(doc.Antraege))
	}
	if len(doc.Antraege[0].Dokumente) != 1 || doc.Antraege[0].Dokumente[0].DateiName != "mietvertrag.pdf" {
		t.Errorf("Dokument-Metadaten fehlen: %+v", doc.Antraege[0].Dokumente)
	}
	if len(doc.Antraege[0].StatusHistorie) != 1 {
		t.Errorf("StatusHistorie fehlt: %+v", doc.Antraege[0].StatusHistorie)
	}
}

func TestExportPersonNichtGefunden(t *testing.T) {
	personen := &mockPersonRepo{
		findByEmailFunc: func(ctx context.Context, email string) (*model.Person, error) {
			return nil, nil
		},
	}
	svc := NewService(personen, &mockAntragRepo{}, &mockDokumentRepo{}, &mockBlobDeleter{}, nil, t.TempDir(), slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil)))

	_, err := svc.Export(context.Background(), "unbekannt@example.de")
	if !errors.Is(err, model.ErrPersonNichtGefunden) {
		t.Errorf("err = %v, want ErrPersonNichtGefunden", err)
	}
}

func TestErase(t *testing.T) {
	person := testPerson()
	geloeschtePerson := ""

	personen := &mockPersonRepo{
		findByEmailFunc: func(ctx context.Context, email string) (*model.Person, error) {
			return person, nil
		},
		deleteByIDFunc: func(ctx context.Context, id string) error {
			geloeschtePerson = id
			return nil
		},
	}
	dokumente := &mockDokumentRepo{
		listByPersonIDFunc: func(ctx context.Context, personID string) ([]model.Dokument, error) {
			return []model.Dokument{
				{ID: "d-1", SpeicherPfad: "dokumente/d-1.pdf"},
				{ID: "d-2", SpeicherPfad: "dokumente/d-2.pdf"},
			}, nil
		},
	}
	blobs := &mockBlobDeleter{}

	svc := NewService(personen, &mockAntragRepo{}, dokumente, blobs, nil, t.TempDir(), slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil)))

	geloescht, err := svc.Erase(context.Background(), person.Email)
	if err != nil {
		t.Fatalf("Erase failed: %v", err)
	}
	if !geloescht {
		t.Error("geloescht = false, want true")
	}
	if geloeschtePerson != "p-1" {
		t.Errorf("gelöschte Person = %q, want p-1", geloeschtePerson)
	}
	if len(blobs.geloescht) != 2 {
		t.Errorf("blob deletes = %d, want 2", len(blobs.geloescht))
	}
}

func TestEraseIdempotent(t *testing.T) {
	personen := &mockPersonRepo{
		findByEmailFunc: func(ctx context.Context, email string) (*model.Person, error) {
			return nil, nil
		},
	}
	svc := NewService(personen, &mockAntragRepo{}, &mockDokumentRepo{}, &mockBlobDeleter{}, nil, t.TempDir(), slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil)))

	geloescht, err := svc.Erase(context.Background(), "schon-geloescht@example.de")
	if err != nil {
		t.Fatalf("Erase failed: %v", err)
	}
	if geloescht {
		t.Error("geloescht = true, want false für nicht vorhandene Person")
	}
}

func TestEraseBlobFehlerBlockiertNicht(t *testing.T) {
	person := testPerson()
	personGeloescht := false

	personen := &mockPersonRepo{
		findByEmailFunc: func(ctx context.Context, email string) (*model.Person, error) {
			return person, nil
		},
		deleteByIDFunc: func(ctx context.Context, id string) error {
			personGeloescht = true
			return nil
		},
	}
	dokumente := &mockDokumentRepo{
		listByPersonIDFunc: func(ctx context.Context, personID string) ([]model.Dokument, error) {
			return []model.Dokument{{ID: "d-1", SpeicherPfad: "dokumente/d-1.pdf"}}, nil
		},
	}
	blobs := &mockBlobDeleter{
		deleteFunc: func(pfad string) error { return errors.New("io error") },
	}

	var logBuf bytes.Buffer
	svc := NewService(personen, &mockAntragRepo{}, dokumente, blobs, nil, t.TempDir(), slog.New(slog.NewJSONHandler(&logBuf, nil)))

	geloescht, err := svc.Erase(context.Background(), person.Email)
	if err != nil {
		t.Fatalf("Erase failed trotz Blob-Fehler: %v", err)
	}
	if !geloescht || !personGeloescht {
		t.Error("Personenzeile muss trotz Blob-Fehler gelöscht werden")
	}
	if !strings.Contains(logBuf.String(), "blob-löschung") {
		t.Errorf("Blob-Fehler nicht geloggt: %s", logBuf.String())
	}
}

func TestScheduleDeletion(t *testing.T) {
	var gesetzteID string
	var gesetzterZeitpunkt time.Time

	antraege := &mockAntragRepo{
		setLoeschungGeplantFunc: func(ctx context.Context, id string, zeitpunkt time.Time) error {
			gesetzteID = id
			gesetzterZeitpunkt = zeitpunkt
			return nil
		},
	}
	svc := NewService(&mockPersonRepo{}, antraege, &mockDokumentRepo{}, &mockBlobDeleter{}, nil, t.TempDir(), slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil)))
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	zeitpunkt, err := svc.ScheduleDeletion(context.Background(), "a-1", 30)
	if err != nil {
		t.Fatalf("ScheduleDeletion failed: %v", err)
	}
	want := now.AddDate(0, 0, 30)
	if !zeitpunkt.Equal(want) {
		t.Errorf("zeitpunkt = %v, want %v", zeitpunkt, want)
	}
	if gesetzteID != "a-1" || !gesetzterZeitpunkt.Equal(want) {
		t.Errorf("Repository-Aufruf falsch: %q %v", gesetzteID, gesetzterZeitpunkt)
	}
}

func TestScheduleDeletionNegativeTage(t *testing.T) {
	svc := NewService(&mockPersonRepo{}, &mockAntragRepo{}, &mockDokumentRepo{}, &mockBlobDeleter{}, nil, t.TempDir(), slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil)))

	if _, err := svc.ScheduleDeletion(context.Background(), "a-1", -1); err == nil {
		t.Error("negative Frist muss abgelehnt werden")
	}
}

func TestScheduleDeletionAntragNichtGefunden(t *testing.T) {
	antraege := &mockAntragRepo{
		setLoeschungGeplantFunc: func(ctx context.Context, id string, zeitpunkt time.Time) error {
			return model.ErrAntragNichtGefunden
		},
	}
	svc := NewService(&mockPersonRepo{}, antraege, &mockDokumentRepo{}, &mockBlobDeleter{}, nil, t.TempDir(), slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil)))

	_, err := svc.ScheduleDeletion(context.Background(), "fehlt", 30)
	if !errors.Is(err, model.ErrAntragNichtGefunden) {
		t.Errorf("err = %v, want ErrAntragNichtGefunden", err)
	}
}
