package cleanup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jobcoach-muenster/backend/internal/model"
	"github.com/jobcoach-muenster/backend/internal/repository"
	"github.com/jobcoach-muenster/backend/internal/retention"
)

var t0 = time.Date(2026, 1, 15, 3, 0, 0, 0, time.UTC)

type mockAntragRepo struct {
	mu sync.Mutex

	kandidatenSeiten [][]*model.Antrag
	seitenIndex      int

	geloescht     []string
	anonymisiert  []string
	deleteErrFunc func(id string) error
}

func (m *mockAntragRepo) Create(ctx context.Context, antrag *model.Antrag) error { return nil }

func (m *mockAntragRepo) FindByID(ctx context.Context, id string) (*model.Antrag, error) {
	return nil, nil
}

func (m *mockAntragRepo) FindBereinigungsKandidaten(ctx context.Context, limit int, cursor string) ([]*model.Antrag, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seitenIndex >= len(m.kandidatenSeiten) {
		return nil, cursor, nil
	}
	seite := m.kandidatenSeiten[m.seitenIndex]
	m.seitenIndex++
	if len(seite) == 0 {
		return nil, cursor, nil
	}
	return seite, seite[len(seite)-1].ID, nil
}

func (m *mockAntragRepo) DeleteByID(ctx context.Context, id string) error {
	if m.deleteErrFunc != nil {
		if err := m.deleteErrFunc(id); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.geloescht = append(m.geloescht, id)
	m.mu.Unlock()
	return nil
}

func (m *mockAntragRepo) Anonymisiere(ctx context.Context, a repository.Anonymisierung) error {
	m.mu.Lock()
	m.anonymisiert = append(m.anonymisiert, a.AntragID)
	m.mu.Unlock()
	return nil
}

func (m *mockAntragRepo) SetLoeschungGeplant(ctx context.Context, id string, zeitpunkt time.Time) error {
	return nil
}

func (m *mockAntragRepo) ListByPersonID(ctx context.Context, personID string) ([]*model.Antrag, error) {
	return nil, nil
}

func (m *mockAntragRepo) ListStatusHistorie(ctx context.Context, antragID string) ([]model.StatusEintrag, error) {
	return nil, nil
}

type mockDokumentRepo struct {
	mu sync.Mutex

	proAntrag       map[string][]model.Dokument
	verwaisteSeiten [][]model.Dokument
	verwaisteIndex  int
	geloescht       []string
}

func (m *mockDokumentRepo) Create(ctx context.Context, dok *model.Dokument) error { return nil }

func (m *mockDokumentRepo) ListByAntragID(ctx context.Context, antragID string) ([]model.Dokument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.proAntrag[antragID], nil
}

func (m *mockDokumentRepo) ListByPersonID(ctx context.Context, personID string) ([]model.Dokument, error) {
	return nil, nil
}

func (m *mockDokumentRepo) FindVerwaiste(ctx context.Context, stichtag time.Time, limit int, cursor string) ([]model.Dokument, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.verwaisteIndex >= len(m.verwaisteSeiten) {
		return nil, cursor, nil
	}
	seite := m.verwaisteSeiten[m.verwaisteIndex]
	m.verwaisteIndex++
	if len(seite) == 0 {
		return nil, cursor, nil
	}
	return seite, seite[len(seite)-1].ID, nil
}

func (m *mockDokumentRepo) DeleteByID(ctx context.Context, id string) error {
	m.mu.Lock()
	m.geloescht = append(m.geloescht, id)
	m.mu.Unlock()
	return nil
}

type mockSessionRepo struct {
	geloescht     int64
	deleteErrFunc func() error
}

func (m *mockSessionRepo) Create(ctx context.Context, session *model.Session) error { return nil }

func (m *mockSessionRepo) FindByToken(ctx context.Context, token string) (*model.Session, error) {
	return nil, nil
}

func (m *mockSessionRepo) DeleteByToken(ctx context.Context, token string) error { return nil }

func (m *mockSessionRepo) DeleteAbgelaufene(ctx context.Context, now time.Time) (int64, error) {
	if m.deleteErrFunc != nil {
		if err := m.deleteErrFunc(); err != nil {
			return 0, err
		}
	}
	return m.geloescht, nil
}

type mockBlobDeleter struct {
	mu         sync.Mutex
	geloescht  []string
	deleteFunc func(pfad string) error
}

func (m *mockBlobDeleter) DeleteBlob(pfad string) error {
	m.mu.Lock()
	m.geloescht = append(m.geloescht, pfad)
	m.mu.Unlock()
	if m.deleteFunc != nil {
		return m.deleteFunc(pfad)
	}
	return nil
}

func neuerTestJob(antraege *mockAntragRepo, dokumente *mockDokumentRepo, sessions *mockSessionRepo, blobs *mockBlobDeleter, logBuf *bytes.Buffer) *Job {
	if logBuf == nil {
		logBuf = &bytes.Buffer{}
	}
	job := NewJob(antraege, dokumente, sessions, blobs,
		retention.DefaultPolicy(), nil,
		slog.New(slog.NewJSONHandler(logBuf, nil)), Options{})
	job.now = func() time.Time { return t0 }
	return job
}

func abgelaufenerAntrag(id string) *model.Antrag {
	return &model.Antrag{
		ID:                  id,
		PersonID:            "p-" + id,
		Status:              model.StatusEingereicht,
		EinwilligungErteilt: true,
		CreatedAt:           t0.AddDate(0, 0, -40),
		UpdatedAt:           t0.AddDate(0, 0, -40),
		ExpiresAt:           t0.AddDate(0, 0, -10),
		FormularDaten: model.FormularDaten{
			SchemaVersion: 1,
			Felder:        map[string]json.RawMessage{},
		},
	}
}

func alterAbgeschlossenerAntrag(id string) *model.Antrag {
	return &model.Antrag{
		ID:                  id,
		PersonID:            "p-" + id,
		Status:              model.StatusBewilligt,
		EinwilligungErteilt: true,
		CreatedAt:           t0.AddDate(-4, 0, 0),
		UpdatedAt:           t0.AddDate(-4, 0, 0),
		ExpiresAt:           t0.AddDate(-3, 11, 0),
		FormularDaten: model.FormularDaten{
			SchemaVersion: 1,
			Felder: map[string]json.RawMessage{
				"vorname": json.RawMessage(`"Maria"`),
			},
		},
		Person: &model.Person{ID: "p-" + id, Vorname: "Maria", Nachname: "Schmidt"},
	}
}

func aktiverAntrag(id string) *model.Antrag {
	return &model.Antrag{
		ID:                  id,
		PersonID:            "p-" + id,
		Status:              model.StatusInBearbeitung,
		EinwilligungErteilt: true,
		CreatedAt:           t0.AddDate(0, 0, -5),
		UpdatedAt:           t0.AddDate(0, 0, -5),
		ExpiresAt:           t0.AddDate(0, 0, 25),
	}
}

func TestRunGemischteKandidaten(t *testing.T) {
	antraege := &mockAntragRepo{
		kandidatenSeiten: [][]*model.Antrag{
			{abgelaufenerAntrag("a-loeschen"), alterAbgeschlossenerAntrag("a-anon"), aktiverAntrag("a-behalten")},
		},
	}
	dokumente := &mockDokumentRepo{
		proAntrag: map[string][]model.Dokument{
			"a-loeschen": {
				{ID: "d-1", SpeicherPfad: "dokumente/d-1.pdf"},
				{ID: "d-2", SpeicherPfad: "dokumente/d-2.pdf"},
			},
		},
	}
	sessions := &mockSessionRepo{geloescht: 3}
	blobs := &mockBlobDeleter{}

	job := neuerTestJob(antraege, dokumente, sessions, blobs, nil)
	bericht, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if bericht.AntraegeGeloescht != 1 {
		t.Errorf("AntraegeGeloescht = %d, want 1", bericht.AntraegeGeloescht)
	}
	if bericht.AntraegeAnonymisiert != 1 {
		t.Errorf("AntraegeAnonymisiert = %d, want 1", bericht.AntraegeAnonymisiert)
	}
	if bericht.DokumenteGeloescht != 2 {
		t.Errorf("DokumenteGeloescht = %d, want 2", bericht.DokumenteGeloescht)
	}
	if bericht.SessionsGeloescht != 3 {
		t.Errorf("SessionsGeloescht = %d, want 3", bericht.SessionsGeloescht)
	}
	if bericht.Fehler != 0 {
		t.Errorf("Fehler = %d, want 0", bericht.Fehler)
	}

	if len(antraege.geloescht) != 1 || antraege.geloescht[0] != "a-loeschen" {
		t.Errorf("gelöschte Anträge = %v", antraege.geloescht)
	}
	if len(antraege.anonymisiert) != 1 || antraege.anonymisiert[0] != "a-anon" {
		t.Errorf("anonymisierte Anträge = %v", antraege.anonymisiert)
	}
	if len(blobs.geloescht) != 2 {
		t.Errorf("blob deletes = %v", blobs.geloescht)
	}
}

func TestRunBlattertDurchAlleSeiten(t *testing.T) {
	antraege := &mockAntragRepo{
		kandidatenSeiten: [][]*model.Antrag{
			{abgelaufenerAntrag("a-1"), abgelaufenerAntrag("a-2")},
			{abgelaufenerAntrag("a-3")},
		},
	}

	job := neuerTestJob(antraege, &mockDokumentRepo{}, &mockSessionRepo{}, &mockBlobDeleter{}, nil)
	bericht, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if bericht.AntraegeGeloescht != 3 {
		t.Errorf("AntraegeGeloescht = %d, want 3", bericht.AntraegeGeloescht)
	}
}

func TestRunBlobFehlerBlockiertLoeschungNicht(t *testing.T) {
	antraege := &mockAntragRepo{
		kandidatenSeiten: [][]*model.Antrag{
			{abgelaufenerAntrag("a-1"), abgelaufenerAntrag("a-2")},
		},
	}
	dokumente := &mockDokumentRepo{
		proAntrag: map[string][]model.Dokument{
			"a-1": {{ID: "d-1", SpeicherPfad: "dokumente/kaputt.pdf"}},
			"a-2": {{ID: "d-2", SpeicherPfad: "dokumente/ok.pdf"}},
		},
	}
	blobs := &mockBlobDeleter{
		deleteFunc: func(pfad string) error {
			if pfad == "dokumente/kaputt.pdf" {
				return errors.New("io error")
			}
			return nil
		},
	}

	var logBuf bytes.Buffer
	job := neuerTestJob(antraege, dokumente, &mockSessionRepo{}, blobs, &logBuf)
	bericht, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// Beide Zeilen werden trotz des Blob-Fehlers gelöscht.
	if bericht.AntraegeGeloescht != 2 {
		t.Errorf("AntraegeGeloescht = %d, want 2", bericht.AntraegeGeloescht)
	}
	if bericht.BlobFehler != 1 {
		t.Errorf("BlobFehler = %d, want 1", bericht.BlobFehler)
	}
	if bericht.Fehler != 0 {
		t.Errorf("Fehler = %d, want 0", bericht.Fehler)
	}
	if !strings.Contains(logBuf.String(), "blob-löschung fehlgeschlagen") {
		t.Error("Blob-Fehler wurde nicht geloggt")
	}
}

func TestRunEinzelfehlerBrichtLaufNichtAb(t *testing.T) {
	antraege := &mockAntragRepo{
		kandidatenSeiten: [][]*model.Antrag{
			{abgelaufenerAntrag("a-kaputt"), abgelaufenerAntrag("a-ok")},
		},
		deleteErrFunc: func(id string) error {
			if id == "a-kaputt" {
				return errors.New("deadlock detected")
			}
			return nil
		},
	}

	job := neuerTestJob(antraege, &mockDokumentRepo{}, &mockSessionRepo{}, &mockBlobDeleter{}, nil)
	bericht, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if bericht.AntraegeGeloescht != 1 {
		t.Errorf("AntraegeGeloescht = %d, want 1", bericht.AntraegeGeloescht)
	}
	if bericht.Fehler != 1 {
		t.Errorf("Fehler = %d, want 1", bericht.Fehler)
	}
	if len(antraege.geloescht) != 1 || antraege.geloescht[0] != "a-ok" {
		t.Errorf("gelöschte Anträge = %v", antraege.geloescht)
	}
}

func TestRunVerwaisteDokumente(t *testing.T) {
	alt := model.Dokument{
		ID:           "d-alt",
		SpeicherPfad: "dokumente/d-alt.pdf",
		CreatedAt:    t0.AddDate(0, 0, -31),
	}
	antragID := "a-1"
	zugeordnet := model.Dokument{
		ID:           "d-zugeordnet",
		AntragID:     &antragID,
		SpeicherPfad: "dokumente/d-zugeordnet.pdf",
		CreatedAt:    t0.AddDate(0, 0, -31),
	}
	dokumente := &mockDokumentRepo{verwaisteSeiten: [][]model.Dokument{{alt, zugeordnet}}}
	blobs := &mockBlobDeleter{}

	job := neuerTestJob(&mockAntragRepo{}, dokumente, &mockSessionRepo{}, blobs, nil)
	bericht, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if bericht.DokumenteGeloescht != 1 {
		t.Errorf("DokumenteGeloescht = %d, want 1", bericht.DokumenteGeloescht)
	}
	if len(dokumente.geloescht) != 1 || dokumente.geloescht[0] != "d-alt" {
		t.Errorf("gelöschte Dokumente = %v", dokumente.geloescht)
	}
	if len(blobs.geloescht) != 1 || blobs.geloescht[0] != "dokumente/d-alt.pdf" {
		t.Errorf("gelöschte Blobs = %v", blobs.geloescht)
	}
}

func TestRunIdempotent(t *testing.T) {
	// Zweiter Lauf ohne neue Kandidaten: alle Zähler bleiben null.
	antraege := &mockAntragRepo{}
	job := neuerTestJob(antraege, &mockDokumentRepo{}, &mockSessionRepo{}, &mockBlobDeleter{}, nil)

	bericht, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if bericht.AntraegeGeloescht != 0 || bericht.AntraegeAnonymisiert != 0 ||
		bericht.DokumenteGeloescht != 0 || bericht.SessionsGeloescht != 0 {
		t.Errorf("leerer Lauf hat Zähler verändert: %+v", bericht)
	}
}

func TestRunSessionFehler(t *testing.T) {
	sessions := &mockSessionRepo{
		deleteErrFunc: func() error { return errors.New("connection reset") },
	}
	job := neuerTestJob(&mockAntragRepo{}, &mockDokumentRepo{}, sessions, &mockBlobDeleter{}, nil)

	if _, err := job.Run(context.Background()); err == nil {
		t.Error("Session-Fehler muss den Lauf als fehlgeschlagen melden")
	}
}

func TestRunSessions(t *testing.T) {
	sessions := &mockSessionRepo{geloescht: 7}
	job := neuerTestJob(&mockAntragRepo{}, &mockDokumentRepo{}, sessions, &mockBlobDeleter{}, nil)

	geloescht, err := job.RunSessions(context.Background())
	if err != nil {
		t.Fatalf("RunSessions failed: %v", err)
	}
	if geloescht != 7 {
		t.Errorf("geloescht = %d, want 7", geloescht)
	}
}

func TestRunAbbruchBeiStorniertemContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	antraege := &mockAntragRepo{
		kandidatenSeiten: [][]*model.Antrag{{abgelaufenerAntrag("a-1")}},
	}
	job := neuerTestJob(antraege, &mockDokumentRepo{}, &mockSessionRepo{}, &mockBlobDeleter{}, nil)

	if _, err := job.Run(ctx); err == nil {
		t.Error("stornierter Context muss den Lauf abbrechen")
	}
	if len(antraege.geloescht) != 0 {
		t.Errorf("nach Abbruch darf nichts gelöscht sein: %v", antraege.geloescht)
	}
}

func TestRunAbbruchBeendetBegonneneSeite(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Der Abbruch kommt mitten in der ersten Seite. Beide Datensätze der
	// Seite werden noch bearbeitet, die zweite Seite nicht mehr geholt.
	antraege := &mockAntragRepo{
		kandidatenSeiten: [][]*model.Antrag{
			{abgelaufenerAntrag("a-1"), abgelaufenerAntrag("a-2")},
			{abgelaufenerAntrag("a-3")},
		},
		deleteErrFunc: func(id string) error {
			cancel()
			return nil
		},
	}

	job := neuerTestJob(antraege, &mockDokumentRepo{}, &mockSessionRepo{}, &mockBlobDeleter{}, nil)
	bericht, err := job.Run(ctx)
	if err == nil {
		t.Error("abgebrochener Lauf muss einen Fehler melden")
	}

	if bericht.AntraegeGeloescht != 2 {
		t.Errorf("AntraegeGeloescht = %d, want 2", bericht.AntraegeGeloescht)
	}
	if bericht.Fehler != 0 {
		t.Errorf("Fehler = %d, want 0", bericht.Fehler)
	}
	if len(antraege.geloescht) != 2 {
		t.Errorf("gelöschte Anträge = %v", antraege.geloescht)
	}
}

func TestRunVerwaisteDokumenteSeitenweise(t *testing.T) {
	verwaist := func(id string) model.Dokument {
		return model.Dokument{
			ID:           id,
			SpeicherPfad: "dokumente/" + id + ".pdf",
			CreatedAt:    t0.AddDate(0, 0, -31),
		}
	}
	dokumente := &mockDokumentRepo{
		verwaisteSeiten: [][]model.Dokument{
			{verwaist("d-1"), verwaist("d-2")},
			{verwaist("d-3")},
		},
	}

	job := neuerTestJob(&mockAntragRepo{}, dokumente, &mockSessionRepo{}, &mockBlobDeleter{}, nil)
	bericht, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if bericht.DokumenteGeloescht != 3 {
		t.Errorf("DokumenteGeloescht = %d, want 3", bericht.DokumenteGeloescht)
	}
	if len(dokumente.geloescht) != 3 {
		t.Errorf("gelöschte Dokumente = %v", dokumente.geloescht)
	}
}
