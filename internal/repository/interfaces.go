// Package repository definiert die Persistenzschnittstellen des Backends.
package repository

import (
	"context"
	"time"

	"github.com/jobcoach-muenster/backend/internal/model"
)

// Anonymisierung ist der Schreibbefehl für die unwiderrufliche Anonymisierung
// eines Antrags samt zugehöriger Person. Die redigierten Werte werden von der
// Service-Schicht berechnet; das Repository schreibt sie in einer Transaktion.
type Anonymisierung struct {
	AntragID      string
	PersonID      string
	FormularDaten model.FormularDaten
	// Redigierte Personenfelder. Telefon, Adresse, SteuerID und SVNummer
	// werden ersatzlos auf NULL gesetzt.
	Vorname  string
	Nachname string
	Email    string
}

// AntragRepository ist die Persistenzschnittstelle für Anträge.
type AntragRepository interface {
	// Create legt einen Antrag an.
	Create(ctx context.Context, antrag *model.Antrag) error

	// FindByID liefert den Antrag mit der angegebenen ID, sonst nil.
	FindByID(ctx context.Context, id string) (*model.Antrag, error)

	// FindBereinigungsKandidaten liefert seitenweise alle nicht archivierten
	// Anträge inklusive zugehöriger Person, aufsteigend nach ID ab dem Cursor.
	// Die Einstufung übernimmt ausschließlich der Retention-Evaluator; diese
	// Abfrage filtert bewusst keine Fristen.
	FindBereinigungsKandidaten(ctx context.Context, limit int, cursor string) ([]*model.Antrag, string, error)

	// DeleteByID löscht den Antrag endgültig. Dokumente und Statushistorie
	// werden per ON DELETE CASCADE mitgelöscht.
	DeleteByID(ctx context.Context, id string) error

	// Anonymisiere überschreibt Formulardaten und Personenfelder in einer
	// Transaktion und setzt den Antrag auf ARCHIVIERT.
	Anonymisiere(ctx context.Context, a Anonymisierung) error

	// SetLoeschungGeplant terminiert die Löschung des Antrags.
	SetLoeschungGeplant(ctx context.Context, id string, zeitpunkt time.Time) error

	// ListByPersonID liefert alle Anträge einer Person.
	ListByPersonID(ctx context.Context, personID string) ([]*model.Antrag, error)

	// ListStatusHistorie liefert die Statushistorie eines Antrags,
	// aufsteigend nach Änderungszeitpunkt.
	ListStatusHistorie(ctx context.Context, antragID string) ([]model.StatusEintrag, error)
}

// DokumentRepository ist die Persistenzschnittstelle für Dokumente.
type DokumentRepository interface {
	// Create legt ein Dokument an.
	Create(ctx context.Context, dok *model.Dokument) error

	// ListByAntragID liefert alle Dokumente eines Antrags.
	ListByAntragID(ctx context.Context, antragID string) ([]model.Dokument, error)

	// ListByPersonID liefert alle Dokumente, die direkt oder über einen
	// Antrag zu der Person gehören.
	ListByPersonID(ctx context.Context, personID string) ([]model.Dokument, error)

	// FindVerwaiste liefert seitenweise Dokumente ohne Antrags- und
	// Personenzuordnung, die vor dem Stichtag angelegt wurden, aufsteigend
	// nach ID ab dem Cursor. Als nächster Cursor wird die letzte ID der
	// Seite zurückgegeben; eine leere Seite bedeutet Ende der Paginierung.
	FindVerwaiste(ctx context.Context, stichtag time.Time, limit int, cursor string) ([]model.Dokument, string, error)

	// DeleteByID löscht die Dokumentzeile.
	DeleteByID(ctx context.Context, id string) error
}

// SessionRepository ist die Persistenzschnittstelle für Admin-Sessions.
type SessionRepository interface {
	// Create legt eine Session an.
	Create(ctx context.Context, session *model.Session) error

	// FindByToken liefert die Session zum Token, sofern nicht abgelaufen,
	// sonst nil.
	FindByToken(ctx context.Context, token string) (*model.Session, error)

	// DeleteByToken löscht die Session zum Token.
	DeleteByToken(ctx context.Context, token string) error

	// DeleteAbgelaufene löscht alle Sessions mit expires_at <= now und
	// liefert die Anzahl gelöschter Zeilen.
	DeleteAbgelaufene(ctx context.Context, now time.Time) (int64, error)
}

// PersonRepository ist die Persistenzschnittstelle für Personen.
type PersonRepository interface {
	// Create legt eine Person an.
	Create(ctx context.Context, person *model.Person) error

	// FindByID liefert die Person mit der angegebenen ID, sonst nil.
	FindByID(ctx context.Context, id string) (*model.Person, error)

	// FindByEmail liefert die Person zur E-Mail-Adresse, sonst nil.
	FindByEmail(ctx context.Context, email string) (*model.Person, error)

	// DeleteByID löscht die Person endgültig. Anträge, Dokumente und
	// Statushistorie werden per ON DELETE CASCADE mitgelöscht.
	DeleteByID(ctx context.Context, id string) error
}

// AdminRepository ist die Persistenzschnittstelle für Admin-Konten.
type AdminRepository interface {
	// Create legt ein Admin-Konto an.
	Create(ctx context.Context, admin *model.Admin) error

	// FindByEmail liefert das Konto zur E-Mail-Adresse, sonst nil.
	FindByEmail(ctx context.Context, email string) (*model.Admin, error)
}
