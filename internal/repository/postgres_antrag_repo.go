package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jobcoach-muenster/backend/internal/model"
)

// leererCursor ist der Startcursor der Keyset-Paginierung.
const leererCursor = "00000000-0000-0000-0000-000000000000"

// PostgresAntragRepo ist das PostgreSQL-Repository für Anträge.
type PostgresAntragRepo struct {
	db *sql.DB
}

// NewPostgresAntragRepo erzeugt ein PostgresAntragRepo.
func NewPostgresAntragRepo(db *sql.DB) *PostgresAntragRepo {
	return &PostgresAntragRepo{db: db}
}

const antragSpalten = `id, typ, person_id, status, formular_daten, signatur_pfad,
	einwilligung_erteilt, einwilligung_am, created_at, updated_at, expires_at, loeschung_geplant_am`

func scanAntrag(row interface{ Scan(...any) error }) (*model.Antrag, error) {
	a := &model.Antrag{}
	err := row.Scan(
		&a.ID, &a.Typ, &a.PersonID, &a.Status, &a.FormularDaten, &a.SignaturPfad,
		&a.EinwilligungErteilt, &a.EinwilligungAm, &a.CreatedAt, &a.UpdatedAt,
		&a.ExpiresAt, &a.LoeschungGeplantAm,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Create legt einen Antrag an.
func (r *PostgresAntragRepo) Create(ctx context.Context, antrag *model.Antrag) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO antraege (`+antragSpalten+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		antrag.ID, antrag.Typ, antrag.PersonID, antrag.Status, antrag.FormularDaten,
		antrag.SignaturPfad, antrag.EinwilligungErteilt, antrag.EinwilligungAm,
		antrag.CreatedAt, antrag.UpdatedAt, antrag.ExpiresAt, antrag.LoeschungGeplantAm,
	)
	if err != nil {
		return fmt.Errorf("failed to insert antrag: %w", err)
	}
	return nil
}

// FindByID liefert den Antrag mit der angegebenen ID, sonst nil.
func (r *PostgresAntragRepo) FindByID(ctx context.Context, id string) (*model.Antrag, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+antragSpalten+` FROM antraege WHERE id = $1`, id)

	a, err := scanAntrag(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find antrag by ID: %w", err)
	}
	return a, nil
}

// FindBereinigungsKandidaten liefert seitenweise alle nicht archivierten
// Anträge inklusive Person, aufsteigend nach ID ab dem Cursor. Als nächster
// Cursor wird die letzte ID der Seite zurückgegeben; eine leere Seite
// bedeutet Ende der Paginierung.
func (r *PostgresAntragRepo) FindBereinigungsKandidaten(ctx context.Context, limit int, cursor string) ([]*model.Antrag, string, error) {
	if cursor == "" {
		cursor = leererCursor
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT a.id, a.typ, a.person_id, a.status, a.formular_daten, a.signatur_pfad,
		        a.einwilligung_erteilt, a.einwilligung_am, a.created_at, a.updated_at,
		        a.expires_at, a.loeschung_geplant_am,
		        p.id, p.anrede, p.vorname, p.nachname, p.email, p.telefon,
		        p.strasse, p.hausnummer, p.plz, p.ort, p.steuer_id, p.sv_nummer,
		        p.anonymisiert, p.created_at, p.updated_at
		 FROM antraege a
		 JOIN persons p ON p.id = a.person_id
		 WHERE a.id > $1 AND a.status <> $2
		 ORDER BY a.id
		 LIMIT $3`,
		cursor, model.StatusArchiviert, limit,
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to query cleanup candidates: %w", err)
	}
	defer rows.Close()

	var kandidaten []*model.Antrag
	for rows.Next() {
		a := &model.Antrag{}
		p := &model.Person{}
		err := rows.Scan(
			&a.ID, &a.Typ, &a.PersonID, &a.Status, &a.FormularDaten, &a.SignaturPfad,
			&a.EinwilligungErteilt, &a.EinwilligungAm, &a.CreatedAt, &a.UpdatedAt,
			&a.ExpiresAt, &a.LoeschungGeplantAm,
			&p.ID, &p.Anrede, &p.Vorname, &p.Nachname, &p.Email, &p.Telefon,
			&p.Strasse, &p.Hausnummer, &p.PLZ, &p.Ort, &p.SteuerID, &p.SVNummer,
			&p.Anonymisiert, &p.CreatedAt, &p.UpdatedAt,
		)
		if err != nil {
			return nil, "", fmt.Errorf("failed to scan cleanup candidate: %w", err)
		}
		a.Person = p
		kandidaten = append(kandidaten, a)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("failed to iterate cleanup candidates: %w", err)
	}

	next := ""
	if len(kandidaten) > 0 {
		next = kandidaten[len(kandidaten)-1].ID
	}
	return kandidaten, next, nil
}

// DeleteByID löscht den Antrag endgültig. Dokumente und Statushistorie
// werden per ON DELETE CASCADE mitgelöscht.
func (r *PostgresAntragRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM antraege WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete antrag: %w", err)
	}
	return nil
}

// Anonymisiere überschreibt Formulardaten und Personenfelder in einer
// Transaktion. Die Reihenfolge ist bewusst explizit statt über ORM-Kaskaden:
// erst der Antrag (Nutzlast + Status ARCHIVIERT), dann die Person.
func (r *PostgresAntragRepo) Anonymisiere(ctx context.Context, a Anonymisierung) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`UPDATE antraege
		 SET formular_daten = $1, status = $2, signatur_pfad = '', updated_at = now()
		 WHERE id = $3`,
		a.FormularDaten, model.StatusArchiviert, a.AntragID,
	)
	if err != nil {
		return fmt.Errorf("failed to anonymize antrag: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE persons
		 SET vorname = $1, nachname = $2, email = $3,
		     telefon = NULL, strasse = NULL, hausnummer = NULL,
		     steuer_id = NULL, sv_nummer = NULL,
		     anonymisiert = TRUE, updated_at = now()
		 WHERE id = $4`,
		a.Vorname, a.Nachname, a.Email, a.PersonID,
	)
	if err != nil {
		return fmt.Errorf("failed to anonymize person: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// SetLoeschungGeplant terminiert die Löschung des Antrags.
func (r *PostgresAntragRepo) SetLoeschungGeplant(ctx context.Context, id string, zeitpunkt time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE antraege SET loeschung_geplant_am = $1, updated_at = now() WHERE id = $2`,
		zeitpunkt, id,
	)
	if err != nil {
		return fmt.Errorf("failed to schedule antrag deletion: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return model.ErrAntragNichtGefunden
	}
	return nil
}

// ListByPersonID liefert alle Anträge einer Person, aufsteigend nach Eingang.
func (r *PostgresAntragRepo) ListByPersonID(ctx context.Context, personID string) ([]*model.Antrag, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+antragSpalten+` FROM antraege WHERE person_id = $1 ORDER BY created_at`,
		personID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list antraege by person: %w", err)
	}
	defer rows.Close()

	var antraege []*model.Antrag
	for rows.Next() {
		a, err := scanAntrag(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan antrag: %w", err)
		}
		antraege = append(antraege, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate antraege: %w", err)
	}
	return antraege, nil
}

// ListStatusHistorie liefert die Statushistorie eines Antrags.
func (r *PostgresAntragRepo) ListStatusHistorie(ctx context.Context, antragID string) ([]model.StatusEintrag, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, antrag_id, von, nach, geaendert_am
		 FROM status_historie WHERE antrag_id = $1 ORDER BY geaendert_am`,
		antragID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list status historie: %w", err)
	}
	defer rows.Close()

	var eintraege []model.StatusEintrag
	for rows.Next() {
		var e model.StatusEintrag
		if err := rows.Scan(&e.ID, &e.AntragID, &e.Von, &e.Nach, &e.GeaendertAm); err != nil {
			return nil, fmt.Errorf("failed to scan status eintrag: %w", err)
		}
		eintraege = append(eintraege, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate status historie: %w", err)
	}
	return eintraege, nil
}

// compile-time interface check
var _ AntragRepository = (*PostgresAntragRepo)(nil)
