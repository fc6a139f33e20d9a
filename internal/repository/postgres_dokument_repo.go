package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jobcoach-muenster/backend/internal/model"
)

// PostgresDokumentRepo ist das PostgreSQL-Repository für Dokumente.
type PostgresDokumentRepo struct {
	db *sql.DB
}

// NewPostgresDokumentRepo erzeugt ein PostgresDokumentRepo.
func NewPostgresDokumentRepo(db *sql.DB) *PostgresDokumentRepo {
	return &PostgresDokumentRepo{db: db}
}

const dokumentSpalten = `id, antrag_id, person_id, datei_name, mime_type,
	byte_groesse, speicher_pfad, vertraulich, verifiziert, created_at`

func scanDokumente(rows *sql.Rows) ([]model.Dokument, error) {
	var dokumente []model.Dokument
	for rows.Next() {
		var d model.Dokument
		err := rows.Scan(
			&d.ID, &d.AntragID, &d.PersonID, &d.DateiName, &d.MimeType,
			&d.ByteGroesse, &d.SpeicherPfad, &d.Vertraulich, &d.Verifiziert, &d.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dokument: %w", err)
		}
		dokumente = append(dokumente, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate dokumente: %w", err)
	}
	return dokumente, nil
}

// Create legt ein Dokument an.
func (r *PostgresDokumentRepo) Create(ctx context.Context, dok *model.Dokument) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO dokumente (`+dokumentSpalten+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		dok.ID, dok.AntragID, dok.PersonID, dok.DateiName, dok.MimeType,
		dok.ByteGroesse, dok.SpeicherPfad, dok.Vertraulich, dok.Verifiziert, dok.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert dokument: %w", err)
	}
	return nil
}

// ListByAntragID liefert alle Dokumente eines Antrags.
func (r *PostgresDokumentRepo) ListByAntragID(ctx context.Context, antragID string) ([]model.Dokument, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+dokumentSpalten+` FROM dokumente WHERE antrag_id = $1 ORDER BY created_at`,
		antragID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list dokumente by antrag: %w", err)
	}
	defer rows.Close()

	return scanDokumente(rows)
}

// ListByPersonID liefert alle Dokumente, die direkt oder über einen Antrag
// zu der Person gehören.
func (r *PostgresDokumentRepo) ListByPersonID(ctx context.Context, personID string) ([]model.Dokument, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT d.id, d.antrag_id, d.person_id, d.datei_name, d.mime_type,
		        d.byte_groesse, d.speicher_pfad, d.vertraulich, d.verifiziert, d.created_at
		 FROM dokumente d
		 LEFT JOIN antraege a ON a.id = d.antrag_id
		 WHERE d.person_id = $1 OR a.person_id = $1
		 ORDER BY d.created_at`,
		personID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list dokumente by person: %w", err)
	}
	defer rows.Close()

	return scanDokumente(rows)
}

// FindVerwaiste liefert seitenweise Dokumente ohne Antrags- und
// Personenzuordnung, die vor dem Stichtag angelegt wurden, aufsteigend nach
// ID ab dem Cursor. Eine leere Seite bedeutet Ende der Paginierung.
func (r *PostgresDokumentRepo) FindVerwaiste(ctx context.Context, stichtag time.Time, limit int, cursor string) ([]model.Dokument, string, error) {
	if cursor == "" {
		cursor = leererCursor
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+dokumentSpalten+`
		 FROM dokumente
		 WHERE antrag_id IS NULL AND person_id IS NULL AND created_at <= $1
		   AND id > $2
		 ORDER BY id
		 LIMIT $3`,
		stichtag, cursor, limit,
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to find orphaned dokumente: %w", err)
	}
	defer rows.Close()

	dokumente, err := scanDokumente(rows)
	if err != nil {
		return nil, "", err
	}

	next := ""
	if len(dokumente) > 0 {
		next = dokumente[len(dokumente)-1].ID
	}
	return dokumente, next, nil
}

// DeleteByID löscht die Dokumentzeile.
func (r *PostgresDokumentRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM dokumente WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete dokument: %w", err)
	}
	return nil
}

// compile-time interface check
var _ DokumentRepository = (*PostgresDokumentRepo)(nil)
