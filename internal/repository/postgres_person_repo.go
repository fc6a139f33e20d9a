package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jobcoach-muenster/backend/internal/model"
)

// PostgresPersonRepo ist das PostgreSQL-Repository für Personen.
type PostgresPersonRepo struct {
	db *sql.DB
}

// NewPostgresPersonRepo erzeugt ein PostgresPersonRepo.
func NewPostgresPersonRepo(db *sql.DB) *PostgresPersonRepo {
	return &PostgresPersonRepo{db: db}
}

const personSpalten = `id, anrede, vorname, nachname, email, telefon,
	strasse, hausnummer, plz, ort, steuer_id, sv_nummer, anonymisiert, created_at, updated_at`

func scanPerson(row interface{ Scan(...any) error }) (*model.Person, error) {
	p := &model.Person{}
	err := row.Scan(
		&p.ID, &p.Anrede, &p.Vorname, &p.Nachname, &p.Email, &p.Telefon,
		&p.Strasse, &p.Hausnummer, &p.PLZ, &p.Ort, &p.SteuerID, &p.SVNummer,
		&p.Anonymisiert, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Create legt eine Person an.
func (r *PostgresPersonRepo) Create(ctx context.Context, person *model.Person) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO persons (`+personSpalten+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		person.ID, person.Anrede, person.Vorname, person.Nachname, person.Email,
		person.Telefon, person.Strasse, person.Hausnummer, person.PLZ, person.Ort,
		person.SteuerID, person.SVNummer, person.Anonymisiert,
		person.CreatedAt, person.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert person: %w", err)
	}
	return nil
}

// FindByID liefert die Person mit der angegebenen ID, sonst nil.
func (r *PostgresPersonRepo) FindByID(ctx context.Context, id string) (*model.Person, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+personSpalten+` FROM persons WHERE id = $1`, id)

	p, err := scanPerson(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find person by ID: %w", err)
	}
	return p, nil
}

// FindByEmail liefert die Person zur E-Mail-Adresse, sonst nil.
func (r *PostgresPersonRepo) FindByEmail(ctx context.Context, email string) (*model.Person, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+personSpalten+` FROM persons WHERE email = $1`, email)

	p, err := scanPerson(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find person by email: %w", err)
	}
	return p, nil
}

// DeleteByID löscht die Person endgültig. Anträge, Dokumente und
// Statushistorie hängen per ON DELETE CASCADE an der Personenzeile.
func (r *PostgresPersonRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM persons WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete person: %w", err)
	}
	return nil
}

// compile-time interface check
var _ PersonRepository = (*PostgresPersonRepo)(nil)
