package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jobcoach-muenster/backend/internal/model"
)

// PostgresAdminRepo ist das PostgreSQL-Repository für Admin-Konten.
type PostgresAdminRepo struct {
	db *sql.DB
}

// NewPostgresAdminRepo erzeugt ein PostgresAdminRepo.
func NewPostgresAdminRepo(db *sql.DB) *PostgresAdminRepo {
	return &PostgresAdminRepo{db: db}
}

// Create legt ein Admin-Konto an.
func (r *PostgresAdminRepo) Create(ctx context.Context, admin *model.Admin) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO admins (id, email, passwort_hash, rolle, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		admin.ID, admin.Email, admin.PasswortHash, admin.Rolle, admin.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert admin: %w", err)
	}
	return nil
}

// FindByEmail liefert das Konto zur E-Mail-Adresse, sonst nil.
func (r *PostgresAdminRepo) FindByEmail(ctx context.Context, email string) (*model.Admin, error) {
	admin := &model.Admin{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, email, passwort_hash, rolle, created_at
		 FROM admins WHERE email = $1`,
		email,
	).Scan(&admin.ID, &admin.Email, &admin.PasswortHash, &admin.Rolle, &admin.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find admin by email: %w", err)
	}

	return admin, nil
}

// compile-time interface check
var _ AdminRepository = (*PostgresAdminRepo)(nil)
