package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jobcoach-muenster/backend/internal/model"
)

// PostgresSessionRepo ist das PostgreSQL-Repository für Admin-Sessions.
type PostgresSessionRepo struct {
	db *sql.DB
}

// NewPostgresSessionRepo erzeugt ein PostgresSessionRepo.
func NewPostgresSessionRepo(db *sql.DB) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db}
}

// Create legt eine Session an.
func (r *PostgresSessionRepo) Create(ctx context.Context, session *model.Session) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, token, admin_id, expires_at, ip, user_agent, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		session.ID, session.Token, session.AdminID, session.ExpiresAt,
		session.IP, session.UserAgent, session.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// FindByToken liefert die Session zum Token, sofern nicht abgelaufen, sonst nil.
func (r *PostgresSessionRepo) FindByToken(ctx context.Context, token string) (*model.Session, error) {
	session := &model.Session{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, token, admin_id, expires_at, ip, user_agent, created_at
		 FROM sessions
		 WHERE token = $1 AND expires_at > now()`,
		token,
	).Scan(&session.ID, &session.Token, &session.AdminID, &session.ExpiresAt,
		&session.IP, &session.UserAgent, &session.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}

	return session, nil
}

// DeleteByToken löscht die Session zum Token.
func (r *PostgresSessionRepo) DeleteByToken(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = $1`, token)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteAbgelaufene löscht alle Sessions mit expires_at <= now als eine
// Mengenoperation und liefert die Anzahl gelöschter Zeilen.
func (r *PostgresSessionRepo) DeleteAbgelaufene(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return count, nil
}

// compile-time interface check
var _ SessionRepository = (*PostgresSessionRepo)(nil)
