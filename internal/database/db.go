package database

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// Open öffnet die PostgreSQL-Verbindung.
// sql.Open stellt noch keine Verbindung her; der eigentliche Verbindungstest
// erfolgt über db.Ping() beim Aufrufer.
func Open(databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return db, nil
}
