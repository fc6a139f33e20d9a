// Package blobstore verwaltet die abgelegten Dokumentdateien im Dateisystem.
// Die Datenbank referenziert Dateien über relative Speicherpfade; dieses
// Paket kapselt den Zugriff und hält alle Pfade innerhalb des Basisverzeichnisses.
package blobstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store ist ein dateisystembasierter Blob-Store unter einem Basisverzeichnis.
type Store struct {
	baseDir string
}

// New erzeugt den Store und legt das Basisverzeichnis bei Bedarf an.
func New(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create blob directory: %w", err)
	}
	return &Store{baseDir: baseDir}, nil
}

// resolve bildet einen Speicherpfad auf einen Pfad unterhalb des
// Basisverzeichnisses ab. Absolute Pfade und ".."-Ausbrüche werden abgewiesen.
func (s *Store) resolve(pfad string) (string, error) {
	if pfad == "" {
		return "", fmt.Errorf("empty blob path")
	}
	if filepath.IsAbs(pfad) {
		return "", fmt.Errorf("absolute blob path not allowed: %s", pfad)
	}
	clean := filepath.Clean(pfad)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("blob path escapes base directory: %s", pfad)
	}
	return filepath.Join(s.baseDir, clean), nil
}

// DeleteBlob löscht die Datei zum angegebenen Speicherpfad.
// Eine bereits fehlende Datei ist kein Fehler: Löschen ist idempotent, und
// der nächste Sweep darf denselben Pfad gefahrlos erneut versuchen.
func (s *Store) DeleteBlob(pfad string) error {
	full, err := s.resolve(pfad)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete blob %s: %w", pfad, err)
	}
	return nil
}

// WriteBlob legt eine Datei unter dem Speicherpfad ab.
// Zwischenverzeichnisse werden angelegt.
func (s *Store) WriteBlob(pfad string, data []byte) error {
	full, err := s.resolve(pfad)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return fmt.Errorf("failed to create blob subdirectory: %w", err)
	}
	if err := os.WriteFile(full, data, 0o640); err != nil {
		return fmt.Errorf("failed to write blob %s: %w", pfad, err)
	}
	return nil
}

// Exists meldet, ob zum Speicherpfad eine Datei existiert.
func (s *Store) Exists(pfad string) (bool, error) {
	full, err := s.resolve(pfad)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(full)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat blob %s: %w", pfad, err)
	}
	return true, nil
}
