package model

import "time"

// Person ist die natürliche Person hinter einem oder mehreren Anträgen.
// Nach einer Anonymisierung sind alle identifizierenden Felder unwiderruflich
// durch Platzhalter ersetzt; kein Codepfad kann die Originalwerte ableiten.
type Person struct {
	ID         string
	Anrede     string
	Vorname    string
	Nachname   string
	Email      string
	Telefon    *string
	Strasse    *string
	Hausnummer *string
	PLZ        *string
	Ort        *string
	// SteuerID und SVNummer sind besonders schützenswert und werden bei der
	// Anonymisierung ersatzlos entfernt.
	SteuerID     *string
	SVNummer     *string
	Anonymisiert bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Admin ist ein Mitarbeiterkonto für den Zugriff auf die Verwaltungs-API.
type Admin struct {
	ID           string
	Email        string
	PasswortHash string
	Rolle        string
	CreatedAt    time.Time
}
