// Package model definiert die Domänenmodelle des Antrags-Backends.
package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// AntragTyp bezeichnet die beantragte Sozialleistung.
type AntragTyp string

const (
	// TypArbeitslosengeld ist ein Antrag auf Arbeitslosengeld/Bürgergeld.
	TypArbeitslosengeld AntragTyp = "ARBEITSLOSENGELD"
	// TypKindergeld ist ein Antrag auf Kindergeld.
	TypKindergeld AntragTyp = "KINDERGELD"
	// TypWohngeld ist ein Antrag auf Wohngeld.
	TypWohngeld AntragTyp = "WOHNGELD"
	// TypBafoeg ist ein Antrag auf Ausbildungsförderung (BAföG).
	TypBafoeg AntragTyp = "BAFOEG"
	// TypSonstiges ist ein sonstiger Leistungsantrag.
	TypSonstiges AntragTyp = "SONSTIGES"
)

// AntragStatus bezeichnet den Bearbeitungsstand eines Antrags.
type AntragStatus string

const (
	// StatusEingereicht: vom Antragsteller eingereicht, noch unbearbeitet.
	StatusEingereicht AntragStatus = "EINGEREICHT"
	// StatusInBearbeitung: ein Sachbearbeiter hat die Bearbeitung begonnen.
	StatusInBearbeitung AntragStatus = "IN_BEARBEITUNG"
	// StatusBewilligt: Antrag positiv entschieden.
	StatusBewilligt AntragStatus = "BEWILLIGT"
	// StatusAbgelehnt: Antrag negativ entschieden.
	StatusAbgelehnt AntragStatus = "ABGELEHNT"
	// StatusZurueckgezogen: vom Antragsteller zurückgezogen.
	StatusZurueckgezogen AntragStatus = "ZURUECKGEZOGEN"
	// StatusArchiviert: anonymisiert und nur noch für Statistik vorgehalten.
	// Wird ausschließlich vom Cleanup-Job gesetzt.
	StatusArchiviert AntragStatus = "ARCHIVIERT"
)

// IstAbschliessend meldet, ob der Status eine fachliche Endentscheidung ist
// (bewilligt, abgelehnt oder zurückgezogen). Archivierte Anträge gelten als
// bereits verarbeitet und zählen nicht dazu.
func (s AntragStatus) IstAbschliessend() bool {
	switch s {
	case StatusBewilligt, StatusAbgelehnt, StatusZurueckgezogen:
		return true
	}
	return false
}

// FormularDaten ist die versionierte, opake Nutzlast eines Antragsformulars.
// Die Felder werden nicht fachlich interpretiert; nur die Anonymisierung
// kennt pro SchemaVersion die personenbezogenen Schlüssel.
type FormularDaten struct {
	SchemaVersion int                        `json:"schema_version"`
	Felder        map[string]json.RawMessage `json:"felder"`
}

// Value serialisiert die Formulardaten für eine jsonb-Spalte.
func (fd FormularDaten) Value() (driver.Value, error) {
	b, err := json.Marshal(fd)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal formular_daten: %w", err)
	}
	return b, nil
}

// Scan liest die Formulardaten aus einer jsonb-Spalte.
func (fd *FormularDaten) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*fd = FormularDaten{}
		return nil
	case []byte:
		return json.Unmarshal(v, fd)
	case string:
		return json.Unmarshal([]byte(v), fd)
	default:
		return fmt.Errorf("unsupported formular_daten source type %T", src)
	}
}

// Antrag ist ein eingereichter Leistungsantrag.
type Antrag struct {
	ID                  string
	Typ                 AntragTyp
	PersonID            string
	Status              AntragStatus
	FormularDaten       FormularDaten
	SignaturPfad        string
	EinwilligungErteilt bool
	EinwilligungAm      *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
	// ExpiresAt wird bei der Einreichung gesetzt (standardmäßig +30 Tage).
	ExpiresAt time.Time
	// LoeschungGeplantAm ist gesetzt, wenn eine Löschung ausdrücklich
	// terminiert wurde (z.B. nach Abschluss oder auf Wunsch des Antragstellers).
	LoeschungGeplantAm *time.Time

	// Dokumente und Person werden nur für den Sweep bzw. Export mitgeladen.
	Dokumente []Dokument
	Person    *Person
}

// StatusEintrag ist ein Eintrag der Statushistorie eines Antrags.
type StatusEintrag struct {
	ID          string
	AntragID    string
	Von         AntragStatus
	Nach        AntragStatus
	GeaendertAm time.Time
}
