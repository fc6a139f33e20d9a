// Package gdpr bündelt Anonymisierung, Datenauskunft (Art. 15 DSGVO) und
// Löschbegehren (Art. 17 DSGVO).
package gdpr

import (
	"encoding/json"
	"strings"

	"github.com/jobcoach-muenster/backend/internal/model"
	"github.com/jobcoach-muenster/backend/internal/repository"
)

// redaktionsMarker ersetzt redigierte Formularfelder.
const redaktionsMarker = "***"

// sensibleFelder benennt je Schema-Version die personenbezogenen Schlüssel
// der Formulardaten. Die Nutzlast bleibt ansonsten opak; nur diese Listen
// dürfen bei einer neuen Formularversion wachsen.
var sensibleFelder = map[int][]string{
	1: {
		"vorname", "nachname", "email", "telefon", "geburtsdatum",
		"strasse", "hausnummer", "plz", "ort",
		"steuer_id_nummer", "sozialversicherungs_nummer", "iban",
	},
	2: {
		"vorname", "nachname", "email", "telefon", "geburtsdatum", "geburtsort",
		"strasse", "hausnummer", "plz", "ort",
		"steuer_id_nummer", "sozialversicherungs_nummer", "personalausweis_nummer",
		"iban", "arbeitgeber",
	},
}

// felderFuerSchema liefert die sensiblen Schlüssel einer Schema-Version.
// Für unbekannte Versionen wird die Vereinigung aller bekannten Listen
// verwendet; im Zweifel wird zu viel redigiert, nie zu wenig.
func felderFuerSchema(version int) []string {
	if felder, ok := sensibleFelder[version]; ok {
		return felder
	}
	gesehen := map[string]bool{}
	var alle []string
	for _, felder := range sensibleFelder {
		for _, f := range felder {
			if !gesehen[f] {
				gesehen[f] = true
				alle = append(alle, f)
			}
		}
	}
	return alle
}

// RedigiereName kürzt einen Namen unwiderruflich auf den Anfangsbuchstaben
// plus Maskierung ("Maria" → "M***").
func RedigiereName(name string) string {
	r := []rune(strings.TrimSpace(name))
	if len(r) == 0 {
		return redaktionsMarker
	}
	return string(r[0]) + redaktionsMarker
}

// AnonymeEmail liefert die Ersatzadresse einer anonymisierten Person.
// Die Original-Domain wird nicht übernommen; die Adresse ist allein aus der
// Personen-ID gebildet und damit nicht auf die Originaladresse rückführbar.
func AnonymeEmail(personID string) string {
	return "anon-" + personID + "@deleted.local"
}

// RedigiereFormularDaten ersetzt alle sensiblen Felder der Nutzlast durch
// den Redaktionsmarker. Nicht-sensible Felder (Statistikangaben, Leistungsart
// usw.) bleiben erhalten.
func RedigiereFormularDaten(fd model.FormularDaten) model.FormularDaten {
	redigiert := model.FormularDaten{
		SchemaVersion: fd.SchemaVersion,
		Felder:        make(map[string]json.RawMessage, len(fd.Felder)),
	}
	for k, v := range fd.Felder {
		redigiert.Felder[k] = v
	}

	marker, _ := json.Marshal(redaktionsMarker)
	for _, feld := range felderFuerSchema(fd.SchemaVersion) {
		if _, ok := redigiert.Felder[feld]; ok {
			redigiert.Felder[feld] = marker
		}
	}
	return redigiert
}

// BaueAnonymisierung berechnet den vollständigen Anonymisierungsbefehl für
// einen Antrag samt Person. Einzige Quelle der Redaktionsregeln; der
// Cleanup-Job reicht das Ergebnis unverändert an das Repository durch.
func BaueAnonymisierung(a *model.Antrag) repository.Anonymisierung {
	cmd := repository.Anonymisierung{
		AntragID:      a.ID,
		PersonID:      a.PersonID,
		FormularDaten: RedigiereFormularDaten(a.FormularDaten),
	}
	if a.Person != nil {
		cmd.Vorname = RedigiereName(a.Person.Vorname)
		cmd.Nachname = RedigiereName(a.Person.Nachname)
		cmd.Email = AnonymeEmail(a.Person.ID)
	} else {
		cmd.Vorname = redaktionsMarker
		cmd.Nachname = redaktionsMarker
		cmd.Email = AnonymeEmail(a.PersonID)
	}
	return cmd
}
