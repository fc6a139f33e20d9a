// Package retention entscheidet, ob ein Datensatz aufbewahrt, gelöscht oder
// anonymisiert wird. Reine Logik ohne I/O; alle Fristen leben ausschließlich
// hier. Der Cleanup-Job konsultiert für jede Entscheidung dieses Paket und
// dupliziert keine Schwellwerte.
package retention

import (
	"time"

	"github.com/jobcoach-muenster/backend/internal/model"
)

// Entscheidung ist das Ergebnis der Einstufung eines Antrags.
type Entscheidung int

const (
	// Behalten: der Antrag bleibt unverändert bestehen.
	Behalten Entscheidung = iota
	// Loeschen: der Antrag wird mitsamt Dokumenten endgültig gelöscht.
	Loeschen
	// Anonymisieren: identifizierende Felder werden unwiderruflich ersetzt,
	// der Antrag wird archiviert.
	Anonymisieren
)

// String liefert die Entscheidung als Logtext.
func (e Entscheidung) String() string {
	switch e {
	case Loeschen:
		return "loeschen"
	case Anonymisieren:
		return "anonymisieren"
	default:
		return "behalten"
	}
}

// Policy bündelt die Aufbewahrungsfristen.
type Policy struct {
	// AntragFrist: Ablauffrist für Anträge, deren Zeile kein explizites
	// Ablaufdatum trägt. Gerechnet ab Einreichung.
	AntragFrist time.Duration
	// AnonymisierenNachJahren: abgeschlossene Anträge werden nach dieser
	// Anzahl Jahre ohne Änderung anonymisiert.
	AnonymisierenNachJahren int
	// WaisenFrist: Dokumente ohne Zuordnung werden nach dieser Frist gelöscht.
	WaisenFrist time.Duration
}

// DefaultPolicy liefert die abgestimmte Standard-Löschrichtlinie:
// Antragsfrist 30 Tage, Anonymisierung nach 3 Jahren, Waisenfrist 30 Tage.
func DefaultPolicy() Policy {
	return Policy{
		AntragFrist:             30 * 24 * time.Hour,
		AnonymisierenNachJahren: 3,
		WaisenFrist:             30 * 24 * time.Hour,
	}
}

// ablauf liefert das wirksame Ablaufdatum eines Antrags. Fehlt das Datum
// auf der Zeile, gilt die Antragsfrist ab Einreichung.
func (p Policy) ablauf(a *model.Antrag) time.Time {
	if a.ExpiresAt.IsZero() {
		return a.CreatedAt.Add(p.AntragFrist)
	}
	return a.ExpiresAt
}

// Classify stuft einen Antrag zum Zeitpunkt now ein.
//
// Löschen, wenn die Einwilligung fehlt, eine terminierte Löschung fällig ist
// oder ein nicht abschließend entschiedener Antrag sein Ablaufdatum
// überschritten hat. Anonymisieren, wenn der Antrag abschließend entschieden
// ist und die Langzeitfrist seit der letzten Änderung verstrichen ist.
//
// Treffen mehrere Bedingungen zu, hat Löschen Vorrang: ein vollständig
// gelöschter Datensatz ist die stärkere Datenschutzgarantie und kann nicht
// zusätzlich anonymisiert werden.
func (p Policy) Classify(a *model.Antrag, now time.Time) Entscheidung {
	// Ohne erteilte Einwilligung dürfen Formulardaten nicht gespeichert
	// bleiben. Archivierte Zeilen sind bereits anonymisiert und tragen
	// keine identifizierenden Daten mehr.
	if !a.EinwilligungErteilt && a.Status != model.StatusArchiviert {
		return Loeschen
	}

	if a.LoeschungGeplantAm != nil && !a.LoeschungGeplantAm.After(now) {
		return Loeschen
	}

	if !p.ablauf(a).After(now) && !a.Status.IstAbschliessend() && a.Status != model.StatusArchiviert {
		return Loeschen
	}

	if a.Status.IstAbschliessend() &&
		!a.UpdatedAt.AddDate(p.AnonymisierenNachJahren, 0, 0).After(now) {
		return Anonymisieren
	}

	return Behalten
}

// IstVerwaist meldet, ob ein Dokument als Waise zu löschen ist: weder einem
// Antrag noch einer Person zugeordnet und älter als die Waisenfrist.
func (p Policy) IstVerwaist(d *model.Dokument, now time.Time) bool {
	if d.AntragID != nil || d.PersonID != nil {
		return false
	}
	return !d.CreatedAt.Add(p.WaisenFrist).After(now)
}

// IstAbgelaufen meldet, ob eine Session zu löschen ist.
func (p Policy) IstAbgelaufen(s *model.Session, now time.Time) bool {
	return s.IstAbgelaufen(now)
}
