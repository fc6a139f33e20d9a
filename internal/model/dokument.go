package model

import "time"

// Dokument ist eine hochgeladene Datei zu einem Antrag.
// AntragID und PersonID sind beide optional: unmittelbar nach dem Upload
// kann ein Dokument noch keinem Antrag zugeordnet sein. Bleibt es länger als
// die Waisenfrist ohne Zuordnung, wird es vom Cleanup-Job entfernt.
type Dokument struct {
	ID          string
	AntragID    *string
	PersonID    *string
	DateiName   string
	MimeType    string
	ByteGroesse int64
	// SpeicherPfad ist der Schlüssel der Datei im Blob-Store.
	SpeicherPfad string
	Vertraulich  bool
	Verifiziert  bool
	CreatedAt    time.Time
}
