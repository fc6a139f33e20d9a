package model

import "errors"

// Domänenfehler. Repositories liefern bei "nicht gefunden" grundsätzlich
// (nil, nil); diese Sentinels werden erst in der Service-Schicht gesetzt,
// wo "nicht gefunden" eine fachliche Bedeutung hat.
var (
	// ErrPersonNichtGefunden: keine Person mit dem angegebenen Schlüssel.
	ErrPersonNichtGefunden = errors.New("person nicht gefunden")
	// ErrAntragNichtGefunden: kein Antrag mit der angegebenen ID.
	ErrAntragNichtGefunden = errors.New("antrag nicht gefunden")
	// ErrUngueltigeAnmeldedaten: E-Mail oder Passwort falsch.
	// Bewusst ununterscheidbar, um Konten-Enumeration zu verhindern.
	ErrUngueltigeAnmeldedaten = errors.New("ungültige anmeldedaten")
	// ErrNichtAutorisiert: fehlendes oder ungültiges Zugriffstoken.
	ErrNichtAutorisiert = errors.New("nicht autorisiert")
)
