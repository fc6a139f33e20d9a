// Package logger richtet die JSON-strukturierte Logausgabe ein.
package logger

import (
	"io"
	"log/slog"
	"os"
)

// Setup erzeugt einen slog.Logger mit JSON-Handler auf dem übergebenen Writer.
func Setup(w io.Writer) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	return slog.New(handler)
}

// SetupDefault setzt den JSON-Logger als globalen Default-Logger.
// In Produktion wird os.Stdout übergeben.
func SetupDefault(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	slog.SetDefault(Setup(w))
}
