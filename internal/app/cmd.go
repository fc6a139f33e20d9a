package app

// Command ist der Startmodus der Anwendung.
type Command string

const (
	// CommandServe startet den API-Server.
	CommandServe Command = "serve"
	// CommandWorker startet die geplanten Bereinigungsläufe.
	CommandWorker Command = "worker"
	// CommandMigrate wendet die Datenbankmigrationen an.
	CommandMigrate Command = "migrate"
	// CommandCleanup führt einmalig einen Bereinigungslauf aus und beendet
	// sich. Für manuelle Läufe und Cron-Umgebungen ohne Daemon.
	CommandCleanup Command = "cleanup"
	// CommandHealthcheck prüft den laufenden Server. Für Docker-Healthchecks
	// in distroless-Umgebungen.
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand liest den Subcommand aus den Programmargumenten.
// Ohne Argument oder bei unbekanntem Kommando wird CommandServe geliefert.
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
	case "serve":
		return CommandServe
	case "worker":
		return CommandWorker
	case "migrate":
		return CommandMigrate
	case "cleanup":
		return CommandCleanup
	case "healthcheck":
		return CommandHealthcheck
	default:
		return CommandServe
	}
}
