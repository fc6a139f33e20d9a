// Package scheduler startet die periodischen Bereinigungsläufe nach
// Cron-Zeitplan.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// Sweeper ist der Bereinigungslauf aus Sicht des Schedulers.
type Sweeper interface {
	// Run führt den vollständigen Lauf durch.
	Run(ctx context.Context) error
	// RunSessions löscht nur abgelaufene Sessions.
	RunSessions(ctx context.Context) error
}

// Scheduler registriert den täglichen Bereinigungslauf und den stündlichen
// Session-Lauf bei einer Cron-Instanz und verwaltet deren Lebenszyklus.
type Scheduler struct {
	sweeper Sweeper
	cron    *cron.Cron
	logger  *slog.Logger

	cleanupSchedule string
	sessionSchedule string

	mu      sync.Mutex
	running bool
}

// New erzeugt den Scheduler. Beide Zeitpläne sind Standard-Cron-Ausdrücke
// mit fünf Feldern; ein leerer Zeitplan deaktiviert den jeweiligen Lauf.
func New(sweeper Sweeper, cleanupSchedule, sessionSchedule string, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		sweeper:         sweeper,
		cron:            cron.New(),
		logger:          logger,
		cleanupSchedule: cleanupSchedule,
		sessionSchedule: sessionSchedule,
	}
}

// Start validiert die Zeitpläne, registriert die Läufe und startet die
// Cron-Instanz. Der übergebene Context wird an die Läufe durchgereicht;
// beendet wird der Scheduler über Stop, damit ein laufender Lauf vor der
// Context-Aufhebung zu Ende kommen kann.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	if s.cleanupSchedule != "" {
		if _, err := cron.ParseStandard(s.cleanupSchedule); err != nil {
			return fmt.Errorf("invalid cleanup schedule %q: %w", s.cleanupSchedule, err)
		}
		if _, err := s.cron.AddFunc(s.cleanupSchedule, func() { s.laufe(ctx) }); err != nil {
			return fmt.Errorf("failed to schedule cleanup: %w", err)
		}
	}
	if s.sessionSchedule != "" {
		if _, err := cron.ParseStandard(s.sessionSchedule); err != nil {
			return fmt.Errorf("invalid session schedule %q: %w", s.sessionSchedule, err)
		}
		if _, err := s.cron.AddFunc(s.sessionSchedule, func() { s.laufeSessions(ctx) }); err != nil {
			return fmt.Errorf("failed to schedule session sweep: %w", err)
		}
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("scheduler gestartet",
		slog.String("cleanup_schedule", s.cleanupSchedule),
		slog.String("session_schedule", s.sessionSchedule),
	)

	return nil
}

func (s *Scheduler) laufe(ctx context.Context) {
	if err := s.sweeper.Run(ctx); err != nil {
		s.logger.Error("geplanter bereinigungslauf fehlgeschlagen",
			slog.String("error", err.Error()))
	}
}

func (s *Scheduler) laufeSessions(ctx context.Context) {
	if err := s.sweeper.RunSessions(ctx); err != nil {
		s.logger.Error("geplanter session-lauf fehlgeschlagen",
			slog.String("error", err.Error()))
	}
}

// Stop hält die Cron-Instanz an und wartet, bis laufende Läufe beendet sind.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Info("scheduler gestoppt")
}
