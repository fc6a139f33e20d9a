// Package app verdrahtet die Anwendung und startet sie im gewünschten Modus.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jobcoach-muenster/backend/internal/auth"
	"github.com/jobcoach-muenster/backend/internal/blobstore"
	"github.com/jobcoach-muenster/backend/internal/config"
	"github.com/jobcoach-muenster/backend/internal/database"
	"github.com/jobcoach-muenster/backend/internal/gdpr"
	"github.com/jobcoach-muenster/backend/internal/handler"
	"github.com/jobcoach-muenster/backend/internal/logger"
	"github.com/jobcoach-muenster/backend/internal/metrics"
	"github.com/jobcoach-muenster/backend/internal/middleware"
	"github.com/jobcoach-muenster/backend/internal/repository"
	"github.com/jobcoach-muenster/backend/internal/retention"
	"github.com/jobcoach-muenster/backend/internal/scheduler"
	"github.com/jobcoach-muenster/backend/internal/worker/cleanup"
)

// Init lädt die Konfiguration und richtet das JSON-Strukturlog ein.
// w ist das Ziel der Logausgabe.
func Init(w io.Writer) (*config.Config, error) {
	logger.SetupDefault(w)

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run ist der Haupteinstieg der Anwendung. args sind os.Args[1:].
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck kommt ohne Konfiguration und DB aus.
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandCleanup:
		return runCleanupOnce(cfg)
	default:
		return runServe(cfg)
	}
}

// deps bündelt die verdrahteten Kernkomponenten.
type deps struct {
	db       *sql.DB
	registry *prometheus.Registry
	authSvc  *auth.Service
	gdprSvc  *gdpr.Service
	job      *cleanup.Job
	cfg      *config.Config
}

// wire öffnet die DB-Verbindung und baut alle Services zusammen.
func wire(cfg *config.Config) (*deps, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("database connection established")

	blobs, err := blobstore.New(cfg.UploadDir)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open blob store: %w", err)
	}

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	antragRepo := repository.NewPostgresAntragRepo(db)
	dokumentRepo := repository.NewPostgresDokumentRepo(db)
	personRepo := repository.NewPostgresPersonRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	adminRepo := repository.NewPostgresAdminRepo(db)

	policy := retention.Policy{
		AntragFrist:             time.Duration(cfg.AntragRetentionDays) * 24 * time.Hour,
		AnonymisierenNachJahren: cfg.AnonymisierungsJahre,
		WaisenFrist:             time.Duration(cfg.WaisenFristTage) * 24 * time.Hour,
	}

	authSvc := auth.NewService(adminRepo, sessionRepo, cfg.JWTSecret, cfg.SessionTTL, slog.Default())
	gdprSvc := gdpr.NewService(personRepo, antragRepo, dokumentRepo, blobs, collector, cfg.ExportDir, slog.Default())
	job := cleanup.NewJob(antragRepo, dokumentRepo, sessionRepo, blobs, policy, collector, slog.Default(), cleanup.Options{
		BatchSize:   cfg.CleanupBatchSize,
		MaxParallel: cfg.CleanupMaxParallel,
		OpTimeout:   cfg.CleanupOpTimeout,
	})

	return &deps{
		db:       db,
		registry: registry,
		authSvc:  authSvc,
		gdprSvc:  gdprSvc,
		job:      job,
		cfg:      cfg,
	}, nil
}

// sweeperAdapter passt cleanup.Job an die Scheduler-Schnittstelle an.
type sweeperAdapter struct {
	job *cleanup.Job
}

func (s sweeperAdapter) Run(ctx context.Context) error {
	_, err := s.job.Run(ctx)
	return err
}

func (s sweeperAdapter) RunSessions(ctx context.Context) error {
	_, err := s.job.RunSessions(ctx)
	return err
}

// starteScheduler registriert die konfigurierten Bereinigungszeitpläne und
// startet sie.
func starteScheduler(ctx context.Context, d *deps) (*scheduler.Scheduler, error) {
	sched := scheduler.New(sweeperAdapter{job: d.job}, d.cfg.CleanupSchedule, d.cfg.SessionSweepSchedule, slog.Default())
	if err := sched.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start scheduler: %w", err)
	}
	return sched, nil
}

// runServe startet den API-Server samt Scheduler mit Graceful Shutdown bei
// SIGINT/SIGTERM.
func runServe(cfg *config.Config) error {
	d, err := wire(cfg)
	if err != nil {
		return err
	}
	defer d.db.Close()

	runCtx, cancelRuns := context.WithCancel(context.Background())
	defer cancelRuns()

	sched, err := starteScheduler(runCtx, d)
	if err != nil {
		return err
	}

	rateLimiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig(cfg.RateLimitProMinute))
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:        slog.Default(),
		Verifier:      d.authSvc,
		RateLimiter:   rateLimiter,
		AuthService:   d.authSvc,
		GDPRService:   d.gdprSvc,
		CleanupRunner: d.job,
		DB:            d.db,
		Gatherer:      d.registry,
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	// Stop wartet, bis ein laufender Bereinigungslauf beendet ist. Erst
	// danach wird der Lauf-Context aufgehoben.
	sched.Stop()
	cancelRuns()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker startet die geplanten Bereinigungsläufe und einen kleinen
// HTTP-Endpunkt für /metrics und /health.
func runWorker(cfg *config.Config) error {
	d, err := wire(cfg)
	if err != nil {
		return err
	}
	defer d.db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched, err := starteScheduler(ctx, d)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(d.registry))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := d.db.PingContext(r.Context()); err != nil {
			http.Error(w, "db unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	server := &http.Server{
		Addr:        ":" + cfg.ServerPort,
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
	go func() {
		slog.Info("worker metrics endpoint starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics listen error", slog.String("error", err.Error()))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	slog.Info("worker starting",
		slog.String("cleanup_schedule", cfg.CleanupSchedule),
		slog.String("session_schedule", cfg.SessionSweepSchedule),
	)

	<-stop
	slog.Info("shutting down worker...")

	// Stop wartet, bis ein laufender Bereinigungslauf beendet ist. Erst
	// danach wird der Lauf-Context aufgehoben.
	sched.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("metrics server shutdown failed: %w", err)
	}

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate wendet alle ausstehenden Migrationen an.
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runCleanupOnce führt genau einen Bereinigungslauf aus.
func runCleanupOnce(cfg *config.Config) error {
	d, err := wire(cfg)
	if err != nil {
		return err
	}
	defer d.db.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	bericht, err := d.job.Run(ctx)
	if err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}

	slog.Info("einmaliger bereinigungslauf abgeschlossen",
		slog.Int("antraege_geloescht", bericht.AntraegeGeloescht),
		slog.Int("antraege_anonymisiert", bericht.AntraegeAnonymisiert),
		slog.Int("dokumente_geloescht", bericht.DokumenteGeloescht),
		slog.Int64("sessions_geloescht", bericht.SessionsGeloescht),
	)
	return nil
}

// runHealthcheck fragt den /health-Endpunkt des laufenden Servers ab.
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL maskiert die Zugangsdaten in der Datenbank-URL.
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
