package cli

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/datalens/internal/api/handlers"
	"github.com/cloo-solutions/datalens/internal/config"
	"github.com/cloo-solutions/datalens/internal/database"
	"github.com/cloo-solutions/datalens/internal/jobs"
	"github.com/cloo-solutions/datalens/internal/server"
	"github.com/cloo-solutions/datalens/internal/service"
	"github.com/cloo-solutions/datalens/internal/telemetry"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "", "Port to listen on (overrides config)")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		environment := os.Getenv("ENVIRONMENT")
		if environment == "" {
			environment = "development"
		}
		sampleRate := 0.1
		if environment == "development" {
			sampleRate = 1.0
		}
		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              dsn,
			Environment:      environment,
			TracesSampleRate: sampleRate,
			Debug:            cfg.Debug,
		})
		if err != nil {
			log.Printf("telemetry init failed (continuing without tracing): %v", err)
		} else {
			defer shutdownTelemetry()
		}
	}

	if portFlag, _ := cmd.Flags().GetString("port"); portFlag != "" {
		cfg.Port = portFlag
	}

	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	if !noMigrate {
		if err := database.Migrate(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Println("migrations applied")
	}

	app, err := newAppWithConfig(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()
	log.Println("connected to database")

	validator := service.NewStaticKeyValidator(cfg.APIKeys)
	if validator.Len() == 0 {
		log.Println("warning: no API keys configured, all requests will be rejected")
	}

	var syncWorker *jobs.Worker
	if cfg.SyncWorkerEnabled {
		processor := jobs.NewSyncWorker(app.ConnRepo, app.Catalog)
		syncWorker = jobs.NewWorker("catalog-sync", processor, cfg.SyncPollInterval)
		go syncWorker.Start(ctx)
	}

	router := server.NewRouter(server.RouterConfig{
		AuthValidator:  validator,
		QueryHandler:   handlers.NewQueryHandler(app.Orchestrator),
		IngestHandler:  handlers.NewIngestHandler(app.Ingest),
		CatalogHandler: handlers.NewCatalogHandler(app.Catalog),
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	if syncWorker != nil {
		syncWorker.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("server exited")
	return nil
}
