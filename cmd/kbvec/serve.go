package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vectorhaus/kbvec"
	"github.com/vectorhaus/kbvec/infrastructure/api"
	"github.com/vectorhaus/kbvec/internal/config"
	"github.com/vectorhaus/kbvec/internal/log"
)

func serveCmd() *cobra.Command {
	var (
		configFile string
		envFile    string
		host       string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: `Start the HTTP API server.

Configuration is loaded in the following order (later sources override earlier):
  1. Default values
  2. .env file (if --env-file specified or .env exists in current directory)
  3. Environment variables
  4. YAML config file (if --config specified)
  5. Command line flags

Environment variables:
  HOST                       Server host to bind to (default: 0.0.0.0)
  PORT                       Server port to listen on (default: 8080)
  DATA_DIR                   Data directory (default: .kbvec)
  DB_URL                     Database URL (default: sqlite:///{data_dir}/kbvec.db)
  LOG_LEVEL                  Log level: DEBUG, INFO, WARN, ERROR (default: INFO)
  LOG_FORMAT                 Log format: pretty, json (default: pretty)
  API_KEYS                   Comma-separated list of valid API keys
  SEARCH_LIMIT               Default result count for search (default: 10)
  SCORE_THRESHOLD            Minimum similarity score (default: 0.3)

  EMBEDDING_*                Embedding provider configuration
    BASE_URL                 Base URL (e.g., https://api.openai.com/v1)
    MODEL                    Model identifier (default: text-embedding-3-small)
    API_KEY                  API key for authentication
    BATCH_SIZE               Texts per embedding request (default: 100)
    TIMEOUT                  Request timeout in seconds (default: 60)
    MAX_RETRIES              Retry attempts (default: 5)

  GENERATION_*               Answer generation provider configuration
    BASE_URL                 Base URL
    MODEL                    Chat model (default: gpt-4o-mini)
    API_KEY                  API key for authentication
    FAILURE_THRESHOLD        Circuit breaker failure threshold (default: 5)
    BREAKER_TIMEOUT          Circuit breaker cooldown in seconds (default: 60)

  QUEUE_*                    Background queue configuration
    WORKER_COUNT             Concurrent workers (default: 4)
    POLL_INTERVAL_SECONDS    Claim poll interval (default: 1)
    MAX_RETRIES              Retry budget per task (default: 3)
    RETRY_DELAY_SECONDS      Base retry delay (default: 30)
    RETENTION_HOURS          Terminal task retention (default: 168)

  CHUNKING_MAX_TOKENS        Tokens per chunk (default: 512)
  CHUNKING_OVERLAP_TOKENS    Token overlap between chunks (default: 64)

  CACHE_ENABLED              Enable the semantic answer cache (default: true)
  CACHE_THRESHOLD            Cache hit similarity threshold (default: 0.95)
  CACHE_TTL_HOURS            Cache entry lifetime (default: 24)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configFile, envFile, host, port)
		},
	}

	cmd.Flags().StringVar(&configFile, "config", "", "Path to YAML config file")
	cmd.Flags().StringVar(&envFile, "env-file", "", "Path to .env file (default: .env in current directory)")
	cmd.Flags().StringVar(&host, "host", "", "Server host to bind to (default: 0.0.0.0)")
	cmd.Flags().IntVar(&port, "port", 0, "Server port to listen on (default: 8080)")

	return cmd
}

func runServe(configFile, envFile, host string, port int) error {
	cfg, err := loadConfig(configFile, envFile)
	if err != nil {
		return err
	}

	// Flags take precedence over env vars and the config file.
	cfg = applyServeOverrides(cfg, host, port)

	addr := cfg.Addr()

	if err := cfg.EnsureDataDir(); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	logger := log.NewLogger(cfg)
	slogger := logger.Slog()

	slogger.Info("starting kbvec",
		slog.String("version", version),
		slog.String("addr", addr),
		slog.String("db_url", cfg.DBURL()),
		slog.Int("workers", cfg.Queue().WorkerCount()),
	)

	client, err := kbvec.New(
		kbvec.WithConfig(cfg),
		kbvec.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("create kbvec client: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client.Start(ctx)
	defer func() {
		if err := client.Shutdown(context.Background()); err != nil {
			slogger.Error("failed to close kbvec client", slog.Any("error", err))
		}
	}()

	// Build the API router on top of the client's services.
	apiServer := api.NewAPIServer(client)
	router := apiServer.Router()
	apiServer.MountRoutes()

	router.Get("/health", healthHandler)
	router.Get("/healthz", healthHandler)

	// Root endpoint with API info.
	router.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, `{"name":"kbvec","version":"%s","api":"/api/v1"}`, version)
	})

	server := api.NewServer(addr, slogger)
	server.Router().Mount("/", router)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		slogger.Info("shutting down server")
		cancel()
		if err := server.Shutdown(context.Background()); err != nil {
			slogger.Error("shutdown error", slog.Any("error", err))
		}
	}()

	slogger.Info("starting server", slog.String("addr", addr))
	if err := server.Start(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy"}`))
}

// applyServeOverrides applies command line flag overrides to the config.
func applyServeOverrides(cfg config.AppConfig, host string, port int) config.AppConfig {
	var opts []config.AppConfigOption

	if host != "" {
		opts = append(opts, config.WithHost(host))
	}
	if port != 0 {
		opts = append(opts, config.WithPort(port))
	}

	return cfg.Apply(opts...)
}
