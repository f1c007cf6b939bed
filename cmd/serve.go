package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/ragstore/ragstore/db"
	"github.com/ragstore/ragstore/internal/api"
	"github.com/ragstore/ragstore/internal/config"
	"github.com/ragstore/ragstore/internal/embedder"
	"github.com/ragstore/ragstore/internal/embeddings"
	"github.com/ragstore/ragstore/internal/log"
	"github.com/ragstore/ragstore/internal/observability"
)

// Server timeout configuration.
const (
	readHeaderTimeout = 10 * time.Second
	readTimeout       = 30 * time.Second
	writeTimeout      = 30 * time.Second
	idleTimeout       = 2 * time.Minute
	shutdownTimeout   = 30 * time.Second
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the embedding store HTTP API server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "127.0.0.1:8080", "server address (host:port)")
	rootCmd.AddCommand(serveCmd)
}

// runServe initializes and starts the HTTP API server.
func runServe(baseCtx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := validateAddr(serveAddr); err != nil {
		return fmt.Errorf("invalid address %q: %w", serveAddr, err)
	}

	logger := log.New(log.Config{Level: log.ParseLevel(cfg.LogLevel), JSON: cfg.LogJSON})
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(baseCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting embedding store server",
		"version", AppVersion,
		"dimension", cfg.EmbeddingDim,
	)

	if cfg.TracingEnabled() {
		shutdown, err := observability.Setup(ctx, observability.Config{
			Endpoint:    cfg.Tracing.Endpoint,
			Environment: cfg.Tracing.Environment,
			ServiceName: cfg.Tracing.ServiceName,
		}, logger)
		if err != nil {
			return fmt.Errorf("setting up tracing: %w", err)
		}
		defer func() {
			flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer flushCancel()
			if err := shutdown(flushCtx); err != nil {
				logger.Warn("trace flush failed", "error", err)
			}
		}()
	}

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	pool, err := pgxpool.New(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return fmt.Errorf("creating connection pool: %w", err)
	}
	defer pool.Close()

	querier := embeddings.NewPGQuerier(pool, cfg.HNSWEfSearch)

	// The vector column width is fixed at migration time; refuse to serve
	// when the configuration disagrees with the deployed schema.
	if err := querier.VerifyDimension(ctx, cfg.EmbeddingDim); err != nil {
		return fmt.Errorf("verifying schema dimension: %w", err)
	}

	store := embeddings.New(querier, cfg.EmbeddingDim, logger)

	var emb api.Embedder
	if cfg.EmbedderEnabled() {
		client, err := embedder.New(cfg.Embedder.APIKey, cfg.Embedder.Model, cfg.EmbeddingDim, logger,
			embedder.WithBaseURL(cfg.Embedder.BaseURL))
		if err != nil {
			return fmt.Errorf("creating embedder: %w", err)
		}
		emb = client
		logger.Info("embedder gateway enabled", "model", cfg.Embedder.Model)
	} else {
		logger.Info("no embedder API key configured, accepting pre-computed vectors only")
	}

	apiServer, err := api.NewServer(api.ServerConfig{
		Logger:           logger,
		Store:            store,
		Embedder:         emb,
		Pool:             pool,
		WriteToken:       cfg.WriteToken,
		AdminToken:       cfg.AdminToken,
		DefaultThreshold: cfg.SearchThreshold,
		DefaultLimit:     cfg.SearchLimit,
		MaxLimit:         config.MaxSearchLimit,
		TrustProxy:       cfg.TrustProxy,
		RateBurst:        cfg.RateBurst,
		Version:          AppVersion,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	srv := &http.Server{
		Addr:              serveAddr,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	logger.Info("HTTP server ready",
		"addr", serveAddr,
		"api", "/api/v1/*",
		"health", "/health, /ready",
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down HTTP server")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down server: %w", err)
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTP server: %w", err)
	}
}
