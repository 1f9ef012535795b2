/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the beanserver coffee-token ledger. Handles
  configuration, storage location setup, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (if present) and environment configuration
  2. Apply command-line flag overrides
  3. Optionally create/migrate the configured databases (-init)
  4. Configure HTTP router
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port          HTTP server port (overrides PORT)
  -primary-db    Primary SQLite path (overrides BEANSERVER_PRIMARY_DB)
  -secondary-db  Secondary SQLite path (overrides BEANSERVER_SECONDARY_DB)
  -init          Create and migrate the configured databases, then exit

STORAGE:
  The server never creates databases while serving requests; it re-resolves
  the primary/secondary pair on every request and fails closed when neither
  is openable. Run once with -init to create them.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Exit

EXAMPLES:
  # Create both databases, then serve
  ./server -primary-db=/srv/bean.db -secondary-db=/backup/bean.db -init
  ./server -primary-db=/srv/bean.db -secondary-db=/backup/bean.db

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/locator.go: Primary/secondary failover
*/
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Spuriosity1/beanserver/api"
	"github.com/Spuriosity1/beanserver/internal/config"
	"github.com/Spuriosity1/beanserver/store/sqlite"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Flags
	port := flag.String("port", "", "HTTP server port (overrides PORT)")
	primaryDB := flag.String("primary-db", "", "primary SQLite path (overrides BEANSERVER_PRIMARY_DB)")
	secondaryDB := flag.String("secondary-db", "", "secondary SQLite path (overrides BEANSERVER_SECONDARY_DB)")
	initDB := flag.Bool("init", false, "create and migrate the configured databases, then exit")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file found, using environment")
	}

	// Flag overrides are applied before validation so a flags-only
	// invocation works without any environment.
	if *primaryDB != "" {
		os.Setenv("BEANSERVER_PRIMARY_DB", *primaryDB)
	}
	if *secondaryDB != "" {
		os.Setenv("BEANSERVER_SECONDARY_DB", *secondaryDB)
	}
	if *port != "" {
		os.Setenv("PORT", *port)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	if *initDB {
		for _, path := range []string{cfg.PrimaryDB, cfg.SecondaryDB} {
			if path == "" {
				continue
			}
			store, err := sqlite.New(path)
			if err != nil {
				log.Fatal().Err(err).Str("path", path).Msg("failed to initialize database")
			}
			store.Close()
			log.Info().Str("path", path).Msg("database initialized")
		}
		return
	}

	// Initialize handler over the failover pair
	handler := api.NewHandler(sqlite.Locator{
		Primary:   cfg.PrimaryDB,
		Secondary: cfg.SecondaryDB,
	})
	handler.Log = log.Logger

	// Create server
	server := &http.Server{
		Addr:         cfg.HTTPAddress(),
		Handler:      api.NewRouter(handler),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Str("primary", cfg.PrimaryDB).
			Str("secondary", cfg.SecondaryDB).
			Msg("beanserver starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
