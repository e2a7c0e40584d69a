// Command treenoted is the treenote API server.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"treenote/internal/api"
	"treenote/internal/auth"
	"treenote/internal/cfg"
	"treenote/internal/db"
	"treenote/internal/logging"
	"treenote/internal/tree"
)

func main() {
	// Parse flags
	listen := flag.String("listen", "", "Address to listen on (default: :3001)")
	dbURL := flag.String("db", "", "Database URL (default: treenote.db)")
	configPath := flag.String("config", "", "Optional YAML config file")
	flag.Parse()

	config, err := loadConfig(*configPath, *listen, *dbURL)
	if err != nil {
		bootLog := logging.New(os.Stderr, "console", false)
		bootLog.Fatal().Err(err).Msg("invalid config")
	}

	log := logging.New(os.Stderr, config.LogFormat, config.Debug)
	log.Info().
		Str("listen", config.Listen).
		Str("db", config.DBURL).
		Str("registration", string(config.AdmissionPolicy())).
		Str("version", config.Version).
		Bool("debug", config.Debug).
		Msg("treenoted starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, config, log); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
	log.Info().Msg("treenoted stopped")
}

// loadConfig layers the optional config file, the environment and the
// non-empty flag values, then validates the result.
func loadConfig(path, listen, dbURL string) (*cfg.Config, error) {
	config := cfg.FromEnv()
	if path != "" {
		var err error
		config, err = cfg.Load(path)
		if err != nil {
			return nil, err
		}
	}
	if listen != "" {
		config.Listen = listen
	}
	if dbURL != "" {
		config.DBURL = dbURL
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// run serves the API until ctx is cancelled, then drains connections.
func run(ctx context.Context, config *cfg.Config, log zerolog.Logger) error {
	database, err := db.Open(config.DBURL)
	if err != nil {
		return err
	}
	defer database.Close()
	log.Info().Str("driver", database.Driver().String()).Msg("database opened")

	srv := &http.Server{
		Addr:              config.Listen,
		Handler:           newHandler(database, config, log),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", config.Listen).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")

		// Give connections 30s to finish
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// newHandler wires the engine, token service and middleware around database.
func newHandler(database *db.DB, config *cfg.Config, log zerolog.Logger) http.Handler {
	tokens := auth.NewTokenService([]byte(config.JWTSecret), config.JWTIssuer, config.TokenTTL)
	engine := tree.NewEngine(database)
	handler := api.NewHandler(database, engine, config, tokens, log)
	return api.WithDefaults(api.NewRouter(handler), config, log)
}
