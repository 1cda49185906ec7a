package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/carecenter/dashboard/internal/config"
	"github.com/carecenter/dashboard/internal/platform/sandbox"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "dashboard-server",
		Short: "Care center administration API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(seedCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var seed bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(seed)
		},
	}
	cmd.Flags().BoolVar(&seed, "seed", false, "Fill the store with demo data before serving")
	return cmd
}

// newLogger writes JSON to stdout, or a console format in development.
func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg != nil && cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	level := zerolog.InfoLevel
	if cfg != nil {
		if l, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && l != zerolog.NoLevel {
			level = l
		}
	}
	return logger.Level(level)
}

// loadConfig loads and validates the configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// signingKey returns JWT_SECRET. Development runs without one get a random
// key, so tokens do not survive a restart.
func signingKey(cfg *config.Config, logger zerolog.Logger) ([]byte, error) {
	if cfg.JWTSecret != "" {
		return []byte(cfg.JWTSecret), nil
	}
	key, err := randomHex(32)
	if err != nil {
		return nil, err
	}
	logger.Warn().Msg("JWT_SECRET not set, using a random signing key")
	return []byte(key), nil
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func runServer(seed bool) error {
	// Config
	cfg, err := loadConfig()
	if err != nil {
		l := newLogger(nil)
		l.Fatal().Err(err).Msg("failed to load config")
	}

	// Logger
	logger := newLogger(cfg)

	// Storage
	ctx := context.Background()
	st, err := openStorage(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open storage")
	}
	defer st.close()

	key, err := signingKey(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create signing key")
	}
	srv, err := newServer(cfg, st, key, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build server")
	}
	defer srv.Close()

	if err := bootstrapAdmin(ctx, srv.users, os.Getenv("BOOTSTRAP_ADMIN_USER"), os.Getenv("BOOTSTRAP_ADMIN_PASSWORD"), logger); err != nil {
		logger.Fatal().Err(err).Msg("failed to bootstrap administrator")
	}
	if seed {
		if _, err := srv.seeder.Run(ctx, sandbox.DefaultSeedConfig()); err != nil {
			logger.Fatal().Err(err).Msg("failed to seed demo data")
		}
	}

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("storage", cfg.Storage).Str("version", version).Msg("starting server")
		if err := srv.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.echo.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
