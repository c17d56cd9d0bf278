package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"storefront/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	logger := config.NewLogger(cfg.Logger)

	app, cleanup, err := NewApp(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise application")
	}
	defer cleanup()

	go func() {
		logger.Info().Str("port", cfg.Server.Port).Msg("starting server")
		if err := app.Listen(cfg.Server.Port); err != nil {
			logger.Error().Err(err).Msg("server stopped")
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down server")

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Error().Err(err).Msg("error during server shutdown")
	}
	logger.Info().Msg("server gracefully stopped")
}
