package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/prgrms-be-devcourse/NBE4-5-3-Team02-sub000/internal/api"
	"github.com/prgrms-be-devcourse/NBE4-5-3-Team02-sub000/internal/broker"
	"github.com/prgrms-be-devcourse/NBE4-5-3-Team02-sub000/internal/config"
	"github.com/prgrms-be-devcourse/NBE4-5-3-Team02-sub000/internal/gateway"
	"github.com/prgrms-be-devcourse/NBE4-5-3-Team02-sub000/internal/handlers"
	"github.com/prgrms-be-devcourse/NBE4-5-3-Team02-sub000/internal/session"
	"github.com/prgrms-be-devcourse/NBE4-5-3-Team02-sub000/internal/store"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Str("instance", cfg.InstanceID).
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Str("instance", cfg.InstanceID).
			Logger()
	}

	ctx := context.Background()

	// Redis is both the broker and the message log
	redisStore, err := store.NewRedisStore(ctx, cfg.RedisURL, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer redisStore.Close()
	logger.Info().Msg("connected to Redis")

	registry := session.NewRegistry()
	bridge := broker.New(redisStore.Client(), registry, redisStore, cfg.InstanceID, logger)

	gw := gateway.New(registry, bridge, redisStore, gateway.Options{
		SendBuffer:      cfg.SendBuffer,
		WriteTimeout:    cfg.WriteTimeout,
		PingInterval:    cfg.PingInterval,
		MaxMessageBytes: cfg.MaxMessageBytes,
		AllowedOrigins:  cfg.AllowedOrigins,
	}, logger)

	h := handlers.NewHandler(redisStore, handlers.Relay{
		Gateway:  gw,
		Registry: registry,
		Bridge:   bridge,
	})

	// Create router
	router := api.NewRouter(logger, h, gw, api.Options{AllowedOrigins: cfg.AllowedOrigins})

	// Websocket connections outlive any request timeout, so only the
	// header read is bounded.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting chat relay")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	// Graceful shutdown with 30 second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	if err := bridge.Close(); err != nil {
		logger.Error().Err(err).Msg("broker bridge close failed")
	}

	logger.Info().Msg("server stopped")
}
