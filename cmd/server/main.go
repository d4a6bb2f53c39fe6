package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"courier/auth"
	"courier/domain"
	"courier/infrastructure/httpapi"
	"courier/infrastructure/ws"
	"courier/internal"
	"courier/observability"
	"courier/repositories"
	"courier/runtime"
	"courier/runtime/workers"
	"courier/services"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the server lifecycle, and
// centralizes error reporting so every defer executes before the process
// exits.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := observability.NewLogger(config.LogLevel)

	// 2. Storage (BadgerDB + Bluge)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	index, err := repositories.NewMessageIndex(bluge.DefaultConfig(config.BlugeFilepath), log)
	if err != nil {
		return fmt.Errorf("search index opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing search index...")
		_ = index.Close()
	}()

	userRepository := repositories.NewUserRepository(db)
	messageRepository := repositories.NewMessageRepository(db, log)

	// 3. Live runtime: presence, routing, async persistence
	promRegistry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(promRegistry)

	registry := runtime.NewRegistry()
	router := runtime.NewRouter(log, registry, metrics)
	persistQueue := make(chan domain.Message, config.PersistBufferSize)

	sup := workers.NewSupervisor(log, config.RestartInterval)
	sup.Add(
		workers.NewPersistWorker(log, persistQueue, messageRepository, index),
		workers.NewTelemetryWorker(log, config.TelemetryInterval, registry, metrics),
	)

	// 4. Services & transport
	tokens := auth.NewTokenManager(config.JWTSecret, config.AuthTokenDuration)
	authService := services.NewAuthService(userRepository, tokens)
	messageService := services.NewMessageService(log, messageRepository, userRepository,
		index, router, config.MaxContentLength)

	gateway := ws.NewGateway(log, registry, router, authService, persistQueue,
		metrics, config.ConnectionBufferSize)
	limiter := httpapi.NewRateLimiter(config.AuthRatePerMinute)
	defer limiter.Stop()

	api := httpapi.NewAPI(log, authService, userRepository, messageService,
		registry, gateway, limiter, promRegistry)

	// 5. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workersDone := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(workersDone)
	}()

	// 6. HTTP server
	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	server := &http.Server{
		Addr:              address,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting server", "address", address, "at", time.Now().UTC())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	// 7. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	// 8. Final Cleanup
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("Forced shutdown", "error", err)
	}
	// Workers drain their queues before the stores close.
	sup.Stop()
	<-workersDone
	log.Info("Program stopped cleanly")

	return nil
}
