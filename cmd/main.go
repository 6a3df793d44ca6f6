package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"

	"chat-relay/api"
	"chat-relay/auth"
	"chat-relay/delivery"
	"chat-relay/presence"
	"chat-relay/realtime"
	"chat-relay/repositories"
	"chat-relay/runtime/workers"
	"chat-relay/services"
	"chat-relay/socket"
	"chat-relay/typing"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the server lifecycle, and centralizes error reporting.
// Returning the error to main (instead of os.Exit in place) guarantees every
// defer runs, badger close included, on every exit path.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Database (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.INFO))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Repositories & Services
	users := repositories.NewUserRepository(db)
	conversations := repositories.NewConversationRepository(db)
	messages := repositories.NewMessageRepository(db)

	chat := services.NewChatService(log, users, conversations, messages,
		config.MaxContentLength, config.EditWindow)

	// 4. Live state
	registry := realtime.NewRegistry()
	tracker := presence.NewTracker(config.IdleThreshold, config.AwayThreshold, config.HeartbeatTimeout)
	coordinator := typing.NewCoordinator(config.TypingThrottle, config.TypingExpiry)
	router := delivery.NewRouter(log, registry)
	roster := services.NewRosterService(users, tracker, config.RosterLimit)

	// 5. Transport
	verifier := auth.NewVerifier(config.JWTSecret)
	controller := socket.NewController(log, verifier, users, chat, roster,
		registry, tracker, coordinator, router)
	server := api.NewServer(log, verifier, chat, controller)

	// 6. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 7. Background sweeps under supervision
	sup := workers.NewSupervisor(log)
	sup.Add(
		workers.NewTypingSweepWorker(log, coordinator, router, config.TypingSweepInterval),
		workers.NewHeartbeatSweepWorker(log, registry, tracker, coordinator, users, router, config.HeartbeatSweepInterval),
		workers.NewIdleSweepWorker(log, registry, tracker, users, router, config.IdleSweepInterval),
		workers.NewTelemetryWorker(log, registry, coordinator, config.TelemetryInterval),
	)
	go sup.Run(ctx)

	// 8. HTTP server
	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	httpServer := &http.Server{Addr: address, Handler: server.Routes()}

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "address", address, "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 9. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	// 10. Final Cleanup
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown incomplete", "err", err)
	}
	sup.Stop()
	log.Info("Program stopped cleanly")

	return nil
}
