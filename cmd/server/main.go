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
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"

	"workchat/api"
	"workchat/auth"
	"workchat/internal"
	"workchat/moderation"
	"workchat/notifications"
	"workchat/realtime"
	"workchat/repositories"
	"workchat/runtime"
	"workchat/runtime/workers"
	"workchat/search"
	"workchat/services"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the server lifecycle, and
// centralizes error reporting, so every defer executes before exit.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Storage (BadgerDB) and the search index
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.INFO))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	index, err := search.Open(config.BlugeFilepath, log)
	if err != nil {
		return fmt.Errorf("search index opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing search index...")
		_ = index.Close()
	}()

	// 3. Moderation
	censorChar, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return err
	}
	moderator, err := moderation.NewModerator(config.CensoredWords, censorChar)
	if err != nil {
		return fmt.Errorf("moderator setup failed: %w", err)
	}

	// 4. Repositories & services
	identityRepository := repositories.NewIdentityRepository(db, log)
	roomRepository := repositories.NewRoomRepository(db, log)
	messageRepository := repositories.NewMessageRepository(db, log)

	registry := runtime.NewRegistry()
	tokens := auth.NewTokenService(config.JWTSecret, config.AuthTokenDuration)

	identityService := services.NewIdentityService(identityRepository, tokens, log)
	presenceService := services.NewPresenceService(identityService, identityRepository,
		roomRepository, registry, log)
	roomService := services.NewRoomService(identityService, presenceService,
		roomRepository, messageRepository, index, registry, log)

	pushJobs := make(chan notifications.Job, config.NotifierBufferSize)
	dispatcher := notifications.NewDispatcher(
		notifications.NewLogGateway(log), identityRepository, log)

	chatService := services.NewChatService(identityService, presenceService,
		roomRepository, messageRepository, moderator, index, registry, pushJobs, log)

	// 5. Supervision
	sup := workers.NewSupervisor(log, config.RestartInterval)
	sup.Add(workers.NewNotifier(dispatcher, pushJobs, log))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go sup.Run(ctx)

	// 6. HTTP & websocket surface
	restServer := api.NewServer(identityService, roomService, chatService,
		tokens, config.SyncAPIKeyHash, log)
	wsHandler := realtime.NewHandler(chatService, roomService, presenceService,
		registry, config.ConnectionBufferSize, log)

	mux := restServer.Routes()
	mux.Handle("/ws", wsHandler)

	if config.InspectPort > 0 {
		internal.StartDebugServer(db, config.InspectPort, nil, func() map[string]any {
			return map[string]any{
				"Status": "Serving",
				"Time":   time.Now().Format(time.RFC822),
			}
		})
		log.Info("Storage inspector started", "port", config.InspectPort)
	}

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	server := &http.Server{Addr: address, Handler: mux}

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting server", "address", address, "at", time.Now().UTC())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	// 7. Wait for stop or error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	// 8. Final cleanup
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err = server.Shutdown(shutdownCtx); err != nil {
		log.Warn("Server shutdown was not clean", "error", err)
	}
	sup.Stop()
	log.Info("Program stopped cleanly")

	return nil
}
