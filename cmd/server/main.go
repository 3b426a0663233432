package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chat-sync/internal/auth"
	"chat-sync/internal/config"
	"chat-sync/internal/database"
	"chat-sync/internal/handlers"
	"chat-sync/internal/models"
	"chat-sync/internal/pubsub"
	"chat-sync/internal/services"
	"chat-sync/internal/websocket"
	"chat-sync/pkg/logger"
)

func main() {
	// Load configuration
	cfg := config.Load()
	logger.Init(logger.Config{
		Level:       cfg.Log.Level,
		Pretty:      cfg.Log.Pretty,
		ServiceName: "chat-sync",
	})
	models.AvatarBaseURL = cfg.Sync.AvatarBaseURL

	// Initialize database
	db, err := database.NewPostgresDB(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Initialize push transport
	transport, err := newTransport(cfg, db)
	if err != nil {
		logger.Fatal("Failed to start %s push transport: %v", cfg.Push.Driver, err)
	}
	defer transport.Close()

	// Initialize services
	gate := services.NewSetupGate(db)
	if err := gate.Check(context.Background()); err != nil {
		logger.Error("Database is not ready, requests will fail until it is fixed: %v", err)
	}
	authService := auth.NewService(db, cfg)
	registry := services.NewSessionRegistry(services.SessionDeps{
		Backend:         db,
		Transport:       transport,
		Gate:            gate,
		DuplicateWindow: cfg.Sync.DuplicateWindow,
	}, cfg.Sync.SessionIdleTimeout)

	// Initialize WebSocket hub manager
	hubManager := websocket.NewManager()

	// Initialize handlers
	roomHandlers := handlers.NewRoomHandlers(authService, registry)
	messageHandlers := handlers.NewMessageHandlers(authService, registry)
	wsHandlers := handlers.NewWebSocketHandlers(authService, registry, hubManager)

	// Create server
	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      handlers.NewRouter(roomHandlers, messageHandlers, wsHandlers),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	l := logger.L()
	l.Info().Str("addr", cfg.Server.Port).Str("push_driver", cfg.Push.Driver).Msg("sync agent started")
	printAPIEndpoints()

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Server shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server shutdown error: %v", err)
	}
	hubManager.Shutdown()
	registry.Shutdown()
}

func newTransport(cfg *config.Config, db *database.PostgresDB) (pubsub.Transport, error) {
	switch cfg.Push.Driver {
	case "memory":
		return pubsub.NewMemoryTransport(), nil
	case "redis":
		return pubsub.NewRedisTransport(pubsub.RedisConfig{
			Address:  cfg.Push.RedisAddr,
			Password: cfg.Push.RedisPassword,
			DB:       cfg.Push.RedisDB,
		})
	case "websocket":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return websocket.Dial(ctx, cfg.Push.WebSocketURL, nil)
	case "postgres", "":
		return database.NewNotifyTransport(db.Pool()), nil
	default:
		return nil, fmt.Errorf("unknown push driver %q", cfg.Push.Driver)
	}
}

func printAPIEndpoints() {
	logger.Info("API endpoints:")
	logger.Info("   GET  /rooms")
	logger.Info("   POST /rooms/refresh")
	logger.Info("   POST /rooms/{id}/active")
	logger.Info("   POST /rooms/{id}/read")
	logger.Info("   GET  /rooms/{id}/messages")
	logger.Info("   POST /messages")
	logger.Info("   GET  /ws?token=")
}
