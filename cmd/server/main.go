package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"taskchat-gateway/internal/auth"
	"taskchat-gateway/internal/config"
	"taskchat-gateway/internal/database"
	"taskchat-gateway/internal/gateway"
	"taskchat-gateway/internal/handlers"
	"taskchat-gateway/internal/services"
	"taskchat-gateway/pkg/logger"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize database
	db, err := database.NewPostgresDB(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Realtime gateway: one run loop owns the session registry, room
	// subscriptions and presence state.
	gw := gateway.New()
	go gw.Run()

	// Initialize services
	authService := auth.NewService(db, cfg)
	roomService := services.NewRoomService(db, gw)

	// Initialize handlers
	authHandlers := handlers.NewAuthHandlers(authService)
	roomHandlers := handlers.NewRoomHandlers(roomService, authService, gw)
	wsHandlers := handlers.NewWebSocketHandlers(authService, gw)

	// Setup routes
	mux := http.NewServeMux()
	setupRoutes(mux, authHandlers, roomHandlers, wsHandlers)

	// Create server
	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      corsMiddleware(mux),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	logger.Info("Server started on http://localhost%s", cfg.Server.Port)
	logger.Info("WebSocket endpoint: ws://localhost%s/ws", cfg.Server.Port)

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

	gw.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Forced shutdown: %v", err)
	}
}

func setupRoutes(mux *http.ServeMux, authHandlers *handlers.AuthHandlers, roomHandlers *handlers.RoomHandlers, wsHandlers *handlers.WebSocketHandlers) {
	// Auth routes
	mux.HandleFunc("/login", authHandlers.Login)
	mux.HandleFunc("/register", authHandlers.Register)

	// Chat room routes
	mux.HandleFunc("/chatrooms", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chatrooms" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}

		switch r.Method {
		case http.MethodGet:
			roomHandlers.ListRooms(w, r)
		case http.MethodPost:
			roomHandlers.CreateRoom(w, r)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})

	// Chat room sub-routes
	mux.HandleFunc("/chatrooms/", func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(r.URL.Path, "/")
		if len(parts) < 3 || parts[2] == "" {
			http.Error(w, "invalid path", http.StatusBadRequest)
			return
		}

		// /chatrooms/{id}
		if len(parts) == 3 && r.Method == http.MethodGet {
			roomHandlers.GetRoom(w, r)
			return
		}

		// /chatrooms/{id}/members
		if len(parts) == 4 && parts[3] == "members" {
			switch r.Method {
			case http.MethodGet:
				roomHandlers.GetRoomMembers(w, r)
			case http.MethodPost:
				roomHandlers.AddMember(w, r)
			default:
				http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			}
			return
		}

		// /chatrooms/{id}/members/{memberId}
		if len(parts) == 5 && parts[3] == "members" && r.Method == http.MethodDelete {
			roomHandlers.RemoveMember(w, r)
			return
		}

		// /chatrooms/{id}/force-add
		if len(parts) == 4 && parts[3] == "force-add" && r.Method == http.MethodPost {
			roomHandlers.ForceAddMember(w, r)
			return
		}

		// /chatrooms/{id}/messages
		if len(parts) == 4 && parts[3] == "messages" {
			switch r.Method {
			case http.MethodGet:
				roomHandlers.GetHistory(w, r)
			case http.MethodPost:
				roomHandlers.PostMessage(w, r)
			default:
				http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			}
			return
		}

		// /chatrooms/{id}/messages/delete
		if len(parts) == 5 && parts[3] == "messages" && parts[4] == "delete" && r.Method == http.MethodPost {
			roomHandlers.DeleteMessages(w, r)
			return
		}

		// /chatrooms/{id}/clear
		if len(parts) == 4 && parts[3] == "clear" && r.Method == http.MethodPost {
			roomHandlers.ClearMessages(w, r)
			return
		}

		http.Error(w, "endpoint not found", http.StatusNotFound)
	})

	// WebSocket route
	mux.HandleFunc("/ws", wsHandlers.HandleWebSocket)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
