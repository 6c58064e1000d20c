package handlers

import (
	"errors"
	"net/http"
	"strings"

	"taskchat-gateway/internal/auth"
	"taskchat-gateway/internal/gateway"
	"taskchat-gateway/pkg/logger"

	"github.com/gorilla/websocket"
)

type WebSocketHandlers struct {
	authService *auth.Service
	gw          *gateway.Gateway
	upgrader    websocket.Upgrader
}

func NewWebSocketHandlers(authService *auth.Service, gw *gateway.Gateway) *WebSocketHandlers {
	return &WebSocketHandlers{
		authService: authService,
		gw:          gw,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // Configure for production
		},
	}
}

// HandleWebSocket authenticates the bearer token and admits the connection.
// Auth failure is terminal: the client gets a refusal and must reconnect
// with a fresh token. No session state is kept for refused connections.
func (h *WebSocketHandlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	tokenStr := extractToken(r)
	if tokenStr == "" {
		http.Error(w, "missing authorization token", http.StatusUnauthorized)
		return
	}

	userID, err := h.authService.VerifyToken(tokenStr)
	if err != nil {
		if errors.Is(err, auth.ErrNoSigningKey) {
			logger.Error("Refusing websocket connection: %v", err)
			http.Error(w, "server configuration error", http.StatusInternalServerError)
			return
		}
		logger.Warn("Refusing websocket connection: %v", err)
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Upgrade error: %v", err)
		return
	}

	h.gw.Admit(conn, userID)
}

// extractToken reads the credential from the Authorization header, falling
// back to the token query parameter for browser websocket clients that
// cannot set headers on the handshake.
func extractToken(r *http.Request) string {
	bearerToken := r.Header.Get("Authorization")
	if strings.HasPrefix(bearerToken, "Bearer ") {
		return strings.TrimPrefix(bearerToken, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
