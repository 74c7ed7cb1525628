package ws

import (
	"database/sql"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"

	"github.com/erazemk/najdeno/internal/auth"
	"github.com/erazemk/najdeno/internal/store"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The browser client connects from the SPA origin; access control
	// happens through the token, not the Origin header.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler upgrades authenticated match participants to a websocket
// subscribed to one match room.
type Handler struct {
	DB        *sql.DB
	Hub       *Hub
	JWTSecret string
}

// ServeHTTP handles GET /ws?match_id=N&token=T. Browsers cannot set an
// Authorization header on a websocket handshake, so the token rides in
// the query string.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	matchID, err := strconv.ParseInt(r.URL.Query().Get("match_id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid match_id", http.StatusBadRequest)
		return
	}

	claims, err := auth.ValidateToken(h.JWTSecret, r.URL.Query().Get("token"))
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	revoked, err := store.IsTokenRevoked(r.Context(), h.DB, claims.ID)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if revoked {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	match, err := store.GetMatch(r.Context(), h.DB, matchID)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if match == nil {
		http.Error(w, "match not found", http.StatusNotFound)
		return
	}
	if !match.HasParticipant(claims.UserID) {
		http.Error(w, "not a participant", http.StatusForbidden)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := newClient(h.Hub, conn, matchID, claims.UserID)
	h.Hub.Join(matchID, client)
	slog.Info("websocket connected", "match_id", matchID, "user_id", claims.UserID)

	go client.writePump()
	go client.readPump()
}
