package api

import (
	"database/sql"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/erazemk/najdeno/internal/model"
	"github.com/erazemk/najdeno/internal/store"
)

// Notifier pushes real-time events to a match's connected participants.
// Delivery is best effort: persistence succeeds or fails on its own.
type Notifier interface {
	Broadcast(matchID int64, eventType string, payload any) error
}

// notify broadcasts without letting delivery problems reach the caller.
func notify(n Notifier, matchID int64, eventType string, payload any) {
	if n == nil {
		return
	}
	if err := n.Broadcast(matchID, eventType, payload); err != nil {
		slog.Warn("realtime delivery failed", "match_id", matchID, "event", eventType, "error", err)
	}
}

// MessagesHandler handles conversation messages.
type MessagesHandler struct {
	DB       *sql.DB
	Notifier Notifier
}

type sendMessageRequest struct {
	MatchID  int64                 `json:"matchId"`
	Content  string                `json:"content"`
	Kind     string                `json:"kind"`
	Metadata model.MessageMetadata `json:"metadata"`
}

// Send handles POST /api/messages: persists the message, then pushes it to
// the match room.
func (h *MessagesHandler) Send(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r.Context())

	var req sendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	msg, err := store.CreateMessage(r.Context(), h.DB, req.MatchID, user.ID,
		req.Content, req.Kind, req.Metadata)
	if err != nil {
		storeError(w, err, "failed to send message")
		return
	}

	notify(h.Notifier, msg.MatchID, "receive_message", msg)
	jsonResponse(w, http.StatusCreated, msg)
}

// List handles GET /api/messages/match/{id}. Listing marks the caller's
// unread messages in the match as read; the returned page still shows the
// flags as they were.
func (h *MessagesHandler) List(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r.Context())
	matchID, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid match id")
		return
	}

	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	messages, total, err := store.ListMessages(r.Context(), h.DB, matchID, user.ID, page, limit)
	if err != nil {
		storeError(w, err, "failed to list messages")
		return
	}
	if messages == nil {
		messages = []model.Message{}
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = store.MessagesDefaultLimit
	}
	jsonPage(w, "messages", messages, total, page, limit)
}

// Conversations handles GET /api/messages/conversations: the caller's
// inbox, most recently active first.
func (h *MessagesHandler) Conversations(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r.Context())
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	conversations, total, err := store.ListConversations(r.Context(), h.DB, user.ID, page, limit)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to list conversations")
		return
	}
	if conversations == nil {
		conversations = []model.Conversation{}
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = store.DefaultLimit
	}
	jsonPage(w, "conversations", conversations, total, page, limit)
}

// MarkRead handles PUT /api/messages/match/{id}/read.
func (h *MessagesHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r.Context())
	matchID, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid match id")
		return
	}

	match, err := store.GetMatch(r.Context(), h.DB, matchID)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to get match")
		return
	}
	if match == nil {
		jsonError(w, http.StatusNotFound, "match not found")
		return
	}
	if !match.HasParticipant(user.ID) {
		jsonError(w, http.StatusForbidden, "not a participant of this match")
		return
	}

	n, err := store.MarkMessagesRead(r.Context(), h.DB, matchID, user.ID)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to mark messages read")
		return
	}
	jsonResponse(w, http.StatusOK, map[string]any{"marked": n})
}

// Unread handles GET /api/messages/unread: the caller's total unread count
// across all conversations.
func (h *MessagesHandler) Unread(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r.Context())
	n, err := store.CountUnread(r.Context(), h.DB, user.ID)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to count unread messages")
		return
	}
	jsonResponse(w, http.StatusOK, map[string]int{"unread": n})
}
