package api

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/erazemk/najdeno/internal/model"
	"github.com/erazemk/najdeno/internal/store"
)

// MatchesHandler handles the match lifecycle.
type MatchesHandler struct {
	DB       *sql.DB
	Notifier Notifier
}

// storeError maps the store sentinels onto HTTP statuses.
func storeError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, store.ErrInvalid):
		jsonError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		jsonError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrForbidden):
		jsonError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, store.ErrConflict):
		jsonError(w, http.StatusConflict, err.Error())
	default:
		jsonError(w, http.StatusInternalServerError, fallback)
	}
}

type createMatchRequest struct {
	LostItemID  int64               `json:"lostItemId"`
	FoundItemID int64               `json:"foundItemId"`
	Confidence  float64             `json:"confidence"`
	Reasons     []string            `json:"matchReasons"`
	Metadata    model.MatchMetadata `json:"metadata"`
}

// Create handles POST /api/matches. The caller must own one of the two
// items being linked.
func (h *MatchesHandler) Create(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r.Context())

	var req createMatchRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	match, err := store.CreateMatch(r.Context(), h.DB, user.ID, req.LostItemID, req.FoundItemID,
		req.Confidence, req.Reasons, req.Metadata)
	if err != nil {
		storeError(w, err, "failed to create match")
		return
	}

	slog.Info("match created", "match_id", match.ID, "confidence", match.Confidence, "user_id", user.ID)
	jsonResponse(w, http.StatusCreated, match)
}

// participantMatch loads a match and enforces participation, not-found
// first.
func (h *MatchesHandler) participantMatch(w http.ResponseWriter, r *http.Request) *model.Match {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid match id")
		return nil
	}
	match, err := store.GetMatch(r.Context(), h.DB, id)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to get match")
		return nil
	}
	if match == nil {
		jsonError(w, http.StatusNotFound, "match not found")
		return nil
	}
	if !match.HasParticipant(CurrentUser(r.Context()).ID) {
		jsonError(w, http.StatusForbidden, "not a participant of this match")
		return nil
	}
	return match
}

// Get handles GET /api/matches/{id}.
func (h *MatchesHandler) Get(w http.ResponseWriter, r *http.Request) {
	if match := h.participantMatch(w, r); match != nil {
		jsonResponse(w, http.StatusOK, match)
	}
}

// List handles GET /api/matches, returning the caller's matches.
func (h *MatchesHandler) List(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r.Context())
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	matches, total, err := store.ListMatches(r.Context(), h.DB, user.ID,
		q.Get("status"), q.Get("sortBy"), q.Get("sortOrder"), page, limit)
	if err != nil {
		storeError(w, err, "failed to list matches")
		return
	}
	if matches == nil {
		matches = []model.Match{}
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = store.DefaultLimit
	}
	jsonPage(w, "matches", matches, total, page, limit)
}

type matchStatusRequest struct {
	Status string `json:"status"`
}

// UpdateStatus handles PUT /api/matches/{id}/status. Participants are
// notified over their sockets.
func (h *MatchesHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	match := h.participantMatch(w, r)
	if match == nil {
		return
	}

	var req matchStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	updated, err := store.UpdateMatchStatus(r.Context(), h.DB, match.ID, req.Status)
	if err != nil {
		storeError(w, err, "failed to update match")
		return
	}

	notify(h.Notifier, updated.ID, "match_updated", updated)
	slog.Info("match status changed", "match_id", updated.ID, "status", updated.Status)
	jsonResponse(w, http.StatusOK, updated)
}

// Delete handles DELETE /api/matches/{id}.
func (h *MatchesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	match := h.participantMatch(w, r)
	if match == nil {
		return
	}

	if err := store.DeleteMatch(r.Context(), h.DB, match.ID); err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to delete match")
		return
	}
	slog.Info("match deleted", "match_id", match.ID)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "match deleted"})
}
