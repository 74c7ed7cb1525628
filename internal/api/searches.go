package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/erazemk/najdeno/internal/model"
	"github.com/erazemk/najdeno/internal/store"
)

// SearchesHandler handles saved searches.
type SearchesHandler struct {
	DB *sql.DB
}

type savedSearchRequest struct {
	Name  string          `json:"name"`
	Query json.RawMessage `json:"query"`
}

// Create handles POST /api/searches.
func (h *SearchesHandler) Create(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r.Context())

	var req savedSearchRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s, err := store.CreateSavedSearch(r.Context(), h.DB, user.ID, req.Name, req.Query)
	if errors.Is(err, store.ErrInvalid) {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to save search")
		return
	}
	jsonResponse(w, http.StatusCreated, s)
}

// List handles GET /api/searches.
func (h *SearchesHandler) List(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r.Context())
	searches, err := store.ListSavedSearches(r.Context(), h.DB, user.ID)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to list searches")
		return
	}
	if searches == nil {
		searches = []model.SavedSearch{}
	}
	jsonResponse(w, http.StatusOK, map[string]any{"searches": searches})
}

// Delete handles DELETE /api/searches/{id}.
func (h *SearchesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r.Context())
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid search id")
		return
	}

	s, err := store.GetSavedSearch(r.Context(), h.DB, id)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to get search")
		return
	}
	if s == nil {
		jsonError(w, http.StatusNotFound, "search not found")
		return
	}
	if !s.OwnedBy(user.ID) {
		jsonError(w, http.StatusForbidden, "not your search")
		return
	}

	if err := store.DeleteSavedSearch(r.Context(), h.DB, id); err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to delete search")
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"message": "search deleted"})
}
