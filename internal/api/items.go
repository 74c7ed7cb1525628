package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/erazemk/najdeno/internal/cache"
	"github.com/erazemk/najdeno/internal/imaging"
	"github.com/erazemk/najdeno/internal/model"
	"github.com/erazemk/najdeno/internal/store"
)

// ItemsHandler handles item CRUD, search, photos, and match candidates.
type ItemsHandler struct {
	DB    *sql.DB
	Cache *cache.Cache
}

// maxUploadBytes bounds a single photo upload.
const maxUploadBytes = 10 << 20

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(r.PathValue(name), 10, 64)
}

// parseItemFilter reads the listing query parameters.
func parseItemFilter(r *http.Request) store.ItemFilter {
	q := r.URL.Query()
	f := store.ItemFilter{
		Kind:      q.Get("kind"),
		Category:  q.Get("category"),
		Status:    q.Get("status"),
		City:      q.Get("city"),
		State:     q.Get("state"),
		Search:    q.Get("search"),
		SortBy:    q.Get("sortBy"),
		SortOrder: q.Get("sortOrder"),
	}
	f.Page, _ = strconv.Atoi(q.Get("page"))
	f.Limit, _ = strconv.Atoi(q.Get("limit"))

	if v, err := time.Parse(time.RFC3339, q.Get("dateFrom")); err == nil {
		f.DateFrom = &v
	}
	if v, err := time.Parse(time.RFC3339, q.Get("dateTo")); err == nil {
		f.DateTo = &v
	}
	if lat, err := strconv.ParseFloat(q.Get("lat"), 64); err == nil {
		if lng, err := strconv.ParseFloat(q.Get("lng"), 64); err == nil {
			f.Lat, f.Lng = &lat, &lng
		}
	}
	f.RadiusKm, _ = strconv.ParseFloat(q.Get("radiusKm"), 64)
	return f
}

// List handles GET /api/items. Identical queries within the cache TTL are
// answered from the cached body.
func (h *ItemsHandler) List(w http.ResponseWriter, r *http.Request) {
	key := cache.Key(r.URL.Path, r.URL.Query())
	if body, ok := h.Cache.Get(key); ok {
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
		return
	}

	f := parseItemFilter(r)
	items, total, err := store.ListItems(r.Context(), h.DB, f)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to list items")
		return
	}
	if items == nil {
		items = []model.Item{}
	}

	page, limit := f.Page, f.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = store.DefaultLimit
	}
	pages := total / limit
	if total%limit != 0 {
		pages++
	}

	body, err := json.Marshal(map[string]any{
		"items": items, "total": total, "page": page, "limit": limit, "pages": pages,
	})
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to encode items")
		return
	}
	h.Cache.Set(key, body)

	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

// Get handles GET /api/items/{id}.
func (h *ItemsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	item, err := store.GetItem(r.Context(), h.DB, id)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to get item")
		return
	}
	if item == nil {
		jsonError(w, http.StatusNotFound, "item not found")
		return
	}
	jsonResponse(w, http.StatusOK, item)
}

type itemRequest struct {
	Kind         string            `json:"kind"`
	Title        string            `json:"title"`
	Description  string            `json:"description"`
	Category     string            `json:"category"`
	Images       []string          `json:"images"`
	Location     model.Location    `json:"location"`
	LocationNote string            `json:"locationNote"`
	DateLost     *time.Time        `json:"dateLost"`
	DateFound    *time.Time        `json:"dateFound"`
	Tags         []string          `json:"tags"`
	ContactInfo  model.ContactInfo `json:"contactInfo"`
}

// Create handles POST /api/items.
func (h *ItemsHandler) Create(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r.Context())

	var req itemRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Title == "" || req.Description == "" {
		jsonError(w, http.StatusBadRequest, "title and description are required")
		return
	}

	item, err := store.CreateItem(r.Context(), h.DB, &model.Item{
		Kind:         req.Kind,
		Title:        req.Title,
		Description:  req.Description,
		Category:     req.Category,
		Images:       req.Images,
		Location:     req.Location,
		LocationNote: req.LocationNote,
		DateLost:     req.DateLost,
		DateFound:    req.DateFound,
		OwnerID:      user.ID,
		Tags:         req.Tags,
		ContactInfo:  req.ContactInfo,
	})
	if errors.Is(err, store.ErrInvalid) {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to create item")
		return
	}

	slog.Info("item created", "item_id", item.ID, "kind", item.Kind, "user_id", user.ID)
	jsonResponse(w, http.StatusCreated, item)
}

type itemUpdateRequest struct {
	Title        *string            `json:"title"`
	Description  *string            `json:"description"`
	Category     *string            `json:"category"`
	Images       *[]string          `json:"images"`
	Location     *model.Location    `json:"location"`
	LocationNote *string            `json:"locationNote"`
	DateLost     *time.Time         `json:"dateLost"`
	DateFound    *time.Time         `json:"dateFound"`
	Tags         *[]string          `json:"tags"`
	ContactInfo  *model.ContactInfo `json:"contactInfo"`
}

// ownedItem loads an item and enforces ownership. Absence reports before
// ownership: probing for others' item ids reveals nothing extra.
func (h *ItemsHandler) ownedItem(w http.ResponseWriter, r *http.Request) *model.Item {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid item id")
		return nil
	}
	item, err := store.GetItem(r.Context(), h.DB, id)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to get item")
		return nil
	}
	if item == nil {
		jsonError(w, http.StatusNotFound, "item not found")
		return nil
	}
	if !item.OwnedBy(CurrentUser(r.Context()).ID) {
		jsonError(w, http.StatusForbidden, "not your item")
		return nil
	}
	return item
}

// Update handles PUT /api/items/{id}.
func (h *ItemsHandler) Update(w http.ResponseWriter, r *http.Request) {
	item := h.ownedItem(w, r)
	if item == nil {
		return
	}

	var req itemUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	updated, err := store.UpdateItem(r.Context(), h.DB, item.ID, store.ItemPatch{
		Title:        req.Title,
		Description:  req.Description,
		Category:     req.Category,
		Images:       req.Images,
		Location:     req.Location,
		LocationNote: req.LocationNote,
		DateLost:     req.DateLost,
		DateFound:    req.DateFound,
		Tags:         req.Tags,
		ContactInfo:  req.ContactInfo,
	})
	if errors.Is(err, store.ErrInvalid) {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to update item")
		return
	}
	jsonResponse(w, http.StatusOK, updated)
}

// Delete handles DELETE /api/items/{id}.
func (h *ItemsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	item := h.ownedItem(w, r)
	if item == nil {
		return
	}

	if err := store.DeleteItem(r.Context(), h.DB, item.ID); err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to delete item")
		return
	}
	slog.Info("item deleted", "item_id", item.ID)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "item deleted"})
}

// ListByUser handles GET /api/items/user/{id}. Authentication is optional;
// only the owner sees beyond active items.
func (h *ItemsHandler) ListByUser(w http.ResponseWriter, r *http.Request) {
	ownerID, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	items, total, err := store.ListItemsByOwner(r.Context(), h.DB, ownerID,
		CurrentUser(r.Context()), q.Get("status"), page, limit)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to list items")
		return
	}
	if items == nil {
		items = []model.Item{}
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = store.DefaultLimit
	}
	jsonPage(w, "items", items, total, page, limit)
}

// Candidates handles GET /api/items/{id}/candidates: ranked counterpart
// suggestions for the owner's item.
func (h *ItemsHandler) Candidates(w http.ResponseWriter, r *http.Request) {
	item := h.ownedItem(w, r)
	if item == nil {
		return
	}

	candidates, err := store.FindCandidates(r.Context(), h.DB, item)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to find candidates")
		return
	}
	if candidates == nil {
		candidates = []model.MatchCandidate{}
	}
	jsonResponse(w, http.StatusOK, map[string]any{"candidates": candidates})
}

// UploadImage handles POST /api/items/{id}/images with a multipart photo.
// The photo is re-encoded and downscaled before storage and its serving
// URL is appended to the item's image list.
func (h *ItemsHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	item := h.ownedItem(w, r)
	if item == nil {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, _, err := r.FormFile("image")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "missing image file")
		return
	}
	defer file.Close()

	photo, err := imaging.Process(file)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	imageID, err := store.AddItemImage(r.Context(), h.DB, item.ID, "", photo.Data, photo.MIME)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to store image")
		return
	}
	url := fmt.Sprintf("/api/items/%d/images/%d", item.ID, imageID)
	if err := store.SetItemImageURL(r.Context(), h.DB, imageID, url); err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to store image")
		return
	}

	updated, err := store.GetItem(r.Context(), h.DB, item.ID)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to load item")
		return
	}
	jsonResponse(w, http.StatusCreated, map[string]any{"url": url, "item": updated})
}

// GetImage handles GET /api/items/{id}/images/{imageID}, serving uploaded
// photo blobs.
func (h *ItemsHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	itemID, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid item id")
		return
	}
	imageID, err := pathID(r, "imageID")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid image id")
		return
	}

	data, mime, err := store.GetItemImage(r.Context(), h.DB, itemID, imageID)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to load image")
		return
	}
	if len(data) == 0 {
		jsonError(w, http.StatusNotFound, "image not found")
		return
	}

	w.Header().Set("Content-Type", mime)
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.Write(data)
}
