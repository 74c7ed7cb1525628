package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/erazemk/najdeno/internal/cache"
)

// nominatimURL is the upstream geocoding endpoint.
var nominatimURL = "https://nominatim.openstreetmap.org/search"

// GeocodeHandler proxies address lookups to Nominatim so the browser
// never talks to the upstream directly. Responses are cached: the same
// address strings come up again and again, and the upstream enforces
// strict request rates.
type GeocodeHandler struct {
	Cache  *cache.Cache
	Client *http.Client
}

// NewGeocodeHandler creates a geocode proxy with a bounded upstream
// timeout.
func NewGeocodeHandler(c *cache.Cache) *GeocodeHandler {
	return &GeocodeHandler{
		Cache:  c,
		Client: &http.Client{Timeout: 5 * time.Second},
	}
}

type geocodeRequest struct {
	Address string `json:"address"`
}

// Geocode handles POST /api/geocode.
func (h *GeocodeHandler) Geocode(w http.ResponseWriter, r *http.Request) {
	var req geocodeRequest
	if err := decodeJSON(r, &req); err != nil || req.Address == "" {
		jsonError(w, http.StatusBadRequest, "address is required")
		return
	}

	key := cache.Key("/api/geocode", url.Values{"q": {req.Address}})
	if body, ok := h.Cache.Get(key); ok {
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
		return
	}

	upstream := fmt.Sprintf("%s?format=json&limit=5&q=%s", nominatimURL, url.QueryEscape(req.Address))
	upReq, err := http.NewRequestWithContext(r.Context(), http.MethodGet, upstream, nil)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to build geocode request")
		return
	}
	// Nominatim's usage policy requires an identifying User-Agent.
	upReq.Header.Set("User-Agent", "najdeno/1.0")

	resp, err := h.Client.Do(upReq)
	if err != nil {
		jsonError(w, http.StatusBadGateway, "geocoding service unavailable")
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil || resp.StatusCode != http.StatusOK || !json.Valid(body) {
		jsonError(w, http.StatusBadGateway, "geocoding service returned an invalid response")
		return
	}

	h.Cache.Set(key, body)
	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}
