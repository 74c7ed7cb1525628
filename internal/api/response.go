package api

import (
	"encoding/json"
	"log"
	"net/http"
)

// jsonResponse writes a JSON response with the given status code.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Printf("error encoding response: %v", err)
		}
	}
}

// jsonError writes a JSON error response.
func jsonError(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

// jsonPage writes a paginated JSON collection response.
func jsonPage(w http.ResponseWriter, key string, items any, total, page, limit int) {
	pages := total / limit
	if total%limit != 0 {
		pages++
	}
	jsonResponse(w, http.StatusOK, map[string]any{
		key:     items,
		"total": total,
		"page":  page,
		"limit": limit,
		"pages": pages,
	})
}

// decodeJSON decodes a JSON request body into the given target.
func decodeJSON(r *http.Request, target any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(target)
}
