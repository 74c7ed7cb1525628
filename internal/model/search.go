package model

import (
	"encoding/json"
	"time"
)

// SavedSearch is a named, opaque set of item filter parameters owned by
// its creator. The query is stored verbatim and interpreted by the client.
type SavedSearch struct {
	ID        int64           `json:"id"`
	OwnerID   int64           `json:"ownerId"`
	Name      string          `json:"name"`
	Query     json.RawMessage `json:"query"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// OwnedBy reports whether userID owns the saved search.
func (s *SavedSearch) OwnedBy(userID int64) bool {
	return s.OwnerID == userID
}
