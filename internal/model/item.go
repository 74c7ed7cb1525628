package model

import "time"

// Item kinds.
const (
	KindLost  = "lost"
	KindFound = "found"
)

// Item statuses.
const (
	ItemStatusActive   = "active"
	ItemStatusResolved = "resolved"
	ItemStatusExpired  = "expired"
)

// Categories lists the accepted item categories.
var Categories = []string{
	"electronics", "clothing", "accessories", "documents",
	"keys", "bags", "pets", "other",
}

// DefaultCategory is used when none is given.
const DefaultCategory = "other"

// ValidCategory reports whether c is a known category.
func ValidCategory(c string) bool {
	for _, v := range Categories {
		if v == c {
			return true
		}
	}
	return false
}

// Location is a geo point plus free-text address components.
// Lat/Lng of (0, 0) means no coordinates were provided.
type Location struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address,omitempty"`
	City    string  `json:"city,omitempty"`
	State   string  `json:"state,omitempty"`
	Country string  `json:"country,omitempty"`
}

// HasCoordinates reports whether the location carries a real geo point.
func (l Location) HasCoordinates() bool {
	return l.Lat != 0 || l.Lng != 0
}

// ContactInfo is the optional per-item contact override.
type ContactInfo struct {
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

// Item is a lost or found object report. Exactly one of DateLost/DateFound
// is set, selected by Kind.
type Item struct {
	ID           int64        `json:"id"`
	Kind         string       `json:"kind"`
	Title        string       `json:"title"`
	Description  string       `json:"description"`
	Category     string       `json:"category"`
	Images       []string     `json:"images"`
	Location     Location     `json:"location"`
	LocationNote string       `json:"locationNote,omitempty"`
	DateLost     *time.Time   `json:"dateLost,omitempty"`
	DateFound    *time.Time   `json:"dateFound,omitempty"`
	OwnerID      int64        `json:"ownerId"`
	Status       string       `json:"status"`
	Tags         []string     `json:"tags"`
	ContactInfo  ContactInfo  `json:"contactInfo"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
	Owner        *UserSummary `json:"owner,omitempty"`

	// DistanceKm is set on geo-filtered listings only.
	DistanceKm *float64 `json:"distanceKm,omitempty"`
}

// ReferenceDate returns the date the item was lost or found, by kind.
func (i *Item) ReferenceDate() *time.Time {
	if i.Kind == KindLost {
		return i.DateLost
	}
	return i.DateFound
}

// AgeInDays returns the whole days elapsed since the item's reference date.
func (i *Item) AgeInDays(now time.Time) int {
	ref := i.ReferenceDate()
	if ref == nil {
		return 0
	}
	return int(now.Sub(*ref).Hours() / 24)
}

// OwnedBy reports whether userID owns the item.
func (i *Item) OwnedBy(userID int64) bool {
	return i.OwnerID == userID
}
