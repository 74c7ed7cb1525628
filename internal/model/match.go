package model

import "time"

// Match statuses. Confirmed and rejected are not terminal: further status
// writes are allowed, only the first entry into a status records its
// timestamp.
const (
	MatchStatusSuggested = "suggested"
	MatchStatusContacted = "contacted"
	MatchStatusConfirmed = "confirmed"
	MatchStatusRejected  = "rejected"
)

// ValidMatchStatus reports whether s is a known match status.
func ValidMatchStatus(s string) bool {
	switch s {
	case MatchStatusSuggested, MatchStatusContacted, MatchStatusConfirmed, MatchStatusRejected:
		return true
	}
	return false
}

// Match reasons.
const (
	ReasonTextSimilarity    = "text_similarity"
	ReasonLocationProximity = "location_proximity"
	ReasonCategoryMatch     = "category_match"
	ReasonDateCorrelation   = "date_correlation"
	ReasonImageSimilarity   = "image_similarity"
)

// ValidMatchReason reports whether r is a known match reason.
func ValidMatchReason(r string) bool {
	switch r {
	case ReasonTextSimilarity, ReasonLocationProximity, ReasonCategoryMatch,
		ReasonDateCorrelation, ReasonImageSimilarity:
		return true
	}
	return false
}

// MatchMetadata carries the per-signal measurements behind a match.
type MatchMetadata struct {
	TextSimilarity         *float64 `json:"textSimilarity,omitempty"`
	LocationDistanceMeters *float64 `json:"locationDistanceMeters,omitempty"`
	CategoryMatch          bool     `json:"categoryMatch,omitempty"`
	DateDifferenceDays     *float64 `json:"dateDifferenceDays,omitempty"`
	ImageSimilarity        *float64 `json:"imageSimilarity,omitempty"`
}

// Match is a proposed pairing between a lost item and a found item.
// The (LostItemID, FoundItemID) pair is unique.
type Match struct {
	ID          int64         `json:"id"`
	LostItemID  int64         `json:"lostItemId"`
	FoundItemID int64         `json:"foundItemId"`
	Confidence  float64       `json:"confidence"`
	Status      string        `json:"status"`
	Reasons     []string      `json:"matchReasons"`
	Metadata    MatchMetadata `json:"metadata"`
	ContactedAt *time.Time    `json:"contactedAt,omitempty"`
	ConfirmedAt *time.Time    `json:"confirmedAt,omitempty"`
	RejectedAt  *time.Time    `json:"rejectedAt,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`

	// Resolved at query time.
	LostItem  *Item `json:"lostItem,omitempty"`
	FoundItem *Item `json:"foundItem,omitempty"`
}

// HasParticipant reports whether userID owns either referenced item.
// The match must have its items resolved.
func (m *Match) HasParticipant(userID int64) bool {
	if m.LostItem != nil && m.LostItem.OwnerID == userID {
		return true
	}
	if m.FoundItem != nil && m.FoundItem.OwnerID == userID {
		return true
	}
	return false
}

// CounterpartOwner returns the owner id of the side userID does not own,
// and false if userID is not a participant.
func (m *Match) CounterpartOwner(userID int64) (int64, bool) {
	if m.LostItem == nil || m.FoundItem == nil {
		return 0, false
	}
	switch userID {
	case m.LostItem.OwnerID:
		return m.FoundItem.OwnerID, true
	case m.FoundItem.OwnerID:
		return m.LostItem.OwnerID, true
	}
	return 0, false
}

// MatchCandidate is a ranked suggestion produced by the candidate query,
// before any Match row exists.
type MatchCandidate struct {
	Item       *Item         `json:"item"`
	Confidence float64       `json:"confidence"`
	Reasons    []string      `json:"matchReasons"`
	Metadata   MatchMetadata `json:"metadata"`
}
