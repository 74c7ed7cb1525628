package model

import "time"

// Message kinds.
const (
	MessageKindText   = "text"
	MessageKindImage  = "image"
	MessageKindSystem = "system"
)

// ValidMessageKind reports whether k is a known message kind.
func ValidMessageKind(k string) bool {
	switch k {
	case MessageKindText, MessageKindImage, MessageKindSystem:
		return true
	}
	return false
}

// System message subtypes.
const (
	SystemMatchSuggested = "match_suggested"
	SystemItemClaimed    = "item_claimed"
	SystemItemReturned   = "item_returned"
)

// ValidSystemSubtype reports whether s is a known system message subtype.
func ValidSystemSubtype(s string) bool {
	switch s {
	case SystemMatchSuggested, SystemItemClaimed, SystemItemReturned:
		return true
	}
	return false
}

// MessageMetadata carries kind-specific extras.
type MessageMetadata struct {
	ImageURL      string `json:"imageUrl,omitempty"`
	SystemSubtype string `json:"systemSubtype,omitempty"`
}

// Message is one entry in a match's conversation. The receiver is always
// the owner of the item side the sender does not own. Messages are never
// deleted individually; they go away with their match.
type Message struct {
	ID         int64           `json:"id"`
	MatchID    int64           `json:"matchId"`
	SenderID   int64           `json:"senderId"`
	ReceiverID int64           `json:"receiverId"`
	Content    string          `json:"content"`
	Kind       string          `json:"kind"`
	Read       bool            `json:"read"`
	ReadAt     *time.Time      `json:"readAt,omitempty"`
	Metadata   MessageMetadata `json:"metadata"`
	CreatedAt  time.Time       `json:"createdAt"`

	// Resolved at query time.
	Sender   *UserSummary `json:"sender,omitempty"`
	Receiver *UserSummary `json:"receiver,omitempty"`
}

// Conversation aggregates one match's message thread for the inbox view.
type Conversation struct {
	Match         *Match   `json:"match"`
	LatestMessage *Message `json:"latestMessage,omitempty"`
	UnreadCount   int      `json:"unreadCount"`
}
