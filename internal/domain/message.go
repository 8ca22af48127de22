package domain

import "time"

// Message status values. Status only ever advances sent → delivered → read.
const (
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
)

// StatusRank orders statuses for the forward-only merge. Unknown statuses
// rank below sent so a corrupted row can still be advanced.
func StatusRank(status string) int {
	switch status {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	default:
		return 0
	}
}

// Soft-delete scopes.
const (
	DeleteScopeMine     = "mine"
	DeleteScopeEveryone = "everyone"
)

// Message is a single private message between two users. The id is a ULID,
// so lexicographic order matches creation order closely enough to break
// created-at ties deterministically.
type Message struct {
	ID                 string     `gorm:"column:id;primaryKey;size:26" json:"id"`
	ConversationID     string     `gorm:"column:conversation_id;size:191;index:idx_conv_created,priority:1" json:"conversation_id"`
	SenderID           string     `gorm:"column:sender_id;size:64;index" json:"sender_id"`
	ReceiverID         string     `gorm:"column:receiver_id;size:64;index" json:"receiver_id"`
	Body               string     `gorm:"column:body;type:text" json:"body"`
	MediaURL           string     `gorm:"column:media_url;size:512" json:"media_url,omitempty"`
	Status             string     `gorm:"column:status;size:16;default:'sent'" json:"status"`
	Edited             bool       `gorm:"column:edited;default:false" json:"edited"`
	EditedAt           *time.Time `gorm:"column:edited_at" json:"edited_at,omitempty"`
	DeletedForEveryone bool       `gorm:"column:deleted_for_everyone;default:false" json:"-"`
	CreatedAt          time.Time  `gorm:"column:created_at;index:idx_conv_created,priority:2" json:"created_at"`

	// Reactions maps user id to the single emoji that user reacted with.
	// Stored in a separate table; populated by the message store on read.
	Reactions map[string]string `gorm:"-" json:"reactions,omitempty"`
}

func (Message) TableName() string { return "messages" }

// IsParticipant reports whether userID is one of the two parties.
func (m *Message) IsParticipant(userID string) bool {
	return m.SenderID == userID || m.ReceiverID == userID
}

// ConversationSummary is the per-partner digest shown in a user's
// conversation list. Derived on demand, never stored.
type ConversationSummary struct {
	ConversationID string   `json:"conversation_id"`
	PartnerID      string   `json:"partner_id"`
	LastMessage    *Message `json:"last_message"`
	UnreadCount    int64    `json:"unread_count"`
}
