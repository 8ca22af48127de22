package store

import "time"

// MessageHide marks a message hidden for a single user ("delete for me").
// The message row itself is untouched, so the other participant's history
// is unaffected.
type MessageHide struct {
	MessageID string    `gorm:"column:message_id;primaryKey;size:26"`
	UserID    string    `gorm:"column:user_id;primaryKey;size:64"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (MessageHide) TableName() string { return "message_hides" }

// MessageReaction is the single reaction a user holds on a message.
// The composite primary key enforces at-most-one reaction per user per
// message; a re-react is an upsert, not a second row.
type MessageReaction struct {
	MessageID string    `gorm:"column:message_id;primaryKey;size:26"`
	UserID    string    `gorm:"column:user_id;primaryKey;size:64"`
	Emoji     string    `gorm:"column:emoji;size:32"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (MessageReaction) TableName() string { return "message_reactions" }
