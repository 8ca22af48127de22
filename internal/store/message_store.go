// Package store is the append-only, per-conversation message log with
// mutable status fields. All status transitions are forward-only merges
// applied as guarded UPDATEs, never blind overwrites.
package store

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bera-tech-ai/gramX/internal/domain"
)

// MessageStore persists messages through GORM. Safe for concurrent use.
type MessageStore struct {
	db *gorm.DB

	// Monotonic ULID entropy so ids created within the same millisecond
	// still sort in append order.
	entropyMu sync.Mutex
	entropy   io.Reader
	now       func() time.Time
}

// New creates a MessageStore on top of an open GORM connection.
func New(db *gorm.DB) *MessageStore {
	return &MessageStore{
		db:      db,
		entropy: ulid.Monotonic(rand.Reader, 0),
		now:     time.Now,
	}
}

// Models returns the models the store needs migrated.
func Models() []interface{} {
	return []interface{}{&domain.Message{}, &MessageHide{}, &MessageReaction{}}
}

func (s *MessageStore) newID(t time.Time) (string, error) {
	s.entropyMu.Lock()
	defer s.entropyMu.Unlock()
	id, err := ulid.New(ulid.Timestamp(t), s.entropy)
	if err != nil {
		return "", fmt.Errorf("failed to generate message id: %w", err)
	}
	return id.String(), nil
}

// Append assigns an id and created-at if absent, sets the initial status
// and persists the message. The returned record is what readers will see.
func (s *MessageStore) Append(ctx context.Context, msg *domain.Message) (*domain.Message, error) {
	if msg.ConversationID == "" || msg.SenderID == "" || msg.ReceiverID == "" {
		return nil, fmt.Errorf("%w: message missing participants", domain.ErrValidation)
	}
	if msg.Body == "" && msg.MediaURL == "" {
		return nil, fmt.Errorf("%w: empty message body", domain.ErrValidation)
	}

	stored := *msg
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = s.now().UTC()
	}
	if stored.ID == "" {
		id, err := s.newID(stored.CreatedAt)
		if err != nil {
			return nil, err
		}
		stored.ID = id
	}
	stored.Status = domain.StatusSent
	stored.Edited = false
	stored.EditedAt = nil
	stored.DeletedForEveryone = false
	stored.Reactions = nil

	if err := s.db.WithContext(ctx).Create(&stored).Error; err != nil {
		return nil, persistErr("append message", err)
	}
	return &stored, nil
}

// History returns the conversation log as seen by viewerID: ascending by
// created-at with the id as tie-break, excluding messages deleted for
// everyone or hidden from the viewer. Re-reads without mutation return
// identical sequences.
func (s *MessageStore) History(ctx context.Context, conversationID, viewerID string) ([]domain.Message, error) {
	var messages []domain.Message
	hidden := s.db.Model(&MessageHide{}).Select("message_id").Where("user_id = ?", viewerID)
	err := s.db.WithContext(ctx).
		Where("conversation_id = ? AND deleted_for_everyone = ?", conversationID, false).
		Where("id NOT IN (?)", hidden).
		Order("created_at ASC, id ASC").
		Find(&messages).Error
	if err != nil {
		return nil, persistErr("load history", err)
	}
	if err := s.attachReactions(ctx, messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// Get returns a single message with its reactions. Messages deleted for
// everyone are reported as not found.
func (s *MessageStore) Get(ctx context.Context, messageID string) (*domain.Message, error) {
	var msg domain.Message
	err := s.db.WithContext(ctx).Where("id = ?", messageID).First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: message %s", domain.ErrNotFound, messageID)
	}
	if err != nil {
		return nil, persistErr("load message", err)
	}
	if msg.DeletedForEveryone {
		return nil, fmt.Errorf("%w: message %s", domain.ErrNotFound, messageID)
	}
	one := []domain.Message{msg}
	if err := s.attachReactions(ctx, one); err != nil {
		return nil, err
	}
	return &one[0], nil
}

// MarkDelivered advances a message from sent to delivered. Already
// delivered or read messages are left untouched.
func (s *MessageStore) MarkDelivered(ctx context.Context, messageID string) error {
	err := s.db.WithContext(ctx).Model(&domain.Message{}).
		Where("id = ? AND status = ?", messageID, domain.StatusSent).
		Update("status", domain.StatusDelivered).Error
	if err != nil {
		return persistErr("mark delivered", err)
	}
	return nil
}

// MarkRead advances every message in the conversation addressed to
// readerID that is still below read, and returns the affected ids so the
// senders' live connections can be notified.
func (s *MessageStore) MarkRead(ctx context.Context, conversationID, readerID string) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&domain.Message{}).
			Where("conversation_id = ? AND receiver_id = ? AND status <> ? AND deleted_for_everyone = ?",
				conversationID, readerID, domain.StatusRead, false).
			Order("created_at ASC, id ASC").
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		return tx.Model(&domain.Message{}).
			Where("id IN ? AND status <> ?", ids, domain.StatusRead).
			Update("status", domain.StatusRead).Error
	})
	if err != nil {
		return nil, persistErr("mark read", err)
	}
	return ids, nil
}

// React replaces userID's reaction on the message, or removes it when
// emoji is empty. Only participants may react. Returns the full reaction
// snapshot for fan-out.
func (s *MessageStore) React(ctx context.Context, messageID, userID, emoji string) (map[string]string, error) {
	msg, err := s.Get(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if !msg.IsParticipant(userID) {
		return nil, fmt.Errorf("%w: %s is not in this conversation", domain.ErrNotOwner, userID)
	}

	if emoji == "" {
		err = s.db.WithContext(ctx).
			Where("message_id = ? AND user_id = ?", messageID, userID).
			Delete(&MessageReaction{}).Error
	} else {
		reaction := MessageReaction{
			MessageID: messageID,
			UserID:    userID,
			Emoji:     emoji,
			UpdatedAt: s.now().UTC(),
		}
		err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "message_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"emoji", "updated_at"}),
		}).Create(&reaction).Error
	}
	if err != nil {
		return nil, persistErr("update reaction", err)
	}

	return s.reactionsOf(ctx, messageID)
}

// SoftDelete hides a message. Scope "mine" hides it from the requester
// only; scope "everyone" requires the requester to be the sender.
func (s *MessageStore) SoftDelete(ctx context.Context, messageID, requesterID, scope string) error {
	msg, err := s.Get(ctx, messageID)
	if err != nil {
		return err
	}

	switch scope {
	case domain.DeleteScopeEveryone:
		if msg.SenderID != requesterID {
			return fmt.Errorf("%w: only the sender can delete for everyone", domain.ErrNotOwner)
		}
		err = s.db.WithContext(ctx).Model(&domain.Message{}).
			Where("id = ?", messageID).
			Update("deleted_for_everyone", true).Error
		if err != nil {
			return persistErr("delete for everyone", err)
		}
		return nil

	case domain.DeleteScopeMine:
		if !msg.IsParticipant(requesterID) {
			return fmt.Errorf("%w: %s is not in this conversation", domain.ErrNotOwner, requesterID)
		}
		hide := MessageHide{MessageID: messageID, UserID: requesterID, CreatedAt: s.now().UTC()}
		err = s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&hide).Error
		if err != nil {
			return persistErr("delete for me", err)
		}
		return nil

	default:
		return fmt.Errorf("%w: unknown delete scope %q", domain.ErrValidation, scope)
	}
}

// Edit replaces the body of a message the requester sent and stamps the
// edited markers.
func (s *MessageStore) Edit(ctx context.Context, messageID, requesterID, body string) (*domain.Message, error) {
	if body == "" {
		return nil, fmt.Errorf("%w: empty message body", domain.ErrValidation)
	}
	msg, err := s.Get(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != requesterID {
		return nil, fmt.Errorf("%w: only the sender can edit", domain.ErrNotOwner)
	}

	editedAt := s.now().UTC()
	err = s.db.WithContext(ctx).Model(&domain.Message{}).
		Where("id = ?", messageID).
		Updates(map[string]interface{}{
			"body":      body,
			"edited":    true,
			"edited_at": editedAt,
		}).Error
	if err != nil {
		return nil, persistErr("edit message", err)
	}
	return s.Get(ctx, messageID)
}

// Summaries derives the conversation list for userID: one entry per
// partner with the last visible message and the live unread count,
// ordered by most recent activity first. Conversations whose every
// message is hidden from the viewer are omitted.
func (s *MessageStore) Summaries(ctx context.Context, userID string) ([]domain.ConversationSummary, error) {
	var conversationIDs []string
	err := s.db.WithContext(ctx).Model(&domain.Message{}).
		Distinct("conversation_id").
		Where("sender_id = ? OR receiver_id = ?", userID, userID).
		Pluck("conversation_id", &conversationIDs).Error
	if err != nil {
		return nil, persistErr("list conversations", err)
	}

	hidden := s.db.Model(&MessageHide{}).Select("message_id").Where("user_id = ?", userID)

	summaries := make([]domain.ConversationSummary, 0, len(conversationIDs))
	for _, convID := range conversationIDs {
		var last domain.Message
		err := s.db.WithContext(ctx).
			Where("conversation_id = ? AND deleted_for_everyone = ?", convID, false).
			Where("id NOT IN (?)", hidden).
			Order("created_at DESC, id DESC").
			First(&last).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return nil, persistErr("load last message", err)
		}

		var unread int64
		err = s.db.WithContext(ctx).Model(&domain.Message{}).
			Where("conversation_id = ? AND receiver_id = ? AND status <> ? AND deleted_for_everyone = ?",
				convID, userID, domain.StatusRead, false).
			Where("id NOT IN (?)", hidden).
			Count(&unread).Error
		if err != nil {
			return nil, persistErr("count unread", err)
		}

		partner := last.SenderID
		if partner == userID {
			partner = last.ReceiverID
		}
		lastCopy := last
		summaries = append(summaries, domain.ConversationSummary{
			ConversationID: convID,
			PartnerID:      partner,
			LastMessage:    &lastCopy,
			UnreadCount:    unread,
		})
	}

	// Most recent activity first; message id as deterministic tie-break.
	sort.Slice(summaries, func(i, j int) bool {
		a, b := summaries[i].LastMessage, summaries[j].LastMessage
		if a.CreatedAt.Equal(b.CreatedAt) {
			return a.ID > b.ID
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
	return summaries, nil
}

func (s *MessageStore) reactionsOf(ctx context.Context, messageID string) (map[string]string, error) {
	var rows []MessageReaction
	err := s.db.WithContext(ctx).Where("message_id = ?", messageID).Find(&rows).Error
	if err != nil {
		return nil, persistErr("load reactions", err)
	}
	snapshot := make(map[string]string, len(rows))
	for _, r := range rows {
		snapshot[r.UserID] = r.Emoji
	}
	return snapshot, nil
}

func (s *MessageStore) attachReactions(ctx context.Context, messages []domain.Message) error {
	if len(messages) == 0 {
		return nil
	}
	ids := make([]string, len(messages))
	index := make(map[string]int, len(messages))
	for i := range messages {
		ids[i] = messages[i].ID
		index[messages[i].ID] = i
	}
	var rows []MessageReaction
	err := s.db.WithContext(ctx).Where("message_id IN ?", ids).Find(&rows).Error
	if err != nil {
		return persistErr("load reactions", err)
	}
	for _, r := range rows {
		i, ok := index[r.MessageID]
		if !ok {
			continue
		}
		if messages[i].Reactions == nil {
			messages[i].Reactions = make(map[string]string)
		}
		messages[i].Reactions[r.UserID] = r.Emoji
	}
	return nil
}

func persistErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %s", domain.ErrPersistence, op, err)
}
