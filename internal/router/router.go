// Package router is the event-dispatch core: it validates inbound
// real-time events, drives the identity directory and message store, and
// fans resulting events out to the correct set of live connections.
package router

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/bera-tech-ai/gramX/internal/archive"
	"github.com/bera-tech-ai/gramX/internal/auth"
	"github.com/bera-tech-ai/gramX/internal/blob"
	"github.com/bera-tech-ai/gramX/internal/completion"
	"github.com/bera-tech-ai/gramX/internal/conversation"
	"github.com/bera-tech-ai/gramX/internal/directory"
	"github.com/bera-tech-ai/gramX/internal/domain"
	"github.com/bera-tech-ai/gramX/internal/summary"
	"github.com/bera-tech-ai/gramX/pkg/log"
)

// Conn is a live client connection as the router sees it.
type Conn interface {
	SendMessage(v interface{}) error
	GetSession() *domain.Session
}

// Broadcaster fans one event out to every live connection.
type Broadcaster interface {
	Broadcast(v interface{}, exclude string) error
}

// MessageStore is the persistence surface the router drives. It never
// mutates messages any other way.
type MessageStore interface {
	Append(ctx context.Context, msg *domain.Message) (*domain.Message, error)
	History(ctx context.Context, conversationID, viewerID string) ([]domain.Message, error)
	Get(ctx context.Context, messageID string) (*domain.Message, error)
	MarkDelivered(ctx context.Context, messageID string) error
	MarkRead(ctx context.Context, conversationID, readerID string) ([]string, error)
	React(ctx context.Context, messageID, userID, emoji string) (map[string]string, error)
	SoftDelete(ctx context.Context, messageID, requesterID, scope string) error
	Edit(ctx context.Context, messageID, requesterID, body string) (*domain.Message, error)
}

// Config wires the router's collaborators. Archiver, Blobs and
// Completions are optional.
type Config struct {
	Directory   *directory.Directory
	Broadcaster Broadcaster
	Store       MessageStore
	Summaries   *summary.Builder
	Verifier    auth.Verifier
	Archiver    archive.Producer
	Blobs       blob.Store
	Completions completion.Client
	AssistantID string
}

type Router struct {
	directory   *directory.Directory
	broadcaster Broadcaster
	store       MessageStore
	summaries   *summary.Builder
	verifier    auth.Verifier
	archiver    archive.Producer
	blobs       blob.Store
	completions completion.Client
	assistantID string
}

func New(cfg Config) *Router {
	if cfg.Archiver == nil {
		cfg.Archiver = archive.NewNoop()
	}
	return &Router{
		directory:   cfg.Directory,
		broadcaster: cfg.Broadcaster,
		store:       cfg.Store,
		summaries:   cfg.Summaries,
		verifier:    cfg.Verifier,
		archiver:    cfg.Archiver,
		blobs:       cfg.Blobs,
		completions: cfg.Completions,
		assistantID: cfg.AssistantID,
	}
}

// HandleLogin verifies the credential proof and moves the connection to
// the authenticated state. Login is only valid from the unauthenticated
// state: re-login on a live session is rejected so a binding can never
// switch identities without the offline fan-out a disconnect produces.
// On failure the connection stays open in its prior state.
func (r *Router) HandleLogin(ctx context.Context, c Conn, token string) error {
	if c.GetSession().IsAuthenticated() {
		err := fmt.Errorf("%w: connection is already authenticated", domain.ErrValidation)
		r.reportError(c, err)
		return err
	}

	identity, err := r.verifier.Verify(ctx, token)
	if err != nil {
		c.SendMessage(&domain.LoginResultEvent{
			Type:    domain.EventLoginResult,
			Success: false,
			Message: "invalid credentials",
		})
		return err
	}

	c.GetSession().Authenticate(identity.UserID, identity.DisplayName)
	cameOnline := r.directory.Bind(ctx, identity.UserID, c)

	c.SendMessage(&domain.LoginResultEvent{
		Type:        domain.EventLoginResult,
		Success:     true,
		UserID:      identity.UserID,
		DisplayName: identity.DisplayName,
	})
	c.SendMessage(&domain.OnlineUsersEvent{
		Type:    domain.EventOnlineUsers,
		UserIDs: r.directory.OnlineUsers(),
	})
	r.pushSummaries(ctx, identity.UserID)

	if cameOnline {
		r.broadcaster.Broadcast(&domain.PresenceEvent{
			Type:   domain.EventUserOnline,
			UserID: identity.UserID,
		}, c.GetSession().ID)
	}
	return nil
}

// HandleJoinConversation replays the conversation to the joiner and
// advances their read cursor. The counterpart's live connection, if any,
// learns which messages just became read.
func (r *Router) HandleJoinConversation(ctx context.Context, c Conn, targetUserID string) error {
	userID, ok := r.requireAuth(c)
	if !ok {
		return nil
	}

	convID, err := conversation.Key(userID, targetUserID)
	if err != nil {
		r.reportError(c, err)
		return err
	}

	history, err := r.store.History(ctx, convID.String(), userID)
	if err != nil {
		r.reportError(c, err)
		return err
	}

	readIDs, err := r.store.MarkRead(ctx, convID.String(), userID)
	if err != nil {
		r.reportError(c, err)
		return err
	}

	c.SendMessage(&domain.ConversationHistoryEvent{
		Type:           domain.EventConversationHistory,
		ConversationID: convID.String(),
		Messages:       history,
	})

	if len(readIDs) > 0 {
		if partner, online := r.directory.Resolve(convID.Other(userID)); online {
			partner.SendMessage(&domain.MessagesReadEvent{
				Type:           domain.EventMessagesRead,
				ConversationID: convID.String(),
				MessageIDs:     readIDs,
				ReaderID:       userID,
			})
		}
		r.pushSummaries(ctx, userID)
	}
	return nil
}

// HandleSendMessage appends the message and fans it out. The optimistic
// echo to the sender is emitted only after the append is durable; a
// failed append produces an error event and nothing else.
func (r *Router) HandleSendMessage(ctx context.Context, c Conn, evt *domain.SendMessageEvent) error {
	userID, ok := r.requireAuth(c)
	if !ok {
		return nil
	}

	convID, err := conversation.Key(userID, evt.TargetUserID)
	if err != nil {
		r.reportError(c, err)
		return err
	}

	mediaURL, err := r.storeMedia(ctx, evt.Media)
	if err != nil {
		r.reportError(c, err)
		return err
	}

	stored, err := r.store.Append(ctx, &domain.Message{
		ConversationID: convID.String(),
		SenderID:       userID,
		ReceiverID:     evt.TargetUserID,
		Body:           evt.Body,
		MediaURL:       mediaURL,
	})
	if err != nil {
		r.reportError(c, err)
		return err
	}

	if err := r.archiver.Produce(ctx, stored); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str(log.FieldMessageID, stored.ID).Msg("archive produce failed")
	}

	c.SendMessage(&domain.NewMessageEvent{
		Type:         domain.EventNewMessage,
		Message:      stored,
		ClientTempID: evt.ClientTempID,
	})

	if target, online := r.directory.Resolve(evt.TargetUserID); online {
		target.SendMessage(&domain.NewMessageEvent{
			Type:    domain.EventNewMessage,
			Message: stored,
		})
		if err := r.store.MarkDelivered(ctx, stored.ID); err != nil {
			log.Ctx(ctx).Warn().Err(err).Str(log.FieldMessageID, stored.ID).Msg("mark delivered failed")
		} else {
			c.SendMessage(&domain.MessageDeliveredEvent{
				Type:         domain.EventMessageDelivered,
				MessageID:    stored.ID,
				ClientTempID: evt.ClientTempID,
			})
		}
	}

	r.pushSummaries(ctx, userID)
	r.pushSummaries(ctx, evt.TargetUserID)

	if r.completions != nil && evt.TargetUserID == r.assistantID {
		r.autoReply(ctx, convID, userID, stored)
	}
	return nil
}

// HandleReact replaces or removes the requester's reaction and pushes
// the new snapshot to every resolvable participant.
func (r *Router) HandleReact(ctx context.Context, c Conn, evt *domain.ReactEvent) error {
	userID, ok := r.requireAuth(c)
	if !ok {
		return nil
	}

	emoji := ""
	if evt.Emoji != nil {
		emoji = *evt.Emoji
	}

	snapshot, err := r.store.React(ctx, evt.MessageID, userID, emoji)
	if err != nil {
		r.reportError(c, err)
		return err
	}

	msg, err := r.store.Get(ctx, evt.MessageID)
	if err != nil {
		r.reportError(c, err)
		return err
	}

	r.fanOutToParticipants(msg, &domain.ReactionUpdateEvent{
		Type:           domain.EventReactionUpdate,
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		Reactions:      snapshot,
	})
	return nil
}

// HandleEdit rewrites a message the requester sent and pushes the edited
// record to every resolvable participant.
func (r *Router) HandleEdit(ctx context.Context, c Conn, evt *domain.EditMessageEvent) error {
	userID, ok := r.requireAuth(c)
	if !ok {
		return nil
	}

	edited, err := r.store.Edit(ctx, evt.MessageID, userID, evt.Body)
	if err != nil {
		r.reportError(c, err)
		return err
	}

	r.fanOutToParticipants(edited, &domain.MessageEditedEvent{
		Type:    domain.EventMessageEdited,
		Message: edited,
	})
	r.pushSummaries(ctx, edited.SenderID)
	r.pushSummaries(ctx, edited.ReceiverID)
	return nil
}

// HandleDelete soft-deletes a message. Scope "everyone" is visible to
// both participants; scope "mine" changes only the requester's view.
func (r *Router) HandleDelete(ctx context.Context, c Conn, evt *domain.DeleteMessageEvent) error {
	userID, ok := r.requireAuth(c)
	if !ok {
		return nil
	}

	// Fetch before deleting: an everyone-delete makes the record
	// unreadable afterwards.
	msg, err := r.store.Get(ctx, evt.MessageID)
	if err != nil {
		r.reportError(c, err)
		return err
	}

	if err := r.store.SoftDelete(ctx, evt.MessageID, userID, evt.Scope); err != nil {
		r.reportError(c, err)
		return err
	}

	deleted := &domain.MessageDeletedEvent{
		Type:           domain.EventMessageDeleted,
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		Scope:          evt.Scope,
	}
	if evt.Scope == domain.DeleteScopeEveryone {
		r.fanOutToParticipants(msg, deleted)
		r.pushSummaries(ctx, msg.SenderID)
		r.pushSummaries(ctx, msg.ReceiverID)
	} else {
		c.SendMessage(deleted)
		r.pushSummaries(ctx, userID)
	}
	return nil
}

// HandleTyping forwards a typing indicator to the target's live
// connection. Best effort, no persistence, no error on an offline target.
func (r *Router) HandleTyping(ctx context.Context, c Conn, eventType, targetUserID string) error {
	userID, ok := r.requireAuth(c)
	if !ok {
		return nil
	}

	if target, online := r.directory.Resolve(targetUserID); online {
		target.SendMessage(&domain.TypingNoticeEvent{
			Type:     eventType,
			SenderID: userID,
		})
	}
	return nil
}

// HandleDisconnect closes the session and releases the directory binding.
// A stale handle from a superseded connection changes nothing.
func (r *Router) HandleDisconnect(ctx context.Context, c Conn) {
	c.GetSession().Close()

	userID, wentOffline := r.directory.Unbind(ctx, c)
	if !wentOffline {
		return
	}

	evt := &domain.PresenceEvent{
		Type:   domain.EventUserOffline,
		UserID: userID,
	}
	if lastSeen, ok := r.directory.LastSeen(userID); ok {
		evt.LastSeen = &lastSeen
	}
	r.broadcaster.Broadcast(evt, c.GetSession().ID)
}

// pushSummaries recomputes and pushes the conversation list to a user's
// live connection. It is the single fan-out point after every mutation.
func (r *Router) pushSummaries(ctx context.Context, userID string) {
	conn, online := r.directory.Resolve(userID)
	if !online {
		return
	}
	sums, err := r.summaries.Summaries(ctx, userID)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str(log.FieldUserID, userID).Msg("summary recompute failed")
		return
	}
	conn.SendMessage(&domain.UserConversationsEvent{
		Type:          domain.EventUserConversations,
		Conversations: sums,
	})
}

func (r *Router) fanOutToParticipants(msg *domain.Message, evt interface{}) {
	for _, userID := range []string{msg.SenderID, msg.ReceiverID} {
		if conn, online := r.directory.Resolve(userID); online {
			conn.SendMessage(evt)
		}
	}
}

func (r *Router) storeMedia(ctx context.Context, media *domain.MediaUpload) (string, error) {
	if media == nil {
		return "", nil
	}
	if r.blobs == nil {
		return "", fmt.Errorf("%w: media uploads are not enabled", domain.ErrValidation)
	}
	if len(media.Data) == 0 {
		return "", fmt.Errorf("%w: empty media payload", domain.ErrValidation)
	}
	url, err := r.blobs.Put(ctx, "media/"+uuid.New().String(), media.Data, media.ContentType)
	if err != nil {
		return "", fmt.Errorf("%w: media store: %s", domain.ErrPersistence, err)
	}
	return url, nil
}

// autoReply routes an assistant-generated answer back through the normal
// send path. Failures are logged and swallowed: the user's own message
// has already been delivered.
func (r *Router) autoReply(ctx context.Context, convID conversation.ID, userID string, prompt *domain.Message) {
	history, err := r.store.History(ctx, convID.String(), r.assistantID)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("auto-reply history load failed")
		return
	}

	const maxTurns = 20
	if len(history) > maxTurns {
		history = history[len(history)-maxTurns:]
	}
	turns := make([]completion.Turn, 0, len(history))
	for _, m := range history {
		if m.ID == prompt.ID {
			continue
		}
		role := "user"
		if m.SenderID == r.assistantID {
			role = "assistant"
		}
		turns = append(turns, completion.Turn{Role: role, Content: m.Body})
	}

	reply, err := r.completions.Complete(ctx, turns, prompt.Body)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("auto-reply completion failed")
		return
	}

	stored, err := r.store.Append(ctx, &domain.Message{
		ConversationID: convID.String(),
		SenderID:       r.assistantID,
		ReceiverID:     userID,
		Body:           reply,
	})
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("auto-reply append failed")
		return
	}

	if conn, online := r.directory.Resolve(userID); online {
		conn.SendMessage(&domain.NewMessageEvent{
			Type:    domain.EventNewMessage,
			Message: stored,
		})
		if err := r.store.MarkDelivered(ctx, stored.ID); err != nil {
			log.Ctx(ctx).Warn().Err(err).Str(log.FieldMessageID, stored.ID).Msg("mark delivered failed")
		}
	}
	r.pushSummaries(ctx, userID)
}

func (r *Router) requireAuth(c Conn) (string, bool) {
	sess := c.GetSession()
	if !sess.IsAuthenticated() {
		c.SendMessage(domain.NewErrorEvent(domain.ErrCodeUnauthorized, "not authenticated"))
		return "", false
	}
	return sess.GetUserID(), true
}

func (r *Router) reportError(c Conn, err error) {
	c.SendMessage(domain.NewErrorEvent(domain.ErrorCode(err), err.Error()))
}
