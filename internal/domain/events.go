package domain

import "time"

// WebSocket event types from client.
const (
	EventLogin            = "login"
	EventJoinConversation = "join-conversation"
	EventSendMessage      = "send-message"
	EventTypingStart      = "typing-start"
	EventTypingStop       = "typing-stop"
	EventReact            = "react"
	EventEditMessage      = "edit-message"
	EventDeleteMessage    = "delete-message"
	EventPing             = "ping"
)

// WebSocket event types to client.
const (
	EventLoginResult         = "login-result"
	EventOnlineUsers         = "online-users"
	EventUserConversations   = "user-conversations"
	EventConversationHistory = "conversation-history"
	EventNewMessage          = "new-message"
	EventMessageDelivered    = "message-delivered"
	EventMessagesRead        = "messages-read"
	EventReactionUpdate      = "message-reaction-update"
	EventMessageEdited       = "message-edited"
	EventMessageDeleted      = "message-deleted"
	EventUserOnline          = "user-online"
	EventUserOffline         = "user-offline"
	EventError               = "error"
	EventPong                = "pong"
)

// BaseEvent is the envelope shared by all inbound events.
type BaseEvent struct {
	Type string `json:"type"`
}

// Client -> Server events

type LoginEvent struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

type JoinConversationEvent struct {
	Type         string `json:"type"`
	TargetUserID string `json:"target_user_id"`
}

// MediaUpload carries inline media bytes, base64-encoded on the wire.
type MediaUpload struct {
	Data        []byte `json:"data"`
	ContentType string `json:"content_type"`
}

type SendMessageEvent struct {
	Type         string       `json:"type"`
	TargetUserID string       `json:"target_user_id"`
	Body         string       `json:"body"`
	Media        *MediaUpload `json:"media,omitempty"`
	ClientTempID string       `json:"client_temp_id,omitempty"`
}

type TypingEvent struct {
	Type         string `json:"type"`
	TargetUserID string `json:"target_user_id"`
}

type ReactEvent struct {
	Type      string  `json:"type"`
	MessageID string  `json:"message_id"`
	Emoji     *string `json:"emoji"` // null removes the reaction
}

type EditMessageEvent struct {
	Type      string `json:"type"`
	MessageID string `json:"message_id"`
	Body      string `json:"body"`
}

type DeleteMessageEvent struct {
	Type      string `json:"type"`
	MessageID string `json:"message_id"`
	Scope     string `json:"scope"` // "mine" | "everyone"
}

// Server -> Client events

type LoginResultEvent struct {
	Type        string `json:"type"`
	Success     bool   `json:"success"`
	UserID      string `json:"user_id,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Message     string `json:"message,omitempty"`
}

type OnlineUsersEvent struct {
	Type    string   `json:"type"`
	UserIDs []string `json:"user_ids"`
}

type UserConversationsEvent struct {
	Type          string                `json:"type"`
	Conversations []ConversationSummary `json:"conversations"`
}

type ConversationHistoryEvent struct {
	Type           string    `json:"type"`
	ConversationID string    `json:"conversation_id"`
	Messages       []Message `json:"messages"`
}

type NewMessageEvent struct {
	Type         string   `json:"type"`
	Message      *Message `json:"message"`
	ClientTempID string   `json:"client_temp_id,omitempty"`
}

type MessageDeliveredEvent struct {
	Type         string `json:"type"`
	MessageID    string `json:"message_id"`
	ClientTempID string `json:"client_temp_id,omitempty"`
}

type MessagesReadEvent struct {
	Type           string   `json:"type"`
	ConversationID string   `json:"conversation_id"`
	MessageIDs     []string `json:"message_ids"`
	ReaderID       string   `json:"reader_id"`
}

type ReactionUpdateEvent struct {
	Type           string            `json:"type"`
	MessageID      string            `json:"message_id"`
	ConversationID string            `json:"conversation_id"`
	Reactions      map[string]string `json:"reactions"`
}

type MessageEditedEvent struct {
	Type    string   `json:"type"`
	Message *Message `json:"message"`
}

type MessageDeletedEvent struct {
	Type           string `json:"type"`
	MessageID      string `json:"message_id"`
	ConversationID string `json:"conversation_id"`
	Scope          string `json:"scope"`
}

type TypingNoticeEvent struct {
	Type     string `json:"type"`
	SenderID string `json:"sender_id"`
}

type PresenceEvent struct {
	Type     string     `json:"type"`
	UserID   string     `json:"user_id"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}

type ErrorEvent struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewErrorEvent(code, message string) *ErrorEvent {
	return &ErrorEvent{
		Type:    EventError,
		Code:    code,
		Message: message,
	}
}
