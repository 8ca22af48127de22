package log

const (
	// Connection / routing
	FieldConnID         = "conn_id"
	FieldEvent          = "event"
	FieldConversationID = "conversation_id"
	FieldMessageID      = "message_id"

	// Actor
	FieldUserID   = "user_id"
	FieldTargetID = "target_id"

	// Service
	FieldService = "service"
)
