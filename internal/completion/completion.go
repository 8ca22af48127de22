// Package completion is the text-completion collaborator used for the
// assistant auto-reply: prior turns in, reply text out.
package completion

import "context"

// Turn is one prior message in the conversation, oldest first.
type Turn struct {
	Role    string `json:"role"` // "user" | "assistant"
	Content string `json:"content"`
}

// Client produces a completion for a new message given prior turns.
type Client interface {
	Complete(ctx context.Context, priorTurns []Turn, newMessage string) (string, error)
}
