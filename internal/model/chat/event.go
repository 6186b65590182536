package chat

import "context"

// Event types pushed to participants after a successful write.
const (
	EventMessage             = "message"
	EventConversationDeleted = "conversationDeleted"
)

// Event is the payload handed to the delivery gateway.
type Event struct {
	Type           string        `json:"type"`
	RoomID         string        `json:"roomId"`
	ConversationID string        `json:"conversationId"`
	Conversation   *Conversation `json:"conversation,omitempty"`
}

// Notifier pushes events to a participant. It is fire-and-forget: delivery
// problems are the notifier's to log and never fail the triggering write.
type Notifier interface {
	Notify(ctx context.Context, participantID string, event Event)
}
