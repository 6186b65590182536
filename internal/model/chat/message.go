package chat

import "time"

// Message is a single turn inside a conversation transcript.
// Position in Conversation.Messages is its index address; ID is stable across shifts.
type Message struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"ts"`
}

func cloneMessages(messages []Message) []Message {
	if messages == nil {
		return nil
	}
	copied := make([]Message, len(messages))
	copy(copied, messages)
	return copied
}
