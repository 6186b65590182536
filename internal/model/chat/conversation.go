package chat

import "time"

// Conversation is the room shared by exactly two participants.
type Conversation struct {
	ID            string    `json:"id"`
	RoomID        string    `json:"roomId"`
	OwnerID       string    `json:"ownerId"`
	CounterpartID string    `json:"counterpartId"`
	Messages      []Message `json:"messages"`
	Version       int64     `json:"version"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Summary is the projection shown in a user's conversation list.
type Summary struct {
	ID            string    `json:"id"`
	RoomID        string    `json:"roomId"`
	OwnerID       string    `json:"ownerId"`
	CounterpartID string    `json:"counterpartId"`
	LastMessage   *Message  `json:"lastMessage,omitempty"`
	MessageCount  int       `json:"messageCount"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Participants returns owner and counterpart, in that order.
func (c Conversation) Participants() []string {
	return []string{c.OwnerID, c.CounterpartID}
}

// HasParticipant reports whether userID is one of the two participants.
func (c Conversation) HasParticipant(userID string) bool {
	return userID != "" && (c.OwnerID == userID || c.CounterpartID == userID)
}

// IndexOf returns the position of the message with the given id, or -1.
func (c Conversation) IndexOf(messageID string) int {
	for i, msg := range c.Messages {
		if msg.ID == messageID {
			return i
		}
	}
	return -1
}

// Summary builds the list projection for the conversation.
func (c Conversation) Summary() Summary {
	summary := Summary{
		ID:            c.ID,
		RoomID:        c.RoomID,
		OwnerID:       c.OwnerID,
		CounterpartID: c.CounterpartID,
		MessageCount:  len(c.Messages),
		UpdatedAt:     c.UpdatedAt,
	}
	if n := len(c.Messages); n > 0 {
		last := c.Messages[n-1]
		summary.LastMessage = &last
	}
	return summary
}

// Clone returns a deep copy safe to hand out of a store.
func (c Conversation) Clone() Conversation {
	c.Messages = cloneMessages(c.Messages)
	return c
}
