package chat

import "context"

// UserDirectory persists user records. Every method is atomic on a single
// document; nothing spans two users.
type UserDirectory interface {
	CreateUser(ctx context.Context, user User) (User, error)
	GetUser(ctx context.Context, id string) (User, error)
	ListUsers(ctx context.Context, query ListUsersQuery) ([]User, error)
	CountUsers(ctx context.Context, exclude Exclusion) (int64, error)
	DeleteUser(ctx context.Context, id string) error

	// AddConversationRef adds conversationID to the user's set of references.
	// Adding an existing reference is a no-op. Missing users yield ErrNotFound.
	AddConversationRef(ctx context.Context, userID, conversationID string) error
	// RemoveConversationRef removes conversationID from the user's set.
	// Removing an absent reference, or from an absent user, is a no-op.
	RemoveConversationRef(ctx context.Context, userID, conversationID string) error
	// ListUsersReferencing returns the ids of users whose set holds conversationID.
	ListUsersReferencing(ctx context.Context, conversationID string) ([]string, error)
	// RemoveConversationRefEverywhere drops conversationID from every user and
	// returns how many users were modified.
	RemoveConversationRefEverywhere(ctx context.Context, conversationID string) (int64, error)
}

// ConversationStore persists rooms. Every method is atomic on a single document.
type ConversationStore interface {
	// CreateConversation inserts a new room; ErrDuplicateRoom if RoomID is taken.
	CreateConversation(ctx context.Context, conv Conversation) (Conversation, error)
	GetConversation(ctx context.Context, id string) (Conversation, error)
	FindByRoomID(ctx context.Context, roomID string) (Conversation, error)
	FindByParticipant(ctx context.Context, userID string) ([]Conversation, error)
	// FindByIDs returns the conversations that exist among ids; absent ids are skipped.
	FindByIDs(ctx context.Context, ids []string) ([]Conversation, error)
	ListConversations(ctx context.Context, page, perPage int) ([]Conversation, error)

	// ReplaceMessages overwrites the transcript. When expectedVersion is set the
	// write only applies to that version, otherwise ErrConflict.
	ReplaceMessages(ctx context.Context, roomID string, messages []Message, expectedVersion *int64) (Conversation, error)
	// AppendMessage adds msg at the end of the transcript. A message id that is
	// already in the room is ErrInvalidArgument; expectedVersion behaves as in
	// ReplaceMessages.
	AppendMessage(ctx context.Context, roomID string, msg Message, expectedVersion *int64) (Conversation, error)
	// RemoveMessage drops the message with messageID and returns the updated room.
	RemoveMessage(ctx context.Context, roomID, messageID string) (Conversation, error)

	// DeleteIfEmpty deletes the room only while it has no messages.
	DeleteIfEmpty(ctx context.Context, id string) (bool, error)
	DeleteConversation(ctx context.Context, id string) error
}
