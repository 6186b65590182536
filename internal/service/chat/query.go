package chat

import (
	"context"
	"fmt"
	"sort"

	"github.com/rent-in-out1/rent-in-out-backend/internal/model/chat"
)

// ListMyConversations returns the user's rooms, most recently updated first.
// References to conversations that no longer exist are skipped.
func (s *Service) ListMyConversations(ctx context.Context, userID string) ([]chat.Summary, error) {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(user.ConversationRefs) == 0 {
		return []chat.Summary{}, nil
	}

	convs, err := s.conversations.FindByIDs(ctx, user.ConversationRefs)
	if err != nil {
		return nil, err
	}
	if len(convs) < len(user.ConversationRefs) {
		s.logger.Warn("user holds dangling conversation references", "user", userID,
			"refs", len(user.ConversationRefs), "found", len(convs))
	}

	summaries := make([]chat.Summary, 0, len(convs))
	for _, conv := range convs {
		if !conv.HasParticipant(userID) || len(conv.Messages) == 0 {
			continue
		}
		summaries = append(summaries, conv.Summary())
	}
	sort.SliceStable(summaries, func(i, j int) bool {
		a, b := summaries[i], summaries[j]
		if a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.ID < b.ID
		}
		return a.UpdatedAt.After(b.UpdatedAt)
	})
	return summaries, nil
}

// GetConversation loads the room if userID participates in it. A room whose
// last message is gone counts as deleted even if its record still exists.
func (s *Service) GetConversation(ctx context.Context, userID, roomID string) (chat.Conversation, error) {
	conv, err := s.participantRoom(ctx, userID, roomID)
	if err != nil {
		return chat.Conversation{}, err
	}
	if len(conv.Messages) == 0 {
		return chat.Conversation{}, chat.NotFound("room", roomID)
	}
	return conv, nil
}

// Authorize checks that userID participates in roomID. Unlike
// GetConversation it accepts an empty room, so a caller can retry a delete
// that failed halfway.
func (s *Service) Authorize(ctx context.Context, userID, roomID string) error {
	_, err := s.participantRoom(ctx, userID, roomID)
	return err
}

func (s *Service) participantRoom(ctx context.Context, userID, roomID string) (chat.Conversation, error) {
	conv, err := s.conversations.FindByRoomID(ctx, roomID)
	if err != nil {
		return chat.Conversation{}, err
	}
	if !conv.HasParticipant(userID) {
		return chat.Conversation{}, fmt.Errorf("%w: user %s is not a participant of room %s", chat.ErrForbidden, userID, roomID)
	}
	return conv, nil
}

// ListMessagesInRoom returns the transcript of the room for a participant.
func (s *Service) ListMessagesInRoom(ctx context.Context, userID, roomID string) ([]chat.Message, error) {
	conv, err := s.GetConversation(ctx, userID, roomID)
	if err != nil {
		return nil, err
	}
	return conv.Messages, nil
}

// ListUsers pages through the directory, hiding excluded accounts.
func (s *Service) ListUsers(ctx context.Context, query chat.ListUsersQuery) ([]chat.User, error) {
	return s.users.ListUsers(ctx, query.Normalize())
}

// CountUsers counts directory users that are not excluded.
func (s *Service) CountUsers(ctx context.Context, exclude chat.Exclusion) (int64, error) {
	return s.users.CountUsers(ctx, exclude)
}
