package chat

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/rent-in-out1/rent-in-out-backend/internal/model/chat"
)

// Outcome describes the effect of a deletion.
type Outcome struct {
	RoomID              string             `json:"roomId"`
	ConversationID      string             `json:"conversationId"`
	ConversationDeleted bool               `json:"conversationDeleted"`
	Remaining           int                `json:"remaining"`
	Conversation        *chat.Conversation `json:"conversation,omitempty"`
}

// DeleteMessageAt removes the message at index. The index is resolved to the
// message's stable id against the current transcript and the removal is done
// by id, so a concurrent shift cannot make it hit a different message.
func (s *Service) DeleteMessageAt(ctx context.Context, roomID string, index int) (Outcome, error) {
	conv, err := s.conversations.FindByRoomID(ctx, roomID)
	if err != nil {
		return Outcome{}, err
	}
	if len(conv.Messages) == 0 {
		return s.finishEmptyRoom(ctx, conv)
	}
	if index < 0 || index >= len(conv.Messages) {
		return Outcome{}, chat.NotFound("message", strconv.Itoa(index))
	}
	return s.removeMessage(ctx, conv, conv.Messages[index].ID)
}

// DeleteMessage removes the message with the given stable id.
func (s *Service) DeleteMessage(ctx context.Context, roomID, messageID string) (Outcome, error) {
	conv, err := s.conversations.FindByRoomID(ctx, roomID)
	if err != nil {
		return Outcome{}, err
	}
	if len(conv.Messages) == 0 {
		return s.finishEmptyRoom(ctx, conv)
	}
	if conv.IndexOf(messageID) < 0 {
		return Outcome{}, chat.NotFound("message", messageID)
	}
	return s.removeMessage(ctx, conv, messageID)
}

func (s *Service) removeMessage(ctx context.Context, conv chat.Conversation, messageID string) (Outcome, error) {
	updated, err := s.conversations.RemoveMessage(ctx, conv.RoomID, messageID)
	if err != nil {
		return Outcome{}, err
	}

	if len(updated.Messages) > 0 {
		s.notify(ctx, updated, chat.EventMessage)
		return Outcome{
			RoomID:         updated.RoomID,
			ConversationID: updated.ID,
			Remaining:      len(updated.Messages),
			Conversation:   &updated,
		}, nil
	}
	return s.finishEmptyRoom(ctx, updated)
}

// finishEmptyRoom deletes a room whose transcript is empty and drops both
// back-references. A room left empty by an earlier failed delete is finished
// here on retry.
func (s *Service) finishEmptyRoom(ctx context.Context, conv chat.Conversation) (Outcome, error) {
	outcome := Outcome{RoomID: conv.RoomID, ConversationID: conv.ID}

	deleted, err := s.conversations.DeleteIfEmpty(ctx, conv.ID)
	if err != nil {
		s.logger.Error("empty room not removed", "conversation", conv.ID, "err", err)
		return outcome, &chat.PartialFailure{
			Op:             "deleteMessage",
			ConversationID: conv.ID,
			Pending:        conv.Participants(),
			Err:            err,
		}
	}
	if !deleted {
		current, err := s.conversations.GetConversation(ctx, conv.ID)
		switch {
		case err == nil:
			// Refilled by a concurrent writer between the removal and the delete.
			outcome.Remaining = len(current.Messages)
			outcome.Conversation = &current
			s.notify(ctx, current, chat.EventMessage)
			return outcome, nil
		case !errors.Is(err, chat.ErrNotFound):
			return outcome, err
		}
		// Deleted concurrently; unlinking below is idempotent.
	}

	outcome.ConversationDeleted = true
	if err := s.unlinkParticipants(ctx, "deleteMessage", conv); err != nil {
		return outcome, err
	}

	s.logger.Debug("room emptied and removed", "room", conv.RoomID, "conversation", conv.ID)
	s.notify(ctx, conv, chat.EventConversationDeleted)
	return outcome, nil
}

// DeleteConversation removes the room and both back-references. References
// are removed first; if either removal fails the record is kept so a retry of
// DeleteConversation can finish the job. A second call on a deleted room
// returns chat.ErrNotFound.
func (s *Service) DeleteConversation(ctx context.Context, roomID string) (Outcome, error) {
	conv, err := s.conversations.FindByRoomID(ctx, roomID)
	if err != nil {
		return Outcome{}, err
	}

	outcome := Outcome{RoomID: conv.RoomID, ConversationID: conv.ID, Remaining: len(conv.Messages)}
	if err := s.unlinkParticipants(ctx, "deleteConversation", conv); err != nil {
		return outcome, err
	}

	if err := s.conversations.DeleteConversation(ctx, conv.ID); err != nil && !errors.Is(err, chat.ErrNotFound) {
		return outcome, err
	}

	outcome.ConversationDeleted = true
	outcome.Remaining = 0
	s.notify(ctx, conv, chat.EventConversationDeleted)
	return outcome, nil
}

// AuthorizeRepair allows a repair of conversationID by userID when the user
// participates in the conversation or, once it is gone, still holds a
// reference to it.
func (s *Service) AuthorizeRepair(ctx context.Context, userID, conversationID string) error {
	conv, err := s.conversations.GetConversation(ctx, conversationID)
	switch {
	case err == nil:
		if !conv.HasParticipant(userID) {
			return fmt.Errorf("%w: user %s is not a participant of conversation %s", chat.ErrForbidden, userID, conversationID)
		}
		return nil
	case !errors.Is(err, chat.ErrNotFound):
		return err
	}

	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if !user.HasConversation(conversationID) {
		return chat.NotFound("conversation", conversationID)
	}
	return nil
}

// RepairReport summarises what Repair changed.
type RepairReport struct {
	ConversationID string   `json:"conversationId"`
	Exists         bool     `json:"exists"`
	Linked         []string `json:"linked,omitempty"`
	Missing        []string `json:"missing,omitempty"`
	Unlinked       int64    `json:"unlinked"`
}

// Repair restores the reference invariants for one conversation id.
// If the conversation exists both participants reference it afterwards; if it
// does not (or is empty), no user references it afterwards. Participants whose
// user record no longer exists are reported in Missing and left alone. Safe to
// repeat.
func (s *Service) Repair(ctx context.Context, conversationID string) (RepairReport, error) {
	report := RepairReport{ConversationID: conversationID}

	conv, err := s.conversations.GetConversation(ctx, conversationID)
	switch {
	case err == nil && len(conv.Messages) > 0:
		report.Exists = true
		var present []string
		for _, participant := range conv.Participants() {
			_, err := s.users.GetUser(ctx, participant)
			switch {
			case err == nil:
				present = append(present, participant)
			case errors.Is(err, chat.ErrNotFound):
				report.Missing = append(report.Missing, participant)
			default:
				return report, err
			}
		}
		if len(report.Missing) > 0 {
			s.logger.Warn("conversation participant no longer exists", "conversation", conversationID, "users", report.Missing)
		}
		if err := s.linkParticipants(ctx, "repair", conv, present); err != nil {
			return report, err
		}
		report.Linked = present
		return report, nil
	case err == nil:
		if _, err := s.conversations.DeleteIfEmpty(ctx, conversationID); err != nil {
			return report, err
		}
	case !errors.Is(err, chat.ErrNotFound):
		return report, err
	}

	n, err := s.users.RemoveConversationRefEverywhere(ctx, conversationID)
	if err != nil {
		return report, err
	}
	report.Unlinked = n
	if n > 0 {
		s.logger.Info("removed dangling references", "conversation", conversationID, "users", n)
	}
	return report, nil
}
