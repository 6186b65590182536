package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rent-in-out1/rent-in-out-backend/internal/model/chat"
)

// SubmitRequest is an inbound message for the room shared by OwnerID and
// CounterpartID. When Transcript is non-nil it is the client's authoritative
// copy of the whole conversation and replaces the stored one; otherwise
// Message is appended.
type SubmitRequest struct {
	OwnerID         string
	CounterpartID   string
	RoomID          string
	Message         chat.Message
	Transcript      []chat.Message
	ExpectedVersion *int64
}

// UpsertMessage creates the room on first contact or writes into the
// existing one. Room identity depends only on the unordered pair of users.
func (s *Service) UpsertMessage(ctx context.Context, req SubmitRequest) (chat.Conversation, error) {
	req.OwnerID = strings.TrimSpace(req.OwnerID)
	req.CounterpartID = strings.TrimSpace(req.CounterpartID)

	roomID, err := chat.RoomID(req.OwnerID, req.CounterpartID)
	if err != nil {
		return chat.Conversation{}, err
	}
	if req.RoomID != "" && req.RoomID != roomID {
		return chat.Conversation{}, fmt.Errorf("%w: room %s does not belong to this pair of users", chat.ErrInvalidArgument, req.RoomID)
	}

	owner, err := s.users.GetUser(ctx, req.OwnerID)
	if err != nil {
		return chat.Conversation{}, err
	}

	existing, err := s.conversations.FindByRoomID(ctx, roomID)
	switch {
	case err == nil:
		return s.writeToRoom(ctx, existing, owner, req)
	case !errors.Is(err, chat.ErrNotFound):
		return chat.Conversation{}, err
	}

	if _, err := s.users.GetUser(ctx, req.CounterpartID); err != nil {
		return chat.Conversation{}, err
	}

	messages, err := s.initialTranscript(req)
	if err != nil {
		return chat.Conversation{}, err
	}

	now := s.now()
	created, err := s.conversations.CreateConversation(ctx, chat.Conversation{
		ID:            s.newID(),
		RoomID:        roomID,
		OwnerID:       req.OwnerID,
		CounterpartID: req.CounterpartID,
		Messages:      messages,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if errors.Is(err, chat.ErrDuplicateRoom) {
		// Lost the creation race; the room now exists, so write into it.
		existing, err := s.conversations.FindByRoomID(ctx, roomID)
		if err != nil {
			return chat.Conversation{}, err
		}
		return s.writeToRoom(ctx, existing, owner, req)
	}
	if err != nil {
		return chat.Conversation{}, err
	}

	s.logger.Debug("room created", "room", created.RoomID, "conversation", created.ID)

	if err := s.linkParticipants(ctx, "upsertMessage", created, created.Participants()); err != nil {
		return created, err
	}

	s.notify(ctx, created, chat.EventMessage)
	return created, nil
}

// writeToRoom applies the append/replace path. The transcript overwrite is
// last-writer-wins unless the caller pins ExpectedVersion.
func (s *Service) writeToRoom(ctx context.Context, conv chat.Conversation, owner chat.User, req SubmitRequest) (chat.Conversation, error) {
	var (
		updated chat.Conversation
		err     error
	)
	if req.Transcript != nil {
		transcript, terr := s.normalizeTranscript(req.OwnerID, req.CounterpartID, req.Transcript)
		if terr != nil {
			return chat.Conversation{}, terr
		}
		updated, err = s.conversations.ReplaceMessages(ctx, conv.RoomID, transcript, req.ExpectedVersion)
	} else {
		msg, merr := s.normalizeMessage(req.OwnerID, req.CounterpartID, req.Message)
		if merr != nil {
			return chat.Conversation{}, merr
		}
		// Message ids address deletes; a repeated id would make them ambiguous.
		if conv.IndexOf(msg.ID) >= 0 {
			return chat.Conversation{}, fmt.Errorf("%w: duplicate message id %s", chat.ErrInvalidArgument, msg.ID)
		}
		// The version check happens inside the store write so two appends
		// pinned to the same version cannot both succeed.
		updated, err = s.conversations.AppendMessage(ctx, conv.RoomID, msg, req.ExpectedVersion)
	}
	if err != nil {
		return chat.Conversation{}, err
	}

	// A previous partial failure may have left a participant without the
	// reference; set-add makes the repair idempotent.
	missing := s.missingRefs(ctx, updated, owner)
	if len(missing) > 0 {
		s.logger.Warn("restoring missing back-references", "conversation", updated.ID, "users", missing)
		if err := s.linkParticipants(ctx, "upsertMessage", updated, missing); err != nil {
			return updated, err
		}
	}

	s.notify(ctx, updated, chat.EventMessage)
	return updated, nil
}

func (s *Service) missingRefs(ctx context.Context, conv chat.Conversation, owner chat.User) []string {
	var missing []string
	for _, participant := range conv.Participants() {
		user := owner
		if participant != owner.ID {
			var err error
			user, err = s.users.GetUser(ctx, participant)
			if err != nil {
				// A vanished counterpart cannot be repaired here.
				s.logger.Debug("skipping reference check", "user", participant, "err", err)
				continue
			}
		}
		if !user.HasConversation(conv.ID) {
			missing = append(missing, participant)
		}
	}
	return missing
}

func (s *Service) initialTranscript(req SubmitRequest) ([]chat.Message, error) {
	if req.Transcript != nil {
		return s.normalizeTranscript(req.OwnerID, req.CounterpartID, req.Transcript)
	}
	msg, err := s.normalizeMessage(req.OwnerID, req.CounterpartID, req.Message)
	if err != nil {
		return nil, err
	}
	return []chat.Message{msg}, nil
}

func (s *Service) normalizeTranscript(senderID, counterpartID string, transcript []chat.Message) ([]chat.Message, error) {
	if len(transcript) == 0 {
		return nil, fmt.Errorf("%w: transcript must contain at least one message", chat.ErrInvalidArgument)
	}
	normalized := make([]chat.Message, 0, len(transcript))
	seen := make(map[string]struct{}, len(transcript))
	for _, msg := range transcript {
		msg, err := s.normalizeMessage(senderID, counterpartID, msg)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[msg.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate message id %s", chat.ErrInvalidArgument, msg.ID)
		}
		seen[msg.ID] = struct{}{}
		normalized = append(normalized, msg)
	}
	return normalized, nil
}

// normalizeMessage fills id, author and timestamp defaults and validates the
// rest. The author defaults to the sender.
func (s *Service) normalizeMessage(senderID, counterpartID string, msg chat.Message) (chat.Message, error) {
	msg.Body = strings.TrimSpace(msg.Body)
	if msg.Body == "" {
		return chat.Message{}, fmt.Errorf("%w: message body is required", chat.ErrInvalidArgument)
	}
	if msg.Author == "" {
		msg.Author = senderID
	}
	if msg.Author != senderID && msg.Author != counterpartID {
		return chat.Message{}, fmt.Errorf("%w: author %s is not a participant", chat.ErrInvalidArgument, msg.Author)
	}
	if msg.ID == "" {
		msg.ID = s.newID()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.now()
	}
	return msg, nil
}

// linkParticipants adds conv.ID to each user's references. Each write is
// attempted independently.
func (s *Service) linkParticipants(ctx context.Context, op string, conv chat.Conversation, userIDs []string) error {
	return s.eachParticipant(op, conv, userIDs, func(userID string) error {
		return s.users.AddConversationRef(ctx, userID, conv.ID)
	})
}

// unlinkParticipants removes conv.ID from each user's references.
func (s *Service) unlinkParticipants(ctx context.Context, op string, conv chat.Conversation) error {
	return s.eachParticipant(op, conv, conv.Participants(), func(userID string) error {
		return s.users.RemoveConversationRef(ctx, userID, conv.ID)
	})
}

func (s *Service) eachParticipant(op string, conv chat.Conversation, userIDs []string, write func(string) error) error {
	var (
		completed []string
		pending   []string
		errs      []error
	)
	for _, userID := range userIDs {
		if err := write(userID); err != nil {
			pending = append(pending, userID)
			errs = append(errs, fmt.Errorf("user %s: %w", userID, err))
			continue
		}
		completed = append(completed, userID)
	}
	if len(pending) == 0 {
		return nil
	}

	s.logger.Error("back-reference update incomplete", "op", op, "conversation", conv.ID, "pending", pending)
	return &chat.PartialFailure{
		Op:             op,
		ConversationID: conv.ID,
		Completed:      completed,
		Pending:        pending,
		Err:            errors.Join(errs...),
	}
}
