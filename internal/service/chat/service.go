package chat

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/rent-in-out1/rent-in-out-backend/internal/model/chat"
)

// Service is the room engine: it resolves incoming messages to rooms and
// cascades deletions onto both participants' back-references.
//
// There is no in-process locking. The document store's single-document
// atomicity is the only serialization; two-document updates are best-effort
// and report chat.PartialFailure when half applied.
type Service struct {
	users         chat.UserDirectory
	conversations chat.ConversationStore
	notifier      chat.Notifier
	logger        *log.Logger

	now   func() time.Time
	newID func() string
}

// Option customises a Service.
type Option func(*Service)

// WithLogger overrides the default logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithClock overrides the timestamp source used for new messages.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService wires the engine to its stores. A nil notifier disables push.
func NewService(users chat.UserDirectory, conversations chat.ConversationStore, notifier chat.Notifier, opts ...Option) *Service {
	s := &Service{
		users:         users,
		conversations: conversations,
		notifier:      notifier,
		logger:        log.Default().WithPrefix("chat"),
		now:           func() time.Time { return time.Now().UTC() },
		newID:         uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) notify(ctx context.Context, conv chat.Conversation, eventType string) {
	if s.notifier == nil {
		return
	}
	event := chat.Event{
		Type:           eventType,
		RoomID:         conv.RoomID,
		ConversationID: conv.ID,
	}
	if eventType == chat.EventMessage {
		snapshot := conv.Clone()
		event.Conversation = &snapshot
	}
	for _, participant := range conv.Participants() {
		s.notifier.Notify(ctx, participant, event)
	}
}
