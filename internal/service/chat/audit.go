package chat

import (
	"context"
	"errors"
	"slices"

	"github.com/rent-in-out1/rent-in-out-backend/internal/model/chat"
)

const auditPageSize = 20

// Violation is one broken reference found by Audit.
type Violation struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	// Reason is "missing-ref" (a participant does not reference the room),
	// "missing-user" (a participant's record was deleted), "dangling-ref"
	// (a user references a room that is gone or not theirs) or "empty"
	// (a room with no messages).
	Reason string `json:"reason"`
}

// AuditReport lists every violation of the reference invariants.
type AuditReport struct {
	Users         int         `json:"users"`
	Conversations int         `json:"conversations"`
	Violations    []Violation `json:"violations"`
}

// ConversationIDs returns the distinct conversation ids involved.
func (r AuditReport) ConversationIDs() []string {
	var ids []string
	for _, v := range r.Violations {
		if !slices.Contains(ids, v.ConversationID) {
			ids = append(ids, v.ConversationID)
		}
	}
	return ids
}

// Audit walks every conversation and every user and reports broken
// references. It reads page by page and does not modify anything; concurrent
// writers can make it report transient states.
func (s *Service) Audit(ctx context.Context) (AuditReport, error) {
	var report AuditReport

	for page := 1; ; page++ {
		convs, err := s.conversations.ListConversations(ctx, page, auditPageSize)
		if err != nil {
			return report, err
		}
		for _, conv := range convs {
			report.Conversations++
			if len(conv.Messages) == 0 {
				report.Violations = append(report.Violations, Violation{ConversationID: conv.ID, Reason: "empty"})
			}
			for _, participant := range conv.Participants() {
				user, err := s.users.GetUser(ctx, participant)
				if errors.Is(err, chat.ErrNotFound) {
					report.Violations = append(report.Violations, Violation{ConversationID: conv.ID, UserID: participant, Reason: "missing-user"})
					continue
				}
				if err != nil {
					return report, err
				}
				if !user.HasConversation(conv.ID) {
					report.Violations = append(report.Violations, Violation{ConversationID: conv.ID, UserID: participant, Reason: "missing-ref"})
				}
			}
		}
		if len(convs) < auditPageSize {
			break
		}
	}

	for page := 1; ; page++ {
		users, err := s.users.ListUsers(ctx, chat.ListUsersQuery{Page: page, PerPage: auditPageSize, Sort: chat.SortByCreatedAt})
		if err != nil {
			return report, err
		}
		for _, user := range users {
			report.Users++
			if len(user.ConversationRefs) == 0 {
				continue
			}
			found, err := s.conversations.FindByIDs(ctx, user.ConversationRefs)
			if err != nil {
				return report, err
			}
			for _, ref := range user.ConversationRefs {
				idx := slices.IndexFunc(found, func(c chat.Conversation) bool { return c.ID == ref })
				if idx < 0 || !found[idx].HasParticipant(user.ID) {
					report.Violations = append(report.Violations, Violation{ConversationID: ref, UserID: user.ID, Reason: "dangling-ref"})
				}
			}
		}
		if len(users) < auditPageSize {
			break
		}
	}

	return report, nil
}

// Fix applies Repair to every conversation in report and drops references
// held by users who are not participants of an existing room. It returns the
// number of conversations it repaired; the first error stops it.
func (s *Service) Fix(ctx context.Context, report AuditReport) (int, error) {
	fixed := 0
	for _, id := range report.ConversationIDs() {
		if _, err := s.Repair(ctx, id); err != nil {
			return fixed, err
		}
		fixed++
	}
	for _, v := range report.Violations {
		if v.Reason != "dangling-ref" {
			continue
		}
		// Repair keeps references of real participants; strangers are
		// removed here. Removing an absent reference is a no-op.
		conv, err := s.conversations.GetConversation(ctx, v.ConversationID)
		if err != nil || conv.HasParticipant(v.UserID) {
			continue
		}
		if err := s.users.RemoveConversationRef(ctx, v.UserID, v.ConversationID); err != nil {
			return fixed, err
		}
	}
	return fixed, nil
}
