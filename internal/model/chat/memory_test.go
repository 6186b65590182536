package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func newConv(id, roomID string, bodies ...string) Conversation {
	conv := Conversation{ID: id, RoomID: roomID, OwnerID: "u1", CounterpartID: "u2"}
	for i, body := range bodies {
		conv.Messages = append(conv.Messages, Message{
			ID:        id + "-" + body,
			Author:    "u1",
			Body:      body,
			Timestamp: time.Unix(int64(i), 0).UTC(),
		})
	}
	return conv
}

func TestMemoryStoreConversationRefsAreASet(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(User{ID: "u1"})

	for i := 0; i < 3; i++ {
		if err := store.AddConversationRef(ctx, "u1", "c1"); err != nil {
			t.Fatalf("AddConversationRef err: %v", err)
		}
	}
	user, _ := store.GetUser(ctx, "u1")
	if len(user.ConversationRefs) != 1 {
		t.Fatalf("expected a single reference, got %v", user.ConversationRefs)
	}

	if err := store.RemoveConversationRef(ctx, "u1", "c1"); err != nil {
		t.Fatalf("RemoveConversationRef err: %v", err)
	}
	if err := store.RemoveConversationRef(ctx, "u1", "c1"); err != nil {
		t.Fatalf("second RemoveConversationRef should be a no-op, got %v", err)
	}
	if err := store.RemoveConversationRef(ctx, "ghost", "c1"); err != nil {
		t.Fatalf("removal from a missing user should be a no-op, got %v", err)
	}
	if err := store.AddConversationRef(ctx, "ghost", "c1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing user, got %v", err)
	}
}

func TestMemoryStoreCreateConversationRejectsDuplicateRoom(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if _, err := store.CreateConversation(ctx, newConv("c1", "r1", "hi")); err != nil {
		t.Fatalf("CreateConversation err: %v", err)
	}
	if _, err := store.CreateConversation(ctx, newConv("c2", "r1", "hi")); !errors.Is(err, ErrDuplicateRoom) {
		t.Fatalf("expected ErrDuplicateRoom, got %v", err)
	}
	if _, err := store.CreateConversation(ctx, newConv("c3", "r3")); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("empty conversations must not be created, got %v", err)
	}
}

func TestMemoryStoreRemoveMessageByID(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	created, _ := store.CreateConversation(ctx, newConv("c1", "r1", "a", "b", "c"))

	updated, err := store.RemoveMessage(ctx, "r1", "c1-b")
	if err != nil {
		t.Fatalf("RemoveMessage err: %v", err)
	}
	if len(updated.Messages) != 2 || updated.Messages[1].Body != "c" {
		t.Fatalf("unexpected transcript %+v", updated.Messages)
	}
	if updated.Version != created.Version+1 {
		t.Fatalf("expected version bump, got %d", updated.Version)
	}
	if _, err := store.RemoveMessage(ctx, "r1", "c1-b"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for removed message, got %v", err)
	}
}

func TestMemoryStoreDeleteIfEmptyOnlyDeletesEmptyRooms(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.CreateConversation(ctx, newConv("c1", "r1", "a"))

	deleted, err := store.DeleteIfEmpty(ctx, "c1")
	if err != nil || deleted {
		t.Fatalf("non-empty room must survive, deleted=%v err=%v", deleted, err)
	}

	store.RemoveMessage(ctx, "r1", "c1-a")
	deleted, err = store.DeleteIfEmpty(ctx, "c1")
	if err != nil || !deleted {
		t.Fatalf("expected empty room to be deleted, deleted=%v err=%v", deleted, err)
	}
	if _, err := store.FindByRoomID(ctx, "r1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected room index cleared, got %v", err)
	}
}

func TestMemoryStoreReplaceMessagesHonoursVersion(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	created, _ := store.CreateConversation(ctx, newConv("c1", "r1", "a"))

	stale := created.Version - 1
	if _, err := store.ReplaceMessages(ctx, "r1", nil, &stale); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	current := created.Version
	next := newConv("c1", "r1", "a", "b").Messages
	updated, err := store.ReplaceMessages(ctx, "r1", next, &current)
	if err != nil {
		t.Fatalf("ReplaceMessages err: %v", err)
	}
	if len(updated.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(updated.Messages))
	}
}

func TestMemoryStoreAppendMessageHonoursVersion(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	created, _ := store.CreateConversation(ctx, newConv("c1", "r1", "a"))

	stale := created.Version - 1
	if _, err := store.AppendMessage(ctx, "r1", Message{ID: "m2", Author: "u2", Body: "b"}, &stale); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	current := created.Version
	updated, err := store.AppendMessage(ctx, "r1", Message{ID: "m2", Author: "u2", Body: "b"}, &current)
	if err != nil {
		t.Fatalf("AppendMessage err: %v", err)
	}
	// The first writer moved the version on; a second writer holding the
	// same expectation must lose.
	if _, err := store.AppendMessage(ctx, "r1", Message{ID: "m3", Author: "u1", Body: "c"}, &current); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for the second writer, got %v", err)
	}
	if len(updated.Messages) != 2 || updated.Version != created.Version+1 {
		t.Fatalf("unexpected conversation %+v", updated)
	}
}

func TestMemoryStoreAppendMessageRejectsDuplicateID(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.CreateConversation(ctx, newConv("c1", "r1", "a"))

	if _, err := store.AppendMessage(ctx, "r1", Message{ID: "c1-a", Author: "u2", Body: "again"}, nil); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	conv, _ := store.FindByRoomID(ctx, "r1")
	if len(conv.Messages) != 1 {
		t.Fatalf("duplicate id must not be stored: %+v", conv.Messages)
	}
}

func TestMemoryStoreClockSwapWhileWriting(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			store.UseClock(func() time.Time { return fixed })
		}()
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("u%d", i)
			if _, err := store.CreateUser(ctx, User{ID: id}); err != nil {
				t.Errorf("CreateUser err: %v", err)
			}
			if _, err := store.CreateConversation(ctx, newConv("c"+id, "r"+id, "a")); err != nil {
				t.Errorf("CreateConversation err: %v", err)
			}
		}(i)
	}
	wg.Wait()
}

func TestMemoryStoreListUsersExcludesAndPages(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(
		User{ID: "super", Role: "admin"},
		User{ID: "u1", Role: "user", Email: "c@example.com"},
		User{ID: "u2", Role: "user", Email: "a@example.com"},
		User{ID: "u3", Role: "admin", Email: "b@example.com"},
	)
	exclude := NewExclusion("super", "")

	users, err := store.ListUsers(ctx, ListUsersQuery{Sort: SortByEmail, Exclude: exclude})
	if err != nil {
		t.Fatalf("ListUsers err: %v", err)
	}
	if len(users) != 3 || users[0].ID != "u2" || users[2].ID != "u1" {
		t.Fatalf("unexpected order %+v", users)
	}

	page, _ := store.ListUsers(ctx, ListUsersQuery{Page: 2, PerPage: 2, Sort: SortByEmail, Exclude: exclude})
	if len(page) != 1 || page[0].ID != "u1" {
		t.Fatalf("unexpected second page %+v", page)
	}

	count, _ := store.CountUsers(ctx, exclude)
	if count != 3 {
		t.Fatalf("expected 3 users, got %d", count)
	}
}

func TestListUsersQueryNormalize(t *testing.T) {
	q := ListUsersQuery{Page: 0, PerPage: 500, Sort: "password"}.Normalize()
	if q.Page != 1 || q.PerPage != maxPerPage || q.Sort != SortByRole {
		t.Fatalf("unexpected normalized query %+v", q)
	}
	if q.Skip() != 0 {
		t.Fatalf("unexpected skip %d", q.Skip())
	}
}
