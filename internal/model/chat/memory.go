package chat

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	_ UserDirectory     = (*MemoryStore)(nil)
	_ ConversationStore = (*MemoryStore)(nil)
)

// MemoryStore implements UserDirectory and ConversationStore with in-memory
// maps, suitable for tests and local development.
type MemoryStore struct {
	mu            sync.RWMutex
	users         map[string]User
	conversations map[string]Conversation
	rooms         map[string]string // roomID -> conversation id
	now           func() time.Time
}

// NewMemoryStore returns an empty MemoryStore preloaded with users.
func NewMemoryStore(users ...User) *MemoryStore {
	s := &MemoryStore{
		users:         make(map[string]User),
		conversations: make(map[string]Conversation),
		rooms:         make(map[string]string),
		now:           func() time.Time { return time.Now().UTC() },
	}
	for _, u := range users {
		u = u.Clone()
		if u.CreatedAt.IsZero() {
			u.CreatedAt = s.now()
			u.UpdatedAt = u.CreatedAt
		}
		s.users[u.ID] = u
	}
	return s
}

// UseClock swaps the timestamp source, typically for deterministic tests.
func (s *MemoryStore) UseClock(now func() time.Time) *MemoryStore {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
	return s
}

func (s *MemoryStore) CreateUser(_ context.Context, user User) (User, error) {
	if user.ID == "" {
		return User{}, ErrInvalidArgument
	}
	user = user.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.ID]; ok {
		return User{}, ErrConflict
	}
	now := s.now()
	user.CreatedAt, user.UpdatedAt = now, now
	s.users[user.ID] = user
	return user.Clone(), nil
}

func (s *MemoryStore) GetUser(_ context.Context, id string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[id]
	if !ok {
		return User{}, NotFound("user", id)
	}
	return user.Clone(), nil
}

func (s *MemoryStore) ListUsers(_ context.Context, query ListUsersQuery) ([]User, error) {
	query = query.Normalize()

	s.mu.RLock()
	users := make([]User, 0, len(s.users))
	for _, u := range s.users {
		if query.Exclude.Excludes(u.ID) {
			continue
		}
		users = append(users, u.Clone())
	}
	s.mu.RUnlock()

	sort.SliceStable(users, func(i, j int) bool {
		less, equal := compareUsers(users[i], users[j], query.Sort)
		if equal {
			return users[i].ID < users[j].ID
		}
		if query.Reverse {
			return !less
		}
		return less
	})

	start := min(query.Skip(), len(users))
	end := min(start+query.PerPage, len(users))
	return users[start:end], nil
}

func compareUsers(a, b User, field string) (less, equal bool) {
	switch field {
	case SortByEmail:
		c := strings.Compare(a.Email, b.Email)
		return c < 0, c == 0
	case SortByCreatedAt:
		return a.CreatedAt.Before(b.CreatedAt), a.CreatedAt.Equal(b.CreatedAt)
	default:
		c := strings.Compare(a.Role, b.Role)
		return c < 0, c == 0
	}
}

func (s *MemoryStore) CountUsers(_ context.Context, exclude Exclusion) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for id := range s.users {
		if !exclude.Excludes(id) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) DeleteUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return NotFound("user", id)
	}
	delete(s.users, id)
	return nil
}

func (s *MemoryStore) AddConversationRef(_ context.Context, userID, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return NotFound("user", userID)
	}
	if !user.HasConversation(conversationID) {
		user.ConversationRefs = append(slices.Clone(user.ConversationRefs), conversationID)
		user.UpdatedAt = s.now()
		s.users[userID] = user
	}
	return nil
}

func (s *MemoryStore) RemoveConversationRef(_ context.Context, userID, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok || !user.HasConversation(conversationID) {
		return nil
	}
	user.ConversationRefs = slices.DeleteFunc(slices.Clone(user.ConversationRefs), func(id string) bool {
		return id == conversationID
	})
	user.UpdatedAt = s.now()
	s.users[userID] = user
	return nil
}

func (s *MemoryStore) ListUsersReferencing(_ context.Context, conversationID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id, u := range s.users {
		if u.HasConversation(conversationID) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) RemoveConversationRefEverywhere(ctx context.Context, conversationID string) (int64, error) {
	ids, _ := s.ListUsersReferencing(ctx, conversationID)
	for _, id := range ids {
		_ = s.RemoveConversationRef(ctx, id, conversationID)
	}
	return int64(len(ids)), nil
}

func (s *MemoryStore) CreateConversation(_ context.Context, conv Conversation) (Conversation, error) {
	if conv.ID == "" || conv.RoomID == "" || len(conv.Messages) == 0 {
		return Conversation{}, ErrInvalidArgument
	}
	conv = conv.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[conv.RoomID]; ok {
		return Conversation{}, ErrDuplicateRoom
	}
	now := s.now()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	conv.UpdatedAt = now
	conv.Version = 1
	s.conversations[conv.ID] = conv
	s.rooms[conv.RoomID] = conv.ID
	return conv.Clone(), nil
}

func (s *MemoryStore) GetConversation(_ context.Context, id string) (Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[id]
	if !ok {
		return Conversation{}, NotFound("conversation", id)
	}
	return conv.Clone(), nil
}

func (s *MemoryStore) FindByRoomID(_ context.Context, roomID string) (Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.roomLocked(roomID)
	if !ok {
		return Conversation{}, NotFound("room", roomID)
	}
	return conv.Clone(), nil
}

func (s *MemoryStore) FindByParticipant(_ context.Context, userID string) ([]Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found []Conversation
	for _, conv := range s.conversations {
		if conv.HasParticipant(userID) {
			found = append(found, conv.Clone())
		}
	}
	sortByID(found)
	return found, nil
}

func (s *MemoryStore) FindByIDs(_ context.Context, ids []string) ([]Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	found := make([]Conversation, 0, len(ids))
	for _, id := range ids {
		if conv, ok := s.conversations[id]; ok {
			found = append(found, conv.Clone())
		}
	}
	return found, nil
}

func (s *MemoryStore) ListConversations(_ context.Context, page, perPage int) ([]Conversation, error) {
	s.mu.RLock()
	all := make([]Conversation, 0, len(s.conversations))
	for _, conv := range s.conversations {
		all = append(all, conv.Clone())
	}
	s.mu.RUnlock()

	sortByID(all)
	if perPage <= 0 {
		return all, nil
	}
	if page < 1 {
		page = 1
	}
	start := min((page-1)*perPage, len(all))
	end := min(start+perPage, len(all))
	return all[start:end], nil
}

func (s *MemoryStore) ReplaceMessages(_ context.Context, roomID string, messages []Message, expectedVersion *int64) (Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.roomLocked(roomID)
	if !ok {
		return Conversation{}, NotFound("room", roomID)
	}
	if expectedVersion != nil && *expectedVersion != conv.Version {
		return Conversation{}, ErrConflict
	}
	conv.Messages = cloneMessages(messages)
	return s.saveLocked(conv), nil
}

func (s *MemoryStore) AppendMessage(_ context.Context, roomID string, msg Message, expectedVersion *int64) (Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.roomLocked(roomID)
	if !ok {
		return Conversation{}, NotFound("room", roomID)
	}
	if expectedVersion != nil && *expectedVersion != conv.Version {
		return Conversation{}, ErrConflict
	}
	if conv.IndexOf(msg.ID) >= 0 {
		return Conversation{}, ErrInvalidArgument
	}
	conv.Messages = append(cloneMessages(conv.Messages), msg)
	return s.saveLocked(conv), nil
}

func (s *MemoryStore) RemoveMessage(_ context.Context, roomID, messageID string) (Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.roomLocked(roomID)
	if !ok {
		return Conversation{}, NotFound("room", roomID)
	}
	idx := conv.IndexOf(messageID)
	if messageID == "" || idx < 0 {
		return Conversation{}, NotFound("message", messageID)
	}
	conv.Messages = slices.Delete(cloneMessages(conv.Messages), idx, idx+1)
	return s.saveLocked(conv), nil
}

func (s *MemoryStore) DeleteIfEmpty(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[id]
	if !ok || len(conv.Messages) > 0 {
		return false, nil
	}
	s.deleteLocked(conv)
	return true, nil
}

func (s *MemoryStore) DeleteConversation(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[id]
	if !ok {
		return NotFound("conversation", id)
	}
	s.deleteLocked(conv)
	return nil
}

func (s *MemoryStore) roomLocked(roomID string) (Conversation, bool) {
	id, ok := s.rooms[roomID]
	if !ok {
		return Conversation{}, false
	}
	conv, ok := s.conversations[id]
	return conv, ok
}

func (s *MemoryStore) saveLocked(conv Conversation) Conversation {
	conv.Version++
	conv.UpdatedAt = s.now()
	s.conversations[conv.ID] = conv
	return conv.Clone()
}

func (s *MemoryStore) deleteLocked(conv Conversation) {
	delete(s.conversations, conv.ID)
	if s.rooms[conv.RoomID] == conv.ID {
		delete(s.rooms, conv.RoomID)
	}
}

func sortByID(convs []Conversation) {
	sort.Slice(convs, func(i, j int) bool { return convs[i].ID < convs[j].ID })
}
