package chat

import (
	"slices"
	"time"
)

// FullName mirrors the profile name stored by the signup flow.
type FullName struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// User is the directory record. The chat core only mutates ConversationRefs.
type User struct {
	ID               string    `json:"id"`
	FullName         FullName  `json:"fullName"`
	Email            string    `json:"email"`
	Role             string    `json:"role"`
	Active           bool      `json:"active"`
	ConversationRefs []string  `json:"conversationRefs"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// HasConversation reports whether conversationID is in the user's back-references.
func (u User) HasConversation(conversationID string) bool {
	return slices.Contains(u.ConversationRefs, conversationID)
}

// Clone returns a copy that does not share the reference slice.
func (u User) Clone() User {
	u.ConversationRefs = slices.Clone(u.ConversationRefs)
	if u.ConversationRefs == nil {
		u.ConversationRefs = []string{}
	}
	return u
}

// Exclusion hides configured accounts (for example the platform superuser)
// from directory listings.
type Exclusion struct {
	UserIDs []string
}

// NewExclusion builds an Exclusion, dropping empty ids.
func NewExclusion(ids ...string) Exclusion {
	var kept []string
	for _, id := range ids {
		if id != "" {
			kept = append(kept, id)
		}
	}
	return Exclusion{UserIDs: kept}
}

// Excludes reports whether id must be hidden.
func (e Exclusion) Excludes(id string) bool {
	return slices.Contains(e.UserIDs, id)
}

// Sort fields accepted by ListUsers.
const (
	SortByRole      = "role"
	SortByEmail     = "email"
	SortByCreatedAt = "createdAt"
)

// ListUsersQuery pages through the directory.
type ListUsersQuery struct {
	Page    int
	PerPage int
	Sort    string
	Reverse bool
	Exclude Exclusion
}

const (
	defaultPerPage = 10
	maxPerPage     = 20
)

// Normalize applies paging defaults and caps.
func (q ListUsersQuery) Normalize() ListUsersQuery {
	if q.PerPage <= 0 {
		q.PerPage = defaultPerPage
	}
	if q.PerPage > maxPerPage {
		q.PerPage = maxPerPage
	}
	if q.Page < 1 {
		q.Page = 1
	}
	switch q.Sort {
	case SortByRole, SortByEmail, SortByCreatedAt:
	default:
		q.Sort = SortByRole
	}
	return q
}

// Skip is the number of records before the requested page.
func (q ListUsersQuery) Skip() int {
	return (q.Page - 1) * q.PerPage
}
