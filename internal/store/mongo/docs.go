package mongo

import (
	"time"

	"github.com/rent-in-out1/rent-in-out-backend/internal/model/chat"
)

type fullNameDoc struct {
	FirstName string `bson:"firstName"`
	LastName  string `bson:"lastName"`
}

type userDoc struct {
	ID               string      `bson:"_id"`
	FullName         fullNameDoc `bson:"fullName"`
	Email            string      `bson:"email"`
	Role             string      `bson:"role"`
	Active           bool        `bson:"active"`
	ConversationRefs []string    `bson:"conversationRefs"`
	CreatedAt        time.Time   `bson:"createdAt"`
	UpdatedAt        time.Time   `bson:"updatedAt"`
}

type messageDoc struct {
	ID        string    `bson:"id"`
	Author    string    `bson:"author"`
	Body      string    `bson:"body"`
	Timestamp time.Time `bson:"ts"`
}

type conversationDoc struct {
	ID            string       `bson:"_id"`
	RoomID        string       `bson:"roomId"`
	OwnerID       string       `bson:"ownerId"`
	CounterpartID string       `bson:"counterpartId"`
	Messages      []messageDoc `bson:"messages"`
	Version       int64        `bson:"version"`
	CreatedAt     time.Time    `bson:"createdAt"`
	UpdatedAt     time.Time    `bson:"updatedAt"`
}

func toUserDoc(u chat.User) userDoc {
	refs := u.ConversationRefs
	if refs == nil {
		// $addToSet refuses to operate on a null field.
		refs = []string{}
	}
	return userDoc{
		ID:               u.ID,
		FullName:         fullNameDoc{FirstName: u.FullName.FirstName, LastName: u.FullName.LastName},
		Email:            u.Email,
		Role:             u.Role,
		Active:           u.Active,
		ConversationRefs: refs,
		CreatedAt:        u.CreatedAt,
		UpdatedAt:        u.UpdatedAt,
	}
}

func (d userDoc) toModel() chat.User {
	refs := d.ConversationRefs
	if refs == nil {
		refs = []string{}
	}
	return chat.User{
		ID:               d.ID,
		FullName:         chat.FullName{FirstName: d.FullName.FirstName, LastName: d.FullName.LastName},
		Email:            d.Email,
		Role:             d.Role,
		Active:           d.Active,
		ConversationRefs: refs,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
}

func toMessageDocs(messages []chat.Message) []messageDoc {
	docs := make([]messageDoc, 0, len(messages))
	for _, m := range messages {
		docs = append(docs, toMessageDoc(m))
	}
	return docs
}

func toMessageDoc(m chat.Message) messageDoc {
	return messageDoc{ID: m.ID, Author: m.Author, Body: m.Body, Timestamp: m.Timestamp}
}

func toConversationDoc(c chat.Conversation) conversationDoc {
	return conversationDoc{
		ID:            c.ID,
		RoomID:        c.RoomID,
		OwnerID:       c.OwnerID,
		CounterpartID: c.CounterpartID,
		Messages:      toMessageDocs(c.Messages),
		Version:       c.Version,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
}

func (d conversationDoc) toModel() chat.Conversation {
	messages := make([]chat.Message, 0, len(d.Messages))
	for _, m := range d.Messages {
		messages = append(messages, chat.Message{ID: m.ID, Author: m.Author, Body: m.Body, Timestamp: m.Timestamp})
	}
	return chat.Conversation{
		ID:            d.ID,
		RoomID:        d.RoomID,
		OwnerID:       d.OwnerID,
		CounterpartID: d.CounterpartID,
		Messages:      messages,
		Version:       d.Version,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}

func conversationsToModel(docs []conversationDoc) []chat.Conversation {
	convs := make([]chat.Conversation, 0, len(docs))
	for _, d := range docs {
		convs = append(convs, d.toModel())
	}
	return convs
}
