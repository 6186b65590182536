package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/rent-in-out1/rent-in-out-backend/internal/model/chat"
)

func (s *Store) CreateConversation(ctx context.Context, conv chat.Conversation) (chat.Conversation, error) {
	if conv.ID == "" || conv.RoomID == "" || len(conv.Messages) == 0 {
		return chat.Conversation{}, chat.ErrInvalidArgument
	}
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	now := s.now()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	conv.UpdatedAt = now
	conv.Version = 1

	doc := toConversationDoc(conv)
	if _, err := s.conversations().InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return chat.Conversation{}, chat.ErrDuplicateRoom
		}
		return chat.Conversation{}, chat.Storage("createConversation", err)
	}
	return doc.toModel(), nil
}

func (s *Store) GetConversation(ctx context.Context, id string) (chat.Conversation, error) {
	return s.findOne(ctx, "getConversation", bson.M{"_id": id}, "conversation", id)
}

func (s *Store) FindByRoomID(ctx context.Context, roomID string) (chat.Conversation, error) {
	return s.findOne(ctx, "findByRoomID", bson.M{"roomId": roomID}, "room", roomID)
}

func (s *Store) FindByParticipant(ctx context.Context, userID string) ([]chat.Conversation, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"ownerId": userID},
		bson.M{"counterpartId": userID},
	}}
	return s.find(ctx, "findByParticipant", filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
}

func (s *Store) FindByIDs(ctx context.Context, ids []string) ([]chat.Conversation, error) {
	if len(ids) == 0 {
		return []chat.Conversation{}, nil
	}
	return s.find(ctx, "findByIDs", bson.M{"_id": bson.M{"$in": ids}}, options.Find())
}

func (s *Store) ListConversations(ctx context.Context, page, perPage int) ([]chat.Conversation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if perPage > 0 {
		if page < 1 {
			page = 1
		}
		opts.SetSkip(int64((page - 1) * perPage)).SetLimit(int64(perPage))
	}
	return s.find(ctx, "listConversations", bson.M{}, opts)
}

func (s *Store) ReplaceMessages(ctx context.Context, roomID string, messages []chat.Message, expectedVersion *int64) (chat.Conversation, error) {
	filter := bson.M{"roomId": roomID}
	if expectedVersion != nil {
		filter["version"] = *expectedVersion
	}
	update := bson.M{
		"$set": bson.M{"messages": toMessageDocs(messages), "updatedAt": s.now()},
		"$inc": bson.M{"version": 1},
	}

	conv, err := s.findAndUpdate(ctx, "replaceMessages", filter, update)
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return conv, err
	}
	if _, err := s.FindByRoomID(ctx, roomID); err != nil {
		return chat.Conversation{}, err
	}
	return chat.Conversation{}, chat.ErrConflict
}

func (s *Store) AppendMessage(ctx context.Context, roomID string, msg chat.Message, expectedVersion *int64) (chat.Conversation, error) {
	filter := bson.M{"roomId": roomID, "messages.id": bson.M{"$ne": msg.ID}}
	if expectedVersion != nil {
		filter["version"] = *expectedVersion
	}
	update := bson.M{
		"$push": bson.M{"messages": toMessageDoc(msg)},
		"$set":  bson.M{"updatedAt": s.now()},
		"$inc":  bson.M{"version": 1},
	}

	conv, err := s.findAndUpdate(ctx, "appendMessage", filter, update)
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return conv, err
	}
	current, err := s.FindByRoomID(ctx, roomID)
	if err != nil {
		return chat.Conversation{}, err
	}
	if expectedVersion != nil && *expectedVersion != current.Version {
		return chat.Conversation{}, chat.ErrConflict
	}
	if current.IndexOf(msg.ID) >= 0 {
		return chat.Conversation{}, chat.ErrInvalidArgument
	}
	// The room changed between the update and the read; report it as a lost race.
	return chat.Conversation{}, chat.ErrConflict
}

func (s *Store) RemoveMessage(ctx context.Context, roomID, messageID string) (chat.Conversation, error) {
	if messageID == "" {
		return chat.Conversation{}, chat.NotFound("message", messageID)
	}
	update := bson.M{
		"$pull": bson.M{"messages": bson.M{"id": messageID}},
		"$set":  bson.M{"updatedAt": s.now()},
		"$inc":  bson.M{"version": 1},
	}
	conv, err := s.findAndUpdate(ctx, "removeMessage", bson.M{"roomId": roomID, "messages.id": messageID}, update)
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return conv, err
	}
	if _, err := s.FindByRoomID(ctx, roomID); err != nil {
		return chat.Conversation{}, err
	}
	return chat.Conversation{}, chat.NotFound("message", messageID)
}

func (s *Store) DeleteIfEmpty(ctx context.Context, id string) (bool, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	res, err := s.conversations().DeleteOne(ctx, bson.M{"_id": id, "messages": bson.M{"$size": 0}})
	if err != nil {
		return false, chat.Storage("deleteIfEmpty", err)
	}
	return res.DeletedCount == 1, nil
}

func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	res, err := s.conversations().DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return chat.Storage("deleteConversation", err)
	}
	if res.DeletedCount == 0 {
		return chat.NotFound("conversation", id)
	}
	return nil
}

func (s *Store) findOne(ctx context.Context, op string, filter bson.M, resource, id string) (chat.Conversation, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var doc conversationDoc
	err := s.conversations().FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return chat.Conversation{}, chat.NotFound(resource, id)
	}
	if err != nil {
		return chat.Conversation{}, chat.Storage(op, err)
	}
	return doc.toModel(), nil
}

func (s *Store) find(ctx context.Context, op string, filter bson.M, opts *options.FindOptionsBuilder) ([]chat.Conversation, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	cur, err := s.conversations().Find(ctx, filter, opts)
	if err != nil {
		return nil, chat.Storage(op, err)
	}
	var docs []conversationDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, chat.Storage(op, err)
	}
	return conversationsToModel(docs), nil
}

// findAndUpdate returns mongo.ErrNoDocuments unwrapped so callers can decide
// between not-found and conflict.
func (s *Store) findAndUpdate(ctx context.Context, op string, filter, update bson.M) (chat.Conversation, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var doc conversationDoc
	err := s.conversations().FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return chat.Conversation{}, err
	}
	if err != nil {
		return chat.Conversation{}, chat.Storage(op, err)
	}
	return doc.toModel(), nil
}
