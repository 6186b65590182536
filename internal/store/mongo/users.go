package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/rent-in-out1/rent-in-out-backend/internal/model/chat"
)

var userSortFields = map[string]string{
	chat.SortByRole:      "role",
	chat.SortByEmail:     "email",
	chat.SortByCreatedAt: "createdAt",
}

func (s *Store) CreateUser(ctx context.Context, user chat.User) (chat.User, error) {
	if user.ID == "" {
		return chat.User{}, chat.ErrInvalidArgument
	}
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	now := s.now()
	user.CreatedAt, user.UpdatedAt = now, now
	doc := toUserDoc(user)
	if _, err := s.users().InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return chat.User{}, chat.ErrConflict
		}
		return chat.User{}, chat.Storage("createUser", err)
	}
	return doc.toModel(), nil
}

func (s *Store) GetUser(ctx context.Context, id string) (chat.User, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var doc userDoc
	err := s.users().FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return chat.User{}, chat.NotFound("user", id)
	}
	if err != nil {
		return chat.User{}, chat.Storage("getUser", err)
	}
	return doc.toModel(), nil
}

func (s *Store) ListUsers(ctx context.Context, query chat.ListUsersQuery) ([]chat.User, error) {
	query = query.Normalize()
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	direction := 1
	if query.Reverse {
		direction = -1
	}
	opts := options.Find().
		SetSort(bson.D{{Key: userSortFields[query.Sort], Value: direction}, {Key: "_id", Value: 1}}).
		SetSkip(int64(query.Skip())).
		SetLimit(int64(query.PerPage))

	cur, err := s.users().Find(ctx, exclusionFilter(query.Exclude), opts)
	if err != nil {
		return nil, chat.Storage("listUsers", err)
	}
	var docs []userDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, chat.Storage("listUsers", err)
	}

	users := make([]chat.User, 0, len(docs))
	for _, d := range docs {
		users = append(users, d.toModel())
	}
	return users, nil
}

func (s *Store) CountUsers(ctx context.Context, exclude chat.Exclusion) (int64, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	n, err := s.users().CountDocuments(ctx, exclusionFilter(exclude))
	if err != nil {
		return 0, chat.Storage("countUsers", err)
	}
	return n, nil
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	res, err := s.users().DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return chat.Storage("deleteUser", err)
	}
	if res.DeletedCount == 0 {
		return chat.NotFound("user", id)
	}
	return nil
}

func (s *Store) AddConversationRef(ctx context.Context, userID, conversationID string) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	res, err := s.users().UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{
			"$addToSet": bson.M{"conversationRefs": conversationID},
			"$set":      bson.M{"updatedAt": s.now()},
		},
	)
	if err != nil {
		return chat.Storage("addConversationRef", err)
	}
	if res.MatchedCount == 0 {
		return chat.NotFound("user", userID)
	}
	return nil
}

func (s *Store) RemoveConversationRef(ctx context.Context, userID, conversationID string) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	_, err := s.users().UpdateOne(ctx,
		bson.M{"_id": userID, "conversationRefs": conversationID},
		bson.M{
			"$pull": bson.M{"conversationRefs": conversationID},
			"$set":  bson.M{"updatedAt": s.now()},
		},
	)
	if err != nil {
		return chat.Storage("removeConversationRef", err)
	}
	return nil
}

func (s *Store) ListUsersReferencing(ctx context.Context, conversationID string) ([]string, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	opts := options.Find().
		SetProjection(bson.M{"_id": 1}).
		SetSort(bson.D{{Key: "_id", Value: 1}})
	cur, err := s.users().Find(ctx, bson.M{"conversationRefs": conversationID}, opts)
	if err != nil {
		return nil, chat.Storage("listUsersReferencing", err)
	}
	var docs []struct {
		ID string `bson:"_id"`
	}
	if err := cur.All(ctx, &docs); err != nil {
		return nil, chat.Storage("listUsersReferencing", err)
	}

	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	return ids, nil
}

func (s *Store) RemoveConversationRefEverywhere(ctx context.Context, conversationID string) (int64, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	res, err := s.users().UpdateMany(ctx,
		bson.M{"conversationRefs": conversationID},
		bson.M{
			"$pull": bson.M{"conversationRefs": conversationID},
			"$set":  bson.M{"updatedAt": s.now()},
		},
	)
	if err != nil {
		return 0, chat.Storage("removeConversationRefEverywhere", err)
	}
	return res.ModifiedCount, nil
}

func exclusionFilter(exclude chat.Exclusion) bson.M {
	if len(exclude.UserIDs) == 0 {
		return bson.M{}
	}
	return bson.M{"_id": bson.M{"$nin": exclude.UserIDs}}
}
