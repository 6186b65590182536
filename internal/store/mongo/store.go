// Package mongo persists users and conversations in MongoDB. It implements
// chat.UserDirectory and chat.ConversationStore; every method touches a
// single document so the driver's per-document atomicity is all it relies on.
package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/rent-in-out1/rent-in-out-backend/internal/model/chat"
)

const (
	usersCollection         = "users"
	conversationsCollection = "chats"

	defaultTimeout = 5 * time.Second
)

var (
	_ chat.UserDirectory     = (*Store)(nil)
	_ chat.ConversationStore = (*Store)(nil)
)

// Options configures Connect.
type Options struct {
	URL      string
	Database string
	// Timeout bounds every single store call. Zero means five seconds.
	Timeout time.Duration
}

// Store is the MongoDB backed implementation of both chat stores.
type Store struct {
	client  *mongo.Client
	db      *mongo.Database
	timeout time.Duration
	now     func() time.Time
	logger  *log.Logger
}

// Connect dials MongoDB, verifies the connection and ensures indexes exist.
func Connect(ctx context.Context, opts Options) (*Store, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("mongo url is required")
	}
	if opts.Database == "" {
		return nil, fmt.Errorf("mongo database is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}

	client, err := mongo.Connect(options.Client().ApplyURI(opts.URL).SetTimeout(opts.Timeout))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	store := &Store{
		client:  client,
		db:      client.Database(opts.Database),
		timeout: opts.Timeout,
		now:     func() time.Time { return time.Now().UTC() },
		logger:  log.Default().WithPrefix("mongo"),
	}
	if err := store.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	store.logger.Info("connected", "database", opts.Database)
	return store, nil
}

// EnsureIndexes creates the indexes the stores rely on. The unique roomId
// index is what turns a concurrent first contact into ErrDuplicateRoom.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	indexes := map[string][]mongo.IndexModel{
		conversationsCollection: {
			{Keys: bson.D{{Key: "roomId", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "ownerId", Value: 1}}},
			{Keys: bson.D{{Key: "counterpartId", Value: 1}}},
		},
		usersCollection: {
			{Keys: bson.D{{Key: "conversationRefs", Value: 1}}},
			{Keys: bson.D{{Key: "role", Value: 1}, {Key: "_id", Value: 1}}},
		},
	}
	for name, models := range indexes {
		if _, err := s.db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("mongo: failed to create indexes for %s: %w", name, err)
		}
	}
	return nil
}

// Drop removes the whole database. Only meant for tests.
func (s *Store) Drop(ctx context.Context) error {
	return s.db.Drop(ctx)
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) users() *mongo.Collection         { return s.db.Collection(usersCollection) }
func (s *Store) conversations() *mongo.Collection { return s.db.Collection(conversationsCollection) }

func (s *Store) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}
