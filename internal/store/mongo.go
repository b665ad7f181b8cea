package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
)

const (
	CollectionChatHistories  = "chat_histories"
	CollectionFreelancers    = "freelancers"
	CollectionProfiles       = "profiles"
	CollectionProjects       = "projects"
	CollectionConversations  = "conversations"
	CollectionNotifications  = "notifications"
	CollectionBridgeSessions = "bridge_sessions"
)

// MongoStore is the persistence adapter backing chat history, payment
// state, the freelancer directory, conversations and bridge sessions.
type MongoStore struct {
	db           *mongo.Database
	historyLimit int
	now          func() time.Time
}

func NewMongoStore(db *mongo.Database, historyLimit int) *MongoStore {
	if historyLimit <= 0 {
		historyLimit = 20
	}
	return &MongoStore{
		db:           db,
		historyLimit: historyLimit,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (s *MongoStore) collection(name string) *mongo.Collection {
	return s.db.Collection(name)
}

// Ping checks the underlying connection for readiness probes.
func (s *MongoStore) Ping(ctx context.Context) error {
	if err := s.db.Client().Ping(ctx, nil); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}
