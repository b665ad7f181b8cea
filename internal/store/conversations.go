package store

import (
	"context"
	"errors"
	"fmt"

	"freelancer-bot/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// UpsertConversation creates or refreshes the thread for a client/freelancer pair
// and returns its ID.
func (s *MongoStore) UpsertConversation(ctx context.Context, conv models.Conversation) (string, error) {
	now := s.now()
	filter := bson.M{"client_phone": conv.ClientPhone, "freelancer_id": conv.FreelancerID}
	update := bson.M{
		"$set": bson.M{
			"client_name":     conv.ClientName,
			"freelancer_name": conv.FreelancerName,
			"invoice_id":      conv.InvoiceID,
			"status":          models.ConversationStatusActive,
			"updated_at":      now,
		},
		"$setOnInsert": bson.M{"created_at": now},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var saved models.Conversation
	err := s.collection(CollectionConversations).FindOneAndUpdate(ctx, filter, update, opts).Decode(&saved)
	if err != nil {
		return "", fmt.Errorf("store: upsert conversation: %w", err)
	}
	return saved.ID.Hex(), nil
}

func (s *MongoStore) CreateNotification(ctx context.Context, n models.Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now()
	}
	if _, err := s.collection(CollectionNotifications).InsertOne(ctx, n); err != nil {
		return fmt.Errorf("store: create notification: %w", err)
	}
	return nil
}

func (s *MongoStore) CreateBridgeSession(ctx context.Context, session models.BridgeSession) (*models.BridgeSession, error) {
	session.Active = true
	if session.CreatedAt.IsZero() {
		session.CreatedAt = s.now()
	}
	res, err := s.collection(CollectionBridgeSessions).InsertOne(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("store: create bridge session: %w", err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		session.ID = oid
	}
	return &session, nil
}

// FindActiveBridge returns the active session phone belongs to on either side, or nil.
func (s *MongoStore) FindActiveBridge(ctx context.Context, phone string) (*models.BridgeSession, error) {
	filter := bson.M{
		"active": true,
		"$or": bson.A{
			bson.M{"client_phone": phone},
			bson.M{"freelancer_phone": phone},
		},
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})

	var session models.BridgeSession
	err := s.collection(CollectionBridgeSessions).FindOne(ctx, filter, opts).Decode(&session)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: find active bridge: %w", err)
	}
	return &session, nil
}

func (s *MongoStore) EndBridgeSession(ctx context.Context, id primitive.ObjectID) error {
	now := s.now()
	_, err := s.collection(CollectionBridgeSessions).UpdateOne(ctx,
		bson.M{"_id": id, "active": true},
		bson.M{"$set": bson.M{"active": false, "ended_at": now}},
	)
	if err != nil {
		return fmt.Errorf("store: end bridge session: %w", err)
	}
	return nil
}
