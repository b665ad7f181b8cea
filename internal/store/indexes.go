package store

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Indexes lists the index models each collection needs.
func Indexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		CollectionChatHistories: {
			{
				Keys:    bson.D{{Key: "phone_number", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "payment_info.invoice_id", Value: 1}}},
			{Keys: bson.D{{Key: "expired_payments.invoice_id", Value: 1}}},
			{Keys: bson.D{{Key: "payment_state", Value: 1}, {Key: "payment_info.expires_at", Value: 1}}},
		},
		CollectionFreelancers: {
			{Keys: bson.D{{Key: "category", Value: 1}}},
			{Keys: bson.D{{Key: "is_verified", Value: 1}, {Key: "rating", Value: -1}}},
		},
		CollectionProfiles: {
			{Keys: bson.D{{Key: "freelancer_id", Value: 1}}},
		},
		CollectionProjects: {
			{Keys: bson.D{{Key: "freelancer_id", Value: 1}}},
		},
		CollectionConversations: {
			{
				Keys:    bson.D{{Key: "client_phone", Value: 1}, {Key: "freelancer_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "invoice_id", Value: 1}}},
		},
		CollectionNotifications: {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		CollectionBridgeSessions: {
			{Keys: bson.D{{Key: "client_phone", Value: 1}, {Key: "active", Value: 1}}},
			{Keys: bson.D{{Key: "freelancer_phone", Value: 1}, {Key: "active", Value: 1}}},
		},
	}
}

func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	for name, models := range Indexes() {
		if _, err := s.collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("store: create indexes on %s: %w", name, err)
		}
	}
	return nil
}

// IndexReport lists index names per collection for the migrate tool.
func (s *MongoStore) IndexReport(ctx context.Context) (map[string][]string, error) {
	report := make(map[string][]string)
	for name := range Indexes() {
		cursor, err := s.collection(name).Indexes().List(ctx)
		if err != nil {
			return nil, fmt.Errorf("store: list indexes on %s: %w", name, err)
		}
		var specs []bson.M
		if err := cursor.All(ctx, &specs); err != nil {
			return nil, fmt.Errorf("store: decode indexes on %s: %w", name, err)
		}
		for _, spec := range specs {
			if n, ok := spec["name"].(string); ok {
				report[name] = append(report[name], n)
			}
		}
	}
	return report, nil
}
