package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"freelancer-bot/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// AppendMessage pushes entry onto the phone's history, evicting the oldest
// entries past the configured cap in the same atomic update.
func (s *MongoStore) AppendMessage(ctx context.Context, phone, userName string, entry models.HistoryEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.now()
	}

	_, err := s.collection(CollectionChatHistories).UpdateOne(ctx,
		bson.M{"phone_number": phone},
		appendUpdate(entry, userName, s.historyLimit, s.now()),
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("store: append message: %w", err)
	}
	return nil
}

func appendUpdate(entry models.HistoryEntry, userName string, limit int, now time.Time) bson.M {
	set := bson.M{"updated_at": now}
	if userName != "" {
		set["user_name"] = userName
	}
	return bson.M{
		"$push": bson.M{
			"messages": bson.M{
				"$each":  []models.HistoryEntry{entry},
				"$slice": -limit,
			},
		},
		"$set": set,
		"$setOnInsert": bson.M{
			"created_at":    now,
			"payment_state": models.PaymentStateNormal,
		},
	}
}

// GetHistory returns the phone's record, or an empty record if none exists.
func (s *MongoStore) GetHistory(ctx context.Context, phone string) (*models.ChatHistory, error) {
	var history models.ChatHistory
	err := s.collection(CollectionChatHistories).FindOne(ctx, bson.M{"phone_number": phone}).Decode(&history)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return &models.ChatHistory{PhoneNumber: phone, PaymentState: models.PaymentStateNormal}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get history: %w", err)
	}
	return &history, nil
}

// ClearHistory empties the message array but keeps payment state.
func (s *MongoStore) ClearHistory(ctx context.Context, phone string) error {
	_, err := s.collection(CollectionChatHistories).UpdateOne(ctx,
		bson.M{"phone_number": phone},
		bson.M{"$set": bson.M{"messages": []models.HistoryEntry{}, "updated_at": s.now()}},
	)
	if err != nil {
		return fmt.Errorf("store: clear history: %w", err)
	}
	return nil
}

// RemoveMessagesContaining drops every entry whose content contains substr.
func (s *MongoStore) RemoveMessagesContaining(ctx context.Context, phone, substr string) error {
	if substr == "" {
		return nil
	}
	_, err := s.collection(CollectionChatHistories).UpdateOne(ctx,
		bson.M{"phone_number": phone},
		bson.M{
			"$pull": bson.M{"messages": bson.M{"content": bson.M{"$regex": regexp.QuoteMeta(substr)}}},
			"$set":  bson.M{"updated_at": s.now()},
		},
	)
	if err != nil {
		return fmt.Errorf("store: remove messages: %w", err)
	}
	return nil
}
