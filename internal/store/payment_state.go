package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"freelancer-bot/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (s *MongoStore) GetPaymentState(ctx context.Context, phone string) (models.PaymentState, *models.PaymentInfo, error) {
	history, err := s.GetHistory(ctx, phone)
	if err != nil {
		return "", nil, err
	}
	return history.State(), history.PaymentInfo, nil
}

// SetAwaitingPayment gates the phone behind a pending payment.
func (s *MongoStore) SetAwaitingPayment(ctx context.Context, phone string, info models.PaymentInfo) error {
	_, err := s.collection(CollectionChatHistories).UpdateOne(ctx,
		bson.M{"phone_number": phone},
		bson.M{
			"$set": bson.M{
				"payment_state": models.PaymentStateAwaitingPayment,
				"payment_info":  info,
				"updated_at":    s.now(),
			},
			"$setOnInsert": bson.M{"created_at": s.now(), "messages": []models.HistoryEntry{}},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("store: set awaiting payment: %w", err)
	}
	return nil
}

// ClearPaymentState unconditionally reverts the phone to normal.
func (s *MongoStore) ClearPaymentState(ctx context.Context, phone string) error {
	_, err := s.collection(CollectionChatHistories).UpdateOne(ctx,
		bson.M{"phone_number": phone},
		clearPaymentUpdate(s.now()),
	)
	if err != nil {
		return fmt.Errorf("store: clear payment state: %w", err)
	}
	return nil
}

// ClearPaymentStateForInvoice reverts the phone to normal only while it is
// still awaiting invoiceID. It reports whether this call made the change.
func (s *MongoStore) ClearPaymentStateForInvoice(ctx context.Context, phone, invoiceID string) (bool, error) {
	res, err := s.collection(CollectionChatHistories).UpdateOne(ctx,
		pendingInvoiceFilter(phone, invoiceID),
		clearPaymentUpdate(s.now()),
	)
	if err != nil {
		return false, fmt.Errorf("store: clear payment state for invoice: %w", err)
	}
	return res.ModifiedCount == 1, nil
}

// maxExpiredPayments bounds the archive of expired links per phone.
const maxExpiredPayments = 5

// ExpirePayment reverts the phone to normal while it is still awaiting
// info.InvoiceID and archives info in expired_payments. It reports whether
// this call made the change.
func (s *MongoStore) ExpirePayment(ctx context.Context, phone string, info models.PaymentInfo) (bool, error) {
	update := clearPaymentUpdate(s.now())
	update["$push"] = bson.M{
		"expired_payments": bson.M{"$each": []models.PaymentInfo{info}, "$slice": -maxExpiredPayments},
	}
	res, err := s.collection(CollectionChatHistories).UpdateOne(ctx,
		pendingInvoiceFilter(phone, info.InvoiceID),
		update,
	)
	if err != nil {
		return false, fmt.Errorf("store: expire payment: %w", err)
	}
	return res.ModifiedCount == 1, nil
}

// ClaimExpiredPayment removes invoiceID from the expired archive and returns
// the record as it was before, with the archived link. Only one caller can
// claim a given invoice; the rest get nil.
func (s *MongoStore) ClaimExpiredPayment(ctx context.Context, invoiceID string) (*models.ChatHistory, *models.PaymentInfo, error) {
	var history models.ChatHistory
	err := s.collection(CollectionChatHistories).FindOneAndUpdate(ctx,
		bson.M{"expired_payments.invoice_id": invoiceID},
		bson.M{
			"$pull": bson.M{"expired_payments": bson.M{"invoice_id": invoiceID}},
			"$set":  bson.M{"updated_at": s.now()},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.Before),
	).Decode(&history)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("store: claim expired payment: %w", err)
	}
	return &history, history.ExpiredPayment(invoiceID), nil
}

func pendingInvoiceFilter(phone, invoiceID string) bson.M {
	return bson.M{
		"phone_number":            phone,
		"payment_state":           models.PaymentStateAwaitingPayment,
		"payment_info.invoice_id": invoiceID,
	}
}

func clearPaymentUpdate(now time.Time) bson.M {
	return bson.M{
		"$set":   bson.M{"payment_state": models.PaymentStateNormal, "updated_at": now},
		"$unset": bson.M{"payment_info": ""},
	}
}

// FindByInvoiceID returns the record awaiting invoiceID, or nil if none is.
func (s *MongoStore) FindByInvoiceID(ctx context.Context, invoiceID string) (*models.ChatHistory, error) {
	var history models.ChatHistory
	err := s.collection(CollectionChatHistories).FindOne(ctx, bson.M{
		"payment_state":           models.PaymentStateAwaitingPayment,
		"payment_info.invoice_id": invoiceID,
	}).Decode(&history)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: find by invoice: %w", err)
	}
	return &history, nil
}

// FindExpiredPayments lists records still awaiting payment whose link expired at or before now.
func (s *MongoStore) FindExpiredPayments(ctx context.Context, now time.Time) ([]models.ChatHistory, error) {
	cursor, err := s.collection(CollectionChatHistories).Find(ctx, expiredFilter(now))
	if err != nil {
		return nil, fmt.Errorf("store: find expired payments: %w", err)
	}
	defer cursor.Close(ctx)

	var records []models.ChatHistory
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("store: decode expired payments: %w", err)
	}
	return records, nil
}

func expiredFilter(now time.Time) bson.M {
	return bson.M{
		"payment_state":           models.PaymentStateAwaitingPayment,
		"payment_info.expires_at": bson.M{"$lte": now},
	}
}
