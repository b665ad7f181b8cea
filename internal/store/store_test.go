package store

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"freelancer-bot/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func TestAppendUpdateCapsHistory(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	update := appendUpdate(models.HistoryEntry{Role: models.RoleUser, Content: "hi"}, "Sara", 20, now)

	push := update["$push"].(bson.M)["messages"].(bson.M)
	assert.Equal(t, -20, push["$slice"])
	assert.Len(t, push["$each"], 1)
	assert.Equal(t, "Sara", update["$set"].(bson.M)["user_name"])

	update = appendUpdate(models.HistoryEntry{}, "", 20, now)
	assert.NotContains(t, update["$set"].(bson.M), "user_name")
}

func TestPendingInvoiceFilterRequiresAwaitingState(t *testing.T) {
	filter := pendingInvoiceFilter("96550000001", "INV-1")
	assert.Equal(t, models.PaymentStateAwaitingPayment, filter["payment_state"])
	assert.Equal(t, "INV-1", filter["payment_info.invoice_id"])
}

func TestIndexesCoverCollections(t *testing.T) {
	idx := Indexes()
	for _, name := range []string{CollectionChatHistories, CollectionConversations, CollectionBridgeSessions} {
		assert.NotEmpty(t, idx[name], name)
	}
}

// Integration tests run only against a real server.
func newTestStore(t *testing.T) *MongoStore {
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	if err := client.Ping(ctx, nil); err != nil {
		t.Skipf("mongo not reachable: %v", err)
	}

	dbName := fmt.Sprintf("freelancer_bot_test_%d", time.Now().UnixNano())
	db := client.Database(dbName)
	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})

	s := NewMongoStore(db, 20)
	require.NoError(t, s.EnsureIndexes(ctx))
	return s
}

func TestHistoryNeverExceedsLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 21; i++ {
		require.NoError(t, s.AppendMessage(ctx, "96550000001", "Sara", models.HistoryEntry{
			Role:    models.RoleUser,
			Content: fmt.Sprintf("message %d", i),
		}))
	}

	history, err := s.GetHistory(ctx, "96550000001")
	require.NoError(t, err)
	require.Len(t, history.Messages, 20)
	assert.Equal(t, "message 1", history.Messages[0].Content)
	assert.Equal(t, "message 20", history.Messages[19].Content)
}

func TestClearPaymentStateForInvoiceIsOneShot(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	phone := "96550000002"

	require.NoError(t, s.SetAwaitingPayment(ctx, phone, models.PaymentInfo{
		InvoiceID:  "INV-42",
		PaymentURL: "https://pay.example/INV-42",
		ExpiresAt:  time.Now().Add(12 * time.Hour),
	}))

	found, err := s.FindByInvoiceID(ctx, "INV-42")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, phone, found.PhoneNumber)

	cleared, err := s.ClearPaymentStateForInvoice(ctx, phone, "INV-42")
	require.NoError(t, err)
	assert.True(t, cleared)

	cleared, err = s.ClearPaymentStateForInvoice(ctx, phone, "INV-42")
	require.NoError(t, err)
	assert.False(t, cleared)

	state, info, err := s.GetPaymentState(ctx, phone)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStateNormal, state)
	assert.Nil(t, info)
}

func TestExpirePaymentArchivesForOneClaim(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	phone := "96550000004"
	info := models.PaymentInfo{
		InvoiceID:  "INV-77",
		PaymentURL: "https://pay.example/INV-77",
		ExpiresAt:  time.Now().Add(-time.Minute),
	}
	require.NoError(t, s.SetAwaitingPayment(ctx, phone, info))

	expired, err := s.ExpirePayment(ctx, phone, info)
	require.NoError(t, err)
	assert.True(t, expired)

	expired, err = s.ExpirePayment(ctx, phone, info)
	require.NoError(t, err)
	assert.False(t, expired)

	state, _, err := s.GetPaymentState(ctx, phone)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStateNormal, state)

	found, err := s.FindByInvoiceID(ctx, "INV-77")
	require.NoError(t, err)
	assert.Nil(t, found)

	record, claimed, err := s.ClaimExpiredPayment(ctx, "INV-77")
	require.NoError(t, err)
	require.NotNil(t, record)
	require.NotNil(t, claimed)
	assert.Equal(t, phone, record.PhoneNumber)
	assert.Equal(t, info.PaymentURL, claimed.PaymentURL)

	record, claimed, err = s.ClaimExpiredPayment(ctx, "INV-77")
	require.NoError(t, err)
	assert.Nil(t, record)
	assert.Nil(t, claimed)
}

func TestExpiredPaymentsAndLinkRemoval(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	phone := "96550000003"
	url := "https://pay.example/INV-7?x=1"

	require.NoError(t, s.AppendMessage(ctx, phone, "", models.HistoryEntry{Role: models.RoleAssistant, Content: "ادفع هنا: " + url, Tag: models.TagPaymentLink}))
	require.NoError(t, s.AppendMessage(ctx, phone, "", models.HistoryEntry{Role: models.RoleUser, Content: "ok"}))
	require.NoError(t, s.SetAwaitingPayment(ctx, phone, models.PaymentInfo{
		InvoiceID:  "INV-7",
		PaymentURL: url,
		ExpiresAt:  time.Now().Add(-time.Hour),
	}))

	expired, err := s.FindExpiredPayments(ctx, time.Now())
	require.NoError(t, err)
	require.Len(t, expired, 1)

	require.NoError(t, s.RemoveMessagesContaining(ctx, phone, url))
	history, err := s.GetHistory(ctx, phone)
	require.NoError(t, err)
	for _, m := range history.Messages {
		assert.False(t, strings.Contains(m.Content, url))
	}
	assert.Len(t, history.Messages, 1)
}

func TestBridgeSessionLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	session, err := s.CreateBridgeSession(ctx, models.BridgeSession{ClientPhone: "1", FreelancerPhone: "2", InvoiceID: "INV-9"})
	require.NoError(t, err)

	active, err := s.FindActiveBridge(ctx, "2")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, session.ID, active.ID)

	require.NoError(t, s.EndBridgeSession(ctx, session.ID))
	active, err = s.FindActiveBridge(ctx, "1")
	require.NoError(t, err)
	assert.Nil(t, active)
}
