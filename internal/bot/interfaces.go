package bot

import (
	"context"
	"time"

	"freelancer-bot/internal/whatsapp"
	"freelancer-bot/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Messenger is the outbound side of the messaging transport.
type Messenger interface {
	SendMessage(ctx context.Context, to, text string) error
	SendInteractiveButtons(ctx context.Context, to, body string, buttons []whatsapp.Button) error
	MarkAsRead(ctx context.Context, messageID string) error
	SendTypingIndicator(ctx context.Context, messageID string) error
}

type HistoryStore interface {
	AppendMessage(ctx context.Context, phone, userName string, entry models.HistoryEntry) error
	GetHistory(ctx context.Context, phone string) (*models.ChatHistory, error)
	ClearHistory(ctx context.Context, phone string) error
	RemoveMessagesContaining(ctx context.Context, phone, substr string) error
}

type PaymentStateStore interface {
	GetPaymentState(ctx context.Context, phone string) (models.PaymentState, *models.PaymentInfo, error)
	SetAwaitingPayment(ctx context.Context, phone string, info models.PaymentInfo) error
	ClearPaymentState(ctx context.Context, phone string) error
	ClearPaymentStateForInvoice(ctx context.Context, phone, invoiceID string) (bool, error)
	FindByInvoiceID(ctx context.Context, invoiceID string) (*models.ChatHistory, error)
	ExpirePayment(ctx context.Context, phone string, info models.PaymentInfo) (bool, error)
	ClaimExpiredPayment(ctx context.Context, invoiceID string) (*models.ChatHistory, *models.PaymentInfo, error)
	FindExpiredPayments(ctx context.Context, now time.Time) ([]models.ChatHistory, error)
}

// Directory is the read-only freelancer reference data.
type Directory interface {
	ListFreelancers(ctx context.Context, limit int) ([]models.Freelancer, error)
	FindFreelancersByCategory(ctx context.Context, category string, limit int) ([]models.Freelancer, error)
	FindVerifiedFreelancer(ctx context.Context) (*models.Freelancer, error)
	LoadCatalog(ctx context.Context, limit int) (*models.Catalog, error)
}

type ConversationStore interface {
	UpsertConversation(ctx context.Context, conv models.Conversation) (string, error)
	CreateNotification(ctx context.Context, n models.Notification) error
}

type BridgeStore interface {
	CreateBridgeSession(ctx context.Context, session models.BridgeSession) (*models.BridgeSession, error)
	FindActiveBridge(ctx context.Context, phone string) (*models.BridgeSession, error)
	EndBridgeSession(ctx context.Context, id primitive.ObjectID) error
}

// NLU is the language model adapter.
type NLU interface {
	GenerateResponse(ctx context.Context, history []models.HistoryEntry, message string) (string, error)
	GenerateResponseWithAllData(ctx context.Context, history []models.HistoryEntry, catalog *models.Catalog, message, userName string) (string, error)
	SummarizeRequest(ctx context.Context, history []models.HistoryEntry) string
	InferServiceCategory(ctx context.Context, request string) string
}

// Store bundles the persistence interfaces MongoStore satisfies.
type Store interface {
	HistoryStore
	PaymentStateStore
	Directory
	ConversationStore
	BridgeStore
}
