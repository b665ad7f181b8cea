package payment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	ProviderMock      = "mock"
	MockInvoicePrefix = "MOCK-"
)

// MockProvider issues local links that verify as paid. It must never serve
// production traffic; PolicyFor guarantees that.
type MockProvider struct {
	baseURL string
	now     func() time.Time
}

func NewMockProvider(baseURL string) *MockProvider {
	return &MockProvider{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (m *MockProvider) Name() string { return ProviderMock }

func (m *MockProvider) CreatePaymentLink(_ context.Context, req LinkRequest) (*Link, error) {
	if m.baseURL == "" {
		return nil, fmt.Errorf("payment: mock provider requires MOCK_PAYMENT_BASE_URL")
	}
	id := MockInvoicePrefix + uuid.NewString()
	return &Link{
		InvoiceID: id,
		URL:       fmt.Sprintf("%s/%s", m.baseURL, id),
		Provider:  ProviderMock,
		Amount:    req.Amount,
		Currency:  req.Currency,
		CreatedAt: m.now(),
	}, nil
}

func (m *MockProvider) VerifyPayment(_ context.Context, invoiceID string) (*Status, error) {
	if !IsMockInvoice(invoiceID) {
		return nil, ErrPaymentNotFound
	}
	return &Status{InvoiceID: invoiceID, InvoiceStatus: StatusPaid, Provider: ProviderMock}, nil
}

// VerifyByPaymentID treats the payment ID as the mock invoice ID.
func (m *MockProvider) VerifyByPaymentID(ctx context.Context, paymentID string) (*Status, error) {
	return m.VerifyPayment(ctx, paymentID)
}

func IsMockInvoice(invoiceID string) bool {
	return strings.HasPrefix(invoiceID, MockInvoicePrefix)
}
