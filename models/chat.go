// models/chat.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"

	// TagPaymentLink marks the history entry carrying an issued payment link.
	TagPaymentLink = "payment_link"
)

type PaymentState string

const (
	PaymentStateNormal          PaymentState = "normal"
	PaymentStateAwaitingPayment PaymentState = "awaiting_payment"
)

// HistoryEntry is one turn of a conversation record.
type HistoryEntry struct {
	Role      string    `bson:"role" json:"role"`
	Content   string    `bson:"content" json:"content"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
	Tag       string    `bson:"tag,omitempty" json:"tag,omitempty"`
}

// ChatHistory is the per-phone document holding the capped message array
// and the payment-state columns.
type ChatHistory struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	PhoneNumber  string             `bson:"phone_number" json:"phone_number"`
	UserName     string             `bson:"user_name,omitempty" json:"user_name,omitempty"`
	Messages     []HistoryEntry     `bson:"messages" json:"messages"`
	PaymentState PaymentState       `bson:"payment_state,omitempty" json:"payment_state,omitempty"`
	PaymentInfo  *PaymentInfo       `bson:"payment_info,omitempty" json:"payment_info,omitempty"`
	// ExpiredPayments keeps the last few links the sweeper expired so a
	// payment made after local expiry can still be honoured once.
	ExpiredPayments []PaymentInfo `bson:"expired_payments,omitempty" json:"expired_payments,omitempty"`
	CreatedAt       time.Time     `bson:"created_at" json:"created_at"`
	UpdatedAt       time.Time     `bson:"updated_at" json:"updated_at"`
}

// State returns the effective payment state; a missing column means normal.
func (h *ChatHistory) State() PaymentState {
	if h == nil || h.PaymentState == "" {
		return PaymentStateNormal
	}
	return h.PaymentState
}

type PaymentInfo struct {
	InvoiceID       string             `bson:"invoice_id" json:"invoice_id"`
	PaymentURL      string             `bson:"payment_url" json:"payment_url"`
	Provider        string             `bson:"provider" json:"provider"`
	Amount          float64            `bson:"amount" json:"amount"`
	Currency        string             `bson:"currency" json:"currency"`
	Freelancer      FreelancerSnapshot `bson:"freelancer" json:"freelancer"`
	OriginalMessage string             `bson:"original_message,omitempty" json:"original_message,omitempty"`
	CreatedAt       time.Time          `bson:"created_at" json:"created_at"`
	ExpiresAt       time.Time          `bson:"expires_at" json:"expires_at"`
}

// ExpiredPayment returns the archived link for invoiceID, if any.
func (h *ChatHistory) ExpiredPayment(invoiceID string) *PaymentInfo {
	if h == nil {
		return nil
	}
	for i := range h.ExpiredPayments {
		if h.ExpiredPayments[i].InvoiceID == invoiceID {
			info := h.ExpiredPayments[i]
			return &info
		}
	}
	return nil
}

// Expired reports whether the link is past its expiry at now.
func (p *PaymentInfo) Expired(now time.Time) bool {
	return p != nil && !p.ExpiresAt.IsZero() && !now.Before(p.ExpiresAt)
}
