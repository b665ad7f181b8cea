// Package payment issues and verifies payment links.
package payment

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrGatewayUnavailable = errors.New("payment: gateway unavailable")
	ErrPaymentNotFound    = errors.New("payment: not found")
	ErrGatewayRejected    = errors.New("payment: gateway rejected request")
)

// Invoice statuses as reported by the gateway.
const (
	StatusPaid     = "Paid"
	StatusPending  = "Pending"
	StatusCanceled = "Canceled"
	StatusFailed   = "Failed"
)

// LinkRequest describes the payment a client is asked to make.
type LinkRequest struct {
	CustomerName   string
	CustomerPhone  string
	Amount         float64
	Currency       string
	Reference      string
	FreelancerID   string
	FreelancerName string
	Description    string
	// ExpiresAt, when set, is passed to the gateway so the link stops
	// accepting payment when the bot stops waiting for it.
	ExpiresAt time.Time
}

// Link is an issued payment link.
type Link struct {
	InvoiceID string
	URL       string
	Provider  string
	Amount    float64
	Currency  string
	CreatedAt time.Time
}

// Status is the verified state of an invoice.
type Status struct {
	InvoiceID     string
	InvoiceStatus string
	Amount        float64
	Currency      string
	Reference     string
	Provider      string
}

// Paid reports whether the gateway considers the invoice settled.
func (s *Status) Paid() bool {
	return s != nil && strings.EqualFold(s.InvoiceStatus, StatusPaid)
}

// Provider is a payment gateway.
type Provider interface {
	Name() string
	CreatePaymentLink(ctx context.Context, req LinkRequest) (*Link, error)
	VerifyPayment(ctx context.Context, invoiceID string) (*Status, error)
	VerifyByPaymentID(ctx context.Context, paymentID string) (*Status, error)
}
