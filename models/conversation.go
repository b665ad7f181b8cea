package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	ConversationStatusActive = "active"
	ConversationStatusClosed = "closed"

	NotificationTypePayment = "payment"
)

// Conversation is the dashboard-facing thread between a client and a freelancer.
type Conversation struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ClientPhone    string             `bson:"client_phone" json:"client_phone"`
	ClientName     string             `bson:"client_name,omitempty" json:"client_name,omitempty"`
	FreelancerID   string             `bson:"freelancer_id" json:"freelancer_id"`
	FreelancerName string             `bson:"freelancer_name,omitempty" json:"freelancer_name,omitempty"`
	InvoiceID      string             `bson:"invoice_id" json:"invoice_id"`
	Status         string             `bson:"status" json:"status"`
	CreatedAt      time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time          `bson:"updated_at" json:"updated_at"`
}

type Notification struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID    string             `bson:"user_id" json:"user_id"`
	Title     string             `bson:"title" json:"title"`
	Message   string             `bson:"message" json:"message"`
	Type      string             `bson:"type" json:"type"`
	Read      bool               `bson:"read" json:"read"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
}

// BridgeSession pairs a client and a freelancer for direct relay.
type BridgeSession struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ClientPhone     string             `bson:"client_phone" json:"client_phone"`
	FreelancerPhone string             `bson:"freelancer_phone" json:"freelancer_phone"`
	ClientName      string             `bson:"client_name,omitempty" json:"client_name,omitempty"`
	FreelancerName  string             `bson:"freelancer_name,omitempty" json:"freelancer_name,omitempty"`
	InvoiceID       string             `bson:"invoice_id" json:"invoice_id"`
	ConversationID  string             `bson:"conversation_id,omitempty" json:"conversation_id,omitempty"`
	Active          bool               `bson:"active" json:"active"`
	CreatedAt       time.Time          `bson:"created_at" json:"created_at"`
	EndedAt         *time.Time         `bson:"ended_at,omitempty" json:"ended_at,omitempty"`
}

// Counterpart returns the other party of the session, or "" if phone is not a member.
func (s *BridgeSession) Counterpart(phone string) string {
	switch phone {
	case s.ClientPhone:
		return s.FreelancerPhone
	case s.FreelancerPhone:
		return s.ClientPhone
	}
	return ""
}

// IsClient reports whether phone is the paying side of the session.
func (s *BridgeSession) IsClient(phone string) bool {
	return s.ClientPhone == phone
}
