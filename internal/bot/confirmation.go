package bot

import (
	"context"
	"errors"
	"time"

	"freelancer-bot/internal/logger"
	"freelancer-bot/internal/payment"
	"freelancer-bot/internal/telemetry"
	"freelancer-bot/models"
	"freelancer-bot/utils"
)

// Confirmation outcomes recorded in metrics.
const (
	OutcomeConfirmed = "confirmed"
	OutcomeLate      = "confirmed_late"
	OutcomeDuplicate = "duplicate"
	OutcomeUnpaid    = "unpaid"
	OutcomeFailed    = "failed"
)

var ErrMissingInvoice = errors.New("bot: gateway status carries no invoice id")

type ConfirmResult struct {
	InvoiceID        string `json:"invoice_id"`
	Status           string `json:"status"`
	Paid             bool   `json:"paid"`
	AlreadyProcessed bool   `json:"already_processed"`
	ClientPhone      string `json:"-"`
	FreelancerName   string `json:"freelancer_name,omitempty"`
	ConversationID   string `json:"conversation_id,omitempty"`
	BridgeActivated  bool   `json:"bridge_activated"`
	LatePayment      bool   `json:"late_payment"`
}

// PaymentConfirmer completes a paid invoice exactly once: the conditional
// clear of the pending state, or the claim of an already expired link, is the
// only gate, so webhook, callback and ops retries can race safely.
type PaymentConfirmer struct {
	provider      payment.Provider
	payments      PaymentStateStore
	conversations ConversationStore
	bridge        *BridgeService
	messenger     Messenger
	metrics       *telemetry.Metrics
	region        string
	now           func() time.Time
}

func NewPaymentConfirmer(provider payment.Provider, store Store, bridge *BridgeService, messenger Messenger, metrics *telemetry.Metrics, defaultRegion string) *PaymentConfirmer {
	return &PaymentConfirmer{
		provider:      provider,
		payments:      store,
		conversations: store,
		bridge:        bridge,
		messenger:     messenger,
		metrics:       metrics,
		region:        defaultRegion,
		now:           time.Now,
	}
}

func (c *PaymentConfirmer) Confirm(ctx context.Context, invoiceID string) (*ConfirmResult, error) {
	status, err := c.provider.VerifyPayment(ctx, invoiceID)
	if err != nil {
		c.metrics.RecordPaymentConfirmation(OutcomeFailed)
		return nil, err
	}
	if status.InvoiceID == "" {
		status.InvoiceID = invoiceID
	}
	return c.complete(ctx, status)
}

// ConfirmByPaymentID is used by the checkout redirect, which only knows the
// gateway's payment ID.
func (c *PaymentConfirmer) ConfirmByPaymentID(ctx context.Context, paymentID string) (*ConfirmResult, error) {
	status, err := c.provider.VerifyByPaymentID(ctx, paymentID)
	if err != nil {
		c.metrics.RecordPaymentConfirmation(OutcomeFailed)
		return nil, err
	}
	if status.InvoiceID == "" {
		c.metrics.RecordPaymentConfirmation(OutcomeFailed)
		return nil, ErrMissingInvoice
	}
	return c.complete(ctx, status)
}

func (c *PaymentConfirmer) complete(ctx context.Context, status *payment.Status) (*ConfirmResult, error) {
	res := &ConfirmResult{InvoiceID: status.InvoiceID, Status: status.InvoiceStatus}
	if !status.Paid() {
		c.metrics.RecordPaymentConfirmation(OutcomeUnpaid)
		return res, nil
	}
	res.Paid = true

	record, err := c.payments.FindByInvoiceID(ctx, status.InvoiceID)
	if err != nil {
		c.metrics.RecordPaymentConfirmation(OutcomeFailed)
		return nil, err
	}
	if record == nil || record.PaymentInfo == nil {
		return c.completeLate(ctx, res, status)
	}

	cleared, err := c.payments.ClearPaymentStateForInvoice(ctx, record.PhoneNumber, status.InvoiceID)
	if err != nil {
		c.metrics.RecordPaymentConfirmation(OutcomeFailed)
		return nil, err
	}
	if !cleared {
		res.AlreadyProcessed = true
		c.metrics.RecordPaymentConfirmation(OutcomeDuplicate)
		return res, nil
	}

	c.settle(ctx, res, record, *record.PaymentInfo)
	c.metrics.RecordPaymentConfirmation(OutcomeConfirmed)
	logger.Info("payment confirmed",
		"invoice_id", status.InvoiceID,
		"client", utils.MaskPhone(res.ClientPhone),
		"freelancer", res.FreelancerName,
		"bridge", res.BridgeActivated,
	)
	return res, nil
}

// completeLate honours an invoice the gateway reports paid after the sweeper
// already expired it locally. The archived link is claimed once, so retries
// still land on the duplicate path.
func (c *PaymentConfirmer) completeLate(ctx context.Context, res *ConfirmResult, status *payment.Status) (*ConfirmResult, error) {
	record, info, err := c.payments.ClaimExpiredPayment(ctx, status.InvoiceID)
	if err != nil {
		c.metrics.RecordPaymentConfirmation(OutcomeFailed)
		return nil, err
	}
	if record == nil || info == nil {
		res.AlreadyProcessed = true
		c.metrics.RecordPaymentConfirmation(OutcomeDuplicate)
		return res, nil
	}

	res.LatePayment = true
	c.settle(ctx, res, record, *info)
	c.metrics.RecordPaymentConfirmation(OutcomeLate)
	logger.Warn("payment confirmed after local expiry",
		"invoice_id", status.InvoiceID,
		"client", utils.MaskPhone(res.ClientPhone),
		"freelancer", res.FreelancerName,
		"expired_at", info.ExpiresAt,
		"bridge", res.BridgeActivated,
	)
	return res, nil
}

// settle runs the side effects of a paid invoice. Failures are logged; the
// pending state is already gone so nothing here is retried.
func (c *PaymentConfirmer) settle(ctx context.Context, res *ConfirmResult, record *models.ChatHistory, info models.PaymentInfo) {
	client := record.PhoneNumber
	res.ClientPhone = client
	res.FreelancerName = info.Freelancer.Name
	invoiceID := res.InvoiceID

	now := c.now()
	convID, err := c.conversations.UpsertConversation(ctx, models.Conversation{
		ClientPhone:    client,
		ClientName:     record.UserName,
		FreelancerID:   info.Freelancer.ID,
		FreelancerName: info.Freelancer.Name,
		InvoiceID:      invoiceID,
		Status:         models.ConversationStatusActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		logger.Error("failed to upsert conversation", "invoice_id", invoiceID, "error", err)
	}
	res.ConversationID = convID

	recipient := info.Freelancer.UserID
	if recipient == "" {
		recipient = info.Freelancer.ID
	}
	err = c.conversations.CreateNotification(ctx, models.Notification{
		UserID:    recipient,
		Title:     "عميل جديد",
		Message:   paymentNotificationText(record.UserName, client, info.OriginalMessage),
		Type:      models.NotificationTypePayment,
		CreatedAt: now,
	})
	if err != nil {
		logger.Error("failed to create freelancer notification", "invoice_id", invoiceID, "error", err)
	}

	freelancerPhone, phoneErr := utils.NormalizePhone(info.Freelancer.Phone, c.region)
	if phoneErr == nil {
		if _, err := c.bridge.Activate(ctx, client, record.UserName, info.Freelancer, invoiceID, convID); err != nil {
			logger.Error("failed to activate bridge", "invoice_id", invoiceID, "error", err)
		} else {
			res.BridgeActivated = true
		}
	} else {
		logger.Warn("freelancer phone unusable, bridge skipped", "invoice_id", invoiceID, "error", phoneErr)
	}

	if err := c.messenger.SendMessage(ctx, client, paymentConfirmedClientMessage(info.Freelancer.Name, res.BridgeActivated)); err != nil {
		logger.Error("failed to send payment confirmation", "phone", utils.MaskPhone(client), "error", err)
	}
	if phoneErr == nil {
		if err := c.messenger.SendMessage(ctx, freelancerPhone, paymentConfirmedFreelancerMessage(record.UserName, res.BridgeActivated)); err != nil {
			logger.Error("failed to notify freelancer", "phone", utils.MaskPhone(freelancerPhone), "error", err)
		}
	}
}

func paymentNotificationText(clientName, clientPhone, request string) string {
	if clientName == "" {
		clientName = utils.MaskPhone(clientPhone)
	}
	if request == "" {
		return "قام " + clientName + " بالدفع للتواصل معك."
	}
	return "قام " + clientName + " بالدفع للتواصل معك بخصوص: " + request
}
