package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"freelancer-bot/internal/logger"
	"freelancer-bot/internal/payment"
	"freelancer-bot/internal/telemetry"
	"freelancer-bot/models"
	"freelancer-bot/utils"
)

type PaymentOptions struct {
	Amount       float64
	Currency     string
	Expiry       time.Duration
	CatalogLimit int
}

// PaymentFlow turns an accepted recommendation into a payment link.
type PaymentFlow struct {
	history   HistoryStore
	payments  PaymentStateStore
	directory Directory
	nlu       NLU
	provider  payment.Provider
	messenger Messenger
	metrics   *telemetry.Metrics
	opts      PaymentOptions
	now       func() time.Time
}

func NewPaymentFlow(store Store, nlu NLU, provider payment.Provider, messenger Messenger, metrics *telemetry.Metrics, opts PaymentOptions) *PaymentFlow {
	if opts.Expiry <= 0 {
		opts.Expiry = 12 * time.Hour
	}
	if opts.CatalogLimit <= 0 {
		opts.CatalogLimit = 200
	}
	return &PaymentFlow{
		history:   store,
		payments:  store,
		directory: store,
		nlu:       nlu,
		provider:  provider,
		messenger: messenger,
		metrics:   metrics,
		opts:      opts,
		now:       time.Now,
	}
}

// HandleAccept issues a payment link for the freelancer the client agreed to.
// Payment state is written only once the link has reached the client.
func (f *PaymentFlow) HandleAccept(ctx context.Context, phone, name string) error {
	record, err := f.history.GetHistory(ctx, phone)
	if err != nil {
		return err
	}

	request := f.nlu.SummarizeRequest(ctx, record.Messages)

	freelancer, err := f.selectFreelancer(ctx, record.Messages, request)
	if err != nil {
		return err
	}
	if freelancer == nil {
		logger.Warn("no freelancer available for accepted request", "phone", utils.MaskPhone(phone))
		return f.messenger.SendMessage(ctx, phone, NoFreelancerMessage)
	}

	issuedAt := f.now()
	expiresAt := issuedAt.Add(f.opts.Expiry)
	link, err := f.provider.CreatePaymentLink(ctx, payment.LinkRequest{
		CustomerName:   name,
		CustomerPhone:  phone,
		Amount:         f.opts.Amount,
		Currency:       f.opts.Currency,
		Reference:      phone,
		FreelancerID:   freelancer.ID.Hex(),
		FreelancerName: freelancer.Name,
		Description:    request,
		ExpiresAt:      expiresAt,
	})
	if err != nil {
		return fmt.Errorf("create payment link: %w", err)
	}

	text := paymentLinkMessage(freelancer.Name, request, link.Amount, link.Currency, link.URL, f.opts.Expiry)
	if err := f.messenger.SendMessage(ctx, phone, text); err != nil {
		return fmt.Errorf("send payment link: %w", err)
	}
	f.metrics.RecordPaymentLink(link.Provider)

	now := f.now()
	historyErr := f.history.AppendMessage(ctx, phone, name, models.HistoryEntry{
		Role:      models.RoleAssistant,
		Content:   text,
		Timestamp: now,
		Tag:       models.TagPaymentLink,
	})
	if historyErr != nil {
		logger.Error("failed to persist payment link message", "phone", utils.MaskPhone(phone), "invoice_id", link.InvoiceID, "error", historyErr)
	}

	stateErr := f.payments.SetAwaitingPayment(ctx, phone, models.PaymentInfo{
		InvoiceID:       link.InvoiceID,
		PaymentURL:      link.URL,
		Provider:        link.Provider,
		Amount:          link.Amount,
		Currency:        link.Currency,
		Freelancer:      freelancer.Snapshot(),
		OriginalMessage: request,
		CreatedAt:       issuedAt,
		ExpiresAt:       expiresAt,
	})
	if stateErr != nil {
		logger.Error("failed to set awaiting payment state", "phone", utils.MaskPhone(phone), "invoice_id", link.InvoiceID, "error", stateErr)
	}

	if err := errors.Join(historyErr, stateErr); err != nil {
		return err
	}

	logger.Info("payment link issued",
		"phone", utils.MaskPhone(phone),
		"invoice_id", link.InvoiceID,
		"provider", link.Provider,
		"freelancer", freelancer.Name,
	)
	return nil
}

// selectFreelancer prefers the freelancer the assistant last named, then one
// in the inferred category, then any verified freelancer.
func (f *PaymentFlow) selectFreelancer(ctx context.Context, history []models.HistoryEntry, request string) (*models.Freelancer, error) {
	all, err := f.directory.ListFreelancers(ctx, f.opts.CatalogLimit)
	if err != nil {
		return nil, err
	}
	if named := mentionedFreelancer(history, all); named != nil {
		return named, nil
	}

	if category := f.nlu.InferServiceCategory(ctx, request); category != "" {
		matches, err := f.directory.FindFreelancersByCategory(ctx, category, 1)
		if err != nil {
			return nil, err
		}
		if len(matches) > 0 {
			return &matches[0], nil
		}
	}

	return f.directory.FindVerifiedFreelancer(ctx)
}

// mentionedFreelancer scans assistant turns newest first and returns the
// freelancer with the longest name found in the first turn that names any.
func mentionedFreelancer(history []models.HistoryEntry, freelancers []models.Freelancer) *models.Freelancer {
	for i := len(history) - 1; i >= 0; i-- {
		entry := history[i]
		if entry.Role != models.RoleAssistant || entry.Tag == models.TagPaymentLink {
			continue
		}
		var best *models.Freelancer
		for j := range freelancers {
			name := strings.TrimSpace(freelancers[j].Name)
			if name == "" || !strings.Contains(entry.Content, name) {
				continue
			}
			if best == nil || len(name) > len(best.Name) {
				best = &freelancers[j]
			}
		}
		if best != nil {
			return best
		}
	}
	return nil
}
