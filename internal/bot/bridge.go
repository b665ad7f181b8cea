package bot

import (
	"context"
	"errors"
	"fmt"

	"freelancer-bot/internal/logger"
	"freelancer-bot/models"
	"freelancer-bot/utils"
)

var ErrNotBridgeMember = errors.New("bot: phone is not a member of the bridge session")

// BridgeService relays messages verbatim between a client and the freelancer
// they paid for.
type BridgeService struct {
	store     BridgeStore
	messenger Messenger
	region    string
}

func NewBridgeService(store BridgeStore, messenger Messenger, defaultRegion string) *BridgeService {
	return &BridgeService{store: store, messenger: messenger, region: defaultRegion}
}

// Activate opens a session between clientPhone and the freelancer. A client has
// at most one active session; an older one is closed first.
func (b *BridgeService) Activate(ctx context.Context, clientPhone, clientName string, freelancer models.FreelancerSnapshot, invoiceID, conversationID string) (*models.BridgeSession, error) {
	freelancerPhone, err := utils.NormalizePhone(freelancer.Phone, b.region)
	if err != nil {
		return nil, fmt.Errorf("bridge: freelancer phone: %w", err)
	}
	if freelancerPhone == clientPhone {
		return nil, fmt.Errorf("bridge: client and freelancer share phone %s", utils.MaskPhone(clientPhone))
	}

	if prev, err := b.store.FindActiveBridge(ctx, clientPhone); err != nil {
		return nil, err
	} else if prev != nil && prev.IsClient(clientPhone) {
		if err := b.store.EndBridgeSession(ctx, prev.ID); err != nil {
			return nil, err
		}
	}

	session, err := b.store.CreateBridgeSession(ctx, models.BridgeSession{
		ClientPhone:     clientPhone,
		FreelancerPhone: freelancerPhone,
		ClientName:      clientName,
		FreelancerName:  freelancer.Name,
		InvoiceID:       invoiceID,
		ConversationID:  conversationID,
	})
	if err != nil {
		return nil, err
	}

	logger.Info("bridge activated",
		"client", utils.MaskPhone(clientPhone),
		"freelancer", utils.MaskPhone(freelancerPhone),
		"invoice_id", invoiceID,
	)
	return session, nil
}

// ActiveSession returns the session phone is part of, or nil.
func (b *BridgeService) ActiveSession(ctx context.Context, phone string) (*models.BridgeSession, error) {
	return b.store.FindActiveBridge(ctx, phone)
}

func (b *BridgeService) Counterpart(session *models.BridgeSession, phone string) string {
	if session == nil {
		return ""
	}
	return session.Counterpart(phone)
}

// Forward sends text unchanged to the other member of the session.
func (b *BridgeService) Forward(ctx context.Context, session *models.BridgeSession, fromPhone, text string) error {
	to := b.Counterpart(session, fromPhone)
	if to == "" {
		return ErrNotBridgeMember
	}
	if err := b.messenger.SendMessage(ctx, to, text); err != nil {
		return fmt.Errorf("bridge: forward: %w", err)
	}
	return nil
}

// End closes the active session of phone and tells both sides. It reports
// false when there was nothing to end.
func (b *BridgeService) End(ctx context.Context, phone string) (bool, error) {
	session, err := b.store.FindActiveBridge(ctx, phone)
	if err != nil {
		return false, err
	}
	if session == nil {
		return false, nil
	}
	if err := b.store.EndBridgeSession(ctx, session.ID); err != nil {
		return false, err
	}

	if other := session.Counterpart(phone); other != "" {
		if err := b.messenger.SendMessage(ctx, other, BridgeEndedByPeerMessage); err != nil {
			logger.Warn("failed to notify bridge counterpart", "to", utils.MaskPhone(other), "error", err)
		}
	}
	if err := b.messenger.SendMessage(ctx, phone, BridgeEndedMessage); err != nil {
		return true, err
	}
	return true, nil
}
