// Package bot holds the conversation logic: routing inbound messages,
// issuing and confirming payments, relaying bridged chats and expiring
// stale payment links.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"freelancer-bot/internal/ai"
	"freelancer-bot/internal/dedup"
	"freelancer-bot/internal/logger"
	"freelancer-bot/internal/telemetry"
	"freelancer-bot/models"
	"freelancer-bot/utils"
)

// Routes recorded per handled message.
const (
	RouteDuplicate      = "duplicate"
	RoutePendingPayment = "pending_payment"
	RouteBridge         = "bridge"
	RouteButton         = "button"
	RouteCommand        = "command"
	RouteChat           = "chat"
	RouteUnsupported    = "unsupported"
	RouteError          = "error"
)

var errEmptyReply = errors.New("bot: empty reply from language model")

type ProcessorOptions struct {
	CatalogLimit int
}

// Processor routes one inbound message through the priority chain:
// duplicate guard, pending-payment gate, bridge relay, button replies,
// slash commands and finally free-form chat.
type Processor struct {
	guard     dedup.Guard
	messenger Messenger
	history   HistoryStore
	payments  PaymentStateStore
	directory Directory
	nlu       NLU
	bridge    *BridgeService
	flow      *PaymentFlow
	commands  *CommandRegistry
	metrics   *telemetry.Metrics
	opts      ProcessorOptions
	now       func() time.Time
}

func NewProcessor(
	guard dedup.Guard,
	store Store,
	messenger Messenger,
	nlu NLU,
	bridge *BridgeService,
	flow *PaymentFlow,
	metrics *telemetry.Metrics,
	opts ProcessorOptions,
) *Processor {
	if opts.CatalogLimit <= 0 {
		opts.CatalogLimit = 200
	}
	p := &Processor{
		guard:     guard,
		messenger: messenger,
		history:   store,
		payments:  store,
		directory: store,
		nlu:       nlu,
		bridge:    bridge,
		flow:      flow,
		commands:  NewCommandRegistry(),
		metrics:   metrics,
		opts:      opts,
		now:       time.Now,
	}
	p.registerCommands()
	return p
}

// Process handles msg. Any failure is logged and answered with a generic
// apology; the error is still returned for the caller's bookkeeping.
func (p *Processor) Process(ctx context.Context, msg models.InboundMessage) error {
	if msg.ID != "" && p.guard != nil {
		claimed, err := p.guard.Begin(ctx, msg.ID)
		switch {
		case err != nil:
			logger.Warn("dedup guard unavailable, processing anyway", "message_id", msg.ID, "error", err)
		case !claimed:
			logger.Debug("duplicate message dropped", "message_id", msg.ID)
			p.metrics.RecordMessageRouted(RouteDuplicate)
			return nil
		default:
			defer p.guard.End(ctx, msg.ID)
		}
	}

	route, err := p.route(ctx, msg)
	if err != nil {
		p.metrics.RecordMessageRouted(RouteError)
		logger.Error("failed to process message",
			"route", route,
			"message_id", msg.ID,
			"from", utils.MaskPhone(msg.From),
			"error", err,
		)
		if sendErr := p.messenger.SendMessage(ctx, msg.From, GenericErrorMessage); sendErr != nil {
			logger.Error("failed to send error reply", "from", utils.MaskPhone(msg.From), "error", sendErr)
		}
		return err
	}

	p.metrics.RecordMessageRouted(route)
	return nil
}

func (p *Processor) route(ctx context.Context, msg models.InboundMessage) (string, error) {
	var (
		cmd   Command
		isCmd bool
	)
	if msg.IsText() {
		cmd, isCmd = p.commands.Lookup(msg.Text)
	}

	state, _, err := p.payments.GetPaymentState(ctx, msg.From)
	if err != nil {
		return RoutePendingPayment, fmt.Errorf("load payment state: %w", err)
	}
	if state == models.PaymentStateAwaitingPayment && !isCmd {
		return RoutePendingPayment, p.messenger.SendMessage(ctx, msg.From, PendingPaymentMessage)
	}

	if !isCmd || cmd.Token != CmdEndBridgeMode {
		session, err := p.bridge.ActiveSession(ctx, msg.From)
		if err != nil {
			return RouteBridge, fmt.Errorf("load bridge session: %w", err)
		}
		if session != nil {
			return RouteBridge, p.relay(ctx, session, msg)
		}
	}

	if msg.IsButtonReply() {
		return RouteButton, p.handleButton(ctx, msg)
	}

	if isCmd {
		return RouteCommand, cmd.Handler(ctx, msg)
	}

	if !msg.IsText() {
		return RouteUnsupported, p.messenger.SendMessage(ctx, msg.From, UnsupportedMessage)
	}

	return RouteChat, p.chat(ctx, msg)
}

// relay forwards msg to the counterpart. A failed forward is reported to the
// sender and never falls through to the assistant.
func (p *Processor) relay(ctx context.Context, session *models.BridgeSession, msg models.InboundMessage) error {
	text := msg.Text
	switch {
	case msg.IsText():
	case msg.IsButtonReply() && msg.ButtonTitle != "":
		text = msg.ButtonTitle
	default:
		text = NonTextPlaceholder
	}

	if err := p.bridge.Forward(ctx, session, msg.From, text); err != nil {
		logger.Error("bridge forward failed",
			"from", utils.MaskPhone(msg.From),
			"invoice_id", session.InvoiceID,
			"error", err,
		)
		return p.messenger.SendMessage(ctx, msg.From, BridgeForwardFailedMessage)
	}
	return nil
}

func (p *Processor) handleButton(ctx context.Context, msg models.InboundMessage) error {
	switch msg.ButtonID {
	case ButtonAcceptFreelancer:
		return p.flow.HandleAccept(ctx, msg.From, msg.Name)
	case ButtonRejectFreelancer:
		return p.messenger.SendInteractiveButtons(ctx, msg.From, RejectFreelancerMessage, searchMoreButtons())
	case ButtonSearchMore:
		return p.messenger.SendMessage(ctx, msg.From, SearchMoreMessage)
	default:
		logger.Warn("unknown button reply", "button_id", msg.ButtonID)
		return p.messenger.SendMessage(ctx, msg.From, UnknownButtonMessage)
	}
}

func (p *Processor) chat(ctx context.Context, msg models.InboundMessage) error {
	if err := p.messenger.MarkAsRead(ctx, msg.ID); err != nil {
		logger.Debug("mark as read failed", "message_id", msg.ID, "error", err)
	}
	if err := p.messenger.SendTypingIndicator(ctx, msg.ID); err != nil {
		logger.Debug("typing indicator failed", "message_id", msg.ID, "error", err)
	}

	text := strings.TrimSpace(msg.Text)
	err := p.history.AppendMessage(ctx, msg.From, msg.Name, models.HistoryEntry{
		Role:      models.RoleUser,
		Content:   text,
		Timestamp: p.now(),
	})
	if err != nil {
		return err
	}

	record, err := p.history.GetHistory(ctx, msg.From)
	if err != nil {
		return err
	}

	var reply string
	catalog, err := p.directory.LoadCatalog(ctx, p.opts.CatalogLimit)
	if err != nil {
		logger.Warn("catalog unavailable, answering without it", "error", err)
		reply, err = p.nlu.GenerateResponse(ctx, record.Messages, text)
	} else {
		reply, err = p.nlu.GenerateResponseWithAllData(ctx, record.Messages, catalog, text, msg.Name)
	}
	if err != nil {
		return fmt.Errorf("generate reply: %w", err)
	}

	reply, showButtons := stripButtonsSentinel(reply)
	if reply == "" {
		return errEmptyReply
	}

	err = p.history.AppendMessage(ctx, msg.From, msg.Name, models.HistoryEntry{
		Role:      models.RoleAssistant,
		Content:   reply,
		Timestamp: p.now(),
	})
	if err != nil {
		return err
	}

	if showButtons {
		return p.messenger.SendInteractiveButtons(ctx, msg.From, reply, recommendationButtons())
	}
	return p.messenger.SendMessage(ctx, msg.From, reply)
}

func stripButtonsSentinel(reply string) (string, bool) {
	if !strings.Contains(reply, ai.ButtonsSentinel) {
		return strings.TrimSpace(reply), false
	}
	return strings.TrimSpace(strings.ReplaceAll(reply, ai.ButtonsSentinel, "")), true
}

func (p *Processor) registerCommands() {
	p.commands.Register(CmdClear, "مسح سجل المحادثة", func(ctx context.Context, msg models.InboundMessage) error {
		if err := p.history.ClearHistory(ctx, msg.From); err != nil {
			return err
		}
		return p.messenger.SendMessage(ctx, msg.From, HistoryClearedMessage)
	})

	p.commands.Register(CmdReset, "إعادة تعيين المحادثة وإلغاء الدفع المعلق", func(ctx context.Context, msg models.InboundMessage) error {
		if err := p.payments.ClearPaymentState(ctx, msg.From); err != nil {
			return err
		}
		if err := p.history.ClearHistory(ctx, msg.From); err != nil {
			return err
		}
		return p.messenger.SendMessage(ctx, msg.From, ResetMessage)
	})

	p.commands.Register(CmdHelp, "عرض الأوامر المتاحة", func(ctx context.Context, msg models.InboundMessage) error {
		return p.messenger.SendMessage(ctx, msg.From, helpMessage(p.commands.Help()))
	})

	p.commands.Register(CmdInfo, "عرض حالة الطلب والدفع", func(ctx context.Context, msg models.InboundMessage) error {
		state, info, err := p.payments.GetPaymentState(ctx, msg.From)
		if err != nil {
			return err
		}
		session, err := p.bridge.ActiveSession(ctx, msg.From)
		if err != nil {
			return err
		}
		return p.messenger.SendMessage(ctx, msg.From, infoMessage(state, info, session, msg.From, p.now()))
	})

	p.commands.Register(CmdEndBridgeMode, "إنهاء المحادثة المباشرة مع المستقل", func(ctx context.Context, msg models.InboundMessage) error {
		ended, err := p.bridge.End(ctx, msg.From)
		if err != nil {
			return err
		}
		if !ended {
			return p.messenger.SendMessage(ctx, msg.From, NoBridgeMessage)
		}
		return nil
	})
}
