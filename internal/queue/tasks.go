// Package queue moves inbound message handling and payment confirmation onto
// asynq workers when async processing is enabled.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"freelancer-bot/internal/bot"
	"freelancer-bot/internal/config"
	"freelancer-bot/internal/logger"
	"freelancer-bot/models"
	"freelancer-bot/utils"

	"github.com/hibiken/asynq"
)

const (
	TaskProcessMessage = "whatsapp:message"
	TaskConfirmPayment = "payment:confirm"

	QueueCritical = "critical"
	QueueDefault  = "default"
)

type ConfirmPaymentPayload struct {
	InvoiceID string `json:"invoice_id,omitempty"`
	PaymentID string `json:"payment_id,omitempty"`
}

// Task creators. Neither task is retried: a re-run could answer the client
// twice, and the gateway redelivers confirmations on its own.
func NewProcessMessageTask(msg models.InboundMessage) (*asynq.Task, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}

	opts := []asynq.Option{
		asynq.MaxRetry(0),
		asynq.Timeout(utils.MessageTimeout),
		asynq.Queue(QueueDefault),
	}
	if msg.ID != "" {
		opts = append(opts, asynq.TaskID("msg:"+msg.ID))
	}
	return asynq.NewTask(TaskProcessMessage, payload, opts...), nil
}

func NewConfirmPaymentTask(invoiceID, paymentID string) (*asynq.Task, error) {
	if invoiceID == "" && paymentID == "" {
		return nil, errors.New("queue: confirmation needs an invoice or payment id")
	}
	payload, err := json.Marshal(ConfirmPaymentPayload{InvoiceID: invoiceID, PaymentID: paymentID})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskConfirmPayment,
		payload,
		asynq.MaxRetry(0),
		asynq.Timeout(time.Minute),
		asynq.Queue(QueueCritical),
	), nil
}

// RedisConnOpt maps the service's Redis settings onto asynq.
func RedisConnOpt(cfg *config.Config) (asynq.RedisClientOpt, error) {
	opts, err := config.RedisOptions(cfg)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}
	return asynq.RedisClientOpt{
		Network:   opts.Network,
		Addr:      opts.Addr,
		Username:  opts.Username,
		Password:  opts.Password,
		DB:        opts.DB,
		TLSConfig: opts.TLSConfig,
	}, nil
}

// Enqueuer hands work to the workers.
type Enqueuer struct {
	client *asynq.Client
}

func NewEnqueuer(opt asynq.RedisConnOpt) *Enqueuer {
	return &Enqueuer{client: asynq.NewClient(opt)}
}

// EnqueueMessage queues msg. A message already queued under the same ID is
// not an error.
func (e *Enqueuer) EnqueueMessage(ctx context.Context, msg models.InboundMessage) error {
	task, err := NewProcessMessageTask(msg)
	if err != nil {
		return err
	}
	if _, err := e.client.EnqueueContext(ctx, task); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			logger.Debug("message already queued", "message_id", msg.ID)
			return nil
		}
		return fmt.Errorf("queue: enqueue message: %w", err)
	}
	return nil
}

func (e *Enqueuer) EnqueueConfirmation(ctx context.Context, invoiceID, paymentID string) error {
	task, err := NewConfirmPaymentTask(invoiceID, paymentID)
	if err != nil {
		return err
	}
	if _, err := e.client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("queue: enqueue confirmation: %w", err)
	}
	return nil
}

func (e *Enqueuer) Close() error {
	return e.client.Close()
}

type MessageProcessor interface {
	Process(ctx context.Context, msg models.InboundMessage) error
}

type PaymentConfirmer interface {
	Confirm(ctx context.Context, invoiceID string) (*bot.ConfirmResult, error)
	ConfirmByPaymentID(ctx context.Context, paymentID string) (*bot.ConfirmResult, error)
}

// Task handlers
type TaskProcessor struct {
	processor MessageProcessor
	confirmer PaymentConfirmer
}

func NewTaskProcessor(processor MessageProcessor, confirmer PaymentConfirmer) *TaskProcessor {
	return &TaskProcessor{processor: processor, confirmer: confirmer}
}

// Register wires the handlers into mux.
func (p *TaskProcessor) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskProcessMessage, p.ProcessMessage)
	mux.HandleFunc(TaskConfirmPayment, p.ConfirmPayment)
}

func (p *TaskProcessor) ProcessMessage(ctx context.Context, t *asynq.Task) error {
	var msg models.InboundMessage
	if err := json.Unmarshal(t.Payload(), &msg); err != nil {
		return fmt.Errorf("unmarshal failed: %w", asynq.SkipRetry)
	}

	// the processor already replied with an apology
	if err := p.processor.Process(ctx, msg); err != nil {
		return fmt.Errorf("process message %s: %v: %w", msg.ID, err, asynq.SkipRetry)
	}
	return nil
}

func (p *TaskProcessor) ConfirmPayment(ctx context.Context, t *asynq.Task) error {
	var payload ConfirmPaymentPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %w", asynq.SkipRetry)
	}

	var (
		res *bot.ConfirmResult
		err error
	)
	switch {
	case payload.InvoiceID != "":
		res, err = p.confirmer.Confirm(ctx, payload.InvoiceID)
	case payload.PaymentID != "":
		res, err = p.confirmer.ConfirmByPaymentID(ctx, payload.PaymentID)
	default:
		return fmt.Errorf("empty confirmation payload: %w", asynq.SkipRetry)
	}
	if err != nil {
		return fmt.Errorf("confirm payment: %v: %w", err, asynq.SkipRetry)
	}

	logger.Info("payment confirmation task done",
		"invoice_id", res.InvoiceID,
		"paid", res.Paid,
		"already_processed", res.AlreadyProcessed,
	)
	return nil
}
