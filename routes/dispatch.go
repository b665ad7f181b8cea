package routes

import (
	"context"
	"sync"

	"freelancer-bot/internal/bot"
	"freelancer-bot/internal/logger"
	"freelancer-bot/models"
	"freelancer-bot/utils"
)

// Dispatcher takes an inbound message off the webhook request path.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg models.InboundMessage) error
}

type MessageProcessor interface {
	Process(ctx context.Context, msg models.InboundMessage) error
}

type PaymentConfirmer interface {
	Confirm(ctx context.Context, invoiceID string) (*bot.ConfirmResult, error)
	ConfirmByPaymentID(ctx context.Context, paymentID string) (*bot.ConfirmResult, error)
}

// InlineDispatcher processes each message in its own goroutine with a
// context detached from the webhook request. Wait drains them on shutdown.
type InlineDispatcher struct {
	processor MessageProcessor
	wg        sync.WaitGroup
}

func NewInlineDispatcher(processor MessageProcessor) *InlineDispatcher {
	return &InlineDispatcher{processor: processor}
}

func (d *InlineDispatcher) Dispatch(ctx context.Context, msg models.InboundMessage) error {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		msgCtx, cancel := utils.DetachedMessageContext(ctx)
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic while processing message", "message_id", msg.ID, "panic", r)
			}
		}()
		_ = d.processor.Process(msgCtx, msg)
	}()
	return nil
}

// Wait blocks until every dispatched message has been processed or ctx is
// done. Call it after the HTTP server has stopped accepting webhooks.
func (d *InlineDispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type MessageQueue interface {
	EnqueueMessage(ctx context.Context, msg models.InboundMessage) error
}

// QueueDispatcher hands messages to the asynq workers.
type QueueDispatcher struct {
	queue MessageQueue
}

func NewQueueDispatcher(queue MessageQueue) *QueueDispatcher {
	return &QueueDispatcher{queue: queue}
}

func (d *QueueDispatcher) Dispatch(ctx context.Context, msg models.InboundMessage) error {
	return d.queue.EnqueueMessage(ctx, msg)
}
