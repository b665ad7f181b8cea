package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"freelancer-bot/internal/bot"
	"freelancer-bot/internal/config"
	"freelancer-bot/models"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingProcessor struct {
	got []models.InboundMessage
	err error
}

func (r *recordingProcessor) Process(_ context.Context, msg models.InboundMessage) error {
	r.got = append(r.got, msg)
	return r.err
}

type recordingConfirmer struct {
	invoices []string
	payments []string
}

func (r *recordingConfirmer) Confirm(_ context.Context, invoiceID string) (*bot.ConfirmResult, error) {
	r.invoices = append(r.invoices, invoiceID)
	return &bot.ConfirmResult{InvoiceID: invoiceID, Paid: true}, nil
}

func (r *recordingConfirmer) ConfirmByPaymentID(_ context.Context, paymentID string) (*bot.ConfirmResult, error) {
	r.payments = append(r.payments, paymentID)
	return &bot.ConfirmResult{InvoiceID: "INV-" + paymentID, Paid: true}, nil
}

func TestProcessMessageTaskRoundTrip(t *testing.T) {
	msg := models.InboundMessage{ID: "wamid.1", From: "966501234567", Type: models.MessageTypeText, Text: "مرحبا"}
	task, err := NewProcessMessageTask(msg)
	require.NoError(t, err)
	assert.Equal(t, TaskProcessMessage, task.Type())

	proc := &recordingProcessor{}
	tp := NewTaskProcessor(proc, &recordingConfirmer{})
	require.NoError(t, tp.ProcessMessage(context.Background(), task))
	require.Len(t, proc.got, 1)
	assert.Equal(t, msg.Text, proc.got[0].Text)
	assert.Equal(t, msg.ID, proc.got[0].ID)
}

func TestProcessMessageFailureIsNotRetried(t *testing.T) {
	task, err := NewProcessMessageTask(models.InboundMessage{ID: "wamid.2"})
	require.NoError(t, err)

	tp := NewTaskProcessor(&recordingProcessor{err: errors.New("nlu down")}, &recordingConfirmer{})
	err = tp.ProcessMessage(context.Background(), task)
	require.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestProcessMessageBadPayload(t *testing.T) {
	tp := NewTaskProcessor(&recordingProcessor{}, &recordingConfirmer{})
	err := tp.ProcessMessage(context.Background(), asynq.NewTask(TaskProcessMessage, []byte("{not json")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestConfirmPaymentTask(t *testing.T) {
	conf := &recordingConfirmer{}
	tp := NewTaskProcessor(&recordingProcessor{}, conf)

	byInvoice, err := NewConfirmPaymentTask("4521", "")
	require.NoError(t, err)
	require.NoError(t, tp.ConfirmPayment(context.Background(), byInvoice))

	byPayment, err := NewConfirmPaymentTask("", "0708")
	require.NoError(t, err)
	require.NoError(t, tp.ConfirmPayment(context.Background(), byPayment))

	assert.Equal(t, []string{"4521"}, conf.invoices)
	assert.Equal(t, []string{"0708"}, conf.payments)

	var payload ConfirmPaymentPayload
	require.NoError(t, json.Unmarshal(byInvoice.Payload(), &payload))
	assert.Equal(t, "4521", payload.InvoiceID)

	_, err = NewConfirmPaymentTask("", "")
	assert.Error(t, err)

	err = tp.ConfirmPayment(context.Background(), asynq.NewTask(TaskConfirmPayment, []byte(`{}`)))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestRedisConnOpt(t *testing.T) {
	opt, err := RedisConnOpt(&config.Config{RedisURL: "redis://:secret@cache:6380/2"})
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opt.Addr)
	assert.Equal(t, "secret", opt.Password)
	assert.Equal(t, 2, opt.DB)

	opt, err = RedisConnOpt(&config.Config{RedisURL: "localhost:6379", RedisDB: 1})
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opt.Addr)
	assert.Equal(t, 1, opt.DB)
}
