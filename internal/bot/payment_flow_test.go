package bot

import (
	"context"
	"testing"
	"time"

	"freelancer-bot/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleAcceptIssuesLinkAndSetsState(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	h.nlu.summary = "تصميم شعار لمتجر"
	require.NoError(t, h.store.AppendMessage(ctx, clientPhone, "Sara", models.HistoryEntry{
		Role:    models.RoleAssistant,
		Content: "أنصحك بـ Layla Dev لهذا المشروع",
	}))

	before := time.Now()
	require.NoError(t, h.processor.Process(ctx, buttonMessage("m1", clientPhone, ButtonAcceptFreelancer)))

	sent := h.messenger.to(clientPhone)
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Text, "Layla Dev")
	assert.Contains(t, sent[0].Text, "https://pay.example/INV-1")
	assert.Contains(t, sent[0].Text, "تصميم شعار لمتجر")

	state, info, err := h.store.GetPaymentState(ctx, clientPhone)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStateAwaitingPayment, state)
	require.NotNil(t, info)
	assert.Equal(t, "INV-1", info.InvoiceID)
	assert.Equal(t, "Layla Dev", info.Freelancer.Name)
	assert.WithinDuration(t, before.Add(12*time.Hour), info.ExpiresAt, time.Minute)
	require.Len(t, h.provider.requests, 1)
	assert.Equal(t, info.ExpiresAt, h.provider.requests[0].ExpiresAt)

	hist := h.store.history(clientPhone)
	last := hist[len(hist)-1]
	assert.Equal(t, models.TagPaymentLink, last.Tag)
	assert.Equal(t, sent[0].Text, last.Content)
}

func TestHandleAcceptFallsBackToCategoryThenVerified(t *testing.T) {
	h := newHarness()
	h.nlu.category = "programming"
	require.NoError(t, h.flow.HandleAccept(context.Background(), clientPhone, "Sara"))
	_, info, _ := h.store.GetPaymentState(context.Background(), clientPhone)
	require.NotNil(t, info)
	assert.Equal(t, "Layla Dev", info.Freelancer.Name)

	h = newHarness()
	h.nlu.category = "translation"
	require.NoError(t, h.flow.HandleAccept(context.Background(), clientPhone, "Sara"))
	_, info, _ = h.store.GetPaymentState(context.Background(), clientPhone)
	require.NotNil(t, info)
	assert.Equal(t, "Ahmed Designer", info.Freelancer.Name)
}

func TestHandleAcceptNoFreelancer(t *testing.T) {
	h := newHarness()
	h.store.freelancers = nil

	require.NoError(t, h.flow.HandleAccept(context.Background(), clientPhone, "Sara"))

	assert.Equal(t, NoFreelancerMessage, h.messenger.to(clientPhone)[0].Text)
	state, _, _ := h.store.GetPaymentState(context.Background(), clientPhone)
	assert.Equal(t, models.PaymentStateNormal, state)
}

func TestHandleAcceptSendFailureWritesNoState(t *testing.T) {
	h := newHarness()
	h.messenger.failFor[clientPhone] = errBoom

	err := h.flow.HandleAccept(context.Background(), clientPhone, "Sara")
	require.ErrorIs(t, err, errBoom)

	state, info, _ := h.store.GetPaymentState(context.Background(), clientPhone)
	assert.Equal(t, models.PaymentStateNormal, state)
	assert.Nil(t, info)
	assert.Empty(t, h.store.history(clientPhone))
}

func TestHandleAcceptGatewayFailure(t *testing.T) {
	h := newHarness()
	h.provider.createErr = errBoom

	err := h.processor.Process(context.Background(), buttonMessage("m1", clientPhone, ButtonAcceptFreelancer))
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, GenericErrorMessage, h.messenger.to(clientPhone)[0].Text)

	state, _, _ := h.store.GetPaymentState(context.Background(), clientPhone)
	assert.Equal(t, models.PaymentStateNormal, state)
}

func TestMentionedFreelancerPrefersNewestAndLongest(t *testing.T) {
	freelancers := []models.Freelancer{{Name: "Ali"}, {Name: "Ali Hassan"}, {Name: "Mona"}}
	history := []models.HistoryEntry{
		{Role: models.RoleAssistant, Content: "جرب Mona"},
		{Role: models.RoleUser, Content: "Mona لا تناسبني"},
		{Role: models.RoleAssistant, Content: "إذن Ali Hassan خيار ممتاز"},
		{Role: models.RoleAssistant, Content: "رابط الدفع للمستقل Mona", Tag: models.TagPaymentLink},
	}

	got := mentionedFreelancer(history, freelancers)
	require.NotNil(t, got)
	assert.Equal(t, "Ali Hassan", got.Name)

	assert.Nil(t, mentionedFreelancer(history[1:2], freelancers))
}
