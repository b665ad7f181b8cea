package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordRequest("POST", "/webhook", "success", 0.01)
		m.RecordMessageRouted("ai_chat")
		m.RecordPaymentLink("myfatoorah")
		m.RecordPaymentFallback("live_with_mock_fallback")
		m.RecordPaymentConfirmation("confirmed")
		m.RecordPaymentsExpired(2)
		m.RecordTokensUsed(10, "gemini-2.0-flash")
		m.RecordCircuitBreakerState("gemini", "open")
	})
}

func TestInitMetricsWithGlobalNoopProvider(t *testing.T) {
	m, err := InitMetrics()
	require.NoError(t, err)
	assert.NotPanics(t, func() {
		m.RecordMessageRouted("command")
		m.RecordPaymentsExpired(1)
	})
}
