package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all application metrics. A nil *Metrics records nothing.
type Metrics struct {
	RequestCounter      metric.Int64Counter
	RequestDuration     metric.Float64Histogram
	MessagesRouted      metric.Int64Counter
	PaymentLinksIssued  metric.Int64Counter
	PaymentFallbacks    metric.Int64Counter
	PaymentsConfirmed   metric.Int64Counter
	PaymentsExpired     metric.Int64Counter
	TokensUsed          metric.Int64Counter
	CircuitBreakerState metric.Int64Counter
}

// InitMetrics initializes all application metrics
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter("freelancer-bot")
	m := &Metrics{}
	var err error

	if m.RequestCounter, err = meter.Int64Counter(
		"http.requests.total",
		metric.WithDescription("Total HTTP requests"),
	); err != nil {
		return nil, err
	}

	if m.RequestDuration, err = meter.Float64Histogram(
		"http.request.duration",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if m.MessagesRouted, err = meter.Int64Counter(
		"bot.messages.routed",
		metric.WithDescription("Inbound messages by routing decision"),
	); err != nil {
		return nil, err
	}

	if m.PaymentLinksIssued, err = meter.Int64Counter(
		"payment.links.issued",
		metric.WithDescription("Payment links sent to clients"),
	); err != nil {
		return nil, err
	}

	if m.PaymentFallbacks, err = meter.Int64Counter(
		"payment.fallbacks",
		metric.WithDescription("Live gateway failures answered by the mock provider"),
	); err != nil {
		return nil, err
	}

	if m.PaymentsConfirmed, err = meter.Int64Counter(
		"payment.confirmations",
		metric.WithDescription("Payment webhook outcomes"),
	); err != nil {
		return nil, err
	}

	if m.PaymentsExpired, err = meter.Int64Counter(
		"payment.expired",
		metric.WithDescription("Pending payments reverted by the sweeper"),
	); err != nil {
		return nil, err
	}

	if m.TokensUsed, err = meter.Int64Counter(
		"gemini.tokens.used",
		metric.WithDescription("Total Gemini tokens used"),
	); err != nil {
		return nil, err
	}

	if m.CircuitBreakerState, err = meter.Int64Counter(
		"circuit_breaker.state_changes",
		metric.WithDescription("Circuit breaker state changes"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

// RecordRequest records HTTP request metrics
func (m *Metrics) RecordRequest(method, path, status string, duration float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.path", path),
		attribute.String("http.status", status),
	)

	m.RequestCounter.Add(context.Background(), 1, attrs)
	m.RequestDuration.Record(context.Background(), duration, attrs)
}

// RecordMessageRouted counts one inbound message against the branch that handled it.
func (m *Metrics) RecordMessageRouted(route string) {
	if m == nil {
		return
	}
	m.MessagesRouted.Add(context.Background(), 1, metric.WithAttributes(attribute.String("route", route)))
}

func (m *Metrics) RecordPaymentLink(provider string) {
	if m == nil {
		return
	}
	m.PaymentLinksIssued.Add(context.Background(), 1, metric.WithAttributes(attribute.String("provider", provider)))
}

func (m *Metrics) RecordPaymentFallback(policy string) {
	if m == nil {
		return
	}
	m.PaymentFallbacks.Add(context.Background(), 1, metric.WithAttributes(attribute.String("policy", policy)))
}

// RecordPaymentConfirmation records the webhook outcome (confirmed, confirmed_late, duplicate, unpaid, failed).
func (m *Metrics) RecordPaymentConfirmation(outcome string) {
	if m == nil {
		return
	}
	m.PaymentsConfirmed.Add(context.Background(), 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *Metrics) RecordPaymentsExpired(n int) {
	if m == nil || n == 0 {
		return
	}
	m.PaymentsExpired.Add(context.Background(), int64(n))
}

// RecordTokensUsed records Gemini token usage
func (m *Metrics) RecordTokensUsed(tokens int64, model string) {
	if m == nil {
		return
	}
	m.TokensUsed.Add(context.Background(), tokens, metric.WithAttributes(
		attribute.String("gemini.model", model),
		attribute.String("service", "gemini"),
	))
}

// RecordCircuitBreakerState records circuit breaker state changes
func (m *Metrics) RecordCircuitBreakerState(service, state string) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("service", service),
		attribute.String("state", state),
	))
}
