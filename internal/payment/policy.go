package payment

import (
	"context"
	"fmt"

	"freelancer-bot/internal/config"
	"freelancer-bot/internal/logger"
	"freelancer-bot/internal/telemetry"
)

// FallbackPolicy decides what happens when the live gateway cannot issue a link.
type FallbackPolicy string

const (
	// PolicyLiveOnly surfaces every gateway error.
	PolicyLiveOnly FallbackPolicy = "live_only"
	// PolicyMockOnly never contacts the live gateway.
	PolicyMockOnly FallbackPolicy = "mock_only"
	// PolicyLiveWithMockFallback retries a failed live call against the mock provider.
	PolicyLiveWithMockFallback FallbackPolicy = "live_with_mock_fallback"
)

// PolicyFor selects the policy for an environment. Production is always live only.
func PolicyFor(cfg *config.Config) FallbackPolicy {
	switch {
	case cfg.IsProduction():
		return PolicyLiveOnly
	case !cfg.EnableMockPayments:
		return PolicyLiveOnly
	case cfg.MyFatoorahAPIKey == "":
		return PolicyMockOnly
	default:
		return PolicyLiveWithMockFallback
	}
}

// Router applies a FallbackPolicy over a live and a mock provider.
type Router struct {
	policy  FallbackPolicy
	live    Provider
	mock    Provider
	metrics *telemetry.Metrics
}

func NewRouter(policy FallbackPolicy, live, mock Provider, metrics *telemetry.Metrics) (*Router, error) {
	switch policy {
	case PolicyLiveOnly:
		if live == nil {
			return nil, fmt.Errorf("payment: policy %s requires a live provider", policy)
		}
	case PolicyMockOnly:
		if mock == nil {
			return nil, fmt.Errorf("payment: policy %s requires a mock provider", policy)
		}
	case PolicyLiveWithMockFallback:
		if live == nil || mock == nil {
			return nil, fmt.Errorf("payment: policy %s requires live and mock providers", policy)
		}
	default:
		return nil, fmt.Errorf("payment: unknown policy %q", policy)
	}
	return &Router{policy: policy, live: live, mock: mock, metrics: metrics}, nil
}

// NewProvider wires the providers the configured environment allows.
func NewProvider(cfg *config.Config, metrics *telemetry.Metrics) (*Router, error) {
	policy := PolicyFor(cfg)

	var live, mock Provider
	if policy != PolicyMockOnly {
		live = NewMyFatoorahClient(MyFatoorahConfig{
			APIKey:        cfg.MyFatoorahAPIKey,
			BaseURL:       cfg.MyFatoorahBaseURL,
			CallbackURL:   cfg.MyFatoorahCallbackURL,
			ErrorURL:      cfg.MyFatoorahErrorURL,
			DefaultRegion: cfg.DefaultCountryCode,
		}, metrics)
	}
	if policy != PolicyLiveOnly {
		mock = NewMockProvider(cfg.MockPaymentBaseURL)
	}

	logger.Info("payment provider configured", "policy", string(policy))
	return NewRouter(policy, live, mock, metrics)
}

func (r *Router) Policy() FallbackPolicy { return r.policy }

func (r *Router) Name() string {
	if r.policy == PolicyMockOnly {
		return r.mock.Name()
	}
	return r.live.Name()
}

func (r *Router) CreatePaymentLink(ctx context.Context, req LinkRequest) (*Link, error) {
	if r.policy == PolicyMockOnly {
		return r.mock.CreatePaymentLink(ctx, req)
	}

	link, err := r.live.CreatePaymentLink(ctx, req)
	if err == nil || r.policy == PolicyLiveOnly {
		return link, err
	}

	logger.Warn("live payment gateway failed, issuing mock link",
		"policy", string(r.policy),
		"provider", r.live.Name(),
		"error", err,
	)
	r.metrics.RecordPaymentFallback(string(r.policy))
	return r.mock.CreatePaymentLink(ctx, req)
}

// VerifyPayment routes mock invoices to the mock provider, when one is configured.
func (r *Router) VerifyPayment(ctx context.Context, invoiceID string) (*Status, error) {
	return r.pick(invoiceID).VerifyPayment(ctx, invoiceID)
}

func (r *Router) VerifyByPaymentID(ctx context.Context, paymentID string) (*Status, error) {
	return r.pick(paymentID).VerifyByPaymentID(ctx, paymentID)
}

func (r *Router) pick(id string) Provider {
	if r.mock != nil && (r.live == nil || IsMockInvoice(id)) {
		return r.mock
	}
	return r.live
}
