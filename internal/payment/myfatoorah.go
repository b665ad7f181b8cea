package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"freelancer-bot/internal/logger"
	"freelancer-bot/internal/telemetry"
	"freelancer-bot/utils"

	"github.com/sony/gobreaker"
)

const ProviderMyFatoorah = "myfatoorah"

// MyFatoorahClient issues invoice links through SendPayment and checks them
// through GetPaymentStatus.
type MyFatoorahClient struct {
	apiKey      string
	baseURL     string
	callbackURL string
	errorURL    string
	region      string
	httpClient  *http.Client
	breaker     *gobreaker.CircuitBreaker
	now         func() time.Time
}

type MyFatoorahConfig struct {
	APIKey      string
	BaseURL     string
	CallbackURL string
	ErrorURL    string
	// DefaultRegion reads customer numbers that lack a country code.
	DefaultRegion string
	Timeout       time.Duration
}

func NewMyFatoorahClient(cfg MyFatoorahConfig, metrics *telemetry.Metrics) *MyFatoorahClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 20 * time.Second
	}
	settings := gobreaker.Settings{
		Name:        "myfatoorah",
		MaxRequests: 2,
		Interval:    time.Minute,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
			metrics.RecordCircuitBreakerState(name, to.String())
		},
	}
	return &MyFatoorahClient{
		apiKey:      cfg.APIKey,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		callbackURL: cfg.CallbackURL,
		errorURL:    cfg.ErrorURL,
		region:      cfg.DefaultRegion,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		breaker:     gobreaker.NewCircuitBreaker(settings),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (c *MyFatoorahClient) Name() string { return ProviderMyFatoorah }

type sendPaymentRequest struct {
	CustomerName       string  `json:"CustomerName"`
	NotificationOption string  `json:"NotificationOption"`
	InvoiceValue       float64 `json:"InvoiceValue"`
	DisplayCurrencyIso string  `json:"DisplayCurrencyIso,omitempty"`
	MobileCountryCode  string  `json:"MobileCountryCode,omitempty"`
	CustomerMobile     string  `json:"CustomerMobile,omitempty"`
	CallBackURL        string  `json:"CallBackUrl"`
	ErrorURL           string  `json:"ErrorUrl"`
	Language           string  `json:"Language"`
	CustomerReference  string  `json:"CustomerReference,omitempty"`
	UserDefinedField   string  `json:"UserDefinedField,omitempty"`
	ExpiryDate         string  `json:"ExpiryDate,omitempty"`
}

// myFatoorahTimeLayout is the ISO form the gateway accepts for ExpiryDate.
const myFatoorahTimeLayout = "2006-01-02T15:04:05Z"

type envelope struct {
	IsSuccess        bool            `json:"IsSuccess"`
	Message          string          `json:"Message"`
	ValidationErrors []fieldError    `json:"ValidationErrors"`
	Data             json.RawMessage `json:"Data"`
}

type fieldError struct {
	Name  string `json:"Name"`
	Error string `json:"Error"`
}

type sendPaymentData struct {
	InvoiceID  flexID `json:"InvoiceId"`
	InvoiceURL string `json:"InvoiceURL"`
}

type paymentStatusData struct {
	InvoiceID         flexID  `json:"InvoiceId"`
	InvoiceStatus     string  `json:"InvoiceStatus"`
	InvoiceValue      float64 `json:"InvoiceValue"`
	CustomerReference string  `json:"CustomerReference"`
	UserDefinedField  string  `json:"UserDefinedField"`
}

func (c *MyFatoorahClient) CreatePaymentLink(ctx context.Context, req LinkRequest) (*Link, error) {
	body := sendPaymentRequest{
		CustomerName:       nonEmpty(req.CustomerName, "Client"),
		NotificationOption: "LNK",
		InvoiceValue:       req.Amount,
		DisplayCurrencyIso: req.Currency,
		CallBackURL:        c.callbackURL,
		ErrorURL:           c.errorURL,
		Language:           "ar",
		CustomerReference:  req.Reference,
		UserDefinedField:   req.FreelancerID,
	}
	if !req.ExpiresAt.IsZero() {
		body.ExpiryDate = req.ExpiresAt.UTC().Format(myFatoorahTimeLayout)
	}
	if req.CustomerPhone != "" {
		code, national, err := utils.SplitPhone(req.CustomerPhone, c.region)
		if err != nil {
			logger.Warn("customer mobile not sent to gateway", "error", err)
		} else {
			body.MobileCountryCode = code
			body.CustomerMobile = national
		}
	}

	var data sendPaymentData
	if err := c.call(ctx, "/v2/SendPayment", body, &data); err != nil {
		return nil, err
	}
	if data.InvoiceURL == "" || data.InvoiceID == "" {
		return nil, fmt.Errorf("%w: empty invoice in response", ErrGatewayRejected)
	}

	return &Link{
		InvoiceID: string(data.InvoiceID),
		URL:       data.InvoiceURL,
		Provider:  ProviderMyFatoorah,
		Amount:    req.Amount,
		Currency:  req.Currency,
		CreatedAt: c.now(),
	}, nil
}

func (c *MyFatoorahClient) VerifyPayment(ctx context.Context, invoiceID string) (*Status, error) {
	return c.status(ctx, invoiceID, "InvoiceId")
}

func (c *MyFatoorahClient) VerifyByPaymentID(ctx context.Context, paymentID string) (*Status, error) {
	return c.status(ctx, paymentID, "PaymentId")
}

func (c *MyFatoorahClient) status(ctx context.Context, key, keyType string) (*Status, error) {
	var data paymentStatusData
	err := c.call(ctx, "/v2/GetPaymentStatus", map[string]string{"Key": key, "KeyType": keyType}, &data)
	if err != nil {
		return nil, err
	}
	return &Status{
		InvoiceID:     string(data.InvoiceID),
		InvoiceStatus: data.InvoiceStatus,
		Amount:        data.InvoiceValue,
		Reference:     data.CustomerReference,
		Provider:      ProviderMyFatoorah,
	}, nil
}

func (c *MyFatoorahClient) call(ctx context.Context, path string, in, out interface{}) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("payment: marshal request: %w", err)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.post(ctx, path, payload)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: circuit open", ErrGatewayUnavailable)
	}
	if err != nil {
		return err
	}

	env := result.(*envelope)
	if !env.IsSuccess {
		if strings.Contains(strings.ToLower(env.Message), "not found") {
			return ErrPaymentNotFound
		}
		return fmt.Errorf("%w: %s%s", ErrGatewayRejected, env.Message, formatFieldErrors(env.ValidationErrors))
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("payment: decode %s data: %w", path, err)
	}
	return nil
}

// post returns transport and 5xx failures as errors so the breaker counts
// them; gateway-level rejections come back inside the envelope.
func (c *MyFatoorahClient) post(ctx context.Context, path string, payload []byte) (*envelope, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("payment: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrGatewayUnavailable, err)
	}
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: status %d", ErrGatewayUnavailable, resp.StatusCode)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: status %d: undecodable body", ErrGatewayRejected, resp.StatusCode)
	}
	return &env, nil
}

func formatFieldErrors(errs []fieldError) string {
	if len(errs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, e.Name+": "+e.Error)
	}
	return " (" + strings.Join(parts, "; ") + ")"
}

func nonEmpty(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
