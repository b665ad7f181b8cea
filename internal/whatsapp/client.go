package whatsapp

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
	"unicode/utf8"

	"freelancer-bot/internal/config"
	"freelancer-bot/internal/logger"

	"github.com/sony/gobreaker"
)

var (
	ErrSendFailed  = errors.New("whatsapp: send failed")
	ErrUnavailable = errors.New("whatsapp: circuit open")
)

const (
	maxButtons        = 3
	maxButtonTitleLen = 20
	maxBodyLen        = 1024
)

// Button is one reply button of an interactive message.
type Button struct {
	ID    string
	Title string
}

// Client talks to the WhatsApp Cloud API messages endpoint.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
}

func NewClient(cfg *config.Config) *Client {
	baseURL := fmt.Sprintf("%s/%s/%s",
		strings.TrimRight(cfg.WhatsAppAPIURL, "/"), cfg.WhatsAppAPIVersion, cfg.WhatsAppPhoneNumberID)
	return newClient(cfg.WhatsAppToken, baseURL, &http.Client{Timeout: 15 * time.Second})
}

func newClient(token, baseURL string, httpClient *http.Client) *Client {
	settings := gobreaker.Settings{
		Name:        "whatsapp-api",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	}
	return &Client{
		token:      token,
		baseURL:    baseURL,
		httpClient: httpClient,
		breaker:    gobreaker.NewCircuitBreaker(settings),
	}
}

type textPayload struct {
	MessagingProduct string `json:"messaging_product"`
	RecipientType    string `json:"recipient_type"`
	To               string `json:"to"`
	Type             string `json:"type"`
	Text             struct {
		PreviewURL bool   `json:"preview_url"`
		Body       string `json:"body"`
	} `json:"text"`
}

type interactivePayload struct {
	MessagingProduct string      `json:"messaging_product"`
	RecipientType    string      `json:"recipient_type"`
	To               string      `json:"to"`
	Type             string      `json:"type"`
	Interactive      interactive `json:"interactive"`
}

type interactive struct {
	Type string `json:"type"`
	Body struct {
		Text string `json:"text"`
	} `json:"body"`
	Action struct {
		Buttons []replyButton `json:"buttons"`
	} `json:"action"`
}

type replyButton struct {
	Type  string `json:"type"`
	Reply struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	} `json:"reply"`
}

type statusPayload struct {
	MessagingProduct string           `json:"messaging_product"`
	Status           string           `json:"status"`
	MessageID        string           `json:"message_id"`
	TypingIndicator  *typingIndicator `json:"typing_indicator,omitempty"`
}

type typingIndicator struct {
	Type string `json:"type"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// SendMessage sends a plain text message.
func (c *Client) SendMessage(ctx context.Context, to, text string) error {
	p := textPayload{MessagingProduct: "whatsapp", RecipientType: "individual", To: to, Type: "text"}
	p.Text.Body = text
	p.Text.PreviewURL = strings.Contains(text, "http")
	return c.post(ctx, p)
}

// SendInteractiveButtons sends body with up to three reply buttons.
func (c *Client) SendInteractiveButtons(ctx context.Context, to, body string, buttons []Button) error {
	if len(buttons) == 0 {
		return c.SendMessage(ctx, to, body)
	}
	if len(buttons) > maxButtons {
		buttons = buttons[:maxButtons]
	}

	p := interactivePayload{MessagingProduct: "whatsapp", RecipientType: "individual", To: to, Type: "interactive"}
	p.Interactive.Type = "button"
	p.Interactive.Body.Text = truncate(body, maxBodyLen)
	for _, b := range buttons {
		rb := replyButton{Type: "reply"}
		rb.Reply.ID = b.ID
		rb.Reply.Title = truncate(b.Title, maxButtonTitleLen)
		p.Interactive.Action.Buttons = append(p.Interactive.Action.Buttons, rb)
	}
	return c.post(ctx, p)
}

// MarkAsRead sends a read receipt for an inbound message.
func (c *Client) MarkAsRead(ctx context.Context, messageID string) error {
	return c.post(ctx, statusPayload{MessagingProduct: "whatsapp", Status: "read", MessageID: messageID})
}

// SendTypingIndicator marks messageID read and shows the typing bubble until the next reply.
func (c *Client) SendTypingIndicator(ctx context.Context, messageID string) error {
	return c.post(ctx, statusPayload{
		MessagingProduct: "whatsapp",
		Status:           "read",
		MessageID:        messageID,
		TypingIndicator:  &typingIndicator{Type: "text"},
	})
}

// post counts only transport failures, 429 and 5xx against the breaker.
// Other 4xx responses concern one message (a bad recipient, an expired
// window) and are returned without tripping sends to everyone else.
func (c *Client) post(ctx context.Context, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("whatsapp: marshal payload: %w", err)
	}

	res, err := c.breaker.Execute(func() (interface{}, error) {
		return c.do(ctx, body)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrUnavailable
	}
	if err != nil {
		return err
	}
	if rejected, ok := res.(error); ok {
		return rejected
	}
	return nil
}

// do returns the API's rejection of this message as a value and failures of
// the service itself as the error.
func (c *Client) do(ctx context.Context, body []byte) (interface{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("whatsapp: create request: %w", err), nil
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, nil
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var sendErr error
	var apiErr apiError
	if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error.Message != "" {
		sendErr = fmt.Errorf("%w: status %d code %d: %s", ErrSendFailed, resp.StatusCode, apiErr.Error.Code, apiErr.Error.Message)
	} else {
		sendErr = fmt.Errorf("%w: status %d: %s", ErrSendFailed, resp.StatusCode, string(raw))
	}
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, sendErr
	}
	return sendErr, nil
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
