package whatsapp

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"freelancer-bot/models"
)

const SignatureHeader = "X-Hub-Signature-256"

// WebhookPayload is the envelope Meta posts for message and status events.
type WebhookPayload struct {
	Object string  `json:"object"`
	Entry  []entry `json:"entry"`
}

type entry struct {
	ID      string   `json:"id"`
	Changes []change `json:"changes"`
}

type change struct {
	Field string      `json:"field"`
	Value changeValue `json:"value"`
}

type changeValue struct {
	MessagingProduct string            `json:"messaging_product"`
	Contacts         []contact         `json:"contacts"`
	Messages         []incomingMessage `json:"messages"`
	Statuses         []json.RawMessage `json:"statuses"`
}

type contact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

type incomingMessage struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text,omitempty"`
	Interactive *struct {
		Type        string `json:"type"`
		ButtonReply *struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"button_reply,omitempty"`
		ListReply *struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"list_reply,omitempty"`
	} `json:"interactive,omitempty"`
	Button *struct {
		Payload string `json:"payload"`
		Text    string `json:"text"`
	} `json:"button,omitempty"`
}

// ParsePayload decodes a raw webhook body.
func ParsePayload(body []byte) (*WebhookPayload, error) {
	var p WebhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("whatsapp: decode webhook: %w", err)
	}
	return &p, nil
}

// ExtractMessages flattens every inbound message in the payload. Status
// updates produce nothing.
func ExtractMessages(p *WebhookPayload) []models.InboundMessage {
	if p == nil {
		return nil
	}

	var out []models.InboundMessage
	for _, e := range p.Entry {
		for _, ch := range e.Changes {
			if ch.Field != "" && ch.Field != "messages" {
				continue
			}
			names := make(map[string]string, len(ch.Value.Contacts))
			for _, c := range ch.Value.Contacts {
				names[c.WaID] = c.Profile.Name
			}
			for _, m := range ch.Value.Messages {
				out = append(out, convert(m, names[m.From]))
			}
		}
	}
	return out
}

func convert(m incomingMessage, name string) models.InboundMessage {
	msg := models.InboundMessage{
		ID:        m.ID,
		From:      m.From,
		Name:      name,
		Type:      m.Type,
		Timestamp: parseTimestamp(m.Timestamp),
	}

	switch m.Type {
	case models.MessageTypeText:
		if m.Text != nil {
			msg.Text = strings.TrimSpace(m.Text.Body)
		}
	case models.MessageTypeInteractive:
		if m.Interactive == nil {
			break
		}
		if r := m.Interactive.ButtonReply; r != nil {
			msg.ButtonID, msg.ButtonTitle = r.ID, r.Title
		} else if r := m.Interactive.ListReply; r != nil {
			msg.ButtonID, msg.ButtonTitle = r.ID, r.Title
		}
		msg.Text = msg.ButtonTitle
	case models.MessageTypeButton:
		if m.Button != nil {
			msg.ButtonID, msg.ButtonTitle = m.Button.Payload, m.Button.Text
			msg.Text = m.Button.Text
		}
	}
	return msg
}

func parseTimestamp(ts string) time.Time {
	sec, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return time.Now().UTC()
	}
	return time.Unix(sec, 0).UTC()
}

// VerifyWebhook answers the subscription handshake. It returns the
// challenge to echo and whether the token matched.
func VerifyWebhook(verifyToken, mode, token, challenge string) (string, bool) {
	if mode != "subscribe" || verifyToken == "" {
		return "", false
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(verifyToken)) != 1 {
		return "", false
	}
	return challenge, true
}

// ValidSignature checks the X-Hub-Signature-256 header against the app secret.
func ValidSignature(appSecret string, body []byte, header string) bool {
	sig := strings.TrimPrefix(header, "sha256=")
	if sig == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(sig), []byte(expected))
}
