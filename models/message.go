package models

import "time"

const (
	MessageTypeText        = "text"
	MessageTypeInteractive = "interactive"
	MessageTypeButton      = "button"
)

// InboundMessage is a single message extracted from a webhook delivery.
type InboundMessage struct {
	ID          string    `json:"id"`
	From        string    `json:"from"`
	Name        string    `json:"name,omitempty"`
	Type        string    `json:"type"`
	Text        string    `json:"text,omitempty"`
	ButtonID    string    `json:"button_id,omitempty"`
	ButtonTitle string    `json:"button_title,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// IsButtonReply reports whether the message is a click on an interactive button.
func (m InboundMessage) IsButtonReply() bool {
	return m.ButtonID != ""
}

// IsText reports whether the message carries typed text.
func (m InboundMessage) IsText() bool {
	return m.Type == MessageTypeText && m.Text != ""
}
