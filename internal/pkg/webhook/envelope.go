package webhook

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	EventTypeMessage = "message"

	MessageTypeText     = "text"
	MessageTypeImage    = "image"
	MessageTypeLocation = "location"
)

var validate = validator.New()

// Envelope is the body LINE posts to the webhook. Only the envelope itself is
// validated here; a malformed event is skipped by the gateway on its own.
type Envelope struct {
	Destination string  `json:"destination" validate:"required"`
	Events      []Event `json:"events"`
}

type Event struct {
	Type            string          `json:"type"`
	Mode            string          `json:"mode"`
	Timestamp       int64           `json:"timestamp"`
	WebhookEventID  string          `json:"webhookEventId"`
	ReplyToken      string          `json:"replyToken"`
	Source          Source          `json:"source"`
	Message         *Message        `json:"message"`
	DeliveryContext DeliveryContext `json:"deliveryContext"`
}

type Source struct {
	Type    string `json:"type"`
	UserID  string `json:"userId"`
	GroupID string `json:"groupId"`
	RoomID  string `json:"roomId"`
}

type DeliveryContext struct {
	IsRedelivery bool `json:"isRedelivery"`
}

type Message struct {
	ID              string           `json:"id"`
	Type            string           `json:"type"`
	Text            string           `json:"text"`
	Title           string           `json:"title"`
	Address         string           `json:"address"`
	Latitude        float64          `json:"latitude"`
	Longitude       float64          `json:"longitude"`
	ContentProvider *ContentProvider `json:"contentProvider"`
}

type ContentProvider struct {
	Type               string `json:"type"`
	OriginalContentURL string `json:"originalContentUrl"`
}

// ParseEnvelope decodes and validates a webhook body
func ParseEnvelope(body []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("malformed webhook body: %w", err)
	}
	if err := validate.Struct(&env); err != nil {
		return nil, fmt.Errorf("invalid webhook envelope: %w", err)
	}
	return &env, nil
}

// Supported reports whether the event carries a message the pipeline handles
func (e Event) Supported() bool {
	if e.Type != EventTypeMessage || e.Message == nil {
		return false
	}
	switch e.Message.Type {
	case MessageTypeText, MessageTypeImage, MessageTypeLocation:
		return true
	}
	return false
}

// Valid reports whether a supported event carries enough to be deduplicated
func (e Event) Valid() bool {
	return e.Message != nil && strings.TrimSpace(e.Message.ID) != ""
}

// MatchText is what rules are evaluated against. Images have no text, so only
// catch-all regex rules route them.
func (m *Message) MatchText() string {
	switch m.Type {
	case MessageTypeText:
		return m.Text
	case MessageTypeLocation:
		return strings.TrimSpace(m.Title + " " + m.Address)
	}
	return ""
}
