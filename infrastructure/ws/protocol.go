package ws

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"courier/domain/event"
)

// Inbound event names accepted on the socket.
const (
	EventIdentify    = "identify"
	EventSendMessage = "sendMessage"
	EventTyping      = "typing"
)

// Envelope is the wire framing in both directions: a type tag plus a
// type-specific JSON payload.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// User identifiers on the wire exclude ':' (0x3A), which storage keys
// reserve as their separator.
type IdentifyPayload struct {
	UserID string `json:"userId" validate:"required,excludesall=:"`
	Token  string `json:"token,omitempty"`
}

type SendMessagePayload struct {
	SenderID    string `json:"senderId" validate:"required,excludesall=:"`
	RecipientID string `json:"recipientId" validate:"required,excludesall=:"`
	Content     string `json:"content" validate:"required"`
}

type TypingPayload struct {
	SenderID    string `json:"senderId" validate:"required,excludesall=:"`
	RecipientID string `json:"recipientId" validate:"required,excludesall=:"`
	IsTyping    bool   `json:"isTyping"`
}

var validate = validator.New()

// UnmarshalFrame parses a raw inbound frame, requiring a type tag.
func (e *Envelope) UnmarshalFrame(data []byte) error {
	if err := json.Unmarshal(data, e); err != nil {
		return err
	}
	if e.Type == "" {
		return fmt.Errorf("frame is missing a type")
	}
	return nil
}

// DecodePayload unmarshals and validates an envelope payload in one step.
func DecodePayload[T any](env Envelope) (T, error) {
	var payload T
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return payload, fmt.Errorf("malformed %s payload: %w", env.Type, err)
	}
	if err := validate.Struct(&payload); err != nil {
		return payload, fmt.Errorf("invalid %s payload: %w", env.Type, err)
	}
	return payload, nil
}

// Encode wraps an outbound event in an envelope carrying its wire name.
func Encode(e event.Outbound) ([]byte, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: e.EventType(), Payload: payload})
}
