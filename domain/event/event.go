// Package event defines the outbound events pushed to live connections.
// These are transient wire values: constructed, routed, and discarded within
// a single operation. The persisted message record is a separate concern.
package event

import "time"

// Outbound is any event that can be pushed to a connection sink. EventType
// returns the wire name used as the envelope type on the socket.
type Outbound interface {
	EventType() string
}

// MessageReceived is the live representation of a message pushed to every
// active connection of the recipient.
type MessageReceived struct {
	DeliveryID uint64    `json:"deliveryId"`
	SenderID   string    `json:"senderId"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"createdAt"`
}

func (MessageReceived) EventType() string { return "messageReceived" }

// DeliveryReceipt acknowledges a send to the originating connection only.
type DeliveryReceipt struct {
	DeliveryID uint64 `json:"deliveryId"`
	Status     string `json:"status"`
}

func (DeliveryReceipt) EventType() string { return "deliveryReceipt" }

// TypingNotice is ephemeral: no persistence, no delivery guarantee.
type TypingNotice struct {
	SenderID string `json:"senderId"`
	IsTyping bool   `json:"isTyping"`
}

func (TypingNotice) EventType() string { return "typingNotice" }

// PresenceSnapshot carries the full set of currently online users. It is a
// snapshot, not a diff: the online set is small relative to message traffic.
type PresenceSnapshot struct {
	Online []string `json:"online"`
}

func (PresenceSnapshot) EventType() string { return "presenceSnapshot" }

// UserOffline is pushed when an identity's last connection closes.
type UserOffline struct {
	UserID string `json:"userId"`
}

func (UserOffline) EventType() string { return "userOffline" }

// ErrorNotice signals a rejected payload to the originating connection.
type ErrorNotice struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (ErrorNotice) EventType() string { return "error" }
