package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message is the durable record of a direct message between two users.
type Message struct {
	ID          uuid.UUID
	SenderID    UserID
	RecipientID UserID
	Content     string
	Read        bool
	CreatedAt   time.Time
}

// Conversation summarizes one peer relationship for a conversation list:
// the last exchanged message and how many messages the owner has not read.
type Conversation struct {
	PeerID      UserID
	LastMessage Message
	UnreadCount int
}
