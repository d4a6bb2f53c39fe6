package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"courier/contract"
	"courier/domain"
	"courier/errors"
	"courier/repositories"
)

type IMessageService interface {
	Send(senderID, recipientID domain.UserID, content string) (domain.Message, domain.DeliveryReceipt, error)
	History(a, b domain.UserID) ([]domain.Message, error)
	MarkRead(recipientID, senderID domain.UserID) (int, error)
	Conversations(owner domain.UserID) ([]domain.Conversation, error)
	Search(ctx context.Context, owner domain.UserID, terms string, limit int) ([]repositories.SearchHit, error)
}

// ISearchIndex is the slice of the full-text index the service needs.
type ISearchIndex interface {
	Index(msg domain.Message) error
	Search(ctx context.Context, owner domain.UserID, terms string, limit int) ([]repositories.SearchHit, error)
}

// MessageService backs the REST message endpoints. Unlike the live socket
// path, which persists asynchronously after routing, the REST path persists
// and indexes before routing so the caller's 200 means the message is stored.
type MessageService struct {
	log              *slog.Logger
	messages         repositories.IMessageRepository
	users            repositories.IUserRepository
	index            ISearchIndex
	router           contract.DeliveryRouter
	maxContentLength int
}

func NewMessageService(
	log *slog.Logger,
	messages repositories.IMessageRepository,
	users repositories.IUserRepository,
	index ISearchIndex,
	router contract.DeliveryRouter,
	maxContentLength int,
) IMessageService {
	return &MessageService{
		log:              log,
		messages:         messages,
		users:            users,
		index:            index,
		router:           router,
		maxContentLength: maxContentLength,
	}
}

func (s *MessageService) Send(senderID, recipientID domain.UserID, content string) (domain.Message, domain.DeliveryReceipt, error) {
	if senderID == "" || recipientID == "" || content == "" {
		return domain.Message{}, domain.DeliveryReceipt{}, errors.ErrMissingFields
	}
	if len(content) > s.maxContentLength {
		return domain.Message{}, domain.DeliveryReceipt{}, errors.ErrMissingFields
	}
	if _, err := s.users.GetUserByID(string(recipientID)); err != nil {
		return domain.Message{}, domain.DeliveryReceipt{}, err
	}

	msg := domain.Message{
		ID:          uuid.New(),
		SenderID:    senderID,
		RecipientID: recipientID,
		Content:     content,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.messages.Append(msg); err != nil {
		return domain.Message{}, domain.DeliveryReceipt{}, err
	}
	if err := s.index.Index(msg); err != nil {
		// The message is stored; a missing index entry only hurts search.
		s.log.Warn("failed to index message", "message_id", msg.ID, "error", err)
	}
	return msg, s.router.Route(senderID, recipientID, content), nil
}

func (s *MessageService) History(a, b domain.UserID) ([]domain.Message, error) {
	return s.messages.Between(a, b)
}

func (s *MessageService) MarkRead(recipientID, senderID domain.UserID) (int, error) {
	return s.messages.MarkRead(recipientID, senderID)
}

func (s *MessageService) Conversations(owner domain.UserID) ([]domain.Conversation, error) {
	return s.messages.Conversations(owner)
}

func (s *MessageService) Search(ctx context.Context, owner domain.UserID, terms string, limit int) ([]repositories.SearchHit, error) {
	return s.index.Search(ctx, owner, terms, limit)
}
