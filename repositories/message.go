//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"courier/domain"
)

type IMessageRepository interface {
	Append(msg domain.Message) error
	Between(a, b domain.UserID) ([]domain.Message, error)
	MarkRead(recipientID, senderID domain.UserID) (int, error)
	Conversations(owner domain.UserID) ([]domain.Conversation, error)
}

// MessageRepository persists direct messages in BadgerDB.
//
// Message keys are "dm:{low}:{high}:{timestamp_padded}:{uuid}" where low/high
// is the lexicographically sorted user pair, so both directions of a
// conversation share one prefix and sort chronologically; the 19-digit zero
// padding keeps lexicographic and time order identical, and the UUID breaks
// ties between same-nanosecond messages.
//
// Conversation summaries are maintained alongside under "conv:{owner}:{peer}"
// so unread counts and last messages are a prefix scan away instead of a full
// table aggregation.
type MessageRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) MessageRepository {
	return MessageRepository{db: db, log: log}
}

type diskMessage struct {
	ID        string `json:"id"`
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Content   string `json:"content"`
	Read      bool   `json:"read"`
	At        int64  `json:"at"`
}

type diskConversation struct {
	LastMessage diskMessage `json:"last_message"`
	Unread      int         `json:"unread"`
}

// pairPrefix yields the shared key prefix for one conversation, ordering
// the pair so both directions land under the same prefix. Keys stay
// unambiguous because user IDs never contain ':' (see domain.UserID).
func pairPrefix(a, b domain.UserID) string {
	low, high := string(a), string(b)
	if low > high {
		low, high = high, low
	}
	return fmt.Sprintf("dm:%s:%s:", low, high)
}

func messageKey(msg domain.Message) []byte {
	return []byte(fmt.Sprintf("%s%019d:%s",
		pairPrefix(msg.SenderID, msg.RecipientID),
		msg.CreatedAt.UnixNano(),
		msg.ID,
	))
}

func conversationKey(owner, peer domain.UserID) []byte {
	return []byte(fmt.Sprintf("conv:%s:%s", owner, peer))
}

// Append stores the message and refreshes both participants' conversation
// summaries in the same transaction: the recipient's unread count grows, the
// sender's does not.
func (m MessageRepository) Append(msg domain.Message) error {
	record, err := json.Marshal(fromDomain(msg))
	if err != nil {
		return err
	}
	return m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(messageKey(msg), record); err != nil {
			return err
		}
		if err := m.updateConversation(txn, msg.SenderID, msg.RecipientID, msg, 0); err != nil {
			return err
		}
		return m.updateConversation(txn, msg.RecipientID, msg.SenderID, msg, 1)
	})
}

func (m MessageRepository) updateConversation(txn *badger.Txn, owner, peer domain.UserID,
	msg domain.Message, unreadDelta int) error {
	key := conversationKey(owner, peer)

	var conv diskConversation
	item, err := txn.Get(key)
	switch err {
	case nil:
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &conv)
		}); err != nil {
			return err
		}
	case badger.ErrKeyNotFound:
	default:
		return err
	}

	conv.LastMessage = fromDomain(msg)
	conv.Unread += unreadDelta

	data, err := json.Marshal(conv)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

// Between returns the full two-party history in chronological order. The
// padded timestamp in the key makes a forward prefix scan sufficient.
func (m MessageRepository) Between(a, b domain.UserID) ([]domain.Message, error) {
	var records []diskMessage
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := []byte(pairPrefix(a, b))
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var record diskMessage
				if err := json.Unmarshal(val, &record); err != nil {
					return err
				}
				records = append(records, record)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return toDomainAll(records)
}

// MarkRead flips every unread message from sender to recipient and resets
// the recipient's unread counter for that peer. Returns how many messages
// changed state.
func (m MessageRepository) MarkRead(recipientID, senderID domain.UserID) (int, error) {
	marked := 0
	err := m.db.Update(func(txn *badger.Txn) error {
		prefix := []byte(pairPrefix(recipientID, senderID))
		type pending struct {
			key   []byte
			value []byte
		}
		var updates []pending

		it := txn.NewIterator(badger.DefaultIteratorOptions)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := item.KeyCopy(nil)
			err := item.Value(func(val []byte) error {
				var record diskMessage
				if err := json.Unmarshal(val, &record); err != nil {
					return err
				}
				if record.Sender != string(senderID) || record.Recipient != string(recipientID) || record.Read {
					return nil
				}
				record.Read = true
				data, err := json.Marshal(record)
				if err != nil {
					return err
				}
				updates = append(updates, pending{key: key, value: data})
				return nil
			})
			if err != nil {
				it.Close()
				return err
			}
		}
		it.Close()

		for _, update := range updates {
			if err := txn.Set(update.key, update.value); err != nil {
				return err
			}
		}
		marked = len(updates)
		return m.resetUnread(txn, recipientID, senderID)
	})
	if err != nil {
		return 0, err
	}
	return marked, nil
}

func (m MessageRepository) resetUnread(txn *badger.Txn, owner, peer domain.UserID) error {
	key := conversationKey(owner, peer)
	item, err := txn.Get(key)
	if err == badger.ErrKeyNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	var conv diskConversation
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &conv)
	}); err != nil {
		return err
	}
	conv.Unread = 0
	if conv.LastMessage.Sender == string(peer) {
		conv.LastMessage.Read = true
	}
	data, err := json.Marshal(conv)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

// Conversations lists the owner's conversation summaries, most recent first.
func (m MessageRepository) Conversations(owner domain.UserID) ([]domain.Conversation, error) {
	var conversations []domain.Conversation
	prefixStr := fmt.Sprintf("conv:%s:", owner)

	err := m.db.View(func(txn *badger.Txn) error {
		prefix := []byte(prefixStr)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			peer := strings.TrimPrefix(string(item.Key()), prefixStr)
			err := item.Value(func(val []byte) error {
				var conv diskConversation
				if err := json.Unmarshal(val, &conv); err != nil {
					return err
				}
				last, err := toDomain(conv.LastMessage)
				if err != nil {
					return err
				}
				conversations = append(conversations, domain.Conversation{
					PeerID:      domain.UserID(peer),
					LastMessage: last,
					UnreadCount: conv.Unread,
				})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(conversations, func(i, j int) bool {
		return conversations[i].LastMessage.CreatedAt.After(conversations[j].LastMessage.CreatedAt)
	})
	return conversations, nil
}

func fromDomain(msg domain.Message) diskMessage {
	return diskMessage{
		ID:        msg.ID.String(),
		Sender:    string(msg.SenderID),
		Recipient: string(msg.RecipientID),
		Content:   msg.Content,
		Read:      msg.Read,
		At:        msg.CreatedAt.UnixNano(),
	}
}

func toDomain(record diskMessage) (domain.Message, error) {
	parsedID, err := uuid.Parse(record.ID)
	if err != nil {
		return domain.Message{}, err
	}
	return domain.Message{
		ID:          parsedID,
		SenderID:    domain.UserID(record.Sender),
		RecipientID: domain.UserID(record.Recipient),
		Content:     record.Content,
		Read:        record.Read,
		CreatedAt:   time.Unix(0, record.At).UTC(),
	}, nil
}

func toDomainAll(records []diskMessage) ([]domain.Message, error) {
	var firstErr error
	messages := lo.FilterMap(records, func(record diskMessage, _ int) (domain.Message, bool) {
		msg, err := toDomain(record)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return domain.Message{}, false
		}
		return msg, true
	})
	if firstErr != nil {
		return nil, firstErr
	}
	return messages, nil
}
