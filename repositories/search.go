package repositories

import (
	"context"
	"log/slog"
	"time"

	"github.com/blugelabs/bluge"

	"courier/domain"
)

// SearchHit is one full-text match over a user's message history.
type SearchHit struct {
	MessageID   string
	SenderID    string
	RecipientID string
	Content     string
	CreatedAt   time.Time
}

// MessageIndex maintains a Bluge full-text index over message content.
// Participants are indexed as keyword fields so a search can be scoped to
// conversations the caller takes part in.
type MessageIndex struct {
	writer *bluge.Writer
	log    *slog.Logger
}

func NewMessageIndex(cfg bluge.Config, log *slog.Logger) (*MessageIndex, error) {
	writer, err := bluge.OpenWriter(cfg)
	if err != nil {
		return nil, err
	}
	return &MessageIndex{writer: writer, log: log}, nil
}

func (ix *MessageIndex) Index(msg domain.Message) error {
	doc := bluge.NewDocument(msg.ID.String()).
		AddField(bluge.NewTextField("content", msg.Content).StoreValue()).
		AddField(bluge.NewKeywordField("sender", string(msg.SenderID)).StoreValue()).
		AddField(bluge.NewKeywordField("recipient", string(msg.RecipientID)).StoreValue()).
		AddField(bluge.NewDateTimeField("created_at", msg.CreatedAt)).
		AddField(bluge.NewStoredOnlyField("created_at_raw", []byte(msg.CreatedAt.Format(time.RFC3339Nano))))
	return ix.writer.Update(doc.ID(), doc)
}

// Search matches terms against message content, restricted to messages the
// owner sent or received. Results come back in relevance order.
func (ix *MessageIndex) Search(ctx context.Context, owner domain.UserID, terms string, limit int) ([]SearchHit, error) {
	reader, err := ix.writer.Reader()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := reader.Close(); err != nil {
			ix.log.Error("failed to close index reader", "error", err)
		}
	}()

	participant := bluge.NewBooleanQuery().
		AddShould(bluge.NewTermQuery(string(owner)).SetField("sender")).
		AddShould(bluge.NewTermQuery(string(owner)).SetField("recipient")).
		SetMinShould(1)
	query := bluge.NewBooleanQuery().
		AddMust(bluge.NewMatchQuery(terms).SetField("content")).
		AddMust(participant)

	request := bluge.NewTopNSearch(limit, query)
	iterator, err := reader.Search(ctx, request)
	if err != nil {
		return nil, err
	}

	var hits []SearchHit
	for {
		match, err := iterator.Next()
		if err != nil {
			return nil, err
		}
		if match == nil {
			break
		}

		var hit SearchHit
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			switch field {
			case "_id":
				hit.MessageID = string(value)
			case "content":
				hit.Content = string(value)
			case "sender":
				hit.SenderID = string(value)
			case "recipient":
				hit.RecipientID = string(value)
			case "created_at_raw":
				if at, err := time.Parse(time.RFC3339Nano, string(value)); err == nil {
					hit.CreatedAt = at
				}
			}
			return true
		})
		if err != nil {
			return nil, err
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func (ix *MessageIndex) Close() error {
	return ix.writer.Close()
}
