package workers

import (
	"context"
	"log/slog"

	"courier/domain"
)

// MessageAppender is the slice of the message store the worker needs.
type MessageAppender interface {
	Append(msg domain.Message) error
}

// MessageIndexer feeds the full-text index. Optional.
type MessageIndexer interface {
	Index(msg domain.Message) error
}

// PersistWorker drains routed messages into the durable store and the search
// index. Persistence is asynchronous on purpose: the router's online/offline
// decision never waits on the store, and a slow disk only delays history, not
// delivery.
type PersistWorker struct {
	log      *slog.Logger
	messages <-chan domain.Message
	store    MessageAppender
	index    MessageIndexer
}

func NewPersistWorker(log *slog.Logger, messages <-chan domain.Message,
	store MessageAppender, index MessageIndexer) *PersistWorker {
	return &PersistWorker{log: log, messages: messages, store: store, index: index}
}

func (w *PersistWorker) Run(ctx context.Context) error {
	for {
		select {
		case msg := <-w.messages:
			w.persist(msg)
		case <-ctx.Done():
			w.drain()
			return nil
		}
	}
}

func (w *PersistWorker) persist(msg domain.Message) {
	if err := w.store.Append(msg); err != nil {
		w.log.Error("failed to persist message",
			"message_id", msg.ID, "sender_id", msg.SenderID, "error", err)
		return
	}
	if w.index == nil {
		return
	}
	if err := w.index.Index(msg); err != nil {
		w.log.Error("failed to index message", "message_id", msg.ID, "error", err)
	}
}

// drain flushes whatever is still buffered at shutdown so accepted messages
// are not lost with the process.
func (w *PersistWorker) drain() {
	for {
		select {
		case msg := <-w.messages:
			w.persist(msg)
		default:
			return
		}
	}
}
