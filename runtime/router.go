package runtime

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/samber/lo"

	"courier/contract"
	"courier/domain"
	"courier/domain/event"
	"courier/observability"
)

// Router decides live-push versus pending and fans messages out to the
// recipient's connections. It never blocks waiting for an acknowledgement:
// the receipt reflects only whether a live channel existed at route time.
// Read state is the persisted store's concern.
type Router struct {
	log      *slog.Logger
	registry contract.PresenceRegistry
	metrics  *observability.Metrics
	seq      atomic.Uint64
}

func NewRouter(log *slog.Logger, registry contract.PresenceRegistry, metrics *observability.Metrics) *Router {
	return &Router{log: log, registry: registry, metrics: metrics}
}

// Route pushes a message to every live connection of the recipient and
// returns a receipt for the sender. An unknown recipient is indistinguishable
// from an offline one without the store, so both yield pending. A failed push
// to one handle never blocks or fails the pushes to the others.
func (r *Router) Route(senderID, recipientID domain.UserID, content string) domain.DeliveryReceipt {
	deliveryID := r.seq.Add(1)
	evt := event.MessageReceived{
		DeliveryID: deliveryID,
		SenderID:   string(senderID),
		Content:    content,
		CreatedAt:  time.Now().UTC(),
	}

	sinks := r.registry.Lookup(recipientID)
	if len(sinks) == 0 {
		r.countRouted(domain.StatusPending)
		return domain.DeliveryReceipt{DeliveryID: deliveryID, Status: domain.StatusPending}
	}

	for _, sink := range sinks {
		if err := sink.Push(evt); err != nil {
			r.log.Error("failed to push message to connection",
				"recipient_id", recipientID, "delivery_id", deliveryID, "error", err)
		}
	}
	r.countRouted(domain.StatusDelivered)
	return domain.DeliveryReceipt{DeliveryID: deliveryID, Status: domain.StatusDelivered}
}

// RelayTyping fans a typing notice out to the recipient's connections.
// Ephemeral by design: no receipt, no persistence, and silence when the
// recipient is offline.
func (r *Router) RelayTyping(senderID, recipientID domain.UserID, isTyping bool) {
	sinks := r.registry.Lookup(recipientID)
	if len(sinks) == 0 {
		return
	}
	evt := event.TypingNotice{SenderID: string(senderID), IsTyping: isTyping}
	for _, sink := range sinks {
		if err := sink.Push(evt); err != nil {
			r.log.Error("failed to relay typing notice",
				"recipient_id", recipientID, "error", err)
		}
	}
	if r.metrics != nil {
		r.metrics.TypingRelayed.Inc()
	}
}

// BroadcastPresence pushes the full online set to every live connection.
// Callers invoke it only on net online-set changes.
func (r *Router) BroadcastPresence() {
	online := r.registry.OnlineIdentities()
	snapshot := event.PresenceSnapshot{
		Online: lo.Map(online, func(id domain.UserID, _ int) string { return string(id) }),
	}
	for _, sink := range r.registry.Sinks() {
		if err := sink.Push(snapshot); err != nil {
			r.log.Error(fmt.Sprintf("failed to push presence snapshot: %v", err))
		}
	}
	if r.metrics != nil {
		r.metrics.OnlineUsers.Set(float64(len(online)))
	}
}

// NotifyOffline tells every remaining connection that a user's last
// connection has closed.
func (r *Router) NotifyOffline(userID domain.UserID) {
	evt := event.UserOffline{UserID: string(userID)}
	for _, sink := range r.registry.Sinks() {
		if err := sink.Push(evt); err != nil {
			r.log.Error(fmt.Sprintf("failed to push offline notice: %v", err))
		}
	}
}

func (r *Router) countRouted(status domain.DeliveryStatus) {
	if r.metrics != nil {
		r.metrics.RoutedMessages.WithLabelValues(string(status)).Inc()
	}
}
