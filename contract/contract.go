package contract

import (
	"context"
	"reflect"

	"courier/domain"
	"courier/domain/event"
)

// EventSink is one live connection's outbound channel. Push must never
// block: implementations buffer and drop on overflow rather than stall the
// event-processing path.
type EventSink interface {
	Push(e event.Outbound) error
}

// PresenceRegistry tracks which users currently hold live connections.
// Pure bookkeeping: it performs no I/O of its own.
type PresenceRegistry interface {
	Register(userID domain.UserID, connID domain.ConnectionID, sink EventSink) (cameOnline bool)
	Deregister(connID domain.ConnectionID) (userID domain.UserID, wentOffline bool)
	Lookup(userID domain.UserID) []EventSink
	OnlineIdentities() []domain.UserID
	Sinks() []EventSink
}

// DeliveryRouter decides live-push versus pending and fans events out to the
// right connections.
type DeliveryRouter interface {
	Route(senderID, recipientID domain.UserID, content string) domain.DeliveryReceipt
	RelayTyping(senderID, recipientID domain.UserID, isTyping bool)
	BroadcastPresence()
	NotifyOffline(userID domain.UserID)
}

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself: the supervisor recovers panics and restarts.
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker,
// used for logging and supervision without forcing a naming method on the
// Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}
