package runtime

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"courier/contract"
	"courier/domain"
	"courier/domain/event"
	apperrors "courier/errors"
)

// SessionState is the lifecycle of one connection: the socket opens with an
// unknown identity, gains one through identify, and ends closed. Illegal
// events are rejected or ignored depending on the state, never acted on.
type SessionState int

const (
	StatePending SessionState = iota
	StateAuthenticated
	StateClosed
)

// Session mediates between one wire connection and the presence registry and
// delivery router. Wire events arrive in order from the connection's read
// loop; the mutex makes disconnect safe even when it races a late event.
type Session struct {
	log      *slog.Logger
	registry contract.PresenceRegistry
	router   contract.DeliveryRouter
	sink     contract.EventSink
	persist  chan<- domain.Message

	mu     sync.Mutex
	id     domain.ConnectionID
	state  SessionState
	userID domain.UserID
}

func NewSession(log *slog.Logger, registry contract.PresenceRegistry,
	router contract.DeliveryRouter, sink contract.EventSink,
	persist chan<- domain.Message) *Session {
	return &Session{
		log:      log,
		registry: registry,
		router:   router,
		sink:     sink,
		persist:  persist,
		id:       domain.ConnectionID(uuid.NewString()),
		state:    StatePending,
	}
}

func (s *Session) ID() domain.ConnectionID {
	return s.id
}

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) UserID() domain.UserID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// Identify attaches a trusted identity to the session and registers its
// connection with the presence registry. The identity has already been
// resolved by the auth layer; the session does not re-verify tokens. A
// presence snapshot reaches every connection only when the user actually
// came online; extra tabs of an already-online user receive the current
// snapshot directly instead of triggering a redundant broadcast.
func (s *Session) Identify(userID domain.UserID) error {
	s.mu.Lock()
	switch s.state {
	case StateClosed:
		s.mu.Unlock()
		return nil
	case StateAuthenticated:
		already := s.userID
		s.mu.Unlock()
		if already == userID {
			return nil
		}
		s.reject("already_identified", "connection already carries an identity")
		return apperrors.ErrIdentityMismatch
	}

	if userID == "" {
		s.mu.Unlock()
		s.reject("invalid_identity", "identity must not be empty")
		return apperrors.ErrEmptyIdentity
	}

	cameOnline := s.registry.Register(userID, s.id, s.sink)
	s.state = StateAuthenticated
	s.userID = userID
	s.mu.Unlock()

	if cameOnline {
		s.router.BroadcastPresence()
	} else {
		s.pushSnapshot()
	}
	s.log.Debug("session authenticated", "user_id", userID, "connection_id", s.id)
	return nil
}

// SendMessage routes a message and acknowledges the sender with a receipt.
// The persisted record is handed off to the store asynchronously so the
// online/offline decision never waits on it.
func (s *Session) SendMessage(senderID, recipientID domain.UserID, content string) error {
	s.mu.Lock()
	state, identity := s.state, s.userID
	s.mu.Unlock()

	switch state {
	case StateClosed:
		return nil
	case StatePending:
		s.reject("not_authenticated", "identify before sending messages")
		return apperrors.ErrNotAuthenticated
	}

	if senderID == "" || recipientID == "" || content == "" {
		s.reject("invalid_message", "senderId, recipientId and content are required")
		return apperrors.ErrMissingFields
	}
	if senderID != identity {
		s.reject("sender_mismatch", "senderId must match the authenticated identity")
		return apperrors.ErrIdentityMismatch
	}

	receipt := s.router.Route(senderID, recipientID, content)
	if err := s.sink.Push(event.DeliveryReceipt{
		DeliveryID: receipt.DeliveryID,
		Status:     string(receipt.Status),
	}); err != nil {
		s.log.Error("failed to push delivery receipt", "user_id", senderID, "error", err)
	}

	record := domain.Message{
		ID:          uuid.New(),
		SenderID:    senderID,
		RecipientID: recipientID,
		Content:     content,
		CreatedAt:   time.Now().UTC(),
	}
	select {
	case s.persist <- record:
	default:
		s.log.Warn("persist queue full, dropping message record", "message_id", record.ID)
	}
	return nil
}

// Typing relays an ephemeral typing signal. Rejected before identify, a
// silent no-op after close.
func (s *Session) Typing(senderID, recipientID domain.UserID, isTyping bool) error {
	s.mu.Lock()
	state, identity := s.state, s.userID
	s.mu.Unlock()

	switch state {
	case StateClosed:
		return nil
	case StatePending:
		s.reject("not_authenticated", "identify before signalling typing")
		return apperrors.ErrNotAuthenticated
	}

	if senderID != identity || recipientID == "" {
		s.reject("invalid_typing", "senderId must match the authenticated identity")
		return apperrors.ErrMissingFields
	}

	s.router.RelayTyping(senderID, recipientID, isTyping)
	return nil
}

// Disconnect is unconditional and immediate: it deregisters even when other
// events for the identity are in flight, and in-flight sends are not rolled
// back. Safe to call more than once.
func (s *Session) Disconnect() {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	wasAuthenticated := s.state == StateAuthenticated
	s.state = StateClosed
	s.mu.Unlock()

	if !wasAuthenticated {
		return
	}

	userID, wentOffline := s.registry.Deregister(s.id)
	if wentOffline {
		s.router.BroadcastPresence()
		s.router.NotifyOffline(userID)
	}
	s.log.Debug("session closed", "user_id", userID, "connection_id", s.id)
}

func (s *Session) pushSnapshot() {
	online := s.registry.OnlineIdentities()
	snapshot := event.PresenceSnapshot{Online: make([]string, 0, len(online))}
	for _, id := range online {
		snapshot.Online = append(snapshot.Online, string(id))
	}
	if err := s.sink.Push(snapshot); err != nil {
		s.log.Error("failed to push presence snapshot", "connection_id", s.id, "error", err)
	}
}

func (s *Session) reject(code, message string) {
	if err := s.sink.Push(event.ErrorNotice{Code: code, Message: message}); err != nil {
		s.log.Error("failed to push error notice", "connection_id", s.id, "error", err)
	}
}
