package ws

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"courier/contract"
	"courier/domain"
	"courier/domain/event"
	"courier/observability"
	"courier/runtime"
	"courier/services"
)

const (
	wsMaxPayloadBytes = 1 << 16
	wsPongWait        = 60 * time.Second
	wsPingInterval    = (wsPongWait * 9) / 10
	wsWriteWait       = 10 * time.Second
)

// Gateway upgrades HTTP requests to live messaging connections and runs one
// session per socket. The read pump is the only goroutine that feeds events
// into the session, so events from one connection stay ordered.
type Gateway struct {
	log      *slog.Logger
	registry contract.PresenceRegistry
	router   contract.DeliveryRouter
	auth     services.IAuthService
	persist  chan<- domain.Message
	metrics  *observability.Metrics
	buffer   int
	upgrader websocket.Upgrader
}

func NewGateway(
	log *slog.Logger,
	registry contract.PresenceRegistry,
	router contract.DeliveryRouter,
	auth services.IAuthService,
	persist chan<- domain.Message,
	metrics *observability.Metrics,
	buffer int,
) *Gateway {
	return &Gateway{
		log:      log,
		registry: registry,
		router:   router,
		auth:     auth,
		persist:  persist,
		metrics:  metrics,
		buffer:   buffer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  8192,
			WriteBufferSize: 8192,
			CheckOrigin: func(*http.Request) bool {
				return true
			},
		},
	}
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	if g.metrics != nil {
		g.metrics.OpenConnections.Inc()
	}

	sink := newConnSink(g.log, g.metrics, g.buffer)
	session := runtime.NewSession(g.log, g.registry, g.router, sink, g.persist)

	go g.writePump(conn, sink)
	g.readPump(conn, session, sink)

	session.Disconnect()
	sink.Close()
	_ = conn.Close()

	if g.metrics != nil {
		g.metrics.OpenConnections.Dec()
	}
}

func (g *Gateway) readPump(conn *websocket.Conn, session *runtime.Session, sink *connSink) {
	conn.SetReadLimit(wsMaxPayloadBytes)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		g.dispatch(session, sink, data)
	}
}

// dispatch decodes one inbound frame and applies it to the session. A frame
// that fails decoding or validation is answered with an error event to the
// originating connection only; nothing reaches the session, so its state is
// untouched. Session-level rejections reach the client the same way from
// inside the session.
func (g *Gateway) dispatch(session *runtime.Session, sink *connSink, data []byte) {
	var env Envelope
	if err := env.UnmarshalFrame(data); err != nil {
		g.refuse(session, sink, "invalid_frame", "frame must be a JSON object with a type")
		return
	}

	switch env.Type {
	case EventIdentify:
		payload, err := DecodePayload[IdentifyPayload](env)
		if err != nil {
			g.refuse(session, sink, "invalid_identity", "userId is required and must not contain ':'")
			return
		}
		g.identify(session, sink, payload)
	case EventSendMessage:
		payload, err := DecodePayload[SendMessagePayload](env)
		if err != nil {
			g.refuse(session, sink, "invalid_message", "senderId, recipientId and content are required")
			return
		}
		if err := session.SendMessage(domain.UserID(payload.SenderID),
			domain.UserID(payload.RecipientID), payload.Content); err != nil {
			g.log.Debug("sendMessage rejected", "connection_id", session.ID(), "error", err)
		}
	case EventTyping:
		payload, err := DecodePayload[TypingPayload](env)
		if err != nil {
			g.refuse(session, sink, "invalid_typing", "senderId and recipientId are required")
			return
		}
		if err := session.Typing(domain.UserID(payload.SenderID),
			domain.UserID(payload.RecipientID), payload.IsTyping); err != nil {
			g.log.Debug("typing rejected", "connection_id", session.ID(), "error", err)
		}
	default:
		g.refuse(session, sink, "unknown_event", "unsupported event type")
	}
}

// identify verifies the claimed identity against the token when one is
// supplied. Tokenless identify is accepted for clients that already
// authenticated over REST and connect from trusted tooling.
func (g *Gateway) identify(session *runtime.Session, sink *connSink, payload IdentifyPayload) {
	if payload.Token != "" {
		user, err := g.auth.ResolveIdentity(payload.Token)
		if err != nil {
			g.refuse(session, sink, "invalid_token", "token did not validate")
			return
		}
		if user.ID != payload.UserID {
			g.refuse(session, sink, "identity_mismatch", "token was issued for another user")
			return
		}
	}
	if err := session.Identify(domain.UserID(payload.UserID)); err != nil {
		g.log.Debug("identify rejected", "connection_id", session.ID(), "error", err)
	}
}

func (g *Gateway) refuse(session *runtime.Session, sink *connSink, code, message string) {
	g.log.Debug("refused inbound frame", "connection_id", session.ID(), "code", code)
	if err := sink.Push(event.ErrorNotice{Code: code, Message: message}); err != nil {
		g.log.Error("failed to push error notice", "connection_id", session.ID(), "error", err)
	}
}

func (g *Gateway) writePump(conn *websocket.Conn, sink *connSink) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case data, ok := <-sink.Out():
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
