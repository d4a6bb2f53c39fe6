package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/lo"

	"courier/domain"
	apperrors "courier/errors"
	"courier/repositories"
	"courier/services"
)

const defaultSearchLimit = 20

// OnlineChecker is the slice of the presence registry the user list needs.
type OnlineChecker interface {
	IsOnline(userID domain.UserID) bool
}

// API exposes the REST collaborators around the live socket: accounts,
// history, conversations and search. The socket itself is mounted at /ws.
type API struct {
	log      *slog.Logger
	auth     services.IAuthService
	users    repositories.IUserRepository
	messages services.IMessageService
	presence OnlineChecker
	gateway  http.Handler
	limiter  *RateLimiter
	registry *prometheus.Registry
}

func NewAPI(
	log *slog.Logger,
	auth services.IAuthService,
	users repositories.IUserRepository,
	messages services.IMessageService,
	presence OnlineChecker,
	gateway http.Handler,
	limiter *RateLimiter,
	registry *prometheus.Registry,
) *API {
	return &API{
		log:      log,
		auth:     auth,
		users:    users,
		messages: messages,
		presence: presence,
		gateway:  gateway,
		limiter:  limiter,
		registry: registry,
	}
}

func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", a.handleHealth)
	if a.registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/auth", func(r chi.Router) {
		r.Use(a.limiter.Middleware())
		r.Post("/register", a.handleRegister)
		r.Post("/login", a.handleLogin)
		r.With(BearerAuth(a.auth)).Get("/verify", a.handleVerify)
	})

	r.Route("/api/users", func(r chi.Router) {
		r.Use(BearerAuth(a.auth))
		r.Get("/", a.handleListUsers)
		r.Get("/profile", a.handleGetProfile)
		r.Put("/profile", a.handleUpdateProfile)
	})

	r.Route("/api/messages", func(r chi.Router) {
		r.Use(BearerAuth(a.auth))
		r.Post("/", a.handleSendMessage)
		r.Get("/conversations", a.handleConversations)
		r.Get("/search", a.handleSearch)
		r.Put("/read/{senderID}", a.handleMarkRead)
		r.Get("/{userID}", a.handleHistory)
	})

	r.Handle("/ws", a.gateway)
	return r
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	a.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type credentialsRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token string   `json:"token"`
	User  userView `json:"user"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		a.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	token, user, err := a.auth.Register(body.Username, body.Email, body.Password)
	switch {
	case err == nil:
		a.writeJSON(w, http.StatusCreated, sessionResponse{Token: string(token), User: toUserView(user)})
	case errors.Is(err, apperrors.ErrUserAlreadyExists):
		a.writeError(w, http.StatusConflict, "email already registered")
	case errors.Is(err, apperrors.ErrInvalidPassword):
		a.writeError(w, http.StatusBadRequest, "invalid registration details")
	default:
		a.serverError(w, "register", err)
	}
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		a.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	token, user, err := a.auth.Login(body.Email, body.Password)
	switch {
	case err == nil:
		a.writeJSON(w, http.StatusOK, sessionResponse{Token: string(token), User: toUserView(user)})
	case errors.Is(err, apperrors.ErrInvalidCredentials):
		a.writeError(w, http.StatusUnauthorized, "invalid credentials")
	default:
		a.serverError(w, "login", err)
	}
}

func (a *API) handleVerify(w http.ResponseWriter, r *http.Request) {
	user, _ := CurrentUser(r.Context())
	a.writeJSON(w, http.StatusOK, toUserView(user))
}

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	caller, _ := CurrentUser(r.Context())
	users, err := a.users.ListUsers(caller.ID)
	if err != nil {
		a.serverError(w, "list users", err)
		return
	}
	a.writeJSON(w, http.StatusOK, lo.Map(users, func(u repositories.User, _ int) userView {
		view := toUserView(u)
		view.Online = a.presence.IsOnline(domain.UserID(u.ID))
		return view
	}))
}

func (a *API) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	user, _ := CurrentUser(r.Context())
	a.writeJSON(w, http.StatusOK, toUserView(user))
}

type profileRequest struct {
	Username *string `json:"username,omitempty"`
	Bio      *string `json:"bio,omitempty"`
}

func (a *API) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	caller, _ := CurrentUser(r.Context())

	var body profileRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		a.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	updated, err := a.users.UpdateProfile(caller.ID, body.Username, body.Bio)
	if err != nil {
		a.serverError(w, "update profile", err)
		return
	}
	a.writeJSON(w, http.StatusOK, toUserView(updated))
}

type sendMessageRequest struct {
	RecipientID string `json:"recipientId"`
	Content     string `json:"content"`
}

type sendMessageResponse struct {
	Message messageView `json:"message"`
	Receipt receiptView `json:"receipt"`
}

func (a *API) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	caller, _ := CurrentUser(r.Context())

	var body sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		a.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	msg, receipt, err := a.messages.Send(domain.UserID(caller.ID),
		domain.UserID(body.RecipientID), body.Content)
	switch {
	case err == nil:
		a.writeJSON(w, http.StatusCreated, sendMessageResponse{
			Message: toMessageView(msg),
			Receipt: receiptView{DeliveryID: receipt.DeliveryID, Status: string(receipt.Status)},
		})
	case errors.Is(err, apperrors.ErrMissingFields):
		a.writeError(w, http.StatusBadRequest, "recipientId and content are required")
	case errors.Is(err, apperrors.ErrUserNotFound):
		a.writeError(w, http.StatusNotFound, "recipient does not exist")
	default:
		a.serverError(w, "send message", err)
	}
}

func (a *API) handleHistory(w http.ResponseWriter, r *http.Request) {
	caller, _ := CurrentUser(r.Context())
	peer := chi.URLParam(r, "userID")

	history, err := a.messages.History(domain.UserID(caller.ID), domain.UserID(peer))
	if err != nil {
		a.serverError(w, "history", err)
		return
	}
	a.writeJSON(w, http.StatusOK, lo.Map(history, func(m domain.Message, _ int) messageView {
		return toMessageView(m)
	}))
}

func (a *API) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	caller, _ := CurrentUser(r.Context())
	sender := chi.URLParam(r, "senderID")

	marked, err := a.messages.MarkRead(domain.UserID(caller.ID), domain.UserID(sender))
	if err != nil {
		a.serverError(w, "mark read", err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]int{"marked": marked})
}

func (a *API) handleConversations(w http.ResponseWriter, r *http.Request) {
	caller, _ := CurrentUser(r.Context())

	conversations, err := a.messages.Conversations(domain.UserID(caller.ID))
	if err != nil {
		a.serverError(w, "conversations", err)
		return
	}
	a.writeJSON(w, http.StatusOK, lo.Map(conversations, func(c domain.Conversation, _ int) conversationView {
		return conversationView{
			PeerID:      string(c.PeerID),
			LastMessage: toMessageView(c.LastMessage),
			UnreadCount: c.UnreadCount,
		}
	}))
}

func (a *API) handleSearch(w http.ResponseWriter, r *http.Request) {
	caller, _ := CurrentUser(r.Context())

	terms := r.URL.Query().Get("q")
	if terms == "" {
		a.writeError(w, http.StatusBadRequest, "query parameter q is required")
		return
	}
	limit := defaultSearchLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			a.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	hits, err := a.messages.Search(r.Context(), domain.UserID(caller.ID), terms, limit)
	if err != nil {
		a.serverError(w, "search", err)
		return
	}
	a.writeJSON(w, http.StatusOK, lo.Map(hits, func(h repositories.SearchHit, _ int) searchHitView {
		return searchHitView{
			MessageID:   h.MessageID,
			SenderID:    h.SenderID,
			RecipientID: h.RecipientID,
			Content:     h.Content,
			CreatedAt:   h.CreatedAt,
		}
	}))
}

type userView struct {
	ID       string    `json:"id"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
	Bio      string    `json:"bio,omitempty"`
	Online   bool      `json:"online"`
	LastSeen time.Time `json:"lastSeen"`
}

func toUserView(u repositories.User) userView {
	return userView{
		ID:       u.ID,
		Username: u.Username,
		Email:    u.Email,
		Bio:      u.Bio,
		LastSeen: u.LastSeen,
	}
}

type messageView struct {
	ID          string    `json:"id"`
	SenderID    string    `json:"senderId"`
	RecipientID string    `json:"recipientId"`
	Content     string    `json:"content"`
	Read        bool      `json:"read"`
	CreatedAt   time.Time `json:"createdAt"`
}

func toMessageView(m domain.Message) messageView {
	return messageView{
		ID:          m.ID.String(),
		SenderID:    string(m.SenderID),
		RecipientID: string(m.RecipientID),
		Content:     m.Content,
		Read:        m.Read,
		CreatedAt:   m.CreatedAt,
	}
}

type receiptView struct {
	DeliveryID uint64 `json:"deliveryId"`
	Status     string `json:"status"`
}

type conversationView struct {
	PeerID      string      `json:"peerId"`
	LastMessage messageView `json:"lastMessage"`
	UnreadCount int         `json:"unreadCount"`
}

type searchHitView struct {
	MessageID   string    `json:"messageId"`
	SenderID    string    `json:"senderId"`
	RecipientID string    `json:"recipientId"`
	Content     string    `json:"content"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (a *API) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		a.log.Error("failed to encode response", "error", err)
	}
}

func (a *API) writeError(w http.ResponseWriter, status int, message string) {
	a.writeJSON(w, status, map[string]string{"error": message})
}

func (a *API) serverError(w http.ResponseWriter, operation string, err error) {
	a.log.Error("request failed", "operation", operation, "error", err)
	a.writeError(w, http.StatusInternalServerError, "internal error")
}
