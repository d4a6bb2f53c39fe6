package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"courier/domain"
	apperrors "courier/errors"
	"courier/repositories"
	"courier/services"
)

type stubAuthService struct {
	registerErr error
	loginErr    error
	resolveErr  error
	user        repositories.User
}

func (s *stubAuthService) Register(username, email, _ string) (services.Token, repositories.User, error) {
	if s.registerErr != nil {
		return "", repositories.User{}, s.registerErr
	}
	return "fresh-token", repositories.User{ID: "new-id", Username: username, Email: email}, nil
}

func (s *stubAuthService) Login(email, _ string) (services.Token, repositories.User, error) {
	if s.loginErr != nil {
		return "", repositories.User{}, s.loginErr
	}
	return "session-token", repositories.User{ID: s.user.ID, Email: email}, nil
}

func (s *stubAuthService) ResolveIdentity(_ string) (repositories.User, error) {
	if s.resolveErr != nil {
		return repositories.User{}, s.resolveErr
	}
	return s.user, nil
}

type stubMessageService struct {
	receipt       domain.DeliveryReceipt
	sendErr       error
	history       []domain.Message
	conversations []domain.Conversation
	hits          []repositories.SearchHit
	marked        int
}

func (s *stubMessageService) Send(senderID, recipientID domain.UserID, content string) (domain.Message, domain.DeliveryReceipt, error) {
	if s.sendErr != nil {
		return domain.Message{}, domain.DeliveryReceipt{}, s.sendErr
	}
	return domain.Message{
		ID: uuid.New(), SenderID: senderID, RecipientID: recipientID,
		Content: content, CreatedAt: time.Now().UTC(),
	}, s.receipt, nil
}

func (s *stubMessageService) History(_, _ domain.UserID) ([]domain.Message, error) {
	return s.history, nil
}

func (s *stubMessageService) MarkRead(_, _ domain.UserID) (int, error) {
	return s.marked, nil
}

func (s *stubMessageService) Conversations(_ domain.UserID) ([]domain.Conversation, error) {
	return s.conversations, nil
}

func (s *stubMessageService) Search(_ context.Context, _ domain.UserID, _ string, _ int) ([]repositories.SearchHit, error) {
	return s.hits, nil
}

type stubUserRepository struct {
	users []repositories.User
}

func (s *stubUserRepository) CreateUser(_, _, _ string) (string, error) { return "", nil }
func (s *stubUserRepository) GetUserByEmail(_ string) (repositories.User, error) {
	return repositories.User{}, apperrors.ErrUserNotFound
}
func (s *stubUserRepository) GetUserByID(_ string) (repositories.User, error) {
	return repositories.User{}, apperrors.ErrUserNotFound
}
func (s *stubUserRepository) ListUsers(_ string) ([]repositories.User, error) {
	return s.users, nil
}
func (s *stubUserRepository) UpdateProfile(id string, username, bio *string) (repositories.User, error) {
	user := repositories.User{ID: id, Username: "alice"}
	if username != nil {
		user.Username = *username
	}
	if bio != nil {
		user.Bio = *bio
	}
	return user, nil
}
func (s *stubUserRepository) TouchLastSeen(_ string) error { return nil }

type stubPresence struct {
	online map[domain.UserID]bool
}

func (s *stubPresence) IsOnline(userID domain.UserID) bool {
	return s.online[userID]
}

type apiHarness struct {
	server   *httptest.Server
	auth     *stubAuthService
	messages *stubMessageService
	users    *stubUserRepository
	presence *stubPresence
}

func newAPIHarness(t *testing.T, authRatePerMinute int) *apiHarness {
	t.Helper()
	auth := &stubAuthService{user: repositories.User{ID: "caller-id", Username: "alice"}}
	messages := &stubMessageService{}
	users := &stubUserRepository{}
	presence := &stubPresence{online: map[domain.UserID]bool{}}

	limiter := NewRateLimiter(authRatePerMinute)
	t.Cleanup(limiter.Stop)

	api := NewAPI(slog.New(slog.DiscardHandler), auth, users, messages, presence,
		http.NotFoundHandler(), limiter, nil)
	server := httptest.NewServer(api.Router())
	t.Cleanup(server.Close)

	return &apiHarness{server: server, auth: auth, messages: messages, users: users, presence: presence}
}

func (h *apiHarness) request(t *testing.T, method, path, body string, authorized bool) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, h.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if authorized {
		req.Header.Set("Authorization", "Bearer valid-token")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestAPI_Health(t *testing.T) {
	harness := newAPIHarness(t, 100)
	resp := harness.request(t, http.MethodGet, "/healthz", "", false)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPI_Register(t *testing.T) {
	t.Run("returns token and user on success", func(t *testing.T) {
		req := require.New(t)
		harness := newAPIHarness(t, 100)

		resp := harness.request(t, http.MethodPost, "/api/auth/register",
			`{"username":"alice","email":"alice@example.com","password":"Sup3rSecret!pass"}`, false)
		req.Equal(http.StatusCreated, resp.StatusCode)

		body := decode[sessionResponse](t, resp)
		req.Equal("fresh-token", body.Token)
		req.Equal("alice", body.User.Username)
	})

	t.Run("maps duplicate email to conflict", func(t *testing.T) {
		harness := newAPIHarness(t, 100)
		harness.auth.registerErr = apperrors.ErrUserAlreadyExists

		resp := harness.request(t, http.MethodPost, "/api/auth/register",
			`{"username":"alice","email":"alice@example.com","password":"Sup3rSecret!pass"}`, false)
		require.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("rejects malformed json", func(t *testing.T) {
		harness := newAPIHarness(t, 100)
		resp := harness.request(t, http.MethodPost, "/api/auth/register", "{not json", false)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestAPI_Login(t *testing.T) {
	harness := newAPIHarness(t, 100)
	harness.auth.loginErr = apperrors.ErrInvalidCredentials

	resp := harness.request(t, http.MethodPost, "/api/auth/login",
		`{"email":"alice@example.com","password":"wrong"}`, false)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAPI_AuthRateLimit(t *testing.T) {
	req := require.New(t)
	harness := newAPIHarness(t, 1)

	first := harness.request(t, http.MethodPost, "/api/auth/login",
		`{"email":"alice@example.com","password":"x"}`, false)
	req.NotEqual(http.StatusTooManyRequests, first.StatusCode)

	second := harness.request(t, http.MethodPost, "/api/auth/login",
		`{"email":"alice@example.com","password":"x"}`, false)
	req.Equal(http.StatusTooManyRequests, second.StatusCode)
}

func TestAPI_BearerRequired(t *testing.T) {
	harness := newAPIHarness(t, 100)

	for _, path := range []string{"/api/users/", "/api/messages/conversations", "/api/auth/verify"} {
		resp := harness.request(t, http.MethodGet, path, "", false)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
	}
}

func TestAPI_InvalidTokenRejected(t *testing.T) {
	harness := newAPIHarness(t, 100)
	harness.auth.resolveErr = apperrors.ErrInvalidToken

	resp := harness.request(t, http.MethodGet, "/api/users/", "", true)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAPI_ListUsers(t *testing.T) {
	req := require.New(t)
	harness := newAPIHarness(t, 100)
	harness.users.users = []repositories.User{
		{ID: "u2", Username: "bob"},
		{ID: "u3", Username: "carol"},
	}
	harness.presence.online[domain.UserID("u2")] = true

	resp := harness.request(t, http.MethodGet, "/api/users/", "", true)
	req.Equal(http.StatusOK, resp.StatusCode)

	body := decode[[]userView](t, resp)
	req.Len(body, 2)
	req.Equal("bob", body[0].Username)
	req.True(body[0].Online)
	req.False(body[1].Online)
}

func TestAPI_SendMessage(t *testing.T) {
	t.Run("returns message and receipt", func(t *testing.T) {
		req := require.New(t)
		harness := newAPIHarness(t, 100)
		harness.messages.receipt = domain.DeliveryReceipt{DeliveryID: 9, Status: domain.StatusDelivered}

		resp := harness.request(t, http.MethodPost, "/api/messages/",
			`{"recipientId":"u2","content":"hello"}`, true)
		req.Equal(http.StatusCreated, resp.StatusCode)

		body := decode[sendMessageResponse](t, resp)
		req.Equal("caller-id", body.Message.SenderID)
		req.Equal(uint64(9), body.Receipt.DeliveryID)
		req.Equal("delivered", body.Receipt.Status)
	})

	t.Run("maps unknown recipient to not found", func(t *testing.T) {
		harness := newAPIHarness(t, 100)
		harness.messages.sendErr = apperrors.ErrUserNotFound

		resp := harness.request(t, http.MethodPost, "/api/messages/",
			`{"recipientId":"ghost","content":"hello"}`, true)
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestAPI_HistoryAndConversations(t *testing.T) {
	req := require.New(t)
	harness := newAPIHarness(t, 100)
	msg := domain.Message{
		ID: uuid.New(), SenderID: "u2", RecipientID: "caller-id",
		Content: "hi", CreatedAt: time.Now().UTC(),
	}
	harness.messages.history = []domain.Message{msg}
	harness.messages.conversations = []domain.Conversation{
		{PeerID: "u2", LastMessage: msg, UnreadCount: 1},
	}

	resp := harness.request(t, http.MethodGet, "/api/messages/u2", "", true)
	req.Equal(http.StatusOK, resp.StatusCode)
	history := decode[[]messageView](t, resp)
	req.Len(history, 1)
	req.Equal("hi", history[0].Content)

	resp = harness.request(t, http.MethodGet, "/api/messages/conversations", "", true)
	req.Equal(http.StatusOK, resp.StatusCode)
	conversations := decode[[]conversationView](t, resp)
	req.Len(conversations, 1)
	req.Equal("u2", conversations[0].PeerID)
	req.Equal(1, conversations[0].UnreadCount)
}

func TestAPI_MarkRead(t *testing.T) {
	req := require.New(t)
	harness := newAPIHarness(t, 100)
	harness.messages.marked = 4

	resp := harness.request(t, http.MethodPut, "/api/messages/read/u2", "", true)
	req.Equal(http.StatusOK, resp.StatusCode)

	body := decode[map[string]int](t, resp)
	req.Equal(4, body["marked"])
}

func TestAPI_Search(t *testing.T) {
	t.Run("requires a query", func(t *testing.T) {
		harness := newAPIHarness(t, 100)
		resp := harness.request(t, http.MethodGet, "/api/messages/search", "", true)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("returns scoped hits", func(t *testing.T) {
		req := require.New(t)
		harness := newAPIHarness(t, 100)
		harness.messages.hits = []repositories.SearchHit{
			{MessageID: "m1", SenderID: "u2", RecipientID: "caller-id", Content: "hello"},
		}

		resp := harness.request(t, http.MethodGet, "/api/messages/search?q=hello", "", true)
		req.Equal(http.StatusOK, resp.StatusCode)

		hits := decode[[]searchHitView](t, resp)
		req.Len(hits, 1)
		req.Equal("m1", hits[0].MessageID)
	})
}

func TestAPI_UpdateProfile(t *testing.T) {
	req := require.New(t)
	harness := newAPIHarness(t, 100)

	resp := harness.request(t, http.MethodPut, "/api/users/profile", `{"bio":"hello"}`, true)
	req.Equal(http.StatusOK, resp.StatusCode)

	body := decode[userView](t, resp)
	req.Equal("hello", body.Bio)
}
