package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"courier/auth"
	"courier/errors"
	"courier/mocks"
	"courier/repositories"
)

func newTestTokenManager() *auth.TokenManager {
	return auth.NewTokenManager("test-secret", 24*time.Hour)
}

func TestAuthService_Register(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := mocks.NewMockIUserRepository(ctrl)
	svc := NewAuthService(mockRepo, newTestTokenManager())

	t.Run("should register successfully when input is valid", func(t *testing.T) {
		req := require.New(t)
		email := "test@example.com"
		password := "ComplexPass123!"
		expectedUserID := "user-uuid"

		// CreateUser must receive a hashed password, never the plain one.
		mockRepo.EXPECT().
			CreateUser("alice", email, gomock.Not(password)).
			Return(expectedUserID, nil).
			Times(1)
		mockRepo.EXPECT().
			GetUserByID(expectedUserID).
			Return(repositories.User{ID: expectedUserID, Username: "alice", Email: email}, nil).
			Times(1)

		token, user, err := svc.Register("alice", email, password)

		req.NoError(err)
		req.NotEmpty(token)
		req.Equal(expectedUserID, user.ID)
	})

	t.Run("should fail when password complexity is not met", func(t *testing.T) {
		req := require.New(t)

		// Repository should NEVER be called
		mockRepo.EXPECT().CreateUser(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		token, _, err := svc.Register("alice", "test@example.com", "simplepassword")

		req.ErrorIs(err, errors.ErrInvalidPassword)
		req.Empty(token)
	})

	t.Run("should fail when user already exists in repository", func(t *testing.T) {
		req := require.New(t)

		mockRepo.EXPECT().
			CreateUser("alice", "duplicate@example.com", gomock.Any()).
			Return("", errors.ErrUserAlreadyExists).
			Times(1)

		_, _, err := svc.Register("alice", "duplicate@example.com", "ComplexPass123!")

		req.ErrorIs(err, errors.ErrUserAlreadyExists)
	})
}

func TestAuthService_Login(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := mocks.NewMockIUserRepository(ctrl)
	tokens := newTestTokenManager()
	svc := NewAuthService(mockRepo, tokens)

	t.Run("should login successfully with correct credentials", func(t *testing.T) {
		req := require.New(t)
		email := "user@example.com"
		password := "Secret123456!"

		hashedPassword, _ := auth.HashPassword(password)
		storedUser := repositories.User{
			ID:           "uuid-123",
			Email:        email,
			PasswordHash: hashedPassword,
			Roles:        []string{"user"},
		}

		mockRepo.EXPECT().GetUserByEmail(email).Return(storedUser, nil).Times(1)
		mockRepo.EXPECT().TouchLastSeen(storedUser.ID).Return(nil).Times(1)

		token, user, err := svc.Login(email, password)

		req.NoError(err)
		req.NotEmpty(token)
		req.Equal(storedUser.ID, user.ID)

		claims, err := tokens.Validate(string(token))
		req.NoError(err)
		req.Equal(storedUser.ID, claims.UserID)
	})

	t.Run("should return invalid credentials on wrong password", func(t *testing.T) {
		req := require.New(t)
		email := "user@example.com"

		hashedPassword, _ := auth.HashPassword("CorrectPassword123!")
		storedUser := repositories.User{Email: email, PasswordHash: hashedPassword}

		mockRepo.EXPECT().GetUserByEmail(email).Return(storedUser, nil).Times(1)

		_, _, err := svc.Login(email, "WrongPassword123!")

		req.ErrorIs(err, errors.ErrInvalidCredentials)
	})

	t.Run("should hide unknown accounts behind the same error", func(t *testing.T) {
		req := require.New(t)

		mockRepo.EXPECT().
			GetUserByEmail("ghost@example.com").
			Return(repositories.User{}, errors.ErrUserNotFound).
			Times(1)

		_, _, err := svc.Login("ghost@example.com", "Whatever12345!")

		req.ErrorIs(err, errors.ErrInvalidCredentials)
	})
}

func TestAuthService_ResolveIdentity(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := mocks.NewMockIUserRepository(ctrl)
	tokens := newTestTokenManager()
	svc := NewAuthService(mockRepo, tokens)

	t.Run("should resolve a valid token to its user", func(t *testing.T) {
		req := require.New(t)
		token, err := tokens.Generate("uuid-123")
		req.NoError(err)

		mockRepo.EXPECT().
			GetUserByID("uuid-123").
			Return(repositories.User{ID: "uuid-123", Username: "alice"}, nil).
			Times(1)

		user, err := svc.ResolveIdentity(token)
		req.NoError(err)
		req.Equal("alice", user.Username)
	})

	t.Run("should reject a token for a deleted account", func(t *testing.T) {
		req := require.New(t)
		token, err := tokens.Generate("gone")
		req.NoError(err)

		mockRepo.EXPECT().
			GetUserByID("gone").
			Return(repositories.User{}, errors.ErrUserNotFound).
			Times(1)

		_, err = svc.ResolveIdentity(token)
		req.ErrorIs(err, errors.ErrInvalidToken)
	})

	t.Run("should reject garbage tokens without touching the repository", func(t *testing.T) {
		req := require.New(t)

		mockRepo.EXPECT().GetUserByID(gomock.Any()).Times(0)

		_, err := svc.ResolveIdentity("not-a-token")
		req.ErrorIs(err, errors.ErrInvalidToken)
	})
}
