package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	apperrors "courier/errors"
)

func TestHashPassword_RoundTrip(t *testing.T) {
	req := require.New(t)

	hash, err := HashPassword("CorrectHorse9!")
	req.NoError(err)
	req.True(strings.HasPrefix(hash, "$argon2id$"))

	match, err := ComparePassword("CorrectHorse9!", hash)
	req.NoError(err)
	req.True(match)

	match, err = ComparePassword("WrongHorse9!", hash)
	req.NoError(err)
	req.False(match)
}

func TestHashPassword_SaltMakesHashesUnique(t *testing.T) {
	req := require.New(t)

	first, err := HashPassword("CorrectHorse9!")
	req.NoError(err)
	second, err := HashPassword("CorrectHorse9!")
	req.NoError(err)
	req.NotEqual(first, second)
}

func TestComparePassword_MalformedHash(t *testing.T) {
	req := require.New(t)

	_, err := ComparePassword("anything", "not-an-encoded-hash")
	req.Error(err)
}

func TestTokenManager_RoundTrip(t *testing.T) {
	req := require.New(t)
	manager := NewTokenManager("test-secret", time.Hour)

	token, err := manager.Generate("user-42")
	req.NoError(err)
	req.NotEmpty(token)

	claims, err := manager.Validate(token)
	req.NoError(err)
	req.Equal("user-42", claims.UserID)
	req.Equal("courier", claims.Issuer)
}

func TestTokenManager_RejectsForeignSignature(t *testing.T) {
	req := require.New(t)

	token, err := NewTokenManager("secret-a", time.Hour).Generate("user-42")
	req.NoError(err)

	_, err = NewTokenManager("secret-b", time.Hour).Validate(token)
	req.ErrorIs(err, apperrors.ErrInvalidToken)
}

func TestTokenManager_RejectsExpiredToken(t *testing.T) {
	req := require.New(t)
	manager := NewTokenManager("test-secret", -time.Minute)

	token, err := manager.Generate("user-42")
	req.NoError(err)

	_, err = manager.Validate(token)
	req.ErrorIs(err, apperrors.ErrInvalidToken)
}

func TestTokenManager_RejectsGarbage(t *testing.T) {
	req := require.New(t)
	manager := NewTokenManager("test-secret", time.Hour)

	_, err := manager.Validate("definitely.not.a.token")
	req.ErrorIs(err, apperrors.ErrInvalidToken)
}

func TestValidateRegister(t *testing.T) {
	valid := RegisterRequest{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "Sup3rSecret!pass",
	}

	t.Run("accepts a complex password", func(t *testing.T) {
		require.NoError(t, ValidateRegister(valid))
	})

	t.Run("rejects a short password", func(t *testing.T) {
		req := valid
		req.Password = "Sh0rt!"
		require.Error(t, ValidateRegister(req))
	})

	t.Run("rejects a password without symbols", func(t *testing.T) {
		req := valid
		req.Password = "OnlyLettersAnd123"
		require.ErrorIs(t, ValidateRegister(req), apperrors.ErrInvalidPassword)
	})

	t.Run("rejects a bad email", func(t *testing.T) {
		req := valid
		req.Email = "not-an-email"
		require.Error(t, ValidateRegister(req))
	})

	t.Run("rejects a short username", func(t *testing.T) {
		req := valid
		req.Username = "ab"
		require.Error(t, ValidateRegister(req))
	})
}

func TestValidateLogin(t *testing.T) {
	require.NoError(t, ValidateLogin(LoginRequest{Email: "alice@example.com", Password: "x"}))
	require.Error(t, ValidateLogin(LoginRequest{Email: "alice@example.com"}))
	require.Error(t, ValidateLogin(LoginRequest{Password: "x"}))
}
