package services

import (
	"fmt"

	"courier/auth"
	"courier/errors"
	"courier/repositories"
)

type IAuthService interface {
	Register(username, email, password string) (Token, repositories.User, error)
	Login(email, password string) (Token, repositories.User, error)
	ResolveIdentity(token string) (repositories.User, error)
}

type AuthService struct {
	userRepository repositories.IUserRepository
	tokens         *auth.TokenManager
}

type Token string

func NewAuthService(repo repositories.IUserRepository, tokens *auth.TokenManager) IAuthService {
	return &AuthService{userRepository: repo, tokens: tokens}
}

func (s *AuthService) Register(username, email, password string) (Token, repositories.User, error) {
	valReq := auth.RegisterRequest{
		Username: username,
		Email:    email,
		Password: password,
	}

	// Business rules first, before any expensive cryptographic operation.
	if err := auth.ValidateRegister(valReq); err != nil {
		return "", repositories.User{}, fmt.Errorf("%w: %v", errors.ErrInvalidPassword, err)
	}

	// Hashing happens here so the repository never sees a plain password.
	hashedPassword, err := auth.HashPassword(password)
	if err != nil {
		return "", repositories.User{}, fmt.Errorf("hashing failed: %w", err)
	}

	userID, err := s.userRepository.CreateUser(username, email, hashedPassword)
	if err != nil {
		return "", repositories.User{}, err // Propagates ErrUserAlreadyExists if email is taken
	}

	user, err := s.userRepository.GetUserByID(userID)
	if err != nil {
		return "", repositories.User{}, err
	}

	token, err := s.tokens.Generate(userID)
	if err != nil {
		return "", repositories.User{}, errors.ErrTokenGeneration
	}
	return Token(token), user, nil
}

func (s *AuthService) Login(email, password string) (Token, repositories.User, error) {
	if err := auth.ValidateLogin(auth.LoginRequest{Email: email, Password: password}); err != nil {
		return "", repositories.User{}, errors.ErrInvalidCredentials
	}

	user, err := s.userRepository.GetUserByEmail(email)
	if err != nil {
		// Generic error to prevent user enumeration attacks
		return "", repositories.User{}, errors.ErrInvalidCredentials
	}

	match, err := auth.ComparePassword(password, user.PasswordHash)
	if err != nil || !match {
		return "", repositories.User{}, errors.ErrInvalidCredentials
	}

	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return "", repositories.User{}, errors.ErrTokenGeneration
	}

	if err := s.userRepository.TouchLastSeen(user.ID); err != nil {
		return "", repositories.User{}, err
	}
	return Token(token), user, nil
}

// ResolveIdentity maps a bearer token to the account it was issued for.
func (s *AuthService) ResolveIdentity(token string) (repositories.User, error) {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		return repositories.User{}, err
	}
	user, err := s.userRepository.GetUserByID(claims.UserID)
	if err != nil {
		return repositories.User{}, errors.ErrInvalidToken
	}
	return user, nil
}
