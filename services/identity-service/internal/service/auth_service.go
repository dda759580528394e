package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	pkgerrors "SocialMeshPlatform/pkg/errors"
	"SocialMeshPlatform/pkg/identity"
	"SocialMeshPlatform/pkg/logger"
	"SocialMeshPlatform/services/identity-service/internal/domain"
	"SocialMeshPlatform/services/identity-service/internal/pkg/password"
	"SocialMeshPlatform/services/identity-service/internal/repository"
)

// MessageInvalidCredentials одно сообщение для неизвестного email и неверного пароля
const MessageInvalidCredentials = "Invalid credentials"

// RegisterInput данные регистрации
type RegisterInput struct {
	Username string
	Email    string
	Password string
}

// AuthService регистрирует пользователей и проверяет их учетные данные
type AuthService struct {
	users     repository.UserRepository
	passwords password.Verifier
	tokens    *TokenService
	log       logger.Logger
	now       func() time.Time
}

// NewAuthService создает новый экземпляр AuthService
func NewAuthService(users repository.UserRepository, passwords password.Verifier, tokens *TokenService, log logger.Logger) *AuthService {
	return &AuthService{
		users:     users,
		passwords: passwords,
		tokens:    tokens,
		log:       log,
		now:       time.Now,
	}
}

// NormalizeEmail приводит email к виду, в котором он хранится
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register создает пользователя и выпускает первую пару токенов
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*domain.TokenPair, error) {
	email := NormalizeEmail(in.Email)
	username := strings.TrimSpace(in.Username)

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal, "failed to hash password")
	}

	now := s.now().UTC()
	user := &domain.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			s.log.Warn("User already exists",
				logger.String("email", email),
				logger.String("username", username),
				logger.CtxField(ctx))
			return nil, pkgerrors.New(pkgerrors.ErrConflict,
				fmt.Sprintf("User already exists with email: %s or username: %s", email, username))
		}
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal, "failed to create user")
	}

	s.log.Info("User registered", logger.String("user_id", user.ID), logger.CtxField(ctx))
	return s.tokens.IssueTokens(ctx, identity.Identity{UserID: user.ID, Username: user.Username})
}

// Login проверяет учетные данные и выпускает пару токенов
func (s *AuthService) Login(ctx context.Context, email, pass string) (string, *domain.TokenPair, error) {
	user, err := s.users.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.log.Warn("Login with unknown email", logger.CtxField(ctx))
			return "", nil, pkgerrors.New(pkgerrors.ErrInvalidCredential, MessageInvalidCredentials)
		}
		return "", nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal, "failed to load user")
	}

	ok, err := s.passwords.Verify(user.PasswordHash, pass)
	if err != nil {
		s.log.Error("Stored password hash is unusable",
			logger.String("user_id", user.ID),
			logger.Error(err),
			logger.CtxField(ctx))
		return "", nil, pkgerrors.New(pkgerrors.ErrInvalidCredential, MessageInvalidCredentials)
	}
	if !ok {
		s.log.Warn("Invalid password", logger.String("user_id", user.ID), logger.CtxField(ctx))
		return "", nil, pkgerrors.New(pkgerrors.ErrInvalidCredential, MessageInvalidCredentials)
	}

	pair, err := s.tokens.IssueTokens(ctx, identity.Identity{UserID: user.ID, Username: user.Username})
	if err != nil {
		return "", nil, err
	}
	return user.ID, pair, nil
}
