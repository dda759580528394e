package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	pkgerrors "SocialMeshPlatform/pkg/errors"
	"SocialMeshPlatform/pkg/identity"
	"SocialMeshPlatform/pkg/logger"
	"SocialMeshPlatform/services/identity-service/internal/domain"
	"SocialMeshPlatform/services/identity-service/internal/repository"
)

// issueAttempts сколько раз генерируется новый секрет при совпадении хеша
const issueAttempts = 3

// Сообщения, которые видит клиент
const (
	MessageRefreshMissing = "Refresh token is missing"
	MessageRefreshInvalid = "Invalid or expired refresh token"
	MessageUserNotFound   = "User not found"
	MessageLogoutMissing  = "Refresh token missing"
	MessageLogoutInvalid  = "Invalid refresh token"
)

// AccessTokens выпускает и проверяет access токены
type AccessTokens interface {
	Issue(id identity.Identity) (string, time.Time, error)
	Verify(token string) (identity.Identity, error)
}

// SecretGenerator генерирует refresh секреты и их хеши
type SecretGenerator interface {
	Generate() (string, error)
	Hash(secret string) string
}

// TokenService выпускает, ротирует и отзывает пары токенов
type TokenService struct {
	users      repository.UserRepository
	tokens     repository.RefreshTokenRepository
	access     AccessTokens
	secrets    SecretGenerator
	refreshTTL time.Duration
	log        logger.Logger
	now        func() time.Time
}

// NewTokenService создает TokenService
func NewTokenService(
	users repository.UserRepository,
	tokens repository.RefreshTokenRepository,
	access AccessTokens,
	secrets SecretGenerator,
	refreshTTL time.Duration,
	log logger.Logger,
) *TokenService {
	return &TokenService{
		users:      users,
		tokens:     tokens,
		access:     access,
		secrets:    secrets,
		refreshTTL: refreshTTL,
		log:        log,
		now:        time.Now,
	}
}

// IssueTokens выпускает access токен и новый refresh секрет для subject.
// Хранится только хеш секрета.
func (s *TokenService) IssueTokens(ctx context.Context, subject identity.Identity) (*domain.TokenPair, error) {
	accessToken, _, err := s.access.Issue(subject)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal, "failed to issue access token")
	}

	now := s.now().UTC()
	for attempt := 1; attempt <= issueAttempts; attempt++ {
		secret, err := s.secrets.Generate()
		if err != nil {
			return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal, "failed to generate refresh token")
		}

		record := &domain.RefreshToken{
			ID:        uuid.NewString(),
			TokenHash: s.secrets.Hash(secret),
			UserID:    subject.UserID,
			ExpiresAt: now.Add(s.refreshTTL),
			CreatedAt: now,
		}
		err = s.tokens.Create(ctx, record)
		if err == nil {
			return &domain.TokenPair{AccessToken: accessToken, RefreshToken: secret}, nil
		}
		if !errors.Is(err, repository.ErrDuplicate) {
			return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal, "failed to store refresh token")
		}

		s.log.Warn("Refresh token hash collision, regenerating",
			logger.Int("attempt", attempt),
			logger.String("user_id", subject.UserID),
			logger.CtxField(ctx))
	}

	return nil, pkgerrors.New(pkgerrors.ErrInternal, fmt.Sprintf("refresh token collision after %d attempts", issueAttempts))
}

// Rotate обменивает refresh секрет на новую пару. Старый секрет больше не действует,
// даже если ротация завершится ошибкой.
func (s *TokenService) Rotate(ctx context.Context, secret string) (*domain.TokenPair, error) {
	if secret == "" {
		return nil, pkgerrors.New(pkgerrors.ErrValidation, MessageRefreshMissing)
	}

	record, err := s.tokens.Take(ctx, s.secrets.Hash(secret))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.log.Warn("Invalid refresh token presented", logger.CtxField(ctx))
			return nil, pkgerrors.New(pkgerrors.ErrInvalidCredential, MessageRefreshInvalid).WithStatus(http.StatusUnauthorized)
		}
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal, "failed to load refresh token")
	}

	if record.Expired(s.now()) {
		s.log.Warn("Expired refresh token presented",
			logger.String("user_id", record.UserID),
			logger.CtxField(ctx))
		return nil, pkgerrors.New(pkgerrors.ErrExpired, MessageRefreshInvalid)
	}

	user, err := s.users.FindByID(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, pkgerrors.New(pkgerrors.ErrInvalidCredential, MessageUserNotFound).WithStatus(http.StatusUnauthorized)
		}
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal, "failed to load user")
	}

	return s.IssueTokens(ctx, identity.Identity{UserID: user.ID, Username: user.Username})
}

// Revoke удаляет refresh секрет
func (s *TokenService) Revoke(ctx context.Context, secret string) error {
	if secret == "" {
		return pkgerrors.New(pkgerrors.ErrValidation, MessageLogoutMissing)
	}

	if _, err := s.tokens.Take(ctx, s.secrets.Hash(secret)); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return pkgerrors.New(pkgerrors.ErrNotFound, MessageLogoutInvalid)
		}
		return pkgerrors.Wrap(err, pkgerrors.ErrInternal, "failed to revoke refresh token")
	}
	return nil
}

// VerifyAccess проверяет только подпись и срок действия, без обращения к хранилищу
func (s *TokenService) VerifyAccess(token string) (identity.Identity, error) {
	return s.access.Verify(token)
}

// PurgeExpired удаляет просроченные refresh записи
func (s *TokenService) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.tokens.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}
	return n, nil
}
