package repository

import (
	"context"
	"errors"
	"time"

	"SocialMeshPlatform/services/identity-service/internal/domain"
)

var (
	// ErrNotFound запись не найдена
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate нарушено ограничение уникальности
	ErrDuplicate = errors.New("duplicate record")
)

// UserRepository интерфейс для работы с пользователями
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	FindByID(ctx context.Context, id string) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
}

// RefreshTokenRepository интерфейс для работы с refresh токенами.
// Take находит и удаляет запись одной атомарной операцией: из двух
// конкурентных вызовов запись получает ровно один.
type RefreshTokenRepository interface {
	Create(ctx context.Context, token *domain.RefreshToken) error
	Take(ctx context.Context, tokenHash string) (*domain.RefreshToken, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
