package repository

import (
	"context"
	"errors"

	"SocialMeshPlatform/services/post-service/internal/domain"
)

// ErrNotFound запись не найдена
var ErrNotFound = errors.New("record not found")

// PostRepository интерфейс для работы с публикациями
type PostRepository interface {
	Create(ctx context.Context, post *domain.Post) error
	FindByID(ctx context.Context, id string) (*domain.Post, error)
	// List возвращает страницу, новые первыми, и общее число публикаций
	List(ctx context.Context, offset, limit int) ([]domain.Post, int64, error)
	// DeleteOwned удаляет публикацию, только если она принадлежит userID
	DeleteOwned(ctx context.Context, id, userID string) (*domain.Post, error)
}
