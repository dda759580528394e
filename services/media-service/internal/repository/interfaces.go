package repository

import (
	"context"
	"errors"

	"SocialMeshPlatform/services/media-service/internal/domain"
)

// ErrNotFound запись не найдена
var ErrNotFound = errors.New("media not found")

// MediaRepository хранилище метаданных медиафайлов
type MediaRepository interface {
	Create(ctx context.Context, media *domain.Media) error
	ListByUser(ctx context.Context, userID string) ([]domain.Media, error)
	FindByIDs(ctx context.Context, ids []string, userID string) ([]domain.Media, error)
	DeleteByIDs(ctx context.Context, ids []string, userID string) (int64, error)
}
