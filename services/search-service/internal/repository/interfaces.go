package repository

import (
	"context"

	"SocialMeshPlatform/services/search-service/internal/domain"
)

// SearchRepository хранилище поисковой проекции.
// Upsert и Delete идемпотентны, повторная доставка события ничего не меняет.
type SearchRepository interface {
	Upsert(ctx context.Context, post *domain.SearchPost) error
	Delete(ctx context.Context, postID string) error
	Search(ctx context.Context, query string, limit int) ([]domain.SearchPost, error)
}
