package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"SocialMeshPlatform/services/media-service/internal/domain"
)

const mediaColumns = `id, user_id, object_key, original_name, mime_type, size_bytes, url, created_at`

// MediaRepository реализация репозитория медиа для PostgreSQL
type MediaRepository struct {
	pool *pgxpool.Pool
}

// NewMediaRepository создает новый экземпляр MediaRepository
func NewMediaRepository(pool *pgxpool.Pool) *MediaRepository {
	return &MediaRepository{pool: pool}
}

// Create сохраняет метаданные файла
func (r *MediaRepository) Create(ctx context.Context, media *domain.Media) error {
	query := `INSERT INTO media (` + mediaColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.pool.Exec(ctx, query,
		media.ID,
		media.UserID,
		media.ObjectKey,
		media.OriginalName,
		media.MimeType,
		media.Size,
		media.URL,
		media.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create media: %w", err)
	}
	return nil
}

// ListByUser возвращает файлы пользователя, новые первыми
func (r *MediaRepository) ListByUser(ctx context.Context, userID string) ([]domain.Media, error) {
	query := `SELECT ` + mediaColumns + ` FROM media WHERE user_id = $1 ORDER BY created_at DESC, id DESC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list media: %w", err)
	}
	return collectMedia(rows)
}

// FindByIDs возвращает файлы владельца из списка ids. Отсутствующие пропускаются.
func (r *MediaRepository) FindByIDs(ctx context.Context, ids []string, userID string) ([]domain.Media, error) {
	if len(ids) == 0 {
		return []domain.Media{}, nil
	}
	query := `SELECT ` + mediaColumns + ` FROM media WHERE id::text = ANY($1) AND user_id = $2`

	rows, err := r.pool.Query(ctx, query, ids, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find media: %w", err)
	}
	return collectMedia(rows)
}

// DeleteByIDs удаляет файлы владельца и возвращает число удаленных строк
func (r *MediaRepository) DeleteByIDs(ctx context.Context, ids []string, userID string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM media WHERE id::text = ANY($1) AND user_id = $2`, ids, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete media: %w", err)
	}
	return tag.RowsAffected(), nil
}

func collectMedia(rows pgx.Rows) ([]domain.Media, error) {
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Media, error) {
		var m domain.Media
		err := row.Scan(
			&m.ID,
			&m.UserID,
			&m.ObjectKey,
			&m.OriginalName,
			&m.MimeType,
			&m.Size,
			&m.URL,
			&m.CreatedAt,
		)
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan media: %w", err)
	}
	return items, nil
}
