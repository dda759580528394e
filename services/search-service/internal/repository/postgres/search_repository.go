package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"SocialMeshPlatform/services/search-service/internal/domain"
)

// SearchRepository полнотекстовый поиск по tsvector
type SearchRepository struct {
	pool *pgxpool.Pool
}

// NewSearchRepository создает новый экземпляр SearchRepository
func NewSearchRepository(pool *pgxpool.Pool) *SearchRepository {
	return &SearchRepository{pool: pool}
}

// Upsert добавляет или обновляет проекцию публикации
func (r *SearchRepository) Upsert(ctx context.Context, post *domain.SearchPost) error {
	query := `INSERT INTO search_posts (post_id, user_id, content, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (post_id) DO UPDATE
		SET user_id = EXCLUDED.user_id, content = EXCLUDED.content, created_at = EXCLUDED.created_at`

	if _, err := r.pool.Exec(ctx, query, post.PostID, post.UserID, post.Content, post.CreatedAt); err != nil {
		return fmt.Errorf("failed to upsert search post: %w", err)
	}
	return nil
}

// Delete удаляет проекцию. Отсутствие строки не ошибка.
func (r *SearchRepository) Delete(ctx context.Context, postID string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM search_posts WHERE post_id = $1`, postID); err != nil {
		return fmt.Errorf("failed to delete search post: %w", err)
	}
	return nil
}

// Search ищет по словам запроса, новые первыми
func (r *SearchRepository) Search(ctx context.Context, query string, limit int) ([]domain.SearchPost, error) {
	sql := `SELECT post_id, user_id, content, created_at FROM search_posts
		WHERE search_vector @@ plainto_tsquery('simple', $1)
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, sql, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search posts: %w", err)
	}

	posts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.SearchPost, error) {
		var p domain.SearchPost
		err := row.Scan(&p.PostID, &p.UserID, &p.Content, &p.CreatedAt)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan search posts: %w", err)
	}
	return posts, nil
}
