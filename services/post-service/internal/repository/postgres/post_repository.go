package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"SocialMeshPlatform/services/post-service/internal/domain"
	"SocialMeshPlatform/services/post-service/internal/repository"
)

const postColumns = `id, user_id, content, media_ids, created_at, updated_at`

// PostRepository реализация репозитория публикаций для PostgreSQL
type PostRepository struct {
	pool *pgxpool.Pool
}

// NewPostRepository создает новый экземпляр PostRepository
func NewPostRepository(pool *pgxpool.Pool) *PostRepository {
	return &PostRepository{pool: pool}
}

// Create сохраняет публикацию
func (r *PostRepository) Create(ctx context.Context, post *domain.Post) error {
	query := `INSERT INTO posts (` + postColumns + `) VALUES ($1, $2, $3, $4, $5, $6)`

	mediaIDs := post.MediaIDs
	if mediaIDs == nil {
		mediaIDs = []string{}
	}
	_, err := r.pool.Exec(ctx, query,
		post.ID,
		post.UserID,
		post.Content,
		mediaIDs,
		post.CreatedAt,
		post.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create post: %w", err)
	}
	return nil
}

// FindByID возвращает публикацию по ID
func (r *PostRepository) FindByID(ctx context.Context, id string) (*domain.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE id = $1`

	post, err := scanPost(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get post by id: %w", err)
	}
	return post, nil
}

// List возвращает страницу публикаций, новые первыми
func (r *PostRepository) List(ctx context.Context, offset, limit int) ([]domain.Post, int64, error) {
	query := `SELECT ` + postColumns + ` FROM posts
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list posts: %w", err)
	}
	defer rows.Close()

	// Порядок колонок postColumns совпадает с порядком полей domain.Post
	posts, err := pgx.CollectRows(rows, pgx.RowToStructByPos[domain.Post])
	if err != nil {
		return nil, 0, fmt.Errorf("failed to scan posts: %w", err)
	}

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM posts`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count posts: %w", err)
	}
	return posts, total, nil
}

// DeleteOwned удаляет публикацию владельца и возвращает удаленную строку
func (r *PostRepository) DeleteOwned(ctx context.Context, id, userID string) (*domain.Post, error) {
	query := `DELETE FROM posts WHERE id = $1 AND user_id = $2 RETURNING ` + postColumns

	post, err := scanPost(r.pool.QueryRow(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to delete post: %w", err)
	}
	return post, nil
}

func scanPost(row pgx.Row) (*domain.Post, error) {
	var post domain.Post
	if err := row.Scan(
		&post.ID,
		&post.UserID,
		&post.Content,
		&post.MediaIDs,
		&post.CreatedAt,
		&post.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &post, nil
}
