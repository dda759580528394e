package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"SocialMeshPlatform/services/identity-service/internal/domain"
	"SocialMeshPlatform/services/identity-service/internal/repository"
)

// RefreshTokenRepository хранит хеши refresh токенов
type RefreshTokenRepository struct {
	pool *pgxpool.Pool
}

// NewRefreshTokenRepository создает новый экземпляр RefreshTokenRepository
func NewRefreshTokenRepository(pool *pgxpool.Pool) *RefreshTokenRepository {
	return &RefreshTokenRepository{pool: pool}
}

// Create сохраняет запись. Совпадение хеша дает repository.ErrDuplicate.
func (r *RefreshTokenRepository) Create(ctx context.Context, token *domain.RefreshToken) error {
	query := `INSERT INTO refresh_tokens (id, token_hash, user_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.pool.Exec(ctx, query,
		token.ID,
		token.TokenHash,
		token.UserID,
		token.ExpiresAt,
		token.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("failed to create refresh token: %w", err)
	}
	return nil
}

// Take удаляет запись по хешу и возвращает ее.
// Просроченная запись тоже удаляется и возвращается, решение принимает вызывающий.
func (r *RefreshTokenRepository) Take(ctx context.Context, tokenHash string) (*domain.RefreshToken, error) {
	query := `DELETE FROM refresh_tokens WHERE token_hash = $1
		RETURNING id, token_hash, user_id, expires_at, created_at`

	var token domain.RefreshToken
	err := r.pool.QueryRow(ctx, query, tokenHash).Scan(
		&token.ID,
		&token.TokenHash,
		&token.UserID,
		&token.ExpiresAt,
		&token.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to take refresh token: %w", err)
	}
	return &token, nil
}

// DeleteExpired удаляет записи, истекшие до now
func (r *RefreshTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired refresh tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}
