// Package maintenance обслуживающие операции над данными сервисов
package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PurgeExpiredTokens удаляет refresh токены, истекшие до before.
// Тот же запрос identity-service выполняет по расписанию.
func PurgeExpiredTokens(ctx context.Context, pool *pgxpool.Pool, before time.Time) (int64, error) {
	tag, err := pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("purge refresh tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountTokens возвращает число активных и просроченных токенов на момент now
func CountTokens(ctx context.Context, pool *pgxpool.Pool, now time.Time) (active, expired int64, err error) {
	err = pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE expires_at >= $1),
			COUNT(*) FILTER (WHERE expires_at < $1)
		FROM refresh_tokens`, now).Scan(&active, &expired)
	if err != nil {
		return 0, 0, fmt.Errorf("count refresh tokens: %w", err)
	}
	return active, expired, nil
}
