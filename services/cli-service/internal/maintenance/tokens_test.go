package maintenance

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SocialMeshPlatform/pkg/database/dbtest"
	"SocialMeshPlatform/services/identity-service/migrations"
)

func TestPurgeExpiredTokens(t *testing.T) {
	pool := dbtest.NewPool(t, migrations.Schema())
	ctx := context.Background()
	now := time.Now().UTC()

	userID := uuid.NewString()
	_, err := pool.Exec(ctx,
		`INSERT INTO users (id, username, email, password_hash) VALUES ($1, 'alice', 'alice@example.com', 'x')`, userID)
	require.NoError(t, err)

	for i, exp := range []time.Time{now.Add(-48 * time.Hour), now.Add(-time.Minute), now.Add(time.Hour)} {
		_, err := pool.Exec(ctx,
			`INSERT INTO refresh_tokens (id, token_hash, user_id, expires_at) VALUES ($1, $2, $3, $4)`,
			uuid.NewString(), fmt64(i), userID, exp)
		require.NoError(t, err)
	}

	active, expired, err := CountTokens(ctx, pool, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), active)
	assert.Equal(t, int64(2), expired)

	n, err := PurgeExpiredTokens(ctx, pool, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = PurgeExpiredTokens(ctx, pool, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = PurgeExpiredTokens(ctx, pool, now)
	require.NoError(t, err)
	assert.Zero(t, n)
}

// fmt64 строка из 64 символов для token_hash CHAR(64)
func fmt64(i int) string {
	b := make([]byte, 64)
	for j := range b {
		b[j] = 'a' + byte(i)
	}
	return string(b)
}
