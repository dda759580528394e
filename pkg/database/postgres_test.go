package database

import (
	"context"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SocialMeshPlatform/pkg/config"
	"SocialMeshPlatform/pkg/logger"
)

// TestConnect_Unreachable подключение к несуществующей базе завершается ошибкой после повторов
func TestConnect_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cfg := NewConfig()
	cfg.Port = 1
	cfg.MaxRetries = 1
	cfg.RetryInterval = 10 * time.Millisecond

	_, err := Connect(ctx, cfg, logger.NewNop())
	assert.Error(t, err)
}

// TestHealthCheck проверяет health check без пула
func TestHealthCheck(t *testing.T) {
	postgres := &Postgres{}
	assert.Error(t, postgres.HealthCheck(context.Background()))
	postgres.Close()
}

// TestNewConfig проверяет создание конфигурации по умолчанию
func TestNewConfig(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 5432, cfg.Port)
	assert.Equal(t, 20, cfg.MaxConns)
	assert.Equal(t, 2, cfg.MinConns)
	assert.Equal(t, 30*time.Minute, cfg.MaxConnLife)
	assert.Equal(t, 5*time.Minute, cfg.MaxConnIdle)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, time.Second, cfg.RetryInterval)
}

func TestFromAppConfig(t *testing.T) {
	cfg := FromAppConfig(config.DatabaseConfig{
		Host:     "db",
		Port:     6432,
		Name:     "mesh",
		User:     "mesh",
		Password: "p@ss word",
		SSLMode:  "require",
		MaxConns: 7,
	})

	assert.Equal(t, "db", cfg.Host)
	assert.Equal(t, 6432, cfg.Port)
	assert.Equal(t, "mesh", cfg.Database)
	assert.Equal(t, 7, cfg.MaxConns)
	assert.Equal(t, "postgres://mesh:p%40ss%20word@db:6432/mesh?sslmode=require", cfg.DSN())

	// Пустые значения оставляют значения по умолчанию
	cfg = FromAppConfig(config.DatabaseConfig{Host: "db", Port: 5432})
	assert.Equal(t, "disable", cfg.SSLMode)
	assert.Equal(t, 20, cfg.MaxConns)
}

func TestParseURL(t *testing.T) {
	cfg, err := ParseURL("postgres://u:p@host:5433/db?sslmode=require")
	require.NoError(t, err)
	assert.Equal(t, "host", cfg.Host)
	assert.Equal(t, 5433, cfg.Port)
	assert.Equal(t, "u", cfg.User)
	assert.Equal(t, "p", cfg.Password)
	assert.Equal(t, "db", cfg.Database)
	assert.Equal(t, "require", cfg.SSLMode)
	assert.Equal(t, NewConfig().MaxConns, cfg.MaxConns)

	cfg, err = ParseURL("postgresql://u:p@host/db")
	require.NoError(t, err)
	assert.Equal(t, 5432, cfg.Port)
	assert.Equal(t, "disable", cfg.SSLMode)

	for _, bad := range []string{"mysql://u:p@host/db", "postgres://host/db", "postgres://u:p@host"} {
		_, err := ParseURL(bad)
		assert.Error(t, err, bad)
	}
}

func TestMigrations_TableName(t *testing.T) {
	m := Migrations{Service: "identity", FS: fstest.MapFS{}}
	assert.Equal(t, "goose_db_version_identity", m.TableName())
}
