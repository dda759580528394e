package database

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	goosedb "github.com/pressly/goose/v3/database"

	"SocialMeshPlatform/pkg/logger"
)

// Migrations описывает набор миграций сервиса
type Migrations struct {
	// Service используется в имени таблицы версий, чтобы сервисы могли делить одну БД
	Service string
	// FS содержит *.sql файлы в корне
	FS fs.FS
}

// TableName таблица версий goose для сервиса
func (m Migrations) TableName() string {
	return "goose_db_version_" + m.Service
}

// Migrator применяет миграции goose поверх пула pgx
type Migrator struct {
	db       *sql.DB
	provider *goose.Provider
	log      logger.Logger
}

// NewMigrator создает Migrator. Закрыть через Close.
func NewMigrator(pool *pgxpool.Pool, migrations Migrations, log logger.Logger) (*Migrator, error) {
	db := stdlib.OpenDBFromPool(pool)

	store, err := goosedb.NewStore(goosedb.DialectPostgres, migrations.TableName())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create goose store: %w", err)
	}

	provider, err := goose.NewProvider("", db, migrations.FS, goose.WithStore(store))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create goose provider: %w", err)
	}

	return &Migrator{db: db, provider: provider, log: log.With(logger.String("migrations", migrations.Service))}, nil
}

// Up применяет все новые миграции
func (m *Migrator) Up(ctx context.Context) error {
	results, err := m.provider.Up(ctx)
	for _, r := range results {
		m.log.Info("Migration applied",
			logger.Int64("version", r.Source.Version),
			logger.String("path", r.Source.Path),
			logger.Duration("duration", r.Duration))
	}
	if err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// Down откатывает последнюю миграцию
func (m *Migrator) Down(ctx context.Context) error {
	r, err := m.provider.Down(ctx)
	if err != nil {
		return fmt.Errorf("migrate down: %w", err)
	}
	if r != nil {
		m.log.Info("Migration rolled back",
			logger.Int64("version", r.Source.Version),
			logger.String("path", r.Source.Path))
	}
	return nil
}

// MigrationState состояние одной миграции
type MigrationState struct {
	Version int64
	Path    string
	Applied bool
}

// Status возвращает состояние всех миграций
func (m *Migrator) Status(ctx context.Context) ([]MigrationState, error) {
	statuses, err := m.provider.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("migrate status: %w", err)
	}

	out := make([]MigrationState, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, MigrationState{
			Version: s.Source.Version,
			Path:    s.Source.Path,
			Applied: s.State == goose.StateApplied,
		})
	}
	return out, nil
}

// Close закрывает обертку database/sql, пул pgx остается открытым
func (m *Migrator) Close() error {
	return m.db.Close()
}

// MigrateUp открывает Migrator, применяет миграции и закрывает его
func MigrateUp(ctx context.Context, pool *pgxpool.Pool, migrations Migrations, log logger.Logger) error {
	m, err := NewMigrator(pool, migrations, log)
	if err != nil {
		return err
	}
	defer m.Close()
	return m.Up(ctx)
}
