package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"SocialMeshPlatform/pkg/database"
	"SocialMeshPlatform/services/cli-service/internal/output"
	"SocialMeshPlatform/services/cli-service/internal/schema"
)

type migrationRow struct {
	Service string `json:"service" yaml:"service"`
	Version int64  `json:"version" yaml:"version"`
	Path    string `json:"path" yaml:"path"`
	Applied bool   `json:"applied" yaml:"applied"`
}

func newMigrateCommand(a *app) *cobra.Command {
	var service string

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Управление миграциями PostgreSQL",
	}
	migrateCmd.PersistentFlags().StringVarP(&service, "service", "s", schema.All,
		fmt.Sprintf("target service: %v or %s", schema.Services(), schema.All))

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Применить все новые миграции",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sets, err := schema.Resolve(service)
			if err != nil {
				return err
			}
			return a.withMigrators(cmd.Context(), sets, func(set database.Migrations, m *database.Migrator) error {
				if err := m.Up(cmd.Context()); err != nil {
					return err
				}
				return a.printer.Message("%s: migrations applied", set.Service)
			})
		},
	}

	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Откатить последнюю миграцию одного сервиса",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if service == schema.All {
				return fmt.Errorf("migrate down requires a single --service")
			}
			sets, err := schema.Resolve(service)
			if err != nil {
				return err
			}
			return a.withMigrators(cmd.Context(), sets, func(set database.Migrations, m *database.Migrator) error {
				if err := m.Down(cmd.Context()); err != nil {
					return err
				}
				return a.printer.Message("%s: last migration rolled back", set.Service)
			})
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Показать состояние миграций",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sets, err := schema.Resolve(service)
			if err != nil {
				return err
			}

			table := output.NewTableData("SERVICE", "VERSION", "FILE", "APPLIED")
			rows := make([]migrationRow, 0)
			err = a.withMigrators(cmd.Context(), sets, func(set database.Migrations, m *database.Migrator) error {
				states, err := m.Status(cmd.Context())
				if err != nil {
					return err
				}
				for _, s := range states {
					rows = append(rows, migrationRow{Service: set.Service, Version: s.Version, Path: s.Path, Applied: s.Applied})
					table.AddRow(set.Service, strconv.FormatInt(s.Version, 10), s.Path, yesNo(s.Applied))
				}
				return nil
			})
			if err != nil {
				return err
			}
			return a.printer.Print(table, rows)
		},
	}

	migrateCmd.AddCommand(upCmd, downCmd, statusCmd)
	return migrateCmd
}

// withMigrators открывает одно подключение и выполняет fn для каждого набора миграций по порядку
func (a *app) withMigrators(ctx context.Context, sets []database.Migrations, fn func(database.Migrations, *database.Migrator) error) error {
	db, err := a.connectDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	for _, set := range sets {
		m, err := database.NewMigrator(db.Pool, set, a.log)
		if err != nil {
			return err
		}
		err = fn(set, m)
		_ = m.Close()
		if err != nil {
			return fmt.Errorf("%s: %w", set.Service, err)
		}
	}
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
