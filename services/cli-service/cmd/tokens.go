package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"SocialMeshPlatform/pkg/logger"
	"SocialMeshPlatform/services/cli-service/internal/maintenance"
	"SocialMeshPlatform/services/cli-service/internal/output"
)

type tokenStats struct {
	Active  int64 `json:"active" yaml:"active"`
	Expired int64 `json:"expired" yaml:"expired"`
}

type purgeResult struct {
	Purged int64     `json:"purged" yaml:"purged"`
	Before time.Time `json:"before" yaml:"before"`
}

func newTokensCommand(a *app) *cobra.Command {
	tokensCmd := &cobra.Command{
		Use:   "tokens",
		Short: "Обслуживание refresh токенов identity-service",
	}

	var olderThan time.Duration
	purgeCmd := &cobra.Command{
		Use:   "purge",
		Short: "Удалить просроченные refresh токены",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan < 0 {
				return fmt.Errorf("--older-than must not be negative")
			}
			db, err := a.connectDB(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			before := time.Now().UTC().Add(-olderThan)
			n, err := maintenance.PurgeExpiredTokens(cmd.Context(), db.Pool, before)
			if err != nil {
				return err
			}
			a.log.Info("Expired refresh tokens purged", logger.Int64("count", n))

			table := output.NewTableData("PURGED", "EXPIRED BEFORE")
			table.AddRow(strconv.FormatInt(n, 10), before.Format(time.RFC3339))
			return a.printer.Print(table, purgeResult{Purged: n, Before: before})
		},
	}
	purgeCmd.Flags().DurationVar(&olderThan, "older-than", 0, "keep tokens that expired within this duration")

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Показать число активных и просроченных токенов",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.connectDB(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			active, expired, err := maintenance.CountTokens(cmd.Context(), db.Pool, time.Now().UTC())
			if err != nil {
				return err
			}

			table := output.NewTableData("ACTIVE", "EXPIRED")
			table.AddRow(strconv.FormatInt(active, 10), strconv.FormatInt(expired, 10))
			return a.printer.Print(table, tokenStats{Active: active, Expired: expired})
		},
	}

	tokensCmd.AddCommand(purgeCmd, statsCmd)
	return tokensCmd
}
