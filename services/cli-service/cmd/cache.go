package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"SocialMeshPlatform/pkg/cache"
	"SocialMeshPlatform/services/cli-service/internal/output"
)

// Пространства имен кэша, которые используют сервисы
var cacheNamespaces = []string{"post", "search"}

type flushResult struct {
	Namespace string `json:"namespace" yaml:"namespace"`
	Deleted   int    `json:"deleted" yaml:"deleted"`
}

func newCacheCommand(a *app) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Управление кэшем Redis",
	}

	var namespaces []string
	flushCmd := &cobra.Command{
		Use:   "flush",
		Short: "Удалить все ключи пространства имен",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, ns := range namespaces {
				if !knownNamespace(ns) {
					return fmt.Errorf("unknown cache namespace %q, must be one of: %v", ns, cacheNamespaces)
				}
			}

			client, err := a.connectRedis(cmd.Context())
			if err != nil {
				return err
			}
			defer client.Close()

			opts := cache.OptionsFromConfig(a.cfg.Cache)
			table := output.NewTableData("NAMESPACE", "DELETED")
			results := make([]flushResult, 0, len(namespaces))
			for _, ns := range namespaces {
				n, err := cache.New(client.Client, ns, opts, a.log).Flush(cmd.Context())
				if err != nil {
					return fmt.Errorf("flush %s: %w", ns, err)
				}
				results = append(results, flushResult{Namespace: ns, Deleted: n})
				table.AddRow(ns, strconv.Itoa(n))
			}
			return a.printer.Print(table, results)
		},
	}
	flushCmd.Flags().StringSliceVarP(&namespaces, "namespace", "n", cacheNamespaces, "cache namespaces to flush")

	cacheCmd.AddCommand(flushCmd)
	return cacheCmd
}

func knownNamespace(ns string) bool {
	for _, known := range cacheNamespaces {
		if ns == known {
			return true
		}
	}
	return false
}
