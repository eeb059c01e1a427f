// recordsctl is the operations CLI: run digests and snapshots by hand,
// blacklist a sender domain, seed agencies from YAML.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"openrecords/internal/config"
	"openrecords/internal/db"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "recordsctl",
		Short: "OpenRecords operations CLI",
	}

	rootCmd.AddCommand(digestCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(blacklistCmd())
	rootCmd.AddCommand(importCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// connect loads config and opens the pool. Every subcommand needs both.
func connect(ctx context.Context) (*config.Config, *pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	return cfg, pool, nil
}
