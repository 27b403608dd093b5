package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the store schema (sqlite and postgres drivers)",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Store.Driver != "sqlite" && cfg.Store.Driver != "postgres" {
			zap.L().Info("store has no schema to migrate", zap.String("driver", cfg.Store.Driver))
			return nil
		}
		store, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer store.Close()
		zap.L().Info("migrations complete", zap.String("driver", cfg.Store.Driver))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
