package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var blockCmd = &cobra.Command{
	Use:   "block <domain>",
	Short: "Persist a block rule for a domain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		eng := newEngine(store, cfg, loggingInstaller{})
		rule, err := eng.blocking.AddBlockRule(ctx, args[0])
		if err != nil {
			return eris.Wrapf(err, "block %s", args[0])
		}
		return printJSON(cmd.OutOrStdout(), rule)
	},
}

func init() {
	rootCmd.AddCommand(blockCmd)
}
