package main

import (
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"phishguard/internal/services/dispatch"
)

var scanCmd = &cobra.Command{
	Use:   "scan <url>",
	Short: "Scan one URL with both providers and print the combined result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		eng := newEngine(store, cfg, loggingInstaller{})
		res, err := eng.scanner.Scan(ctx, args[0])
		if err != nil {
			return eris.Wrapf(err, "scan %s", args[0])
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

var scanLinksCmd = &cobra.Command{
	Use:   "scan-links <url>...",
	Short: "Batch-scan links and print the ones judged malicious",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		eng := newEngine(store, cfg, loggingInstaller{})
		return printJSON(cmd.OutOrStdout(), dispatch.UnsafeLinks{Unsafe: eng.scanner.ScanBatch(ctx, args)})
	},
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	rootCmd.AddCommand(scanCmd, scanLinksCmd)
}
