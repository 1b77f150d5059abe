package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"charm.land/lipgloss/v2"
	"github.com/spf13/cobra"

	"github.com/gioe/aiq/internal/itempool"
	"github.com/gioe/aiq/internal/poolfetch"
	"github.com/gioe/aiq/internal/ui/report"
	"github.com/gioe/aiq/internal/ui/theme"
)

var poolCmd = &cobra.Command{
	Use:   "pool",
	Short: "Manage calibrated item pools",
}

var poolValidateCmd = &cobra.Command{
	Use:   "validate <file|url>",
	Short: "Check a pool document and report refused items",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		checksums, _ := cmd.Flags().GetString("checksums")
		dec, err := decodePool(cmd.Context(), args[0], checksums)
		if err != nil {
			return err
		}
		lipgloss.Fprintln(cmd.OutOrStdout(), report.PoolCheck(args[0], dec))
		return nil
	},
}

var poolImportCmd = &cobra.Command{
	Use:   "import <file|url>",
	Short: "Store a pool snapshot as the current pool",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		checksums, _ := cmd.Flags().GetString("checksums")
		dec, err := decodePool(cmd.Context(), args[0], checksums)
		if err != nil {
			return err
		}
		for _, rej := range dec.Rejected {
			slog.Warn("item refused", "source", args[0], "error", rej)
		}
		if _, err := itempool.NewPool(dec.Snapshot); err != nil {
			return err
		}

		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.PoolRepo().SaveSnapshot(cmd.Context(), dec.Snapshot); err != nil {
			return fmt.Errorf("import pool %s: %w", dec.Snapshot.Version, err)
		}
		lipgloss.Fprintln(cmd.OutOrStdout(), theme.Good.Render(
			fmt.Sprintf("Imported pool %s (%d items, %d refused)", dec.Snapshot.Version, len(dec.Snapshot.Items), len(dec.Rejected))))
		return nil
	},
}

var poolListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored pool snapshots",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		infos, err := st.PoolRepo().Versions(cmd.Context())
		if err != nil {
			return err
		}
		lipgloss.Fprintln(cmd.OutOrStdout(), report.Pools(infos))
		return nil
	},
}

func init() {
	poolValidateCmd.Flags().String("checksums", "", "URL of a checksums file for remote pools")
	poolImportCmd.Flags().String("checksums", "", "URL of a checksums file for remote pools")

	poolCmd.AddCommand(poolValidateCmd)
	poolCmd.AddCommand(poolImportCmd)
	poolCmd.AddCommand(poolListCmd)
}

// decodePool reads a pool document from a local path or an HTTP(S) URL,
// screening items against the configured calibration filter.
func decodePool(ctx context.Context, src, checksums string) (*itempool.Decoded, error) {
	if !poolfetch.IsRemote(src) {
		return itempool.LoadFile(src, cfg.Calibration)
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	f := poolfetch.NewFetcher(poolfetch.WithFilter(cfg.Calibration))
	return f.Fetch(ctx, &poolfetch.FetchInput{URL: src, ChecksumsURL: checksums}, func(p poolfetch.FetchProgress) {
		slog.Info(p.Message, "stage", p.Stage)
	})
}
