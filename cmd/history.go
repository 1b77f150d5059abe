package cmd

import (
	"fmt"

	"charm.land/lipgloss/v2"
	"github.com/spf13/cobra"

	"github.com/gioe/aiq/internal/store"
	"github.com/gioe/aiq/internal/ui/report"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show finished sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		examinee, _ := cmd.Flags().GetString("examinee")
		sessionID, _ := cmd.Flags().GetString("session")

		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()
		repo := st.ResultRepo()

		if sessionID != "" {
			rs, err := repo.Responses(cmd.Context(), sessionID)
			if err != nil {
				return fmt.Errorf("session %s: %w", sessionID, err)
			}
			lipgloss.Fprintln(cmd.OutOrStdout(), report.Responses(rs))
			return nil
		}

		rows, err := repo.ListResults(cmd.Context(), store.QueryOpts{Limit: limit, ExamineeID: examinee})
		if err != nil {
			return err
		}
		lipgloss.Fprintln(cmd.OutOrStdout(), report.History(rows))
		return nil
	},
}

func init() {
	historyCmd.Flags().Int("limit", 20, "Maximum sessions to show (0 = all)")
	historyCmd.Flags().String("examinee", "", "Only sessions of this examinee")
	historyCmd.Flags().String("session", "", "Show the responses of one session")
}
