package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/mirrorbucket/credmon/config"
	"github.com/mirrorbucket/credmon/db"
	"github.com/mirrorbucket/credmon/pkg/clierr"
)

// historyCmd creates the command listing recent renewal attempts.
func historyCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent proxy renewal attempts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if err := db.InitDB(cfg.StateDir); err != nil {
				return clierr.New(clierr.Config, "state directory is unusable: "+cfg.StateDir, err)
			}
			defer db.CloseDB()

			repo := db.NewRenewalRepository(db.Db)
			events, err := repo.Recent(cmd.Context(), limit)
			if err != nil {
				return clierr.New(clierr.Internal, "failed to read renewal history", err)
			}
			if len(events) == 0 {
				cmd.Println("No renewal attempts recorded yet.")
				return nil
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"Started At", "Reason", "Source", "Outcome", "Took", "Error"})
			table.SetAlignment(tablewriter.ALIGN_LEFT)       // Align all columns to the left
			table.SetHeaderAlignment(tablewriter.ALIGN_LEFT) // Align headers to the left

			for _, event := range events {
				table.Append([]string{
					event.StartedAt.Local().Format(time.RFC3339),
					event.Reason,
					event.Source,
					event.Outcome,
					fmt.Sprintf("%dms", event.TookMs),
					event.Error,
				})
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "Number of attempts to show")

	return cmd
}
