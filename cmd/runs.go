package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gioe/aiq/internal/ui/theme"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect generation run history",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent generation runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		runs, err := st.Runs().RecentRuns(cmd.Context(), limit)
		if err != nil {
			return fmt.Errorf("query runs: %w", err)
		}
		if len(runs) == 0 {
			fmt.Println("No runs recorded yet.")
			return nil
		}

		fmt.Printf("%-8s  %-19s  %-16s  %5s  %5s  %5s  %5s  %5s  %5s  %9s  %8s\n",
			"Run", "Started", "Status", "Req", "Gen", "Appr", "Dup", "Ins", "Fail", "Cost", "Secs")
		fmt.Println(strings.Repeat("─", 104))

		for _, r := range runs {
			status := r.Status
			if r.DryRun {
				status += "*"
			}
			fmt.Printf("%-8s  %-19s  %s  %5d  %5d  %5d  %5d  %5d  %5d  %9s  %8.1f\n",
				truncate(r.RunID, 8),
				r.StartedAt.Local().Format("2006-01-02 15:04:05"),
				theme.ForStatus(r.Status).Render(fmt.Sprintf("%-16s", status)),
				r.Requested, r.Generated, r.Approved, r.Duplicates, r.Inserted, r.Failed,
				formatCost(r.CostUSD),
				float64(r.DurationMs)/1000,
			)
			if r.FatalReason != "" {
				fmt.Println(theme.Hint.Render("          " + r.FatalReason))
			}
		}
		fmt.Println(theme.Hint.Render("* dry run"))
		return nil
	},
}

func init() {
	runsListCmd.Flags().IntP("limit", "n", 20, "Number of runs to show")

	runsCmd.AddCommand(runsListCmd)
}
