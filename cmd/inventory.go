package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gioe/aiq/internal/question"
	"github.com/gioe/aiq/internal/ui/theme"
)

var inventoryCmd = &cobra.Command{
	Use:   "inventory",
	Short: "Count active questions by type and difficulty",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		counts, err := st.Questions().CountByStratum(cmd.Context())
		if err != nil {
			return fmt.Errorf("count questions: %w", err)
		}

		difficulties := question.AllDifficulties()
		fmt.Printf("%-10s", "Type")
		for _, d := range difficulties {
			fmt.Printf("  %8s", d)
		}
		fmt.Printf("  %8s\n", "Total")
		fmt.Println(strings.Repeat("─", 10+10*(len(difficulties)+1)))

		colTotals := make([]int, len(difficulties))
		var total int
		for _, t := range question.AllTypes() {
			fmt.Printf("%-10s", t)
			var row int
			for i, d := range difficulties {
				n := counts[question.Stratum{Type: t, Difficulty: d}]
				fmt.Printf("  %8d", n)
				row += n
				colTotals[i] += n
			}
			fmt.Printf("  %8d\n", row)
			total += row
		}

		fmt.Println(strings.Repeat("─", 10+10*(len(difficulties)+1)))
		fmt.Printf("%-10s", "TOTAL")
		for _, n := range colTotals {
			fmt.Printf("  %8d", n)
		}
		fmt.Printf("  %s\n", theme.Title.Render(fmt.Sprintf("%8d", total)))
		return nil
	},
}
