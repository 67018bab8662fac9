package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/gioe/aiq/internal/llm"
	"github.com/gioe/aiq/internal/store"
)

var llmCmd = &cobra.Command{
	Use:   "llm",
	Short: "Inspect logged LLM requests",
}

var llmListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent LLM requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		purpose, _ := cmd.Flags().GetString("purpose")
		provider, _ := cmd.Flags().GetString("provider")

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		s, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer s.Close()

		events, err := s.EventRepo().QueryLLMRequests(cmd.Context(), store.QueryOpts{Limit: limit})
		if err != nil {
			return fmt.Errorf("query events: %w", err)
		}

		if len(events) == 0 {
			fmt.Println("No LLM requests found.")
			return nil
		}

		// Header.
		fmt.Printf("%-6s  %-19s  %-12s  %-12s  %-28s  %-6s  %-6s  %-7s  %-9s  %s\n",
			"Seq", "Timestamp", "Provider", "Purpose", "Model", "In", "Out", "Ms", "Cost", "OK")
		fmt.Println(strings.Repeat("─", 120))

		for _, e := range events {
			if purpose != "" && e.Purpose != purpose {
				continue
			}
			if provider != "" && e.Provider != provider {
				continue
			}
			ok := "✓"
			if !e.Success {
				ok = "✗ " + truncate(e.ErrorMessage, 40)
			}
			fmt.Printf("%-6d  %-19s  %-12s  %-12s  %-28s  %-6d  %-6d  %-7d  %-9s  %s\n",
				e.Sequence,
				e.Timestamp.Local().Format("2006-01-02 15:04:05"),
				truncate(e.Provider, 12),
				truncate(e.Purpose, 12),
				truncate(e.Model, 28),
				e.InputTokens,
				e.OutputTokens,
				e.LatencyMs,
				formatCost(e.CostUSD),
				ok,
			)
		}
		return nil
	},
}

var llmStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show token usage and cost per provider and model",
	RunE: func(cmd *cobra.Command, args []string) error {
		since, _ := cmd.Flags().GetDuration("since")

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		s, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer s.Close()

		var opts store.QueryOpts
		if since > 0 {
			opts.From = time.Now().Add(-since)
		}
		stats, err := s.EventRepo().LLMUsage(cmd.Context(), opts)
		if err != nil {
			return fmt.Errorf("query usage: %w", err)
		}

		if len(stats) == 0 {
			fmt.Println("No LLM usage recorded yet.")
			return nil
		}

		fmt.Println("Usage by Model")
		fmt.Println(strings.Repeat("─", 100))
		fmt.Printf("%-12s  %-28s  %6s  %6s  %10s  %10s  %8s  %10s\n",
			"Provider", "Model", "Calls", "Fail", "Input", "Output", "Avg Ms", "Cost")
		fmt.Println(strings.Repeat("─", 100))

		var totalCalls, totalFail, totalIn, totalOut int
		var totalCost float64
		var unknownModels []string
		for _, st := range stats {
			cost := formatCost(st.CostUSD)
			if st.CostUSD == 0 && llm.LookupCost(st.Model) == nil {
				cost = "?"
				unknownModels = append(unknownModels, st.Model)
			}
			fmt.Printf("%-12s  %-28s  %6d  %6d  %10d  %10d  %8.0f  %10s\n",
				truncate(st.Provider, 12), truncate(st.Model, 28),
				st.Requests, st.Failures, st.InputTokens, st.OutputTokens, st.AvgLatencyMs, cost)
			totalCalls += st.Requests
			totalFail += st.Failures
			totalIn += st.InputTokens
			totalOut += st.OutputTokens
			totalCost += st.CostUSD
		}

		fmt.Println(strings.Repeat("─", 100))
		label := "TOTAL"
		if len(unknownModels) > 0 {
			label = "TOTAL (partial)"
		}
		fmt.Printf("%-42s  %6d  %6d  %10d  %10d  %8s  %10s\n",
			label, totalCalls, totalFail, totalIn, totalOut, "", formatCost(totalCost))

		if len(unknownModels) > 0 {
			fmt.Printf("\nPricing unavailable for: %s\n", strings.Join(unknownModels, ", "))
		}
		return nil
	},
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func formatCost(usd float64) string {
	if usd < 0.01 {
		return fmt.Sprintf("$%.4f", usd)
	}
	return fmt.Sprintf("$%.2f", usd)
}

func init() {
	llmListCmd.Flags().IntP("limit", "n", 20, "Number of requests to show")
	llmListCmd.Flags().StringP("purpose", "p", "", "Filter by purpose (question-gen, judge, embedding)")
	llmListCmd.Flags().String("provider", "", "Filter by provider")
	llmStatsCmd.Flags().Duration("since", 0, "Only count requests newer than this (e.g. 24h)")

	llmCmd.AddCommand(llmListCmd)
	llmCmd.AddCommand(llmStatsCmd)
}
