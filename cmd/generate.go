package cmd

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"charm.land/lipgloss/v2"
	"github.com/spf13/cobra"

	"github.com/gioe/aiq/internal/config"
	"github.com/gioe/aiq/internal/llm"
	"github.com/gioe/aiq/internal/pipeline"
	"github.com/gioe/aiq/internal/question"
	"github.com/gioe/aiq/internal/ui/theme"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Run one generation batch",
	Long: `Generate questions, judge them, drop duplicates and store the approved ones.

Exit status: 0 success, 1 partial success, 2 fatal provider error,
3 configuration error, 4 any other failure, 5 every generation provider
unavailable.`,
	Args: cobra.NoArgs,
	RunE: runGenerate,
}

func init() {
	f := generateCmd.Flags()
	f.IntP("count", "n", 10, "Number of questions to generate")
	f.StringSliceP("types", "t", nil, "Question types (default: all)")
	f.StringP("difficulty", "d", "", "Pin every item to one difficulty (default: rotate)")
	f.IntP("concurrency", "c", 0, "Worker count (default: from config)")
	f.Bool("dry-run", false, "Generate, judge and deduplicate without storing")
	f.Bool("distribute", false, "Spread items round-robin across providers")
	f.StringSlice("provider", nil, "Providers to enable, overriding the config")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	req, err := generateRequest(cmd, &cfg)
	if err != nil {
		return configError(err)
	}
	if err := cfg.Validate(); err != nil {
		return configError(err)
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := buildPipeline(ctx, cfg, st, log)
	if err != nil {
		return configError(err)
	}

	m, err := p.Run(ctx, req)
	if errors.Is(err, pipeline.ErrInvalidRequest) {
		return configError(err)
	}
	if err != nil {
		return err
	}
	printRunSummary(cmd.OutOrStdout(), m)

	if code := m.Status.ExitCode(); code != ExitOK {
		return &ExitError{Code: code, Err: fmt.Errorf("run %s finished with status %s", m.RunID, m.Status)}
	}
	return nil
}

// generateRequest applies the command flags to cfg and builds the run request.
func generateRequest(cmd *cobra.Command, cfg *config.Config) (pipeline.Request, error) {
	f := cmd.Flags()

	if providers, _ := f.GetStringSlice("provider"); len(providers) > 0 {
		cfg.LLM.Providers = providers
		cfg.Generation.Default = ""
		cfg.Judge = cfg.Judge.Restrict(providers)
		cfg.Dedup.Provider = ""
		cfg.Resolve()
	}
	if cfg.Enabled(llm.ProviderMock) && cfg.LLM.Mock == nil {
		cfg.LLM.Mock = demoResponder()
		cfg.LLM.MockEmbed = demoEmbed
	}

	count, _ := f.GetInt("count")
	names, _ := f.GetStringSlice("types")
	types, err := question.ParseTypes(names)
	if err != nil {
		return pipeline.Request{}, err
	}

	req := pipeline.Request{
		Count:       count,
		Types:       types,
		Concurrency: cfg.Generation.Concurrency,
		Distribute:  cfg.Generation.Distribute,
	}
	if s, _ := f.GetString("difficulty"); s != "" {
		d, err := question.ParseDifficulty(s)
		if err != nil {
			return pipeline.Request{}, err
		}
		req.Difficulty = &d
	}
	if f.Changed("concurrency") {
		req.Concurrency, _ = f.GetInt("concurrency")
		if req.Concurrency < 1 {
			return pipeline.Request{}, fmt.Errorf("--concurrency must be at least 1")
		}
		cfg.Generation.Concurrency = req.Concurrency
	}
	if f.Changed("distribute") {
		req.Distribute, _ = f.GetBool("distribute")
	}
	req.DryRun, _ = f.GetBool("dry-run")
	if req.Count <= 0 {
		return pipeline.Request{}, fmt.Errorf("--count must be positive, got %d", req.Count)
	}
	return req, nil
}

func printRunSummary(w io.Writer, m *pipeline.RunMetrics) {
	row := func(label string, value any) string {
		return lipgloss.JoinHorizontal(lipgloss.Top,
			theme.Label.Render(label),
			theme.Value.Render(fmt.Sprint(value)))
	}

	status := string(m.Status)
	if m.FatalReason != "" {
		status += ": " + m.FatalReason
	}
	lines := []string{
		theme.Title.Render("Run " + m.RunID),
		"",
		row("Status", theme.ForStatus(string(m.Status)).Render(status)),
		row("Requested", m.Requested),
		row("Generated", m.Generated),
		row("Approved", m.Approved),
		row("Rejected", m.Rejected),
		row("Duplicates", fmt.Sprintf("%d (exact %d, semantic %d)", m.Duplicates(), m.DuplicatesExact, m.DuplicatesSemantic)),
	}
	if m.DryRun {
		lines = append(lines, row("Unique (dry run)", m.Unique))
	} else {
		lines = append(lines, row("Inserted", m.Inserted))
	}
	if m.GenerationFailures+m.EvaluationFailures+m.StoreFailures > 0 {
		lines = append(lines, row("Failures", fmt.Sprintf("generate %d, judge %d, store %d",
			m.GenerationFailures, m.EvaluationFailures, m.StoreFailures)))
	}
	if m.Cancelled > 0 {
		lines = append(lines, row("Cancelled", m.Cancelled))
	}
	if m.NotStarted > 0 {
		lines = append(lines, row("Not started", m.NotStarted))
	}
	lines = append(lines,
		row("Cost", formatCost(m.CostUSD)),
		row("Duration", m.Duration.Round(time.Millisecond)),
	)

	if providers := m.Providers(); len(providers) > 0 {
		lines = append(lines, "", theme.Header.Render("By provider"))
		for _, p := range providers {
			lines = append(lines, row(p, m.ByProvider[p]))
		}
	}

	if len(m.ByStratum) > 0 {
		lines = append(lines, "", theme.Header.Render("Stored by stratum"))
		strata := slices.SortedFunc(maps.Keys(m.ByStratum), func(a, b question.Stratum) int {
			return strings.Compare(a.String(), b.String())
		})
		for _, s := range strata {
			lines = append(lines, row(s.String(), m.ByStratum[s]))
		}
	}

	stages := []pipeline.Stage{pipeline.StageGenerate, pipeline.StageEvaluate, pipeline.StageDedup, pipeline.StageStore}
	var latency []string
	for _, s := range stages {
		l, ok := m.Latency[s]
		if !ok || l.Count == 0 {
			continue
		}
		latency = append(latency, row(string(s), fmt.Sprintf("mean %s, max %s", l.Mean().Round(time.Millisecond), l.Max.Round(time.Millisecond))))
	}
	if len(latency) > 0 {
		lines = append(lines, "", theme.Header.Render("Latency"))
		lines = append(lines, latency...)
	}

	if len(m.Rejections) > 0 {
		lines = append(lines, "", theme.Header.Render("Rejections"))
		for _, reason := range slices.Sorted(maps.Keys(m.Rejections)) {
			lines = append(lines, row(reason, m.Rejections[reason]))
		}
	}

	fmt.Fprintln(w, theme.Card.Render(strings.Join(lines, "\n")))
}
