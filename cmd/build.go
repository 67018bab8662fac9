package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gioe/aiq/internal/arbiter"
	"github.com/gioe/aiq/internal/breaker"
	"github.com/gioe/aiq/internal/config"
	"github.com/gioe/aiq/internal/dedup"
	"github.com/gioe/aiq/internal/errclass"
	"github.com/gioe/aiq/internal/generator"
	"github.com/gioe/aiq/internal/llm"
	"github.com/gioe/aiq/internal/pipeline"
	"github.com/gioe/aiq/internal/report"
	"github.com/gioe/aiq/internal/store"
)

// buildPipeline wires providers, breakers, generator, judge and dedup into
// a pipeline backed by st.
func buildPipeline(ctx context.Context, cfg config.Config, st *store.Store, log *slog.Logger) (*pipeline.Pipeline, error) {
	providers, err := llm.NewProviders(ctx, cfg.LLM, st.EventRepo())
	if err != nil {
		return nil, err
	}
	byName := make(map[string]llm.Provider, len(providers))
	members := make([]generator.Member, 0, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
		members = append(members, generator.Member{Provider: p})
	}

	breakers := breaker.NewSet(cfg.Breaker, breaker.WithLogger(log))
	classifier := errclass.NewClassifier()

	genCfg := generator.DefaultConfig()
	genCfg.Default = cfg.Generation.Default
	genCfg.Retry = cfg.LLM.Retry
	genCfg.CallTimeout = cfg.LLM.Timeout
	genCfg.MaxTokens = cfg.Generation.MaxTokens
	genCfg.Temperature = cfg.Generation.Temperature
	gen, err := generator.New(members, breakers, classifier, genCfg, generator.WithLogger(log))
	if err != nil {
		return nil, fmt.Errorf("generator: %w", err)
	}

	judgeCfg := arbiter.DefaultConfig()
	judgeCfg.Routes = cfg.Judge
	judgeCfg.Retry = cfg.LLM.Retry
	judgeCfg.CallTimeout = cfg.LLM.Timeout
	judge, err := arbiter.New(providers, breakers, classifier, judgeCfg, arbiter.WithLogger(log))
	if err != nil {
		return nil, fmt.Errorf("judge: %w", err)
	}

	var cache *dedup.EmbeddingCache
	if name := cfg.Dedup.Provider; name != config.DedupDisabled {
		p, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("embedding provider %q is not enabled", name)
		}
		// Embedding failures must not open the provider's generation circuit.
		b := breaker.New(name+"/embeddings", cfg.Breaker, breaker.WithLogger(log))
		cache = dedup.NewEmbeddingCache(&dedup.ProviderEmbedder{Provider: p, Model: cfg.Dedup.Model, Breaker: b})
	}
	dd := dedup.New(cache, dedup.WithThreshold(cfg.Dedup.Threshold), dedup.WithLogger(log))

	return pipeline.New(pipeline.Deps{
		Generator: gen,
		Evaluator: judge,
		Dedup:     dd,
		Storage:   pipeline.StoreStorage{Repo: st.Questions()},
		Runs:      st.Runs(),
		Reporter:  report.New(cfg.Report, log),
	}, cfg.Pipeline, pipeline.WithLogger(log))
}
