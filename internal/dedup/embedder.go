package dedup

import (
	"context"
	"sync"

	"github.com/gioe/aiq/internal/breaker"
	"github.com/gioe/aiq/internal/llm"
)

// Spender is implemented by embedders that track what their calls cost.
type Spender interface {
	// Spent returns the estimated USD spent so far.
	Spent() float64
}

// ProviderEmbedder embeds text with an LLM provider, guarded by that
// provider's circuit breaker.
type ProviderEmbedder struct {
	Provider llm.Provider

	// Model is passed on every request. Empty uses the provider default.
	Model string

	// Breaker may be nil.
	Breaker *breaker.Breaker

	mu    sync.Mutex
	spent float64
}

// Embed implements Embedder.
func (e *ProviderEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx = llm.WithPurpose(ctx, llm.PurposeEmbed)
	var vec []float32
	call := func(ctx context.Context) error {
		resp, err := e.Provider.Embed(ctx, llm.EmbedRequest{Model: e.Model, Text: text})
		if err != nil {
			return err
		}
		e.charge(resp)
		vec = resp.Vector
		return nil
	}
	if e.Breaker == nil {
		return vec, call(ctx)
	}
	if err := breaker.Guard(ctx, e.Breaker, call); err != nil {
		return nil, err
	}
	return vec, nil
}

// Spent implements Spender.
func (e *ProviderEmbedder) Spent() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.spent
}

func (e *ProviderEmbedder) charge(resp *llm.Embedding) {
	model := resp.Model
	if model == "" {
		model = e.Model
	}
	cost := llm.EstimateCost(model, resp.Usage)
	e.mu.Lock()
	e.spent += cost
	e.mu.Unlock()
}
