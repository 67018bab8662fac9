package llm

import (
	"context"
	"log/slog"
	"time"

	"github.com/gioe/aiq/internal/store"
)

// LoggingProvider is a decorator that records every LLM request as an event.
type LoggingProvider struct {
	inner     Provider
	eventRepo store.EventRepo
}

// WithLogging wraps a Provider with event logging.
func WithLogging(p Provider, repo store.EventRepo) Provider {
	return &LoggingProvider{inner: p, eventRepo: repo}
}

func (l *LoggingProvider) Name() string { return l.inner.Name() }

func (l *LoggingProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	resp, err := l.inner.Generate(ctx, req)

	data := store.LLMRequestEventData{
		Provider:  l.inner.Name(),
		Model:     req.Model,
		Purpose:   PurposeFrom(ctx),
		LatencyMs: time.Since(start).Milliseconds(),
		Success:   err == nil,
	}
	if resp != nil {
		data.Model = resp.Model
		data.InputTokens = resp.Usage.InputTokens
		data.OutputTokens = resp.Usage.OutputTokens
		data.CostUSD = EstimateCost(resp.Model, resp.Usage)
	}
	l.record(ctx, data, err)

	return resp, err
}

func (l *LoggingProvider) Embed(ctx context.Context, req EmbedRequest) (*Embedding, error) {
	start := time.Now()
	emb, err := l.inner.Embed(ctx, req)

	data := store.LLMRequestEventData{
		Provider:  l.inner.Name(),
		Model:     req.Model,
		Purpose:   PurposeEmbed,
		LatencyMs: time.Since(start).Milliseconds(),
		Success:   err == nil,
	}
	if emb != nil {
		data.Model = emb.Model
		data.InputTokens = emb.Usage.InputTokens
		data.CostUSD = EstimateCost(emb.Model, emb.Usage)
	}
	l.record(ctx, data, err)

	return emb, err
}

// record appends the event. A logging failure never fails the request.
func (l *LoggingProvider) record(ctx context.Context, data store.LLMRequestEventData, callErr error) {
	if callErr != nil {
		data.ErrorMessage = callErr.Error()
	}
	// The call's own context may already be cancelled; the event is still
	// worth keeping.
	if err := l.eventRepo.AppendLLMRequest(context.WithoutCancel(ctx), data); err != nil {
		slog.Warn("failed to log LLM request event", "provider", data.Provider, "error", err)
	}
}
