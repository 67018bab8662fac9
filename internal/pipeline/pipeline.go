// Package pipeline runs generation batches: each item is generated, judged,
// checked for duplicates and stored by a fixed pool of workers.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gioe/aiq/internal/dedup"
	"github.com/gioe/aiq/internal/errclass"
	"github.com/gioe/aiq/internal/generator"
	"github.com/gioe/aiq/internal/question"
	"github.com/gioe/aiq/internal/report"
	"github.com/gioe/aiq/internal/store"
)

// ErrInvalidRequest is returned by Run for a malformed Request.
var ErrInvalidRequest = errors.New("invalid run request")

// Generator produces one candidate per item spec.
type Generator interface {
	GenerateOne(ctx context.Context, spec generator.ItemSpec) (*question.GeneratedQuestion, error)
}

// Availability is implemented by generators that track provider circuits.
// Run stops dispatch once AllOpen reports true after a failed item.
type Availability interface {
	AllOpen() bool
}

// Evaluator judges a candidate and always returns its terminal verdict.
type Evaluator interface {
	Evaluate(ctx context.Context, q question.GeneratedQuestion) (question.EvaluatedQuestion, error)
}

// Request describes one run.
type Request struct {
	Count int

	// Types are assigned round-robin. Empty means every type.
	Types []question.QuestionType

	// Difficulty pins every item. Nil rotates through all difficulties.
	Difficulty *question.Difficulty

	// Concurrency is the worker count. Values below 1 mean 1.
	Concurrency int

	// DryRun generates, judges and deduplicates without storing.
	DryRun bool

	// Distribute spreads items round-robin over generation providers.
	Distribute bool
}

func (r Request) validate() error {
	if r.Count <= 0 {
		return fmt.Errorf("%w: count must be positive, got %d", ErrInvalidRequest, r.Count)
	}
	for _, t := range r.Types {
		if !t.Valid() {
			return fmt.Errorf("%w: unknown question type %q", ErrInvalidRequest, t)
		}
	}
	if r.Difficulty != nil && !r.Difficulty.Valid() {
		return fmt.Errorf("%w: unknown difficulty %q", ErrInvalidRequest, *r.Difficulty)
	}
	return nil
}

// Config tunes the run loop.
type Config struct {
	// GracePeriod is how long in-flight items may keep running after the
	// run is cancelled.
	GracePeriod time.Duration `yaml:"grace_period"`

	// AvoidSamples is how many recent questions per type are shown to the
	// generator as examples not to repeat.
	AvoidSamples int `yaml:"avoid_samples"`
}

// DefaultConfig returns run loop defaults.
func DefaultConfig() Config {
	return Config{
		GracePeriod:  30 * time.Second,
		AvoidSamples: 8,
	}
}

// Deps are the collaborators of a Pipeline. Runs and Reporter are optional.
type Deps struct {
	Generator Generator
	Evaluator Evaluator
	Dedup     *dedup.Deduplicator
	Storage   Storage
	Runs      store.RunRepo
	Reporter  report.Reporter
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithClock replaces time.Now for run timing.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// Pipeline executes runs. A Pipeline may run several batches one after
// another; each Run builds its own dedup index.
type Pipeline struct {
	deps   Deps
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Pipeline.
func New(deps Deps, cfg Config, opts ...Option) (*Pipeline, error) {
	switch {
	case deps.Generator == nil:
		return nil, errors.New("pipeline: generator is required")
	case deps.Evaluator == nil:
		return nil, errors.New("pipeline: evaluator is required")
	case deps.Storage == nil:
		return nil, errors.New("pipeline: storage is required")
	}
	if deps.Dedup == nil {
		deps.Dedup = dedup.New(nil)
	}
	if deps.Reporter == nil {
		deps.Reporter = report.Nop{}
	}
	p := &Pipeline{
		deps:   deps,
		cfg:    cfg,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// run is the state shared by the workers of one Run.
type run struct {
	req      Request
	idx      *dedup.Index
	metrics  *RunMetrics
	halted   chan struct{}
	haltOnce sync.Once
}

func (r *run) halt() {
	r.haltOnce.Do(func() { close(r.halted) })
}

func (r *run) isHalted() bool {
	select {
	case <-r.halted:
		return true
	default:
		return false
	}
}

// Run executes req and returns its metrics. Item failures never fail the
// run; the error is non-nil only when the request is invalid or the
// inventory cannot be loaded. A critical provider error stops dispatch and
// ends the run with StatusFatal; a failed item after which every generation
// circuit is open ends it with StatusUnavailable. Cancelling ctx stops dispatch and gives
// in-flight items GracePeriod to finish before they are cancelled too.
func (p *Pipeline) Run(ctx context.Context, req Request) (*RunMetrics, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if len(req.Types) == 0 {
		req.Types = question.AllTypes()
	}
	workers := max(req.Concurrency, 1)

	runID := uuid.NewString()
	r := &run{
		req:     req,
		idx:     dedup.NewIndex(),
		metrics: newRunMetrics(runID, req.Count, req.DryRun, p.now().UTC()),
		halted:  make(chan struct{}),
	}
	log := p.logger.With("run", runID)
	log.Info("run started",
		"count", req.Count,
		"types", req.Types,
		"concurrency", workers,
		"dry_run", req.DryRun,
	)

	embedSpent := p.deps.Dedup.Spent()
	avoid, err := p.warm(ctx, r, log)
	if err != nil {
		return nil, fmt.Errorf("warm dedup index: %w", err)
	}

	specs := generator.Plan(generator.BatchRequest{
		Count:      req.Count,
		Types:      req.Types,
		Difficulty: req.Difficulty,
		Distribute: req.Distribute,
	})

	// Items run on a context that outlives ctx by the grace period.
	workCtx, cancelWork := context.WithCancel(WithRunID(context.WithoutCancel(ctx), runID))
	defer cancelWork()

	jobs := make(chan generator.ItemSpec)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for spec := range jobs {
				switch {
				case r.isHalted():
					r.metrics.notStarted(1)
				case ctx.Err() != nil:
					r.metrics.cancelled(false)
				default:
					p.process(workCtx, r, spec, log)
				}
			}
		}()
	}

	next := 0
dispatch:
	for next < len(specs) {
		if r.isHalted() || ctx.Err() != nil {
			break
		}
		spec := specs[next]
		spec.Avoid = avoid[spec.Type]
		select {
		case jobs <- spec:
			next++
		case <-r.halted:
			break dispatch
		case <-ctx.Done():
			break dispatch
		}
	}
	close(jobs)

	if remaining := len(specs) - next; remaining > 0 {
		if ctx.Err() != nil {
			for range remaining {
				r.metrics.cancelled(false)
			}
		} else {
			r.metrics.notStarted(remaining)
		}
		log.Warn("dispatch stopped", "not_started", remaining, "halted", r.isHalted())
	}

	p.wait(ctx, &wg, cancelWork, log)
	r.metrics.addCost(p.deps.Dedup.Spent() - embedSpent)
	r.metrics.finish(p.now().UTC())
	p.finish(ctx, r.metrics, log)
	return r.metrics, nil
}

// wait blocks until every worker is done. Once ctx is cancelled the workers
// get GracePeriod before their context is cancelled as well.
func (p *Pipeline) wait(ctx context.Context, wg *sync.WaitGroup, cancelWork context.CancelFunc, log *slog.Logger) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return
	case <-ctx.Done():
	}

	timer := time.NewTimer(p.cfg.GracePeriod)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		log.Warn("grace period elapsed, cancelling in-flight items", "grace", p.cfg.GracePeriod)
		cancelWork()
		<-done
	}
}

// warm loads the inventory of every requested type into the dedup index and
// returns the recent texts per type for the generator's avoid list.
func (p *Pipeline) warm(ctx context.Context, r *run, log *slog.Logger) (map[question.QuestionType][]string, error) {
	avoid := make(map[question.QuestionType][]string, len(r.req.Types))
	for _, t := range r.req.Types {
		rows, err := p.deps.Storage.LoadActiveQuestionsByType(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("load %s questions: %w", t, err)
		}
		existing := make([]dedup.Existing, len(rows))
		texts := make([]string, len(rows))
		for i, row := range rows {
			existing[i] = dedup.Existing{ID: row.ID, Text: row.Text, Type: t, Embedding: row.Embedding}
			texts[i] = row.Text
		}

		computed, err := p.deps.Dedup.Warm(ctx, r.idx, existing)
		if err != nil {
			return nil, err
		}
		if !r.req.DryRun {
			for _, c := range computed {
				if err := p.deps.Storage.SaveEmbedding(ctx, c.ID, c.Embedding); err != nil {
					log.Warn("saving embedding failed", "question", c.ID, "error", err)
				}
			}
		}

		if n := p.cfg.AvoidSamples; n > 0 && len(texts) > n {
			texts = texts[len(texts)-n:]
		}
		avoid[t] = texts
		log.Debug("inventory loaded", "type", t, "questions", len(rows), "embedded", len(computed))
	}
	return avoid, nil
}

// process takes one item through generate, evaluate, dedup and store.
func (p *Pipeline) process(ctx context.Context, r *run, spec generator.ItemSpec, log *slog.Logger) {
	m := r.metrics
	log = log.With("item", spec.Slot, "type", spec.Type, "difficulty", spec.Difficulty)

	start := p.now()
	q, err := p.deps.Generator.GenerateOne(ctx, spec)
	m.observe(StageGenerate, p.now().Sub(start))
	if err != nil {
		if ctx.Err() != nil {
			m.cancelled(false)
			return
		}
		m.generationFailed()
		log.Warn("item generation failed", "error", err)
		p.checkCritical(r, err, log)
		p.checkAvailable(r, log)
		return
	}
	m.generated(q.SourceProvider, q.CostUSD)
	log = log.With("question", q.ID, "provider", q.SourceProvider)

	start = p.now()
	ev, err := p.deps.Evaluator.Evaluate(ctx, *q)
	m.observe(StageEvaluate, p.now().Sub(start))
	m.addCost(ev.JudgeCostUSD)
	if err != nil {
		if ctx.Err() != nil {
			m.cancelled(true)
			return
		}
		m.evaluated(false, true)
		log.Warn("item evaluation failed", "error", err)
		p.checkCritical(r, err, log)
		return
	}
	m.evaluated(ev.Approved, false)
	if !ev.Approved {
		log.Info("question rejected by judge", "score", ev.Score, "judge", ev.JudgeProvider)
		return
	}

	start = p.now()
	res, release, err := p.deps.Dedup.Claim(ctx, &ev.GeneratedQuestion, r.idx)
	m.observe(StageDedup, p.now().Sub(start))
	if err != nil {
		m.cancelled(true)
		return
	}
	m.deduplicated(res)
	if res.IsDuplicate {
		log.Info("duplicate rejected", "method", res.Method, "matched", *res.MatchedQuestionID, "similarity", *res.Similarity)
		return
	}
	if r.req.DryRun {
		log.Info("question accepted (dry run)", "score", ev.Score)
		return
	}

	start = p.now()
	id, err := p.deps.Storage.Insert(ctx, ev)
	m.observe(StageStore, p.now().Sub(start))
	if err != nil {
		release()
		switch {
		case errors.Is(err, store.ErrDuplicateKey):
			m.lostInsertRace()
			log.Info("duplicate rejected by storage", "error", err)
		case ctx.Err() != nil:
			m.cancelled(true)
		default:
			m.storeFailed()
			log.Error("storing question failed", "error", err)
		}
		return
	}
	m.stored(ev.Stratum())
	log.Info("question stored", "id", id, "score", ev.Score)

	if res.Embedding != nil {
		if err := p.deps.Storage.SaveEmbedding(ctx, id, res.Embedding); err != nil {
			log.Warn("saving embedding failed", "question", id, "error", err)
		}
	}
}

// checkCritical halts dispatch when err carries a critical classification.
func (p *Pipeline) checkCritical(r *run, err error, log *slog.Logger) {
	var ce *errclass.ClassifiedError
	if !errors.As(err, &ce) || !ce.Critical() {
		return
	}
	if r.metrics.halt(ce.Error()) {
		log.Error("critical provider error, halting dispatch",
			"provider", ce.Provider,
			"category", ce.Category,
			"action", ce.RecommendedAction,
		)
	}
	r.halt()
}

// checkAvailable halts dispatch once no generation provider can be called.
func (p *Pipeline) checkAvailable(r *run, log *slog.Logger) {
	a, ok := p.deps.Generator.(Availability)
	if !ok || !a.AllOpen() {
		return
	}
	if r.metrics.unavailable(generator.ErrAllProvidersUnavailable.Error()) {
		log.Error("every generation circuit is open, halting dispatch")
	}
	r.halt()
}

// finish persists and reports the run. Failures are logged only.
func (p *Pipeline) finish(ctx context.Context, m *RunMetrics, log *slog.Logger) {
	ctx = context.WithoutCancel(ctx)
	if p.deps.Runs != nil {
		if err := p.deps.Runs.SaveRun(ctx, m.Record()); err != nil {
			log.Warn("saving run failed", "error", err)
		}
	}
	if err := p.deps.Reporter.Report(ctx, m.Summary()); err != nil {
		log.Warn("reporting run failed", "error", err)
	}
	log.Info("run finished",
		"status", m.Status,
		"generated", m.Generated,
		"approved", m.Approved,
		"inserted", m.Inserted,
		"duplicates", m.DuplicatesExact+m.DuplicatesSemantic,
		"cost_usd", m.CostUSD,
		"duration", m.Duration,
	)
}
