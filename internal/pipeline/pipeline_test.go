package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gioe/aiq/internal/arbiter"
	"github.com/gioe/aiq/internal/breaker"
	"github.com/gioe/aiq/internal/dedup"
	"github.com/gioe/aiq/internal/errclass"
	"github.com/gioe/aiq/internal/generator"
	"github.com/gioe/aiq/internal/llm"
	"github.com/gioe/aiq/internal/question"
	"github.com/gioe/aiq/internal/report"
	"github.com/gioe/aiq/internal/store"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// memStorage is an in-memory Storage enforcing unique text hashes.
type memStorage struct {
	mu         sync.Mutex
	existing   map[question.QuestionType][]store.IndexedQuestion
	hashes     map[string]bool
	inserted   []question.EvaluatedQuestion
	runIDs     []string
	embeddings map[uuid.UUID][]float32
	insertErr  error
}

func newMemStorage() *memStorage {
	return &memStorage{
		existing:   map[question.QuestionType][]store.IndexedQuestion{},
		hashes:     map[string]bool{},
		embeddings: map[uuid.UUID][]float32{},
	}
}

func (s *memStorage) seed(t question.QuestionType, text string) uuid.UUID {
	id := uuid.New()
	s.existing[t] = append(s.existing[t], store.IndexedQuestion{ID: id, Text: text})
	s.hashes[question.TextHash(text)] = true
	return id
}

func (s *memStorage) Insert(ctx context.Context, q question.EvaluatedQuestion) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return uuid.Nil, s.insertErr
	}
	h := question.TextHash(q.Text)
	if s.hashes[h] {
		return uuid.Nil, store.ErrDuplicateKey
	}
	s.hashes[h] = true
	s.existing[q.Type] = append(s.existing[q.Type], store.IndexedQuestion{ID: q.ID, Text: q.Text})
	s.inserted = append(s.inserted, q)
	s.runIDs = append(s.runIDs, RunIDFrom(ctx))
	return q.ID, nil
}

func (s *memStorage) LoadActiveQuestionsByType(ctx context.Context, t question.QuestionType) ([]store.IndexedQuestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]store.IndexedQuestion(nil), s.existing[t]...), nil
}

func (s *memStorage) SaveEmbedding(ctx context.Context, id uuid.UUID, vec []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.embeddings[id] = vec
	return nil
}

type memRuns struct {
	mu   sync.Mutex
	runs []store.RunRecord
}

func (r *memRuns) SaveRun(ctx context.Context, rec store.RunRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, rec)
	return nil
}

func (r *memRuns) RecentRuns(ctx context.Context, limit int) ([]store.RunRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]store.RunRecord(nil), r.runs...), nil
}

type memReporter struct {
	summaries []report.Summary
	err       error
}

func (r *memReporter) Report(ctx context.Context, s report.Summary) error {
	r.summaries = append(r.summaries, s)
	return r.err
}

// uniqueQuestions answers generation calls with a new question each time.
func uniqueQuestions() llm.MockFunc {
	var n atomic.Int64
	return func(ctx context.Context, req llm.Request) (*llm.Response, error) {
		i := n.Add(1)
		return questionResponse(fmt.Sprintf("Puzzle %d: which number comes next after %d, %d?", i, i, i+1), req.Model), nil
	}
}

// sameQuestion answers every generation call with the same text.
func sameQuestion(ctx context.Context, req llm.Request) (*llm.Response, error) {
	return questionResponse("Which number comes next: 2, 4, 6, 8?", req.Model), nil
}

func questionResponse(text, model string) *llm.Response {
	body, _ := json.Marshal(map[string]any{
		"question_text":  text,
		"answer_options": []string{"9", "10", "12"},
		"correct_answer": "10",
		"explanation":    "Add the step each time.",
		"stimulus":       "7 3 9 1",
	})
	return &llm.Response{Content: body, Model: model, Usage: llm.Usage{InputTokens: 100, OutputTokens: 50, TotalTokens: 150}}
}

func verdict(score float64) llm.MockFunc {
	return func(ctx context.Context, req llm.Request) (*llm.Response, error) {
		body, _ := json.Marshal(map[string]any{"score": score, "rationale": "ok"})
		return &llm.Response{Content: body, Model: req.Model}, nil
	}
}

func failing(code int, msg string) llm.MockFunc {
	return func(ctx context.Context, req llm.Request) (*llm.Response, error) {
		return nil, &llm.ProviderError{Provider: "mock", StatusCode: code, Message: msg}
	}
}

func mockProvider(name string, fn llm.MockFunc) *llm.MockProvider {
	m := llm.NewMockProvider(name)
	m.GenerateFunc = fn
	return m
}

func newGenerator(t *testing.T, set *breaker.Set, providers ...*llm.MockProvider) *generator.Generator {
	t.Helper()
	cfg := generator.DefaultConfig()
	cfg.Retry.InitialWait = 0
	cfg.Retry.MaxWait = 0
	cfg.CallTimeout = time.Second
	members := make([]generator.Member, len(providers))
	for i, p := range providers {
		members[i] = generator.Member{Provider: p, Model: p.Name() + "-model"}
	}
	g, err := generator.New(members, set, errclass.NewClassifier(), cfg, generator.WithLogger(quiet))
	require.NoError(t, err)
	return g
}

func newArbiter(t *testing.T, set *breaker.Set, judge *llm.MockProvider) *arbiter.Arbiter {
	t.Helper()
	cfg := arbiter.DefaultConfig()
	cfg.Routes = arbiter.RoutingTable{Default: arbiter.Route{Provider: judge.Name(), Model: "judge-model"}}
	cfg.Retry.InitialWait = 0
	cfg.Retry.MaxWait = 0
	cfg.CallTimeout = time.Second
	a, err := arbiter.New([]llm.Provider{judge}, set, errclass.NewClassifier(), cfg, arbiter.WithLogger(quiet))
	require.NoError(t, err)
	return a
}

func newPipeline(t *testing.T, deps Deps) *Pipeline {
	t.Helper()
	cfg := DefaultConfig()
	cfg.GracePeriod = 50 * time.Millisecond
	p, err := New(deps, cfg, WithLogger(quiet))
	require.NoError(t, err)
	return p
}

func TestRun_StoresApprovedQuestions(t *testing.T) {
	set := breaker.NewSet(breaker.DefaultConfig(), breaker.WithLogger(quiet))
	storage := newMemStorage()
	runs := &memRuns{}
	rep := &memReporter{}
	p := newPipeline(t, Deps{
		Generator: newGenerator(t, set, mockProvider("openai", uniqueQuestions())),
		Evaluator: newArbiter(t, set, mockProvider("anthropic", verdict(0.9))),
		Storage:   storage,
		Runs:      runs,
		Reporter:  rep,
	})

	m, err := p.Run(context.Background(), Request{
		Count:       6,
		Types:       []question.QuestionType{question.TypePattern, question.TypeLogic},
		Concurrency: 2,
	})
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, m.Status)
	assert.Equal(t, 6, m.Generated)
	assert.Equal(t, 6, m.Approved)
	assert.Equal(t, 6, m.Inserted)
	assert.Equal(t, 6, m.Terminal())
	assert.Equal(t, 6, m.ByProvider["openai"])
	assert.Equal(t, 6, m.SemanticSkipped, "no embedder configured")
	assert.Equal(t, 6, m.Latency[StageGenerate].Count)
	assert.Equal(t, 6, m.Latency[StageStore].Count)

	perStratum := 0
	for s, n := range m.ByStratum {
		assert.Contains(t, []question.QuestionType{question.TypePattern, question.TypeLogic}, s.Type)
		perStratum += n
	}
	assert.Equal(t, 6, perStratum)

	require.Len(t, storage.inserted, 6)
	for _, id := range storage.runIDs {
		assert.Equal(t, m.RunID, id)
	}

	require.Len(t, runs.runs, 1)
	assert.Equal(t, "success", runs.runs[0].Status)
	assert.Equal(t, 6, runs.runs[0].Inserted)

	require.Len(t, rep.summaries, 1)
	assert.Equal(t, 6, rep.summaries[0].Inserted)
	assert.Equal(t, "success", rep.summaries[0].Status)
}

func TestRun_FailingProviderStillTerminatesEveryItem(t *testing.T) {
	set := breaker.NewSet(breaker.Config{FailureThreshold: 2, RecoveryTimeout: time.Hour}, breaker.WithLogger(quiet))
	a := mockProvider("a", failing(http.StatusServiceUnavailable, "overloaded"))
	shared := uniqueQuestions()
	p := newPipeline(t, Deps{
		Generator: newGenerator(t, set, a,
			mockProvider("b", shared),
			mockProvider("c", shared),
			mockProvider("d", shared),
		),
		Evaluator: newArbiter(t, set, mockProvider("judge", verdict(0.9))),
		Storage:   newMemStorage(),
	})

	m, err := p.Run(context.Background(), Request{Count: 12, Concurrency: 3, Distribute: true})
	require.NoError(t, err)

	assert.Equal(t, 12, m.Terminal(), "no item is dropped")
	assert.Equal(t, 12, m.Generated)
	assert.Equal(t, 0, m.ByProvider["a"])
	assert.Equal(t, 0, m.GenerationFailures)
	assert.Equal(t, breaker.Open, set.Get("a").State())
	assert.Equal(t, StatusSuccess, m.Status)
}

func TestRun_AuthenticationFailureOpensCircuitWithoutHalting(t *testing.T) {
	set := breaker.NewSet(breaker.DefaultConfig(), breaker.WithLogger(quiet))
	a := mockProvider("a", failing(http.StatusUnauthorized, "invalid api key"))
	shared := uniqueQuestions()
	p := newPipeline(t, Deps{
		Generator: newGenerator(t, set, a,
			mockProvider("b", shared),
			mockProvider("c", shared),
			mockProvider("d", shared),
		),
		Evaluator: newArbiter(t, set, mockProvider("judge", verdict(0.9))),
		Storage:   newMemStorage(),
	})

	m, err := p.Run(context.Background(), Request{Count: 10, Concurrency: 1, Distribute: true})
	require.NoError(t, err)

	assert.Equal(t, 1, a.CallCount(), "circuit opens on the first 401")
	assert.Equal(t, breaker.Open, set.Get("a").State())
	assert.Equal(t, 10, m.Inserted)
	assert.Empty(t, m.FatalReason)
	assert.Equal(t, StatusSuccess, m.Status)
}

func TestRun_CriticalGenerationErrorHaltsDispatch(t *testing.T) {
	set := breaker.NewSet(breaker.DefaultConfig(), breaker.WithLogger(quiet))
	runs := &memRuns{}
	p := newPipeline(t, Deps{
		Generator: newGenerator(t, set, mockProvider("openai", failing(http.StatusPaymentRequired, "billing hard limit reached"))),
		Evaluator: newArbiter(t, set, mockProvider("judge", verdict(0.9))),
		Storage:   newMemStorage(),
		Runs:      runs,
	})

	m, err := p.Run(context.Background(), Request{Count: 5, Concurrency: 1})
	require.NoError(t, err)

	assert.Equal(t, StatusFatal, m.Status)
	assert.Equal(t, 2, m.Status.ExitCode())
	assert.Contains(t, m.FatalReason, string(errclass.CategoryBillingQuota))
	assert.Equal(t, 1, m.GenerationFailures)
	assert.Equal(t, 4, m.NotStarted)
	assert.Equal(t, 0, m.Generated)

	require.Len(t, runs.runs, 1)
	assert.Equal(t, "fatal", runs.runs[0].Status)
	assert.Equal(t, m.FatalReason, runs.runs[0].FatalReason)
}

func TestRun_AllProvidersDownStopsDispatch(t *testing.T) {
	set := breaker.NewSet(breaker.Config{FailureThreshold: 1, RecoveryTimeout: time.Hour}, breaker.WithLogger(quiet))
	a := mockProvider("a", failing(http.StatusServiceUnavailable, "service unavailable"))
	b := mockProvider("b", failing(http.StatusServiceUnavailable, "service unavailable"))
	runs := &memRuns{}
	p := newPipeline(t, Deps{
		Generator: newGenerator(t, set, a, b),
		Evaluator: newArbiter(t, set, mockProvider("judge", verdict(0.9))),
		Storage:   newMemStorage(),
		Runs:      runs,
	})

	m, err := p.Run(context.Background(), Request{Count: 10, Concurrency: 1})
	require.NoError(t, err)

	assert.Equal(t, StatusUnavailable, m.Status)
	assert.Equal(t, 5, m.Status.ExitCode())
	assert.NotEqual(t, StatusPartialSuccess.ExitCode(), m.Status.ExitCode())
	assert.Contains(t, m.FatalReason, generator.ErrAllProvidersUnavailable.Error())
	assert.Equal(t, 0, m.Generated)
	assert.Equal(t, 1, m.GenerationFailures, "dispatch stops after the first item")
	assert.Equal(t, 9, m.NotStarted)
	assert.Equal(t, breaker.Open, set.Get("a").State())
	assert.Equal(t, breaker.Open, set.Get("b").State())

	require.Len(t, runs.runs, 1)
	assert.Equal(t, "unavailable", runs.runs[0].Status)
}

func TestRun_OneProviderDownKeepsDispatching(t *testing.T) {
	set := breaker.NewSet(breaker.Config{FailureThreshold: 1, RecoveryTimeout: time.Hour}, breaker.WithLogger(quiet))
	p := newPipeline(t, Deps{
		Generator: newGenerator(t, set,
			mockProvider("a", failing(http.StatusServiceUnavailable, "service unavailable")),
			mockProvider("b", uniqueQuestions()),
		),
		Evaluator: newArbiter(t, set, mockProvider("judge", verdict(0.9))),
		Storage:   newMemStorage(),
	})

	m, err := p.Run(context.Background(), Request{Count: 4, Concurrency: 1})
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, m.Status)
	assert.Equal(t, 4, m.Inserted)
	assert.Empty(t, m.FatalReason)
}

func TestRun_CriticalJudgeErrorHaltsDispatch(t *testing.T) {
	set := breaker.NewSet(breaker.DefaultConfig(), breaker.WithLogger(quiet))
	judge := mockProvider("judge", failing(http.StatusUnauthorized, "invalid x-api-key"))
	storage := newMemStorage()
	p := newPipeline(t, Deps{
		Generator: newGenerator(t, set, mockProvider("openai", uniqueQuestions())),
		Evaluator: newArbiter(t, set, judge),
		Storage:   storage,
	})

	m, err := p.Run(context.Background(), Request{Count: 4, Concurrency: 1})
	require.NoError(t, err)

	assert.Equal(t, StatusFatal, m.Status)
	assert.Equal(t, 1, judge.CallCount())
	assert.Equal(t, 1, m.EvaluationFailures)
	assert.Equal(t, 3, m.NotStarted)
	assert.Empty(t, storage.inserted, "nothing is stored without a verdict")
}

func TestRun_LowScoresAreRejected(t *testing.T) {
	set := breaker.NewSet(breaker.DefaultConfig(), breaker.WithLogger(quiet))
	storage := newMemStorage()
	p := newPipeline(t, Deps{
		Generator: newGenerator(t, set, mockProvider("openai", uniqueQuestions())),
		Evaluator: newArbiter(t, set, mockProvider("judge", verdict(0.69))),
		Storage:   storage,
	})

	m, err := p.Run(context.Background(), Request{Count: 3, Concurrency: 2})
	require.NoError(t, err)

	assert.Equal(t, 3, m.Rejected)
	assert.Equal(t, 3, m.Rejections[ReasonLowScore])
	assert.Equal(t, 0, m.Approved)
	assert.Empty(t, storage.inserted)
	assert.Equal(t, StatusSuccess, m.Status)
}

func TestRun_DryRunSkipsStorage(t *testing.T) {
	set := breaker.NewSet(breaker.DefaultConfig(), breaker.WithLogger(quiet))
	storage := newMemStorage()
	p := newPipeline(t, Deps{
		Generator: newGenerator(t, set, mockProvider("openai", uniqueQuestions())),
		Evaluator: newArbiter(t, set, mockProvider("judge", verdict(0.9))),
		Storage:   storage,
	})

	m, err := p.Run(context.Background(), Request{Count: 4, Concurrency: 2, DryRun: true})
	require.NoError(t, err)

	assert.Empty(t, storage.inserted)
	assert.Equal(t, 0, m.Inserted)
	assert.Equal(t, 4, m.Unique)
	assert.Equal(t, 4, m.Terminal())
	assert.True(t, m.Record().DryRun)
	assert.Equal(t, StatusSuccess, m.Status)
}

func TestRun_ExactDuplicates(t *testing.T) {
	set := breaker.NewSet(breaker.DefaultConfig(), breaker.WithLogger(quiet))
	storage := newMemStorage()
	p := newPipeline(t, Deps{
		Generator: newGenerator(t, set, mockProvider("openai", sameQuestion)),
		Evaluator: newArbiter(t, set, mockProvider("judge", verdict(0.9))),
		Storage:   storage,
	})

	m, err := p.Run(context.Background(), Request{Count: 3, Concurrency: 3, Types: []question.QuestionType{question.TypePattern}})
	require.NoError(t, err)

	assert.Equal(t, 1, m.Inserted)
	assert.Equal(t, 2, m.DuplicatesExact)
	assert.Equal(t, 2, m.Summary().Duplicates)
	assert.Len(t, storage.inserted, 1)

	// The stored question is now part of the inventory.
	m, err = p.Run(context.Background(), Request{Count: 2, Concurrency: 1, Types: []question.QuestionType{question.TypePattern}})
	require.NoError(t, err)
	assert.Equal(t, 0, m.Inserted)
	assert.Equal(t, 2, m.DuplicatesExact)
}

func TestRun_ExistingInventoryDuplicate(t *testing.T) {
	set := breaker.NewSet(breaker.DefaultConfig(), breaker.WithLogger(quiet))
	storage := newMemStorage()
	storage.seed(question.TypeLogic, "  which NUMBER comes next: 2, 4, 6, 8? ")
	gen := mockProvider("openai", sameQuestion)
	p := newPipeline(t, Deps{
		Generator: newGenerator(t, set, gen),
		Evaluator: newArbiter(t, set, mockProvider("judge", verdict(0.9))),
		Storage:   storage,
	})

	m, err := p.Run(context.Background(), Request{Count: 1, Types: []question.QuestionType{question.TypeLogic}})
	require.NoError(t, err)
	assert.Equal(t, 1, m.DuplicatesExact)
	assert.Equal(t, 0, m.Inserted)

	require.Len(t, gen.Calls, 1)
	assert.Contains(t, gen.Calls[0].Messages[0].Content, "which NUMBER comes next", "inventory is passed as the avoid list")
}

// vectorEmbedder returns old for one text and fresh for every other text.
type vectorEmbedder struct {
	oldText string
	calls   atomic.Int64
}

func (e *vectorEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.calls.Add(1)
	if text == e.oldText {
		return []float32{1, 0, 0}, nil
	}
	return []float32{0, 1, 0}, nil
}

func TestRun_SemanticDuplicatesAndEmbeddingPersistence(t *testing.T) {
	set := breaker.NewSet(breaker.DefaultConfig(), breaker.WithLogger(quiet))
	storage := newMemStorage()
	oldID := storage.seed(question.TypePattern, "Which shape completes the grid?")
	emb := &vectorEmbedder{oldText: "Which shape completes the grid?"}

	p := newPipeline(t, Deps{
		Generator: newGenerator(t, set, mockProvider("openai", uniqueQuestions())),
		Evaluator: newArbiter(t, set, mockProvider("judge", verdict(0.9))),
		Dedup:     dedup.New(dedup.NewEmbeddingCache(emb), dedup.WithLogger(quiet)),
		Storage:   storage,
	})

	m, err := p.Run(context.Background(), Request{Count: 3, Concurrency: 1, Types: []question.QuestionType{question.TypePattern}})
	require.NoError(t, err)

	assert.Equal(t, 1, m.Inserted)
	assert.Equal(t, 2, m.DuplicatesSemantic)
	assert.Equal(t, 2, m.Rejections[ReasonDuplicateSemantic])
	assert.Equal(t, 0, m.SemanticSkipped)
	assert.EqualValues(t, 4, emb.calls.Load(), "one call for the inventory, one per candidate")

	require.Len(t, storage.inserted, 1)
	assert.Equal(t, []float32{1, 0, 0}, storage.embeddings[oldID], "computed inventory embedding is persisted")
	assert.Equal(t, []float32{0, 1, 0}, storage.embeddings[storage.inserted[0].ID])
}

func TestRun_EmbeddingCostIsCounted(t *testing.T) {
	set := breaker.NewSet(breaker.DefaultConfig(), breaker.WithLogger(quiet))
	storage := newMemStorage()
	storage.seed(question.TypePattern, "Which shape completes the grid?")

	embedProvider := llm.NewMockProvider("openai")
	var n atomic.Int64
	embedProvider.EmbedFunc = func(ctx context.Context, text string) ([]float32, error) {
		i := float32(n.Add(1))
		return []float32{i, 1 / i, 0}, nil
	}
	emb := &dedup.ProviderEmbedder{Provider: embedProvider, Model: "text-embedding-3-large"}

	p := newPipeline(t, Deps{
		Generator: newGenerator(t, set, mockProvider("gen", uniqueQuestions())),
		Evaluator: newArbiter(t, set, mockProvider("judge", verdict(0.9))),
		Dedup:     dedup.New(dedup.NewEmbeddingCache(emb), dedup.WithLogger(quiet)),
		Storage:   storage,
	})

	m, err := p.Run(context.Background(), Request{Count: 3, Concurrency: 1, Types: []question.QuestionType{question.TypePattern}})
	require.NoError(t, err)

	assert.Equal(t, 4, embedProvider.EmbedCount(), "one inventory embedding and one per candidate")
	assert.Positive(t, emb.Spent())
	assert.InDelta(t, emb.Spent(), m.CostUSD, 1e-12, "generation and judge models are unpriced")
	assert.InDelta(t, m.CostUSD, m.Summary().Cost, 1e-12)
}

func TestRun_StoreFailureIsContained(t *testing.T) {
	set := breaker.NewSet(breaker.DefaultConfig(), breaker.WithLogger(quiet))
	storage := newMemStorage()
	storage.insertErr = errors.New("disk I/O error")
	rep := &memReporter{err: errors.New("backend unreachable")}
	p := newPipeline(t, Deps{
		Generator: newGenerator(t, set, mockProvider("openai", uniqueQuestions())),
		Evaluator: newArbiter(t, set, mockProvider("judge", verdict(0.9))),
		Storage:   storage,
		Reporter:  rep,
	})

	m, err := p.Run(context.Background(), Request{Count: 2, Concurrency: 2})
	require.NoError(t, err, "reporting failures never fail the run")
	assert.Equal(t, 2, m.StoreFailures)
	assert.Equal(t, 2, m.Terminal())
	assert.Equal(t, StatusPartialSuccess, m.Status)
	assert.Equal(t, 1, m.Status.ExitCode())
	assert.Len(t, rep.summaries, 1)
}

// blockingGenerator blocks every item until release is closed or ctx ends.
type blockingGenerator struct {
	started chan struct{}
	release chan struct{}
	n       atomic.Int64
}

func (g *blockingGenerator) GenerateOne(ctx context.Context, spec generator.ItemSpec) (*question.GeneratedQuestion, error) {
	g.started <- struct{}{}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-g.release:
	}
	i := g.n.Add(1)
	return &question.GeneratedQuestion{
		ID:             uuid.New(),
		Text:           fmt.Sprintf("Blocking question %d", i),
		Type:           spec.Type,
		Difficulty:     spec.Difficulty,
		CorrectAnswer:  "42",
		SourceProvider: "mock",
	}, nil
}

type approveAll struct{}

func (approveAll) Evaluate(ctx context.Context, q question.GeneratedQuestion) (question.EvaluatedQuestion, error) {
	return question.Evaluate(q, question.Verdict{Score: 0.9, Provider: "mock"}, time.Now()), nil
}

func TestRun_CancellationRecordsUnfinishedItems(t *testing.T) {
	gen := &blockingGenerator{started: make(chan struct{}, 8), release: make(chan struct{})}
	p := newPipeline(t, Deps{Generator: gen, Evaluator: approveAll{}, Storage: newMemStorage()})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-gen.started
		<-gen.started
		cancel()
	}()

	m, err := p.Run(ctx, Request{Count: 5, Concurrency: 2})
	require.NoError(t, err)

	assert.Equal(t, 5, m.Cancelled)
	assert.Equal(t, 5, m.Rejections[ReasonCancelled])
	assert.Equal(t, 5, m.Terminal())
	assert.Equal(t, StatusPartialSuccess, m.Status)
}

func TestRun_InFlightItemFinishesWithinGracePeriod(t *testing.T) {
	gen := &blockingGenerator{started: make(chan struct{}, 1), release: make(chan struct{})}
	storage := newMemStorage()
	cfg := DefaultConfig()
	cfg.GracePeriod = 5 * time.Second
	p, err := New(Deps{Generator: gen, Evaluator: approveAll{}, Storage: storage}, cfg, WithLogger(quiet))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-gen.started
		cancel()
		close(gen.release)
	}()

	m, err := p.Run(ctx, Request{Count: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, m.Inserted)
	assert.Equal(t, 0, m.Cancelled)
	assert.Len(t, storage.inserted, 1)
}

func TestRun_InvalidRequest(t *testing.T) {
	p := newPipeline(t, Deps{Generator: &blockingGenerator{}, Evaluator: approveAll{}, Storage: newMemStorage()})

	_, err := p.Run(context.Background(), Request{Count: 0})
	require.ErrorIs(t, err, ErrInvalidRequest)

	_, err = p.Run(context.Background(), Request{Count: 1, Types: []question.QuestionType{"trivia"}})
	require.ErrorIs(t, err, ErrInvalidRequest)

	d := question.Difficulty("expert")
	_, err = p.Run(context.Background(), Request{Count: 1, Difficulty: &d})
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Deps{Evaluator: approveAll{}, Storage: newMemStorage()}, DefaultConfig())
	require.Error(t, err)
	_, err = New(Deps{Generator: &blockingGenerator{}, Storage: newMemStorage()}, DefaultConfig())
	require.Error(t, err)
	_, err = New(Deps{Generator: &blockingGenerator{}, Evaluator: approveAll{}}, DefaultConfig())
	require.Error(t, err)
}

func TestStatusExitCodes(t *testing.T) {
	assert.Equal(t, 0, StatusSuccess.ExitCode())
	assert.Equal(t, 1, StatusPartialSuccess.ExitCode())
	assert.Equal(t, 2, StatusFatal.ExitCode())
	assert.Equal(t, 5, StatusUnavailable.ExitCode())
}

// repoStub records inserts and leaves every other method unimplemented.
type repoStub struct {
	store.QuestionRepo
	inserted int
}

func (r *repoStub) Insert(ctx context.Context, q question.EvaluatedQuestion, runID string) (uuid.UUID, error) {
	r.inserted++
	return q.ID, nil
}

func TestStoreStorage_RefusesInvalidQuestion(t *testing.T) {
	repo := &repoStub{}
	s := StoreStorage{Repo: repo}

	q := question.EvaluatedQuestion{GeneratedQuestion: question.GeneratedQuestion{
		ID:            uuid.New(),
		Text:          "Which animal barks?",
		Type:          question.TypeVerbal,
		Difficulty:    question.DifficultyEasy,
		AnswerOptions: []string{"Cat", "Dog"},
		CorrectAnswer: "  dog ",
		Explanation:   "Dogs bark.",
	}}
	_, err := s.Insert(context.Background(), q)
	require.ErrorIs(t, err, question.ErrAnswerNotInOpts)
	assert.Equal(t, 0, repo.inserted)

	q.CorrectAnswer = "Dog"
	id, err := s.Insert(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, q.ID, id)
	assert.Equal(t, 1, repo.inserted)
}
