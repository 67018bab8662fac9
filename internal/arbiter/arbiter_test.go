package arbiter

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gioe/aiq/internal/breaker"
	"github.com/gioe/aiq/internal/errclass"
	"github.com/gioe/aiq/internal/llm"
	"github.com/gioe/aiq/internal/question"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func sampleQuestion(t question.QuestionType) question.GeneratedQuestion {
	return question.GeneratedQuestion{
		ID:             uuid.New(),
		Text:           "Which number comes next: 2, 4, 6, 8?",
		Type:           t,
		Difficulty:     question.DifficultyEasy,
		AnswerOptions:  []string{"9", "10", "12", "16"},
		CorrectAnswer:  "10",
		Explanation:    "Add 2 each step.",
		SourceProvider: "openai",
		SourceModel:    "gpt-4o",
	}
}

func verdictFunc(score float64) llm.MockFunc {
	return func(ctx context.Context, req llm.Request) (*llm.Response, error) {
		body, _ := json.Marshal(map[string]any{"score": score, "rationale": "clear and correct"})
		return &llm.Response{Content: body, Model: req.Model}, nil
	}
}

func statusFunc(code int, msg string) llm.MockFunc {
	return func(ctx context.Context, req llm.Request) (*llm.Response, error) {
		return nil, &llm.ProviderError{Provider: "mock", StatusCode: code, Message: msg}
	}
}

func judgeMock(name string, fn llm.MockFunc) *llm.MockProvider {
	m := llm.NewMockProvider(name)
	m.GenerateFunc = fn
	return m
}

func testRoutes() RoutingTable {
	return RoutingTable{
		Default: Route{Provider: "anthropic", Model: "claude-sonnet"},
		ByType: map[question.QuestionType]Route{
			question.TypeMath: {Provider: "openai", Model: "gpt-4o"},
		},
	}
}

func newTestArbiter(t *testing.T, bcfg breaker.Config, providers ...llm.Provider) (*Arbiter, *breaker.Set) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Routes = testRoutes()
	cfg.Retry.InitialWait = 0
	cfg.CallTimeout = time.Second
	set := breaker.NewSet(bcfg, breaker.WithLogger(quiet))
	a, err := New(providers, set, errclass.NewClassifier(), cfg, WithLogger(quiet))
	require.NoError(t, err)
	return a, set
}

func TestEvaluate_RoutesByType(t *testing.T) {
	anthropic := judgeMock("anthropic", verdictFunc(0.9))
	openai := judgeMock("openai", verdictFunc(0.4))
	a, _ := newTestArbiter(t, breaker.DefaultConfig(), anthropic, openai)

	ev, err := a.Evaluate(context.Background(), sampleQuestion(question.TypeMath))
	require.NoError(t, err)
	assert.Equal(t, "openai", ev.JudgeProvider)
	assert.Equal(t, "gpt-4o", ev.JudgeModel)
	assert.InDelta(t, 0.4, ev.Score, 1e-9)
	assert.False(t, ev.Approved)

	ev, err = a.Evaluate(context.Background(), sampleQuestion(question.TypeLogic))
	require.NoError(t, err)
	assert.Equal(t, "anthropic", ev.JudgeProvider)
	assert.True(t, ev.Approved)
	assert.Equal(t, "clear and correct", ev.Rationale)

	require.Len(t, openai.Calls, 1)
	assert.Equal(t, "gpt-4o", openai.Calls[0].Model, "judge model is passed per call")
	assert.Same(t, JudgeSchema, openai.Calls[0].Schema)
	assert.Contains(t, openai.Calls[0].Messages[0].Content, "Keyed answer: 10")
}

func TestEvaluate_ThresholdBoundary(t *testing.T) {
	for _, score := range []float64{0.69, 0.70, 0.71} {
		p := judgeMock("anthropic", verdictFunc(score))
		a, _ := newTestArbiter(t, breaker.DefaultConfig(), p, judgeMock("openai", verdictFunc(1)))

		ev, err := a.Evaluate(context.Background(), sampleQuestion(question.TypeVerbal))
		require.NoError(t, err)
		assert.Equal(t, score >= 0.70, ev.Approved, "score %v", score)
	}
}

func TestEvaluate_RetriesOnce(t *testing.T) {
	p := judgeMock("anthropic", verdictFunc(0.8))
	p.AddResponse(llm.MockResponse{Err: &llm.ProviderError{Provider: "anthropic", StatusCode: http.StatusServiceUnavailable, Message: "overloaded"}})
	a, _ := newTestArbiter(t, breaker.DefaultConfig(), p, judgeMock("openai", verdictFunc(1)))

	ev, err := a.Evaluate(context.Background(), sampleQuestion(question.TypeLogic))
	require.NoError(t, err)
	assert.True(t, ev.Approved)
	assert.Equal(t, 2, p.CallCount())
}

func TestEvaluate_FailureRejects(t *testing.T) {
	p := judgeMock("anthropic", statusFunc(http.StatusServiceUnavailable, "overloaded"))
	a, _ := newTestArbiter(t, breaker.DefaultConfig(), p, judgeMock("openai", verdictFunc(1)))

	q := sampleQuestion(question.TypeSpatial)
	ev, err := a.Evaluate(context.Background(), q)
	require.Error(t, err)
	assert.Equal(t, 2, p.CallCount())

	assert.False(t, ev.Approved)
	assert.Zero(t, ev.Score)
	assert.True(t, strings.HasPrefix(ev.Rationale, "evaluation failed: "), ev.Rationale)
	assert.Equal(t, q.ID, ev.ID)

	var ce *errclass.ClassifiedError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, errclass.CategoryServer, ce.Category)
}

func TestEvaluate_InvalidRequestNotRetried(t *testing.T) {
	p := judgeMock("anthropic", statusFunc(http.StatusBadRequest, "messages: invalid"))
	a, _ := newTestArbiter(t, breaker.DefaultConfig(), p, judgeMock("openai", verdictFunc(1)))

	ev, err := a.Evaluate(context.Background(), sampleQuestion(question.TypeLogic))
	require.Error(t, err)
	assert.Equal(t, 1, p.CallCount())
	assert.False(t, ev.Approved)
}

func TestEvaluate_CriticalTripsBreaker(t *testing.T) {
	p := judgeMock("anthropic", statusFunc(http.StatusUnauthorized, "invalid x-api-key"))
	a, set := newTestArbiter(t, breaker.DefaultConfig(), p, judgeMock("openai", verdictFunc(1)))

	_, err := a.Evaluate(context.Background(), sampleQuestion(question.TypeLogic))
	var ce *errclass.ClassifiedError
	require.ErrorAs(t, err, &ce)
	assert.True(t, ce.Critical())
	assert.Equal(t, 1, p.CallCount())
	assert.Equal(t, breaker.Open, set.Get("anthropic").State())

	ev, err := a.Evaluate(context.Background(), sampleQuestion(question.TypePattern))
	require.ErrorIs(t, err, breaker.ErrCircuitOpen)
	assert.Equal(t, 1, p.CallCount(), "open circuit makes no call")
	assert.False(t, ev.Approved)
	assert.Contains(t, ev.Rationale, "circuit breaker open")
}

func TestEvaluate_ScoreOutOfRange(t *testing.T) {
	p := judgeMock("anthropic", func(ctx context.Context, req llm.Request) (*llm.Response, error) {
		return &llm.Response{Content: json.RawMessage(`{"rationale": "no score"}`)}, nil
	})
	a, _ := newTestArbiter(t, breaker.DefaultConfig(), p, judgeMock("openai", verdictFunc(1)))

	ev, err := a.Evaluate(context.Background(), sampleQuestion(question.TypeLogic))
	require.ErrorIs(t, err, llm.ErrInvalidResponse)
	assert.Equal(t, 2, p.CallCount())
	assert.False(t, ev.Approved)
}

func TestEvaluate_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := judgeMock("anthropic", func(ctx context.Context, req llm.Request) (*llm.Response, error) {
		cancel()
		return nil, ctx.Err()
	})
	a, set := newTestArbiter(t, breaker.Config{FailureThreshold: 1, RecoveryTimeout: time.Hour}, p, judgeMock("openai", verdictFunc(1)))

	ev, err := a.Evaluate(ctx, sampleQuestion(question.TypeLogic))
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "evaluation failed: cancelled", ev.Rationale)
	assert.Equal(t, breaker.Closed, set.Get("anthropic").State())
}

func TestNew_Validation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Routes = testRoutes()
	_, err := New([]llm.Provider{judgeMock("anthropic", nil)}, nil, nil, cfg)
	require.Error(t, err, "openai route has no provider")

	cfg.Routes = RoutingTable{ByType: map[question.QuestionType]Route{question.TypeMath: {Provider: "openai"}}}
	_, err = New([]llm.Provider{judgeMock("openai", nil)}, nil, nil, cfg)
	require.Error(t, err, "types without a route and no default")
}

func TestRoutingTable(t *testing.T) {
	rt := testRoutes()
	assert.Equal(t, "openai/gpt-4o", rt.For(question.TypeMath).String())
	assert.Equal(t, "anthropic", rt.For(question.TypeMemory).Provider)
	assert.Equal(t, []string{"anthropic", "openai"}, rt.Providers())
	require.NoError(t, rt.Validate())

	rt.ByType["trivia"] = Route{Provider: "openai"}
	require.Error(t, rt.Validate())
}

func TestBuildUserMessage_Memory(t *testing.T) {
	q := sampleQuestion(question.TypeMemory)
	q.Stimulus = "7 3 9 1"
	msg := buildUserMessage(&q)
	assert.Contains(t, msg, "Stimulus:\n7 3 9 1")
	assert.Contains(t, msg, "B. 10")
	assert.Contains(t, msg, "answerable from the stimulus")
}

func TestRoutingTable_Restrict(t *testing.T) {
	rt := testRoutes().Restrict([]string{"openai"})
	assert.Empty(t, rt.Default.Provider)
	assert.Equal(t, "openai", rt.For(question.TypeMath).Provider)
	assert.Empty(t, rt.For(question.TypeLogic).Provider)

	rt = testRoutes().Restrict([]string{"anthropic"})
	assert.Equal(t, "anthropic", rt.For(question.TypeMath).Provider, "math falls back to the default")
}
