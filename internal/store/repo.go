package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/gioe/aiq/internal/question"
)

// QueryOpts configures list queries with filtering and pagination.
type QueryOpts struct {
	Limit int       // max results (0 = unlimited)
	From  time.Time // timestamp >= From
	To    time.Time // timestamp <= To
}

// IndexedQuestion is the slice of an inventory item needed to rebuild the
// dedup index. Embedding is nil when it has never been computed.
type IndexedQuestion struct {
	ID        uuid.UUID
	Text      string
	Embedding []float32
}

// QuestionRepo persists approved questions.
type QuestionRepo interface {
	// Insert stores an approved question and returns its ID. It returns
	// ErrDuplicateKey when the normalized text already exists.
	Insert(ctx context.Context, q question.EvaluatedQuestion, runID string) (uuid.UUID, error)

	// LoadActiveQuestionsByType returns every active question of type t.
	LoadActiveQuestionsByType(ctx context.Context, t question.QuestionType) ([]IndexedQuestion, error)

	// SaveEmbedding stores a computed embedding for question id.
	SaveEmbedding(ctx context.Context, id uuid.UUID, vec []float32) error

	// CountByStratum returns active question counts per (type, difficulty).
	CountByStratum(ctx context.Context) (map[question.Stratum]int, error)
}

// LLMRequestEventData captures the data for a single LLM request event.
type LLMRequestEventData struct {
	Provider     string
	Model        string
	Purpose      string
	InputTokens  int
	OutputTokens int
	LatencyMs    int64
	CostUSD      float64
	Success      bool
	ErrorMessage string
}

// LLMRequestRecord is a stored LLM request event.
type LLMRequestRecord struct {
	LLMRequestEventData
	Sequence  int64
	Timestamp time.Time
}

// LLMUsageStats aggregates LLM events per provider and model.
type LLMUsageStats struct {
	Provider     string
	Model        string
	Requests     int
	Failures     int
	InputTokens  int
	OutputTokens int
	CostUSD      float64
	AvgLatencyMs float64
}

// EventRepo provides append and query access to LLM request events.
type EventRepo interface {
	// AppendLLMRequest records an LLM API call event.
	AppendLLMRequest(ctx context.Context, data LLMRequestEventData) error
}

// EventQuerier reads back LLM request events.
type EventQuerier interface {
	EventRepo

	// QueryLLMRequests returns events newest first.
	QueryLLMRequests(ctx context.Context, opts QueryOpts) ([]LLMRequestRecord, error)

	// LLMUsage aggregates events by provider and model.
	LLMUsage(ctx context.Context, opts QueryOpts) ([]LLMUsageStats, error)
}

// RunRecord summarizes a finished generation run.
type RunRecord struct {
	RunID       string
	StartedAt   time.Time
	DurationMs  int64
	Status      string
	FatalReason string
	DryRun      bool
	Requested   int
	Generated   int
	Approved    int
	Rejected    int
	Duplicates  int
	Inserted    int
	Failed      int
	CostUSD     float64
}

// RunRepo persists run summaries.
type RunRepo interface {
	SaveRun(ctx context.Context, r RunRecord) error
	RecentRuns(ctx context.Context, limit int) ([]RunRecord, error)
}
