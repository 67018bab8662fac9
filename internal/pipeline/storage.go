package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/gioe/aiq/internal/question"
	"github.com/gioe/aiq/internal/store"
)

// Storage persists approved questions and feeds the dedup index.
type Storage interface {
	// Insert stores q and returns its ID, or store.ErrDuplicateKey when the
	// normalized text already exists.
	Insert(ctx context.Context, q question.EvaluatedQuestion) (uuid.UUID, error)

	LoadActiveQuestionsByType(ctx context.Context, t question.QuestionType) ([]store.IndexedQuestion, error)
	SaveEmbedding(ctx context.Context, id uuid.UUID, vec []float32) error
}

type contextKey string

const runIDKey contextKey = "pipeline_run_id"

// WithRunID attaches the current run ID to ctx.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// RunIDFrom returns the run ID attached to ctx, or "".
func RunIDFrom(ctx context.Context) string {
	if v, ok := ctx.Value(runIDKey).(string); ok {
		return v
	}
	return ""
}

// StoreStorage adapts a store.QuestionRepo to Storage. Inserted rows are
// tagged with the run ID carried by the context. Questions that break the
// question invariants are refused before they reach the repo.
type StoreStorage struct {
	Repo store.QuestionRepo
}

var _ Storage = StoreStorage{}

func (s StoreStorage) Insert(ctx context.Context, q question.EvaluatedQuestion) (uuid.UUID, error) {
	if err := q.Validate(); err != nil {
		return uuid.Nil, fmt.Errorf("question %s: %w", q.ID, err)
	}
	return s.Repo.Insert(ctx, q, RunIDFrom(ctx))
}

func (s StoreStorage) LoadActiveQuestionsByType(ctx context.Context, t question.QuestionType) ([]store.IndexedQuestion, error) {
	return s.Repo.LoadActiveQuestionsByType(ctx, t)
}

func (s StoreStorage) SaveEmbedding(ctx context.Context, id uuid.UUID, vec []float32) error {
	return s.Repo.SaveEmbedding(ctx, id, vec)
}
