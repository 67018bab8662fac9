// Package dedup detects exact and near-duplicate questions against the
// active inventory.
package dedup

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/gioe/aiq/internal/question"
)

// DefaultThreshold is the cosine similarity at or above which two questions
// of the same type are considered duplicates.
const DefaultThreshold = 0.85

// Method is how a duplicate was detected.
type Method string

const (
	MethodExact    Method = "exact"
	MethodSemantic Method = "semantic"
	MethodNone     Method = "none"
)

// Result is the outcome of a duplicate check.
type Result struct {
	IsDuplicate bool
	Method      Method

	// MatchedQuestionID and Similarity are nil when nothing matched.
	MatchedQuestionID *uuid.UUID
	Similarity        *float64

	// SemanticSkipped is set when the candidate's embedding could not be
	// computed and only the exact check ran.
	SemanticSkipped bool

	// Embedding is the candidate's vector, set by Claim for unique
	// questions so it can be stored alongside them.
	Embedding []float32
}

// Existing is an inventory question loaded at run start.
type Existing struct {
	ID   uuid.UUID
	Text string
	Type question.QuestionType

	// Embedding is nil when none has been stored yet.
	Embedding []float32
}

// Option configures a Deduplicator.
type Option func(*Deduplicator)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Deduplicator) { d.logger = l }
}

// WithThreshold overrides DefaultThreshold.
func WithThreshold(t float64) Option {
	return func(d *Deduplicator) { d.threshold = t }
}

// Deduplicator runs the two-stage check: exact text hash, then embedding
// similarity against questions of the same type. It is safe for concurrent
// use.
type Deduplicator struct {
	cache     *EmbeddingCache
	threshold float64
	logger    *slog.Logger
}

// New creates a Deduplicator. A nil cache disables the semantic stage.
func New(cache *EmbeddingCache, opts ...Option) *Deduplicator {
	d := &Deduplicator{
		cache:     cache,
		threshold: DefaultThreshold,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Threshold returns the semantic similarity threshold.
func (d *Deduplicator) Threshold() float64 { return d.threshold }

// Spent returns the estimated USD spent on embeddings so far. It is zero
// when the embedder does not implement Spender.
func (d *Deduplicator) Spent() float64 {
	if d.cache == nil {
		return 0
	}
	if s, ok := d.cache.embedder.(Spender); ok {
		return s.Spent()
	}
	return 0
}

// Warm loads existing questions into idx. Missing embeddings are computed
// once per question ID; the ones computed here are returned so the caller
// can persist them. A failed embedding leaves that question exact-only.
func (d *Deduplicator) Warm(ctx context.Context, idx *Index, existing []Existing) ([]Existing, error) {
	var computed []Existing
	for _, q := range existing {
		e := Entry{ID: q.ID, Type: q.Type, Hash: question.TextHash(q.Text), Embedding: q.Embedding}
		switch {
		case d.cache == nil:
		case e.Embedding != nil:
			d.cache.Put(existingKey(q.ID), e.Embedding)
		default:
			vec, err := d.cache.Get(ctx, existingKey(q.ID), q.Text)
			if err != nil {
				if ctx.Err() != nil {
					return computed, ctx.Err()
				}
				d.logger.Warn("embedding existing question failed", "question", q.ID, "error", err)
				break
			}
			e.Embedding = vec
			q.Embedding = vec
			computed = append(computed, q)
		}
		idx.Add(e)
	}
	return computed, nil
}

// Check reports whether q duplicates a question in view. The error is
// non-nil only when ctx ends.
func (d *Deduplicator) Check(ctx context.Context, q *question.GeneratedQuestion, view View) (Result, error) {
	hash := question.TextHash(q.Text)
	if id, ok := view.LookupHash(hash); ok {
		return exactResult(id), nil
	}
	vec, skipped, err := d.embed(ctx, q, hash)
	if err != nil {
		return Result{}, err
	}
	res := d.compare(q.Type, vec, view)
	res.SemanticSkipped = skipped
	return res, nil
}

// Release undoes a successful Claim.
type Release func()

// Claim checks q against idx and, when it is unique, reserves it in the
// index in the same critical section so no concurrent candidate can be
// approved as its near-duplicate. The embedding is computed before the lock
// is taken. Call the returned Release if the question is not stored after
// all; it is nil for duplicates.
func (d *Deduplicator) Claim(ctx context.Context, q *question.GeneratedQuestion, idx *Index) (Result, Release, error) {
	hash := question.TextHash(q.Text)
	if id, ok := idx.LookupHash(hash); ok {
		return exactResult(id), nil, nil
	}
	vec, skipped, err := d.embed(ctx, q, hash)
	if err != nil {
		return Result{}, nil, err
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	view := lockedView{idx}
	if id, ok := view.LookupHash(hash); ok {
		return exactResult(id), nil, nil
	}
	res := d.compare(q.Type, vec, view)
	res.SemanticSkipped = skipped
	if res.IsDuplicate {
		return res, nil, nil
	}
	idx.add(Entry{ID: q.ID, Type: q.Type, Hash: hash, Embedding: vec})
	res.Embedding = vec
	id := q.ID
	return res, func() { idx.Remove(id) }, nil
}

// embed returns the candidate's embedding. skipped is true when the
// semantic stage cannot run for it.
func (d *Deduplicator) embed(ctx context.Context, q *question.GeneratedQuestion, hash string) (vec []float32, skipped bool, err error) {
	if d.cache == nil {
		return nil, true, nil
	}
	vec, err = d.cache.Get(ctx, candidateKey(hash), q.Text)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		d.logger.Warn("embedding candidate failed, exact check only", "question", q.ID, "error", err)
		return nil, true, nil
	}
	return vec, false, nil
}

// compare finds the most similar same-type entry.
func (d *Deduplicator) compare(t question.QuestionType, vec []float32, view View) Result {
	if vec == nil {
		return Result{Method: MethodNone}
	}
	var (
		best   float64
		bestID uuid.UUID
		found  bool
	)
	for _, e := range view.Entries(t) {
		if e.Embedding == nil {
			continue
		}
		if sim := Cosine(vec, e.Embedding); !found || sim > best {
			best, bestID, found = sim, e.ID, true
		}
	}
	if !found || best < d.threshold {
		return Result{Method: MethodNone}
	}
	return Result{
		IsDuplicate:       true,
		Method:            MethodSemantic,
		MatchedQuestionID: &bestID,
		Similarity:        &best,
	}
}

func exactResult(id uuid.UUID) Result {
	sim := 1.0
	return Result{
		IsDuplicate:       true,
		Method:            MethodExact,
		MatchedQuestionID: &id,
		Similarity:        &sim,
	}
}

func existingKey(id uuid.UUID) string { return "id:" + id.String() }

func candidateKey(hash string) string { return "text:" + hash }
