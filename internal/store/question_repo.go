package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/gioe/aiq/internal/question"
)

// questionRepo implements QuestionRepo with ent SQL builders.
type questionRepo struct {
	db *sql.DB
}

func (r *questionRepo) Insert(ctx context.Context, q question.EvaluatedQuestion, runID string) (uuid.UUID, error) {
	id := q.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	created := q.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}

	var options any
	if len(q.AnswerOptions) > 0 {
		b, err := json.Marshal(q.AnswerOptions)
		if err != nil {
			return uuid.Nil, fmt.Errorf("marshal answer options: %w", err)
		}
		options = string(b)
	}

	query, args := builder().Insert(tableQuestions).
		Columns(
			"id", "text", "text_hash", "type", "difficulty", "answer_options",
			"correct_answer", "explanation", "stimulus", "source_provider", "source_model",
			"score", "judge_provider", "judge_model", "rationale", "active", "run_id", "created_at",
		).
		Values(
			id.String(), q.Text, question.TextHash(q.Text), string(q.Type), string(q.Difficulty), options,
			q.CorrectAnswer, q.Explanation, q.Stimulus, q.SourceProvider, q.SourceModel,
			q.Score, q.JudgeProvider, q.JudgeModel, q.Rationale, true, runID, created,
		).
		Query()

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return uuid.Nil, fmt.Errorf("%w: %s", ErrDuplicateKey, question.TextHash(q.Text))
		}
		return uuid.Nil, fmt.Errorf("insert question: %w", err)
	}
	return id, nil
}

func (r *questionRepo) LoadActiveQuestionsByType(ctx context.Context, t question.QuestionType) ([]IndexedQuestion, error) {
	query, args := builder().Select("id", "text", "embedding").
		From(entsql.Table(tableQuestions)).
		Where(entsql.And(
			entsql.EQ("type", string(t)),
			entsql.EQ("active", true),
		)).
		OrderBy("created_at").
		Query()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer rows.Close()

	var out []IndexedQuestion
	for rows.Next() {
		var (
			rawID string
			iq    IndexedQuestion
			blob  []byte
		)
		if err := rows.Scan(&rawID, &iq.Text, &blob); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		if iq.ID, err = uuid.Parse(rawID); err != nil {
			return nil, fmt.Errorf("parse question id %q: %w", rawID, err)
		}
		if len(blob) > 0 {
			iq.Embedding = decodeVector(blob)
		}
		out = append(out, iq)
	}
	return out, rows.Err()
}

func (r *questionRepo) SaveEmbedding(ctx context.Context, id uuid.UUID, vec []float32) error {
	query, args := builder().Update(tableQuestions).
		Set("embedding", encodeVector(vec)).
		Where(entsql.EQ("id", id.String())).
		Query()

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("save embedding: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("save embedding: question %s not found", id)
	}
	return nil
}

func (r *questionRepo) CountByStratum(ctx context.Context) (map[question.Stratum]int, error) {
	query, args := builder().Select("type", "difficulty", entsql.Count("*")).
		From(entsql.Table(tableQuestions)).
		Where(entsql.EQ("active", true)).
		GroupBy("type", "difficulty").
		Query()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("count questions: %w", err)
	}
	defer rows.Close()

	counts := make(map[question.Stratum]int)
	for rows.Next() {
		var (
			typ, diff string
			n         int
		)
		if err := rows.Scan(&typ, &diff, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[question.Stratum{
			Type:       question.QuestionType(typ),
			Difficulty: question.Difficulty(diff),
		}] = n
	}
	return counts, rows.Err()
}

// encodeVector packs a float32 vector as little-endian bytes.
func encodeVector(vec []float32) []byte {
	b := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(v))
	}
	return b
}

// decodeVector is the inverse of encodeVector.
func decodeVector(b []byte) []float32 {
	vec := make([]float32, len(b)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return vec
}
