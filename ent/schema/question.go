package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
	"github.com/google/uuid"
)

// Question is an approved, deduplicated inventory item.
type Question struct {
	ent.Schema
}

func (Question) Fields() []ent.Field {
	return []ent.Field{
		field.UUID("id", uuid.UUID{}).
			Default(uuid.New).
			Immutable(),
		field.String("text").
			NotEmpty().
			Comment("Question text shown to the test taker"),
		field.String("text_hash").
			Unique().
			Immutable().
			Comment("SHA-256 of the normalized text, the exact-dedup key"),
		field.String("type").
			NotEmpty().
			Comment("pattern, logic, spatial, math, verbal or memory"),
		field.String("difficulty").
			NotEmpty().
			Comment("easy, medium or hard"),
		field.Strings("answer_options").
			Optional(),
		field.String("correct_answer").
			Default(""),
		field.String("explanation").
			Default(""),
		field.String("stimulus").
			Default("").
			Comment("Material memorised before a memory question"),
		field.String("source_provider"),
		field.String("source_model"),
		field.Float("score").
			Comment("Judge quality score in [0, 1]"),
		field.String("judge_provider"),
		field.String("judge_model"),
		field.String("rationale").
			Default(""),
		field.Bytes("embedding").
			Optional().
			Nillable().
			Comment("Little-endian float32 vector, filled lazily by dedup"),
		field.Bool("active").
			Default(true),
		field.String("run_id").
			Default(""),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
	}
}

func (Question) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("type", "active"),
		index.Fields("type", "difficulty"),
	}
}
