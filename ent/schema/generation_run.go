package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// GenerationRun summarizes one pipeline run.
type GenerationRun struct {
	ent.Schema
}

func (GenerationRun) Fields() []ent.Field {
	return []ent.Field{
		field.String("run_id").
			Unique().
			Immutable(),
		field.Time("started_at").
			Default(time.Now),
		field.Int64("duration_ms").
			Default(0),
		field.String("status").
			Comment("success, partial_success or fatal"),
		field.String("fatal_reason").
			Default(""),
		field.Bool("dry_run").
			Default(false),
		field.Int("requested").Default(0),
		field.Int("generated").Default(0),
		field.Int("approved").Default(0),
		field.Int("rejected").Default(0),
		field.Int("duplicates").Default(0),
		field.Int("inserted").Default(0),
		field.Int("failed").Default(0),
		field.Float("cost_usd").Default(0),
	}
}

func (GenerationRun) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("started_at"),
		index.Fields("status"),
	}
}
