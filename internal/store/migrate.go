package store

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"entgo.io/ent"
	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"

	entschema "github.com/gioe/aiq/ent/schema"
)

// Table names.
const (
	tableQuestions = "questions"
	tableLLMEvents = "llm_request_events"
	tableRuns      = "generation_runs"
)

// entities maps each table to the ent schema that defines it.
var entities = []struct {
	table string
	def   ent.Interface
}{
	{tableQuestions, entschema.Question{}},
	{tableLLMEvents, entschema.LLMRequestEvent{}},
	{tableRuns, entschema.GenerationRun{}},
}

// migrate creates or upgrades every table described by the ent schemas.
func migrate(ctx context.Context, drv dialect.Driver) error {
	tables, err := buildTables()
	if err != nil {
		return err
	}
	m, err := schema.NewMigrate(drv, schema.WithDropIndex(true))
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	if err := m.Create(ctx, tables...); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return nil
}

// buildTables translates the ent schema descriptors into migration tables.
// Schemas without an explicit "id" field get an auto-increment integer key.
func buildTables() ([]*schema.Table, error) {
	tables := make([]*schema.Table, 0, len(entities))
	for _, e := range entities {
		t := schema.NewTable(e.table)

		var fields []ent.Field
		var indexes []ent.Index
		for _, m := range e.def.Mixin() {
			fields = append(fields, m.Fields()...)
			indexes = append(indexes, m.Indexes()...)
		}
		fields = append(fields, e.def.Fields()...)
		indexes = append(indexes, e.def.Indexes()...)

		hasID := false
		for _, f := range fields {
			if f.Descriptor().Name == "id" {
				hasID = true
				break
			}
		}
		if !hasID {
			t.AddPrimary(&schema.Column{Name: "id", Type: field.TypeInt, Increment: true})
		}

		for _, f := range fields {
			d := f.Descriptor()
			if d.Err != nil {
				return nil, fmt.Errorf("%s.%s: %w", e.table, d.Name, d.Err)
			}
			col := &schema.Column{
				Name:     d.Name,
				Type:     d.Info.Type,
				Unique:   d.Unique,
				Nullable: d.Optional,
				Size:     int64(d.Size),
				Default:  literalDefault(d.Default),
				Comment:  d.Comment,
			}
			if d.Name == "id" {
				t.AddPrimary(col)
				continue
			}
			t.AddColumn(col)
		}

		for _, idx := range indexes {
			d := idx.Descriptor()
			name := d.StorageKey
			if name == "" {
				name = strings.ToLower(e.table + "_" + strings.Join(d.Fields, "_"))
			}
			t.AddIndex(name, d.Unique, d.Fields)
		}
		tables = append(tables, t)
	}
	return tables, nil
}

// literalDefault keeps scalar defaults; function defaults such as time.Now
// are applied by the repositories on insert.
func literalDefault(v any) any {
	if v == nil || reflect.TypeOf(v).Kind() == reflect.Func {
		return nil
	}
	return v
}
