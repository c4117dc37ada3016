package dialect

import (
	"strings"

	"github.com/leapstack-labs/leaprest/pkg/core"
	"github.com/leapstack-labs/leaprest/pkg/sqlfrag"
)

// EnvQuery renders the body of the env CTE: one text parameter per pair,
// named after its key, in the order given.
func (r *Renderer) EnvQuery(env []core.Pair) sqlfrag.Snippet {
	if len(env) == 0 {
		return sqlfrag.SQL("select null")
	}
	parts := make([]sqlfrag.Snippet, len(env))
	for i, p := range env {
		parts[i] = sqlfrag.Build(core.Param{Value: p.Value, Type: core.TextType}, " as "+r.Ident(p.Key))
	}
	return sqlfrag.Build("select ", sqlfrag.Join(parts, ","))
}

// ColumnList renders quoted column names separated by commas.
func (r *Renderer) ColumnList(columns []string) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = r.Ident(c)
	}
	return strings.Join(quoted, ",")
}

// SetList renders "col" = _."col" assignments for an update from a payload row.
func (r *Renderer) SetList(columns []string) string {
	parts := make([]string, len(columns))
	for i, c := range columns {
		parts[i] = r.Ident(c) + " = _." + r.Ident(c)
	}
	return strings.Join(parts, ",")
}

// OnConflict renders the upsert clause, or nothing when none is requested.
func (r *Renderer) OnConflict(q *core.Query) string {
	oc := q.OnConflict
	if oc == nil || len(oc.Columns) == 0 {
		return ""
	}
	target := make([]string, len(oc.Columns))
	for i, c := range oc.Columns {
		target[i] = r.Ident(c)
	}
	clause := "on conflict(" + strings.Join(target, ", ") + ") "
	if oc.Resolution == core.IgnoreDuplicates || len(q.Columns) == 0 {
		return clause + "do nothing"
	}
	sets := make([]string, len(q.Columns))
	for i, c := range q.Columns {
		sets[i] = r.Ident(c) + " = excluded." + r.Ident(c)
	}
	return clause + "do update set " + strings.Join(sets, ", ")
}

// Returning renders a returning list. An empty list returns the constant 1;
// a qualifier, when set, prefixes every column.
func (r *Renderer) Returning(qi *core.Qi, columns []string) string {
	if len(columns) == 0 {
		return "1"
	}
	parts := make([]string, len(columns))
	for i, c := range columns {
		col := r.Ident(c)
		if c == "*" {
			col = "*"
		}
		if qi != nil {
			col = r.Qi(*qi) + "." + col
		}
		parts[i] = col
	}
	return strings.Join(parts, ",")
}

// RequireColumns rejects writes that carry no columns where the statement needs some.
func (r *Renderer) RequireColumns(q *core.Query) error {
	if len(q.Columns) == 0 {
		return core.NewBodyError("request body has no columns to write")
	}
	return nil
}
