package postgres

import (
	"github.com/leapstack-labs/leaprest/pkg/core"
	"github.com/leapstack-labs/leaprest/pkg/dialect"
	"github.com/leapstack-labs/leaprest/pkg/sqlfrag"
)

func init() {
	dialect.Register(Postgres)
}

// Dialect renders requests as PostgreSQL statements. A request is answered
// by a single statement: writes run inside a CTE and the rows they touch
// are read back by the outer select.
type Dialect struct {
	*dialect.Renderer
}

// Postgres is the PostgreSQL dialect.
var Postgres = &Dialect{
	Renderer: dialect.New(Config).Build(),
}

const (
	jsonBody     = "coalesce(json_agg(_subzero_t), '[]')::character varying"
	singularBody = "coalesce((json_agg(_subzero_t)->0)::text, 'null')"
	csvBody      = "(SELECT coalesce(string_agg(a.k, ','), '')" +
		" FROM (SELECT json_object_keys(r)::text as k" +
		" FROM (SELECT row_to_json(hh) as r from _subzero_query as hh limit 1) s) a)" +
		" || chr(10) ||" +
		" coalesce(string_agg(substring(_subzero_t::text, 2, length(_subzero_t::text) - 2), chr(10)), '')"
	constraintsCheck = "(select coalesce(bool_and(_subzero_check__constraint),true) from subzero_source) as constraints_satisfied, "
)

// EnvStatement sets each env pair as a transaction-local setting.
func (d *Dialect) EnvStatement(env []core.Pair) sqlfrag.Snippet {
	if len(env) == 0 {
		return sqlfrag.SQL("select null")
	}
	calls := make([]sqlfrag.Snippet, len(env))
	for i, p := range env {
		calls[i] = sqlfrag.Build(
			"set_config(",
			core.Param{Value: p.Key, Type: core.TextType},
			", ",
			core.Param{Value: p.Value, Type: core.TextType},
			", true)",
		)
	}
	return sqlfrag.Build("select ", sqlfrag.Join(calls, ","))
}

// MainStatement renders the statement that answers req in one round trip.
func (d *Dialect) MainStatement(req *core.ApiRequest) (sqlfrag.Snippet, error) {
	q := req.Query
	rep := req.ReturnRepresentation()

	var body string
	switch {
	case !rep:
		body = "''"
	case req.Accept == core.ContentSingular:
		body = singularBody
	case req.Accept == core.ContentCSV:
		body = csvBody
	default:
		body = jsonBody
	}

	cte, sel, err := d.query(q, rep)
	if err != nil {
		return sqlfrag.Snippet{}, err
	}
	var wrapped sqlfrag.Snippet
	if cte.IsEmpty() {
		wrapped = sqlfrag.Build(" _subzero_query as ( ", sel, " )")
	} else {
		wrapped = sqlfrag.Build(" ", cte, " , ", "_subzero_query as ( ", sel, " )")
	}

	count := req.CountExact()
	countQuery := sqlfrag.SQL("_subzero_count_query AS (select 1)")
	total := "null::bigint"
	if count {
		countQuery, err = d.countQuery(q)
		if err != nil {
			return sqlfrag.Snippet{}, err
		}
		total = "(SELECT pg_catalog.count(*) FROM _subzero_count_query)"
	}

	constraints := "true as constraints_satisfied, "
	if q.Kind == core.QueryInsert || q.Kind == core.QueryUpdate {
		constraints = constraintsCheck
	}

	return sqlfrag.Build(
		"with",
		" env as materialized (", d.EnvQuery(req.Env), ")",
		" , ",
		wrapped,
		" , ",
		countQuery,
		" select",
		" pg_catalog.count(_subzero_t) as page_total, ",
		total, " as total_result_set, ",
		body, " as body, ",
		constraints,
		" nullif(current_setting('response.headers', true), '') as response_headers, ",
		" nullif(current_setting('response.status', true), '') as response_status ",
		" from ( select * from _subzero_query ) _subzero_t",
	), nil
}

// MutateStatement renders the write half of a two-stage request. It returns
// the primary key of every row the write touched, then the constraint flag.
func (d *Dialect) MutateStatement(req *core.ApiRequest) (sqlfrag.Snippet, error) {
	q := req.Query
	if !q.Kind.IsMutation() {
		return sqlfrag.Snippet{}, d.Unsupported("two-stage "+q.Kind.String(), "reads compile to a single statement")
	}
	if len(q.Returning) == 0 {
		return sqlfrag.Snippet{}, d.Unsupported("two-stage writes without a primary key", "")
	}
	cte, err := d.mutation(q)
	if err != nil {
		return sqlfrag.Snippet{}, err
	}
	return sqlfrag.Build(
		"with env as materialized (", d.EnvQuery(req.Env), ") , ",
		cte,
		" select ", d.ColumnList(q.Returning), ", _subzero_check__constraint from ", d.Ident(core.SourceAlias),
	), nil
}
