package sqlite

import (
	"strconv"
	"strings"

	"github.com/leapstack-labs/leaprest/pkg/core"
	"github.com/leapstack-labs/leaprest/pkg/dialect"
	"github.com/leapstack-labs/leaprest/pkg/sqlfrag"
)

func init() {
	dialect.Register(SQLite)
}

// Dialect renders requests as SQLite statements. Reads compile to a single
// statement; writes compile to a mutate statement returning primary keys
// followed by a select over those keys.
type Dialect struct {
	*dialect.Renderer
}

// SQLite is the SQLite dialect.
var SQLite = &Dialect{
	Renderer: dialect.New(Config).
		JSONPath(jsonExtract).
		ListFilter(jsonEachList).
		RewriteOperator("ilike", "like").
		RewriteIs(core.IsUnknown, "null").
		Build(),
}

const (
	jsonBody     = "json_group_array(json(_subzero_t.row))"
	singularBody = "coalesce(json_extract(json_group_array(json(_subzero_t.row)), '$[0]'), 'null')"
)

// EnvStatement is inert: SQLite has no session settings, so env values
// only reach SQL through the env CTE of each statement.
func (d *Dialect) EnvStatement(_ []core.Pair) sqlfrag.Snippet {
	return sqlfrag.SQL("select null")
}

// MainStatement renders a read request.
func (d *Dialect) MainStatement(req *core.ApiRequest) (sqlfrag.Snippet, error) {
	q := req.Query
	if q.Kind.IsMutation() {
		return sqlfrag.Snippet{}, d.Unsupported("single statement "+q.Kind.String(), "use the two-stage flow for writes")
	}

	var body string
	switch req.Accept {
	case core.ContentCSV:
		return sqlfrag.Snippet{}, d.Unsupported("text/csv responses", "request application/json")
	case core.ContentSingular:
		body = singularBody
	default:
		body = jsonBody
	}

	sel, err := d.selectQuery(q)
	if err != nil {
		return sqlfrag.Snippet{}, err
	}

	countQuery := sqlfrag.SQL(" _subzero_count_query as (select 1)")
	total := "null"
	if req.CountExact() {
		if countQuery, err = d.countQuery(q); err != nil {
			return sqlfrag.Snippet{}, err
		}
		total = "(SELECT count(*) FROM _subzero_count_query)"
	}

	return sqlfrag.Build(
		"with env as materialized (", d.EnvQuery(req.Env), "), ",
		" _subzero_query as ( ", sel, " )",
		" ,",
		countQuery,
		" select count(_subzero_t.row) AS page_total, ",
		total, " as total_result_set, ",
		body, " as body, ",
		" null as response_headers, ",
		" null as response_status, ",
		" true as constraints_satisfied ",
		" from ( ",
		"    select json_object(", strings.Join(d.rowItems(q), ","), "     ) as row",
		"     from _subzero_query",
		" ) _subzero_t",
	), nil
}

// MutateStatement renders the write half of a two-stage request.
func (d *Dialect) MutateStatement(req *core.ApiRequest) (sqlfrag.Snippet, error) {
	q := req.Query
	returning := q.Returning
	if len(returning) == 0 {
		returning = []string{d.Config().ImplicitRowID}
	}
	ret := d.Returning(nil, returning) + ", 1 " + " as _subzero_check__constraint "
	env := sqlfrag.Build("with env as materialized (", d.EnvQuery(req.Env), ")")
	qi := d.Qi(q.Relation)

	switch q.Kind {
	case core.QueryInsert:
		if err := d.RequireColumns(q); err != nil {
			return sqlfrag.Snippet{}, err
		}
		body, err := d.payload(q)
		if err != nil {
			return sqlfrag.Snippet{}, err
		}
		// a PUT key filter already matched the payload keys during parsing,
		// and json_extract values never equal the text-bound filter values
		filter := sqlfrag.SQL(" where true ")
		if !q.Where.Empty() && req.Method != "PUT" {
			cond, err := d.ConditionTree(core.Qi{Name: "_"}, &q.Where)
			if err != nil {
				return sqlfrag.Snippet{}, err
			}
			filter = sqlfrag.Build(" where ", cond, " ")
		}
		if oc := d.OnConflict(q); oc != "" {
			filter = filter.Append(oc)
		}
		cols := d.ColumnList(q.Columns)
		return sqlfrag.Build(
			env, " , ", body,
			" insert into ", qi, " (", cols, ")",
			" select ", cols, " from subzero_body _ ",
			filter,
			" returning ", ret,
		), nil

	case core.QueryUpdate:
		where, err := d.Where(q.Relation, &q.Where)
		if err != nil {
			return sqlfrag.Snippet{}, err
		}
		if len(q.Columns) == 0 {
			return sqlfrag.Build(env, " select ", d.ColumnList(returning), " from ", qi, " where false "), nil
		}
		body, err := d.payload(q)
		if err != nil {
			return sqlfrag.Snippet{}, err
		}
		return sqlfrag.Build(
			env, " , ", body,
			" update ", qi, " set ", d.SetList(q.Columns),
			" from (select * from subzero_body) _ ",
			" ", where,
			" returning ", ret,
		), nil

	case core.QueryDelete:
		where, err := d.Where(q.Relation, &q.Where)
		if err != nil {
			return sqlfrag.Snippet{}, err
		}
		return sqlfrag.Build(
			env, " ",
			" delete from ", qi, " ", where,
			" returning ", ret,
		), nil

	default:
		return sqlfrag.Snippet{}, d.Unsupported("two-stage "+q.Kind.String(), "reads compile to a single statement")
	}
}

func (d *Dialect) payload(q *core.Query) (sqlfrag.Snippet, error) {
	if q.Payload == nil {
		return sqlfrag.Snippet{}, core.NewBodyError("request body is required")
	}
	extracts := make([]string, len(q.Columns))
	for i, c := range q.Columns {
		path := jsonPathExpr([]core.JSONOperation{{Operand: c}})
		extracts[i] = "json_extract(value, " + d.Literal(path) + ") as " + d.Ident(c)
	}
	return sqlfrag.Build(
		" subzero_payload as ( select ", *q.Payload, " as json_data ),",
		" subzero_body as ( select ", strings.Join(extracts, ", "),
		" from (select value from json_each((",
		" select case when json_type(json_data) = 'array' then json_data else json_array(json_data) end as val",
		" from subzero_payload ))) )",
	), nil
}

// jsonExtract renders a JSON path with json_extract.
func jsonExtract(r *dialect.Renderer, column string, path []core.JSONOperation) string {
	return "json_extract(" + column + ", " + r.Literal(jsonPathExpr(path)) + ")"
}

// jsonPathExpr builds a SQLite JSON path such as $.a."b c"[0].
func jsonPathExpr(path []core.JSONOperation) string {
	var b strings.Builder
	b.WriteString("$")
	for _, op := range path {
		if op.Index {
			if n, err := strconv.Atoi(op.Operand); err == nil && n < 0 {
				b.WriteString("[#" + op.Operand + "]")
			} else {
				b.WriteString("[" + op.Operand + "]")
			}
			continue
		}
		if plainKey(op.Operand) {
			b.WriteString("." + op.Operand)
		} else {
			b.WriteString(`."` + strings.ReplaceAll(op.Operand, `"`, `\"`) + `"`)
		}
	}
	return b.String()
}

func plainKey(k string) bool {
	if k == "" {
		return false
	}
	for _, c := range k {
		if c != '_' && (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}

// jsonEachList renders "in ( select value from json_each(<json array>) )".
func jsonEachList(_ *dialect.Renderer, list []string, paramType string) sqlfrag.Snippet {
	return sqlfrag.Build("in ( select value from json_each(", core.Param{Value: dialect.JSONList(list), Type: paramType}, ") )")
}
