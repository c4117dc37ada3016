package postgres

import (
	"strings"

	"github.com/leapstack-labs/leaprest/pkg/core"
	"github.com/leapstack-labs/leaprest/pkg/sqlfrag"
)

var sourceQi = core.Qi{Name: core.SourceAlias}

// query renders q as an optional CTE prefix and the select that produces
// the response rows.
func (d *Dialect) query(q *core.Query, rep bool) (cte, sel sqlfrag.Snippet, err error) {
	if q.Kind == core.QuerySelect {
		sel, err = d.selectQuery(q, true)
		return sqlfrag.Snippet{}, sel, err
	}
	if cte, err = d.mutation(q); err != nil {
		return sqlfrag.Snippet{}, sqlfrag.Snippet{}, err
	}
	if !rep {
		return cte, sqlfrag.SQL(" select * from " + d.Ident(core.SourceAlias)), nil
	}

	items, joins, err := d.items(sourceQi, q)
	if err != nil {
		return sqlfrag.Snippet{}, sqlfrag.Snippet{}, err
	}
	sel = sqlfrag.Build(" select ", sqlfrag.Join(items, ", "), " from ", d.Ident(core.SourceAlias), " ", sqlfrag.Join(joins, " "))
	if q.Kind != core.QueryUpdate {
		where, err := d.Where(sourceQi, &q.Where)
		if err != nil {
			return sqlfrag.Snippet{}, sqlfrag.Snippet{}, err
		}
		sel = sel.Append(" ", where)
	}
	return cte, sel, nil
}

// items renders the select list of q, embeddings included, and the lateral
// joins the to-one embeddings need.
func (d *Dialect) items(qi core.Qi, q *core.Query) (items, joins []sqlfrag.Snippet, err error) {
	for _, item := range q.Select {
		items = append(items, sqlfrag.SQL(d.SelectItem(qi, item)))
	}
	for _, s := range q.SubSelects {
		item, join, err := d.subSelect(qi, s)
		if err != nil {
			return nil, nil, err
		}
		items = append(items, item)
		if !join.IsEmpty() {
			joins = append(joins, join)
		}
	}
	return items, joins, nil
}

func (d *Dialect) selectQuery(q *core.Query, top bool) (sqlfrag.Snippet, error) {
	qi := q.Qualifier()
	from := d.Qi(q.Relation)
	if q.Alias != "" {
		from += " as " + d.Ident(q.Alias)
	}
	items, joins, err := d.items(qi, q)
	if err != nil {
		return sqlfrag.Snippet{}, err
	}
	where, err := d.Where(qi, &q.Where)
	if err != nil {
		return sqlfrag.Snippet{}, err
	}

	s := sqlfrag.Build(" select ", sqlfrag.Join(items, ", "), " from ", from)
	if top {
		s = s.Append(", env ")
	}
	if len(q.JoinTables) > 0 {
		tables := make([]string, len(q.JoinTables))
		for i, t := range q.JoinTables {
			tables[i] = d.Qi(t)
		}
		s = s.Append(", " + strings.Join(tables, ", "))
	}
	return s.Append(
		" ", sqlfrag.Join(joins, " "),
		" ", where,
		" ", d.GroupBy(qi, q.GroupBy), " ", d.Order(qi, q.Order),
		" ", d.Limit(q.Limit),
		" ", d.Offset(q.Offset),
	), nil
}

// subSelect renders an embedding as a select list item. To-one embeddings
// also return the lateral join that produces their row.
func (d *Dialect) subSelect(parent core.Qi, s *core.SubSelect) (item, join sqlfrag.Snippet, err error) {
	if s.Join == nil {
		return item, join, &core.SchemaError{Message: "embedding " + s.OutputName() + " has no resolved relationship"}
	}
	sub, err := d.selectQuery(s.Query, false)
	if err != nil {
		return item, join, err
	}
	name := d.Ident(s.OutputName())
	if s.Join.Kind.ToOne() {
		local := d.Ident(parent.Name + "_" + s.OutputName())
		item = sqlfrag.SQL("row_to_json(" + local + ".*) as " + name)
		join = sqlfrag.Build("left join lateral (", sub, ") as "+local+" on true")
		return item, join, nil
	}
	local := d.Ident(s.Query.Qualifier().Name)
	item = sqlfrag.Build("coalesce((select json_agg("+local+".*) from (", sub, ") as "+local+"), '[]') as "+name)
	return item, join, nil
}

func (d *Dialect) countQuery(q *core.Query) (sqlfrag.Snippet, error) {
	if q.Kind.IsMutation() {
		return sqlfrag.SQL(" _subzero_count_query as ( select 1 from " + d.Ident(core.SourceAlias) + " )"), nil
	}
	tables := []string{d.Qi(q.Relation)}
	for _, t := range q.JoinTables {
		tables = append(tables, d.Qi(t))
	}
	where, err := d.Where(q.Relation, &q.Where)
	if err != nil {
		return sqlfrag.Snippet{}, err
	}
	return sqlfrag.Build(" _subzero_count_query as ( select 1 from ", strings.Join(tables, ", "), " ", where, " )"), nil
}

func (d *Dialect) payload(q *core.Query) (sqlfrag.Snippet, error) {
	if q.Payload == nil {
		return sqlfrag.Snippet{}, core.NewBodyError("request body is required")
	}
	return sqlfrag.Build(
		" subzero_payload as ( select ", *q.Payload, "::json as json_data ),",
		" subzero_body as (",
		" select",
		" case when json_typeof(json_data) = 'array'",
		" then json_data",
		" else json_build_array(json_data)",
		" end as val",
		" from subzero_payload",
		" )",
	), nil
}

// mutation renders the CTE that performs the write as subzero_source.
func (d *Dialect) mutation(q *core.Query) (sqlfrag.Snippet, error) {
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
		where, err := d.Where(core.Qi{Name: "_"}, &q.Where)
		if err != nil {
			return sqlfrag.Snippet{}, err
		}
		if !where.IsEmpty() {
			where = where.Append(" ")
		}
		cols := d.ColumnList(q.Columns)
		return sqlfrag.Build(
			body, ", subzero_source as ( ",
			" insert into ", qi, " (", cols, ")",
			" select ", cols,
			" from json_populate_recordset(null::", qi, ", (select val from subzero_body)) _ ",
			" ", where, d.OnConflict(q),
			" returning ", d.Returning(nil, q.Returning),
			", true  as _subzero_check__constraint ",
			" )",
		), nil

	case core.QueryUpdate:
		if len(q.Columns) == 0 {
			sel := "null"
			if len(q.Returning) > 0 {
				sel = d.Returning(&q.Relation, q.Returning)
			}
			return sqlfrag.SQL(" subzero_source as (select " + sel + ", true as _subzero_check__constraint from " + qi + " where false )"), nil
		}
		body, err := d.payload(q)
		if err != nil {
			return sqlfrag.Snippet{}, err
		}
		where, err := d.Where(q.Relation, &q.Where)
		if err != nil {
			return sqlfrag.Snippet{}, err
		}
		return sqlfrag.Build(
			body, ", subzero_source as ( ",
			" update ", qi, " set ", d.SetList(q.Columns),
			" from (select * from json_populate_recordset (null::", qi, " , (select val from subzero_body) )) _ ",
			" ", where,
			" returning ", d.Returning(&q.Relation, q.Returning),
			", true as _subzero_check__constraint ",
			" )",
		), nil

	case core.QueryDelete:
		where, err := d.Where(q.Relation, &q.Where)
		if err != nil {
			return sqlfrag.Snippet{}, err
		}
		return sqlfrag.Build(
			" subzero_source as ( ",
			" delete from ", qi, " ", where,
			" returning ", d.Returning(nil, q.Returning),
			", true as _subzero_check__constraint ",
			" )",
		), nil

	default:
		return sqlfrag.Snippet{}, d.Unsupported(q.Kind.String()+" as a write", "")
	}
}
