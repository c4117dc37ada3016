package sqlite

import (
	"strings"

	"github.com/leapstack-labs/leaprest/pkg/core"
	"github.com/leapstack-labs/leaprest/pkg/sqlfrag"
)

// selectQuery renders the root select wrapped as _subzero_query. Columns are
// selected plainly; the outer statement folds each row into a JSON object.
func (d *Dialect) selectQuery(q *core.Query) (sqlfrag.Snippet, error) {
	qi := q.Qualifier()
	items := make([]sqlfrag.Snippet, 0, len(q.Select)+len(q.SubSelects))
	for _, item := range q.Select {
		if item.Star {
			return sqlfrag.Snippet{}, d.Unsupported("select *", "list the columns explicitly")
		}
		items = append(items, sqlfrag.SQL(d.SelectItem(qi, item)))
	}
	for _, s := range q.SubSelects {
		expr, err := d.embed(qi, s)
		if err != nil {
			return sqlfrag.Snippet{}, err
		}
		items = append(items, expr.Append(" as "+d.Ident(s.OutputName())))
	}
	where, err := d.Where(qi, &q.Where)
	if err != nil {
		return sqlfrag.Snippet{}, err
	}

	return sqlfrag.Build(
		" select ", sqlfrag.Join(items, ", "),
		" from ", d.from(q), ", env",
		" ", d.joinTables(q),
		" ",
		"  ", where,
		" ", d.GroupBy(qi, q.GroupBy),
		" ", d.Order(qi, q.Order),
		" ", d.page(q),
	), nil
}

// rowItems renders the key/value pairs of the outer json_object.
func (d *Dialect) rowItems(q *core.Query) []string {
	items := make([]string, 0, len(q.Select)+len(q.SubSelects))
	for _, item := range q.Select {
		name := item.OutputName()
		items = append(items, d.Literal(name)+", _subzero_query."+d.Ident(name))
	}
	for _, s := range q.SubSelects {
		name := s.OutputName()
		items = append(items, d.Literal(name)+", json(_subzero_query."+d.Ident(name)+")")
	}
	return items
}

// embed renders an embedding as a scalar subquery producing JSON text.
func (d *Dialect) embed(parent core.Qi, s *core.SubSelect) (sqlfrag.Snippet, error) {
	if s.Join == nil {
		return sqlfrag.Snippet{}, &core.SchemaError{Message: "embedding " + s.OutputName() + " has no resolved relationship"}
	}
	sub, err := d.rowQuery(s.Query)
	if err != nil {
		return sqlfrag.Snippet{}, err
	}
	if s.Join.Kind.ToOne() {
		return sqlfrag.Build("(", sub, ")"), nil
	}
	return sqlfrag.Build("(select json_group_array(json(_subzero_e.row)) from (", sub, ") as _subzero_e)"), nil
}

// rowQuery renders an embedded query whose single column is a JSON object per row.
func (d *Dialect) rowQuery(q *core.Query) (sqlfrag.Snippet, error) {
	qi := q.Qualifier()
	pairs := make([]sqlfrag.Snippet, 0, len(q.Select)+len(q.SubSelects))
	for _, item := range q.Select {
		if item.Star {
			return sqlfrag.Snippet{}, d.Unsupported("select *", "list the columns explicitly")
		}
		expr := d.Field(qi, item.Field)
		if item.Cast != "" {
			expr = "cast(" + expr + " as " + item.Cast + ")"
		}
		pairs = append(pairs, sqlfrag.SQL(d.Literal(item.OutputName())+", "+expr))
	}
	for _, s := range q.SubSelects {
		expr, err := d.embed(qi, s)
		if err != nil {
			return sqlfrag.Snippet{}, err
		}
		pairs = append(pairs, sqlfrag.Build(d.Literal(s.OutputName())+", json(", expr, ")"))
	}
	where, err := d.Where(qi, &q.Where)
	if err != nil {
		return sqlfrag.Snippet{}, err
	}
	return sqlfrag.Build(
		" select json_object(", sqlfrag.Join(pairs, ", "), ") as row",
		" from ", d.from(q), d.joinTables(q),
		" ", where,
		" ", d.GroupBy(qi, q.GroupBy),
		" ", d.Order(qi, q.Order),
		" ", d.page(q),
	), nil
}

// page renders limit and offset. SQLite only accepts an offset after a
// limit, so a bare offset gets "limit -1", which means no limit.
func (d *Dialect) page(q *core.Query) sqlfrag.Snippet {
	if q.Limit == nil && q.Offset != nil {
		return sqlfrag.Build("limit -1 ", d.Offset(q.Offset))
	}
	return sqlfrag.Build(d.Limit(q.Limit), " ", d.Offset(q.Offset))
}

func (d *Dialect) countQuery(q *core.Query) (sqlfrag.Snippet, error) {
	where, err := d.Where(q.Relation, &q.Where)
	if err != nil {
		return sqlfrag.Snippet{}, err
	}
	return sqlfrag.Build(" _subzero_count_query as ( select 1 from ", d.Qi(q.Relation), d.joinTables(q), " ", where, " )"), nil
}

func (d *Dialect) from(q *core.Query) string {
	if q.Alias != "" {
		return d.Qi(q.Relation) + " as " + d.Ident(q.Alias)
	}
	return d.Qi(q.Relation)
}

func (d *Dialect) joinTables(q *core.Query) string {
	if len(q.JoinTables) == 0 {
		return ""
	}
	tables := make([]string, len(q.JoinTables))
	for i, t := range q.JoinTables {
		tables[i] = d.Qi(t)
	}
	return ", " + strings.Join(tables, ", ")
}
