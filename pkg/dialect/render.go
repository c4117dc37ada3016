package dialect

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/leapstack-labs/leaprest/pkg/core"
	"github.com/leapstack-labs/leaprest/pkg/sqlfrag"
)

// Renderer formats the dialect-independent parts of a query: identifiers,
// fields, conditions, ordering and paging. Dialects embed it and add their
// statement templates on top.
type Renderer struct {
	cfg        *core.DialectConfig
	jsonPath   JSONPathFunc
	listFilter ListFilterFunc
	operators  map[string]string
	isValues   map[core.IsValue]string
	disallowed map[string]string
}

// Name returns the dialect name.
func (r *Renderer) Name() string { return r.cfg.Name }

// Config returns the static dialect configuration.
func (r *Renderer) Config() *core.DialectConfig { return r.cfg }

// Placeholder returns a placeholder for the given parameter index (1-based).
// Returns "?" for PlaceholderQuestion style, "$1", "$2" etc. for PlaceholderDollar style.
func (r *Renderer) Placeholder(index int) string {
	switch r.cfg.Placeholder {
	case core.PlaceholderDollar:
		return "$" + strconv.Itoa(index)
	default:
		return "?"
	}
}

// Unsupported returns the error reported for a missing capability.
func (r *Renderer) Unsupported(feature, hint string) error {
	return &core.UnsupportedFeatureError{Dialect: r.cfg.Name, Feature: feature, Hint: hint}
}

// ---------- Identifiers and literals ----------

// Ident quotes an identifier using the dialect's quote characters.
func (r *Renderer) Ident(name string) string {
	id := r.cfg.Identifiers
	name = strings.ReplaceAll(name, "\x00", "")
	escaped := strings.ReplaceAll(name, id.QuoteEnd, id.Escape)
	return id.Quote + escaped + id.QuoteEnd
}

// Qi renders a relation reference, schema-qualified when the dialect wants it.
func (r *Renderer) Qi(qi core.Qi) string {
	if r.cfg.SchemaQualified && qi.Schema != "" {
		return r.Ident(qi.Schema) + "." + r.Ident(qi.Name)
	}
	return r.Ident(qi.Name)
}

// Literal renders s as a single-quoted string literal.
func (r *Renderer) Literal(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// ---------- Fields and select items ----------

// Column renders a column qualified by qi; an empty qi leaves it bare.
func (r *Renderer) Column(qi core.Qi, name string) string {
	if qi.Name == "" {
		return r.Ident(name)
	}
	return r.Qi(qi) + "." + r.Ident(name)
}

// Field renders a column with its JSON path.
func (r *Renderer) Field(qi core.Qi, f core.Field) string {
	col := r.Column(qi, f.Name)
	if len(f.JSONPath) == 0 {
		return col
	}
	return r.jsonPath(r, col, f.JSONPath)
}

// SelectItem renders one select list entry.
func (r *Renderer) SelectItem(qi core.Qi, item core.SelectItem) string {
	if item.Star {
		return r.Qi(qi) + ".*"
	}
	out := r.Field(qi, item.Field)
	if item.Cast != "" {
		out = "cast(" + out + " as " + item.Cast + ")"
	}
	if item.NeedsAlias() {
		out += " as " + r.Ident(item.OutputName())
	}
	return out
}

// ---------- Conditions ----------

// Where renders "where <tree>", or nothing for an empty tree.
func (r *Renderer) Where(qi core.Qi, tree *core.ConditionTree) (sqlfrag.Snippet, error) {
	if tree.Empty() {
		return sqlfrag.Snippet{}, nil
	}
	cond, err := r.ConditionTree(qi, tree)
	if err != nil {
		return sqlfrag.Snippet{}, err
	}
	return sqlfrag.Build("where ", cond), nil
}

// ConditionTree renders the conditions joined by the tree operator.
func (r *Renderer) ConditionTree(qi core.Qi, tree *core.ConditionTree) (sqlfrag.Snippet, error) {
	parts := make([]sqlfrag.Snippet, 0, len(tree.Conditions))
	for _, c := range tree.Conditions {
		s, err := r.Condition(qi, c)
		if err != nil {
			return sqlfrag.Snippet{}, err
		}
		parts = append(parts, s)
	}
	return sqlfrag.Join(parts, " "+tree.Op.String()+" "), nil
}

// Condition renders a single condition node.
func (r *Renderer) Condition(qi core.Qi, c core.Condition) (sqlfrag.Snippet, error) {
	switch c := c.(type) {
	case *core.Single:
		filter, err := r.Filter(c.Filter)
		if err != nil {
			return sqlfrag.Snippet{}, err
		}
		s := sqlfrag.Build(r.Field(qi, c.Field), " ", filter)
		if c.Negate {
			s = sqlfrag.Build("not(", s, ")")
		}
		return s, nil
	case *core.Group:
		inner, err := r.ConditionTree(qi, &c.Tree)
		if err != nil {
			return sqlfrag.Snippet{}, err
		}
		open := "("
		if c.Negate {
			open = "not("
		}
		return sqlfrag.Build(open, inner, ")"), nil
	case *core.Foreign:
		return sqlfrag.SQL(r.Field(c.Left, c.LeftField) + " = " + r.Field(c.Right, c.RightField)), nil
	default:
		return sqlfrag.Snippet{}, &core.SchemaError{Message: "unknown condition node"}
	}
}

// Filter renders the operator and value side of a condition.
func (r *Renderer) Filter(f core.Filter) (sqlfrag.Snippet, error) {
	switch f.Kind {
	case core.FilterOp:
		op, err := r.operator(f.Operator)
		if err != nil {
			return sqlfrag.Snippet{}, err
		}
		return sqlfrag.Build(op, " ", f.Value), nil
	case core.FilterIn:
		typ := f.ListType
		if r.cfg.ListParamType != "" {
			typ = r.cfg.ListParamType
		}
		return r.listFilter(r, f.List, typ), nil
	case core.FilterIs:
		v := string(f.Is)
		if alt, ok := r.isValues[f.Is]; ok {
			v = alt
		}
		return sqlfrag.SQL("is " + v), nil
	case core.FilterFts:
		op, err := r.operator(f.Operator)
		if err != nil {
			return sqlfrag.Snippet{}, err
		}
		if f.Language != nil {
			return sqlfrag.Build(op, " (", *f.Language, ",", f.Value, ")"), nil
		}
		return sqlfrag.Build(op, " (", f.Value, ")"), nil
	case core.FilterCol:
		return sqlfrag.SQL("= " + r.Field(f.ColumnOf, f.Column)), nil
	default:
		return sqlfrag.Snippet{}, &core.SchemaError{Message: "unknown filter kind"}
	}
}

func (r *Renderer) operator(op string) (string, error) {
	if feature, ok := r.disallowed[op]; ok {
		return "", r.Unsupported(feature, "")
	}
	if alt, ok := r.operators[op]; ok {
		return alt, nil
	}
	return op, nil
}

// ---------- Ordering, grouping and paging ----------

// Order renders "order by ..." or nothing.
func (r *Renderer) Order(qi core.Qi, terms []core.OrderTerm) string {
	if len(terms) == 0 {
		return ""
	}
	parts := make([]string, len(terms))
	for i, t := range terms {
		s := r.Field(qi, t.Field)
		switch t.Direction {
		case core.OrderAsc:
			s += " asc"
		case core.OrderDesc:
			s += " desc"
		}
		switch t.Nulls {
		case core.NullsFirst:
			s += " nulls first"
		case core.NullsLast:
			s += " nulls last"
		}
		parts[i] = s
	}
	return "order by " + strings.Join(parts, ", ")
}

// GroupBy renders "group by ..." or nothing.
func (r *Renderer) GroupBy(qi core.Qi, fields []core.Field) string {
	if len(fields) == 0 {
		return ""
	}
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = r.Field(qi, f)
	}
	return "group by " + strings.Join(parts, ", ")
}

// Limit renders "limit <param>" or nothing.
func (r *Renderer) Limit(p *core.Param) sqlfrag.Snippet {
	if p == nil {
		return sqlfrag.Snippet{}
	}
	return sqlfrag.Build("limit ", *p)
}

// Offset renders "offset <param>" or nothing.
func (r *Renderer) Offset(p *core.Param) sqlfrag.Snippet {
	if p == nil {
		return sqlfrag.Snippet{}
	}
	return sqlfrag.Build("offset ", *p)
}

// ---------- Shared helpers ----------

// ArrowJSONPath renders a path with -> and ->> over to_jsonb of the column.
func ArrowJSONPath(r *Renderer, column string, path []core.JSONOperation) string {
	var b strings.Builder
	b.WriteString("to_jsonb(" + column + ")")
	for _, op := range path {
		if op.Text {
			b.WriteString("->>")
		} else {
			b.WriteString("->")
		}
		if op.Index {
			b.WriteString(op.Operand)
		} else {
			b.WriteString(r.Literal(op.Operand))
		}
	}
	return b.String()
}

// ArrayListFilter renders "= any (<array literal>)".
func ArrayListFilter(_ *Renderer, list []string, paramType string) sqlfrag.Snippet {
	return sqlfrag.Build("= any (", core.Param{Value: ArrayLiteral(list), Type: paramType}, ")")
}

// ArrayLiteral encodes values as a text array literal: {"a","b"}.
func ArrayLiteral(values []string) string {
	var b strings.Builder
	b.WriteByte('{')
	for i, v := range values {
		if i > 0 {
			b.WriteByte(',')
		}
		v = strings.ReplaceAll(v, `\`, `\\`)
		v = strings.ReplaceAll(v, `"`, `\"`)
		b.WriteString(`"` + v + `"`)
	}
	b.WriteByte('}')
	return b.String()
}

// JSONList encodes values as a JSON array of strings.
func JSONList(values []string) string {
	if values == nil {
		values = []string{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// []string always encodes
	_ = enc.Encode(values)
	return strings.TrimSuffix(buf.String(), "\n")
}
