package request

import (
	"strings"

	"github.com/leapstack-labs/leaprest/pkg/core"
	"github.com/leapstack-labs/leaprest/pkg/dialect"
)

// ---------- Select ----------

// parseSelect parses the select parameter into the items and embeddings of
// the root query. Embedded relations are resolved in schema.
func parseSelect(schema, src string) ([]core.SelectItem, []*core.SubSelect, error) {
	s := newScanner("select parameter", src)
	items, subs, err := s.selectList(schema, 0)
	if err != nil {
		return nil, nil, err
	}
	if err := s.end(); err != nil {
		return nil, nil, err
	}
	return items, subs, nil
}

func (s *scanner) selectList(schema string, depth int) ([]core.SelectItem, []*core.SubSelect, error) {
	if depth > core.MaxDepth {
		return nil, nil, s.errorf("embedding is nested deeper than %d levels", core.MaxDepth)
	}
	var (
		items []core.SelectItem
		subs  []*core.SubSelect
	)
	for {
		s.skipSpace()
		item, sub, err := s.selectEntry(schema, depth)
		if err != nil {
			return nil, nil, err
		}
		if sub != nil {
			subs = append(subs, sub)
		} else {
			items = append(items, item)
		}
		if !s.comma() {
			return items, subs, nil
		}
	}
}

// selectEntry reads one of: *, [alias:]field[->path][::cast], or
// [alias:]relation[!hint|.hint](...).
func (s *scanner) selectEntry(schema string, depth int) (core.SelectItem, *core.SubSelect, error) {
	if s.consume("*") {
		return core.SelectItem{Star: true}, nil, nil
	}
	if s.peek() == '$' {
		return core.SelectItem{}, nil, &core.ParseError{
			Kind:    core.ParseInvalidQuery,
			Message: "function calls in select are not supported",
			Details: s.rest(),
		}
	}

	alias := s.alias()
	name, err := s.name()
	if err != nil {
		return core.SelectItem{}, nil, err
	}

	save := s.pos
	hint := ""
	if s.consume("!") || s.consume(".") {
		if h, err := s.name(); err == nil && s.peek() == '(' {
			hint = h
		} else {
			s.pos = save
		}
	}
	if s.consume("(") {
		items, subs, err := s.selectList(schema, depth+1)
		if err != nil {
			return core.SelectItem{}, nil, err
		}
		if err := s.expect(")"); err != nil {
			return core.SelectItem{}, nil, err
		}
		return core.SelectItem{}, &core.SubSelect{
			Query: &core.Query{
				Kind:       core.QuerySelect,
				Relation:   core.Qi{Schema: schema, Name: name},
				Select:     items,
				SubSelects: subs,
			},
			Alias: alias,
			Hint:  hint,
		}, nil
	}

	path, err := s.jsonPath()
	if err != nil {
		return core.SelectItem{}, nil, err
	}
	cast, err := s.cast()
	if err != nil {
		return core.SelectItem{}, nil, err
	}
	return core.SelectItem{Field: core.Field{Name: name, JSONPath: path}, Alias: alias, Cast: cast}, nil, nil
}

// ---------- Filters ----------

// parseFilter parses the value of a filter parameter: [not.]op.value.
func parseFilter(src string) (core.Filter, bool, error) {
	s := newScanner("filter", src)
	f, negate, err := s.filter(false)
	if err != nil {
		return core.Filter{}, false, err
	}
	return f, negate, s.end()
}

// filter reads an operator and its value. Inside a logic tree (nested)
// plain values stop at "," or ")"; at the top level they run to the end.
func (s *scanner) filter(nested bool) (core.Filter, bool, error) {
	negate := s.consume("not.")

	start := s.pos
	for !s.eof() && isLetter(s.peek()) {
		s.pos++
	}
	op := s.src[start:s.pos]

	switch op {
	case "in":
		if err := s.expect("."); err != nil {
			return core.Filter{}, false, err
		}
		list, err := s.list()
		if err != nil {
			return core.Filter{}, false, err
		}
		return core.Filter{Kind: core.FilterIn, List: list}, negate, nil

	case "is":
		if err := s.expect("."); err != nil {
			return core.Filter{}, false, err
		}
		vstart := s.pos
		for !s.eof() && isLetter(s.peek()) {
			s.pos++
		}
		switch v := core.IsValue(strings.ToLower(s.src[vstart:s.pos])); v {
		case core.IsNull, core.IsTrue, core.IsFalse, core.IsUnknown:
			return core.Filter{Kind: core.FilterIs, Is: v}, negate, nil
		default:
			s.pos = vstart
			return core.Filter{}, false, s.errorf("expected null, true, false or unknown")
		}
	}

	if sqlOp, ok := dialect.LookupFullText(op); ok {
		var lang *core.Param
		if s.consume("(") {
			lstart := s.pos
			for !s.eof() && (isAlnum(s.peek()) || s.peek() == '_') {
				s.pos++
			}
			if s.pos == lstart {
				return core.Filter{}, false, s.errorf("expected a text search language")
			}
			lang = &core.Param{Value: s.src[lstart:s.pos], Type: core.TextType}
			if err := s.expect(")"); err != nil {
				return core.Filter{}, false, err
			}
		}
		if err := s.expect("."); err != nil {
			return core.Filter{}, false, err
		}
		v, err := s.value(nested)
		if err != nil {
			return core.Filter{}, false, err
		}
		return core.Filter{Kind: core.FilterFts, Operator: sqlOp, Value: core.Param{Value: v}, Language: lang}, negate, nil
	}

	sqlOp, ok := dialect.LookupOperator(op)
	if !ok {
		s.pos = start
		return core.Filter{}, false, s.errorf("unknown operator %q", op)
	}
	if err := s.expect("."); err != nil {
		return core.Filter{}, false, err
	}
	v, err := s.value(nested)
	if err != nil {
		return core.Filter{}, false, err
	}
	if op == "like" || op == "ilike" {
		v = strings.ReplaceAll(v, "*", "%")
	}
	return core.Filter{Kind: core.FilterOp, Operator: sqlOp, Value: core.Param{Value: v}}, negate, nil
}

// value reads a filter value. Nested values are a quoted string, a {...}
// literal, or text up to the next "," or ")".
func (s *scanner) value(nested bool) (string, error) {
	if !nested {
		v := s.rest()
		s.pos = len(s.src)
		return v, nil
	}
	switch s.peek() {
	case '"':
		return s.quoted()
	case '{':
		end := strings.IndexByte(s.rest(), '}')
		if end < 0 {
			return "", s.errorf("unterminated {")
		}
		v := s.src[s.pos : s.pos+end+1]
		s.pos += end + 1
		return v, nil
	}
	start := s.pos
	for !s.eof() && s.peek() != ',' && s.peek() != ')' {
		s.pos++
	}
	return s.src[start:s.pos], nil
}

// quoted reads a double-quoted string with backslash escapes.
func (s *scanner) quoted() (string, error) {
	if err := s.expect(`"`); err != nil {
		return "", err
	}
	var b strings.Builder
	for !s.eof() {
		c := s.peek()
		s.pos++
		switch c {
		case '\\':
			if s.eof() {
				return "", s.errorf("unterminated escape")
			}
			b.WriteByte(s.peek())
			s.pos++
		case '"':
			return b.String(), nil
		default:
			b.WriteByte(c)
		}
	}
	return "", s.errorf("unterminated quoted value")
}

// list reads (a,"b,c",d).
func (s *scanner) list() ([]string, error) {
	if err := s.expect("("); err != nil {
		return nil, err
	}
	list := []string{}
	if s.consume(")") {
		return list, nil
	}
	for {
		var (
			v   string
			err error
		)
		if s.peek() == '"' {
			v, err = s.quoted()
		} else {
			start := s.pos
			for !s.eof() && s.peek() != ',' && s.peek() != ')' {
				s.pos++
			}
			v = s.src[start:s.pos]
		}
		if err != nil {
			return nil, err
		}
		list = append(list, v)
		if s.consume(",") {
			continue
		}
		if err := s.expect(")"); err != nil {
			return nil, err
		}
		return list, nil
	}
}

// ---------- Logic trees ----------

// parseLogicTree parses the value of an and/or parameter, e.g.
// (id.eq.1,not.or(name.like.a*,name.is.null)).
func parseLogicTree(op core.LogicOp, negate bool, src string) (*core.Group, error) {
	s := newScanner("logic tree", src)
	tree, err := s.logicTree(op, 1)
	if err != nil {
		return nil, err
	}
	if err := s.end(); err != nil {
		return nil, err
	}
	return &core.Group{Tree: tree, Negate: negate}, nil
}

func (s *scanner) logicTree(op core.LogicOp, depth int) (core.ConditionTree, error) {
	if depth > core.MaxDepth {
		return core.ConditionTree{}, s.errorf("logic tree is nested deeper than %d levels", core.MaxDepth)
	}
	if err := s.expect("("); err != nil {
		return core.ConditionTree{}, err
	}
	tree := core.ConditionTree{Op: op}
	for {
		s.skipSpace()
		c, err := s.logicCondition(depth)
		if err != nil {
			return core.ConditionTree{}, err
		}
		tree.Conditions = append(tree.Conditions, c)
		if !s.comma() {
			break
		}
	}
	if err := s.expect(")"); err != nil {
		return core.ConditionTree{}, err
	}
	return tree, nil
}

func (s *scanner) logicCondition(depth int) (core.Condition, error) {
	save := s.pos
	negate := s.consume("not.")
	for _, kw := range []struct {
		word string
		op   core.LogicOp
	}{{"and", core.LogicAnd}, {"or", core.LogicOr}} {
		if s.hasPrefix(kw.word + "(") {
			s.pos += len(kw.word)
			tree, err := s.logicTree(kw.op, depth+1)
			if err != nil {
				return nil, err
			}
			return &core.Group{Tree: tree, Negate: negate}, nil
		}
	}
	s.pos = save

	field, err := s.field()
	if err != nil {
		return nil, err
	}
	if err := s.expect("."); err != nil {
		return nil, err
	}
	f, neg, err := s.filter(true)
	if err != nil {
		return nil, err
	}
	return &core.Single{Field: field, Filter: f, Negate: neg}, nil
}

// ---------- Order, group by, paging ----------

func parseOrder(src string) ([]core.OrderTerm, error) {
	s := newScanner("order parameter", src)
	var terms []core.OrderTerm
	for {
		s.skipSpace()
		f, err := s.field()
		if err != nil {
			return nil, err
		}
		t := core.OrderTerm{Field: f}
		switch {
		case s.consume(".asc"):
			t.Direction = core.OrderAsc
		case s.consume(".desc"):
			t.Direction = core.OrderDesc
		}
		switch {
		case s.consume(".nullsfirst"):
			t.Nulls = core.NullsFirst
		case s.consume(".nullslast"):
			t.Nulls = core.NullsLast
		}
		terms = append(terms, t)
		if !s.comma() {
			break
		}
	}
	return terms, s.end()
}

func parseGroupBy(src string) ([]core.Field, error) {
	s := newScanner("groupby parameter", src)
	var fields []core.Field
	for {
		s.skipSpace()
		f, err := s.field()
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
		if !s.comma() {
			break
		}
	}
	return fields, s.end()
}

func parseNames(what, src string) ([]string, error) {
	return newScanner(what, src).names()
}

// parseCount parses a limit or offset value.
func parseCount(what, src string) (*core.Param, error) {
	s := newScanner(what, src)
	start := s.pos
	for !s.eof() && isDigit(s.peek()) {
		s.pos++
	}
	if s.pos == start {
		return nil, s.errorf("expected a non-negative integer")
	}
	if err := s.end(); err != nil {
		return nil, err
	}
	return &core.Param{Value: src, Type: core.IntegerType}, nil
}

// ---------- Parameter keys ----------

// keyKind classifies a query-string key by its last path element.
type keyKind int

const (
	keyFilter keyKind = iota
	keyLogic
	keyOrder
	keyLimit
	keyOffset
	keyGroupBy
)

// key is a parsed query-string key: the embedding path it targets and, for
// filters, the filtered field.
type key struct {
	kind   keyKind
	path   []string
	field  core.Field
	logic  core.LogicOp
	negate bool
}

// parseKey splits "a.b.col->x", "a.not.or", "a.limit" and friends.
func parseKey(src string) (key, error) {
	s := newScanner("parameter name", src)
	var names []string
	for {
		n, err := s.name()
		if err != nil {
			return key{}, err
		}
		names = append(names, n)
		if !s.consume(".") {
			break
		}
	}
	path, err := s.jsonPath()
	if err != nil {
		return key{}, err
	}
	if err := s.end(); err != nil {
		return key{}, err
	}

	last := names[len(names)-1]
	k := key{path: names[:len(names)-1]}
	if len(path) == 0 {
		switch last {
		case "and", "or":
			k.kind = keyLogic
			if last == "or" {
				k.logic = core.LogicOr
			}
			if n := len(k.path); n > 0 && k.path[n-1] == "not" {
				k.negate = true
				k.path = k.path[:n-1]
			}
			return k, nil
		case "order":
			k.kind = keyOrder
			return k, nil
		case "limit":
			k.kind = keyLimit
			return k, nil
		case "offset":
			k.kind = keyOffset
			return k, nil
		case "groupby":
			k.kind = keyGroupBy
			return k, nil
		}
	}
	k.kind = keyFilter
	k.field = core.Field{Name: last, JSONPath: path}
	return k, nil
}
