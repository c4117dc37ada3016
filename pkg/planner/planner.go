// Package planner resolves a parsed request against a catalog.
//
// Planning checks every relation and column the request names, resolves
// each embedding to a foreign key path, adds the join conditions that path
// needs and types every filter value. The result is ready for a dialect.
package planner

import (
	"fmt"

	"github.com/leapstack-labs/leaprest/pkg/catalog"
	"github.com/leapstack-labs/leaprest/pkg/core"
)

// maxSelfJoins bounds the "<name>_<n>" aliases given to self embeddings.
const maxSelfJoins = 10

type planner struct {
	cat *catalog.Catalog
}

// Plan resolves req in place and returns it.
func Plan(cat *catalog.Catalog, req *core.ApiRequest) (*core.ApiRequest, error) {
	if req == nil || req.Query == nil {
		return nil, &core.ResolutionError{Kind: core.ResolveNotFound, Message: "Not Found", Details: "empty request"}
	}
	p := &planner{cat: cat}
	root := req.Query

	rel, ok := cat.Relation(root.Relation)
	if !ok {
		return nil, unknownRelation(root.Relation)
	}

	parent := root.Qualifier()
	if root.Kind.IsMutation() {
		if err := p.mutation(req, rel); err != nil {
			return nil, err
		}
		parent = core.Qi{Name: core.SourceAlias}
	}

	if err := p.node(root, rel, parent, 0); err != nil {
		return nil, err
	}

	if n := cat.Policy().MaxRows; n > 0 {
		root.CapRows(n)
	}
	return req, nil
}

// mutation checks the write fields of the root query and decides what the
// write returns.
func (p *planner) mutation(req *core.ApiRequest, rel *core.Relation) error {
	q := req.Query
	if rel.IsView() {
		return &core.UnsupportedFeatureError{
			Dialect: p.cat.Dialect().Name(),
			Feature: fmt.Sprintf("writing to view %q", rel.Name),
			Hint:    "write to the underlying table",
		}
	}
	for _, c := range q.Columns {
		if err := p.column(q.Relation, rel, c); err != nil {
			return err
		}
	}
	if q.OnConflict != nil {
		for _, c := range q.OnConflict.Columns {
			if err := p.column(q.Relation, rel, c); err != nil {
				return err
			}
		}
	}
	if req.ReturnRepresentation() {
		q.Returning = []string{"*"}
	} else {
		q.Returning = nil
	}
	return nil
}

// node resolves one query node. qualifier is the name its own columns are
// read through by embedded children.
func (p *planner) node(q *core.Query, rel *core.Relation, qualifier core.Qi, depth int) error {
	items, err := p.selectItems(q.Relation, rel, q.Select)
	if err != nil {
		return err
	}
	q.Select = items

	if err := p.conditions(q.Relation, rel, &q.Where); err != nil {
		return err
	}
	for _, t := range q.Order {
		if err := p.column(q.Relation, rel, t.Field.Name); err != nil {
			return err
		}
	}
	for _, f := range q.GroupBy {
		if err := p.column(q.Relation, rel, f.Name); err != nil {
			return err
		}
	}

	for _, s := range q.SubSelects {
		if err := p.embed(q.Relation, qualifier, s, depth); err != nil {
			return err
		}
	}
	return nil
}

// embed resolves an embedding of origin and plans its query.
func (p *planner) embed(origin, parent core.Qi, s *core.SubSelect, depth int) error {
	sub := s.Query
	if s.Join != nil {
		rel, ok := p.cat.Relation(sub.Relation)
		if !ok {
			return unknownRelation(sub.Relation)
		}
		return p.node(sub, rel, sub.Qualifier(), depth+1)
	}
	requested := sub.Relation.Name

	c, err := p.resolveJoin(origin, requested, s.Hint)
	if err != nil {
		return err
	}
	if c.target.Name != requested && s.Alias == "" {
		s.Alias = requested
	}
	sub.Relation = c.target
	if c.target == origin {
		if depth >= maxSelfJoins {
			return &core.ResolutionError{
				Kind:    core.ResolveNoRelationship,
				Message: fmt.Sprintf("self embedding of %s is nested too deeply", origin.Name),
			}
		}
		sub.Alias = fmt.Sprintf("%s_%d", c.target.Name, depth)
	}
	join := c.join
	s.Join = &join

	conds, tables := joinConditions(s.Join, parent)
	sub.Where.Conditions = append(conds, sub.Where.Conditions...)
	sub.JoinTables = append(sub.JoinTables, tables...)

	rel, _ := p.cat.Relation(c.target)
	return p.node(sub, rel, sub.Qualifier(), depth+1)
}

// selectItems expands * into the relation's columns and checks the rest.
func (p *planner) selectItems(qi core.Qi, rel *core.Relation, items []core.SelectItem) ([]core.SelectItem, error) {
	out := make([]core.SelectItem, 0, len(items))
	for _, item := range items {
		if item.Star {
			for _, c := range rel.Columns {
				out = append(out, core.SelectItem{Field: core.Field{Name: c.Name}})
			}
			continue
		}
		if err := p.column(qi, rel, item.Field.Name); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

// conditions checks the columns a tree filters on and types its values.
func (p *planner) conditions(qi core.Qi, rel *core.Relation, tree *core.ConditionTree) error {
	for _, c := range tree.Conditions {
		switch c := c.(type) {
		case *core.Single:
			if c.Filter.Kind == core.FilterCol {
				continue
			}
			col, ok := rel.Column(c.Field.Name)
			if !ok {
				return unknownColumn(qi, c.Field.Name)
			}
			typ := core.DataTypeOrUnknown(col)
			if len(c.Field.JSONPath) > 0 {
				typ = core.UnknownType
			}
			switch c.Filter.Kind {
			case core.FilterOp, core.FilterFts:
				c.Filter.Value.Type = typ
			case core.FilterIn:
				c.Filter.ListType = typ
			}
		case *core.Group:
			if err := p.conditions(qi, rel, &c.Tree); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *planner) column(qi core.Qi, rel *core.Relation, name string) error {
	if _, ok := rel.Column(name); !ok {
		return unknownColumn(qi, name)
	}
	return nil
}

func unknownRelation(qi core.Qi) error {
	return &core.ResolutionError{Kind: core.ResolveNotFound, Message: "Not Found", Details: fmt.Sprintf("relation %q does not exist", qi)}
}

func unknownColumn(qi core.Qi, name string) error {
	return &core.ResolutionError{
		Kind:    core.ResolveUnknownColumn,
		Message: fmt.Sprintf("column %s.%s does not exist", qi.Name, name),
	}
}
