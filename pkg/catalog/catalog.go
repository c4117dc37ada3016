// Package catalog loads and validates schema descriptions.
//
// A Catalog is immutable once Load returns and may be shared by any number
// of concurrent compiles. It carries the dialect the schema was described
// for, the license mode and the graph of foreign keys between relations.
package catalog

import (
	"sort"

	"github.com/leapstack-labs/leaprest/internal/dag"
	"github.com/leapstack-labs/leaprest/pkg/core"
	"github.com/leapstack-labs/leaprest/pkg/dialect"
	"github.com/leapstack-labs/leaprest/pkg/license"
)

// Catalog is a validated set of schemas.
type Catalog struct {
	dialect dialect.Dialect
	schemas []*core.Schema
	index   map[string]int
	graph   *dag.Graph

	demo   bool
	claims *license.Claims
	policy DemoPolicy
}

// Dialect returns the dialect the catalog compiles for.
func (c *Catalog) Dialect() dialect.Dialect { return c.dialect }

// IsDemo reports whether the catalog runs without a full license.
func (c *Catalog) IsDemo() bool { return c.demo }

// Claims returns the verified license claims, or nil in demo mode.
func (c *Catalog) Claims() *license.Claims { return c.claims }

// Policy returns the demo limits in effect. Full catalogs report no limits.
func (c *Catalog) Policy() DemoPolicy {
	if !c.demo {
		return DemoPolicy{}
	}
	return c.policy
}

// Graph returns the relation graph. Callers must not modify it.
func (c *Catalog) Graph() *dag.Graph { return c.graph }

// Schemas returns the schemas in declaration order.
func (c *Catalog) Schemas() []*core.Schema { return c.schemas }

// Schema looks up a schema by name.
func (c *Catalog) Schema(name string) (*core.Schema, bool) {
	i, ok := c.index[name]
	if !ok {
		return nil, false
	}
	return c.schemas[i], true
}

// Relation looks up a relation.
func (c *Catalog) Relation(qi core.Qi) (*core.Relation, bool) {
	s, ok := c.Schema(qi.Schema)
	if !ok {
		return nil, false
	}
	return s.Relation(qi.Name)
}

// Column looks up a column of a relation.
func (c *Catalog) Column(qi core.Qi, name string) (*core.Column, bool) {
	r, ok := c.Relation(qi)
	if !ok {
		return nil, false
	}
	return r.Column(name)
}

// PrimaryKey returns the primary key columns of a relation.
func (c *Catalog) PrimaryKey(qi core.Qi) []string {
	r, ok := c.Relation(qi)
	if !ok {
		return nil
	}
	return r.PrimaryKey()
}

// RelationCount returns the number of relations across all schemas.
func (c *Catalog) RelationCount() int {
	n := 0
	for _, s := range c.schemas {
		n += len(s.Relations)
	}
	return n
}

// OutgoingKeys returns the foreign keys owned by a relation.
func (c *Catalog) OutgoingKeys(qi core.Qi) []*core.ForeignKey {
	return keys(c.graph.OutEdges(qi.String()))
}

// IncomingKeys returns the foreign keys that reference a relation,
// self references included.
func (c *Catalog) IncomingKeys(qi core.Qi) []*core.ForeignKey {
	return keys(c.graph.InEdges(qi.String()))
}

// KeysBetween returns the foreign keys owned by from that reference to.
func (c *Catalog) KeysBetween(from, to core.Qi) []*core.ForeignKey {
	return keys(c.graph.EdgesBetween(from.String(), to.String()))
}

// ForeignKey looks up a key owned by or referencing a relation by name.
func (c *Catalog) ForeignKey(qi core.Qi, name string) []*core.ForeignKey {
	var found []*core.ForeignKey
	for _, fk := range c.OutgoingKeys(qi) {
		if fk.Name == name {
			found = append(found, fk)
		}
	}
	for _, fk := range c.IncomingKeys(qi) {
		if fk.Name == name && !fk.IsSelfReference() {
			found = append(found, fk)
		}
	}
	return found
}

// RelationNames returns every relation as "schema.name", sorted.
func (c *Catalog) RelationNames() []string {
	var names []string
	for _, s := range c.schemas {
		for _, r := range s.Relations {
			names = append(names, core.Qi{Schema: s.Name, Name: r.Name}.String())
		}
	}
	sort.Strings(names)
	return names
}

func keys(edges []dag.Edge) []*core.ForeignKey {
	if len(edges) == 0 {
		return nil
	}
	fks := make([]*core.ForeignKey, 0, len(edges))
	for _, e := range edges {
		fks = append(fks, e.Data.(*core.ForeignKey))
	}
	return fks
}
