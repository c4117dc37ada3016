package core

import "strings"

// ObjectKind classifies a relation in the schema description.
type ObjectKind string

// Relation kinds accepted in a schema description.
const (
	KindTable ObjectKind = "table"
	KindView  ObjectKind = "view"
)

// Valid reports whether k is a known relation kind.
func (k ObjectKind) Valid() bool {
	return k == KindTable || k == KindView
}

// Qi is a qualified identifier: a relation name with its schema.
// An empty Schema means the relation is referenced by name only.
type Qi struct {
	Schema string
	Name   string
}

// String returns the dotted form used as a graph key and in messages.
func (q Qi) String() string {
	if q.Schema == "" {
		return q.Name
	}
	return q.Schema + "." + q.Name
}

// Column is a relation column as declared in the schema description.
type Column struct {
	Name       string
	DataType   string
	PrimaryKey bool
}

// ForeignKey links local columns of Table to columns of ReferencedTable.
type ForeignKey struct {
	Name              string
	Table             Qi
	Columns           []string
	ReferencedTable   Qi
	ReferencedColumns []string
}

// IsSelfReference reports whether the key points back at its own table.
func (fk *ForeignKey) IsSelfReference() bool {
	return fk.Table == fk.ReferencedTable
}

// Relation is a table or view.
type Relation struct {
	Kind        ObjectKind
	Name        string
	Columns     []Column
	ForeignKeys []ForeignKey

	columnIndex map[string]int
}

// NewRelation builds a relation and indexes its columns by name.
func NewRelation(kind ObjectKind, name string, columns []Column, fks []ForeignKey) *Relation {
	r := &Relation{
		Kind:        kind,
		Name:        name,
		Columns:     columns,
		ForeignKeys: fks,
		columnIndex: make(map[string]int, len(columns)),
	}
	for i, c := range columns {
		r.columnIndex[c.Name] = i
	}
	return r
}

// Column looks up a column by exact name.
func (r *Relation) Column(name string) (*Column, bool) {
	i, ok := r.columnIndex[name]
	if !ok {
		return nil, false
	}
	return &r.Columns[i], true
}

// ColumnNames returns the column names in declaration order.
func (r *Relation) ColumnNames() []string {
	names := make([]string, len(r.Columns))
	for i, c := range r.Columns {
		names[i] = c.Name
	}
	return names
}

// PrimaryKey returns the primary key column names in declaration order.
func (r *Relation) PrimaryKey() []string {
	var pk []string
	for _, c := range r.Columns {
		if c.PrimaryKey {
			pk = append(pk, c.Name)
		}
	}
	return pk
}

// IsView reports whether the relation is read-only.
func (r *Relation) IsView() bool {
	return r.Kind == KindView
}

// Schema is a named set of relations.
type Schema struct {
	Name      string
	Relations []*Relation

	relationIndex map[string]int
}

// NewSchema builds a schema and indexes its relations by name.
func NewSchema(name string, relations []*Relation) *Schema {
	s := &Schema{
		Name:          name,
		Relations:     relations,
		relationIndex: make(map[string]int, len(relations)),
	}
	for i, r := range relations {
		s.relationIndex[r.Name] = i
	}
	return s
}

// Relation looks up a relation by exact name.
func (s *Schema) Relation(name string) (*Relation, bool) {
	i, ok := s.relationIndex[name]
	if !ok {
		return nil, false
	}
	return s.Relations[i], true
}

// DataTypeOrUnknown returns the declared type of a column, or UnknownType
// when the column carries none.
func DataTypeOrUnknown(c *Column) string {
	if c == nil || strings.TrimSpace(c.DataType) == "" {
		return UnknownType
	}
	return c.DataType
}
