package adapter

import (
	"sort"

	"github.com/leapstack-labs/leaprest/pkg/catalog"
)

// DocumentBuilder assembles introspection rows into a schema description.
// Rows may arrive in any order; Document sorts schemas, objects and keys
// by name so repeated introspection of an unchanged database is stable.
type DocumentBuilder struct {
	schemas map[string]map[string]*catalog.ObjectDoc
	keys    map[string]map[string]*catalog.ForeignKeyDoc
}

// NewDocumentBuilder creates an empty builder.
func NewDocumentBuilder() *DocumentBuilder {
	return &DocumentBuilder{
		schemas: make(map[string]map[string]*catalog.ObjectDoc),
		keys:    make(map[string]map[string]*catalog.ForeignKeyDoc),
	}
}

// AddObject records a table or view. Adding it again keeps its columns.
func (b *DocumentBuilder) AddObject(schema, name, kind string) {
	b.object(schema, name).Kind = kind
}

// AddColumn appends a column to an object, creating the object as a table
// if it was not seen yet.
func (b *DocumentBuilder) AddColumn(schema, table string, col catalog.ColumnDoc) {
	obj := b.object(schema, table)
	obj.Columns = append(obj.Columns, col)
}

// AddForeignKeyColumn appends one column pair to a foreign key. Composite
// keys are reported one pair per row, in key order.
func (b *DocumentBuilder) AddForeignKeyColumn(schema, table, name string, refTable []string, column, refColumn string) {
	b.object(schema, table)
	id := schema + "." + table
	byName, ok := b.keys[id]
	if !ok {
		byName = make(map[string]*catalog.ForeignKeyDoc)
		b.keys[id] = byName
	}
	fk, ok := byName[name]
	if !ok {
		fk = &catalog.ForeignKeyDoc{
			Name:            name,
			Table:           []string{schema, table},
			ReferencedTable: refTable,
		}
		byName[name] = fk
	}
	fk.Columns = append(fk.Columns, column)
	fk.ReferencedColumns = append(fk.ReferencedColumns, refColumn)
}

// Document returns the assembled description.
func (b *DocumentBuilder) Document() *catalog.Document {
	doc := &catalog.Document{Schemas: []catalog.SchemaDoc{}}
	for _, schema := range sortedKeys(b.schemas) {
		objects := b.schemas[schema]
		sd := catalog.SchemaDoc{Name: schema, Objects: make([]catalog.ObjectDoc, 0, len(objects))}
		for _, name := range sortedKeys(objects) {
			obj := *objects[name]
			obj.ForeignKeys = []catalog.ForeignKeyDoc{}
			if byName, ok := b.keys[schema+"."+name]; ok {
				for _, fkName := range sortedKeys(byName) {
					obj.ForeignKeys = append(obj.ForeignKeys, *byName[fkName])
				}
			}
			if obj.Columns == nil {
				obj.Columns = []catalog.ColumnDoc{}
			}
			sd.Objects = append(sd.Objects, obj)
		}
		doc.Schemas = append(doc.Schemas, sd)
	}
	return doc
}

func (b *DocumentBuilder) object(schema, name string) *catalog.ObjectDoc {
	objects, ok := b.schemas[schema]
	if !ok {
		objects = make(map[string]*catalog.ObjectDoc)
		b.schemas[schema] = objects
	}
	obj, ok := objects[name]
	if !ok {
		obj = &catalog.ObjectDoc{Kind: "table", Name: name}
		objects[name] = obj
	}
	return obj
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
