package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/leaprest/internal/dag"
	"github.com/leapstack-labs/leaprest/pkg/core"
	"github.com/leapstack-labs/leaprest/pkg/dialect"
	"github.com/leapstack-labs/leaprest/pkg/license"
)

// placeholderSchema is written by SQLite introspection in place of the
// schema of a foreign key's tables; it resolves to the enclosing schema.
const placeholderSchema = "_sqlite_public_"

// Document is the wire form of a schema description.
type Document struct {
	Schemas []SchemaDoc `json:"schemas" yaml:"schemas"`
}

// SchemaDoc is a named schema and its relations.
type SchemaDoc struct {
	Name    string      `json:"name" yaml:"name"`
	Objects []ObjectDoc `json:"objects" yaml:"objects"`
}

// ObjectDoc is a table or view.
type ObjectDoc struct {
	Kind        string          `json:"kind" yaml:"kind"`
	Name        string          `json:"name" yaml:"name"`
	Columns     []ColumnDoc     `json:"columns" yaml:"columns"`
	ForeignKeys []ForeignKeyDoc `json:"foreign_keys" yaml:"foreign_keys"`
}

// ColumnDoc is a column declaration.
type ColumnDoc struct {
	Name       string `json:"name" yaml:"name"`
	DataType   string `json:"data_type" yaml:"data_type"`
	PrimaryKey bool   `json:"primary_key" yaml:"primary_key"`
}

// ForeignKeyDoc is a foreign key declaration. Tables are [schema, name] pairs.
type ForeignKeyDoc struct {
	Name              string   `json:"name" yaml:"name"`
	Table             []string `json:"table" yaml:"table"`
	Columns           []string `json:"columns" yaml:"columns"`
	ReferencedTable   []string `json:"referenced_table" yaml:"referenced_table"`
	ReferencedColumns []string `json:"referenced_columns" yaml:"referenced_columns"`
}

// LoadFile reads a schema description from disk and loads it.
func LoadFile(ctx context.Context, dialectName, path string, opts ...Option) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}
	return Load(ctx, dialectName, data, opts...)
}

// Load parses, validates and indexes a schema description. data may be
// JSON or YAML. Invalid descriptions return a *core.SchemaError; a license
// that is present but malformed or badly signed returns a *core.LicenseError.
func Load(ctx context.Context, dialectName string, data []byte, opts ...Option) (*Catalog, error) {
	o := &options{
		logger: slog.New(slog.DiscardHandler),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}

	d, err := dialect.Resolve(dialectName)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve dialect: %w", err)
	}

	doc, err := Decode(data)
	if err != nil {
		return nil, err
	}

	c, err := build(d, doc)
	if err != nil {
		return nil, err
	}

	if err := c.applyLicense(ctx, o); err != nil {
		return nil, err
	}

	if c.demo && o.policy.MaxRelations > 0 && c.RelationCount() > o.policy.MaxRelations {
		return nil, &core.SchemaError{
			Message: fmt.Sprintf("demo mode allows at most %d relations, schema has %d", o.policy.MaxRelations, c.RelationCount()),
		}
	}

	o.logger.DebugContext(ctx, "catalog loaded",
		slog.String("dialect", d.Name()),
		slog.Int("schemas", len(c.schemas)),
		slog.Int("relations", c.RelationCount()),
		slog.Int("foreign_keys", c.graph.EdgeCount()),
		slog.Bool("demo", c.demo))
	return c, nil
}

// Decode parses a schema description without validating it.
func Decode(data []byte) (*Document, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, &core.SchemaError{Message: "empty schema description"}
	}

	var doc Document
	if trimmed[0] == '{' {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		if err := dec.Decode(&doc); err != nil {
			return nil, &core.SchemaError{Message: "malformed schema JSON", Err: err}
		}
		if _, err := dec.Token(); !errors.Is(err, io.EOF) {
			return nil, &core.SchemaError{Message: "malformed schema JSON: trailing data after the document", Err: err}
		}
		return &doc, nil
	}
	if err := yaml.Unmarshal(trimmed, &doc); err != nil {
		return nil, &core.SchemaError{Message: "malformed schema YAML", Err: err}
	}
	return &doc, nil
}

func build(d dialect.Dialect, doc *Document) (*Catalog, error) {
	c := &Catalog{
		dialect: d,
		index:   make(map[string]int, len(doc.Schemas)),
		graph:   dag.NewGraph(),
	}

	for _, sd := range doc.Schemas {
		if sd.Name == "" {
			return nil, &core.SchemaError{Message: "schema name is required"}
		}
		if _, dup := c.index[sd.Name]; dup {
			return nil, &core.SchemaError{Message: fmt.Sprintf("duplicate schema %q", sd.Name)}
		}

		seen := make(map[string]bool, len(sd.Objects))
		relations := make([]*core.Relation, 0, len(sd.Objects))
		for _, od := range sd.Objects {
			rel, err := buildRelation(sd.Name, od)
			if err != nil {
				return nil, err
			}
			if seen[rel.Name] {
				return nil, &core.SchemaError{Message: fmt.Sprintf("duplicate relation %q in schema %q", rel.Name, sd.Name)}
			}
			seen[rel.Name] = true
			relations = append(relations, rel)
		}

		c.index[sd.Name] = len(c.schemas)
		c.schemas = append(c.schemas, core.NewSchema(sd.Name, relations))
	}

	for _, s := range c.schemas {
		for _, r := range s.Relations {
			c.graph.AddNode(core.Qi{Schema: s.Name, Name: r.Name}.String(), r)
		}
	}
	for _, s := range c.schemas {
		for _, r := range s.Relations {
			for i := range r.ForeignKeys {
				if err := c.link(&r.ForeignKeys[i]); err != nil {
					return nil, err
				}
			}
		}
	}
	return c, nil
}

func buildRelation(schema string, od ObjectDoc) (*core.Relation, error) {
	if od.Name == "" {
		return nil, &core.SchemaError{Message: fmt.Sprintf("relation without a name in schema %q", schema)}
	}
	kind := core.ObjectKind(strings.ToLower(od.Kind))
	if !kind.Valid() {
		return nil, &core.SchemaError{Message: fmt.Sprintf("relation %q has unknown kind %q", od.Name, od.Kind)}
	}

	columns := make([]core.Column, 0, len(od.Columns))
	seen := make(map[string]bool, len(od.Columns))
	for _, cd := range od.Columns {
		if cd.Name == "" {
			return nil, &core.SchemaError{Message: fmt.Sprintf("relation %q has a column without a name", od.Name)}
		}
		if seen[cd.Name] {
			return nil, &core.SchemaError{Message: fmt.Sprintf("duplicate column %q in relation %q", cd.Name, od.Name)}
		}
		seen[cd.Name] = true
		columns = append(columns, core.Column{Name: cd.Name, DataType: cd.DataType, PrimaryKey: cd.PrimaryKey})
	}

	owner := core.Qi{Schema: schema, Name: od.Name}
	fks := make([]core.ForeignKey, 0, len(od.ForeignKeys))
	for _, fd := range od.ForeignKeys {
		fk, err := buildForeignKey(owner, fd)
		if err != nil {
			return nil, err
		}
		fks = append(fks, fk)
	}
	return core.NewRelation(kind, od.Name, columns, fks), nil
}

func buildForeignKey(owner core.Qi, fd ForeignKeyDoc) (core.ForeignKey, error) {
	table, err := tableRef(owner.Schema, fd.Table, owner.Name)
	if err != nil {
		return core.ForeignKey{}, &core.SchemaError{Message: fmt.Sprintf("foreign key %q on %q", fd.Name, owner), Err: err}
	}
	if table != owner {
		return core.ForeignKey{}, &core.SchemaError{Message: fmt.Sprintf("foreign key %q is declared on %q but owned by %q", fd.Name, owner, table)}
	}
	ref, err := tableRef(owner.Schema, fd.ReferencedTable, "")
	if err != nil {
		return core.ForeignKey{}, &core.SchemaError{Message: fmt.Sprintf("foreign key %q on %q", fd.Name, owner), Err: err}
	}
	if len(fd.Columns) == 0 || len(fd.Columns) != len(fd.ReferencedColumns) {
		return core.ForeignKey{}, &core.SchemaError{
			Message: fmt.Sprintf("foreign key %q on %q has %d local and %d referenced columns", fd.Name, owner, len(fd.Columns), len(fd.ReferencedColumns)),
		}
	}

	name := fd.Name
	if name == "" {
		name = owner.Name + "_" + strings.Join(fd.Columns, "_") + "_fkey"
	}
	return core.ForeignKey{
		Name:              name,
		Table:             table,
		Columns:           append([]string(nil), fd.Columns...),
		ReferencedTable:   ref,
		ReferencedColumns: append([]string(nil), fd.ReferencedColumns...),
	}, nil
}

// tableRef turns a [schema, name] pair into a Qi. The placeholder or an
// empty schema stands for the enclosing schema; an empty pair falls back
// to defaultName.
func tableRef(schema string, pair []string, defaultName string) (core.Qi, error) {
	switch len(pair) {
	case 0:
		if defaultName == "" {
			return core.Qi{}, errors.New("table reference is required")
		}
		return core.Qi{Schema: schema, Name: defaultName}, nil
	case 2:
		s := pair[0]
		if s == "" || s == placeholderSchema {
			s = schema
		}
		if pair[1] == "" {
			return core.Qi{}, errors.New("table reference has no relation name")
		}
		return core.Qi{Schema: s, Name: pair[1]}, nil
	default:
		return core.Qi{}, fmt.Errorf("table reference must be [schema, relation], got %d elements", len(pair))
	}
}

// link checks the columns of fk against both relations and adds its edge.
func (c *Catalog) link(fk *core.ForeignKey) error {
	owner, _ := c.Relation(fk.Table)
	for _, col := range fk.Columns {
		if _, ok := owner.Column(col); !ok {
			return &core.SchemaError{Message: fmt.Sprintf("foreign key %q references unknown column %q on %q", fk.Name, col, fk.Table)}
		}
	}
	ref, ok := c.Relation(fk.ReferencedTable)
	if !ok {
		return &core.SchemaError{Message: fmt.Sprintf("foreign key %q references unknown relation %q", fk.Name, fk.ReferencedTable)}
	}
	for _, col := range fk.ReferencedColumns {
		if _, ok := ref.Column(col); !ok {
			return &core.SchemaError{Message: fmt.Sprintf("foreign key %q references unknown column %q on %q", fk.Name, col, fk.ReferencedTable)}
		}
	}
	if err := c.graph.AddEdge(fk.Table.String(), fk.ReferencedTable.String(), fk.Name, fk); err != nil {
		return &core.SchemaError{Message: fmt.Sprintf("foreign key %q", fk.Name), Err: err}
	}
	return nil
}

func (c *Catalog) applyLicense(ctx context.Context, o *options) error {
	c.policy = o.policy
	if strings.TrimSpace(o.license) == "" {
		c.demo = true
		return nil
	}

	pub := o.publicKey
	if pub == "" {
		pub = license.DefaultPublicKey
	}
	v, err := license.NewVerifier(pub)
	if err != nil {
		return &core.LicenseError{Message: "cannot verify license", Err: err}
	}
	v.WithClock(o.now)

	claims, err := v.Verify(o.license)
	switch {
	case errors.Is(err, license.ErrExpired):
		o.logger.WarnContext(ctx, "license expired, running in demo mode",
			slog.String("email", claims.Email),
			slog.Time("expired_at", claims.ExpiresAt()))
		c.demo = true
		return nil
	case err != nil:
		return err
	}

	c.claims = claims
	o.logger.DebugContext(ctx, "license verified", slog.String("email", claims.Email), slog.String("plan", claims.Plan))
	return nil
}
