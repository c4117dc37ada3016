package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	_ "modernc.org/sqlite" // sqlite driver

	"github.com/leapstack-labs/leaprest/pkg/adapter"
	"github.com/leapstack-labs/leaprest/pkg/catalog"
)

// referencedSchema stands in for the schema of a referenced table; SQLite
// has a single schema and the catalog resolves it to the enclosing one.
const referencedSchema = "_sqlite_public_"

// Adapter implements the adapter.Adapter interface for SQLite.
type Adapter struct {
	adapter.BaseSQLAdapter
}

// New creates a new SQLite adapter instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{
		BaseSQLAdapter: adapter.BaseSQLAdapter{Logger: logger},
	}
}

// DialectName returns the compiler dialect for this adapter.
func (a *Adapter) DialectName() string {
	return "sqlite"
}

// Connect opens a SQLite database. The DSN wins over the path; an empty
// path opens an in-memory database.
func (a *Adapter) Connect(ctx context.Context, cfg adapter.Config) error {
	var p Params
	if err := adapter.ParseParams(cfg, &p); err != nil {
		return err
	}

	dsn := cfg.DSN
	if dsn == "" {
		dsn = cfg.Path
	}
	if dsn == "" {
		dsn = ":memory:"
	}

	a.Logger.Debug("connecting to sqlite", slog.String("path", dsn))

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open sqlite connection: %w", err)
	}
	// One connection keeps in-memory databases alive and serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping sqlite: %w", err)
	}

	for _, pragma := range buildPragmas(p) {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	a.DB = db
	a.Cfg = cfg
	return nil
}

// buildPragmas returns the PRAGMA statements for p in a stable order.
func buildPragmas(p Params) []string {
	fk := "on"
	if p.ForeignKeys != nil && !*p.ForeignKeys {
		fk = "off"
	}
	out := []string{"PRAGMA foreign_keys = " + fk}
	if p.BusyTimeout > 0 {
		out = append(out, fmt.Sprintf("PRAGMA busy_timeout = %d", p.BusyTimeout.Milliseconds()))
	}

	names := make([]string, 0, len(p.Pragmas))
	for name := range p.Pragmas {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		out = append(out, fmt.Sprintf("PRAGMA %s = %s", name, p.Pragmas[name]))
	}
	return out
}

const columnsQuery = `
select m.name, m.type, p.name, p.type, p.pk > 0
from sqlite_master m
join pragma_table_info(m.name) p
where m.type in ('table', 'view')
  and m.name not like 'sqlite_%'
  and m.name not like 'goose_%'
order by m.name, p.cid`

const foreignKeysQuery = `
select m.name, f.id, f."table", f."from", f."to"
from sqlite_master m
join pragma_foreign_key_list(m.name) f
where m.type = 'table' and m.name not like 'goose_%'
order by m.name, f.id, f.seq`

// Introspect reads every table and view of the database into the schema
// named by the first entry of schemas ("public" by default).
func (a *Adapter) Introspect(ctx context.Context, schemas []string) (*catalog.Document, error) {
	if a.DB == nil {
		return nil, adapter.ErrNotConnected
	}
	schema := "public"
	if len(schemas) > 0 && schemas[0] != "" {
		schema = schemas[0]
	}
	b := adapter.NewDocumentBuilder()
	pks := make(map[string][]string)

	if err := a.readColumns(ctx, schema, b, pks); err != nil {
		return nil, err
	}
	if err := a.readForeignKeys(ctx, schema, b, pks); err != nil {
		return nil, err
	}
	return b.Document(), nil
}

func (a *Adapter) readColumns(ctx context.Context, schema string, b *adapter.DocumentBuilder, pks map[string][]string) error {
	rows, err := a.DB.QueryContext(ctx, columnsQuery)
	if err != nil {
		return fmt.Errorf("failed to query column metadata: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var table, kind string
		var col catalog.ColumnDoc
		if err := rows.Scan(&table, &kind, &col.Name, &col.DataType, &col.PrimaryKey); err != nil {
			return fmt.Errorf("failed to scan column metadata: %w", err)
		}
		b.AddObject(schema, table, kind)
		b.AddColumn(schema, table, col)
		if col.PrimaryKey {
			pks[table] = append(pks[table], col.Name)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating column metadata: %w", err)
	}
	return nil
}

type fkRow struct {
	table, refTable string
	from            []string
	to              []sql.NullString
}

// readForeignKeys collects foreign keys. SQLite keys are unnamed, so each
// gets the conventional <table>_<columns>_fkey name.
func (a *Adapter) readForeignKeys(ctx context.Context, schema string, b *adapter.DocumentBuilder, pks map[string][]string) error {
	rows, err := a.DB.QueryContext(ctx, foreignKeysQuery)
	if err != nil {
		return fmt.Errorf("failed to query foreign keys: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var keys []*fkRow
	byID := make(map[string]*fkRow)
	for rows.Next() {
		var (
			table, refTable, from string
			id                    int
			to                    sql.NullString
		)
		if err := rows.Scan(&table, &id, &refTable, &from, &to); err != nil {
			return fmt.Errorf("failed to scan foreign key: %w", err)
		}
		k := fmt.Sprintf("%s/%d", table, id)
		fk, ok := byID[k]
		if !ok {
			fk = &fkRow{table: table, refTable: refTable}
			byID[k] = fk
			keys = append(keys, fk)
		}
		fk.from = append(fk.from, from)
		fk.to = append(fk.to, to)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating foreign keys: %w", err)
	}

	for _, fk := range keys {
		name := fk.table + "_" + strings.Join(fk.from, "_") + "_fkey"
		refPK := pks[fk.refTable]
		for i, from := range fk.from {
			to := fk.to[i].String
			// A key without target columns references the primary key.
			if !fk.to[i].Valid && i < len(refPK) {
				to = refPK[i]
			}
			b.AddForeignKeyColumn(schema, fk.table, name, []string{referencedSchema, fk.refTable}, from, to)
		}
	}
	return nil
}

var _ adapter.Adapter = (*Adapter)(nil)
