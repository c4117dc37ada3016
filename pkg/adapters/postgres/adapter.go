// Package postgres provides the PostgreSQL database adapter.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the pgx database/sql driver

	"github.com/leapstack-labs/leaprest/pkg/adapter"
	"github.com/leapstack-labs/leaprest/pkg/catalog"
)

// Params are the PostgreSQL specific connection settings.
type Params struct {
	SSLMode         string        `mapstructure:"sslmode"`
	ApplicationName string        `mapstructure:"application_name"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// Adapter implements the adapter.Adapter interface for PostgreSQL.
type Adapter struct {
	adapter.BaseSQLAdapter
}

// New creates a new PostgreSQL adapter instance.
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
	return "postgresql"
}

// Connect establishes a connection to PostgreSQL.
func (a *Adapter) Connect(ctx context.Context, cfg adapter.Config) error {
	var p Params
	if err := adapter.ParseParams(cfg, &p); err != nil {
		return err
	}
	dsn := cfg.DSN
	if dsn == "" {
		dsn = buildPostgresDSN(cfg, p)
	}

	a.Logger.Debug("connecting to postgres", slog.String("host", cfg.Host), slog.String("database", cfg.Database))

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("failed to open postgres connection: %w", err)
	}
	if p.MaxOpenConns > 0 {
		db.SetMaxOpenConns(p.MaxOpenConns)
	}
	if p.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(p.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping postgres: %w", err)
	}

	a.DB = db
	a.Cfg = cfg
	return nil
}

// buildPostgresDSN constructs a key=value PostgreSQL connection string.
func buildPostgresDSN(cfg adapter.Config, p Params) string {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}

	port := cfg.Port
	if port == 0 {
		port = 5432
	}

	sslmode := p.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}

	dsn := fmt.Sprintf("host=%s port=%d dbname=%s sslmode=%s",
		host, port, cfg.Database, sslmode)

	if cfg.Username != "" {
		dsn += fmt.Sprintf(" user=%s", cfg.Username)
	}
	if cfg.Password != "" {
		dsn += fmt.Sprintf(" password=%s", cfg.Password)
	}
	if p.ApplicationName != "" {
		dsn += fmt.Sprintf(" application_name=%s", p.ApplicationName)
	}

	return dsn
}

const columnsQuery = `
select c.table_schema, c.table_name, t.table_type, c.column_name, c.data_type,
       exists (
         select 1
         from information_schema.table_constraints tc
         join information_schema.key_column_usage k
           on k.constraint_schema = tc.constraint_schema and k.constraint_name = tc.constraint_name
         where tc.constraint_type = 'PRIMARY KEY'
           and k.table_schema = c.table_schema and k.table_name = c.table_name and k.column_name = c.column_name
       ) as primary_key
from information_schema.columns c
join information_schema.tables t
  on t.table_schema = c.table_schema and t.table_name = c.table_name
where c.table_schema = any (string_to_array($1, ','))
order by c.table_schema, c.table_name, c.ordinal_position`

const foreignKeysQuery = `
select ns.nspname, cls.relname, con.conname, fns.nspname, fcls.relname, a.attname, fa.attname
from pg_catalog.pg_constraint con
join pg_catalog.pg_class cls on cls.oid = con.conrelid
join pg_catalog.pg_namespace ns on ns.oid = cls.relnamespace
join pg_catalog.pg_class fcls on fcls.oid = con.confrelid
join pg_catalog.pg_namespace fns on fns.oid = fcls.relnamespace
cross join lateral unnest(con.conkey, con.confkey) with ordinality as k(attnum, fattnum, ord)
join pg_catalog.pg_attribute a on a.attrelid = con.conrelid and a.attnum = k.attnum
join pg_catalog.pg_attribute fa on fa.attrelid = con.confrelid and fa.attnum = k.fattnum
where con.contype = 'f' and ns.nspname = any (string_to_array($1, ','))
order by ns.nspname, cls.relname, con.conname, k.ord`

// Introspect reads tables, views, columns, primary keys and foreign keys of
// the named schemas. An empty list reads the public schema.
func (a *Adapter) Introspect(ctx context.Context, schemas []string) (*catalog.Document, error) {
	if a.DB == nil {
		return nil, adapter.ErrNotConnected
	}
	if len(schemas) == 0 {
		schemas = []string{"public"}
	}
	list := strings.Join(schemas, ",")
	b := adapter.NewDocumentBuilder()

	rows, err := a.DB.QueryContext(ctx, columnsQuery, list)
	if err != nil {
		return nil, fmt.Errorf("failed to query column metadata: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var schema, table, tableType string
		var col catalog.ColumnDoc
		if err := rows.Scan(&schema, &table, &tableType, &col.Name, &col.DataType, &col.PrimaryKey); err != nil {
			return nil, fmt.Errorf("failed to scan column metadata: %w", err)
		}
		b.AddObject(schema, table, objectKind(tableType))
		b.AddColumn(schema, table, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating column metadata: %w", err)
	}

	fks, err := a.DB.QueryContext(ctx, foreignKeysQuery, list)
	if err != nil {
		return nil, fmt.Errorf("failed to query foreign keys: %w", err)
	}
	defer func() { _ = fks.Close() }()
	for fks.Next() {
		var schema, table, name, refSchema, refTable, column, refColumn string
		if err := fks.Scan(&schema, &table, &name, &refSchema, &refTable, &column, &refColumn); err != nil {
			return nil, fmt.Errorf("failed to scan foreign key: %w", err)
		}
		b.AddForeignKeyColumn(schema, table, name, []string{refSchema, refTable}, column, refColumn)
	}
	if err := fks.Err(); err != nil {
		return nil, fmt.Errorf("error iterating foreign keys: %w", err)
	}

	doc := b.Document()
	a.Logger.Debug("introspected postgres", slog.String("schemas", list), slog.Int("schemas_found", len(doc.Schemas)))
	return doc, nil
}

func objectKind(tableType string) string {
	if tableType == "VIEW" {
		return "view"
	}
	return "table"
}

var _ adapter.Adapter = (*Adapter)(nil)
