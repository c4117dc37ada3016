package postgres

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leaprest/internal/testutil"
	"github.com/leapstack-labs/leaprest/pkg/adapter"
	"github.com/leapstack-labs/leaprest/pkg/catalog"
	"github.com/leapstack-labs/leaprest/pkg/core"
)

func TestBuildPostgresDSN(t *testing.T) {
	tests := []struct {
		name     string
		config   adapter.Config
		params   Params
		expected string
	}{
		{
			name: "basic connection",
			config: adapter.Config{
				Host:     "localhost",
				Port:     5432,
				Database: "testdb",
				Username: "user",
				Password: "pass",
			},
			expected: "host=localhost port=5432 dbname=testdb sslmode=disable user=user password=pass",
		},
		{
			name: "with custom sslmode",
			config: adapter.Config{
				Host:     "prod.example.com",
				Port:     5432,
				Database: "proddb",
				Username: "admin",
			},
			params:   Params{SSLMode: "require", ApplicationName: "leaprest"},
			expected: "host=prod.example.com port=5432 dbname=proddb sslmode=require user=admin application_name=leaprest",
		},
		{
			name: "defaults",
			config: adapter.Config{
				Database: "mydb",
			},
			expected: "host=localhost port=5432 dbname=mydb sslmode=disable",
		},
		{
			name: "custom port",
			config: adapter.Config{
				Host:     "db.example.com",
				Port:     5433,
				Database: "analytics",
				Username: "analyst",
			},
			expected: "host=db.example.com port=5433 dbname=analytics sslmode=disable user=analyst",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, buildPostgresDSN(tt.config, tt.params))
		})
	}
}

func TestNew(t *testing.T) {
	adp := New(nil)

	assert.NotNil(t, adp)
	assert.Nil(t, adp.DB, "DB should be nil before Connect")
	assert.False(t, adp.IsConnected())
	assert.Equal(t, "postgresql", adp.DialectName())
}

func TestAdapter_NotConnected(t *testing.T) {
	tests := []struct {
		name      string
		operation func(ctx context.Context, adp *Adapter) error
	}{
		{
			name: "exec without connect",
			operation: func(ctx context.Context, adp *Adapter) error {
				return adp.Exec(ctx, &core.Statement{SQL: "select 1"})
			},
		},
		{
			name: "run without connect",
			operation: func(ctx context.Context, adp *Adapter) error {
				_, err := adp.Run(ctx, nil, &core.Statement{SQL: "select 1"})
				return err
			},
		},
		{
			name: "introspect without connect",
			operation: func(ctx context.Context, adp *Adapter) error {
				_, err := adp.Introspect(ctx, nil)
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.operation(context.Background(), New(nil))
			require.ErrorIs(t, err, adapter.ErrNotConnected)
		})
	}
}

func TestAdapter_ConnectRejectsUnknownParams(t *testing.T) {
	err := New(nil).Connect(context.Background(), adapter.Config{
		Type:   "postgres",
		Params: map[string]any{"ssl_mode": "require"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid postgres params")
}

func TestAdapter_Introspect(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	adp := New(testutil.NewTestLogger(t))
	adp.DB = db

	mock.ExpectQuery("from information_schema.columns").WithArgs("public,api").WillReturnRows(
		sqlmock.NewRows([]string{"table_schema", "table_name", "table_type", "column_name", "data_type", "primary_key"}).
			AddRow("public", "clients", "BASE TABLE", "id", "integer", true).
			AddRow("public", "clients", "BASE TABLE", "name", "text", false).
			AddRow("public", "projects", "BASE TABLE", "id", "integer", true).
			AddRow("public", "projects", "BASE TABLE", "client_id", "integer", false).
			AddRow("public", "projects_view", "VIEW", "id", "integer", false))
	mock.ExpectQuery("from pg_catalog.pg_constraint").WithArgs("public,api").WillReturnRows(
		sqlmock.NewRows([]string{"nspname", "relname", "conname", "fnspname", "frelname", "attname", "fattname"}).
			AddRow("public", "projects", "projects_client_id_fkey", "public", "clients", "client_id", "id"))

	doc, err := adp.Introspect(context.Background(), []string{"public", "api"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	require.Len(t, doc.Schemas, 1)
	objects := doc.Schemas[0].Objects
	require.Len(t, objects, 3)
	assert.Equal(t, "clients", objects[0].Name)
	assert.Equal(t, []catalog.ColumnDoc{
		{Name: "id", DataType: "integer", PrimaryKey: true},
		{Name: "name", DataType: "text"},
	}, objects[0].Columns)
	assert.Equal(t, "view", objects[2].Kind)
	require.Len(t, objects[1].ForeignKeys, 1)
	assert.Equal(t, []string{"public", "clients"}, objects[1].ForeignKeys[0].ReferencedTable)
}

func TestAdapter_Registry(t *testing.T) {
	assert.True(t, adapter.IsRegistered("postgres"))

	adp, err := adapter.NewAdapter(adapter.Config{Type: "postgres"}, nil)
	require.NoError(t, err)

	pg, ok := adp.(*Adapter)
	require.True(t, ok, "factory should return *Adapter")
	assert.Equal(t, "postgresql", pg.DialectName())
}

func TestAdapter_Close(t *testing.T) {
	assert.NoError(t, New(nil).Close())
}
