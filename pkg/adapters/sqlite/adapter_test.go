package sqlite

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leaprest/internal/demo"
	"github.com/leapstack-labs/leaprest/internal/testutil"
	"github.com/leapstack-labs/leaprest/pkg/adapter"
	"github.com/leapstack-labs/leaprest/pkg/catalog"
	"github.com/leapstack-labs/leaprest/pkg/compiler"
	"github.com/leapstack-labs/leaprest/pkg/core"
	"github.com/leapstack-labs/leaprest/pkg/request"
)

var fixture = []string{
	`create table clients (id integer primary key, name text not null)`,
	`create table projects (id integer primary key, name text not null, client_id integer references clients(id))`,
	`create table tags (label text)`,
	`create view project_names as select id, name from projects`,
	`create table goose_db_version (id integer primary key, version_id integer)`,
	`insert into clients (id, name) values (1, 'Microsoft'), (2, 'Apple')`,
	`insert into projects (id, name, client_id) values (1, 'Windows 7', 1), (2, 'IOS', 2), (3, 'MacOS', 2)`,
}

func connect(t *testing.T) *Adapter {
	t.Helper()
	ctx := context.Background()
	adp := New(testutil.NewTestLogger(t))
	require.NoError(t, adp.Connect(ctx, adapter.Config{Type: "sqlite", Path: ":memory:"}))
	t.Cleanup(func() { _ = adp.Close() })

	for _, stmt := range fixture {
		require.NoError(t, adp.Exec(ctx, &core.Statement{SQL: stmt}), stmt)
	}
	return adp
}

// connectDemo opens an in-memory database seeded with the demo tables.
func connectDemo(t *testing.T) *Adapter {
	t.Helper()
	ctx := context.Background()
	adp := New(testutil.NewTestLogger(t))
	require.NoError(t, adp.Connect(ctx, adapter.Config{Type: "sqlite"}))
	t.Cleanup(func() { _ = adp.Close() })
	require.NoError(t, demo.Migrate(ctx, adp.DB))
	return adp
}

func read(t *testing.T, adp *Adapter, cat *catalog.Catalog, uri string) *adapter.Result {
	t.Helper()
	main, err := compiler.MainStatement(cat, parse(t, cat, "GET", uri, nil), nil)
	require.NoError(t, err)
	res, err := adp.Run(context.Background(), nil, main)
	require.NoError(t, err)
	return res
}

func loadCatalog(t *testing.T, adp *Adapter) *catalog.Catalog {
	t.Helper()
	doc, err := adp.Introspect(context.Background(), nil)
	require.NoError(t, err)
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	cat, err := catalog.Load(context.Background(), adp.DialectName(), data,
		catalog.WithLogger(testutil.NewTestLogger(t)))
	require.NoError(t, err)
	return cat
}

func parse(t *testing.T, cat *catalog.Catalog, method, uri string, body *string) *core.ApiRequest {
	t.Helper()
	req, err := request.Parse(cat, request.Input{
		Method:  method,
		URI:     uri,
		Root:    "/rest/",
		Schema:  "public",
		Role:    "admin",
		Headers: []core.Pair{{Key: "Content-Type", Value: "application/json"}},
		Body:    body,
	})
	require.NoError(t, err)
	return req
}

func TestAdapter_Connect(t *testing.T) {
	tests := []struct {
		name   string
		cfg    adapter.Config
		errMsg string
	}{
		{name: "default in-memory", cfg: adapter.Config{Type: "sqlite"}},
		{name: "dsn", cfg: adapter.Config{Type: "sqlite", DSN: "file::memory:"}},
		{
			name: "params",
			cfg: adapter.Config{Type: "sqlite", Params: map[string]any{
				"foreign_keys": false,
				"busy_timeout": "2s",
				"pragmas":      map[string]any{"synchronous": "off"},
			}},
		},
		{
			name:   "unknown params",
			cfg:    adapter.Config{Type: "sqlite", Params: map[string]any{"journal": "wal"}},
			errMsg: "invalid sqlite params",
		},
		{
			name:   "bad pragma",
			cfg:    adapter.Config{Type: "sqlite", Params: map[string]any{"pragmas": map[string]any{"journal_mode": "'"}}},
			errMsg: "failed to apply",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adp := New(nil)
			err := adp.Connect(context.Background(), tt.cfg)
			if tt.errMsg != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				assert.False(t, adp.IsConnected())
				return
			}
			require.NoError(t, err)
			assert.True(t, adp.IsConnected())
			assert.NoError(t, adp.Close())
		})
	}
}

func TestBuildPragmas(t *testing.T) {
	off := false
	assert.Equal(t, []string{"PRAGMA foreign_keys = on"}, buildPragmas(Params{}))
	assert.Equal(t, []string{
		"PRAGMA foreign_keys = off",
		"PRAGMA busy_timeout = 1500",
		"PRAGMA journal_mode = wal",
		"PRAGMA synchronous = normal",
	}, buildPragmas(Params{
		ForeignKeys: &off,
		BusyTimeout: 1500 * time.Millisecond,
		Pragmas:     map[string]string{"synchronous": "normal", "journal_mode": "wal"},
	}))
}

func TestAdapter_Introspect(t *testing.T) {
	adp := connect(t)

	doc, err := adp.Introspect(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, doc.Schemas, 1)
	assert.Equal(t, "public", doc.Schemas[0].Name)

	objects := make(map[string]catalog.ObjectDoc)
	for _, o := range doc.Schemas[0].Objects {
		objects[o.Name] = o
	}
	require.Len(t, objects, 4)

	assert.Equal(t, "view", objects["project_names"].Kind)
	assert.Equal(t, []catalog.ColumnDoc{
		{Name: "id", DataType: "integer", PrimaryKey: true},
		{Name: "name", DataType: "text"},
	}, objects["clients"].Columns)
	assert.Empty(t, objects["tags"].ForeignKeys)
	assert.Equal(t, []catalog.ForeignKeyDoc{{
		Name:              "projects_client_id_fkey",
		Table:             []string{"public", "projects"},
		Columns:           []string{"client_id"},
		ReferencedTable:   []string{referencedSchema, "clients"},
		ReferencedColumns: []string{"id"},
	}}, objects["projects"].ForeignKeys)

	doc, err = adp.Introspect(context.Background(), []string{"api"})
	require.NoError(t, err)
	assert.Equal(t, "api", doc.Schemas[0].Name)
}

func TestAdapter_Run(t *testing.T) {
	ctx := context.Background()
	adp := connect(t)
	cat := loadCatalog(t, adp)

	req := parse(t, cat, "GET", "/rest/projects?select=id,name,clients(name)&client_id=eq.2&order=id.asc", nil)
	main, err := compiler.MainStatement(cat, req, nil)
	require.NoError(t, err)
	env, err := compiler.EnvStatement(adp.DialectName(), nil)
	require.NoError(t, err)

	res, err := adp.Run(ctx, env, main)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.PageTotal)
	assert.Nil(t, res.TotalResultSet)
	assert.True(t, res.ConstraintsSatisfied)
	assert.JSONEq(t, `[
		{"id":2,"name":"IOS","clients":{"name":"Apple"}},
		{"id":3,"name":"MacOS","clients":{"name":"Apple"}}
	]`, res.Body)
}

func TestAdapter_RunTwoStage(t *testing.T) {
	ctx := context.Background()
	adp := connect(t)
	cat := loadCatalog(t, adp)

	body := `[{"name":"Office","client_id":1},{"name":"Xbox","client_id":1}]`
	req := parse(t, cat, "POST", "/rest/projects?select=id,name", &body)
	ts, err := compiler.NewTwoStage(cat, req, nil)
	require.NoError(t, err)

	res, err := adp.RunTwoStage(ctx, nil, ts)
	require.NoError(t, err)
	assert.Equal(t, []string{"4", "5"}, ts.IDs())
	assert.Equal(t, compiler.StateSelectReady, ts.State())
	assert.Equal(t, int64(2), res.PageTotal)
	assert.JSONEq(t, `[{"id":4,"name":"Office"},{"id":5,"name":"Xbox"}]`, res.Body)

	// the write is committed
	req = parse(t, cat, "GET", "/rest/projects?select=id&client_id=eq.1", nil)
	main, err := compiler.MainStatement(cat, req, nil)
	require.NoError(t, err)
	res, err = adp.Run(ctx, nil, main)
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.PageTotal)
}

func TestAdapter_RunTwoStage_Put(t *testing.T) {
	tests := []struct {
		name    string
		uri     string
		body    string
		wantIDs []string
		want    string
		check   string
		checked string
	}{
		{
			name:    "replaces an existing row",
			uri:     "/rest/projects?select=id,name,client_id&id=eq.3",
			body:    `{"id":3,"name":"put","client_id":1}`,
			wantIDs: []string{"3"},
			want:    `[{"id":3,"name":"put","client_id":1}]`,
			check:   "/rest/projects?select=id,name,client_id&id=eq.3",
			checked: `[{"id":3,"name":"put","client_id":1}]`,
		},
		{
			name:    "inserts a new key",
			uri:     "/rest/projects?select=id,name&id=eq.9",
			body:    `{"id":9,"name":"Vista","client_id":1}`,
			wantIDs: []string{"9"},
			want:    `[{"id":9,"name":"Vista"}]`,
			check:   "/rest/projects?select=id&client_id=eq.1&order=id.asc",
			checked: `[{"id":1},{"id":2},{"id":9}]`,
		},
		{
			name:    "payload given as an array",
			uri:     "/rest/clients?select=id,name&id=eq.2",
			body:    `[{"id":2,"name":"Apple Inc"}]`,
			wantIDs: []string{"2"},
			want:    `[{"id":2,"name":"Apple Inc"}]`,
			check:   "/rest/clients?select=name&order=id.asc",
			checked: `[{"name":"Microsoft"},{"name":"Apple Inc"}]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adp := connectDemo(t)
			cat := loadCatalog(t, adp)

			body := tt.body
			ts, err := compiler.NewTwoStage(cat, parse(t, cat, "PUT", tt.uri, &body), nil)
			require.NoError(t, err)
			res, err := adp.RunTwoStage(context.Background(), nil, ts)
			require.NoError(t, err)
			assert.Equal(t, tt.wantIDs, ts.IDs())
			assert.Equal(t, int64(len(tt.wantIDs)), res.PageTotal)
			assert.JSONEq(t, tt.want, res.Body)

			assert.JSONEq(t, tt.checked, read(t, adp, cat, tt.check).Body)
		})
	}
}

func TestAdapter_Run_OffsetWithoutLimit(t *testing.T) {
	adp := connectDemo(t)
	cat := loadCatalog(t, adp)

	tests := []struct {
		name string
		uri  string
		want string
	}{
		{
			name: "plain",
			uri:  "/rest/projects?select=id&order=id.asc&offset=1",
			want: `[{"id":2},{"id":3},{"id":4}]`,
		},
		{
			name: "with an embedding",
			uri:  "/rest/projects?select=id,cl:clients(n:name)&order=id.asc&offset=2",
			want: `[{"id":3,"cl":{"n":"Apple"}},{"id":4,"cl":{"n":"Apple"}}]`,
		},
		{
			name: "past the end",
			uri:  "/rest/projects?select=id&offset=10",
			want: `[]`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.JSONEq(t, tt.want, read(t, adp, cat, tt.uri).Body)
		})
	}
}

func TestAdapter_RunTwoStage_CompositeKey(t *testing.T) {
	ctx := context.Background()
	adp := connectDemo(t)
	cat := loadCatalog(t, adp)
	require.Equal(t, []string{"user_id", "task_id"}, cat.PrimaryKey(core.Qi{Schema: "public", Name: "users_tasks"}))

	body := `{"user_id":1,"task_id":8}`
	ts, err := compiler.NewTwoStage(cat, parse(t, cat, "POST", "/rest/users_tasks?select=user_id,task_id", &body), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"rowid"}, ts.KeyColumns())

	res, err := adp.RunTwoStage(ctx, nil, ts)
	require.NoError(t, err)
	require.Len(t, ts.IDs(), 1)
	assert.Equal(t, int64(1), res.PageTotal)
	assert.JSONEq(t, `[{"user_id":1,"task_id":8}]`, res.Body)

	body = `{"task_id":6}`
	ts, err = compiler.NewTwoStage(cat, parse(t, cat, "PATCH", "/rest/users_tasks?select=user_id,task_id&user_id=eq.1&task_id=eq.8", &body), nil)
	require.NoError(t, err)
	res, err = adp.RunTwoStage(ctx, nil, ts)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.PageTotal)
	assert.JSONEq(t, `[{"user_id":1,"task_id":6}]`, res.Body)

	assert.JSONEq(t, `[{"task_id":1},{"task_id":2},{"task_id":3},{"task_id":4},{"task_id":6}]`,
		read(t, adp, cat, "/rest/users_tasks?select=task_id&user_id=eq.1&order=task_id.asc").Body)
}

func TestAdapter_Registry(t *testing.T) {
	assert.True(t, adapter.IsRegistered("sqlite"))

	adp, err := adapter.NewAdapter(adapter.Config{Type: "sqlite"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", adp.DialectName())
}
