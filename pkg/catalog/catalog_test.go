package catalog

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leaprest/internal/testutil"
	"github.com/leapstack-labs/leaprest/pkg/core"
	"github.com/leapstack-labs/leaprest/pkg/dialect"
	_ "github.com/leapstack-labs/leaprest/pkg/dialects/postgres"
	_ "github.com/leapstack-labs/leaprest/pkg/dialects/sqlite"
	"github.com/leapstack-labs/leaprest/pkg/license"
)

var now = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

func load(t *testing.T, data string, opts ...Option) *Catalog {
	t.Helper()
	opts = append([]Option{WithLogger(testutil.NewTestLogger(t)), WithClock(func() time.Time { return now })}, opts...)
	c, err := Load(context.Background(), "sqlite", []byte(data), opts...)
	require.NoError(t, err)
	return c
}

func TestLoad_Fixture(t *testing.T) {
	c := load(t, testutil.SchemaJSON)

	assert.Equal(t, "sqlite", c.Dialect().Name())
	assert.True(t, c.IsDemo())
	assert.Nil(t, c.Claims())
	assert.Equal(t, 8, c.RelationCount())
	assert.Equal(t, 4, c.Graph().EdgeCount())

	projects := core.Qi{Schema: "public", Name: "projects"}
	rel, ok := c.Relation(projects)
	require.True(t, ok)
	assert.Equal(t, []string{"id", "name", "client_id"}, rel.ColumnNames())
	assert.Equal(t, []string{"id"}, c.PrimaryKey(projects))

	col, ok := c.Column(projects, "client_id")
	require.True(t, ok)
	assert.Equal(t, "INTEGER", col.DataType)

	view, ok := c.Relation(core.Qi{Schema: "public", Name: "projects_view"})
	require.True(t, ok)
	assert.True(t, view.IsView())

	_, ok = c.Relation(core.Qi{Schema: "public", Name: "nope"})
	assert.False(t, ok)
	_, ok = c.Schema("private")
	assert.False(t, ok)
}

func TestLoad_NormalizesPlaceholderSchema(t *testing.T) {
	c := load(t, testutil.SchemaJSON)

	fks := c.OutgoingKeys(core.Qi{Schema: "public", Name: "projects"})
	require.Len(t, fks, 1)
	assert.Equal(t, core.Qi{Schema: "public", Name: "projects"}, fks[0].Table)
	assert.Equal(t, core.Qi{Schema: "public", Name: "clients"}, fks[0].ReferencedTable)

	in := c.IncomingKeys(core.Qi{Schema: "public", Name: "tasks"})
	require.Len(t, in, 1)
	assert.Equal(t, "users_tasks_task_id_fkey", in[0].Name)

	between := c.KeysBetween(core.Qi{Schema: "public", Name: "users_tasks"}, core.Qi{Schema: "public", Name: "users"})
	require.Len(t, between, 1)
	assert.Equal(t, []string{"user_id"}, between[0].Columns)
}

func TestLoad_YAML(t *testing.T) {
	c := load(t, testutil.SchemaYAML)

	employees := core.Qi{Schema: "api", Name: "employees"}
	messages := core.Qi{Schema: "api", Name: "messages"}

	assert.Len(t, c.KeysBetween(messages, employees), 2)
	assert.Len(t, c.KeysBetween(employees, employees), 1)
	assert.Len(t, c.IncomingKeys(employees), 3)
	assert.Len(t, c.ForeignKey(employees, "messages_sender_id_fkey"), 1)
	assert.Len(t, c.ForeignKey(employees, "employees_manager_id_fkey"), 1)
	assert.Equal(t, []string{"api.employees", "api.messages"}, c.RelationNames())

	hasCycle, _ := c.Graph().HasCycle()
	assert.False(t, hasCycle)
}

func TestLoad_SchemaErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{name: "empty", data: "  ", want: "empty"},
		{name: "malformed json", data: `{"schemas": [`, want: "malformed schema JSON"},
		{name: "trailing garbage", data: `{"schemas":[]}garbage`, want: "trailing data"},
		{name: "second document", data: `{"schemas":[]} {"schemas":[]}`, want: "trailing data"},
		{name: "stray brace", data: `{"schemas":[]}}`, want: "trailing data"},
		{name: "malformed yaml", data: "schemas: [", want: "malformed schema YAML"},
		{
			name: "duplicate schema",
			data: `{"schemas":[{"name":"public","objects":[]},{"name":"public","objects":[]}]}`,
			want: `duplicate schema "public"`,
		},
		{
			name: "duplicate relation",
			data: `{"schemas":[{"name":"public","objects":[
				{"kind":"table","name":"a","columns":[]},
				{"kind":"view","name":"a","columns":[]}]}]}`,
			want: `duplicate relation "a"`,
		},
		{
			name: "duplicate column",
			data: `{"schemas":[{"name":"public","objects":[
				{"kind":"table","name":"a","columns":[{"name":"id"},{"name":"id"}]}]}]}`,
			want: `duplicate column "id"`,
		},
		{
			name: "unknown kind",
			data: `{"schemas":[{"name":"public","objects":[{"kind":"function","name":"f","columns":[]}]}]}`,
			want: `unknown kind "function"`,
		},
		{
			name: "arity mismatch",
			data: `{"schemas":[{"name":"public","objects":[
				{"kind":"table","name":"a","columns":[{"name":"id"},{"name":"b_id"}],"foreign_keys":[
					{"name":"fk","table":["public","a"],"columns":["b_id"],"referenced_table":["public","b"],"referenced_columns":["id","x"]}]},
				{"kind":"table","name":"b","columns":[{"name":"id"},{"name":"x"}]}]}]}`,
			want: "1 local and 2 referenced columns",
		},
		{
			name: "dangling relation",
			data: `{"schemas":[{"name":"public","objects":[
				{"kind":"table","name":"a","columns":[{"name":"b_id"}],"foreign_keys":[
					{"name":"fk","table":["public","a"],"columns":["b_id"],"referenced_table":["public","b"],"referenced_columns":["id"]}]}]}]}`,
			want: `unknown relation "public.b"`,
		},
		{
			name: "dangling local column",
			data: `{"schemas":[{"name":"public","objects":[
				{"kind":"table","name":"a","columns":[{"name":"id"}],"foreign_keys":[
					{"name":"fk","table":["public","a"],"columns":["b_id"],"referenced_table":["public","a"],"referenced_columns":["id"]}]}]}]}`,
			want: `unknown column "b_id"`,
		},
		{
			name: "dangling referenced column",
			data: `{"schemas":[{"name":"public","objects":[
				{"kind":"table","name":"a","columns":[{"name":"b_id"}],"foreign_keys":[
					{"name":"fk","table":["public","a"],"columns":["b_id"],"referenced_table":["public","b"],"referenced_columns":["id"]}]},
				{"kind":"table","name":"b","columns":[{"name":"key"}]}]}]}`,
			want: `unknown column "id" on "public.b"`,
		},
		{
			name: "foreign key on another table",
			data: `{"schemas":[{"name":"public","objects":[
				{"kind":"table","name":"a","columns":[{"name":"id"}],"foreign_keys":[
					{"name":"fk","table":["public","b"],"columns":["id"],"referenced_table":["public","a"],"referenced_columns":["id"]}]}]}]}`,
			want: "owned by",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(context.Background(), "postgresql", []byte(tt.data))
			require.Error(t, err)
			var schemaErr *core.SchemaError
			require.True(t, errors.As(err, &schemaErr), "got %T: %v", err, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_UnknownDialect(t *testing.T) {
	_, err := Load(context.Background(), "oracle", []byte(testutil.SchemaJSON))
	var unknown *dialect.UnknownDialectError
	require.True(t, errors.As(err, &unknown))
	assert.Contains(t, unknown.Available, "sqlite")

	_, err = Load(context.Background(), "", []byte(testutil.SchemaJSON))
	assert.ErrorIs(t, err, dialect.ErrDialectRequired)
}

func TestLoad_License(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	pubKey := base64.StdEncoding.EncodeToString(pub)

	sign := func(exp time.Time) string {
		key, err := license.Sign(priv, license.Claims{Email: "me@my.com", Plan: "personal", Exp: exp.UnixMilli()})
		require.NoError(t, err)
		return key
	}

	t.Run("valid key gives full mode", func(t *testing.T) {
		c := load(t, testutil.SchemaJSON, WithPublicKey(pubKey), WithLicense(sign(now.Add(24*time.Hour))))
		assert.False(t, c.IsDemo())
		require.NotNil(t, c.Claims())
		assert.Equal(t, "personal", c.Claims().Plan)
	})

	t.Run("expired key degrades to demo", func(t *testing.T) {
		c := load(t, testutil.SchemaJSON, WithPublicKey(pubKey), WithLicense(sign(now.Add(-time.Hour))))
		assert.True(t, c.IsDemo())
	})

	t.Run("malformed key fails", func(t *testing.T) {
		_, err := Load(context.Background(), "sqlite", []byte(testutil.SchemaJSON), WithPublicKey(pubKey), WithLicense("not-a-license"))
		var licErr *core.LicenseError
		assert.True(t, errors.As(err, &licErr))
	})

	t.Run("tampered key fails", func(t *testing.T) {
		key := sign(now.Add(time.Hour))
		_, sig, _ := strings.Cut(key, ".")
		tampered := base64.StdEncoding.EncodeToString([]byte(`{"email":"me@my.com","plan":"enterprise","exp":0}`))
		_, err := Load(context.Background(), "sqlite", []byte(testutil.SchemaJSON), WithPublicKey(pubKey), WithLicense(tampered+"."+sig))
		var licErr *core.LicenseError
		assert.True(t, errors.As(err, &licErr))
	})

	t.Run("key without public key fails", func(t *testing.T) {
		_, err := Load(context.Background(), "sqlite", []byte(testutil.SchemaJSON), WithLicense(sign(now.Add(time.Hour))))
		assert.ErrorIs(t, err, license.ErrMissingPublicKey)
	})
}

func TestLoad_DemoPolicy(t *testing.T) {
	_, err := Load(context.Background(), "sqlite", []byte(testutil.SchemaJSON), WithDemoPolicy(DemoPolicy{MaxRelations: 3}))
	var schemaErr *core.SchemaError
	require.True(t, errors.As(err, &schemaErr))
	assert.Contains(t, err.Error(), "at most 3 relations")

	c := load(t, testutil.SchemaJSON, WithDemoPolicy(DemoPolicy{MaxRows: 50}))
	assert.Equal(t, 50, c.Policy().MaxRows)
}
