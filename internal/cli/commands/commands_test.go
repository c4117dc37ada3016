package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leaprest/internal/cli/config"
	clitest "github.com/leapstack-labs/leaprest/internal/cli/testutil"
	"github.com/leapstack-labs/leaprest/internal/testutil"
	"github.com/leapstack-labs/leaprest/pkg/catalog"
	"github.com/leapstack-labs/leaprest/pkg/core"

	_ "github.com/leapstack-labs/leaprest/pkg/adapters/postgres"
)

// run loads cfgPath as the current configuration and executes cmd.
func run(t *testing.T, cfgPath string, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	config.ResetConfig()
	_, err := config.LoadConfig(cfgPath, nil)
	require.NoError(t, err)

	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	err = cmd.ExecuteContext(config.WithLogger(context.Background(), testutil.NewTestLogger(t)))
	return out.String(), err
}

// demoProject creates a seeded demo database and a project pointing at it.
func demoProject(t *testing.T, extra string) string {
	t.Helper()
	cfgPath := clitest.SetupTestProject(t, "sqlite", "database:\n  type: sqlite\n  path: demo.db\n"+extra)
	dbPath := filepath.Join(filepath.Dir(cfgPath), "demo.db")
	_, err := run(t, cfgPath, NewDemoCommand(), "--db", dbPath)
	require.NoError(t, err)
	return cfgPath
}

func TestCompileCommand(t *testing.T) {
	t.Run("markdown", func(t *testing.T) {
		cfgPath := clitest.SetupTestProject(t, "sqlite", "")
		out, err := run(t, cfgPath, NewCompileCommand(), "/projects?select=id,name&id=eq.1")
		require.NoError(t, err)

		assert.Contains(t, out, "## Main statement")
		assert.Contains(t, out, "```sql")
		assert.Contains(t, out, `where "projects"."id" = ?`)
		assert.Contains(t, out, "| 1 | INTEGER |")
		assert.Contains(t, out, "## Env statement")
		assert.Contains(t, out, "select null")
		clitest.AssertValidMarkdown(t, out)
		clitest.AssertNoANSI(t, out)
	})

	t.Run("json", func(t *testing.T) {
		cfgPath := clitest.SetupTestProject(t, "postgresql", "output: json\n")
		out, err := run(t, cfgPath, NewCompileCommand(), "--env", "user=1", "/projects?select=id&id=eq.1")
		require.NoError(t, err)

		var got struct {
			Main statementOutput `json:"main"`
			Env  statementOutput `json:"env"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &got))
		assert.Contains(t, got.Main.SQL, `"public"."projects"."id" = `)
		assert.Contains(t, got.Main.Params, paramOutput{Value: "1", Type: "INTEGER"})
		assert.Contains(t, got.Env.SQL, "set_config(")
		assert.Equal(t, []paramOutput{
			{Value: "role", Type: "text"},
			{Value: "anonymous", Type: "text"},
			{Value: "user", Type: "text"},
			{Value: "1", Type: "text"},
		}, got.Env.Params)
	})

	t.Run("unknown relation", func(t *testing.T) {
		cfgPath := clitest.SetupTestProject(t, "sqlite", "")
		_, err := run(t, cfgPath, NewCompileCommand(), "/nope")
		var resErr *core.ResolutionError
		require.ErrorAs(t, err, &resErr)
		assert.Equal(t, core.ResolveNotFound, resErr.Kind)
	})

	t.Run("bad header", func(t *testing.T) {
		cfgPath := clitest.SetupTestProject(t, "sqlite", "")
		_, err := run(t, cfgPath, NewCompileCommand(), "-H", "nocolon", "/projects")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid header")
	})

	t.Run("body from file", func(t *testing.T) {
		cfgPath := clitest.SetupTestProject(t, "postgresql", "")
		body := filepath.Join(t.TempDir(), "body.json")
		require.NoError(t, os.WriteFile(body, []byte(`{"name":"New","client_id":1}`), 0o600))

		out, err := run(t, cfgPath, NewCompileCommand(), "-X", "post", "-d", "@"+body, "/projects")
		require.NoError(t, err)
		assert.Contains(t, out, `insert into "public"."projects"`)
	})

	t.Run("exec", func(t *testing.T) {
		cfgPath := demoProject(t, "")
		out, err := run(t, cfgPath, NewCompileCommand(), "--exec", "/projects?select=id,name&id=eq.1")
		require.NoError(t, err)
		assert.Contains(t, out, `"name":"Windows 7"`)
		assert.Contains(t, out, "(1 rows)")
	})

	t.Run("exec without database", func(t *testing.T) {
		cfgPath := clitest.SetupTestProject(t, "sqlite", "")
		_, err := run(t, cfgPath, NewCompileCommand(), "--exec", "/projects")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no database configured")
	})
}

func TestEnvCommand(t *testing.T) {
	cfgPath := clitest.SetupTestProject(t, "postgresql", "output: json\n")
	out, err := run(t, cfgPath, NewEnvCommand(), "role=admin")
	require.NoError(t, err)

	var got statementOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "select set_config($1, $2, true)", got.SQL)

	out, err = run(t, cfgPath, NewEnvCommand())
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "select null", got.SQL)

	_, err = run(t, cfgPath, NewEnvCommand(), "novalue")
	require.Error(t, err)
}

func TestTwoStageCommand(t *testing.T) {
	cfgPath := clitest.SetupTestProject(t, "sqlite", "output: json\n")

	out, err := run(t, cfgPath, NewTwoStageCommand(),
		"-X", "POST", "-d", `{"id":9,"name":"x","client_id":1}`, "--ids", "9", "/projects?select=id,name")
	require.NoError(t, err)
	var got struct {
		Mutate *statementOutput `json:"mutate"`
		Select *statementOutput `json:"select"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.NotNil(t, got.Mutate)
	require.NotNil(t, got.Select)
	assert.Contains(t, got.Mutate.SQL, `insert into "projects"`)
	assert.Contains(t, got.Select.SQL, "json_each")
	assert.Equal(t, `["9"]`, got.Select.Params[len(got.Select.Params)-1].Value)

	out, err = run(t, cfgPath, NewTwoStageCommand(), "-X", "DELETE", "/projects?id=eq.1")
	require.NoError(t, err)
	got.Select = nil
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Nil(t, got.Select)

	_, err = run(t, cfgPath, NewTwoStageCommand(), "/projects")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "writes only")
}

func TestCheckCommand(t *testing.T) {
	cfgPath := clitest.SetupTestProject(t, "sqlite", "output: json\ndemo:\n  max_rows: 50\n")
	out, err := run(t, cfgPath, NewCheckCommand())
	require.NoError(t, err)

	var got CheckOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "sqlite", got.Dialect)
	assert.Equal(t, 8, got.Relations)
	assert.Equal(t, 4, got.ForeignKeys)
	assert.Equal(t, []SchemaSummary{{Name: "public", Tables: 7, Views: 1, ForeignKeys: 4}}, got.Schemas)
	assert.Equal(t, "demo", got.License.Mode)
	require.NotNil(t, got.Demo)
	assert.Equal(t, 50, got.Demo.MaxRows)

	cfgPath = clitest.SetupTestProject(t, "sqlite", "output: markdown\n")
	out, err = run(t, cfgPath, NewCheckCommand())
	require.NoError(t, err)
	assert.Contains(t, out, "# Schema OK")
	assert.Contains(t, out, "**Relations:** 8")
	assert.Contains(t, out, "**License:** Demo")
	clitest.AssertValidMarkdown(t, out)
}

func TestCheckCommand_InvalidSchema(t *testing.T) {
	cfgPath := clitest.SetupTestProject(t, "sqlite", "")
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(cfgPath), "schema.json"), []byte(`{"schemas":`), 0o600))

	_, err := run(t, cfgPath, NewCheckCommand())
	var schemaErr *core.SchemaError
	assert.True(t, errors.As(err, &schemaErr), "got %v", err)
}

func TestLicenseLine(t *testing.T) {
	assert.Equal(t, "Demo", licenseLine(LicenseSummary{Mode: "demo"}))
	assert.Equal(t, "Full (Pro plan, a@b.c)", licenseLine(LicenseSummary{Mode: "full", Plan: "pro", Email: "a@b.c"}))
}

func TestGraphCommand(t *testing.T) {
	cfgPath := clitest.SetupTestProject(t, "sqlite", "output: json\n")

	out, err := run(t, cfgPath, NewGraphCommand())
	require.NoError(t, err)
	var got GraphOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, 8, got.TotalRelations)
	assert.Equal(t, 4, got.TotalKeys)
	require.NotEmpty(t, got.Levels)
	for _, n := range got.Levels[0] {
		assert.Empty(t, n.References, "%s sits on level 0", n.Relation)
	}

	out, err = run(t, cfgPath, NewGraphCommand(), "--relation", "public.projects")
	require.NoError(t, err)
	got = GraphOutput{}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, 5, got.TotalRelations)

	_, err = run(t, cfgPath, NewGraphCommand(), "--relation", "public.nope")
	require.Error(t, err)

	cfgPath = clitest.SetupTestProject(t, "sqlite", "output: markdown\n")
	out, err = run(t, cfgPath, NewGraphCommand())
	require.NoError(t, err)
	assert.Contains(t, out, "# Relation Graph")
	assert.Contains(t, out, "- public.projects\n  - references: public.clients (projects_client_id_fkey)")
	clitest.AssertValidMarkdown(t, out)
}

func TestDemoAndIntrospectCommands(t *testing.T) {
	dir := t.TempDir()
	cfgPath := clitest.SetupTestProject(t, "sqlite", "")
	dbPath := filepath.Join(dir, "demo.db")
	schemaPath := filepath.Join(dir, "demo.yaml")

	out, err := run(t, cfgPath, NewDemoCommand(), "--db", dbPath, "-w", schemaPath)
	require.NoError(t, err)
	assert.Contains(t, out, "at version 2")
	assert.Contains(t, out, "(6 relations)")

	data, err := os.ReadFile(schemaPath)
	require.NoError(t, err)
	doc, err := catalog.Decode(data)
	require.NoError(t, err)
	require.Len(t, doc.Schemas, 1)
	assert.Len(t, doc.Schemas[0].Objects, 6)

	out, err = run(t, cfgPath, NewDemoCommand(), "--db", dbPath, "--reset")
	require.NoError(t, err)
	assert.Contains(t, out, "at version 2")

	cfgPath = clitest.SetupTestProject(t, "sqlite", "database:\n  type: sqlite\n  path: "+dbPath+"\n")
	out, err = run(t, cfgPath, NewIntrospectCommand(), "--format", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "name: projects_view")
	assert.Contains(t, out, "kind: view")

	jsonPath := filepath.Join(dir, "schema.json")
	_, err = run(t, cfgPath, NewIntrospectCommand(), "-w", jsonPath)
	require.NoError(t, err)
	data, err = os.ReadFile(jsonPath)
	require.NoError(t, err)
	assert.True(t, json.Valid(data))

	_, err = run(t, cfgPath, NewIntrospectCommand(), "--format", "toml")
	require.Error(t, err)
}

func TestFormatForPath(t *testing.T) {
	assert.Equal(t, "yaml", formatForPath("a.yml"))
	assert.Equal(t, "yaml", formatForPath("a.YAML"))
	assert.Equal(t, "json", formatForPath("a.json"))
	assert.Equal(t, "json", formatForPath("a"))
}

func TestParsePairs(t *testing.T) {
	headers, err := parseHeaders([]string{"Prefer: return=representation", "Accept:application/json"})
	require.NoError(t, err)
	assert.Equal(t, []core.Pair{
		{Key: "Prefer", Value: "return=representation"},
		{Key: "Accept", Value: "application/json"},
	}, headers)

	_, err = parseHeaders([]string{": x"})
	require.Error(t, err)

	env, err := parseEnvPairs([]string{"role=admin", "claims={\"a\":1}", "empty="})
	require.NoError(t, err)
	assert.Equal(t, []core.Pair{
		{Key: "role", Value: "admin"},
		{Key: "claims", Value: `{"a":1}`},
		{Key: "empty", Value: ""},
	}, env)

	_, err = parseEnvPairs([]string{"=x"})
	require.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	cmd := NewVersionCommand("1.2.3")
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "LeapREST v1.2.3")
	assert.Contains(t, buf.String(), "postgresql, sqlite")
}

func TestCommandMetadata(t *testing.T) {
	tests := []struct {
		cmd   *cobra.Command
		use   string
		flags []string
	}{
		{NewCompileCommand(), "compile <uri>", []string{"method", "header", "data", "env", "as-role", "exec"}},
		{NewTwoStageCommand(), "two-stage <uri>", []string{"method", "data", "ids"}},
		{NewGraphCommand(), "graph", []string{"relation"}},
		{NewIntrospectCommand(), "introspect", []string{"schemas", "format", "write"}},
		{NewServeCommand(), "serve", []string{"addr", "watch", "demo"}},
		{NewDemoCommand(), "demo", []string{"db", "write", "reset"}},
	}

	for _, tt := range tests {
		t.Run(tt.use, func(t *testing.T) {
			assert.Equal(t, tt.use, tt.cmd.Use)
			assert.NotEmpty(t, tt.cmd.Short)
			assert.NotEmpty(t, tt.cmd.Example)
			for _, flag := range tt.flags {
				assert.NotNil(t, tt.cmd.Flags().Lookup(flag), "flag %q should exist", flag)
			}
		})
	}
}
