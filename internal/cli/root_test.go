package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leaprest/internal/cli/config"
	clitest "github.com/leapstack-labs/leaprest/internal/cli/testutil"
)

func execRoot(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	config.ResetConfig()
	t.Cleanup(config.ResetConfig)

	cmd := NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestRootCommand_Help(t *testing.T) {
	out, _, err := execRoot(t, "--help")
	require.NoError(t, err)
	for _, name := range []string{"compile", "two-stage", "env", "check", "graph", "introspect", "serve", "repl", "demo", "completion"} {
		assert.Contains(t, out, name)
	}
}

func TestRootCommand_Version(t *testing.T) {
	out, _, err := execRoot(t, "--version")
	require.NoError(t, err)
	assert.Equal(t, "leaprest "+Version+"\nREST to SQL compiler\n", out)
}

func TestRootCommand_Completion(t *testing.T) {
	out, _, err := execRoot(t, "completion", "bash")
	require.NoError(t, err)
	assert.Contains(t, out, "__start_leaprest")

	_, _, err = execRoot(t, "completion", "tcsh")
	require.Error(t, err)
}

func TestRootCommand_FlagsOverrideConfig(t *testing.T) {
	cfgPath := clitest.SetupTestProject(t, "sqlite", "")

	out, _, err := execRoot(t, "--config", cfgPath, "-o", "json", "env", "a=b")
	require.NoError(t, err)
	assert.Contains(t, out, `"sql": "select null"`)

	out, _, err = execRoot(t, "--config", cfgPath, "--dialect", "postgresql", "-o", "json", "env", "a=b")
	require.NoError(t, err)
	var stmt struct {
		SQL string `json:"sql"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &stmt))
	assert.Equal(t, "select set_config($1, $2, true)", stmt.SQL)
}

func TestRootCommand_Errors(t *testing.T) {
	cfgPath := clitest.SetupTestProject(t, "sqlite", "")

	_, _, err := execRoot(t, "--config", cfgPath, "--target", "staging", "check")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown environment "staging"`)

	_, _, err = execRoot(t, "--config", cfgPath, "--dialect", "oracle", "check")
	require.Error(t, err)

	_, _, err = execRoot(t, "--config", cfgPath, "-o", "html", "check")
	require.Error(t, err)
}

func TestRootCommand_Verbose(t *testing.T) {
	cfgPath := clitest.SetupTestProject(t, "sqlite", "")
	_, errOut, err := execRoot(t, "--config", cfgPath, "-v", "-o", "json", "check")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(errOut, "Using config file: "), errOut)
}
