package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEffectiveMode(t *testing.T) {
	tests := []struct {
		mode  Mode
		isTTY bool
		want  Mode
	}{
		{ModeAuto, true, ModeText},
		{ModeAuto, false, ModeMarkdown},
		{"", false, ModeMarkdown},
		{"bogus", true, ModeText},
		{ModeJSON, true, ModeJSON},
		{ModeText, false, ModeText},
		{ModeMarkdown, true, ModeMarkdown},
	}

	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			r := NewRendererWithTTY(&bytes.Buffer{}, &bytes.Buffer{}, tt.mode, tt.isTTY)
			assert.Equal(t, tt.want, r.EffectiveMode())
		})
	}
}

func TestNewRenderer_NotATerminal(t *testing.T) {
	r := NewRenderer(&bytes.Buffer{}, &bytes.Buffer{}, ModeAuto)
	assert.False(t, r.IsTTY())
	assert.Equal(t, ModeMarkdown, r.EffectiveMode())
}

func TestRenderer_Markdown(t *testing.T) {
	var out bytes.Buffer
	r := NewRendererWithTTY(&out, &bytes.Buffer{}, ModeMarkdown, false)

	r.Header(2, "Relations")
	r.KeyValue("dialect", "sqlite")
	r.Table([]string{"name", "kind"}, [][]string{{"projects", "table"}})

	got := out.String()
	assert.Contains(t, got, "## Relations\n")
	assert.Contains(t, got, "**dialect:** sqlite\n")
	assert.Contains(t, got, "| name | kind |")
	assert.Contains(t, got, "| projects | table |")
}

func TestRenderer_Text(t *testing.T) {
	var out, errOut bytes.Buffer
	r := NewRendererWithTTY(&out, &errOut, ModeText, false)

	r.Header(1, "Schema")
	r.KeyValue("relations", "3")
	r.Table([]string{"name"}, [][]string{{"clients"}})
	r.Warning("demo mode")

	got := out.String()
	assert.Contains(t, got, "Schema\n")
	assert.Contains(t, got, "relations: 3\n")
	assert.Contains(t, got, "│ clients │")
	assert.Equal(t, "Warning: demo mode\n", errOut.String())
}

func TestRenderer_JSON(t *testing.T) {
	var out bytes.Buffer
	r := NewRendererWithTTY(&out, &bytes.Buffer{}, ModeJSON, false)
	require.NoError(t, r.JSON(map[string]int{"relations": 2}))
	assert.JSONEq(t, `{"relations":2}`, out.String())
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "# Title", FormatHeader(0, "Title"))
	assert.Equal(t, "### Title", FormatHeader(3, "Title"))
	assert.Equal(t, "**k:** v", FormatKeyValue("k", "v"))
}
