// Package sqlfrag assembles SQL text from literal chunks and bound parameters.
//
// Placeholders are numbered only when a snippet is rendered, so fragments can
// be built in any order and concatenated freely; the final numbering always
// follows the textual position of each parameter.
package sqlfrag

import (
	"strings"

	"github.com/leapstack-labs/leaprest/pkg/core"
)

type chunk struct {
	text  string
	param *core.Param
}

// Snippet is an immutable sequence of SQL text and parameters.
type Snippet struct {
	chunks []chunk
}

// SQL returns a snippet holding literal text.
func SQL(text string) Snippet {
	if text == "" {
		return Snippet{}
	}
	return Snippet{chunks: []chunk{{text: text}}}
}

// Param returns a snippet holding a single placeholder.
func Param(p core.Param) Snippet {
	return Snippet{chunks: []chunk{{param: &p}}}
}

// Concat joins snippets without separators.
func Concat(parts ...Snippet) Snippet {
	n := 0
	for _, p := range parts {
		n += len(p.chunks)
	}
	out := make([]chunk, 0, n)
	for _, p := range parts {
		out = append(out, p.chunks...)
	}
	return Snippet{chunks: out}
}

// Join joins snippets with a literal separator.
func Join(parts []Snippet, sep string) Snippet {
	out := make([]Snippet, 0, len(parts)*2)
	for i, p := range parts {
		if i > 0 {
			out = append(out, SQL(sep))
		}
		out = append(out, p)
	}
	return Concat(out...)
}

// Append returns s followed by parts. Literal strings and snippets may be mixed.
func (s Snippet) Append(parts ...any) Snippet {
	all := make([]Snippet, 0, len(parts)+1)
	all = append(all, s)
	for _, p := range parts {
		switch v := p.(type) {
		case string:
			all = append(all, SQL(v))
		case Snippet:
			all = append(all, v)
		case core.Param:
			all = append(all, Param(v))
		default:
			panic("sqlfrag: unsupported part type")
		}
	}
	return Concat(all...)
}

// Build concatenates literal strings, snippets and params in order.
func Build(parts ...any) Snippet {
	return Snippet{}.Append(parts...)
}

// IsEmpty reports whether the snippet holds no text and no parameters.
func (s Snippet) IsEmpty() bool {
	for _, c := range s.chunks {
		if c.param != nil || c.text != "" {
			return false
		}
	}
	return true
}

// ParamCount returns the number of placeholders in the snippet.
func (s Snippet) ParamCount() int {
	n := 0
	for _, c := range s.chunks {
		if c.param != nil {
			n++
		}
	}
	return n
}

// Render numbers the placeholders with format (1-based) and returns the SQL
// text with the parameters in bind order.
func (s Snippet) Render(format func(index int) string) (string, []core.Param) {
	var b strings.Builder
	params := make([]core.Param, 0, s.ParamCount())
	for _, c := range s.chunks {
		if c.param == nil {
			b.WriteString(c.text)
			continue
		}
		params = append(params, *c.param)
		b.WriteString(format(len(params)))
	}
	return b.String(), params
}

// Statement renders the snippet into a compiled statement.
func (s Snippet) Statement(format func(index int) string) *core.Statement {
	text, params := s.Render(format)
	return &core.Statement{SQL: text, Params: params}
}
