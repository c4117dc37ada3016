package request

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/leaprest/pkg/core"
)

// scanner walks one query-string value. Every grammar rule reads from the
// current position and either consumes its input or returns an error with
// the position untouched.
type scanner struct {
	src  string
	pos  int
	what string // parameter being parsed, used in error messages
}

func newScanner(what, src string) *scanner {
	return &scanner{src: src, what: what}
}

func (s *scanner) eof() bool { return s.pos >= len(s.src) }

func (s *scanner) peek() byte {
	if s.eof() {
		return 0
	}
	return s.src[s.pos]
}

func (s *scanner) rest() string { return s.src[s.pos:] }

func (s *scanner) hasPrefix(p string) bool { return strings.HasPrefix(s.rest(), p) }

// consume advances past p when the input starts with it.
func (s *scanner) consume(p string) bool {
	if s.hasPrefix(p) {
		s.pos += len(p)
		return true
	}
	return false
}

func (s *scanner) expect(p string) error {
	if !s.consume(p) {
		return s.errorf("expected %q", p)
	}
	return nil
}

func (s *scanner) skipSpace() {
	for !s.eof() && isSpace(s.peek()) {
		s.pos++
	}
}

// comma consumes a separator with optional surrounding whitespace.
func (s *scanner) comma() bool {
	save := s.pos
	s.skipSpace()
	if s.consume(",") {
		s.skipSpace()
		return true
	}
	s.pos = save
	return false
}

// end fails unless all input was consumed.
func (s *scanner) end() error {
	if !s.eof() {
		return s.errorf("unexpected %q", s.rest())
	}
	return nil
}

func (s *scanner) errorf(format string, args ...any) error {
	return core.NewQueryError(
		fmt.Sprintf("failed to parse %s (%s)", s.what, s.src),
		fmt.Sprintf("%s at column %d", fmt.Sprintf(format, args...), s.pos+1),
	)
}

// ---------- Names ----------

// name reads a field name: a double-quoted string, or a run of letters,
// digits, underscores and spaces that may contain dashes not starting an
// arrow. Surrounding spaces are trimmed.
func (s *scanner) name() (string, error) {
	if s.peek() == '"' {
		end := strings.IndexByte(s.src[s.pos+1:], '"')
		if end <= 0 {
			return "", s.errorf("unterminated quoted name")
		}
		v := s.src[s.pos+1 : s.pos+1+end]
		s.pos += end + 2
		return v, nil
	}

	start := s.pos
scan:
	for !s.eof() {
		c := s.peek()
		switch {
		case isNameChar(c):
			s.pos++
		case c == '-' && s.pos+1 < len(s.src) && isNameChar(s.src[s.pos+1]):
			s.pos++
		default:
			break scan
		}
	}
	v := strings.TrimSpace(s.src[start:s.pos])
	if v == "" {
		s.pos = start
		return "", s.errorf("expected a name")
	}
	return v, nil
}

// field reads a name with an optional JSON path.
func (s *scanner) field() (core.Field, error) {
	name, err := s.name()
	if err != nil {
		return core.Field{}, err
	}
	path, err := s.jsonPath()
	if err != nil {
		return core.Field{}, err
	}
	return core.Field{Name: name, JSONPath: path}, nil
}

// jsonPath reads zero or more "->" / "->>" steps.
func (s *scanner) jsonPath() ([]core.JSONOperation, error) {
	var path []core.JSONOperation
	for {
		var op core.JSONOperation
		switch {
		case s.consume("->>"):
			op.Text = true
		case s.consume("->"):
		default:
			return path, nil
		}
		if idx, ok := s.index(); ok {
			op.Operand, op.Index = idx, true
		} else {
			key, err := s.name()
			if err != nil {
				return nil, err
			}
			op.Operand = key
		}
		path = append(path, op)
	}
}

// index reads a signed integer that ends a JSON path step.
func (s *scanner) index() (string, bool) {
	start := s.pos
	i := s.pos
	if i < len(s.src) && s.src[i] == '-' {
		i++
	}
	digits := i
	for i < len(s.src) && isDigit(s.src[i]) {
		i++
	}
	if i == digits {
		return "", false
	}
	rest := s.src[i:]
	if rest == "" || strings.HasPrefix(rest, "->") || strings.HasPrefix(rest, "::") ||
		rest[0] == '.' || rest[0] == ',' || rest[0] == ')' {
		s.pos = i
		return s.src[start:i], true
	}
	return "", false
}

// alias reads "name:" when present; a "::" cast is not an alias.
func (s *scanner) alias() string {
	i := s.pos
	for i < len(s.src) && (isAlnum(s.src[i]) || s.src[i] == '@' || s.src[i] == '.' || s.src[i] == '_') {
		i++
	}
	if i == s.pos || i >= len(s.src) || s.src[i] != ':' || strings.HasPrefix(s.src[i:], "::") {
		return ""
	}
	a := s.src[s.pos:i]
	s.pos = i + 1
	return a
}

// cast reads "::type". A type is an ASCII identifier with an optional []
// suffix; it is rendered unquoted.
func (s *scanner) cast() (string, error) {
	if !s.consume("::") {
		return "", nil
	}
	start := s.pos
	for !s.eof() && isCastChar(s.peek()) {
		s.pos++
	}
	if s.pos == start {
		return "", s.errorf("expected a type after ::")
	}
	s.consume("[]")
	return s.src[start:s.pos], nil
}

// names reads a comma separated list of names up to the end of input.
func (s *scanner) names() ([]string, error) {
	var out []string
	for {
		s.skipSpace()
		n, err := s.name()
		if err != nil {
			return nil, err
		}
		out = append(out, n)
		if !s.comma() {
			break
		}
	}
	return out, s.end()
}

func isSpace(c byte) bool  { return c == ' ' || c == '\t' || c == '\n' || c == '\r' }
func isDigit(c byte) bool  { return c >= '0' && c <= '9' }
func isLetter(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= 0x80 }
func isAlnum(c byte) bool  { return isLetter(c) || isDigit(c) }

func isNameChar(c byte) bool { return isAlnum(c) || c == '_' || c == ' ' }

func isCastChar(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || isDigit(c) || c == '_'
}
