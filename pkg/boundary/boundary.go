// Package boundary adapts the compiler to callers that cannot receive Go
// errors, such as foreign function exports.
//
// Every call returns a plain value, nil on failure, and leaves the message
// of a failure in the ErrorChannel the caller supplied. The message stays
// until the next failing call on the same channel, so callers drain it
// right after the failure. Channels are owned by callers; concurrent
// compiles use one channel each.
package boundary

import (
	"context"
	"sync"

	"github.com/leapstack-labs/leaprest/pkg/catalog"
	"github.com/leapstack-labs/leaprest/pkg/compiler"
	"github.com/leapstack-labs/leaprest/pkg/core"
	"github.com/leapstack-labs/leaprest/pkg/request"
)

// ErrorChannel holds the message of the last failed call made through it.
type ErrorChannel struct {
	mu  sync.Mutex
	msg string
}

// Length returns the size in bytes of the pending message, or 0.
func (c *ErrorChannel) Length() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msg)
}

// CopyMessage copies the pending message into buf and returns the number of
// bytes written. It returns -1 and copies nothing when buf is too small.
func (c *ErrorChannel) CopyMessage(buf []byte) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(buf) < len(c.msg) {
		return -1
	}
	return copy(buf, c.msg)
}

// Message returns the pending message.
func (c *ErrorChannel) Message() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.msg
}

func (c *ErrorChannel) record(err error) {
	if c == nil || err == nil {
		return
	}
	c.mu.Lock()
	c.msg = err.Error()
	c.mu.Unlock()
}

// Request is a raw HTTP request as seen by the caller.
type Request struct {
	Method  string
	URI     string
	Body    *string
	Headers []core.Pair
	Env     []core.Pair
}

// Target selects where a request is resolved: the schema to use and the
// path prefix in front of relation names.
type Target struct {
	Schema string
	Root   string
	Role   string
	// MaxRows caps every read when positive.
	MaxRows int
}

// Compiler is a loaded schema bound to a dialect.
type Compiler struct {
	cat  *catalog.Catalog
	errs *ErrorChannel
}

// New loads schema for dialectName. An empty license runs the compiler in
// demo mode. On failure New returns nil and records the message in errs.
func New(ctx context.Context, dialectName, schema, license string, errs *ErrorChannel, opts ...catalog.Option) *Compiler {
	opts = append(opts, catalog.WithLicense(license))
	cat, err := catalog.Load(ctx, dialectName, []byte(schema), opts...)
	if err != nil {
		errs.record(err)
		return nil
	}
	return &Compiler{cat: cat, errs: errs}
}

// IsDemo reports whether the compiler runs without a full license.
func (c *Compiler) IsDemo() bool { return c.cat.IsDemo() }

// Catalog returns the loaded schema.
func (c *Compiler) Catalog() *catalog.Catalog { return c.cat }

// MainStatement compiles the single statement answering req.
func (c *Compiler) MainStatement(t Target, req Request) *core.Statement {
	parsed, err := c.parse(t, req)
	if err != nil {
		c.errs.record(err)
		return nil
	}
	s, err := compiler.MainStatement(c.cat, parsed, nil)
	if err != nil {
		c.errs.record(err)
		return nil
	}
	return s
}

// EnvStatement compiles the statement that exposes the env pairs of req
// to the database session.
func (c *Compiler) EnvStatement(req Request) *core.Statement {
	s, err := compiler.EnvStatement(c.cat.Dialect().Name(), req.Env)
	if err != nil {
		c.errs.record(err)
		return nil
	}
	return s
}

// TwoStageStatement compiles a write into its mutate and select stages.
func (c *Compiler) TwoStageStatement(t Target, req Request) *TwoStage {
	parsed, err := c.parse(t, req)
	if err != nil {
		c.errs.record(err)
		return nil
	}
	ts, err := compiler.NewTwoStage(c.cat, parsed, nil)
	if err != nil {
		c.errs.record(err)
		return nil
	}
	return &TwoStage{ts: ts, errs: c.errs}
}

func (c *Compiler) parse(t Target, req Request) (*core.ApiRequest, error) {
	in := request.Input{
		Method:  req.Method,
		URI:     req.URI,
		Root:    t.Root,
		Schema:  t.Schema,
		Role:    t.Role,
		Headers: req.Headers,
		Env:     req.Env,
		Body:    req.Body,
	}
	if t.MaxRows > 0 {
		in.MaxRows = &t.MaxRows
	}
	return request.Parse(c.cat, in)
}

// TwoStage wraps compiler.TwoStage with channel error reporting.
type TwoStage struct {
	ts   *compiler.TwoStage
	errs *ErrorChannel
}

// Mutate returns the write statement.
func (t *TwoStage) Mutate() *core.Statement { return t.ts.Mutate() }

// SetIDs records the keys returned by the write.
func (t *TwoStage) SetIDs(ids []string) { t.ts.SetIDs(ids) }

// KeyColumns returns the key columns the write returns, in id order.
func (t *TwoStage) KeyColumns() []string { return t.ts.KeyColumns() }

// Select returns the read-back statement, or nil when ids were not set.
func (t *TwoStage) Select() *core.Statement {
	s, err := t.ts.Select()
	if err != nil {
		t.errs.record(err)
		return nil
	}
	return s
}

// State returns the current step of the flow.
func (t *TwoStage) State() compiler.State { return t.ts.State() }
