// Package compiler turns parsed requests into dialect SQL.
//
// Three entry points cover the flows a gateway needs:
//
//   - MainStatement answers a request with a single statement.
//   - EnvStatement pushes request context into the database session.
//   - NewTwoStage splits a write into a mutate statement and a select
//     statement over the rows the write touched.
//
// Every call plans the request against the catalog first, so callers may
// pass requests straight from request.Parse.
package compiler

import (
	"github.com/leapstack-labs/leaprest/pkg/catalog"
	"github.com/leapstack-labs/leaprest/pkg/core"
	"github.com/leapstack-labs/leaprest/pkg/dialect"
	"github.com/leapstack-labs/leaprest/pkg/planner"
)

// MainStatement compiles req into the statement that answers it. A non-nil
// env replaces the env pairs carried by req.
func MainStatement(cat *catalog.Catalog, req *core.ApiRequest, env []core.Pair) (*core.Statement, error) {
	req, err := prepare(cat, req, env)
	if err != nil {
		return nil, err
	}
	d := cat.Dialect()
	s, err := d.MainStatement(req)
	if err != nil {
		return nil, err
	}
	return s.Statement(d.Placeholder), nil
}

// EnvStatement compiles the statement that exposes env to the session of
// the named dialect.
func EnvStatement(dialectName string, env []core.Pair) (*core.Statement, error) {
	d, err := dialect.Resolve(dialectName)
	if err != nil {
		return nil, err
	}
	return d.EnvStatement(env).Statement(d.Placeholder), nil
}

func prepare(cat *catalog.Catalog, req *core.ApiRequest, env []core.Pair) (*core.ApiRequest, error) {
	if cat == nil {
		return nil, &core.SchemaError{Message: "no schema loaded"}
	}
	if req != nil && env != nil {
		req.Env = env
	}
	return planner.Plan(cat, req)
}
