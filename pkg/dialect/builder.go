package dialect

import (
	"github.com/leapstack-labs/leaprest/pkg/core"
	"github.com/leapstack-labs/leaprest/pkg/sqlfrag"
)

// JSONPathFunc renders a JSON path applied to an already rendered column.
type JSONPathFunc func(r *Renderer, column string, path []core.JSONOperation) string

// ListFilterFunc renders the right-hand side of an "in" filter.
type ListFilterFunc func(r *Renderer, list []string, paramType string) sqlfrag.Snippet

// Builder provides a fluent API for constructing renderers.
type Builder struct {
	renderer *Renderer
}

// New creates a renderer builder from a DialectConfig.
// Build auto-wires operator restrictions from the capability flags.
func New(cfg *core.DialectConfig) *Builder {
	return &Builder{
		renderer: &Renderer{
			cfg:        cfg,
			jsonPath:   ArrowJSONPath,
			listFilter: ArrayListFilter,
			operators:  make(map[string]string),
			isValues:   make(map[core.IsValue]string),
			disallowed: make(map[string]string),
		},
	}
}

// JSONPath sets the JSON path renderer.
func (b *Builder) JSONPath(fn JSONPathFunc) *Builder {
	b.renderer.jsonPath = fn
	return b
}

// ListFilter sets the "in" filter renderer.
func (b *Builder) ListFilter(fn ListFilterFunc) *Builder {
	b.renderer.listFilter = fn
	return b
}

// RewriteOperator renders the SQL operator from as to.
func (b *Builder) RewriteOperator(from, to string) *Builder {
	b.renderer.operators[from] = to
	return b
}

// RewriteIs renders "is <from>" as "is <to>".
func (b *Builder) RewriteIs(from core.IsValue, to string) *Builder {
	b.renderer.isValues[from] = to
	return b
}

// Disallow rejects the SQL operator op as an unsupported feature.
func (b *Builder) Disallow(op, feature string) *Builder {
	b.renderer.disallowed[op] = feature
	return b
}

// Build returns the constructed renderer.
func (b *Builder) Build() *Renderer {
	r := b.renderer
	if !r.cfg.SupportsRangeOps {
		for op := range rangeOperators {
			if _, ok := r.disallowed[op]; !ok {
				r.disallowed[op] = "range operator " + op
			}
		}
	}
	if !r.cfg.SupportsFullText {
		for _, op := range ftsOperators {
			if _, ok := r.disallowed[op]; !ok {
				r.disallowed[op] = "full text search"
			}
		}
	}
	return r
}
