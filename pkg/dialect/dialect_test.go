package dialect

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leaprest/pkg/core"
	"github.com/leapstack-labs/leaprest/pkg/sqlfrag"
)

func testConfig() *core.DialectConfig {
	return &core.DialectConfig{
		Name:             "testdb",
		Aliases:          []string{"test"},
		Identifiers:      core.IdentifierConfig{Quote: `"`, QuoteEnd: `"`, Escape: `""`},
		Placeholder:      core.PlaceholderDollar,
		SchemaQualified:  true,
		SupportsRangeOps: true,
		SupportsFullText: true,
	}
}

func render(t *testing.T, s sqlfrag.Snippet, r *Renderer) (string, []core.Param) {
	t.Helper()
	return s.Render(r.Placeholder)
}

func TestIdent(t *testing.T) {
	r := New(testConfig()).Build()

	tests := []struct {
		in   string
		want string
	}{
		{"name", `"name"`},
		{`we"ird`, `"we""ird"`},
		{"nul\x00byte", `"nulbyte"`},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Ident(tt.in))
		})
	}
}

func TestQi_SchemaQualification(t *testing.T) {
	qualified := New(testConfig()).Build()
	cfg := testConfig()
	cfg.SchemaQualified = false
	bare := New(cfg).Build()

	qi := core.Qi{Schema: "public", Name: "projects"}
	assert.Equal(t, `"public"."projects"`, qualified.Qi(qi))
	assert.Equal(t, `"projects"`, bare.Qi(qi))
	assert.Equal(t, `"projects"`, qualified.Qi(core.Qi{Name: "projects"}))
}

func TestSelectItem(t *testing.T) {
	r := New(testConfig()).Build()
	qi := core.Qi{Name: "t"}

	tests := []struct {
		name string
		item core.SelectItem
		want string
	}{
		{"star", core.SelectItem{Star: true}, `"t".*`},
		{"plain", core.SelectItem{Field: core.Field{Name: "id"}}, `"t"."id"`},
		{"alias", core.SelectItem{Field: core.Field{Name: "id"}, Alias: "key"}, `"t"."id" as "key"`},
		{"cast", core.SelectItem{Field: core.Field{Name: "id"}, Cast: "text"}, `cast("t"."id" as text) as "id"`},
		{
			"json path",
			core.SelectItem{Field: core.Field{Name: "settings", JSONPath: []core.JSONOperation{
				{Operand: "a"},
				{Text: true, Operand: "b"},
			}}},
			`to_jsonb("t"."settings")->'a'->>'b' as "b"`,
		},
		{
			"json index",
			core.SelectItem{Field: core.Field{Name: "tags", JSONPath: []core.JSONOperation{
				{Text: true, Operand: "0", Index: true},
			}}},
			`to_jsonb("t"."tags")->>0 as "tags"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.SelectItem(qi, tt.item))
		})
	}
}

func TestConditionTree(t *testing.T) {
	r := New(testConfig()).Build()
	qi := core.Qi{Name: "t"}

	tree := &core.ConditionTree{
		Op: core.LogicAnd,
		Conditions: []core.Condition{
			&core.Single{Field: core.Field{Name: "a"}, Filter: core.Filter{
				Kind: core.FilterOp, Operator: "=", Value: core.Param{Value: "1", Type: "int"},
			}},
			&core.Group{Negate: true, Tree: core.ConditionTree{
				Op: core.LogicOr,
				Conditions: []core.Condition{
					&core.Single{Field: core.Field{Name: "b"}, Filter: core.Filter{Kind: core.FilterIs, Is: core.IsNull}},
					&core.Single{Negate: true, Field: core.Field{Name: "c"}, Filter: core.Filter{
						Kind: core.FilterIn, List: []string{"x", `y"z`}, ListType: "text",
					}},
				},
			}},
		},
	}

	s, err := r.Where(qi, tree)
	require.NoError(t, err)
	text, params := render(t, s, r)
	assert.Equal(t, `where "t"."a" = $1 and not("t"."b" is null or not("t"."c" = any ($2)))`, text)
	require.Len(t, params, 2)
	assert.Equal(t, `{"x","y\"z"}`, params[1].Value)
	assert.Equal(t, "text", params[1].Type)
}

func TestWhere_EmptyTree(t *testing.T) {
	r := New(testConfig()).Build()
	s, err := r.Where(core.Qi{Name: "t"}, &core.ConditionTree{})
	require.NoError(t, err)
	assert.True(t, s.IsEmpty())
}

func TestFilter_FullText(t *testing.T) {
	r := New(testConfig()).Build()
	lang := core.Param{Value: "english", Type: core.TextType}

	s, err := r.Filter(core.Filter{
		Kind: core.FilterFts, Operator: "@@ to_tsquery",
		Value: core.Param{Value: "cat", Type: core.TextType}, Language: &lang,
	})
	require.NoError(t, err)
	text, params := render(t, s, r)
	assert.Equal(t, "@@ to_tsquery ($1,$2)", text)
	assert.Len(t, params, 2)
}

func TestBuild_DisallowsMissingCapabilities(t *testing.T) {
	cfg := testConfig()
	cfg.SupportsRangeOps = false
	cfg.SupportsFullText = false
	r := New(cfg).RewriteOperator("ilike", "like").RewriteIs(core.IsUnknown, "null").Build()

	_, err := r.Filter(core.Filter{Kind: core.FilterOp, Operator: "@>"})
	var unsupported *core.UnsupportedFeatureError
	require.True(t, errors.As(err, &unsupported))
	assert.Equal(t, "testdb", unsupported.Dialect)

	_, err = r.Filter(core.Filter{Kind: core.FilterFts, Operator: "@@ plainto_tsquery"})
	require.True(t, errors.As(err, &unsupported))

	s, err := r.Filter(core.Filter{Kind: core.FilterOp, Operator: "ilike", Value: core.Param{Value: "a%"}})
	require.NoError(t, err)
	text, _ := render(t, s, r)
	assert.Equal(t, "like $1", text)

	s, err = r.Filter(core.Filter{Kind: core.FilterIs, Is: core.IsUnknown})
	require.NoError(t, err)
	text, _ = render(t, s, r)
	assert.Equal(t, "is null", text)
}

func TestOrderAndGroupBy(t *testing.T) {
	r := New(testConfig()).Build()
	qi := core.Qi{Name: "t"}

	assert.Empty(t, r.Order(qi, nil))
	assert.Equal(t, `order by "t"."a" desc nulls last, "t"."b"`, r.Order(qi, []core.OrderTerm{
		{Field: core.Field{Name: "a"}, Direction: core.OrderDesc, Nulls: core.NullsLast},
		{Field: core.Field{Name: "b"}},
	}))
	assert.Equal(t, `group by "t"."a"`, r.GroupBy(qi, []core.Field{{Name: "a"}}))
}

func TestPlaceholder(t *testing.T) {
	cfg := testConfig()
	assert.Equal(t, "$3", New(cfg).Build().Placeholder(3))
	cfg.Placeholder = core.PlaceholderQuestion
	assert.Equal(t, "?", New(cfg).Build().Placeholder(3))
}

func TestJSONList(t *testing.T) {
	assert.Equal(t, `["1","2","3"]`, JSONList([]string{"1", "2", "3"}))
	assert.Equal(t, `[]`, JSONList(nil))
	assert.Equal(t, `["<a&b>"]`, JSONList([]string{"<a&b>"}))
}

func TestOperatorLookup(t *testing.T) {
	op, ok := LookupOperator("gte")
	require.True(t, ok)
	assert.Equal(t, ">=", op)

	op, ok = LookupFullText("wfts")
	require.True(t, ok)
	assert.Equal(t, "@@ websearch_to_tsquery", op)

	_, ok = LookupOperator("nope")
	assert.False(t, ok)
	assert.True(t, IsRangeOperator("-|-"))
	assert.Contains(t, OperatorNames(), "in")
}

type stubDialect struct{ *Renderer }

func (stubDialect) EnvStatement([]core.Pair) sqlfrag.Snippet { return sqlfrag.SQL("select null") }
func (stubDialect) MainStatement(*core.ApiRequest) (sqlfrag.Snippet, error) {
	return sqlfrag.Snippet{}, nil
}
func (stubDialect) MutateStatement(*core.ApiRequest) (sqlfrag.Snippet, error) {
	return sqlfrag.Snippet{}, nil
}

func TestRegistry(t *testing.T) {
	Register(stubDialect{New(testConfig()).Build()})

	d, ok := Get("TESTDB")
	require.True(t, ok)
	assert.Equal(t, "testdb", d.Name())

	d, ok = Get("test")
	require.True(t, ok)
	assert.Equal(t, "testdb", d.Name())

	assert.Contains(t, List(), "testdb")

	_, err := Resolve("")
	assert.ErrorIs(t, err, ErrDialectRequired)

	_, err = Resolve("oracle")
	var unknown *UnknownDialectError
	require.True(t, errors.As(err, &unknown))
	assert.Contains(t, unknown.Available, "testdb")
}
