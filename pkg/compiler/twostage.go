package compiler

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/leapstack-labs/leaprest/pkg/catalog"
	"github.com/leapstack-labs/leaprest/pkg/core"
	"github.com/leapstack-labs/leaprest/pkg/dialect"
)

// ErrIDsNotSet is returned by Select when SetIDs has not been called.
var ErrIDsNotSet = errors.New("select stage requested before ids were set")

// State is a step of the two-stage flow.
type State int

const (
	// StateCreated means the write compiled but its statement was not handed out.
	StateCreated State = iota
	// StateMutateReady means the caller holds the mutate statement.
	StateMutateReady
	// StateIDsSet means the keys of the written rows are known.
	StateIDsSet
	// StateSelectReady means the select statement over those keys was compiled.
	StateSelectReady
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateMutateReady:
		return "mutate-ready"
	case StateIDsSet:
		return "ids-set"
	case StateSelectReady:
		return "select-ready"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// TwoStage is a write split into a mutate statement returning the primary
// key of every touched row, and a select statement that reads those rows
// back through the same pipeline as a read.
//
// The caller executes Mutate, collects the key columns of its result rows,
// passes them to SetIDs and then executes Select. With a single key column
// each id is the key value; with several, each id is a JSON array of the
// values in KeyColumns order. A TwoStage is not safe for concurrent use.
type TwoStage struct {
	dialect  dialect.Dialect
	req      *core.ApiRequest
	keys     []string
	keyTypes []string

	mutate *core.Statement
	ids    []string
	sel    *core.Statement
	state  State
}

// NewTwoStage plans req, a write, and compiles its mutate statement. A
// non-nil env replaces the env pairs carried by req.
func NewTwoStage(cat *catalog.Catalog, req *core.ApiRequest, env []core.Pair) (*TwoStage, error) {
	req, err := prepare(cat, req, env)
	if err != nil {
		return nil, err
	}
	d := cat.Dialect()
	if !req.Query.Kind.IsMutation() {
		return nil, &core.UnsupportedFeatureError{
			Dialect: d.Name(),
			Feature: "two-stage " + req.Query.Kind.String(),
			Hint:    "reads compile to a single statement",
		}
	}

	ts := &TwoStage{dialect: d, req: req}
	q := req.Query
	pk := cat.PrimaryKey(q.Relation)
	rowID := d.Config().ImplicitRowID
	switch {
	case len(pk) == 1 || (len(pk) > 1 && rowID == ""):
		for _, name := range pk {
			col, _ := cat.Column(q.Relation, name)
			ts.keys = append(ts.keys, name)
			ts.keyTypes = append(ts.keyTypes, core.DataTypeOrUnknown(col))
		}
	case rowID != "":
		// composite keys are read back by row id
		ts.keys = []string{rowID}
		ts.keyTypes = []string{core.IntegerType}
	default:
		return nil, &core.UnsupportedFeatureError{
			Dialect: d.Name(),
			Feature: fmt.Sprintf("two-stage writes to %s without a primary key", q.Relation.Name),
			Hint:    "declare a primary key in the schema description",
		}
	}

	s, err := d.MutateStatement(ts.mutateRequest())
	if err != nil {
		return nil, fmt.Errorf("failed to compile mutate statement: %w", err)
	}
	ts.mutate = s.Statement(d.Placeholder)
	return ts, nil
}

// State returns the current step.
func (ts *TwoStage) State() State { return ts.state }

// Mutate returns the write statement.
func (ts *TwoStage) Mutate() *core.Statement {
	if ts.state == StateCreated {
		ts.state = StateMutateReady
	}
	return ts.mutate
}

// SetIDs records the key values returned by the mutate statement. An empty
// list is valid and selects no rows. Calling it again replaces the ids.
func (ts *TwoStage) SetIDs(ids []string) {
	ts.ids = append([]string{}, ids...)
	ts.sel = nil
	ts.state = StateIDsSet
}

// IDs returns the recorded key values.
func (ts *TwoStage) IDs() []string { return ts.ids }

// KeyColumns returns the columns the mutate statement returns first, in
// the order SetIDs expects them.
func (ts *TwoStage) KeyColumns() []string { return ts.keys }

// Select returns the statement that reads back the written rows.
func (ts *TwoStage) Select() (*core.Statement, error) {
	if ts.state < StateIDsSet {
		return nil, ErrIDsNotSet
	}
	if ts.sel != nil {
		return ts.sel, nil
	}
	req, err := ts.selectRequest()
	if err != nil {
		return nil, err
	}
	s, err := ts.dialect.MainStatement(req)
	if err != nil {
		return nil, fmt.Errorf("failed to compile select statement: %w", err)
	}
	ts.sel = s.Statement(ts.dialect.Placeholder)
	ts.state = StateSelectReady
	return ts.sel, nil
}

// mutateRequest narrows the write to return only the key columns.
func (ts *TwoStage) mutateRequest() *core.ApiRequest {
	req := *ts.req
	q := *req.Query
	q.Returning = ts.keys
	q.Select = nil
	q.SubSelects = nil
	req.Query = &q
	return &req
}

// selectRequest turns the write into a read of the rows whose key is in
// the recorded id set. The filters of the write are kept after the key
// filter; paging and ordering are not.
func (ts *TwoStage) selectRequest() (*core.ApiRequest, error) {
	req := *ts.req
	req.Method = "GET"
	src := req.Query

	keyFilter, err := ts.keyFilter()
	if err != nil {
		return nil, err
	}
	conds := make([]core.Condition, 0, len(src.Where.Conditions)+1)
	conds = append(conds, keyFilter)
	conds = append(conds, src.Where.Conditions...)

	req.Query = &core.Query{
		Kind:       core.QuerySelect,
		Relation:   src.Relation,
		Alias:      core.SourceAlias,
		Select:     src.Select,
		SubSelects: src.SubSelects,
		Where:      core.ConditionTree{Op: src.Where.Op, Conditions: conds},
	}
	return &req, nil
}

// keyFilter matches the recorded ids. A single key column becomes an in
// list; a composite key becomes one equality group per id, joined by or.
func (ts *TwoStage) keyFilter() (core.Condition, error) {
	if len(ts.keys) == 1 || len(ts.ids) == 0 {
		ids := ts.ids
		if ids == nil {
			ids = []string{}
		}
		return &core.Single{
			Field:  core.Field{Name: ts.keys[0]},
			Filter: core.Filter{Kind: core.FilterIn, List: ids, ListType: ts.keyTypes[0]},
		}, nil
	}

	tuples := make([]core.Condition, 0, len(ts.ids))
	for _, id := range ts.ids {
		var values []string
		if err := json.Unmarshal([]byte(id), &values); err != nil || len(values) != len(ts.keys) {
			return nil, fmt.Errorf("key %q does not hold %d values", id, len(ts.keys))
		}
		eqs := make([]core.Condition, len(ts.keys))
		for i, name := range ts.keys {
			eqs[i] = &core.Single{
				Field: core.Field{Name: name},
				Filter: core.Filter{
					Kind:     core.FilterOp,
					Operator: "=",
					Value:    core.Param{Value: values[i], Type: ts.keyTypes[i]},
				},
			}
		}
		tuples = append(tuples, &core.Group{Tree: core.ConditionTree{Op: core.LogicAnd, Conditions: eqs}})
	}
	return &core.Group{Tree: core.ConditionTree{Op: core.LogicOr, Conditions: tuples}}, nil
}
