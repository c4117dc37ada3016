package planner

import (
	"fmt"
	"sort"
	"strings"

	"github.com/leapstack-labs/leaprest/pkg/core"
)

// candidate is one way to reach an embedded relation.
type candidate struct {
	join   core.Join
	target core.Qi
	// via names the candidate in ambiguity hints: a key or junction name.
	via string
}

func parentOf(fk *core.ForeignKey) candidate {
	return candidate{join: core.Join{Kind: core.JoinParent, FK: *fk}, target: fk.ReferencedTable, via: fk.Name}
}

func childOf(fk *core.ForeignKey) candidate {
	return candidate{join: core.Join{Kind: core.JoinChild, FK: *fk}, target: fk.Table, via: fk.Name}
}

// resolveJoin finds the relationship an embedding named name (with an
// optional hint) follows from origin. The rules are tried in order and the
// first that yields candidates decides:
//
//  1. a foreign key of origin (owned or referencing it) named name;
//  2. with a hint: a parent key named hint, a child key named hint, a
//     junction relation named hint, then single column keys over the hint column;
//  3. without a hint: child keys, parent keys other than self references,
//     and many-to-many paths through junction relations;
//  4. when name is not a relation: a single column key of origin whose
//     column is name.
//
// Exactly one candidate must remain.
func (p *planner) resolveJoin(origin core.Qi, name, hint string) (candidate, error) {
	cands := p.joinCandidates(origin, name, hint)
	switch len(cands) {
	case 1:
		return cands[0], nil
	case 0:
		return candidate{}, &core.ResolutionError{
			Kind:    core.ResolveNoRelationship,
			Message: fmt.Sprintf("Could not find a relationship between %s and %s in the schema cache", origin.Name, name),
			Hint:    "Verify that the foreign keys between the relations are part of the schema description",
		}
	default:
		options := make([]string, len(cands))
		for i, c := range cands {
			options[i] = fmt.Sprintf("'%s!%s'", name, c.via)
		}
		return candidate{}, &core.ResolutionError{
			Kind:    core.ResolveAmbiguous,
			Message: fmt.Sprintf("Could not embed because more than one relationship was found for '%s' and '%s'", origin.Name, name),
			Hint:    fmt.Sprintf("Try changing '%s' to one of the following: %s. Find the desired relationship in the 'details' key.", name, strings.Join(options, ", ")),
			Details: describe(cands),
		}
	}
}

func (p *planner) joinCandidates(origin core.Qi, name, hint string) []candidate {
	var cands []candidate
	for _, fk := range p.cat.ForeignKey(origin, name) {
		if fk.Table == origin {
			cands = append(cands, parentOf(fk))
		} else {
			cands = append(cands, childOf(fk))
		}
	}
	if len(cands) > 0 {
		return cands
	}

	target := core.Qi{Schema: origin.Schema, Name: name}
	if _, ok := p.cat.Relation(target); !ok {
		for _, fk := range p.cat.OutgoingKeys(origin) {
			if len(fk.Columns) == 1 && fk.Columns[0] == name {
				cands = append(cands, parentOf(fk))
			}
		}
		return cands
	}

	if hint != "" {
		return p.hinted(origin, target, hint)
	}

	for _, fk := range p.cat.KeysBetween(target, origin) {
		cands = append(cands, childOf(fk))
	}
	for _, fk := range p.cat.KeysBetween(origin, target) {
		if !fk.IsSelfReference() {
			cands = append(cands, parentOf(fk))
		}
	}
	return append(cands, p.junctions(origin, target, "")...)
}

func (p *planner) hinted(origin, target core.Qi, hint string) []candidate {
	var cands []candidate
	for _, fk := range p.cat.KeysBetween(origin, target) {
		if fk.Name == hint {
			cands = append(cands, parentOf(fk))
		}
	}
	if len(cands) > 0 {
		return cands
	}
	for _, fk := range p.cat.KeysBetween(target, origin) {
		if fk.Name == hint {
			cands = append(cands, childOf(fk))
		}
	}
	if len(cands) > 0 {
		return cands
	}
	if _, ok := p.cat.Relation(core.Qi{Schema: origin.Schema, Name: hint}); ok {
		return p.junctions(origin, target, hint)
	}

	onHint := func(fk *core.ForeignKey) bool {
		return len(fk.Columns) == 1 && (fk.Columns[0] == hint || fk.ReferencedColumns[0] == hint)
	}
	if origin != target {
		for _, fk := range p.cat.KeysBetween(origin, target) {
			if onHint(fk) {
				cands = append(cands, parentOf(fk))
			}
		}
	}
	for _, fk := range p.cat.KeysBetween(target, origin) {
		if onHint(fk) {
			cands = append(cands, childOf(fk))
		}
	}
	return cands
}

// junctions returns the many-to-many paths from origin to target: a
// relation other than both ends with one key referencing origin and a
// different key referencing target. A non-empty only restricts the
// junction to that relation.
func (p *planner) junctions(origin, target core.Qi, only string) []candidate {
	var cands []candidate
	for _, left := range p.cat.IncomingKeys(origin) {
		j := left.Table
		if j == origin || j == target || (only != "" && j.Name != only) {
			continue
		}
		for _, right := range p.cat.KeysBetween(j, target) {
			if right.Name == left.Name {
				continue
			}
			cands = append(cands, candidate{
				join:   core.Join{Kind: core.JoinMany, FK: *left, Junction: j, TargetFK: *right},
				target: target,
				via:    j.Name,
			})
		}
	}
	sort.SliceStable(cands, func(a, b int) bool { return cands[a].via < cands[b].via })
	return cands
}

func describe(cands []candidate) string {
	parts := make([]string, len(cands))
	for i, c := range cands {
		switch c.join.Kind {
		case core.JoinMany:
			parts[i] = fmt.Sprintf("many-to-many via %s using %s and %s", c.join.Junction, c.join.FK.Name, c.join.TargetFK.Name)
		default:
			parts[i] = fmt.Sprintf("%s using %s(%s)", c.join.Kind, c.join.FK.Name, strings.Join(c.join.FK.Columns, ", "))
		}
	}
	return strings.Join(parts, "; ")
}

// joinConditions equates the keys of a resolved embedding. parent is the
// qualifier of the embedding query's parent.
func joinConditions(j *core.Join, parent core.Qi) ([]core.Condition, []core.Qi) {
	var conds []core.Condition
	switch j.Kind {
	case core.JoinParent:
		for i, col := range j.FK.Columns {
			conds = append(conds, &core.Single{
				Field:  core.Field{Name: j.FK.ReferencedColumns[i]},
				Filter: core.Filter{Kind: core.FilterCol, Column: core.Field{Name: col}, ColumnOf: parent},
			})
		}
		return conds, nil
	case core.JoinChild:
		for i, col := range j.FK.Columns {
			conds = append(conds, &core.Single{
				Field:  core.Field{Name: col},
				Filter: core.Filter{Kind: core.FilterCol, Column: core.Field{Name: j.FK.ReferencedColumns[i]}, ColumnOf: parent},
			})
		}
		return conds, nil
	default:
		for i, col := range j.FK.Columns {
			conds = append(conds, &core.Foreign{
				Left:       parent,
				LeftField:  core.Field{Name: j.FK.ReferencedColumns[i]},
				Right:      j.Junction,
				RightField: core.Field{Name: col},
			})
		}
		for i, col := range j.TargetFK.Columns {
			conds = append(conds, &core.Single{
				Field:  core.Field{Name: j.TargetFK.ReferencedColumns[i]},
				Filter: core.Filter{Kind: core.FilterCol, Column: core.Field{Name: col}, ColumnOf: j.Junction},
			})
		}
		return conds, []core.Qi{j.Junction}
	}
}
