package core

import "strconv"

// MaxDepth bounds embedding and logic-tree nesting.
const MaxDepth = 10

// SourceAlias names the rows touched by a write, both as the mutation CTE
// and as the qualifier of the select that reads them back.
const SourceAlias = "subzero_source"

// ---------- Fields ----------

// JSONOperation is one step of a JSON path: -> or ->> followed by a key or index.
type JSONOperation struct {
	Text    bool   // ->> when true, -> otherwise
	Operand string // object key, or array index when Index is set
	Index   bool
}

// Field is a column reference with an optional JSON path.
type Field struct {
	Name     string
	JSONPath []JSONOperation
}

// SelectName returns the output name of the field: the last JSON key when a
// path is present, otherwise the column name.
func (f Field) SelectName() string {
	for i := len(f.JSONPath) - 1; i >= 0; i-- {
		if !f.JSONPath[i].Index {
			return f.JSONPath[i].Operand
		}
	}
	return f.Name
}

// ---------- Select list ----------

// SelectItem is one entry of a select list.
type SelectItem struct {
	Star  bool
	Field Field
	Alias string
	Cast  string
}

// OutputName returns the name this item takes in the response.
func (s SelectItem) OutputName() string {
	if s.Alias != "" {
		return s.Alias
	}
	return s.Field.SelectName()
}

// NeedsAlias reports whether the rendered column must carry an explicit name.
func (s SelectItem) NeedsAlias() bool {
	return s.Alias != "" || s.Cast != "" || len(s.Field.JSONPath) > 0
}

// JoinKind describes the cardinality of an embedding.
type JoinKind int

const (
	// JoinParent embeds the referenced row of a local foreign key (to-one).
	JoinParent JoinKind = iota
	// JoinChild embeds rows whose foreign key references this relation (to-many).
	JoinChild
	// JoinMany embeds rows reached through a junction relation (to-many).
	JoinMany
)

// String returns the string representation of JoinKind.
func (k JoinKind) String() string {
	switch k {
	case JoinParent:
		return "parent"
	case JoinChild:
		return "child"
	case JoinMany:
		return "many"
	default:
		return "unknown"
	}
}

// ToOne reports whether the embedding renders as a single JSON object.
func (k JoinKind) ToOne() bool { return k == JoinParent }

// Join is a resolved embedding path.
type Join struct {
	Kind JoinKind
	// FK is the parent or child key; for JoinMany it links the junction to the origin.
	FK ForeignKey
	// Junction and TargetFK are set for JoinMany only.
	Junction Qi
	TargetFK ForeignKey
}

// SubSelect is an embedded relation in a select list.
type SubSelect struct {
	Query *Query
	Alias string
	Hint  string
	Join  *Join
}

// OutputName returns the response key for the embedding.
func (s *SubSelect) OutputName() string {
	if s.Alias != "" {
		return s.Alias
	}
	return s.Query.Relation.Name
}

// ---------- Conditions ----------

// LogicOp joins the conditions of a tree.
type LogicOp int

// Logic operators.
const (
	LogicAnd LogicOp = iota
	LogicOr
)

// String returns the SQL keyword.
func (o LogicOp) String() string {
	if o == LogicOr {
		return "or"
	}
	return "and"
}

// ConditionTree is a list of conditions joined by one operator.
type ConditionTree struct {
	Op         LogicOp
	Conditions []Condition
}

// Empty reports whether the tree holds no conditions.
func (t *ConditionTree) Empty() bool {
	return t == nil || len(t.Conditions) == 0
}

// Condition is a node in a condition tree.
type Condition interface {
	conditionNode()
}

// Single compares a field with a filter.
type Single struct {
	Field  Field
	Filter Filter
	Negate bool
}

func (*Single) conditionNode() {}

// Group is a nested condition tree.
type Group struct {
	Tree   ConditionTree
	Negate bool
}

func (*Group) conditionNode() {}

// Foreign equates columns of two relations; the planner emits these for joins.
type Foreign struct {
	Left       Qi
	LeftField  Field
	Right      Qi
	RightField Field
}

func (*Foreign) conditionNode() {}

// FilterKind distinguishes filter shapes.
type FilterKind int

// Filter kinds.
const (
	FilterOp FilterKind = iota
	FilterIn
	FilterIs
	FilterFts
	FilterCol
)

// IsValue is the right-hand side of an "is" filter.
type IsValue string

// Accepted "is" values.
const (
	IsNull    IsValue = "null"
	IsTrue    IsValue = "true"
	IsFalse   IsValue = "false"
	IsUnknown IsValue = "unknown"
)

// Filter is the operator and value side of a Single condition.
type Filter struct {
	Kind FilterKind
	// Operator is the SQL operator for FilterOp and the search function for FilterFts.
	Operator string
	// Value holds the literal for FilterOp and FilterFts.
	Value Param
	// List holds the literals for FilterIn.
	List []string
	// ListType is the column type of the FilterIn values.
	ListType string
	// Is holds the literal for FilterIs.
	Is IsValue
	// Language is the optional text search configuration for FilterFts.
	Language *Param
	// Column is the compared field for FilterCol, qualified by ColumnOf.
	Column   Field
	ColumnOf Qi
}

// ---------- Ordering and grouping ----------

// OrderDirection is an optional sort direction.
type OrderDirection int

// Sort directions.
const (
	OrderDefault OrderDirection = iota
	OrderAsc
	OrderDesc
)

// NullsOrder is an optional null placement.
type NullsOrder int

// Null placements.
const (
	NullsDefault NullsOrder = iota
	NullsFirst
	NullsLast
)

// OrderTerm is one term of an order clause.
type OrderTerm struct {
	Field     Field
	Direction OrderDirection
	Nulls     NullsOrder
}

// ---------- Query ----------

// QueryKind is the statement a query node compiles to.
type QueryKind int

// Query kinds.
const (
	QuerySelect QueryKind = iota
	QueryInsert
	QueryUpdate
	QueryDelete
)

// String returns the string representation of QueryKind.
func (k QueryKind) String() string {
	switch k {
	case QuerySelect:
		return "select"
	case QueryInsert:
		return "insert"
	case QueryUpdate:
		return "update"
	case QueryDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// IsMutation reports whether the query writes.
func (k QueryKind) IsMutation() bool { return k != QuerySelect }

// Resolution selects upsert behavior.
type Resolution int

// Upsert resolutions.
const (
	ResolutionNone Resolution = iota
	MergeDuplicates
	IgnoreDuplicates
)

// OnConflict describes an upsert target.
type OnConflict struct {
	Resolution Resolution
	Columns    []string
}

// Query is a node of the request tree. The root node may write; embedded
// nodes always read.
type Query struct {
	Kind     QueryKind
	Relation Qi
	// Alias replaces the relation name as qualifier when set.
	Alias string

	Select     []SelectItem
	SubSelects []*SubSelect
	// JoinTables are junction relations added to the FROM list.
	JoinTables []Qi
	Where      ConditionTree
	Order      []OrderTerm
	GroupBy    []Field
	Limit      *Param
	Offset     *Param

	// Write-only fields.
	Columns    []string
	Payload    *Param
	OnConflict *OnConflict
	Returning  []string
}

// Qualifier returns the identifier that prefixes this node's columns.
func (q *Query) Qualifier() Qi {
	if q.Alias != "" {
		return Qi{Name: q.Alias}
	}
	return q.Relation
}

// Walk visits q and every embedded query depth first.
func (q *Query) Walk(fn func(*Query) error) error {
	if err := fn(q); err != nil {
		return err
	}
	for _, s := range q.SubSelects {
		if err := s.Query.Walk(fn); err != nil {
			return err
		}
	}
	return nil
}

// CapRows caps the limit of every read node at n, setting it where the
// request gave none. Write nodes are left alone.
func (q *Query) CapRows(n int) {
	// the visitor never fails
	_ = q.Walk(func(node *Query) error {
		if node.Kind.IsMutation() {
			return nil
		}
		if node.Limit == nil {
			node.Limit = &Param{Value: strconv.Itoa(n), Type: IntegerType}
			return nil
		}
		if v, err := strconv.Atoi(node.Limit.Value); err != nil || v > n {
			node.Limit = &Param{Value: strconv.Itoa(n), Type: node.Limit.Type}
		}
		return nil
	})
}
