package dialect

import "sort"

// operators maps request filter operators to SQL comparison operators.
var operators = map[string]string{
	"eq":    "=",
	"gt":    ">",
	"gte":   ">=",
	"lt":    "<",
	"lte":   "<=",
	"neq":   "<>",
	"like":  "like",
	"ilike": "ilike",
	"cs":    "@>",
	"cd":    "<@",
	"ov":    "&&",
	"sl":    "<<",
	"sr":    ">>",
	"nxr":   "&<",
	"nxl":   "&>",
	"adj":   "-|-",
}

// ftsOperators maps request full text operators to the search function
// applied to the value.
var ftsOperators = map[string]string{
	"fts":   "@@ to_tsquery",
	"plfts": "@@ plainto_tsquery",
	"phfts": "@@ phraseto_tsquery",
	"wfts":  "@@ websearch_to_tsquery",
}

// rangeOperators are the SQL operators that need range or array types.
var rangeOperators = map[string]struct{}{
	"@>":  {},
	"<@":  {},
	"&&":  {},
	"<<":  {},
	">>":  {},
	"&<":  {},
	"&>":  {},
	"-|-": {},
}

// LookupOperator returns the SQL operator for a request operator.
func LookupOperator(name string) (string, bool) {
	op, ok := operators[name]
	return op, ok
}

// LookupFullText returns the SQL search operator for a full text request operator.
func LookupFullText(name string) (string, bool) {
	op, ok := ftsOperators[name]
	return op, ok
}

// IsRangeOperator reports whether op needs range or array support.
func IsRangeOperator(op string) bool {
	_, ok := rangeOperators[op]
	return ok
}

// OperatorNames returns every request operator name, sorted.
func OperatorNames() []string {
	names := make([]string, 0, len(operators)+len(ftsOperators)+2)
	for n := range operators {
		names = append(names, n)
	}
	for n := range ftsOperators {
		names = append(names, n)
	}
	names = append(names, "in", "is")
	sort.Strings(names)
	return names
}
