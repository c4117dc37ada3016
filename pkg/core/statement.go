package core

// Parameter type names used when no column type applies.
const (
	// TextType marks request context values and raw payload text.
	TextType = "text"
	// UnknownType marks opaque values such as encoded id lists.
	UnknownType = "unknown"
	// IntegerType marks pagination values.
	IntegerType = "integer"
)

// Pair is an ordered key/value pair (header or environment entry).
type Pair struct {
	Key   string
	Value string
}

// Param is a bound statement parameter. Values always travel as text;
// Type names the SQL type the database should read them as.
type Param struct {
	Value string
	Type  string
}

// Statement is compiled SQL with its aligned parameter list.
type Statement struct {
	SQL    string
	Params []Param
}

// ParamsCount returns the number of bound parameters.
func (s *Statement) ParamsCount() int {
	return len(s.Params)
}

// ParamValues returns the parameter values in bind order.
func (s *Statement) ParamValues() []string {
	values := make([]string, len(s.Params))
	for i, p := range s.Params {
		values[i] = p.Value
	}
	return values
}

// ParamTypes returns the parameter type names in bind order.
func (s *Statement) ParamTypes() []string {
	types := make([]string, len(s.Params))
	for i, p := range s.Params {
		types[i] = p.Type
	}
	return types
}

// Args returns the parameter values as driver arguments.
func (s *Statement) Args() []any {
	args := make([]any, len(s.Params))
	for i, p := range s.Params {
		args[i] = p.Value
	}
	return args
}
