// Package request parses REST requests into the query tree the planner
// resolves against a catalog.
//
// Parse is a pure function of its Input and the catalog: it performs no I/O
// and keeps no state between calls.
package request

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/leapstack-labs/leaprest/pkg/catalog"
	"github.com/leapstack-labs/leaprest/pkg/core"
)

// Input is a raw request as received from a gateway.
type Input struct {
	Method string
	// URI is the request path with its query string, e.g. /rest/projects?select=id.
	URI string
	// Root is the path prefix stripped before the relation name, e.g. /rest/.
	Root string
	// Schema overrides schema selection through profile headers.
	Schema  string
	Role    string
	Headers []core.Pair
	Env     []core.Pair
	Body    *string
	// MaxRows caps the limit of every read node when set.
	MaxRows *int
}

var methods = map[string]core.QueryKind{
	"GET":    core.QuerySelect,
	"HEAD":   core.QuerySelect,
	"POST":   core.QueryInsert,
	"PATCH":  core.QueryUpdate,
	"PUT":    core.QueryInsert,
	"DELETE": core.QueryDelete,
}

// Parse turns in into a request tree rooted at the relation named by the
// URI. Names inside the tree are checked later by the planner; Parse only
// checks the schema and the root relation.
func Parse(cat *catalog.Catalog, in Input) (*core.ApiRequest, error) {
	method := strings.ToUpper(in.Method)
	kind, ok := methods[method]
	if !ok {
		return nil, &core.ParseError{Kind: core.ParseUnsupportedVerb, Message: "Unsupported HTTP verb", Details: in.Method}
	}

	rawPath, rawQuery, _ := strings.Cut(stripOrigin(in.URI), "?")
	name, err := relationName(rawPath, in.Root)
	if err != nil {
		return nil, err
	}
	schema, err := selectSchema(cat, method, in)
	if err != nil {
		return nil, err
	}
	qi := core.Qi{Schema: schema, Name: name}
	if _, ok := cat.Relation(qi); !ok {
		return nil, &core.ResolutionError{Kind: core.ResolveNotFound, Message: "Not Found", Details: fmt.Sprintf("relation %q does not exist in schema %q", name, schema)}
	}

	req := &core.ApiRequest{
		Method:      method,
		Path:        rawPath,
		Schema:      schema,
		Role:        in.Role,
		Accept:      core.ContentJSON,
		ContentType: core.ContentJSON,
		Headers:     in.Headers,
		Env:         in.Env,
		Body:        in.Body,
	}
	if v, ok := header(in.Headers, "accept"); ok {
		if req.Accept, err = contentType(v); err != nil {
			return nil, err
		}
	}
	if v, ok := header(in.Headers, "content-type"); ok {
		if req.ContentType, err = contentType(v); err != nil {
			return nil, err
		}
	}
	if v, ok := header(in.Headers, "prefer"); ok {
		req.Preferences = preferences(v)
	}

	params, err := splitQuery(rawQuery)
	if err != nil {
		return nil, err
	}

	root := &core.Query{Kind: kind, Relation: qi, Select: []core.SelectItem{{Star: true}}}
	req.Query = root

	var columns, onConflict []string
	for _, p := range params {
		switch p.Key {
		case "select":
			if root.Select, root.SubSelects, err = parseSelect(schema, p.Value); err != nil {
				return nil, err
			}
		case "columns":
			if columns, err = parseNames("columns parameter", p.Value); err != nil {
				return nil, err
			}
		case "on_conflict":
			if onConflict, err = parseNames("on_conflict parameter", p.Value); err != nil {
				return nil, err
			}
		}
	}

	for _, p := range params {
		switch p.Key {
		case "select", "columns", "on_conflict":
			continue
		}
		if err := applyParam(root, p); err != nil {
			return nil, err
		}
	}

	if kind.IsMutation() {
		if err := mutation(cat, req, method, columns, onConflict); err != nil {
			return nil, err
		}
	}
	if in.MaxRows != nil {
		root.CapRows(*in.MaxRows)
	}
	return req, nil
}

// stripOrigin drops the scheme and host of an absolute URI.
func stripOrigin(uri string) string {
	i := strings.Index(uri, "://")
	if i < 0 || strings.ContainsAny(uri[:i], "/?") {
		return uri
	}
	rest := uri[i+3:]
	if j := strings.IndexAny(rest, "/?"); j >= 0 {
		return rest[j:]
	}
	return "/"
}

// relationName strips root from path and returns the single remaining segment.
func relationName(path, root string) (string, error) {
	p := strings.Trim(path, "/")
	if r := strings.Trim(root, "/"); r != "" {
		if p != r && !strings.HasPrefix(p, r+"/") {
			return "", &core.ResolutionError{Kind: core.ResolveNotFound, Message: "Not Found", Details: path}
		}
		p = strings.Trim(strings.TrimPrefix(p, r), "/")
	}
	if p == "" || strings.Contains(p, "/") {
		return "", &core.ResolutionError{Kind: core.ResolveNotFound, Message: "Not Found", Details: path}
	}
	name, err := url.PathUnescape(p)
	if err != nil {
		return "", &core.ResolutionError{Kind: core.ResolveNotFound, Message: "Not Found", Details: path}
	}
	return name, nil
}

// selectSchema picks the schema from the input, the profile headers or,
// failing both, the first schema of the catalog.
func selectSchema(cat *catalog.Catalog, method string, in Input) (string, error) {
	name := in.Schema
	if name == "" {
		profile := "content-profile"
		if method == "GET" || method == "HEAD" {
			profile = "accept-profile"
		}
		name, _ = header(in.Headers, profile)
	}
	if name == "" {
		schemas := cat.Schemas()
		if len(schemas) == 0 {
			return "", &core.ResolutionError{Kind: core.ResolveUnknownSchema, Message: "The catalog has no schemas"}
		}
		return schemas[0].Name, nil
	}
	if _, ok := cat.Schema(name); !ok {
		available := make([]string, 0, len(cat.Schemas()))
		for _, s := range cat.Schemas() {
			available = append(available, s.Name)
		}
		return "", &core.ResolutionError{
			Kind:    core.ResolveUnknownSchema,
			Message: "The schema must be one of the following: " + strings.Join(available, ", "),
			Details: name,
		}
	}
	return name, nil
}

// splitQuery decodes a raw query string keeping the order of its pairs.
func splitQuery(raw string) ([]core.Pair, error) {
	var pairs []core.Pair
	for _, part := range strings.Split(raw, "&") {
		if part == "" {
			continue
		}
		k, v, _ := strings.Cut(part, "=")
		key, err := url.QueryUnescape(k)
		if err != nil {
			return nil, core.NewQueryError("failed to decode query string", err.Error())
		}
		value, err := url.QueryUnescape(v)
		if err != nil {
			return nil, core.NewQueryError("failed to decode query string", err.Error())
		}
		pairs = append(pairs, core.Pair{Key: key, Value: value})
	}
	return pairs, nil
}

// applyParam adds a filter, logic tree, order, limit, offset or group by to
// the query node its key targets.
func applyParam(root *core.Query, p core.Pair) error {
	k, err := parseKey(p.Key)
	if err != nil {
		return err
	}
	q, err := target(root, k.path)
	if err != nil {
		return err
	}
	if len(k.path) == 0 && root.Kind.IsMutation() {
		switch k.kind {
		case keyLimit, keyOffset, keyOrder:
			return &core.ParseError{Kind: core.ParseLimitOffset, Message: "limit, offset and order are not allowed on writes", Details: p.Key}
		}
	}

	switch k.kind {
	case keyFilter:
		f, negate, err := parseFilter(p.Value)
		if err != nil {
			return err
		}
		q.Where.Conditions = append(q.Where.Conditions, &core.Single{Field: k.field, Filter: f, Negate: negate})
	case keyLogic:
		g, err := parseLogicTree(k.logic, k.negate, p.Value)
		if err != nil {
			return err
		}
		q.Where.Conditions = append(q.Where.Conditions, g)
	case keyOrder:
		if q.Order, err = parseOrder(p.Value); err != nil {
			return err
		}
	case keyLimit:
		if q.Limit, err = parseCount("limit parameter", p.Value); err != nil {
			return err
		}
	case keyOffset:
		if q.Offset, err = parseCount("offset parameter", p.Value); err != nil {
			return err
		}
	case keyGroupBy:
		if q.GroupBy, err = parseGroupBy(p.Value); err != nil {
			return err
		}
	}
	return nil
}

// target follows path through the embeddings of root, matching each step by
// alias or relation name.
func target(root *core.Query, path []string) (*core.Query, error) {
	q := root
	for _, step := range path {
		var next *core.Query
		for _, s := range q.SubSelects {
			if s.Alias == step || s.Query.Relation.Name == step {
				next = s.Query
				break
			}
		}
		if next == nil {
			return nil, &core.ResolutionError{
				Kind:    core.ResolveUnknownRelation,
				Message: fmt.Sprintf("could not find %q in the select parameter", strings.Join(path, ".")),
				Hint:    "filters on embedded relations need the relation in the select parameter",
			}
		}
		q = next
	}
	return q, nil
}

// mutation fills the write fields of the root query.
func mutation(cat *catalog.Catalog, req *core.ApiRequest, method string, columns, onConflict []string) error {
	q := req.Query
	if method != "DELETE" {
		if req.Body == nil {
			return core.NewBodyError("request body is required")
		}
		cols, body, err := payload(req.ContentType, *req.Body, columns)
		if err != nil {
			return err
		}
		q.Columns = cols
		q.Payload = &core.Param{Value: body, Type: core.TextType}
	}

	pk := cat.PrimaryKey(q.Relation)
	switch method {
	case "PUT":
		values, ok := pkFilters(q.Where, pk)
		if !ok {
			return &core.ParseError{
				Kind:    core.ParseInvalidFilters,
				Message: "Filters must include all and only primary key columns with 'eq' operators",
			}
		}
		if err := checkPayloadKeys(q.Payload.Value, values); err != nil {
			return err
		}
		q.OnConflict = &core.OnConflict{Resolution: core.MergeDuplicates, Columns: pk}
	case "POST":
		if req.Preferences.Resolution != core.ResolutionNone {
			cols := onConflict
			if cols == nil {
				cols = pk
			}
			q.OnConflict = &core.OnConflict{Resolution: req.Preferences.Resolution, Columns: cols}
		}
	}
	return nil
}

// pkFilters reports whether the tree is exactly one eq filter per primary
// key column, and returns the filter values by column.
func pkFilters(tree core.ConditionTree, pk []string) (map[string]string, bool) {
	if len(pk) == 0 || len(tree.Conditions) != len(pk) {
		return nil, false
	}
	values := make(map[string]string, len(pk))
	for _, c := range tree.Conditions {
		s, ok := c.(*core.Single)
		if !ok || s.Negate || len(s.Field.JSONPath) > 0 || s.Filter.Kind != core.FilterOp || s.Filter.Operator != "=" {
			return nil, false
		}
		values[s.Field.Name] = s.Filter.Value.Value
	}
	for _, col := range pk {
		if _, ok := values[col]; !ok {
			return nil, false
		}
	}
	return values, true
}

// checkPayloadKeys requires every payload row to carry the primary key
// values named in the URL.
func checkPayloadKeys(body string, values map[string]string) error {
	var rows []map[string]json.RawMessage
	trimmed := strings.TrimSpace(body)
	if strings.HasPrefix(trimmed, "{") {
		var row map[string]json.RawMessage
		if err := json.Unmarshal([]byte(trimmed), &row); err != nil {
			return core.NewBodyError("Failed to parse json body")
		}
		rows = append(rows, row)
	} else if err := json.Unmarshal([]byte(trimmed), &rows); err != nil {
		return core.NewBodyError("Failed to parse json body")
	}

	mismatch := &core.ResolutionError{Kind: core.ResolvePkMismatch, Message: "Payload values do not match URL in primary key column(s)"}
	for _, row := range rows {
		for col, want := range values {
			raw, ok := row[col]
			if !ok {
				return mismatch
			}
			if jsonScalar(raw) != want {
				return mismatch
			}
		}
	}
	return nil
}

// jsonScalar renders a JSON scalar the way it would appear in a URL.
func jsonScalar(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}
