package core

// ContentType is a negotiated request or response body format.
type ContentType int

// Supported body formats.
const (
	ContentJSON ContentType = iota
	ContentSingular
	ContentCSV
)

// MIME returns the media type sent back to clients.
func (c ContentType) MIME() string {
	switch c {
	case ContentSingular:
		return "application/vnd.pgrst.object+json"
	case ContentCSV:
		return "text/csv"
	default:
		return "application/json"
	}
}

// Representation is the Prefer: return= choice.
type Representation int

// Representation preferences.
const (
	RepresentationUnset Representation = iota
	RepresentationFull
	RepresentationMinimal
	RepresentationHeadersOnly
)

// CountMethod is the Prefer: count= choice.
type CountMethod int

// Count preferences.
const (
	CountNone CountMethod = iota
	CountExact
	CountPlanned
	CountEstimated
)

// Preferences holds the parsed Prefer header.
type Preferences struct {
	Resolution     Resolution
	Representation Representation
	Count          CountMethod
	MissingDefault bool
}

// ApiRequest is a parsed (and, after planning, resolved) REST request.
type ApiRequest struct {
	Method string
	Path   string
	Schema string
	Role   string

	Query       *Query
	Preferences Preferences
	Accept      ContentType
	ContentType ContentType

	Headers []Pair
	Env     []Pair
	Body    *string
}

// ReturnRepresentation reports whether the response carries a body of rows.
// Writes only return rows when asked to with Prefer: return=representation.
func (r *ApiRequest) ReturnRepresentation() bool {
	switch r.Method {
	case "POST", "PATCH", "PUT", "DELETE":
		return r.Preferences.Representation == RepresentationFull
	default:
		return true
	}
}

// CountExact reports whether the total row count was requested.
func (r *ApiRequest) CountExact() bool {
	return r.Preferences.Count == CountExact
}
