package request

import (
	"strings"

	"github.com/leapstack-labs/leaprest/pkg/core"
)

// header returns the first value of a header, matched case-insensitively.
func header(headers []core.Pair, name string) (string, bool) {
	for _, h := range headers {
		if strings.EqualFold(h.Key, name) {
			return h.Value, true
		}
	}
	return "", false
}

// contentType negotiates an Accept or Content-Type header value. The first
// recognized media type in the comma separated list wins.
func contentType(value string) (core.ContentType, error) {
	for _, part := range strings.Split(value, ",") {
		mt, _, _ := strings.Cut(part, ";")
		switch strings.ToLower(strings.TrimSpace(mt)) {
		case "*/*", "application/json":
			return core.ContentJSON, nil
		case "application/vnd.pgrst.object", "application/vnd.pgrst.object+json":
			return core.ContentSingular, nil
		case "text/csv":
			return core.ContentCSV, nil
		}
	}
	return core.ContentJSON, &core.ParseError{
		Kind:    core.ParseContentType,
		Message: "None of these Content-Types are available: " + value,
	}
}

// preferences parses a Prefer header. Unknown tokens are ignored.
func preferences(value string) core.Preferences {
	var p core.Preferences
	for _, token := range strings.Split(value, ",") {
		k, v, _ := strings.Cut(strings.TrimSpace(token), "=")
		switch strings.TrimSpace(k) + "=" + strings.TrimSpace(v) {
		case "return=representation":
			p.Representation = core.RepresentationFull
		case "return=minimal":
			p.Representation = core.RepresentationMinimal
		case "return=headers-only":
			p.Representation = core.RepresentationHeadersOnly
		case "resolution=merge-duplicates":
			p.Resolution = core.MergeDuplicates
		case "resolution=ignore-duplicates":
			p.Resolution = core.IgnoreDuplicates
		case "count=exact":
			p.Count = core.CountExact
		case "count=planned":
			p.Count = core.CountPlanned
		case "count=estimated":
			p.Count = core.CountEstimated
		case "missing=default":
			p.MissingDefault = true
		}
	}
	return p
}
