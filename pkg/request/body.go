package request

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"sort"
	"strings"

	"github.com/leapstack-labs/leaprest/pkg/core"
)

// payload returns the columns a write touches and the JSON document to bind.
// columns, when set from the columns parameter, takes precedence over the
// keys found in the body.
func payload(ct core.ContentType, body string, columns []string) ([]string, string, error) {
	if ct == core.ContentCSV {
		return csvPayload(body, columns)
	}
	if columns != nil {
		return columns, body, nil
	}
	keys, err := jsonKeys(body)
	if err != nil {
		return nil, "", err
	}
	return keys, body, nil
}

// jsonKeys returns the sorted keys of a JSON object, or of the first row of
// an array of objects. Every row of an array must have the same keys.
func jsonKeys(body string) ([]string, error) {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return nil, core.NewBodyError("Failed to parse json body")
	}
	switch trimmed[0] {
	case '{':
		var row map[string]json.RawMessage
		if err := json.Unmarshal([]byte(trimmed), &row); err != nil {
			return nil, core.NewBodyError("Failed to parse json body")
		}
		return sortedKeys(row), nil
	case '[':
		var rows []map[string]json.RawMessage
		if err := json.Unmarshal([]byte(trimmed), &rows); err != nil {
			return nil, core.NewBodyError("Failed to parse json body")
		}
		if len(rows) == 0 {
			return []string{}, nil
		}
		keys := sortedKeys(rows[0])
		for _, row := range rows[1:] {
			if !sameKeys(keys, row) {
				return nil, core.NewBodyError("All object keys must match")
			}
		}
		return keys, nil
	default:
		return nil, core.NewBodyError("Failed to parse json body")
	}
}

func sortedKeys(row map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sameKeys(keys []string, row map[string]json.RawMessage) bool {
	if len(keys) != len(row) {
		return false
	}
	for _, k := range keys {
		if _, ok := row[k]; !ok {
			return false
		}
	}
	return true
}

// csvPayload converts a CSV body into a JSON array of objects with string
// values; the literal NULL becomes null. The first record is a header and is
// always skipped. Columns come from the columns parameter when given,
// otherwise from the header.
func csvPayload(body string, columns []string) ([]string, string, error) {
	r := csv.NewReader(strings.NewReader(body))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, "", core.NewBodyError("Failed to parse csv body")
	}
	if columns == nil {
		columns = make([]string, len(header))
		for i, h := range header {
			columns[i] = strings.Trim(strings.TrimSpace(h), `"`)
		}
	}

	rows := []map[string]any{}
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, "", &core.ParseError{Kind: core.ParseInvalidBody, Message: "Failed to deserialize csv", Details: err.Error()}
		}
		if len(rec) > len(columns) {
			return nil, "", core.NewBodyError("csv row has more fields than columns")
		}
		row := make(map[string]any, len(rec))
		for i, v := range rec {
			if v == "NULL" {
				row[columns[i]] = nil
			} else {
				row[columns[i]] = v
			}
		}
		rows = append(rows, row)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(rows); err != nil {
		return nil, "", core.NewBodyError("Failed to encode csv body")
	}
	return columns, strings.TrimSuffix(buf.String(), "\n"), nil
}
