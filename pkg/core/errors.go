package core

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorBody is the JSON error document returned to HTTP clients.
type ErrorBody struct {
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Hint    string `json:"hint,omitempty"`
}

// StatusError is implemented by every error in the taxonomy.
type StatusError interface {
	error
	StatusCode() int
	Body() ErrorBody
}

// ---------- SchemaError ----------

// SchemaError reports a malformed or inconsistent schema description.
type SchemaError struct {
	Message string
	Err     error
}

func (e *SchemaError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("schema error: %s: %v", e.Message, e.Err)
	}
	return "schema error: " + e.Message
}

func (e *SchemaError) Unwrap() error { return e.Err }

// StatusCode implements StatusError.
func (e *SchemaError) StatusCode() int { return http.StatusInternalServerError }

// Body implements StatusError.
func (e *SchemaError) Body() ErrorBody {
	b := ErrorBody{Message: e.Message}
	if e.Err != nil {
		b.Details = e.Err.Error()
	}
	return b
}

// ---------- ParseError ----------

// ParseErrorKind classifies request parsing failures.
type ParseErrorKind int

// Parse failure kinds.
const (
	ParseInvalidQuery ParseErrorKind = iota
	ParseInvalidBody
	ParseContentType
	ParseUnsupportedVerb
	ParseInvalidFilters
	ParseLimitOffset
)

// ParseError reports malformed request input.
type ParseError struct {
	Kind    ParseErrorKind
	Message string
	Details string
}

func (e *ParseError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Details)
	}
	return e.Message
}

// StatusCode implements StatusError.
func (e *ParseError) StatusCode() int {
	switch e.Kind {
	case ParseContentType:
		return http.StatusUnsupportedMediaType
	case ParseUnsupportedVerb, ParseInvalidFilters:
		return http.StatusMethodNotAllowed
	default:
		return http.StatusBadRequest
	}
}

// Body implements StatusError.
func (e *ParseError) Body() ErrorBody {
	return ErrorBody{Message: e.Message, Details: e.Details}
}

// NewQueryError builds a ParseError for malformed query-string syntax.
func NewQueryError(message, details string) *ParseError {
	return &ParseError{Kind: ParseInvalidQuery, Message: message, Details: details}
}

// NewBodyError builds a ParseError for an unusable request body.
func NewBodyError(message string) *ParseError {
	return &ParseError{Kind: ParseInvalidBody, Message: message}
}

// ---------- ResolutionError ----------

// ResolutionErrorKind classifies planning failures.
type ResolutionErrorKind int

// Resolution failure kinds.
const (
	ResolveNotFound ResolutionErrorKind = iota
	ResolveUnknownSchema
	ResolveUnknownRelation
	ResolveUnknownColumn
	ResolveNoRelationship
	ResolveAmbiguous
	ResolvePkMismatch
)

// ResolutionError reports names that do not resolve against the catalog.
type ResolutionError struct {
	Kind    ResolutionErrorKind
	Message string
	Details string
	Hint    string
}

func (e *ResolutionError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Details)
	}
	return e.Message
}

// StatusCode implements StatusError.
func (e *ResolutionError) StatusCode() int {
	switch e.Kind {
	case ResolveNotFound:
		return http.StatusNotFound
	case ResolveUnknownSchema:
		return http.StatusNotAcceptable
	case ResolveAmbiguous:
		return http.StatusMultipleChoices
	default:
		return http.StatusBadRequest
	}
}

// Body implements StatusError.
func (e *ResolutionError) Body() ErrorBody {
	return ErrorBody{Message: e.Message, Details: e.Details, Hint: e.Hint}
}

// ---------- LicenseError ----------

// LicenseError reports a license credential that is present but invalid.
type LicenseError struct {
	Message string
	Err     error
}

func (e *LicenseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("license error: %s: %v", e.Message, e.Err)
	}
	return "license error: " + e.Message
}

func (e *LicenseError) Unwrap() error { return e.Err }

// StatusCode implements StatusError.
func (e *LicenseError) StatusCode() int { return http.StatusUnauthorized }

// Body implements StatusError.
func (e *LicenseError) Body() ErrorBody { return ErrorBody{Message: e.Error()} }

// ---------- UnsupportedFeatureError ----------

// UnsupportedFeatureError reports a capability the active dialect lacks.
type UnsupportedFeatureError struct {
	Dialect string
	Feature string
	Hint    string
}

func (e *UnsupportedFeatureError) Error() string {
	return fmt.Sprintf("%s is not supported by the %s dialect", e.Feature, e.Dialect)
}

// StatusCode implements StatusError.
func (e *UnsupportedFeatureError) StatusCode() int { return http.StatusBadRequest }

// Body implements StatusError.
func (e *UnsupportedFeatureError) Body() ErrorBody {
	return ErrorBody{Message: e.Error(), Hint: e.Hint}
}

// ---------- helpers ----------

// HTTPStatus maps any error to a status code and response body.
// Errors outside the taxonomy are internal errors.
func HTTPStatus(err error) (int, ErrorBody) {
	var se StatusError
	if errors.As(err, &se) {
		return se.StatusCode(), se.Body()
	}
	return http.StatusInternalServerError, ErrorBody{Message: err.Error()}
}
