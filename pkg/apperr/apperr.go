// Package apperr defines PromptHub's error taxonomy: the typed errors the
// core raises, and the (kind, numeric code, HTTP status) triple the API
// boundary maps them to. It plays the role tarsy's pkg/services/errors.go
// and pkg/api/errors.go play together, collapsed into one package because
// PromptHub's taxonomy is closed and spec-defined rather than open-ended.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies one of the error categories the HTTP boundary maps to a
// numeric code and status.
type Kind string

const (
	KindAuthRequired     Kind = "AUTH_REQUIRED"
	KindPermissionDenied Kind = "PERMISSION_DENIED"
	KindNotFound         Kind = "NOT_FOUND"
	KindConflict         Kind = "CONFLICT"
	KindCycleDetected    Kind = "CYCLE_DETECTED"
	KindValidation       Kind = "VALIDATION"
	KindTemplateRender   Kind = "TEMPLATE_RENDER"
	KindLLMUnavailable   Kind = "LLM_UNAVAILABLE"
)

var codes = map[Kind]int{
	KindAuthRequired:     40100,
	KindPermissionDenied: 40300,
	KindNotFound:         40400,
	KindConflict:         40900,
	KindCycleDetected:    40901,
	KindValidation:       42200,
	KindTemplateRender:   42201,
	KindLLMUnavailable:   50200,
}

var statuses = map[Kind]int{
	KindAuthRequired:     http.StatusUnauthorized,
	KindPermissionDenied: http.StatusForbidden,
	KindNotFound:         http.StatusNotFound,
	KindConflict:         http.StatusConflict,
	KindCycleDetected:    http.StatusConflict,
	KindValidation:       http.StatusUnprocessableEntity,
	KindTemplateRender:   http.StatusUnprocessableEntity,
	KindLLMUnavailable:   http.StatusBadGateway,
}

// Sub-codes used for VALIDATION and TEMPLATE_RENDER details (§4.2, §4.4).
const (
	ReasonVariablesMissing = "VARIABLES_MISSING"
	ReasonVariableInvalid  = "VARIABLE_INVALID"
	ReasonTemplateSyntax   = "TEMPLATE_SYNTAX"
	ReasonTemplateUndefined = "TEMPLATE_UNDEFINED"
	ReasonTemplateUnsafe   = "TEMPLATE_UNSAFE"
	ReasonVersionNotFound  = "VERSION_NOT_FOUND"
)

// Error is the typed error every core component raises. The HTTP boundary
// (pkg/api) maps it to the envelope's numeric code and the aligned HTTP
// status; nothing outside this package needs to know the numbers.
type Error struct {
	Kind    Kind
	Reason  string // optional sub-code, e.g. ReasonVariablesMissing
	Message string
	Detail  string
	IDs     []string // diagnostic entity ids, e.g. missing prompt ids
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Code returns the numeric envelope code for e.Kind.
func (e *Error) Code() int { return codes[e.Kind] }

// Status returns the HTTP status for e.Kind.
func (e *Error) Status() int { return statuses[e.Kind] }

func newErr(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// NotFound builds a NOT_FOUND error naming the missing entity kind and id.
func NotFound(entity, id string) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s not found", entity), Detail: id}
}

// Conflict builds a CONFLICT error, e.g. a slug uniqueness violation.
func Conflict(message string) *Error {
	return newErr(KindConflict, message)
}

// CycleDetected builds a CYCLE_DETECTED error carrying the unordered node
// set left over by Kahn's algorithm as diagnostic.
func CycleDetected(nodes []string) *Error {
	return &Error{Kind: KindCycleDetected, Message: "cycle detected", IDs: nodes}
}

// Validation builds a VALIDATION error with an optional sub-reason.
func Validation(reason, detail string) *Error {
	return &Error{Kind: KindValidation, Reason: reason, Message: "validation failed", Detail: detail}
}

// TemplateRender builds a TEMPLATE_RENDER error with its sub-reason
// (TEMPLATE_SYNTAX / TEMPLATE_UNDEFINED / TEMPLATE_UNSAFE).
func TemplateRender(reason, detail string) *Error {
	return &Error{Kind: KindTemplateRender, Reason: reason, Message: "template render failed", Detail: detail}
}

// PermissionDenied builds a PERMISSION_DENIED error.
func PermissionDenied(detail string) *Error {
	return &Error{Kind: KindPermissionDenied, Message: "permission denied", Detail: detail}
}

// AuthRequired builds an AUTH_REQUIRED error.
func AuthRequired(detail string) *Error {
	return &Error{Kind: KindAuthRequired, Message: "authentication required", Detail: detail}
}

// LLMUnavailable builds an LLM_UNAVAILABLE error for an outbound call
// failure or timeout.
func LLMUnavailable(detail string) *Error {
	return &Error{Kind: KindLLMUnavailable, Message: "LLM backend unavailable", Detail: detail}
}

// As extracts *Error from err, mirroring the errors.As pattern tarsy's
// pkg/api/errors.go uses for *services.ValidationError.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
