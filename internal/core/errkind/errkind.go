// Package errkind implements the error-kind taxonomy every component in
// the generation pipeline classifies its failures into. It replaces the
// teacher's open sentinel-per-case list (internal/core/entity/errors.go)
// with a closed enum plus a single structured error type, because the
// taxonomy here is fixed and each kind carries a retryable flag and an
// HTTP status that a sentinel var cannot express on its own.
package errkind

import (
	"errors"
	"fmt"
)

// Kind is one of the stable, enumerated error categories.
type Kind string

const (
	AuthInvalid                 Kind = "authInvalid"
	AuthExpired                 Kind = "authExpired"
	AuthForbidden                Kind = "authForbidden"
	ValidationError              Kind = "validationError"
	TemplateNotFound              Kind = "templateNotFound"
	TemplateInvalid               Kind = "templateInvalid"
	TemplateExpression            Kind = "templateExpression"
	CompositeDuplicateNamespace   Kind = "compositeDuplicateNamespace"
	CompositeInactive             Kind = "compositeInactive"
	UnsupportedObject             Kind = "unsupportedObject"
	ConversionTimeout             Kind = "conversionTimeout"
	ConversionFailed              Kind = "conversionFailed"
	UploadFailed                  Kind = "uploadFailed"
	LinkFailed                    Kind = "linkFailed"
	RecordStoreConflict           Kind = "recordStoreConflict"
	RecordStoreUnavailable        Kind = "recordStoreUnavailable"
	NoSections                    Kind = "noSections"
	Internal                      Kind = "internal"
)

// retryable records the fixed retryability of each kind per §7's table.
var retryable = map[Kind]bool{
	AuthInvalid:                 false,
	AuthExpired:                 false,
	AuthForbidden:               false,
	ValidationError:             false,
	TemplateNotFound:            false,
	TemplateInvalid:             false,
	TemplateExpression:          false,
	CompositeDuplicateNamespace: false,
	CompositeInactive:           false,
	UnsupportedObject:           false,
	ConversionTimeout:           true,
	ConversionFailed:            true,
	UploadFailed:                true,
	LinkFailed:                  false,
	RecordStoreConflict:         false, // skipped, not retried via backoff
	RecordStoreUnavailable:      true,
	NoSections:                  false,
	Internal:                    false,
}

// httpStatus maps a Kind to the status code an interactive request
// surfaces it as.
var httpStatus = map[Kind]int{
	AuthInvalid:                 401,
	AuthExpired:                 401,
	AuthForbidden:               403,
	ValidationError:             400,
	TemplateNotFound:            404,
	TemplateInvalid:             422,
	TemplateExpression:          422,
	CompositeDuplicateNamespace: 400,
	CompositeInactive:           400,
	UnsupportedObject:           400,
	ConversionTimeout:           504,
	ConversionFailed:            502,
	UploadFailed:                502,
	LinkFailed:                  200, // non-fatal, reported in linkErrors
	RecordStoreConflict:         409,
	RecordStoreUnavailable:      503,
	NoSections:                  400,
	Internal:                    500,
}

// Retryable reports whether k is retried by the batch worker's backoff
// table.
func (k Kind) Retryable() bool { return retryable[k] }

// HTTPStatus returns the status code an interactive caller sees for k.
func (k Kind) HTTPStatus() int {
	if s, ok := httpStatus[k]; ok {
		return s
	}
	return 500
}

// Error is the structured error every component returns. The full cause
// chain is logged but Error() never includes data-tree values, per §4.4's
// "must not leak data-tree values into error messages."
type Error struct {
	Kind          Kind
	Message       string
	CorrelationID string
	Cause         error
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Retryable reports whether this error's kind is retryable.
func (e *Error) Retryable() bool { return e.Kind.Retryable() }

// WithCorrelationID returns a copy of e carrying the given correlation ID.
func (e *Error) WithCorrelationID(id string) *Error {
	cp := *e
	cp.CorrelationID = id
	return &cp
}

// As is a convenience wrapper around errors.As for the common case of
// extracting a *Error from an arbitrary error chain.
func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}
