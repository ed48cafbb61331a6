package engine

import (
	"errors"
	"fmt"
	"time"
)

// Error codes used across the orchestrator.
const (
	ErrCodeConfigMissing    = "CONFIG_MISSING"
	ErrCodeConfigEmpty      = "CONFIG_EMPTY"
	ErrCodeBackendFailure   = "BACKEND_FAILURE"
	ErrCodeAssetNotFound    = "ASSET_NOT_FOUND"
	ErrCodeInventoryFailure = "INVENTORY_QUERY_FAILURE"
	ErrCodeTimeout          = "INSTALL_TIMEOUT"
	ErrCodePolicyDenied     = "POLICY_DENIED"
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeInternal         = "INTERNAL_ERROR"
)

// Error is a classified orchestrator error.
type Error struct {
	// Code identifies the failure category for programmatic handling.
	Code string `json:"code"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Kind is the resource kind involved, if any.
	Kind ResourceKind `json:"kind,omitempty"`

	// Identifier is the package or asset identifier involved, if any.
	Identifier string `json:"identifier,omitempty"`

	// Operation is the operation being performed when the error occurred.
	Operation string `json:"operation,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	switch {
	case e.Kind != "" && e.Identifier != "":
		msg += fmt.Sprintf(" (kind=%s, identifier=%s)", e.Kind, e.Identifier)
	case e.Identifier != "":
		msg += fmt.Sprintf(" (identifier=%s)", e.Identifier)
	case e.Kind != "":
		msg += fmt.Sprintf(" (kind=%s)", e.Kind)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewError creates a new classified error.
func NewError(code, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithKind adds the resource kind to an error.
func (e *Error) WithKind(kind ResourceKind) *Error {
	e.Kind = kind
	return e
}

// WithIdentifier adds identifier context to an error.
func (e *Error) WithIdentifier(identifier string) *Error {
	e.Identifier = identifier
	return e
}

// WithOperation adds operation context to an error.
func (e *Error) WithOperation(operation string) *Error {
	e.Operation = operation
	return e
}

// WithDetail adds a detail field to the error context.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewConfigMissingError reports a configuration list that could not be found.
func NewConfigMissingError(kind ResourceKind, location string, err error) *Error {
	return NewError(ErrCodeConfigMissing, "configuration not found", err).
		WithKind(kind).
		WithDetail("location", location)
}

// NewConfigEmptyError reports a configuration list that exists but has no entries.
func NewConfigEmptyError(kind ResourceKind, location string) *Error {
	return NewError(ErrCodeConfigEmpty, "configuration has no entries", nil).
		WithKind(kind).
		WithDetail("location", location)
}

// NewBackendError reports a failed install of one identifier.
func NewBackendError(kind ResourceKind, identifier, message string, err error) *Error {
	return NewError(ErrCodeBackendFailure, message, err).
		WithKind(kind).
		WithIdentifier(identifier)
}

// NewAssetNotFoundError reports an asset missing from the local cache.
func NewAssetNotFoundError(identifier, searched string) *Error {
	return NewError(ErrCodeAssetNotFound, "asset not found in cache", nil).
		WithKind(KindAssets).
		WithIdentifier(identifier).
		WithDetail("searched", searched)
}

// NewInventoryError reports a failure to list installed resources.
func NewInventoryError(kind ResourceKind, err error) *Error {
	return NewError(ErrCodeInventoryFailure, "failed to list installed resources", err).
		WithKind(kind)
}

// NewTimeoutError reports a handle that did not complete within the install timeout.
func NewTimeoutError(kind ResourceKind, identifier string, timeout time.Duration) *Error {
	return NewError(ErrCodeTimeout, fmt.Sprintf("install did not complete within %s", timeout), nil).
		WithKind(kind).
		WithIdentifier(identifier)
}

// NewPolicyDeniedError reports an identifier rejected by the admission policy.
func NewPolicyDeniedError(kind ResourceKind, identifier string, reasons []string) *Error {
	return NewError(ErrCodePolicyDenied, "identifier denied by policy", nil).
		WithKind(kind).
		WithIdentifier(identifier).
		WithDetail("reasons", reasons)
}

// CodeOf returns the code of the first *Error in err's chain, or "" if there is none.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsConfigMissing returns true if the error reports a missing configuration.
func IsConfigMissing(err error) bool {
	return CodeOf(err) == ErrCodeConfigMissing
}

// IsConfigEmpty returns true if the error reports an empty configuration.
func IsConfigEmpty(err error) bool {
	return CodeOf(err) == ErrCodeConfigEmpty
}

// IsBackendFailure returns true if the error reports a failed install.
func IsBackendFailure(err error) bool {
	return CodeOf(err) == ErrCodeBackendFailure
}

// IsAssetNotFound returns true if the error reports a missing asset.
func IsAssetNotFound(err error) bool {
	return CodeOf(err) == ErrCodeAssetNotFound
}

// IsInventoryFailure returns true if the error reports an inventory query failure.
func IsInventoryFailure(err error) bool {
	return CodeOf(err) == ErrCodeInventoryFailure
}

// IsTimeout returns true if the error reports an install timeout.
func IsTimeout(err error) bool {
	return CodeOf(err) == ErrCodeTimeout
}

// IsPolicyDenied returns true if the error reports a policy denial.
func IsPolicyDenied(err error) bool {
	return CodeOf(err) == ErrCodePolicyDenied
}
