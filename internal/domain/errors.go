package domain

import (
	"context"
	"errors"
)

// Sentinel errors for the error kinds every API response can carry. Callers
// classify with errors.Is and surface the compact kind via ErrorKind.
var (
	// ErrNotFound indicates a referenced employee, rule, template, service or
	// threshold does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates an input out of range (inverted date range,
	// negative hours, malformed identifiers).
	ErrValidation = errors.New("validation failed")

	// ErrConflict indicates a write against a locked block or an alert whose
	// coalescing key is sealed for the cooldown window.
	ErrConflict = errors.New("conflict")

	// ErrTimeout indicates a batch or interval exceeded its time budget.
	ErrTimeout = errors.New("operation timed out")

	// ErrCancelled indicates the caller stopped the operation.
	ErrCancelled = errors.New("operation cancelled")

	// ErrCapacity indicates a bounded resource is exhausted (alert queue full,
	// monitoring rejected for an unsupported service).
	ErrCapacity = errors.New("capacity exhausted")

	// ErrUpstream indicates a gateway call failed (connectivity or storage).
	ErrUpstream = errors.New("upstream failure")
)

// ErrorKind maps an error chain onto its compact API kind. Context errors
// count as timeouts and cancellations even when unwrapped.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, ErrCapacity):
		return "capacity"
	case errors.Is(err, ErrUpstream):
		return "upstream"
	default:
		return "internal"
	}
}

// ResultEnvelope is the partial-success shape for batch operations. Partial
// successes are always represented explicitly, never silently dropped.
type ResultEnvelope struct {
	SuccessCount int      `json:"success_count"`
	ErrorCount   int      `json:"error_count"`
	Errors       []string `json:"errors,omitempty"`
	Warnings     []string `json:"warnings,omitempty"`
}

// AddError records one failed item.
func (r *ResultEnvelope) AddError(err error) {
	r.ErrorCount++
	if err != nil {
		r.Errors = append(r.Errors, err.Error())
	}
}

// AddWarning records a non-fatal anomaly.
func (r *ResultEnvelope) AddWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}
