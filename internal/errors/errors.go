// Package errors provides structured error types for the recipe engine.
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Error codes for recipe operations.
const (
	// Configuration errors - the recipe itself is malformed.
	// Always fatal to the current execution and never retried.
	CodeUndefinedVariable  = "CONFIG_001" // Template references unknown variable
	CodeMalformedCondition = "CONFIG_002" // Condition failed to parse
	CodeInvalidField       = "CONFIG_003" // Invalid field value
	CodeCircularDependency = "CONFIG_004" // depends_on cycle
	CodeExclusiveFields    = "CONFIG_005" // Mutually exclusive fields both set
	CodeForeachNotList     = "CONFIG_006" // foreach source did not resolve to a list
	CodeForeachLimit       = "CONFIG_007" // foreach exceeds max_iterations

	// Recursion errors - composition tree limits.
	CodeRecursionDepth = "RECURSION_001" // max_depth exceeded
	CodeRecursionSteps = "RECURSION_002" // max_total_steps exceeded

	// Transient errors - eligible for the step's retry policy.
	CodeUnitTimeout      = "RUN_001" // Unit invocation timed out
	CodeUnitRateLimited  = "RUN_002" // Rate limit from unit backend
	CodeUnitConnectivity = "RUN_003" // Connectivity failure

	// Step failures - governed by on_error.
	CodeStepFailed       = "STEP_001" // Unit of work failed
	CodeIterationFailed  = "STEP_002" // One foreach iteration failed
	CodeRetriesExhausted = "STEP_003" // Retry policy exhausted

	// Session errors
	CodeSessionNotFound = "SESSION_001" // Session state missing
	CodeSessionIO       = "SESSION_002" // Session read/write failed

	// Approval errors
	CodeApprovalDenied  = "APPROVAL_001" // Stage denied by user or timeout
	CodeApprovalPending = "APPROVAL_002" // Decision still pending
)

// RecipeError is the structured error type for recipe operations.
type RecipeError struct {
	Code    string         `json:"code"`              // Error code (e.g., "CONFIG_001")
	Message string         `json:"message"`           // Human-readable message
	Details map[string]any `json:"details,omitempty"` // Context (step_id, variable, etc.)
	Cause   error          `json:"-"`                 // Wrapped error (not serialized)
}

// Error implements the error interface.
func (e *RecipeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *RecipeError) Unwrap() error {
	return e.Cause
}

// WithDetail adds a detail to the error.
func (e *RecipeError) WithDetail(key string, value any) *RecipeError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause wraps an underlying error.
func (e *RecipeError) WithCause(err error) *RecipeError {
	e.Cause = err
	return e
}

// MarshalJSON implements json.Marshaler with cause error message.
func (e *RecipeError) MarshalJSON() ([]byte, error) {
	type alias RecipeError
	aux := struct {
		*alias
		CauseMsg string `json:"cause,omitempty"`
	}{
		alias: (*alias)(e),
	}
	if e.Cause != nil {
		aux.CauseMsg = e.Cause.Error()
	}
	return json.Marshal(aux)
}

// New creates a new RecipeError.
func New(code, message string) *RecipeError {
	return &RecipeError{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new RecipeError with formatted message.
func Newf(code, format string, args ...any) *RecipeError {
	return &RecipeError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an error with a RecipeError.
func Wrap(code, message string, err error) *RecipeError {
	return &RecipeError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with a formatted RecipeError.
func Wrapf(code string, err error, format string, args ...any) *RecipeError {
	return &RecipeError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   err,
	}
}

// --- Configuration Errors ---

// UndefinedVariable creates an error for an unresolvable template token.
// available lists the top-level names that were defined, for diagnostics,
// without exposing the context values themselves.
func UndefinedVariable(name string, available []string) *RecipeError {
	return Newf(CodeUndefinedVariable, "undefined variable: {{%s}} (available: %v)", name, available).
		WithDetail("variable", name).
		WithDetail("available", available)
}

// MalformedCondition creates an error for an unparseable condition.
func MalformedCondition(condition, reason string) *RecipeError {
	return Newf(CodeMalformedCondition, "invalid condition syntax: %s", reason).
		WithDetail("condition", condition)
}

// InvalidField creates an error for an invalid field value.
func InvalidField(field, reason string) *RecipeError {
	return Newf(CodeInvalidField, "invalid value for %s: %s", field, reason).
		WithDetail("field", field)
}

// ForeachNotList creates an error for a foreach source that is not a list.
func ForeachNotList(stepID, source string, got any) *RecipeError {
	return Newf(CodeForeachNotList, "step %s: foreach source must resolve to a list, got %T", stepID, got).
		WithDetail("step_id", stepID).
		WithDetail("source", source)
}

// ForeachLimitExceeded creates an error for a foreach exceeding max_iterations.
func ForeachLimitExceeded(stepID string, items, limit int) *RecipeError {
	return Newf(CodeForeachLimit, "step %s: foreach exceeds max_iterations (%d > %d)", stepID, items, limit).
		WithDetail("step_id", stepID).
		WithDetail("items", items).
		WithDetail("max_iterations", limit)
}

// --- Recursion Errors ---

// RecursionDepthExceeded creates an error for a too-deep recipe chain.
// stack is the invocation chain from the root recipe to the offender.
func RecursionDepthExceeded(depth, limit int, stack []string) *RecipeError {
	return Newf(CodeRecursionDepth, "recipe recursion depth %d exceeds limit %d", depth, limit).
		WithDetail("depth", depth).
		WithDetail("limit", limit).
		WithDetail("stack", stack)
}

// RecursionStepsExceeded creates an error for too many total steps.
func RecursionStepsExceeded(total, limit int, stack []string) *RecipeError {
	return Newf(CodeRecursionSteps, "total steps %d exceeds limit %d", total, limit).
		WithDetail("total_steps", total).
		WithDetail("limit", limit).
		WithDetail("stack", stack)
}

// --- Transient Errors ---

// UnitTimeout creates an error for a timed-out unit invocation.
func UnitTimeout(target string, seconds int) *RecipeError {
	return Newf(CodeUnitTimeout, "unit %s timed out after %ds", target, seconds).
		WithDetail("target", target).
		WithDetail("timeout", seconds)
}

// UnitRateLimited creates an error for a rate-limited invocation.
func UnitRateLimited(target string, err error) *RecipeError {
	return Wrap(CodeUnitRateLimited, "unit invocation rate limited", err).
		WithDetail("target", target)
}

// UnitConnectivity creates an error for a connectivity failure.
func UnitConnectivity(target string, err error) *RecipeError {
	return Wrap(CodeUnitConnectivity, "unit invocation connectivity failure", err).
		WithDetail("target", target)
}

// --- Step Failures ---

// StepFailed creates an error for a failed unit of work.
func StepFailed(stepID string, err error) *RecipeError {
	return Wrapf(CodeStepFailed, err, "step %s failed", stepID).
		WithDetail("step_id", stepID)
}

// IterationFailed creates an error for a failed foreach iteration.
func IterationFailed(stepID string, index int, err error) *RecipeError {
	return Wrapf(CodeIterationFailed, err, "step %s iteration %d failed", stepID, index).
		WithDetail("step_id", stepID).
		WithDetail("iteration", index)
}

// RetriesExhausted creates an error for an exhausted retry policy.
func RetriesExhausted(stepID string, attempts int, err error) *RecipeError {
	return Wrapf(CodeRetriesExhausted, err, "step %s failed after %d attempts", stepID, attempts).
		WithDetail("step_id", stepID).
		WithDetail("attempts", attempts)
}

// --- Session Errors ---

// SessionNotFound creates an error for a missing session.
func SessionNotFound(sessionID string) *RecipeError {
	return Newf(CodeSessionNotFound, "session not found: %s", sessionID).
		WithDetail("session_id", sessionID)
}

// SessionIO creates an error for a session read/write failure.
func SessionIO(sessionID string, err error) *RecipeError {
	return Wrap(CodeSessionIO, "session state I/O failed", err).
		WithDetail("session_id", sessionID)
}

// --- Approval Errors ---

// ApprovalDenied creates an error for a denied stage.
func ApprovalDenied(stage, reason string) *RecipeError {
	e := Newf(CodeApprovalDenied, "execution denied at stage %q", stage).
		WithDetail("stage", stage)
	if reason != "" {
		e = e.WithDetail("reason", reason)
	}
	return e
}

// ApprovalPending creates an error for a still-pending approval decision.
func ApprovalPending(stage string) *RecipeError {
	return Newf(CodeApprovalPending, "stage %q is awaiting approval", stage).
		WithDetail("stage", stage)
}

// HasCode checks if an error is a RecipeError with the given code.
// It handles wrapped errors by unwrapping to find a RecipeError.
func HasCode(err error, code string) bool {
	var rerr *RecipeError
	if errors.As(err, &rerr) {
		return rerr.Code == code
	}
	return false
}

// Code returns the error code if err is a RecipeError, empty string otherwise.
func Code(err error) string {
	var rerr *RecipeError
	if errors.As(err, &rerr) {
		return rerr.Code
	}
	return ""
}

// IsConfiguration reports whether err is a configuration or recursion error.
// These indicate the recipe itself is malformed; they bypass on_error and
// are never retried.
func IsConfiguration(err error) bool {
	switch Code(err) {
	case CodeUndefinedVariable, CodeMalformedCondition, CodeInvalidField,
		CodeCircularDependency, CodeExclusiveFields,
		CodeForeachNotList, CodeForeachLimit,
		CodeRecursionDepth, CodeRecursionSteps:
		return true
	}
	return false
}

// IsTransient reports whether err is eligible for the retry policy.
func IsTransient(err error) bool {
	switch Code(err) {
	case CodeUnitTimeout, CodeUnitRateLimited, CodeUnitConnectivity:
		return true
	}
	return false
}
