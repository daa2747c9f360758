package schemas

import (
	"errors"
	"fmt"
)

// ErrorCode classifies every failure the core produces. Using a custom type
// keeps the taxonomy closed: only these constants appear in results, logs and
// the archive.
type ErrorCode string

const (
	// ErrCodePerception covers detector failures after retries are exhausted.
	ErrCodePerception ErrorCode = "PERCEPTION_ERROR"
	// ErrCodePlannerSchema marks a planner response that failed validation:
	// unknown tool, missing parameter, or a stale element reference. The
	// rejected intent is never executed.
	ErrCodePlannerSchema ErrorCode = "PLANNER_SCHEMA_ERROR"
	// ErrCodeCoordinateOutOfBounds marks a resolved point outside the
	// addressed display. Never clamped.
	ErrCodeCoordinateOutOfBounds ErrorCode = "COORDINATE_OUT_OF_BOUNDS"
	// ErrCodeActionExecution marks an injection failure from the input driver.
	ErrCodeActionExecution ErrorCode = "ACTION_EXECUTION_ERROR"
	// ErrCodeVerificationContradiction marks a contradicted verifier verdict.
	ErrCodeVerificationContradiction ErrorCode = "VERIFICATION_CONTRADICTION"
	// ErrCodeRateLimit marks an action delayed past the maximum queue wait.
	ErrCodeRateLimit ErrorCode = "RATE_LIMIT_EXCEEDED"
	// ErrCodeTimeout marks a per-call timeout on a blocking external.
	// Retryable, not a permanent fault.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
	// ErrCodeSafetyRejected marks a declined confirmation or an emergency
	// stop. Irrecoverable within the session.
	ErrCodeSafetyRejected ErrorCode = "SAFETY_REJECTED"
)

// CoreError is the structured error carried in results and history.
type CoreError struct {
	Code   ErrorCode `json:"code"`
	Detail string    `json:"detail"`
}

// NewCoreError builds a CoreError with a formatted detail message.
func NewCoreError(code ErrorCode, format string, args ...any) *CoreError {
	return &CoreError{Code: code, Detail: fmt.Sprintf(format, args...)}
}

// Error implements the error interface.
func (e *CoreError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Detail)
}

// Is lets errors.Is match two CoreErrors by code alone.
func (e *CoreError) Is(target error) bool {
	t, ok := target.(*CoreError)
	return ok && t.Code == e.Code
}

// CodeOf extracts the ErrorCode from err, or "" when err carries none.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}
