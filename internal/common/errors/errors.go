// Package errors maps conversation failures onto workflow errors.
package errors

import (
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeInputValidationFailed ErrorCode = "INPUT_VALIDATION_FAILED"

	ErrCodeContextUnavailable ErrorCode = "CONTEXT_UNAVAILABLE"
	ErrCodeContextConflict    ErrorCode = "CONTEXT_CONFLICT"

	ErrCodeAttributionFailure ErrorCode = "ATTRIBUTION_FAILURE"

	ErrCodeUnsupportedIntent ErrorCode = "UNSUPPORTED_INTENT"
	ErrCodeExecutorFailed    ErrorCode = "EXECUTOR_FAILED"
	ErrCodeExecutorTimeout   ErrorCode = "EXECUTOR_TIMEOUT"

	ErrCodeAnalyticsSinkFailed ErrorCode = "ANALYTICS_SINK_FAILED"

	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

func newError(code ErrorCode, message, details string, retryable bool) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
	}
}

// NewInputValidationError is raised for malformed job variables.
func NewInputValidationError(details string) *StandardError {
	return newError(ErrCodeInputValidationFailed, "Message input failed validation", details, false)
}

// NewContextUnavailableError wraps a store outage.
func NewContextUnavailableError(err error) *StandardError {
	return newError(ErrCodeContextUnavailable, "Conversation context store unavailable", err.Error(), true)
}

// NewContextConflictError is raised when optimistic updates keep colliding.
func NewContextConflictError(conversationID string) *StandardError {
	return newError(ErrCodeContextConflict, "Conversation context changed concurrently",
		fmt.Sprintf("conversationId: %s", conversationID), true)
}

// NewAttributionFailureError marks feedback that had no prior intent.
func NewAttributionFailureError(conversationID string) *StandardError {
	return newError(ErrCodeAttributionFailure, "Feedback could not be attributed",
		fmt.Sprintf("conversationId: %s", conversationID), false)
}

func NewUnsupportedIntentError(intent string) *StandardError {
	return newError(ErrCodeUnsupportedIntent, "Intent has no executor",
		fmt.Sprintf("intent: %s", intent), false)
}

func NewExecutorFailedError(intent string, err error) *StandardError {
	return newError(ErrCodeExecutorFailed, "Query execution failed",
		fmt.Sprintf("intent: %s, error: %s", intent, err.Error()), true)
}

func NewExecutorTimeoutError(intent string) *StandardError {
	return newError(ErrCodeExecutorTimeout, "Query execution timed out",
		fmt.Sprintf("intent: %s", intent), true)
}

func NewAnalyticsSinkFailedError(err error) *StandardError {
	return newError(ErrCodeAnalyticsSinkFailed, "Feedback analytics delivery failed", err.Error(), true)
}

// Generic constructors

func NewExternalServiceError(service string, err error) *StandardError {
	return newError("EXTERNAL_SERVICE_ERROR", fmt.Sprintf("External service '%s' error", service), err.Error(), true)
}

func NewTimeoutError(service string, err error) *StandardError {
	return newError("TIMEOUT_ERROR", fmt.Sprintf("Service '%s' timeout", service), err.Error(), true)
}

func NewResourceNotFoundError(service, details string) *StandardError {
	return newError("RESOURCE_NOT_FOUND", fmt.Sprintf("Resource not found in %s", service), details, false)
}

func NewAuthenticationError(details string) *StandardError {
	return newError("AUTHENTICATION_ERROR", "Authentication failed", details, false)
}

// ==========================
// 4. Error Conversion to BPMN
// ==========================

// GetRetryCount returns the job retries a code is allowed.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeContextUnavailable,
		ErrCodeExecutorFailed,
		ErrCodeAnalyticsSinkFailed:
		return 3

	case ErrCodeContextConflict,
		ErrCodeExecutorTimeout:
		return 2

	case "EXTERNAL_SERVICE_ERROR", "TIMEOUT_ERROR":
		return 1

	default:
		return 0
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
// BPMN codes are the internal codes unchanged.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	return &BPMNError{
		Code:      string(stdErr.Code),
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   retries,
		ErrorVariables: map[string]interface{}{
			"originalErrorCode": string(stdErr.Code),
			"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}

// ==========================
// 5. Utility Functions
// ==========================

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.HasPrefix(codeStr, "CONTEXT"):
		return "CONTEXT"
	case strings.HasPrefix(codeStr, "EXECUTOR") || codeStr == string(ErrCodeUnsupportedIntent):
		return "EXECUTOR"
	case strings.Contains(codeStr, "ATTRIBUTION"):
		return "FEEDBACK"
	case strings.Contains(codeStr, "ANALYTICS"):
		return "ANALYTICS"
	case strings.Contains(codeStr, "VALIDATION"):
		return "VALIDATION"
	case strings.Contains(codeStr, "EXTERNAL") || strings.Contains(codeStr, "TIMEOUT"):
		return "INTEGRATION"
	default:
		return "OTHER"
	}
}
