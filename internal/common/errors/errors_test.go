package errors

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConstructors_Retryability(t *testing.T) {
	cause := stderrors.New("dial tcp: connection refused")
	tests := []struct {
		name      string
		err       *StandardError
		code      ErrorCode
		retryable bool
		category  string
	}{
		{"input", NewInputValidationError("message is required"), ErrCodeInputValidationFailed, false, "VALIDATION"},
		{"store down", NewContextUnavailableError(cause), ErrCodeContextUnavailable, true, "CONTEXT"},
		{"conflict", NewContextConflictError("c1"), ErrCodeContextConflict, true, "CONTEXT"},
		{"attribution", NewAttributionFailureError("c1"), ErrCodeAttributionFailure, false, "FEEDBACK"},
		{"unsupported", NewUnsupportedIntentError("follow_up"), ErrCodeUnsupportedIntent, false, "EXECUTOR"},
		{"executor", NewExecutorFailedError("pipeline_summary", cause), ErrCodeExecutorFailed, true, "EXECUTOR"},
		{"executor timeout", NewExecutorTimeoutError("pipeline_summary"), ErrCodeExecutorTimeout, true, "EXECUTOR"},
		{"analytics", NewAnalyticsSinkFailedError(cause), ErrCodeAnalyticsSinkFailed, true, "ANALYTICS"},
		{"zoho", NewExternalServiceError("zoho", cause), "EXTERNAL_SERVICE_ERROR", true, "INTEGRATION"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.retryable, tt.err.Retryable)
			assert.Equal(t, tt.retryable, IsRetryableErrorCode(tt.code))
			assert.Equal(t, tt.category, GetErrorCategory(tt.code))
			assert.False(t, tt.err.Timestamp.IsZero())
		})
	}
}

func TestConvertToBPMNError(t *testing.T) {
	bpmn := ConvertToBPMNError(NewExecutorTimeoutError("late_stage_pipeline"))
	assert.Equal(t, "EXECUTOR_TIMEOUT", bpmn.Code)
	assert.Equal(t, 2, bpmn.Retries)

	vars := bpmn.ToErrorVariables()
	assert.Equal(t, "EXECUTOR_TIMEOUT", vars["errorCode"])
	assert.Equal(t, "EXECUTOR_TIMEOUT", vars["originalErrorCode"])
	assert.Equal(t, true, vars["retryable"])
	assert.Contains(t, vars, "timestamp")
}

func TestConvertToBPMNError_NonRetryableHasNoRetries(t *testing.T) {
	stdErr := NewExecutorFailedError("pipeline_summary", stderrors.New("syntax error"))
	stdErr.Retryable = false
	assert.Equal(t, 0, ConvertToBPMNError(stdErr).Retries)
}

func TestNormalize(t *testing.T) {
	original := NewContextConflictError("c1")
	assert.Same(t, original, Normalize(original))

	wrapped := Normalize(stderrors.New("boom"))
	assert.Equal(t, ErrCodeInternal, wrapped.Code)
	assert.Equal(t, "boom", wrapped.Details)
	assert.False(t, wrapped.Retryable)
}
