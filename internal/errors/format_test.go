package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatForLog_IncludesErrorCodeAndCategory(t *testing.T) {
	err := New(ErrCodeEmbeddingFailed, "embedding worker timed out", nil).
		WithDetail("attempt", "2")

	result := FormatForLog(err)

	assert.Equal(t, ErrCodeEmbeddingFailed, result["error_code"])
	assert.Equal(t, string(CategoryInternal), result["category"])
	assert.Equal(t, true, result["retryable"])
	assert.Equal(t, "2", result["detail_attempt"])
}

func TestFormatForLog_WithCauseAndSuggestion(t *testing.T) {
	cause := errors.New("underlying error")
	err := New(ErrCodeInternal, "operation failed", cause).
		WithSuggestion("retry the operation")

	result := FormatForLog(err)

	assert.Equal(t, "underlying error", result["cause"])
	assert.Equal(t, "retry the operation", result["suggestion"])
}

func TestFormatForLog_StandardError(t *testing.T) {
	result := FormatForLog(errors.New("plain error"))

	assert.Equal(t, "plain error", result["error"])
}

func TestFormatForLog_NilError(t *testing.T) {
	assert.Nil(t, FormatForLog(nil))
}
