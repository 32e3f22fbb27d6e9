package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DerivesCategoryAndSeverity(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		category Category
		severity Severity
		retry    bool
	}{
		{
			name:     "storage unavailable is fatal",
			code:     ErrCodeStorageUnavailable,
			category: CategoryStorage,
			severity: SeverityFatal,
			retry:    false,
		},
		{
			name:     "storage failure is retryable",
			code:     ErrCodeStorageFailure,
			category: CategoryStorage,
			severity: SeverityWarning,
			retry:    true,
		},
		{
			name:     "malformed input is validation",
			code:     ErrCodeMalformedInput,
			category: CategoryValidation,
			severity: SeverityError,
			retry:    false,
		},
		{
			name:     "index not ready is internal",
			code:     ErrCodeIndexNotReady,
			category: CategoryInternal,
			severity: SeverityError,
			retry:    false,
		},
		{
			name:     "config invalid",
			code:     ErrCodeConfigInvalid,
			category: CategoryConfig,
			severity: SeverityError,
			retry:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New(tt.code, "boom", nil)
			assert.Equal(t, tt.category, e.Category)
			assert.Equal(t, tt.severity, e.Severity)
			assert.Equal(t, tt.retry, e.Retryable)
		})
	}
}

func TestAppError_ErrorFormat(t *testing.T) {
	e := New(ErrCodeInvalidQuery, "query rejected", nil)
	assert.Equal(t, "[ERR_403_INVALID_QUERY] query rejected", e.Error())
}

func TestAppError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("disk on fire")
	e := StorageError("write failed", cause)

	require.ErrorIs(t, e, cause)
	assert.Equal(t, cause, stderrors.Unwrap(e))
}

func TestAppError_IsMatchesByCode(t *testing.T) {
	a := IndexNotReady("search before build")
	b := IndexNotReady("another instance")

	assert.True(t, stderrors.Is(a, b))
	assert.False(t, stderrors.Is(a, StorageError("x", nil)))
}

func TestWrap_NilReturnsNil(t *testing.T) {
	var e *AppError = Wrap(ErrCodeStorageFailure, nil)
	assert.Nil(t, e)
}

func TestHelpers(t *testing.T) {
	assert.True(t, IsRetryable(StorageError("x", nil)))
	assert.False(t, IsRetryable(MalformedInput("x", nil)))
	assert.True(t, IsFatal(StorageUnavailable("cannot open", nil)))
	assert.False(t, IsFatal(nil))
	assert.Equal(t, ErrCodeInvalidQuery, GetCode(InvalidQuery("x")))
	assert.Equal(t, "", GetCode(fmt.Errorf("plain")))
}

func TestWithDetail(t *testing.T) {
	e := MalformedInput("missing definitionId", nil).
		WithDetail("set", "export-2.zip").
		WithDetail("index", "4")

	assert.Equal(t, "export-2.zip", e.Details["set"])
	assert.Equal(t, "4", e.Details["index"])
}
