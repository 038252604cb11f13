package errors_test

import (
	"errors"
	"testing"

	indexerrors "github.com/indexsync/indexsync/internal/errors"
	"github.com/stretchr/testify/assert"
)

func TestIndexError_ErrorFormatsCodeAndMessage(t *testing.T) {
	err := indexerrors.New(indexerrors.ErrCodeHashFailure, "sha1_file error processing /root/x!?", nil)
	assert.Equal(t, "[ERR_301_HASH_FAILURE] sha1_file error processing /root/x!?", err.Error())
}

func TestIndexError_UnwrapPreservesCause(t *testing.T) {
	cause := errors.New("disk error")
	err := indexerrors.Wrap(indexerrors.ErrCodeHashFailure, cause)
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestIndexError_IsMatchesByCode(t *testing.T) {
	a := indexerrors.New(indexerrors.ErrCodeInsertFailure, "a", nil)
	b := indexerrors.New(indexerrors.ErrCodeInsertFailure, "different message", nil)
	c := indexerrors.New(indexerrors.ErrCodeUpdateFailure, "a", nil)

	assert.True(t, errors.Is(a, b))
	assert.False(t, errors.Is(a, c))
}

func TestIndexError_WithDetailAndSuggestionChain(t *testing.T) {
	err := indexerrors.New(indexerrors.ErrCodeInsertFailure, "insert failed", nil).
		WithDetail("dir", "aa/bb").
		WithSuggestion("check case_insensitive_database")

	assert.Equal(t, "aa/bb", err.Details["dir"])
	assert.Equal(t, "check case_insensitive_database", err.Suggestion)
}

func TestCategoryFromCode(t *testing.T) {
	cases := map[string]indexerrors.Category{
		indexerrors.ErrCodeConfigInvalid: indexerrors.CategoryConfig,
		indexerrors.ErrCodeInvalidPath:   indexerrors.CategoryPath,
		indexerrors.ErrCodeHashFailure:   indexerrors.CategoryHash,
		indexerrors.ErrCodeInsertFailure: indexerrors.CategoryStore,
		indexerrors.ErrCodeLockHeld:      indexerrors.CategoryLock,
	}
	for code, want := range cases {
		err := indexerrors.New(code, "x", nil)
		assert.Equal(t, want, err.Category, code)
	}
}

func TestSeverityFromCode_OnlyUpdateFailureIsFatal(t *testing.T) {
	assert.True(t, indexerrors.IsFatal(indexerrors.New(indexerrors.ErrCodeUpdateFailure, "x", nil)))
	assert.False(t, indexerrors.IsFatal(indexerrors.New(indexerrors.ErrCodeInsertFailure, "x", nil)))
	assert.False(t, indexerrors.IsFatal(indexerrors.New(indexerrors.ErrCodeHashFailure, "x", nil)))
}

func TestCacheInvariantIsWarningNotFatal(t *testing.T) {
	err := indexerrors.New(indexerrors.ErrCodeCacheInvariant, "x", nil)
	assert.Equal(t, indexerrors.SeverityWarning, err.Severity)
	assert.False(t, indexerrors.IsFatal(err))
}

func TestIsRetryable_OnlyStoreConnection(t *testing.T) {
	assert.True(t, indexerrors.IsRetryable(indexerrors.New(indexerrors.ErrCodeStoreConnection, "x", nil)))
	assert.False(t, indexerrors.IsRetryable(indexerrors.New(indexerrors.ErrCodeHashFailure, "x", nil)))
	assert.False(t, indexerrors.IsRetryable(errors.New("plain error")))
}

func TestHashFailureMessageFormat(t *testing.T) {
	err := indexerrors.HashFailure("/root/aa/bb/cc/AA", errors.New("permission denied"))
	assert.Equal(t, "sha1_file error processing /root/aa/bb/cc/AA!?", err.Message)
}

func TestJoinRel(t *testing.T) {
	assert.Equal(t, "AA", indexerrors.JoinRel("", "AA"))
	assert.Equal(t, "aa/bb/AA", indexerrors.JoinRel("aa/bb", "AA"))
}
