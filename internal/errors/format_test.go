package errors

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatForUser_BasicError(t *testing.T) {
	err := New(ErrCodeInvalidPath, "path 'aa/BB' is not inside the allowed base directory", nil)

	result := FormatForUser(err, false)

	assert.Contains(t, result, "not inside the allowed base directory")
	assert.Contains(t, result, ErrCodeInvalidPath)
}

func TestFormatForUser_IncludesSuggestion(t *testing.T) {
	err := InsertFailure("aa/bb", "AA", errors.New("UNIQUE constraint failed"))

	result := FormatForUser(err, false)

	assert.Contains(t, result, "Suggestion:")
	assert.Contains(t, result, "case_insensitive_database")
}

func TestFormatForUser_NonIndexError(t *testing.T) {
	result := FormatForUser(errors.New("plain error"), false)
	assert.Equal(t, "plain error", result)
}

func TestFormatForCLI_WrapsPlainErrors(t *testing.T) {
	result := FormatForCLI(errors.New("boom"))
	assert.Contains(t, result, "boom")
	assert.Contains(t, result, ErrCodeQueryFailure)
}

func TestFormatJSON_RoundTripsFields(t *testing.T) {
	err := HashFailure("/root/AA", errors.New("permission denied"))

	data, jsonErr := FormatJSON(err)
	require.NoError(t, jsonErr)

	var decoded jsonError
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, ErrCodeHashFailure, decoded.Code)
	assert.True(t, strings.Contains(decoded.Message, "sha1_file error processing"))
	assert.Equal(t, "permission denied", decoded.Cause)
}

func TestFormatForLog_IncludesDetails(t *testing.T) {
	err := InsertFailure("aa", "BB", nil)

	fields := FormatForLog(err)

	assert.Equal(t, ErrCodeInsertFailure, fields["error_code"])
	assert.Equal(t, "aa", fields["detail_dir"])
	assert.Equal(t, "BB", fields["detail_filename"])
}
