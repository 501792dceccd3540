package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorCodeRegistry_Completeness(t *testing.T) {
	allCodes := []ErrorCode{
		CodeTimeout,
		CodeCancelled,
		CodeUnavailable,
		CodeUnauthorized,
		CodeRejected,
		CodeMalformed,
		CodeUnknown,
	}

	for _, code := range allCodes {
		t.Run(string(code), func(t *testing.T) {
			info, ok := ErrorCodeRegistry[code]
			assert.True(t, ok, "ErrorCode %s should be in registry", code)
			assert.Equal(t, code, info.Code)
			assert.NotEmpty(t, info.Description)
			assert.NotEmpty(t, info.SuggestedAction)
		})
	}
}

func TestIsRetryable_ErrorCode(t *testing.T) {
	tests := []struct {
		code     ErrorCode
		expected bool
	}{
		{CodeTimeout, true},
		{CodeUnavailable, true},
		{CodeCancelled, false},
		{CodeUnauthorized, false},
		{CodeRejected, false},
		{CodeMalformed, false},
		{CodeUnknown, false},
		{ErrorCode("made_up"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.expected, IsRetryable(tt.code))
		})
	}
}

func TestDescriptionAndAction_Unknown(t *testing.T) {
	assert.Equal(t, "Unknown error", GetDescription("made_up"))
	assert.Contains(t, GetSuggestedAction("made_up"), "--debug")
	assert.Contains(t, GetSuggestedAction(CodeUnauthorized), "mentionkit token set")
}
