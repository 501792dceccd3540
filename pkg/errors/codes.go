package errors

// ErrorCodeInfo contains metadata about an error code.
type ErrorCodeInfo struct {
	Code            ErrorCode
	Retryable       bool
	Description     string
	SuggestedAction string
}

// ErrorCodeRegistry maps error codes to their metadata.
var ErrorCodeRegistry = map[ErrorCode]ErrorCodeInfo{
	CodeTimeout: {
		Code:            CodeTimeout,
		Retryable:       true,
		Description:     "Candidate fetch exceeded its time limit",
		SuggestedAction: "Raise fetch.timeout or check backend latency: mentionkit health",
	},
	CodeCancelled: {
		Code:            CodeCancelled,
		Retryable:       false,
		Description:     "Candidate fetch was cancelled",
		SuggestedAction: "Check whether the caller abandoned the request intentionally",
	},
	CodeUnavailable: {
		Code:            CodeUnavailable,
		Retryable:       true,
		Description:     "Candidate backend unreachable",
		SuggestedAction: "Verify fetch.address and backend health: mentionkit health",
	},
	CodeUnauthorized: {
		Code:            CodeUnauthorized,
		Retryable:       false,
		Description:     "Candidate backend rejected the credentials",
		SuggestedAction: "Store a fresh API token: mentionkit token set",
	},
	CodeRejected: {
		Code:            CodeRejected,
		Retryable:       false,
		Description:     "Candidate backend answered with an unsuccessful result",
		SuggestedAction: "Inspect the backend error message; the scope may not allow tagging",
	},
	CodeMalformed: {
		Code:            CodeMalformed,
		Retryable:       false,
		Description:     "Candidate backend response had an unexpected shape",
		SuggestedAction: "Check backend and client versions match",
	},
	CodeUnknown: {
		Code:            CodeUnknown,
		Retryable:       false,
		Description:     "Unclassified candidate fetch failure",
		SuggestedAction: "Re-run with --debug and inspect the logged error",
	},
}

// IsRetryable returns true if the given error code represents a transient failure.
func IsRetryable(code ErrorCode) bool {
	if info, ok := ErrorCodeRegistry[code]; ok {
		return info.Retryable
	}
	return false
}

// GetSuggestedAction returns the suggested action for the given error code.
func GetSuggestedAction(code ErrorCode) string {
	if info, ok := ErrorCodeRegistry[code]; ok {
		return info.SuggestedAction
	}
	return "Re-run with --debug for more details"
}

// GetDescription returns the human-readable description for the given error code.
func GetDescription(code ErrorCode) string {
	if info, ok := ErrorCodeRegistry[code]; ok {
		return info.Description
	}
	return "Unknown error"
}
