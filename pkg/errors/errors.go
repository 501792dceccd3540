// Package errors provides the domain error types shared across mentionkit.
//
// The mention engine never lets a failure escape its API as a fatal error:
// a failed candidate fetch degrades to "no suggestions" and a failed
// insertion degrades to "text unchanged". These sentinels exist so that the
// degraded result can still carry a diagnostic that callers log.
//
// Usage:
//
//	import mkerrors "github.com/otherjamesbrown/mentionkit/pkg/errors"
//
//	if mkerrors.IsNoActiveMention(err) {
//	    logger.Warn("selection without active mention", logging.Err(err))
//	}
package errors

import "errors"

var (
	// ErrNoActiveMention indicates neither the remembered query nor the
	// live caret located an in-progress @mention.
	ErrNoActiveMention = errors.New("no active mention")

	// ErrFetchFailed indicates the candidate fetch collaborator failed.
	ErrFetchFailed = errors.New("candidate fetch failed")

	// ErrNotFound indicates the requested resource was not found.
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates invalid input or validation failure.
	ErrValidation = errors.New("validation error")

	// ErrNotConfigured indicates an optional backend was used without configuration.
	ErrNotConfigured = errors.New("not configured")

	// ErrUnauthorized indicates the request lacks valid authentication.
	ErrUnauthorized = errors.New("unauthorized")
)

// IsNoActiveMention reports whether any error in err's chain is ErrNoActiveMention.
func IsNoActiveMention(err error) bool {
	return errors.Is(err, ErrNoActiveMention)
}

// IsFetchFailed reports whether any error in err's chain is ErrFetchFailed.
func IsFetchFailed(err error) bool {
	return errors.Is(err, ErrFetchFailed)
}

// IsNotFound reports whether any error in err's chain is ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation reports whether any error in err's chain is ErrValidation.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsNotConfigured reports whether any error in err's chain is ErrNotConfigured.
func IsNotConfigured(err error) bool {
	return errors.Is(err, ErrNotConfigured)
}

// IsUnauthorized reports whether any error in err's chain is ErrUnauthorized.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}
