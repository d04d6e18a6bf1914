package redismcp

import (
	"errors"
	"strings"
)

// Sentinel errors for the three failure classes of the connection core.
// Callers distinguish them with errors.Is().
//
// Example:
//
//	cred, err := refresher.Current()
//	if errors.Is(err, redismcp.ErrAuthFailed) {
//	    // no valid credential right now
//	}
var (
	// ErrInvalidConfig indicates malformed or contradictory configuration
	// input (bad URI, out-of-range port or db index). Never retried.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrUnsupportedAuthFlow indicates an unrecognized auth flow selector.
	ErrUnsupportedAuthFlow = errors.New("unsupported auth flow")

	// ErrAuthFailed indicates the identity provider rejected the request,
	// the metadata endpoint was unreachable, or the default credential
	// chain was exhausted.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrConnectionFailed indicates the transport to the Redis server could
	// not be established after the configured attempts.
	ErrConnectionFailed = errors.New("connection failed")
)

// ExitCodeForError returns the process exit code for an error.
// Returns ExitSuccess for nil, semantic codes for the known error classes,
// and ExitGeneralError for anything unclassified.
func ExitCodeForError(err error) int {
	if err == nil {
		return ExitSuccess
	}

	switch {
	case errors.Is(err, ErrInvalidConfig), errors.Is(err, ErrUnsupportedAuthFlow):
		return ExitConfigError
	case errors.Is(err, ErrAuthFailed):
		return ExitAuthError
	case errors.Is(err, ErrConnectionFailed):
		return ExitConnectionError
	}

	errStr := err.Error()

	// Cobra reports flag/argument misuse as plain errors.
	for _, pattern := range []string{
		"unknown flag",
		"unknown shorthand flag",
		"unknown command",
		"invalid argument",
		"required flag",
		"accepts ",
	} {
		if strings.Contains(errStr, pattern) {
			return ExitUsageError
		}
	}

	// Unwrapped transport errors from the driver.
	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "i/o timeout") {
		return ExitConnectionError
	}

	return ExitGeneralError
}
