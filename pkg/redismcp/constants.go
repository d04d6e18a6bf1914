package redismcp

import "time"

// Exit codes, following Unix/GNU conventions:
//   - 0: Success
//   - 1: General error
//   - 2: CLI usage error
//   - 3+: Application-specific errors
const (
	ExitSuccess         = 0  // Clean shutdown
	ExitGeneralError    = 1  // Unknown or unclassified error
	ExitUsageError      = 2  // CLI usage error (missing args, invalid flags)
	ExitPanic           = 3  // Internal panic (unexpected crash)
	ExitConfigError     = 10 // Invalid configuration or parameters
	ExitConnectionError = 11 // Failed to connect to the Redis server
	ExitAuthError       = 12 // Credential acquisition failed
)

// Connection defaults, matching the redis:// URI scheme conventions.
const (
	DefaultHost     = "127.0.0.1"
	DefaultPort     = 6379
	DefaultDB       = 0
	DefaultCertReqs = CertPolicyRequired
)

// DefaultScope is the OAuth scope requested for Azure Managed Redis when the
// configuration names neither a resource nor explicit scopes.
const DefaultScope = "https://redis.azure.com/.default"

// Token refresh defaults. A token is renewed once the configured fraction of
// its lifetime has elapsed, but never later than the lower refresh bound
// before expiry.
const (
	DefaultExpirationRefreshRatio = 0.7
	DefaultLowerRefreshBound      = 2 * time.Minute
	DefaultTokenRequestTimeout    = 10 * time.Second
)

// Retry defaults shared by the refresher backoff and the connect loop.
const (
	DefaultRetryInitialDelay = 100 * time.Millisecond
	DefaultRetryMaxDelay     = 1 * time.Minute
	DefaultRetryMaxAttempts  = 3
)
