package retry

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"
)

// Redis server error prefixes for transient conditions.
// See https://redis.io/docs/latest/develop/reference/protocol-spec/#simple-errors
const (
	redisErrLoading     = "LOADING"     // dataset still loading into memory
	redisErrBusy        = "BUSY"        // server busy running a script
	redisErrClusterDown = "CLUSTERDOWN" // cluster is (re)configuring
	redisErrTryAgain    = "TRYAGAIN"    // multi-key op during resharding
	redisErrMasterDown  = "MASTERDOWN"  // replica with unreachable master
	redisErrReadOnly    = "READONLY"    // write against a replica, failover pending
)

// Authentication rejections are never transient; retrying with the same
// credential cannot succeed.
var redisAuthErrPrefixes = []string{"NOAUTH", "WRONGPASS", "NOPERM"}

// RedisErrorClassifier implements redismcp.ErrorClassifier for errors raised
// while connecting to or authenticating against a Redis server.
type RedisErrorClassifier struct{}

// NewRedisErrorClassifier creates a new Redis error classifier.
func NewRedisErrorClassifier() *RedisErrorClassifier {
	return &RedisErrorClassifier{}
}

// IsTransient determines if an error is temporary and retryable.
func (c *RedisErrorClassifier) IsTransient(err error) bool {
	if err == nil {
		return false
	}

	// Cancellation is a caller decision, not a transient server condition.
	if errors.Is(err, context.Canceled) {
		return false
	}

	if c.isAuthError(err) {
		return false
	}

	if c.isTransientRedisError(err) {
		return true
	}

	if c.isNetworkError(err) {
		return true
	}

	return c.isConnectionError(err)
}

// isAuthError checks for Redis authentication/authorization rejections.
func (c *RedisErrorClassifier) isAuthError(err error) bool {
	msg := err.Error()
	for _, prefix := range redisAuthErrPrefixes {
		if strings.Contains(msg, prefix) {
			return true
		}
	}
	return strings.Contains(strings.ToLower(msg), "invalid password") ||
		strings.Contains(strings.ToLower(msg), "invalid username-password pair")
}

// isTransientRedisError checks server reply prefixes for transient states.
func (c *RedisErrorClassifier) isTransientRedisError(err error) bool {
	msg := err.Error()
	for _, prefix := range []string{
		redisErrLoading,
		redisErrBusy,
		redisErrClusterDown,
		redisErrTryAgain,
		redisErrMasterDown,
		redisErrReadOnly,
	} {
		if strings.HasPrefix(msg, prefix) || strings.Contains(msg, " "+prefix+" ") {
			return true
		}
	}
	return false
}

// isNetworkError checks for retryable network-level errors.
func (c *RedisErrorClassifier) isNetworkError(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.Temporary() || dnsErr.Timeout()
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Temporary() || opErr.Timeout() {
			return true
		}
		if opErr.Err != nil {
			switch {
			case errors.Is(opErr.Err, syscall.ECONNREFUSED),
				errors.Is(opErr.Err, syscall.ECONNRESET),
				errors.Is(opErr.Err, syscall.ENETUNREACH),
				errors.Is(opErr.Err, syscall.EHOSTUNREACH):
				return true
			}
		}
	}

	return false
}

// isConnectionError falls back to message patterns for wrapped driver errors.
func (c *RedisErrorClassifier) isConnectionError(err error) bool {
	msg := strings.ToLower(err.Error())

	transientPatterns := []string{
		"connection refused",
		"connection reset",
		"connection timeout",
		"no such host",
		"network is unreachable",
		"i/o timeout",
		"broken pipe",
		"max number of clients reached",
		"server closed the connection",
		"unexpected eof",
		"connection pool exhausted",
		"context deadline exceeded", // may be transient if an outer timeout fired
	}

	for _, pattern := range transientPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}

	return false
}
