// Package retry implements bounded retry with exponential backoff for the
// connection and credential subsystems. Error classification decides which
// failures are worth retrying: transient transport conditions are, rejected
// credentials and configuration mistakes are not.
package retry
