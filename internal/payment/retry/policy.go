// Package retry defines the backoff policy for failed payment attempts.
package retry

import "time"

// MaxAttempts is the number of automatic re-attempts after the initial
// failure. The attempt that exceeds it emits RETRIES_EXHAUSTED.
const MaxAttempts = 5

// NextDelay returns the backoff before the given attempt: 2^attempt minutes.
// Attempt 1 waits 2 minutes, attempt 5 waits 32.
func NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(1<<uint(attempt)) * time.Minute
}

// CanRetry reports whether the given attempt number is still within policy.
func CanRetry(attempt int) bool {
	return attempt <= MaxAttempts
}
