package tradelocker

import "time"

const (
	retryBaseDelay = 500 * time.Millisecond
	retryMaxDelay  = 30 * time.Second
)

// retryBackoff returns the exponential backoff duration for a given attempt.
// Logic: retryBaseDelay * 2^attempt, capped at retryMaxDelay.
func retryBackoff(attempt int) time.Duration {
	if attempt < 0 {
		return retryBaseDelay
	}
	if attempt > 30 {
		return retryMaxDelay
	}
	d := retryBaseDelay * time.Duration(1<<attempt)
	if d > retryMaxDelay {
		return retryMaxDelay
	}
	return d
}
