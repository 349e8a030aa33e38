package service

import "time"

// retryBackoff returns the delay before attempt k+1 after k failed
// attempts: base * 2^(k-1), capped. Monotonically non-decreasing in k.
func retryBackoff(attempts int32, base, cap time.Duration) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	if base <= 0 {
		base = time.Minute
	}
	if cap <= 0 {
		cap = time.Hour
	}

	delay := base
	for i := int32(1); i < attempts; i++ {
		delay *= 2
		if delay >= cap {
			return cap
		}
	}
	if delay > cap {
		return cap
	}
	return delay
}
