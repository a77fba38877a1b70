package util

import (
	"context"
	"fmt"
	"time"
)

// RetryWithBackoff calls fn up to maxRetries+1 times, sleeping base, 2*base,
// 4*base... between attempts. fn receives the 0-indexed attempt number.
// A cancelled context stops the retries and its error is returned.
func RetryWithBackoff(ctx context.Context, maxRetries int, base time.Duration, fn func(attempt int) error) error {
	if base <= 0 {
		base = time.Second
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if lastErr = fn(attempt); lastErr == nil {
			return nil
		}
		if attempt == maxRetries {
			break
		}

		timer := time.NewTimer(base << attempt)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return fmt.Errorf("failed after %d retries: %w", maxRetries, lastErr)
}
