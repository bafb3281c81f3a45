// Package internal holds small helpers shared across the srtla-sender
// packages that don't belong to any one of them.
package internal

import "time"

// RetryFixed runs attempt up to maxAttempts times, sleeping wait between
// tries, and returns the last error (nil on first success). Unlike an
// exponential backoff, the wait never grows: the supervisor's bind retry
// is specified as a flat interval, not a congestion-avoidance backoff.
func RetryFixed(maxAttempts int, wait time.Duration, attempt func(try int) error) error {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	var err error
	for try := 1; try <= maxAttempts; try++ {
		err = attempt(try)
		if err == nil {
			return nil
		}
		if try < maxAttempts {
			time.Sleep(wait)
		}
	}
	return err
}
