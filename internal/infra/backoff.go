package infra

import (
	"math"
	"time"
)

const (
	baseDelay = 1 * time.Second
	maxDelay  = 60 * time.Second
)

// CalculateBackoff returns the reconnect delay for retryCount: 1s doubling up to 60s.
func CalculateBackoff(retryCount int) time.Duration {
	return CalculateBackoffFrom(baseDelay, maxDelay, retryCount)
}

// CalculateBackoffFrom doubles base per retry, capped at max.
func CalculateBackoffFrom(base, max time.Duration, retryCount int) time.Duration {
	if retryCount <= 0 {
		return base
	}
	// Cap retry count to prevent overflow
	if retryCount > 30 {
		return max
	}
	delay := base * time.Duration(math.Pow(2, float64(retryCount)))
	if delay > max || delay <= 0 {
		delay = max
	}
	return delay
}
