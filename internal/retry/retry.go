// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package retry provides the bounded retry policy shared by every stage that
// re-asks a language model after a bad answer. Each attempt may run at a
// different temperature, chosen by the policy's escalation function.
package retry

import (
	"context"
	"fmt"
	"math"
	"time"
)

// BackoffBase controls the base duration for exponential backoff between
// attempts. Tests override this to avoid real sleeps.
var BackoffBase = 200 * time.Millisecond

// Escalation returns the temperature for the given attempt (0-based).
type Escalation func(attempt int, base float64) float64

// Step returns an Escalation that adds step per retry.
func Step(step float64) Escalation {
	return func(attempt int, base float64) float64 {
		return base + step*float64(attempt)
	}
}

// Schedule returns an Escalation that walks a fixed temperature list and
// repeats the last entry once the list is exhausted.
func Schedule(temps ...float64) Escalation {
	return func(attempt int, base float64) float64 {
		if len(temps) == 0 {
			return base
		}
		if attempt >= len(temps) {
			return temps[len(temps)-1]
		}
		return temps[attempt]
	}
}

// Policy bounds how often an operation is retried and how its temperature
// grows between attempts.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// BaseTemperature is the temperature of the first attempt.
	BaseTemperature float64

	// Escalate picks the temperature per attempt. Nil keeps BaseTemperature.
	Escalate Escalation

	// Retryable decides whether an error is worth another attempt. Nil
	// retries every error.
	Retryable func(error) bool

	// Backoff enables exponential waits between attempts.
	Backoff bool
}

// Attempt describes one call made under a Policy.
type Attempt struct {
	Number      int
	Temperature float64
}

// Temperature returns the temperature for the given attempt.
func (p Policy) Temperature(attempt int) float64 {
	if p.Escalate == nil {
		return p.BaseTemperature
	}
	return p.Escalate(attempt, p.BaseTemperature)
}

// Do runs fn until it succeeds, returns a non-retryable error, or the retry
// budget is spent. The last error is wrapped with the attempt count.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context, a Attempt) (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 && p.Backoff {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * BackoffBase
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(backoff):
			}
		}
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		v, err := fn(ctx, Attempt{Number: attempt, Temperature: p.Temperature(attempt)})
		if err == nil {
			return v, nil
		}
		lastErr = err
		if p.Retryable != nil && !p.Retryable(err) {
			return zero, err
		}
	}
	return zero, fmt.Errorf("after %d retries: %w", p.MaxRetries, lastErr)
}
