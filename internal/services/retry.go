package services

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"time"
)

// RetryPolicy controls how often and how patiently an operation is retried.
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryPolicy is used when opening stores at startup.
var DefaultRetryPolicy = RetryPolicy{
	MaxRetries:    3,
	InitialDelay:  500 * time.Millisecond,
	MaxDelay:      10 * time.Second,
	BackoffFactor: 2.0,
}

// Retry runs op until it succeeds, returns a non-retryable error, or the
// policy is exhausted. The last error is returned.
func Retry(ctx context.Context, policy RetryPolicy, what string, op func(context.Context) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		if err = op(ctx); err == nil {
			return nil
		}
		if !isRetryable(err) || attempt >= policy.MaxRetries {
			return err
		}
		slog.Warn("retry: operation failed", "op", what, "attempt", attempt+1, "err", err)
		if !sleepWithBackoff(ctx, policy, attempt) {
			return err
		}
	}
}

// sleepWithBackoff waits for the backoff duration. It reports false if ctx
// was cancelled first.
func sleepWithBackoff(ctx context.Context, policy RetryPolicy, attempt int) bool {
	delay := calculateBackoff(policy, attempt)
	slog.Info("retry: backing off", "attempt", attempt+1, "delay", delay)

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// calculateBackoff computes the delay for a given attempt using exponential backoff.
func calculateBackoff(policy RetryPolicy, attempt int) time.Duration {
	delay := float64(policy.InitialDelay) * math.Pow(policy.BackoffFactor, float64(attempt))
	if time.Duration(delay) > policy.MaxDelay {
		return policy.MaxDelay
	}
	return time.Duration(delay)
}

func isRetryable(err error) bool {
	return isRetryableMsg(err.Error())
}

// isRetryableMsg checks if an error message indicates a transient
// connectivity problem.
func isRetryableMsg(msg string) bool {
	lower := strings.ToLower(msg)
	retryablePatterns := []string{
		"timeout", "i/o timeout", "too many connections",
		"connection reset", "connection refused", "eof",
		"no such host", "starting up", "broken pipe",
	}
	for _, pattern := range retryablePatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}
