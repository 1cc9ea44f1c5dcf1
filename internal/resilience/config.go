package resilience

import (
	"time"
)

// FromRetryConfig builds a connector RetryConfig from the scraper.retry
// settings. Zero or negative values keep the defaults; the jitter fraction
// is clamped to [0, 1].
func FromRetryConfig(maxAttempts, initialBackoffMs, maxBackoffMs int, multiplier, jitterFraction float64) RetryConfig {
	cfg := DefaultRetryConfig()
	if maxAttempts > 0 {
		cfg.MaxAttempts = maxAttempts
	}
	if initialBackoffMs > 0 {
		cfg.InitialBackoff = time.Duration(initialBackoffMs) * time.Millisecond
	}
	if maxBackoffMs > 0 {
		cfg.MaxBackoff = time.Duration(maxBackoffMs) * time.Millisecond
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = cfg.InitialBackoff
	}
	if multiplier > 0 {
		cfg.Multiplier = multiplier
	}
	if jitterFraction >= 0 {
		cfg.JitterFraction = min(jitterFraction, 1)
	}
	return cfg
}

// FromCircuitConfig builds the per-source breaker settings from the breaker
// section: how many consecutive connector failures disable a source and for
// how many minutes.
func FromCircuitConfig(failureThreshold, recoveryMinutes int) CircuitBreakerConfig {
	cfg := DefaultCircuitBreakerConfig()
	if failureThreshold > 0 {
		cfg.FailureThreshold = failureThreshold
	}
	if recoveryMinutes > 0 {
		cfg.RecoveryWindow = time.Duration(recoveryMinutes) * time.Minute
	}
	return cfg
}
