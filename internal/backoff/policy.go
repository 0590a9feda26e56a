// Package backoff provides exponential backoff utilities with jitter for
// retry logic.
package backoff

import (
	"math"
	"math/rand"
	"time"
)

// Policy defines the parameters for exponential backoff calculation.
type Policy struct {
	// InitialMs is the base delay in milliseconds for the first retry.
	InitialMs float64
	// MaxMs caps the exponential portion of the delay.
	MaxMs float64
	// Factor is the exponential growth factor per attempt.
	Factor float64
	// JitterMs is the width of the uniform jitter added on top of the
	// capped delay, in milliseconds.
	JitterMs float64
}

// DefaultPolicy is the retry schedule used for LLM transport retries:
// 250ms base, doubled per attempt, capped at 2s, plus up to 50ms jitter.
func DefaultPolicy() Policy {
	return Policy{
		InitialMs: 250,
		MaxMs:     2000,
		Factor:    2,
		JitterMs:  50,
	}
}

// LockPolicy is the schedule used when waiting on file locks: short initial
// delay, mild growth, small cap so contention resolves quickly.
func LockPolicy() Policy {
	return Policy{
		InitialMs: 25,
		MaxMs:     250,
		Factor:    1.5,
		JitterMs:  10,
	}
}

// Compute calculates the delay before retry number attempt (zero-based: the
// sleep before the first retry is attempt 0).
func Compute(policy Policy, attempt int) time.Duration {
	return ComputeWithRand(policy, attempt, rand.Float64()) // #nosec G404 -- jitter does not require cryptographic randomness
}

// ComputeWithRand calculates the delay using a provided random value in
// [0.0, 1.0), which makes results deterministic for tests.
//
// The formula is min(maxMs, initialMs * factor^attempt) + jitterMs * random.
// The jitter is added after clamping, so the cap bounds only the exponential
// portion.
func ComputeWithRand(policy Policy, attempt int, randomValue float64) time.Duration {
	exp := math.Max(float64(attempt), 0)
	base := policy.InitialMs * math.Pow(policy.Factor, exp)
	total := math.Min(policy.MaxMs, base) + policy.JitterMs*randomValue
	return time.Duration(math.Round(total)) * time.Millisecond
}
