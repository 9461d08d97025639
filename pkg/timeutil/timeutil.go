package timeutil

import (
	"math"
	"math/rand"
	"time"
)

// runIDLayout names run directories; lexical order equals chronological order.
const runIDLayout = "20060102_150405"

// DurationPtr is a helper function to create a pointer to a time.Duration
func DurationPtr(d time.Duration) *time.Duration {
	return &d
}

// MaxDuration returns the largest duration in the slice, or zero for an
// empty slice.
func MaxDuration(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}
	max := durations[0]
	for _, d := range durations[1:] {
		if d > max {
			max = d
		}
	}
	return max
}

// ComputeJitter returns a pseudo-random duration in [0, max).
// Non-positive max yields zero. The rand.Rand is passed by value; its
// Source is shared, so successive calls advance the same stream.
func ComputeJitter(max time.Duration, rng rand.Rand) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rng.Int63n(int64(max)))
}

// ExponentialBackoffDelay computes the delay before retry attempt
// backoffCount: initial * multiplier^(count-1), capped at the param's
// max, plus jitter.
func ExponentialBackoffDelay(
	backoffCount int,
	jitter time.Duration,
	rng rand.Rand,
	backoffParam BackoffParam,
) time.Duration {
	exponent := float64(backoffCount - 1)
	delay := float64(backoffParam.InitialDuration()) * math.Pow(backoffParam.Multiplier(), exponent)
	if delay > float64(backoffParam.MaxDuration()) {
		delay = float64(backoffParam.MaxDuration())
	}

	final := time.Duration(delay)
	if jitter > 0 {
		final += ComputeJitter(jitter, rng)
	}
	if final < 0 {
		return 0
	}
	return final
}

// RunID formats a timestamp as the run directory name (YYYYMMDD_HHMMSS).
func RunID(t time.Time) string {
	return t.Format(runIDLayout)
}

// ParseRunID recovers the start time encoded in a run directory name.
func ParseRunID(id string) (time.Time, error) {
	return time.ParseInLocation(runIDLayout, id, time.Local)
}

// ISO8601 renders t the way the manifest records timestamps.
func ISO8601(t time.Time) string {
	return t.Format(time.RFC3339)
}
