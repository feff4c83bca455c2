package auth

import "time"

// IsWithinThresholdPeriod checks if t happened less than window before now.
func IsWithinThresholdPeriod(t time.Time, window time.Duration, now time.Time) bool {
	return !t.Before(now.Add(-window))
}

// IsOutsideThresholdPeriod is the negation of IsWithinThresholdPeriod
func IsOutsideThresholdPeriod(t time.Time, window time.Duration, now time.Time) bool {
	return !IsWithinThresholdPeriod(t, window, now)
}

// sentAtExpired reports whether a token sent at sentAt outlived window.
func sentAtExpired(sentAt *time.Time, window time.Duration, now time.Time) bool {
	if sentAt == nil {
		return false
	}
	return IsOutsideThresholdPeriod(*sentAt, window, now)
}
