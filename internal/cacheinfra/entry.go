package cacheinfra

import "time"

// Clock returns the current time. Stores take one so tests can move time
// without sleeping.
type Clock func() time.Time

// entry is a stored value with its absolute expiry.
type entry struct {
	expiresAt time.Time
	value     any
}

// expired reports whether the entry is no longer readable at now. An entry
// whose expiry equals now is already expired.
func (e entry) expired(now time.Time) bool {
	return !now.Before(e.expiresAt)
}

// resolveTTL maps a non-positive ttl to the store default.
func resolveTTL(ttl, fallback time.Duration) time.Duration {
	if ttl <= 0 {
		return fallback
	}
	return ttl
}
