package coordinator

import (
	"sync"
	"time"
)

// rateLimiter is a sliding window counter keyed by guild and user.
type rateLimiter struct {
	mu     sync.Mutex
	window time.Duration
	limit  int
	hits   map[string][]time.Time
}

func newRateLimiter(window time.Duration, limit int) *rateLimiter {
	return &rateLimiter{
		window: window,
		limit:  limit,
		hits:   make(map[string][]time.Time),
	}
}

// allow records one hit and reports whether the key stays under the limit.
// Rejected hits are not recorded. When over, it returns how long until the
// oldest hit leaves the window.
func (r *rateLimiter) allow(guildID, userID string, now time.Time) (time.Duration, bool) {
	key := guildID + ":" + userID
	cutoff := now.Add(-r.window)

	r.mu.Lock()
	defer r.mu.Unlock()

	hits := r.hits[key]
	fresh := hits[:0]
	for _, t := range hits {
		if t.After(cutoff) {
			fresh = append(fresh, t)
		}
	}
	if len(fresh) >= r.limit {
		r.hits[key] = fresh
		return fresh[0].Sub(cutoff), false
	}
	r.hits[key] = append(fresh, now)
	return 0, true
}

// sweep drops keys whose every hit has left the window.
func (r *rateLimiter) sweep(now time.Time) {
	cutoff := now.Add(-r.window)

	r.mu.Lock()
	defer r.mu.Unlock()

	for key, hits := range r.hits {
		live := false
		for _, t := range hits {
			if t.After(cutoff) {
				live = true
				break
			}
		}
		if !live {
			delete(r.hits, key)
		}
	}
}
