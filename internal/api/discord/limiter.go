package discord

import (
	"sync"

	"golang.org/x/time/rate"
)

// pruneThreshold is the map size at which idle limiters are dropped.
const pruneThreshold = 1024

// userLimiter throttles commands per user.
type userLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

func newUserLimiter(perSecond float64, burst int) *userLimiter {
	return &userLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Allow reports whether userID may run a command now.
func (l *userLimiter) Allow(userID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limiters[userID]
	if !ok {
		if len(l.limiters) >= pruneThreshold {
			l.pruneLocked()
		}
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[userID] = lim
	}
	return lim.Allow()
}

// pruneLocked drops limiters that have refilled completely; a fresh limiter
// behaves the same.
func (l *userLimiter) pruneLocked() {
	for id, lim := range l.limiters {
		if lim.Tokens() >= float64(l.burst) {
			delete(l.limiters, id)
		}
	}
}
