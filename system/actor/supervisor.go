package actor

import (
	"time"
)

// RestartPolicy is flowrt's one-for-one supervision strategy: a crashing
// actor is restarted (state rebuilt from its last snapshot plus replay) up
// to MaxRestarts times within Window, with Backoff delay between attempts.
// Exceeding the budget stops the actor permanently.
type RestartPolicy struct {
	MaxRestarts int
	Window      time.Duration
	Backoff     func(attempt int) time.Duration
}

// DefaultRestartPolicy allows 5 restarts per minute with linear backoff.
func DefaultRestartPolicy() RestartPolicy {
	return RestartPolicy{
		MaxRestarts: 5,
		Window:      time.Minute,
		Backoff: func(attempt int) time.Duration {
			return time.Duration(attempt) * 200 * time.Millisecond
		},
	}
}

// recordCrash appends now to restarts, pruning entries outside window, and
// reports whether the actor is still within its restart budget.
func (p RestartPolicy) recordCrash(c *cell, now time.Time) (withinBudget bool, attempt int) {
	cutoff := now.Add(-p.Window)
	kept := c.restarts[:0]
	for _, t := range c.restarts {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)
	c.restarts = kept
	attempt = len(kept)
	return attempt <= p.MaxRestarts, attempt
}
