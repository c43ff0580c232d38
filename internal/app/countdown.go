package app

import "time"

// countdown is the advisory per-question timer every observer runs locally.
// It is presentational only: reaching zero triggers no transition, the host
// still has to advance by hand.
type countdown struct {
	startedAt       time.Time
	durationSeconds int
	frozenAt        *time.Time
}

func (c *countdown) reset(now time.Time, durationSeconds int) {
	c.startedAt = now
	c.durationSeconds = durationSeconds
	c.frozenAt = nil
}

// freeze stops the countdown, e.g. once the local participant has answered.
func (c *countdown) freeze(now time.Time) {
	if c.frozenAt == nil {
		t := now
		c.frozenAt = &t
	}
}

// remaining returns whole seconds left, never below zero.
func (c *countdown) remaining(now time.Time) int {
	if c.startedAt.IsZero() {
		return 0
	}
	at := now
	if c.frozenAt != nil {
		at = *c.frozenAt
	}
	left := c.durationSeconds - int(at.Sub(c.startedAt)/time.Second)
	if left < 0 {
		return 0
	}
	return left
}
