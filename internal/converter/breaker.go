package converter

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Breaker stops invoking a suite that keeps timing out. After threshold
// consecutive timeouts it opens for a cooldown that doubles per reopening up
// to maxBackoff; the first call after the cooldown is let through (half-open).
type Breaker struct {
	mu          sync.Mutex
	threshold   int
	baseBackoff time.Duration
	maxBackoff  time.Duration
	now         func() time.Time

	timeouts int
	openings int
	retryAt  time.Time
}

// NewBreaker creates a breaker; non-positive arguments take the defaults
// (2 timeouts, 30s base, 5m max).
func NewBreaker(threshold int, baseBackoff, maxBackoff time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 2
	}
	if baseBackoff <= 0 {
		baseBackoff = 30 * time.Second
	}
	if maxBackoff <= 0 {
		maxBackoff = 5 * time.Minute
	}
	return &Breaker{threshold: threshold, baseBackoff: baseBackoff, maxBackoff: maxBackoff, now: time.Now}
}

// Allow reports whether the suite may be invoked now.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.retryAt.IsZero() || !b.now().Before(b.retryAt)
}

// Timeout records a suite run killed by its deadline.
func (b *Breaker) Timeout() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.timeouts++
	if b.timeouts < b.threshold {
		return
	}
	b.openings++
	backoff := b.baseBackoff
	for i := 1; i < b.openings; i++ {
		backoff *= 2
		if backoff > b.maxBackoff {
			backoff = b.maxBackoff
			break
		}
	}
	b.retryAt = b.now().Add(backoff)
	b.timeouts = 0

	log.Warn().
		Dur("cooldown", backoff).
		Int("openings", b.openings).
		Time("retry_at", b.retryAt).
		Msg("office suite breaker OPENED")
}

// Success closes the breaker.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.openings > 0 {
		log.Info().Msg("office suite breaker CLOSED (reset)")
	}
	b.timeouts = 0
	b.openings = 0
	b.retryAt = time.Time{}
}
