// middleware/rate_limit.go
package middleware

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
)

// slidingWindow counts request timestamps per key inside a rolling window.
// State is process-local: behind more than one replica this undercounts,
// and the counting should move to a TTL-aware shared store.
type slidingWindow struct {
	mu     sync.Mutex
	window time.Duration
	limit  int
	hits   map[string][]time.Time
}

func newSlidingWindow(limit int, window time.Duration) *slidingWindow {
	return &slidingWindow{
		window: window,
		limit:  limit,
		hits:   make(map[string][]time.Time),
	}
}

// allow records a hit for key and reports whether it stays within limit.
func (w *slidingWindow) allow(key string, now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := now.Add(-w.window)
	kept := w.hits[key][:0]
	for _, t := range w.hits[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= w.limit {
		w.hits[key] = kept
		return false
	}
	w.hits[key] = append(kept, now)
	return true
}

// RateLimitMiddleware limits requests per user (falling back to IP for
// unauthenticated calls) over a sliding window.
func RateLimitMiddleware(limit int, window time.Duration) fiber.Handler {
	limiter := newSlidingWindow(limit, window)
	return func(c *fiber.Ctx) error {
		key := c.Get("X-User-ID")
		if key == "" {
			key = c.IP()
		}
		if !limiter.allow(key, time.Now()) {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "rate limit exceeded, slow down",
			})
		}
		return c.Next()
	}
}
