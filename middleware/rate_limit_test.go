package middleware

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSlidingWindowBlocksOverLimit(t *testing.T) {
	w := newSlidingWindow(3, time.Minute)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.True(t, w.allow("user-a", now))
	assert.True(t, w.allow("user-a", now.Add(time.Second)))
	assert.True(t, w.allow("user-a", now.Add(2*time.Second)))
	assert.False(t, w.allow("user-a", now.Add(3*time.Second)))
}

func TestSlidingWindowKeysAreIndependent(t *testing.T) {
	w := newSlidingWindow(1, time.Minute)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.True(t, w.allow("user-a", now))
	assert.False(t, w.allow("user-a", now))
	assert.True(t, w.allow("user-b", now))
}

func TestSlidingWindowExpiresOldHits(t *testing.T) {
	w := newSlidingWindow(2, time.Minute)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.True(t, w.allow("user-a", now))
	assert.True(t, w.allow("user-a", now.Add(time.Second)))
	assert.False(t, w.allow("user-a", now.Add(2*time.Second)))

	// Both earlier hits fall out of the window.
	later := now.Add(2 * time.Minute)
	assert.True(t, w.allow("user-a", later))
	assert.True(t, w.allow("user-a", later.Add(time.Second)))
	assert.False(t, w.allow("user-a", later.Add(2*time.Second)))
}

func TestSlidingWindowRejectedHitsDoNotCount(t *testing.T) {
	w := newSlidingWindow(1, time.Minute)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.True(t, w.allow("user-a", now))
	// Hammering while blocked must not extend the penalty.
	for i := 1; i <= 10; i++ {
		assert.False(t, w.allow("user-a", now.Add(time.Duration(i)*time.Second)))
	}
	assert.True(t, w.allow("user-a", now.Add(61*time.Second)))
}
