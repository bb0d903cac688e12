package server

import (
	"testing"
	"time"
)

// TestRateLimiterAllowsBurst verifies that the bucket admits exactly its
// capacity before throttling.
func TestRateLimiterAllowsBurst(t *testing.T) {
	rl := newRateLimiter(3, time.Hour)

	for i := 0; i < 3; i++ {
		if !rl.allow() {
			t.Fatalf("allow() call %d = false, want true", i+1)
		}
	}
	if rl.allow() {
		t.Error("allow() after burst = true, want false")
	}
}

// TestRateLimiterRefills verifies that tokens return after the refill
// interval passes.
func TestRateLimiterRefills(t *testing.T) {
	rl := newRateLimiter(2, 100*time.Millisecond)

	rl.allow()
	rl.allow()
	if rl.allow() {
		t.Fatal("bucket should be empty")
	}

	time.Sleep(120 * time.Millisecond)

	if !rl.allow() {
		t.Error("allow() after refill interval = false, want true")
	}
}

// TestRateLimiterDefensiveDefaults verifies that nonsense parameters are
// clamped to a working limiter.
func TestRateLimiterDefensiveDefaults(t *testing.T) {
	rl := newRateLimiter(0, 0)

	if !rl.allow() {
		t.Error("clamped limiter denied its first token")
	}
}
