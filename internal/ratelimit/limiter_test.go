package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestBurstThenThrottle(t *testing.T) {
	rl := NewRateLimiter(10, 3)

	// The bucket starts full; the burst goes through immediately.
	for i := 0; i < 3; i++ {
		if !rl.tryAcquire() {
			t.Fatalf("burst acquire %d failed", i)
		}
	}
	if rl.tryAcquire() {
		t.Fatal("acquire beyond burst succeeded")
	}
}

func TestRefill(t *testing.T) {
	rl := NewRateLimiter(1000, 1)
	if !rl.tryAcquire() {
		t.Fatal("initial acquire failed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := rl.Wait(ctx); err != nil {
		t.Fatalf("Wait did not see refill: %v", err)
	}
}

func TestWaitHonorsCancel(t *testing.T) {
	rl := NewRateLimiter(0.001, 1)
	rl.tryAcquire() // drain

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := rl.Wait(ctx); err == nil {
		t.Fatal("Wait returned nil on cancelled context")
	}
}

func TestTokensCapped(t *testing.T) {
	rl := NewRateLimiter(1000, 5)
	time.Sleep(20 * time.Millisecond)
	if got := rl.Tokens(); got > 5 {
		t.Fatalf("tokens = %v, want <= burst", got)
	}
}
