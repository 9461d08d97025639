package limiter_test

import (
	"context"
	"testing"
	"time"

	"github.com/rohmanhakim/webarchiver/pkg/limiter"
)

func TestNewConcurrentRateLimiter(t *testing.T) {
	rl := limiter.NewConcurrentRateLimiter()

	if rl == nil {
		t.Fatal("NewConcurrentRateLimiter returned nil")
	}

	if rl.GetBaseDelay() != 0 {
		t.Errorf("default baseDelay = %v, want 0", rl.GetBaseDelay())
	}

	if rl.GetHostTimings() == nil {
		t.Error("hostTimings map not initialized")
	}
}

func TestRateLimiter_SetBaseDelay(t *testing.T) {
	rl := limiter.NewConcurrentRateLimiter()
	rl.SetBaseDelay(750 * time.Millisecond)

	if rl.GetBaseDelay() != 750*time.Millisecond {
		t.Errorf("baseDelay = %v, want 750ms", rl.GetBaseDelay())
	}
}

func TestRateLimiter_Acquire_ZeroDelayIsNoop(t *testing.T) {
	rl := limiter.NewConcurrentRateLimiter()
	host := "example.com"

	start := time.Now()
	for i := 0; i < 100; i++ {
		if err := rl.Acquire(context.Background(), host); err != nil {
			t.Fatalf("Acquire returned error: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("100 zero-delay acquires took %v, want near-instant", elapsed)
	}

	// Zero delay must not record timings either
	if _, exists := rl.LastGrantAt(host); exists {
		t.Error("zero-delay Acquire recorded a grant timestamp")
	}
}

func TestRateLimiter_Acquire_FirstGrantIsImmediate(t *testing.T) {
	rl := limiter.NewConcurrentRateLimiter()
	rl.SetBaseDelay(1 * time.Second)
	host := "example.com"

	start := time.Now()
	if err := rl.Acquire(context.Background(), host); err != nil {
		t.Fatalf("Acquire returned error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("first Acquire took %v, want near-instant", elapsed)
	}

	if _, exists := rl.LastGrantAt(host); !exists {
		t.Error("Acquire did not record a grant timestamp")
	}
}

func TestRateLimiter_Acquire_EnforcesSpacing(t *testing.T) {
	rl := limiter.NewConcurrentRateLimiter()
	rl.SetBaseDelay(120 * time.Millisecond)
	host := "example.com"

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := rl.Acquire(context.Background(), host); err != nil {
			t.Fatalf("Acquire %d returned error: %v", i, err)
		}
	}
	elapsed := time.Since(start)

	// Three grants at 120ms spacing: first immediate, two waits
	if elapsed < 240*time.Millisecond {
		t.Errorf("3 acquires took %v, want at least 240ms", elapsed)
	}
}

func TestRateLimiter_Acquire_HostsAreIndependent(t *testing.T) {
	rl := limiter.NewConcurrentRateLimiter()
	rl.SetBaseDelay(300 * time.Millisecond)

	start := time.Now()
	hosts := []string{"a.example", "b.example", "c.example"}
	for _, h := range hosts {
		if err := rl.Acquire(context.Background(), h); err != nil {
			t.Fatalf("Acquire(%s) returned error: %v", h, err)
		}
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("first grants across 3 hosts took %v, want near-instant", elapsed)
	}
}

func TestRateLimiter_Acquire_ContextCancellation(t *testing.T) {
	rl := limiter.NewConcurrentRateLimiter()
	rl.SetBaseDelay(5 * time.Second)
	host := "example.com"

	// Consume the immediate slot
	if err := rl.Acquire(context.Background(), host); err != nil {
		t.Fatalf("first Acquire returned error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := rl.Acquire(ctx, host)
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("Acquire with cancelled context returned nil error")
	}
	if elapsed > 1*time.Second {
		t.Errorf("cancelled Acquire took %v, want prompt return", elapsed)
	}
}

func TestRateLimiter_GetHostTimings_ReturnsCopy(t *testing.T) {
	rl := limiter.NewConcurrentRateLimiter()
	rl.SetBaseDelay(10 * time.Millisecond)
	if err := rl.Acquire(context.Background(), "example.com"); err != nil {
		t.Fatalf("Acquire returned error: %v", err)
	}

	timings := rl.GetHostTimings()
	if len(timings) != 1 {
		t.Fatalf("len(timings) = %d, want 1", len(timings))
	}

	// Mutating the returned map must not affect the limiter
	delete(timings, "example.com")
	if _, exists := rl.LastGrantAt("example.com"); !exists {
		t.Error("mutating the copied map leaked into limiter state")
	}
}
