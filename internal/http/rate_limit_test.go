package httpx

import (
	"testing"
	"time"
)

func TestMemoryRateLimiterEnforcesWindowBudget(t *testing.T) {
	rl := NewMemoryRateLimiter()
	defer rl.Close()

	for i := 0; i < 3; i++ {
		decision := rl.Allow("ip:10.0.0.1", 3, time.Minute)
		if !decision.allowed {
			t.Fatalf("request %d rejected under budget", i+1)
		}
		if decision.count != i+1 {
			t.Errorf("request %d: count = %d, want %d", i+1, decision.count, i+1)
		}
	}

	decision := rl.Allow("ip:10.0.0.1", 3, time.Minute)
	if decision.allowed {
		t.Fatal("fourth request admitted over budget")
	}
	if decision.windowEnd.IsZero() {
		t.Error("rejected decision missing window end")
	}
}

func TestMemoryRateLimiterKeysAreIndependent(t *testing.T) {
	rl := NewMemoryRateLimiter()
	defer rl.Close()

	if d := rl.Allow("ip:10.0.0.1", 1, time.Minute); !d.allowed {
		t.Fatal("first key rejected")
	}
	if d := rl.Allow("ip:10.0.0.1", 1, time.Minute); d.allowed {
		t.Fatal("first key admitted over budget")
	}
	if d := rl.Allow("ip:10.0.0.2", 1, time.Minute); !d.allowed {
		t.Fatal("second key rejected by first key's budget")
	}
}

func TestMemoryRateLimiterWindowReset(t *testing.T) {
	rl := NewMemoryRateLimiter()
	defer rl.Close()

	window := 10 * time.Millisecond
	if d := rl.Allow("ip:10.0.0.1", 1, window); !d.allowed {
		t.Fatal("first request rejected")
	}
	if d := rl.Allow("ip:10.0.0.1", 1, window); d.allowed {
		t.Fatal("second request admitted within window")
	}

	time.Sleep(2 * window)
	if d := rl.Allow("ip:10.0.0.1", 1, window); !d.allowed {
		t.Fatal("request rejected after window expired")
	}
}

func TestMemoryRateLimiterZeroLimitDisables(t *testing.T) {
	rl := NewMemoryRateLimiter()
	defer rl.Close()

	for i := 0; i < 10; i++ {
		if d := rl.Allow("ip:10.0.0.1", 0, time.Minute); !d.allowed {
			t.Fatal("zero limit should admit everything")
		}
	}
}
