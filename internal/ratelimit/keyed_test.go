package ratelimit

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/garyellow/edu-advisor/internal/metrics"
)

func newTestKeyed(cfg KeyedConfig) (*KeyedLimiter, *fakeClock) {
	clock := newFakeClock()
	kl := NewKeyedLimiter(cfg)
	kl.now = clock.Now
	return kl, clock
}

func TestKeyedLimiter_PerKey(t *testing.T) {
	t.Parallel()
	kl, _ := newTestKeyed(KeyedConfig{Name: "session", Burst: 1, RefillRate: 0.1})
	defer kl.Stop()

	if !kl.Allow("s1") {
		t.Error("s1 first message denied")
	}
	if kl.Allow("s1") {
		t.Error("s1 second message allowed with burst 1")
	}
	if !kl.Allow("s2") {
		t.Error("s2 first message denied")
	}
	if !kl.Allow("") {
		t.Error("empty key must not be limited")
	}
	if got := kl.ActiveCount(); got != 2 {
		t.Errorf("ActiveCount() = %d, want 2", got)
	}
}

func TestKeyedLimiter_RecordsDrops(t *testing.T) {
	t.Parallel()
	m := metrics.New(prometheus.NewRegistry())
	kl, _ := newTestKeyed(KeyedConfig{Name: "session", Burst: 1, RefillRate: 0, Metrics: m})
	defer kl.Stop()

	kl.Allow("s1")
	kl.Allow("s1")
	kl.Allow("s1")

	if got := testutil.ToFloat64(m.RateLimiterDropped.WithLabelValues("session")); got != 2 {
		t.Errorf("dropped = %v, want 2", got)
	}
}

func TestKeyedLimiter_RetryAfterAndForget(t *testing.T) {
	t.Parallel()
	kl, clock := newTestKeyed(KeyedConfig{Name: "session", Burst: 1, RefillRate: 0.2})
	defer kl.Stop()

	if got := kl.RetryAfter("unknown"); got != 0 {
		t.Errorf("RetryAfter(unknown) = %v, want 0", got)
	}

	kl.Allow("s1")
	if got := kl.RetryAfter("s1"); got != 5*time.Second {
		t.Errorf("RetryAfter(s1) = %v, want 5s", got)
	}

	clock.Advance(5 * time.Second)
	if !kl.Allow("s1") {
		t.Error("s1 denied after refill")
	}

	kl.Forget("s1")
	if got := kl.ActiveCount(); got != 0 {
		t.Errorf("ActiveCount() after Forget = %d, want 0", got)
	}
	if !kl.Allow("s1") {
		t.Error("forgotten key should start with a full bucket")
	}
}

func TestKeyedLimiter_Cleanup(t *testing.T) {
	t.Parallel()
	kl, clock := newTestKeyed(KeyedConfig{Name: "session", Burst: 2, RefillRate: 1})
	defer kl.Stop()

	kl.Allow("idle")
	kl.Allow("busy")
	kl.Allow("busy")

	clock.Advance(time.Second)
	if removed := kl.cleanup(); removed != 1 {
		t.Errorf("cleanup() removed %d, want 1", removed)
	}
	if got := kl.ActiveCount(); got != 1 {
		t.Errorf("ActiveCount() = %d, want 1", got)
	}

	clock.Advance(time.Second)
	kl.cleanup()
	if got := kl.ActiveCount(); got != 0 {
		t.Errorf("ActiveCount() = %d, want 0", got)
	}
}

func TestKeyedLimiter_CleanupLoop(t *testing.T) {
	t.Parallel()
	kl := NewKeyedLimiter(KeyedConfig{Name: "session", Burst: 10, RefillRate: 1000, CleanupPeriod: 20 * time.Millisecond})
	defer kl.Stop()

	kl.Allow("s1")

	deadline := time.Now().Add(2 * time.Second)
	for kl.ActiveCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("cleanup loop did not forget the idle key")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestKeyedLimiter_StopTwice(t *testing.T) {
	t.Parallel()
	kl := NewKeyedLimiter(KeyedConfig{Name: "session", Burst: 1, RefillRate: 1, CleanupPeriod: time.Hour})
	kl.Stop()
	kl.Stop()
}

func TestKeyedLimiter_Concurrent(t *testing.T) {
	t.Parallel()
	kl, _ := newTestKeyed(KeyedConfig{Name: "session", Burst: 5, RefillRate: 0})
	defer kl.Stop()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed = make(map[string]int)
	)
	for i := range 100 {
		wg.Go(func() {
			key := fmt.Sprintf("s%d", i%4)
			if kl.Allow(key) {
				mu.Lock()
				allowed[key]++
				mu.Unlock()
			}
		})
	}
	wg.Wait()

	for key, n := range allowed {
		if n != 5 {
			t.Errorf("%s allowed %d, want 5", key, n)
		}
	}
	if len(allowed) != 4 {
		t.Errorf("keys = %d, want 4", len(allowed))
	}
}
