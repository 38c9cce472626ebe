package ratelimit

import (
	"fmt"
	"testing"
	"time"

	"github.com/omertanet/omerta/internal/meshcore"
)

func TestAllowUnderLimit(t *testing.T) {
	t.Parallel()
	l := New(10, 5, 100)

	for i := 0; i < 5; i++ {
		if ok, err := l.Allow("1.2.3.4"); !ok || err != nil {
			t.Errorf("message %d should be allowed (under burst), err=%v", i, err)
		}
	}
}

func TestAllowExceedsBurst(t *testing.T) {
	t.Parallel()
	l := New(10, 5, 100)

	for i := 0; i < 5; i++ {
		l.Allow("1.2.3.4")
	}

	ok, err := l.Allow("1.2.3.4")
	if ok {
		t.Error("message beyond burst should be denied")
	}
	coreErr, isCoreErr := meshcore.AsError(err)
	if !isCoreErr || coreErr.Kind != meshcore.KindRateLimited {
		t.Errorf("expected a KindRateLimited error, got %v", err)
	}
}

func TestAllowDifferentIPsIndependent(t *testing.T) {
	t.Parallel()
	l := New(10, 2, 100)

	l.Allow("10.0.0.1")
	l.Allow("10.0.0.1")
	if ok, _ := l.Allow("10.0.0.1"); ok {
		t.Error("10.0.0.1 should be rate limited")
	}

	if ok, _ := l.Allow("10.0.0.2"); !ok {
		t.Error("10.0.0.2 should not be rate limited (different IP)")
	}
}

func TestAllowRefillOverTime(t *testing.T) {
	t.Parallel()
	// 100 tokens/sec, burst=1 — exhausted immediately, refills after 10ms
	l := New(100, 1, 100)

	if ok, _ := l.Allow("1.2.3.4"); !ok {
		t.Fatal("first message should be allowed")
	}
	if ok, _ := l.Allow("1.2.3.4"); ok {
		t.Fatal("second message should be denied (bucket empty)")
	}

	time.Sleep(20 * time.Millisecond)

	if ok, _ := l.Allow("1.2.3.4"); !ok {
		t.Error("message should be allowed after refill period")
	}
}

func TestLRUEviction(t *testing.T) {
	t.Parallel()
	maxIPs := 5
	l := New(10, 10, maxIPs)

	for i := 0; i < maxIPs; i++ {
		ip := fmt.Sprintf("10.0.0.%d", i+1)
		l.Allow(ip)
	}

	l.mu.Lock()
	if l.lru.Len() != maxIPs {
		t.Errorf("expected %d tracked IPs, got %d", maxIPs, l.lru.Len())
	}
	l.mu.Unlock()

	l.Allow("192.168.1.1")

	l.mu.Lock()
	if l.lru.Len() != maxIPs {
		t.Errorf("after eviction: expected %d tracked IPs, got %d", maxIPs, l.lru.Len())
	}
	l.mu.Unlock()
}

func TestAllowConcurrentSafety(t *testing.T) {
	t.Parallel()
	l := NewDefault()

	done := make(chan struct{})
	for g := 0; g < 50; g++ {
		go func(id int) {
			ip := fmt.Sprintf("10.0.%d.1", id%10)
			for i := 0; i < 100; i++ {
				l.Allow(ip)
			}
			done <- struct{}{}
		}(g)
	}
	for i := 0; i < 50; i++ {
		<-done
	}
}

func TestDeniedCounter(t *testing.T) {
	t.Parallel()
	l := New(10, 1, 100)

	l.Allow("1.2.3.4")
	l.Allow("1.2.3.4")
	l.Allow("1.2.3.4")

	if got := l.Denied(); got != 2 {
		t.Errorf("expected 2 denials recorded, got %d", got)
	}
}

func TestReset(t *testing.T) {
	t.Parallel()
	l := New(10, 1, 100)

	l.Allow("1.2.3.4")
	if ok, _ := l.Allow("1.2.3.4"); ok {
		t.Fatal("should be rate limited before reset")
	}

	l.Reset()

	if ok, _ := l.Allow("1.2.3.4"); !ok {
		t.Error("should be allowed after reset")
	}
	if got := l.Denied(); got != 0 {
		t.Errorf("expected denial count cleared after reset, got %d", got)
	}
}
