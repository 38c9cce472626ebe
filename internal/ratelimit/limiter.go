// Package ratelimit implements the per-source-IP admission control that
// guards Node.handleDatagram before a datagram is ever opened (spec.md
// §5/§7): a token bucket per source IP bounded by an LRU so a single
// spoofed or flooding address can't grow memory without bound.
package ratelimit

import (
	"container/list"
	"sync"
	"time"

	"github.com/omertanet/omerta/internal/meshcore"
)

const (
	// DefaultRate is the default allowed datagrams per second per source IP.
	DefaultRate = 10
	// DefaultBurst is the default burst size (token bucket depth) per source IP.
	DefaultBurst = 20
	// DefaultMaxIPs bounds how many source IPs are tracked simultaneously.
	// Past this the least-recently-seen IP is evicted to admit a new one.
	DefaultMaxIPs = 4096
)

// bucket is a token bucket for a single source IP.
type bucket struct {
	tokens   float64
	lastFill time.Time
}

// ipEntry is a tracked bucket keyed by source IP, held in the LRU list.
type ipEntry struct {
	ip  string
	bkt *bucket
}

// IPRateLimiter admits or rejects datagrams per source IP using token
// buckets, evicting the least-recently-seen IP once maxIPs is exceeded.
type IPRateLimiter struct {
	mu      sync.Mutex
	rate    float64 // tokens per second
	burst   float64 // maximum token depth
	maxIPs  int
	buckets map[string]*list.Element
	lru     *list.List
	denied  uint64
}

// New constructs an IPRateLimiter with the given rate, burst, and tracked-IP
// ceiling; non-positive values fall back to the package defaults.
func New(rate, burst float64, maxIPs int) *IPRateLimiter {
	if rate <= 0 {
		rate = DefaultRate
	}
	if burst <= 0 {
		burst = DefaultBurst
	}
	if maxIPs <= 0 {
		maxIPs = DefaultMaxIPs
	}
	return &IPRateLimiter{
		rate:    rate,
		burst:   burst,
		maxIPs:  maxIPs,
		buckets: make(map[string]*list.Element, maxIPs),
		lru:     list.New(),
	}
}

// NewDefault constructs an IPRateLimiter using DefaultRate, DefaultBurst,
// and DefaultMaxIPs.
func NewDefault() *IPRateLimiter {
	return New(DefaultRate, DefaultBurst, DefaultMaxIPs)
}

// Allow consumes one token from ip's bucket and reports whether the
// datagram should be admitted. A denial comes back as a *meshcore.Error of
// KindRateLimited so callers can log or branch on it the same way they do
// for any other core error, rather than a bare bool.
func (l *IPRateLimiter) Allow(ip string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()

	if elem, exists := l.buckets[ip]; exists {
		bkt := elem.Value.(*ipEntry).bkt
		elapsed := now.Sub(bkt.lastFill).Seconds()
		bkt.tokens += elapsed * l.rate
		if bkt.tokens > l.burst {
			bkt.tokens = l.burst
		}
		bkt.lastFill = now
		l.lru.MoveToFront(elem)

		if bkt.tokens < 1 {
			l.denied++
			return false, meshcore.New(meshcore.KindRateLimited, "ratelimit", "allow", nil)
		}
		bkt.tokens--
		return true, nil
	}

	if l.lru.Len() >= l.maxIPs {
		if oldest := l.lru.Back(); oldest != nil {
			l.lru.Remove(oldest)
			delete(l.buckets, oldest.Value.(*ipEntry).ip)
		}
	}

	bkt := &bucket{tokens: l.burst - 1, lastFill: now}
	elem := l.lru.PushFront(&ipEntry{ip: ip, bkt: bkt})
	l.buckets[ip] = elem
	return true, nil
}

// Denied returns the running count of datagrams this limiter has rejected,
// for diagnostics alongside the per-denial log line in handleDatagram.
func (l *IPRateLimiter) Denied() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.denied
}

// Reset clears all bucket and denial-count state. Used by tests to start
// each case from a clean limiter.
func (l *IPRateLimiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buckets = make(map[string]*list.Element, l.maxIPs)
	l.lru.Init()
	l.denied = 0
}
