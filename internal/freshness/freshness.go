// Package freshness implements the three freshness sub-caches of spec.md C9:
// a recent-contact tracker, a rate-limited path-failure reporter that never
// broadcasts, and a freshness query that probes the mesh for a peer this
// node currently lacks. Grounded on the teacher's periodic peer-cache
// expiry idiom (atvirokodosprendimai/wgmesh/pkg/daemon/cache.go
// CacheExpiration / RestoreFromCache), applied to an in-memory LRU of
// recency instead of a peer cache.
package freshness

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/omertanet/omerta/internal/wire"
)

// ConnectionType classifies how a recent contact was reached.
type ConnectionType string

const (
	ConnectionDirect         ConnectionType = "direct"
	ConnectionInboundDirect  ConnectionType = "inbound_direct"
	ConnectionViaRelay       ConnectionType = "via_relay"
	ConnectionHolePunched    ConnectionType = "hole_punched"
)

// DefaultMaxContacts is the default RecentContactTracker LRU capacity.
const DefaultMaxContacts = 500

// DefaultMaxAge is the default contact freshness window.
const DefaultMaxAge = 300 * time.Second

// Contact is one recent-contact record.
type Contact struct {
	PeerID         string
	LastSeen       time.Time
	Reachability   wire.Reachability
	LatencyMS      int
	ConnectionType ConnectionType
	path           string // the reachability path this contact was reached via, for remove_contacts_using_path
}

// RecentContactTracker is an LRU of recent peer contacts.
type RecentContactTracker struct {
	maxAge time.Duration

	mu    sync.RWMutex
	cache *lru.Cache[string, *Contact]
}

// NewRecentContactTracker constructs a tracker with the given capacity and
// max age; non-positive values fall back to the spec defaults.
func NewRecentContactTracker(capacity int, maxAge time.Duration) (*RecentContactTracker, error) {
	if capacity <= 0 {
		capacity = DefaultMaxContacts
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	inner, err := lru.New[string, *Contact](capacity)
	if err != nil {
		return nil, err
	}
	return &RecentContactTracker{maxAge: maxAge, cache: inner}, nil
}

// Touch records (or refreshes) contact with peerID.
func (t *RecentContactTracker) Touch(peerID string, reach wire.Reachability, latencyMS int, connType ConnectionType, path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cache.Add(peerID, &Contact{
		PeerID:         peerID,
		LastSeen:       time.Now(),
		Reachability:   reach,
		LatencyMS:      latencyMS,
		ConnectionType: connType,
		path:           path,
	})
}

// HasRecentContact reports whether peerID was contacted within maxAge (or
// the tracker's default max age, if maxAge <= 0).
func (t *RecentContactTracker) HasRecentContact(peerID string, maxAge time.Duration) bool {
	if maxAge <= 0 {
		maxAge = t.maxAge
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	contact, ok := t.cache.Peek(peerID)
	if !ok {
		return false
	}
	return time.Since(contact.LastSeen) <= maxAge
}

// Get returns the contact record for peerID, if present.
func (t *RecentContactTracker) Get(peerID string) (*Contact, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.cache.Peek(peerID)
	if !ok {
		return nil, false
	}
	cp := *c
	return &cp, true
}

// RemoveContactsUsingPath evicts every contact whose reachability path
// equals path (structural equality), e.g. after that path is reported
// failed.
func (t *RecentContactTracker) RemoveContactsUsingPath(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, key := range t.cache.Keys() {
		if c, ok := t.cache.Peek(key); ok && c.path == path {
			t.cache.Remove(key)
		}
	}
}

// DefaultReportInterval is the minimum interval between repeated failure
// reports for the same (peer, path).
const DefaultReportInterval = 60 * time.Second

// PathFailureReporter tracks locally-known failed paths with a rate limit
// on repeated reports. Failures are never broadcast to other peers: this is
// local-only bookkeeping (spec.md §4.6).
type PathFailureReporter struct {
	reportInterval time.Duration

	mu           sync.Mutex
	lastReported map[string]time.Time // "peer_id|path" -> last report time
	failed       map[string]bool
}

// NewPathFailureReporter constructs a reporter with the given rate-limit
// interval (<=0 uses DefaultReportInterval).
func NewPathFailureReporter(reportInterval time.Duration) *PathFailureReporter {
	if reportInterval <= 0 {
		reportInterval = DefaultReportInterval
	}
	return &PathFailureReporter{
		reportInterval: reportInterval,
		lastReported:   make(map[string]time.Time),
		failed:         make(map[string]bool),
	}
}

// ReportFailure records path as failed for peerID, rate-limited per
// reportInterval. Returns true if this call actually recorded a new report
// (i.e. was not suppressed by the rate limit).
func (r *PathFailureReporter) ReportFailure(peerID, path string) bool {
	key := peerID + "|" + path
	r.mu.Lock()
	defer r.mu.Unlock()

	if last, ok := r.lastReported[key]; ok && time.Since(last) < r.reportInterval {
		return false
	}
	r.lastReported[key] = time.Now()
	r.failed[key] = true
	return true
}

// IsFailed reports whether (peerID, path) is currently marked failed.
func (r *PathFailureReporter) IsFailed(peerID, path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failed[peerID+"|"+path]
}

// DefaultQueryMaxHops and DefaultQueryInterval are the spec.md §6 freshness
// query defaults.
const (
	DefaultQueryMaxHops   = 3
	DefaultQueryInterval  = 30 * time.Second
)

// FreshnessQuery rate-limits outbound who_has_recent queries per peer and
// bounds their propagation hop count.
type FreshnessQuery struct {
	maxHops      int
	queryInterval time.Duration

	mu         sync.Mutex
	lastQueried map[string]time.Time
}

// NewFreshnessQuery constructs a query limiter with the given hop cap and
// per-peer interval (non-positive values use the spec defaults).
func NewFreshnessQuery(maxHops int, queryInterval time.Duration) *FreshnessQuery {
	if maxHops <= 0 {
		maxHops = DefaultQueryMaxHops
	}
	if queryInterval <= 0 {
		queryInterval = DefaultQueryInterval
	}
	return &FreshnessQuery{
		maxHops:       maxHops,
		queryInterval: queryInterval,
		lastQueried:   make(map[string]time.Time),
	}
}

// ShouldQuery reports whether a who_has_recent(peerID) may be sent now,
// recording the attempt if so.
func (q *FreshnessQuery) ShouldQuery(peerID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if last, ok := q.lastQueried[peerID]; ok && time.Since(last) < q.queryInterval {
		return false
	}
	q.lastQueried[peerID] = time.Now()
	return true
}

// MaxHops returns the configured max_hops for who_has_recent propagation.
func (q *FreshnessQuery) MaxHops() int {
	return q.maxHops
}

// ShouldForward reports whether an incoming who_has_recent with the given
// remaining hop count should be re-forwarded: true while remainingHops is
// still positive.
func (q *FreshnessQuery) ShouldForward(remainingHops int) bool {
	return remainingHops > 0
}
