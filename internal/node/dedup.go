package node

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultDedupWindow and DefaultDedupCapacity bound the message_id
// deduplication set per spec.md I2/P2.
const (
	DefaultDedupWindow   = 60 * time.Second
	DefaultDedupCapacity = 4096
)

// dedupSet remembers recently-seen message_ids so a duplicate envelope
// never re-runs application-level side effects, per I2. Grounded on the
// same LRU-of-recency idiom as freshness.RecentContactTracker.
type dedupSet struct {
	window time.Duration

	mu    sync.Mutex
	cache *lru.Cache[string, time.Time]
}

func newDedupSet(capacity int, window time.Duration) (*dedupSet, error) {
	if capacity <= 0 {
		capacity = DefaultDedupCapacity
	}
	if window <= 0 {
		window = DefaultDedupWindow
	}
	cache, err := lru.New[string, time.Time](capacity)
	if err != nil {
		return nil, err
	}
	return &dedupSet{window: window, cache: cache}, nil
}

// seen records messageID and reports whether it is a duplicate within the
// dedup window (true = duplicate, caller must drop before any side
// effect).
func (d *dedupSet) seen(messageID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if at, ok := d.cache.Get(messageID); ok && time.Since(at) < d.window {
		return true
	}
	d.cache.Add(messageID, time.Now())
	return false
}
