// Package gossip implements the bounded-fanout propagation queue and
// first-hand tagging of spec.md C11. Grounded on the teacher's
// getKnownPeers/updateTransitivePeers pair
// (atvirokodosprendimai/wgmesh/pkg/discovery/exchange.go), generalized from
// "send everything we know" to a decrementing per-peer propagation budget.
package gossip

import (
	"sync"
	"time"

	"github.com/omertanet/omerta/internal/wire"
)

// DefaultFanout is the propagation count assigned to a newly learned peer.
const DefaultFanout = 5

// DefaultMaxPerMessage caps how many peer entries ride in one outbound
// ping/pong.
const DefaultMaxPerMessage = 10

// ReconnectWindow: a peer with no recent contact within this window is
// treated as new/reconnecting and triggers a full-list request.
const ReconnectWindow = 60 * time.Second

type propagationItem struct {
	info  wire.PeerEndpointInfo
	count int
}

// Engine owns the propagation queue and the first-hand set for one node.
type Engine struct {
	selfPeerID    string
	fanout        int
	maxPerMessage int

	mu        sync.Mutex
	queue     map[string]*propagationItem // peer_id -> item
	firstHand map[string]bool
}

// Config configures an Engine; zero fields take spec defaults.
type Config struct {
	Fanout        int
	MaxPerMessage int
}

// New constructs a gossip Engine for a node identified by selfPeerID (never
// gossiped about itself, per I5/P6).
func New(selfPeerID string, cfg Config) *Engine {
	if cfg.Fanout <= 0 {
		cfg.Fanout = DefaultFanout
	}
	if cfg.MaxPerMessage <= 0 {
		cfg.MaxPerMessage = DefaultMaxPerMessage
	}
	return &Engine{
		selfPeerID:    selfPeerID,
		fanout:        cfg.Fanout,
		maxPerMessage: cfg.MaxPerMessage,
		queue:         make(map[string]*propagationItem),
		firstHand:     make(map[string]bool),
	}
}

// Learn adds info to the propagation queue. Per I4, a peer already in the
// queue keeps its current count rather than being reset to fanout; only a
// genuinely new entry starts at fanout. Self is never queued (I5).
func (e *Engine) Learn(info wire.PeerEndpointInfo) {
	if info.PeerID == e.selfPeerID {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.queue[info.PeerID]; ok {
		return
	}
	e.queue[info.PeerID] = &propagationItem{info: info, count: e.fanout}
}

// MarkFirstHand records that this node directly exchanged a message with
// peerID (as opposed to having only heard about it via gossip).
func (e *Engine) MarkFirstHand(peerID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.firstHand[peerID] = true
}

// IsFirstHand reports whether peerID is in the first-hand set.
func (e *Engine) IsFirstHand(peerID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.firstHand[peerID]
}

// BuildOutboundList drains the queue (decrementing each included item,
// removing it at 0) into an outbound peer list for a ping/pong addressed to
// recipientPeerID, which is excluded from the result (never tell a peer
// about itself) along with self (I5).
func (e *Engine) BuildOutboundList(recipientPeerID string) []wire.PeerEndpointInfo {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]wire.PeerEndpointInfo, 0, e.maxPerMessage)
	for peerID, item := range e.queue {
		if len(out) >= e.maxPerMessage {
			break
		}
		if peerID == recipientPeerID || peerID == e.selfPeerID {
			continue
		}
		info := item.info
		info.IsFirstHand = e.firstHand[peerID]
		out = append(out, info)

		item.count--
		if item.count <= 0 {
			delete(e.queue, peerID)
		}
	}
	return out
}

// QueueLen returns the number of peers still pending propagation.
func (e *Engine) QueueLen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue)
}

// CountFor returns the current propagation count for peerID, for tests and
// diagnostics.
func (e *Engine) CountFor(peerID string) (int, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	item, ok := e.queue[peerID]
	if !ok {
		return 0, false
	}
	return item.count, true
}

// NeedsFullListRequest decides whether an outgoing ping to peerID should
// set request_full_list, per spec.md §4.5: true when the peer is new
// (endpoint known but unseen) or reconnecting (no recent contact within
// ReconnectWindow), or has no known endpoint at all.
func NeedsFullListRequest(hasEndpoint bool, lastContact time.Time) bool {
	if !hasEndpoint {
		return true
	}
	if lastContact.IsZero() {
		return true
	}
	return time.Since(lastContact) > ReconnectWindow
}
