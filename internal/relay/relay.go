// Package relay implements the opportunistic application-level relay of
// spec.md C13: a per-peer potential-relay table learned from gossip, and
// the forwarding accept/decline logic a relay-capable node applies to
// relay_forward requests. Grounded on the teacher's connection-forwarding
// loop in pkg/proxy/proxy.go (accept, look up destination, forward,
// report result back to the dialer) narrowed from a persistent TCP stream
// proxy to a single best-effort UDP datagram hop.
package relay

import (
	"sync"
	"time"
)

// MaxPotentialRelaysPerPeer caps how many relay candidates are tracked for
// a single symmetric peer.
const MaxPotentialRelaysPerPeer = 10

type relayCandidate struct {
	relayPeerID string
	recordedAt  time.Time
}

// Table tracks, per symmetric peer, the relays this node has learned
// about (via gossip) that might reach that peer. Most-recently-recorded
// candidate is tried first.
type Table struct {
	selfPeerID string

	mu         sync.RWMutex
	candidates map[string][]relayCandidate // forPeer -> candidates, most recent first
}

// NewTable constructs an empty potential-relay table for a node identified
// by selfPeerID.
func NewTable(selfPeerID string) *Table {
	return &Table{
		selfPeerID: selfPeerID,
		candidates: make(map[string][]relayCandidate),
	}
}

// Record adds viaRelay as a potential relay for forPeer, per spec.md's
// record_potential_relay: de-duplicated by relay_peer_id, most-recent
// first, capped at MaxPotentialRelaysPerPeer. Self and forPeer itself are
// never added (I5-adjacent: a peer cannot relay to itself and this node
// is never its own relay).
func (t *Table) Record(forPeer, viaRelay string) {
	if viaRelay == t.selfPeerID || viaRelay == forPeer {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	list := t.candidates[forPeer]
	filtered := list[:0:0]
	for _, c := range list {
		if c.relayPeerID != viaRelay {
			filtered = append(filtered, c)
		}
	}
	updated := append([]relayCandidate{{relayPeerID: viaRelay, recordedAt: time.Now()}}, filtered...)
	if len(updated) > MaxPotentialRelaysPerPeer {
		updated = updated[:MaxPotentialRelaysPerPeer]
	}
	t.candidates[forPeer] = updated
}

// Candidates returns the relay peer IDs for forPeer, most-recently-recorded
// first.
func (t *Table) Candidates(forPeer string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	list := t.candidates[forPeer]
	out := make([]string, len(list))
	for i, c := range list {
		out[i] = c.relayPeerID
	}
	return out
}

// Len reports how many candidates are tracked for forPeer.
func (t *Table) Len(forPeer string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.candidates[forPeer])
}

// Forwarder implements the relay-side accept/forward/report logic for a
// node that advertises can_relay.
type Forwarder struct {
	selfPeerID string
	sendRaw    func(endpoint string, data []byte) error
	lookupBest func(peerID string) (endpoint string, ok bool)
}

// NewForwarder constructs a Forwarder. sendRaw delivers an already-sealed
// datagram to a raw UDP endpoint; lookupBest resolves a peer_id to its
// best known endpoint (typically the endpoint manager's GetBestEndpoint
// across the peer's most-recent machine).
func NewForwarder(selfPeerID string, sendRaw func(endpoint string, data []byte) error, lookupBest func(peerID string) (string, bool)) *Forwarder {
	return &Forwarder{selfPeerID: selfPeerID, sendRaw: sendRaw, lookupBest: lookupBest}
}

// Forward handles an inbound relay_forward request: resolves targetPeerID
// to an endpoint and sends payloadBytes there verbatim (the payload is
// already a fully-formed sealed envelope addressed to the target; this
// node does not decrypt or interpret it). Returns whether the forward
// succeeded, for a relay_forward_result reply.
func (f *Forwarder) Forward(targetPeerID string, payloadBytes []byte) bool {
	if targetPeerID == f.selfPeerID {
		return false
	}
	endpoint, ok := f.lookupBest(targetPeerID)
	if !ok {
		return false
	}
	return f.sendRaw(endpoint, payloadBytes) == nil
}
