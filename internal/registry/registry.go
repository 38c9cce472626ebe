// Package registry implements the bidirectional machine/peer association
// history (spec.md C6): which machine_id last spoke for a peer_id, and
// which peer_id last spoke from a machine_id. Grounded on the teacher's
// PeerStore map-plus-mutex shape
// (atvirokodosprendimai/wgmesh/pkg/daemon/peerstore.go), narrowed to just
// the association bookkeeping spec.md I6 requires.
package registry

import "sync"

// Registry tracks the most recent peer<->machine association seen in either
// direction.
type Registry struct {
	mu               sync.RWMutex
	mostRecentMachine map[string]string // peer_id -> machine_id
	mostRecentPeer    map[string]string // machine_id -> peer_id
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{
		mostRecentMachine: make(map[string]string),
		mostRecentPeer:    make(map[string]string),
	}
}

// Observe records that peer and machine were associated in an inbound
// envelope, updating both directions' "most recent" pointers.
func (r *Registry) Observe(peer, machine string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mostRecentMachine[peer] = machine
	r.mostRecentPeer[machine] = peer
}

// MostRecentMachine returns the machine_id most recently associated with
// peer. Per I6, callers that already have an inbound envelope's machine_id
// must use that value directly rather than calling this — it exists only
// for outbound routing when no envelope is in hand.
func (r *Registry) MostRecentMachine(peer string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.mostRecentMachine[peer]
	return m, ok
}

// MostRecentPeer returns the peer_id most recently associated with machine.
func (r *Registry) MostRecentPeer(machine string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.mostRecentPeer[machine]
	return p, ok
}
