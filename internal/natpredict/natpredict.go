// Package natpredict infers this node's own NAT type from peer-observed
// endpoints (spec.md C8 / §4.3), superseding STUN-based detection per the
// spec's own open question. Grounded on the teacher's per-reporter
// observation bookkeeping style in pkg/discovery/stun.go's result caching,
// rewritten around peer observations instead of a STUN server round trip.
package natpredict

import "sync"

// NATType is the inferred classification of this node's NAT behavior.
type NATType string

const (
	Unknown             NATType = "unknown"
	Public               NATType = "public"
	PortRestrictedCone   NATType = "port_restricted_cone"
	Symmetric            NATType = "symmetric"
)

// DefaultMinObservations is the minimum distinct reporters required before
// a non-unknown classification is returned.
const DefaultMinObservations = 2

// Predictor tracks the latest endpoint observation reported by each peer.
type Predictor struct {
	minObservations int
	localEndpoint   string // if set, matches "public" classification

	mu           sync.RWMutex
	observations map[string]string // reporter peer_id -> observed "host:port"
}

// New constructs a Predictor. localEndpoint, if non-empty, is compared
// against unanimous observations to distinguish public from
// port-restricted-cone.
func New(minObservations int, localEndpoint string) *Predictor {
	if minObservations <= 0 {
		minObservations = DefaultMinObservations
	}
	return &Predictor{
		minObservations: minObservations,
		localEndpoint:   localEndpoint,
		observations:    make(map[string]string),
	}
}

// Observe records reporter's report of this node's observed endpoint,
// replacing any prior observation from the same reporter.
func (p *Predictor) Observe(reporterPeerID, observedEndpoint string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observations[reporterPeerID] = observedEndpoint
}

// Result is the predictor's current classification and its confidence
// (the count of distinct reporters behind it).
type Result struct {
	NATType        NATType
	Confidence     int
	PublicEndpoint string // set only when NATType == Public
}

// Predict classifies the current NAT type from all observations so far.
func (p *Predictor) Predict() Result {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if len(p.observations) < p.minObservations {
		return Result{NATType: Unknown, Confidence: len(p.observations)}
	}

	var first string
	unanimous := true
	for _, endpoint := range p.observations {
		if first == "" {
			first = endpoint
			continue
		}
		if endpoint != first {
			unanimous = false
			break
		}
	}

	confidence := len(p.observations)
	if unanimous {
		if p.localEndpoint != "" && first == p.localEndpoint {
			return Result{NATType: Public, Confidence: confidence, PublicEndpoint: first}
		}
		return Result{NATType: PortRestrictedCone, Confidence: confidence}
	}
	return Result{NATType: Symmetric, Confidence: confidence}
}

// Reset clears all observations.
func (p *Predictor) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observations = make(map[string]string)
}
