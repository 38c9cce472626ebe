package node

import (
	"encoding/base64"
	"encoding/json"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/omertanet/omerta/internal/endpoints"
	"github.com/omertanet/omerta/internal/meshcore"
	"github.com/omertanet/omerta/internal/natpredict"
	"github.com/omertanet/omerta/internal/wire"
)

// bestEndpointForPeer resolves peerID to the endpoint manager's best known
// endpoint for that peer's most-recently-observed machine, per I6.
func (n *Node) bestEndpointForPeer(peerID string) (string, bool) {
	machine, ok := n.registry.MostRecentMachine(peerID)
	if !ok {
		return "", false
	}
	return n.endpointMgr.GetBestEndpoint(peerID, machine)
}

// sealAndSend signs nothing further (env is already signed); it seals env
// under the network datagram key and writes it to addr.
func (n *Node) sealAndSend(env *wire.Envelope, addr *net.UDPAddr) error {
	if !n.sendLimit.Allow() {
		return meshcore.New(meshcore.KindSendFailed, "node", "send", nil)
	}
	sealed, err := wire.SealEnvelope(n.datagramKey, env, false)
	if err != nil {
		return meshcore.New(meshcore.KindSendFailed, "node", "send", err)
	}
	if err := n.transport.SendTo(sealed, addr); err != nil {
		return meshcore.New(meshcore.KindSendFailed, "node", "send", err)
	}
	if env.ToPeerID != "" {
		if machine, ok := n.registry.MostRecentMachine(env.ToPeerID); ok {
			n.endpointMgr.RecordSendSuccess(env.ToPeerID, machine, addr.String())
		}
	}
	return nil
}

// sendRawTo writes an already-sealed datagram verbatim to endpoint, for
// the relay forwarder (this node never decrypts a forwarded payload).
func (n *Node) sendRawTo(endpoint string, data []byte) error {
	addr, err := net.ResolveUDPAddr("udp", endpoint)
	if err != nil {
		return meshcore.New(meshcore.KindMalformedEndpoint, "node", "relay_forward", err)
	}
	return n.transport.SendTo(data, addr)
}

// sendToEndpoint signs and seals payload addressed to toPeerID/channel and
// sends it to a specific endpoint (bypassing route selection).
func (n *Node) sendToEndpoint(toPeerID, channel string, payload wire.Payload, endpoint string) error {
	addr, err := net.ResolveUDPAddr("udp", endpoint)
	if err != nil {
		return meshcore.New(meshcore.KindMalformedEndpoint, "node", "send", err)
	}
	env, err := wire.Sign(n.cfg.Identity.PrivateKey, n.cfg.Identity.PublicKey, n.cfg.Identity.PeerID, string(n.cfg.MachineID), toPeerID, channel, payload, nowSeconds())
	if err != nil {
		return meshcore.New(meshcore.KindSendFailed, "node", "send", err)
	}
	return n.sealAndSend(env, addr)
}

// SendOnChannel sends data to toPeerID on channel, selecting the best
// available route: direct via the endpoint manager, or via relay if this
// node has learned potential relays and has no direct endpoint.
func (n *Node) SendOnChannel(data []byte, toPeerID, channel string) error {
	return n.SendToPeer(wire.Payload{Kind: wire.KindData, Data: &wire.DataPayload{Bytes: data}}, toPeerID, channel)
}

// SendToPeer sends payload to toPeerID, per spec.md §5's send_to_peer
// routing rule: a peer with a known-symmetric NAT tries relay first (a
// direct attempt with a symmetric peer virtually never succeeds and only
// costs a round trip), falling back to direct delivery if no relay
// reaches it; every other peer retries across its known endpoints in
// sliding-window order (§4.2) before falling back to relay.
func (n *Node) SendToPeer(payload wire.Payload, toPeerID, channel string) error {
	if n.peerIsSymmetricNAT(toPeerID) {
		if err := n.SendViaRelay(payload, toPeerID, channel); err == nil {
			return nil
		}
		return n.sendWithEndpointRetry(toPeerID, channel, payload)
	}
	if n.sendWithEndpointRetry(toPeerID, channel, payload) == nil {
		return nil
	}
	return n.SendViaRelay(payload, toPeerID, channel)
}

// peerIsSymmetricNAT reports whether toPeerID's most-recently-observed
// machine last self-reported a symmetric NAT, per ping/pong's MyNATType
// field recorded by endpoints.Manager.UpdateNATType.
func (n *Node) peerIsSymmetricNAT(toPeerID string) bool {
	machine, ok := n.registry.MostRecentMachine(toPeerID)
	if !ok {
		return false
	}
	natType, ok := n.endpointMgr.GetNATType(toPeerID, machine)
	return ok && natType == string(natpredict.Symmetric)
}

// sendWithEndpointRetry tries every known endpoint for toPeerID's
// most-recently-observed machine, ordered by endpoints.SlidingWindowRetry
// with a budget of n.cfg.Retry.MaxAttempts, backing off between rounds per
// n.cfg.Retry.Delay. Returns the last error if every round fails.
func (n *Node) sendWithEndpointRetry(toPeerID, channel string, payload wire.Payload) error {
	machine, ok := n.registry.MostRecentMachine(toPeerID)
	if !ok {
		return meshcore.New(meshcore.KindPeerNotFound, "node", "send_to_peer", nil)
	}
	eps := n.endpointMgr.GetEndpoints(toPeerID, machine)
	if len(eps) == 0 {
		return meshcore.New(meshcore.KindPeerNotFound, "node", "send_to_peer", nil)
	}

	rounds := endpoints.SlidingWindowRetry(len(eps), n.cfg.Retry.MaxAttempts)
	var lastErr error
	for round, indices := range rounds {
		if round > 0 {
			time.Sleep(n.cfg.Retry.Delay(round - 1))
		}
		for _, idx := range indices {
			if err := n.sendToEndpoint(toPeerID, channel, payload, eps[idx]); err == nil {
				return nil
			} else {
				lastErr = err
			}
		}
	}
	if lastErr == nil {
		lastErr = meshcore.New(meshcore.KindPeerNotFound, "node", "send_to_peer", nil)
	}
	return lastErr
}

// SendViaRelay wraps payload in a relay_forward and sends it through the
// most-recently-recorded potential relay for toPeerID, trying candidates in
// order until one is reachable.
func (n *Node) SendViaRelay(payload wire.Payload, toPeerID, channel string) error {
	env, err := wire.Sign(n.cfg.Identity.PrivateKey, n.cfg.Identity.PublicKey, n.cfg.Identity.PeerID, string(n.cfg.MachineID), toPeerID, channel, payload, nowSeconds())
	if err != nil {
		return meshcore.New(meshcore.KindSendFailed, "node", "send_via_relay", err)
	}
	inner, err := wire.SealEnvelope(n.datagramKey, env, false)
	if err != nil {
		return meshcore.New(meshcore.KindSendFailed, "node", "send_via_relay", err)
	}

	for _, relayPeer := range n.relayTable.Candidates(toPeerID) {
		relayEndpoint, ok := n.bestEndpointForPeer(relayPeer)
		if !ok {
			continue
		}
		forwardEnv, err := wire.Sign(n.cfg.Identity.PrivateKey, n.cfg.Identity.PublicKey, n.cfg.Identity.PeerID, string(n.cfg.MachineID), relayPeer, "", wire.Payload{
			Kind:         wire.KindRelayForward,
			RelayForward: &wire.RelayForwardPayload{TargetPeerID: toPeerID, PayloadBytes: inner},
		}, nowSeconds())
		if err != nil {
			continue
		}
		addr, err := net.ResolveUDPAddr("udp", relayEndpoint)
		if err != nil {
			continue
		}
		if err := n.sealAndSend(forwardEnv, addr); err == nil {
			return nil
		}
	}
	return meshcore.New(meshcore.KindNoRelayAvailable, "node", "send_via_relay", nil)
}

// SendAndReceive sends a request payload to toPeerID and blocks until a
// matching response arrives, the timeout elapses, or the node is stopped
// (which returns a not_started error).
func (n *Node) SendAndReceive(data []byte, toPeerID string, timeout time.Duration) ([]byte, error) {
	requestID := uuid.New().String()
	ch := make(chan []byte, 1)

	n.pendingMu.Lock()
	n.pending[requestID] = ch
	n.pendingMu.Unlock()
	defer func() {
		n.pendingMu.Lock()
		delete(n.pending, requestID)
		n.pendingMu.Unlock()
	}()

	err := n.SendToPeer(wire.Payload{Kind: wire.KindRequest, Request: &wire.RequestPayload{RequestID: requestID, Bytes: data}}, toPeerID, "")
	if err != nil {
		return nil, err
	}

	n.mu.Lock()
	ctx := n.ctx
	n.mu.Unlock()
	var stopped <-chan struct{}
	if ctx != nil {
		stopped = ctx.Done()
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-stopped:
		return nil, meshcore.New(meshcore.KindNotStarted, "node", "send_and_receive", nil)
	case <-time.After(timeout):
		return nil, meshcore.New(meshcore.KindTimeout, "node", "send_and_receive", nil)
	}
}

// Respond sends a response payload back to toPeerID correlated by
// requestID.
func (n *Node) Respond(toPeerID, requestID string, data []byte) error {
	return n.SendToPeer(wire.Payload{Kind: wire.KindResponse, Response: &wire.ResponsePayload{RequestID: requestID, Bytes: data}}, toPeerID, "")
}

// FindPeer asks toPeerID (typically a bootstrap or well-connected peer)
// whether it knows peerID, per the find_peer/peer_info/peer_not_found
// exchange.
func (n *Node) FindPeer(peerID, toPeerID string) error {
	return n.SendToPeer(wire.Payload{Kind: wire.KindFindPeer, FindPeer: &wire.FindPeerPayload{PeerID: peerID}}, toPeerID, "")
}

// QueryRecent sends a who_has_recent query for peerID to toPeerID through
// SendToPeer's routing, rate-limited by the freshness query interval (a
// query inside the interval is skipped and returns nil).
func (n *Node) QueryRecent(peerID, toPeerID string) error {
	if !n.freshQuery.ShouldQuery(peerID) {
		return nil
	}
	return n.SendToPeer(wire.Payload{Kind: wire.KindWhoHasRecent, WhoHasRecent: &wire.WhoHasRecentPayload{
		PeerID:        peerID,
		MaxAgeSeconds: int(n.cfg.FreshnessMaxAge.Seconds()),
	}}, toPeerID, "")
}

// AnnounceSelf builds and gossips a signed PeerAnnouncement for this node
// to toPeerID.
func (n *Node) AnnounceSelf(toPeerID string, reachability []wire.Reachability, capabilities []string, ttl time.Duration) error {
	ann := wire.PeerAnnouncement{
		PeerID:       n.cfg.Identity.PeerID,
		PublicKey:    base64.StdEncoding.EncodeToString(n.cfg.Identity.PublicKey),
		Reachability: reachability,
		Capabilities: capabilities,
		Timestamp:    nowSeconds(),
		TTLSeconds:   int(ttl.Seconds()),
	}
	cp := ann
	cp.Signature = ""
	digest, err := json.Marshal(cp)
	if err != nil {
		return meshcore.New(meshcore.KindSendFailed, "node", "announce", err)
	}
	ann.Signature = base64.StdEncoding.EncodeToString(n.cfg.Identity.Sign(digest))

	return n.SendToPeer(wire.Payload{Kind: wire.KindAnnounce, Announce: &wire.AnnouncePayload{Announcement: ann}}, toPeerID, "")
}
