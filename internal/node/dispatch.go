package node

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/omertanet/omerta/internal/freshness"
	"github.com/omertanet/omerta/internal/holepunch"
	"github.com/omertanet/omerta/internal/identity"
	"github.com/omertanet/omerta/internal/transport"
	"github.com/omertanet/omerta/internal/wire"
)

// derivePeerID adapts identity.DerivePeerID's ed25519.PublicKey parameter to
// the raw []byte signature wire.Verify expects.
func derivePeerID(pub []byte) string {
	return identity.DerivePeerID(pub)
}

// handleDatagram runs the full inbound pipeline (spec.md §5's dataflow):
// decrypt, deduplicate, verify signature, update the endpoint/registry/NAT
// state, then dispatch by payload kind.
func (n *Node) handleDatagram(dg transport.Datagram) {
	if holepunch.IsHoleProbe(dg.Data) {
		if probe, err := holepunch.Decode(dg.Data); err == nil {
			select {
			case n.probes <- probe:
			default:
			}
		}
		return
	}

	if ok, err := n.ipLimiter.Allow(dg.From.IP.String()); !ok {
		n.log.Error("dispatch", "rate_limited", err)
		return
	}

	env, err := wire.OpenEnvelope(n.datagramKey, dg.Data)
	if err != nil {
		return // wrong network key or corrupt datagram: silently dropped per §4.1
	}

	if n.dedup.seen(env.MessageID) {
		return
	}

	if !wire.Verify(env, derivePeerID) {
		n.log.Error("dispatch", "signature_invalid", nil)
		return
	}

	fromPeer := env.FromPeerID
	fromEndpoint := dg.From.String()

	n.endpointMgr.RecordMessageReceived(fromPeer, env.MachineID, fromEndpoint)
	n.registry.Observe(fromPeer, env.MachineID)
	n.keepalive.Track(fromPeer, env.MachineID)
	n.gossipE.MarkFirstHand(fromPeer)
	n.contacts.Touch(fromPeer, wire.Reachability{Direct: &wire.DirectReachability{Endpoint: fromEndpoint}}, 0, freshness.ConnectionInboundDirect, "direct")

	switch env.Payload.Kind {
	case wire.KindPing:
		n.handlePing(env, fromEndpoint)
	case wire.KindPong:
		n.handlePong(env, fromEndpoint)
	case wire.KindData:
		n.handleData(env)
	case wire.KindRequest:
		n.handleRequest(env)
	case wire.KindResponse:
		n.handleResponse(env)
	case wire.KindAnnounce:
		n.handleAnnounce(env)
	case wire.KindFindPeer:
		n.handleFindPeer(env, fromEndpoint)
	case wire.KindPeerInfo:
		n.handlePeerInfo(env)
	case wire.KindPeerNotFound:
		// nothing to reconcile locally; the caller's SendAndReceive has its own timeout
	case wire.KindHolePunchRequest:
		n.handleHolePunchRequest(env)
	case wire.KindHolePunchInvite:
		n.handleHolePunchInvite(env)
	case wire.KindHolePunchExecute:
		n.handleHolePunchExecute(env)
	case wire.KindRelayForward:
		n.handleRelayForward(env, fromEndpoint)
	case wire.KindRelayForwardResult:
		// best-effort: nothing currently tracks an outstanding relay_forward
	case wire.KindWhoHasRecent:
		n.handleWhoHasRecent(env, fromEndpoint)
	case wire.KindIHaveRecent:
		n.handleIHaveRecent(env)
	case wire.KindPathFailed:
		n.pathFail.ReportFailure(env.Payload.PathFailed.PeerID, env.Payload.PathFailed.Path)
		n.contacts.RemoveContactsUsingPath(env.Payload.PathFailed.Path)
	}
}

func (n *Node) handlePing(env *wire.Envelope, fromEndpoint string) {
	p := env.Payload.Ping
	if p == nil {
		return
	}
	for _, info := range p.RecentPeers {
		n.gossipE.Learn(info)
	}
	n.gossipE.Learn(wire.PeerEndpointInfo{PeerID: env.FromPeerID, MachineID: env.MachineID, Endpoint: fromEndpoint, NATType: p.MyNATType, IsFirstHand: true})
	if p.MyNATType != "" {
		n.endpointMgr.UpdateNATType(env.FromPeerID, p.MyNATType)
	}

	pong := wire.Payload{Kind: wire.KindPong, Pong: &wire.PongPayload{
		RecentPeers:  n.gossipE.BuildOutboundList(env.FromPeerID),
		YourEndpoint: fromEndpoint,
		MyNATType:    string(n.natPredict.Predict().NATType),
	}}
	n.sendToEndpoint(env.FromPeerID, "", pong, fromEndpoint)
}

func (n *Node) handlePong(env *wire.Envelope, fromEndpoint string) {
	p := env.Payload.Pong
	if p == nil {
		return
	}
	before := n.natPredict.Predict().NATType
	n.natPredict.Observe(env.FromPeerID, p.YourEndpoint)
	if after := n.natPredict.Predict().NATType; after != before {
		n.emit(Event{Kind: EventNATDetected, PeerID: env.FromPeerID, NATType: string(after)})
	}
	for _, info := range p.RecentPeers {
		n.gossipE.Learn(info)
	}
	if p.MyNATType != "" {
		n.endpointMgr.UpdateNATType(env.FromPeerID, p.MyNATType)
	}
	n.keepalive.RecordSuccessfulCommunication(env.FromPeerID, env.MachineID)
	n.peerCache.RecordSuccess(env.FromPeerID)
}

func (n *Node) handleData(env *wire.Envelope) {
	if env.Payload.Data == nil {
		return
	}
	n.handlersMu.RLock()
	handler := n.handlers[env.Channel]
	n.handlersMu.RUnlock()
	if handler != nil {
		handler(env.FromPeerID, env.Payload.Data.Bytes)
	}
}

func (n *Node) handleRequest(env *wire.Envelope) {
	r := env.Payload.Request
	if r == nil {
		return
	}
	n.handlersMu.RLock()
	handler := n.reqHandler
	n.handlersMu.RUnlock()
	if handler != nil {
		handler(env.FromPeerID, r.RequestID, r.Bytes)
	}
}

func (n *Node) handleResponse(env *wire.Envelope) {
	r := env.Payload.Response
	if r == nil {
		return
	}
	n.pendingMu.Lock()
	ch, ok := n.pending[r.RequestID]
	n.pendingMu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- r.Bytes:
	default:
	}
}

func (n *Node) handleAnnounce(env *wire.Envelope) {
	a := env.Payload.Announce
	if a == nil || !verifyAnnouncement(a.Announcement) {
		return
	}
	n.peerCache.Put(a.Announcement)
	n.learnRelayCandidates(a.Announcement)
}

func (n *Node) handlePeerInfo(env *wire.Envelope) {
	p := env.Payload.PeerInfo
	if p == nil || !verifyAnnouncement(p.Announcement) {
		return
	}
	n.peerCache.Put(p.Announcement)
	n.learnRelayCandidates(p.Announcement)
}

// learnRelayCandidates records every relay reachability entry in ann as a
// potential relay for that peer, per spec.md's record_potential_relay.
func (n *Node) learnRelayCandidates(ann wire.PeerAnnouncement) {
	for _, reach := range ann.Reachability {
		if reach.Relay != nil {
			n.relayTable.Record(ann.PeerID, reach.Relay.RelayPeerID)
		}
	}
}

func (n *Node) handleFindPeer(env *wire.Envelope, fromEndpoint string) {
	f := env.Payload.FindPeer
	if f == nil {
		return
	}
	if entry, ok := n.peerCache.Get(f.PeerID); ok {
		n.sendToEndpoint(env.FromPeerID, "", wire.Payload{Kind: wire.KindPeerInfo, PeerInfo: &wire.PeerInfoPayload{Announcement: entry.Announcement}}, fromEndpoint)
		return
	}
	n.sendToEndpoint(env.FromPeerID, "", wire.Payload{Kind: wire.KindPeerNotFound, PeerNotFound: &wire.PeerNotFoundPayload{PeerID: f.PeerID}}, fromEndpoint)
}

func (n *Node) handleWhoHasRecent(env *wire.Envelope, fromEndpoint string) {
	q := env.Payload.WhoHasRecent
	if q == nil {
		return
	}
	if contact, ok := n.contacts.Get(q.PeerID); ok {
		n.sendToEndpoint(env.FromPeerID, "", wire.Payload{Kind: wire.KindIHaveRecent, IHaveRecent: &wire.IHaveRecentPayload{
			PeerID:             q.PeerID,
			LastSeenSecondsAgo: int(time.Since(contact.LastSeen).Seconds()),
			Reachability:       contact.Reachability,
		}}, fromEndpoint)
	}
}

func (n *Node) handleIHaveRecent(env *wire.Envelope) {
	r := env.Payload.IHaveRecent
	if r == nil {
		return
	}
	n.contacts.Touch(r.PeerID, r.Reachability, 0, freshness.ConnectionViaRelay, "")
}

func (n *Node) handleRelayForward(env *wire.Envelope, fromEndpoint string) {
	fw := env.Payload.RelayForward
	if fw == nil || !n.cfg.CanRelay {
		return
	}
	success := n.relayFwd.Forward(fw.TargetPeerID, fw.PayloadBytes)
	n.sendToEndpoint(env.FromPeerID, "", wire.Payload{Kind: wire.KindRelayForwardResult, RelayForwardResult: &wire.RelayForwardResultPayload{
		TargetPeerID: fw.TargetPeerID,
		Success:      success,
	}}, fromEndpoint)
}

// verifyAnnouncement checks a PeerAnnouncement's embedded signature against
// its own embedded public key and peer_id (the announcement is self-signed
// independently of the carrying envelope, since it may be relayed by a
// third party via peer_info).
func verifyAnnouncement(ann wire.PeerAnnouncement) bool {
	pub, err := base64.StdEncoding.DecodeString(ann.PublicKey)
	if err != nil {
		return false
	}
	sig, err := base64.StdEncoding.DecodeString(ann.Signature)
	if err != nil {
		return false
	}
	cp := ann
	cp.Signature = ""
	digest, err := json.Marshal(cp)
	if err != nil {
		return false
	}
	return identity.Verify(pub, ann.PeerID, digest, sig)
}

// --- hole punch dispatch ---

// pendingPunch tracks, per node, at most one in-flight initiated or invited
// hole punch at a time: enough for the cooperative single-request flow
// spec.md §4.4 describes, without needing a request_id carried on the wire
// payloads themselves (hole_punch_request/invite/execute name only
// endpoints, not a correlation id).
type pendingPunchState struct {
	peerID string
}

func (n *Node) handleHolePunchRequest(env *wire.Envelope) {
	req := env.Payload.HolePunchRequest
	if req == nil || !n.cfg.CanCoordinateHolePunch {
		return
	}
	initiatorPeer := env.FromPeerID
	initiatorEndpoint, ok := n.bestEndpointForPeer(initiatorPeer)
	if !ok {
		return
	}
	targetEndpoint, ok := n.bestEndpointForPeer(req.TargetPeerID)
	if !ok {
		n.SendToPeer(wire.Payload{Kind: wire.KindPeerNotFound, PeerNotFound: &wire.PeerNotFoundPayload{PeerID: req.TargetPeerID}}, initiatorPeer, "")
		return
	}

	requestID := initiatorPeer + "|" + req.TargetPeerID
	if !n.coord.HandleRequest(requestID, initiatorPeer, req.TargetPeerID, initiatorEndpoint) {
		return
	}
	// Cooperative mesh: the target is assumed to accept every coordinated
	// punch, so HandleAccept fires immediately rather than waiting on an
	// explicit accept round trip the wire payloads have no field for.
	n.coord.HandleAccept(requestID, initiatorEndpoint, targetEndpoint)
}

func (n *Node) handleHolePunchInvite(env *wire.Envelope) {
	inv := env.Payload.HolePunchInvite
	if inv == nil {
		return
	}
	n.pendingMu.Lock()
	n.pendingPunch = &pendingPunchState{peerID: inv.InitiatorPeerID}
	n.pendingMu.Unlock()
}

// InitiateHolePunch asks coordinatorPeer to broker a hole punch with
// targetPeer.
func (n *Node) InitiateHolePunch(targetPeer, coordinatorPeer string) error {
	n.pendingMu.Lock()
	n.pendingPunch = &pendingPunchState{peerID: targetPeer}
	n.pendingMu.Unlock()
	return n.SendToPeer(wire.Payload{Kind: wire.KindHolePunchRequest, HolePunchRequest: &wire.HolePunchRequestPayload{TargetPeerID: targetPeer}}, coordinatorPeer, "")
}

func (n *Node) handleHolePunchExecute(env *wire.Envelope) {
	ex := env.Payload.HolePunchExecute
	if ex == nil {
		return
	}
	n.pendingMu.Lock()
	pending := n.pendingPunch
	n.pendingMu.Unlock()

	peerID := ""
	if pending != nil {
		peerID = pending.peerID
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		senderID := holepunch.TruncatedSenderID(n.cfg.Identity.PeerID)
		result := holepunch.Punch(n.ctx, n.transport, n.probes, ex.TargetEndpoint, senderID, n.cfg.HolePuncher)
		if result.Success {
			if peerID != "" {
				n.endpointMgr.RecordSendSuccess(peerID, "", result.Endpoint)
				n.contacts.Touch(peerID, wire.Reachability{Direct: &wire.DirectReachability{Endpoint: result.Endpoint}}, int(result.RTT.Milliseconds()), freshness.ConnectionHolePunched, "hole_punch")
				n.emit(Event{Kind: EventPeerConnected, PeerID: peerID, IsDirect: true})
			}
			return
		}
		n.emit(Event{Kind: EventHolePunchFailed, PeerID: peerID, Reason: string(result.Reason)})
	}()
}
