package node

import (
	"net"
	"time"

	"github.com/omertanet/omerta/internal/gossip"
	"github.com/omertanet/omerta/internal/wire"
)

// sendKeepalivePing implements keepalive.PingSender: it sends a ping to
// machine at endpoint and reports whether the datagram was written
// successfully (delivery itself is confirmed later by a pong or any other
// inbound message resetting the miss counter).
func (n *Node) sendKeepalivePing(peer, machine, endpoint string) bool {
	addr, err := net.ResolveUDPAddr("udp", endpoint)
	if err != nil {
		return false
	}
	hasEndpoint := len(n.endpointMgr.GetEndpoints(peer, machine)) > 0
	var lastContact time.Time
	if contact, ok := n.contacts.Get(peer); ok {
		lastContact = contact.LastSeen
	}
	env, err := wire.Sign(n.cfg.Identity.PrivateKey, n.cfg.Identity.PublicKey, n.cfg.Identity.PeerID, string(n.cfg.MachineID), peer, "", wire.Payload{
		Kind: wire.KindPing,
		Ping: &wire.PingPayload{
			RecentPeers:     n.gossipE.BuildOutboundList(peer),
			MyNATType:       string(n.natPredict.Predict().NATType),
			RequestFullList: gossip.NeedsFullListRequest(hasEndpoint, lastContact),
		},
	}, nowSeconds())
	if err != nil {
		return false
	}
	return n.sealAndSend(env, addr) == nil
}

// onKeepaliveFailure is invoked once (peer, machine) reaches the missed-ping
// threshold; it surfaces a peer_disconnected event per spec.md §7.
func (n *Node) onKeepaliveFailure(peer, machine, endpoint string) {
	n.emit(Event{Kind: EventPeerDisconnected, PeerID: peer})
	n.pathFail.ReportFailure(peer, endpoint)
	n.peerCache.RecordFailure(peer)
}
