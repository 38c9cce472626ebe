package node

import (
	"github.com/omertanet/omerta/internal/holepunch"
	"github.com/omertanet/omerta/internal/wire"
)

// coordinatorSender adapts Node's outbound send path to holepunch.Sender,
// so the Coordinator never needs to know about envelopes or routing.
type coordinatorSender struct {
	n *Node
}

func (s *coordinatorSender) SendInvite(targetPeer string, inv holepunch.Invite) error {
	payload := wire.Payload{Kind: wire.KindHolePunchInvite, HolePunchInvite: &wire.HolePunchInvitePayload{
		InitiatorPeerID:   inv.InitiatorPeer,
		InitiatorEndpoint: inv.InitiatorEndpoint,
	}}
	return s.n.SendToPeer(payload, targetPeer, "")
}

func (s *coordinatorSender) SendExecute(peer string, ex holepunch.Execute) error {
	payload := wire.Payload{Kind: wire.KindHolePunchExecute, HolePunchExecute: &wire.HolePunchExecutePayload{
		TargetEndpoint:   ex.TargetEndpoint,
		PeerEndpoint:     ex.PeerEndpoint,
		SimultaneousSend: ex.SimultaneousSend,
	}}
	return s.n.SendToPeer(payload, peer, "")
}
