package wire

// PayloadKind discriminates the envelope payload tagged union (spec.md §4.1).
type PayloadKind uint8

const (
	KindPing PayloadKind = iota + 1
	KindPong
	KindData
	KindRequest
	KindResponse
	KindAnnounce
	KindFindPeer
	KindPeerInfo
	KindPeerNotFound
	KindHolePunchRequest
	KindHolePunchInvite
	KindHolePunchExecute
	KindRelayForward
	KindRelayForwardResult
	KindWhoHasRecent
	KindIHaveRecent
	KindPathFailed
)

func (k PayloadKind) String() string {
	switch k {
	case KindPing:
		return "ping"
	case KindPong:
		return "pong"
	case KindData:
		return "data"
	case KindRequest:
		return "request"
	case KindResponse:
		return "response"
	case KindAnnounce:
		return "announce"
	case KindFindPeer:
		return "find_peer"
	case KindPeerInfo:
		return "peer_info"
	case KindPeerNotFound:
		return "peer_not_found"
	case KindHolePunchRequest:
		return "hole_punch_request"
	case KindHolePunchInvite:
		return "hole_punch_invite"
	case KindHolePunchExecute:
		return "hole_punch_execute"
	case KindRelayForward:
		return "relay_forward"
	case KindRelayForwardResult:
		return "relay_forward_result"
	case KindWhoHasRecent:
		return "who_has_recent"
	case KindIHaveRecent:
		return "i_have_recent"
	case KindPathFailed:
		return "path_failed"
	default:
		return "unknown"
	}
}

// Reachability is the tagged union describing how a peer may be reached,
// carried inside PeerAnnouncement (spec.md §3).
type Reachability struct {
	Direct      *DirectReachability     `json:"direct,omitempty"`
	Relay       *RelayReachability      `json:"relay,omitempty"`
	HolePunch   *HolePunchReachability  `json:"hole_punch,omitempty"`
}

type DirectReachability struct {
	Endpoint string `json:"endpoint"`
}

type RelayReachability struct {
	RelayPeerID   string `json:"relay_peer_id"`
	RelayEndpoint string `json:"relay_endpoint"`
}

type HolePunchReachability struct {
	PublicIP   string `json:"public_ip"`
	LocalPort  int    `json:"local_port"`
}

// PeerAnnouncement is the signed tuple gossiped between peers (spec.md §3).
type PeerAnnouncement struct {
	PeerID       string         `json:"peer_id"`
	PublicKey    string         `json:"public_key"`
	Reachability []Reachability `json:"reachability"`
	Capabilities []string       `json:"capabilities"`
	Timestamp    float64        `json:"timestamp"`
	TTLSeconds   int            `json:"ttl_seconds"`
	Signature    string         `json:"signature"`
}

// PeerEndpointInfo is the (peer, machine, endpoint, nat, first-hand) tuple
// exchanged in ping/pong gossip payloads (spec.md §3).
type PeerEndpointInfo struct {
	PeerID      string `json:"peer_id"`
	MachineID   string `json:"machine_id"`
	Endpoint    string `json:"endpoint"`
	NATType     string `json:"nat_type"`
	IsFirstHand bool   `json:"is_first_hand"`
}

type PingPayload struct {
	RecentPeers     []PeerEndpointInfo `json:"recent_peers"`
	MyNATType       string             `json:"my_nat_type"`
	RequestFullList bool               `json:"request_full_list"`
}

type PongPayload struct {
	RecentPeers []PeerEndpointInfo `json:"recent_peers"`
	YourEndpoint string            `json:"your_endpoint"`
	MyNATType    string            `json:"my_nat_type"`
}

type DataPayload struct {
	Bytes []byte `json:"bytes"`
}

type RequestPayload struct {
	RequestID string `json:"request_id"`
	Bytes     []byte `json:"bytes"`
}

type ResponsePayload struct {
	RequestID string `json:"request_id"`
	Bytes     []byte `json:"bytes"`
}

type AnnouncePayload struct {
	Announcement PeerAnnouncement `json:"announcement"`
}

type FindPeerPayload struct {
	PeerID string `json:"peer_id"`
}

type PeerInfoPayload struct {
	Announcement PeerAnnouncement `json:"announcement"`
}

type PeerNotFoundPayload struct {
	PeerID string `json:"peer_id"`
}

type HolePunchRequestPayload struct {
	TargetPeerID string `json:"target_peer_id"`
}

type HolePunchInvitePayload struct {
	InitiatorPeerID     string `json:"initiator_peer_id"`
	InitiatorEndpoint   string `json:"initiator_endpoint"`
	InitiatorNATType    string `json:"initiator_nat_type"`
}

type HolePunchExecutePayload struct {
	TargetEndpoint   string `json:"target_endpoint"`
	PeerEndpoint     string `json:"peer_endpoint,omitempty"`
	SimultaneousSend bool   `json:"simultaneous_send"`
}

type RelayForwardPayload struct {
	TargetPeerID string `json:"target_peer_id"`
	PayloadBytes []byte `json:"payload_bytes"`
}

type RelayForwardResultPayload struct {
	TargetPeerID string `json:"target_peer_id"`
	Success      bool   `json:"success"`
}

type WhoHasRecentPayload struct {
	PeerID        string `json:"peer_id"`
	MaxAgeSeconds int    `json:"max_age_seconds"`
}

type IHaveRecentPayload struct {
	PeerID             string       `json:"peer_id"`
	LastSeenSecondsAgo int          `json:"last_seen_seconds_ago"`
	Reachability       Reachability `json:"reachability"`
}

type PathFailedPayload struct {
	PeerID   string  `json:"peer_id"`
	Path     string  `json:"path"`
	FailedAt float64 `json:"failed_at"`
}

// Payload is the tagged union carried by an Envelope. Exactly one field
// matching Kind is populated; this mirrors the teacher's discriminated
// message handling in pkg/discovery/exchange.go (switch on envelope.MessageType)
// but keeps the union typed rather than stringly-keyed.
type Payload struct {
	Kind PayloadKind `json:"kind"`

	Ping               *PingPayload               `json:"ping,omitempty"`
	Pong               *PongPayload               `json:"pong,omitempty"`
	Data               *DataPayload               `json:"data,omitempty"`
	Request            *RequestPayload            `json:"request,omitempty"`
	Response           *ResponsePayload           `json:"response,omitempty"`
	Announce           *AnnouncePayload           `json:"announce,omitempty"`
	FindPeer           *FindPeerPayload           `json:"find_peer,omitempty"`
	PeerInfo           *PeerInfoPayload           `json:"peer_info,omitempty"`
	PeerNotFound       *PeerNotFoundPayload       `json:"peer_not_found,omitempty"`
	HolePunchRequest   *HolePunchRequestPayload   `json:"hole_punch_request,omitempty"`
	HolePunchInvite    *HolePunchInvitePayload    `json:"hole_punch_invite,omitempty"`
	HolePunchExecute   *HolePunchExecutePayload   `json:"hole_punch_execute,omitempty"`
	RelayForward       *RelayForwardPayload       `json:"relay_forward,omitempty"`
	RelayForwardResult *RelayForwardResultPayload `json:"relay_forward_result,omitempty"`
	WhoHasRecent       *WhoHasRecentPayload       `json:"who_has_recent,omitempty"`
	IHaveRecent        *IHaveRecentPayload        `json:"i_have_recent,omitempty"`
	PathFailed         *PathFailedPayload         `json:"path_failed,omitempty"`
}
