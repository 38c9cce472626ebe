// Package wire implements the envelope codec (spec.md §4.1): signing,
// verification, canonical-JSON and length-prefixed binary serialization,
// and network-key AEAD encryption of the UDP wire format. Grounded on the
// teacher's crypto.Envelope / SealEnvelope / OpenEnvelope
// (atvirokodosprendimai/wgmesh/pkg/crypto/envelope.go), generalized from a
// single fixed announcement payload to the full tagged-union message set.
package wire

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Envelope is the signed message carrier described in spec.md §3.
type Envelope struct {
	MessageID  string  `json:"message_id"`
	FromPeerID string  `json:"from_peer_id"`
	PublicKey  string  `json:"public_key"`
	MachineID  string  `json:"machine_id"`
	ToPeerID   string  `json:"to_peer_id,omitempty"`
	Channel    string  `json:"channel"`
	HopCount   uint8   `json:"hop_count"`
	Timestamp  float64 `json:"timestamp"`
	Payload    Payload `json:"payload"`
	Signature  string  `json:"signature"`
}

// MaxChannelLength is the spec.md §3 limit on the channel field.
const MaxChannelLength = 64

// Sign builds and signs a new Envelope. channel must be empty or satisfy
// the ≤64-char alphanumeric+[-_] rule (spec.md §3); a malformed channel is
// rejected at construction time: Sign returns ValidateChannel's error and
// builds no envelope.
func Sign(priv ed25519.PrivateKey, pub ed25519.PublicKey, peerID, machineID, toPeerID, channel string, payload Payload, now float64) (*Envelope, error) {
	if channel != "" {
		if err := ValidateChannel(channel); err != nil {
			return nil, err
		}
	}
	e := &Envelope{
		MessageID:  uuid.New().String(),
		FromPeerID: peerID,
		PublicKey:  base64.StdEncoding.EncodeToString(pub),
		MachineID:  machineID,
		ToPeerID:   toPeerID,
		Channel:    channel,
		HopCount:   0,
		Timestamp:  now,
		Payload:    payload,
	}
	digest, err := e.canonicalBytes()
	if err != nil {
		return nil, fmt.Errorf("wire: sign: canonicalize: %w", err)
	}
	sig := ed25519.Sign(priv, digest)
	e.Signature = base64.StdEncoding.EncodeToString(sig)
	return e, nil
}

// ValidateChannel enforces spec.md §3's channel constraint: ≤64 chars,
// alphanumeric plus '-'/'_'.
func ValidateChannel(channel string) error {
	if len(channel) > MaxChannelLength {
		return fmt.Errorf("wire: channel %q exceeds %d characters", channel, MaxChannelLength)
	}
	for _, r := range channel {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return fmt.Errorf("wire: channel %q contains invalid character %q", channel, r)
		}
	}
	return nil
}

// canonicalBytes returns the canonical-JSON serialization of e with
// Signature cleared, used both when signing and when verifying.
func (e *Envelope) canonicalBytes() ([]byte, error) {
	cp := *e
	cp.Signature = ""
	return json.Marshal(cp)
}

// Verify recomputes the canonical form and checks the signature against the
// embedded public key, and that PublicKey derives to FromPeerID (I1). It
// never mutates any subsystem state; callers must check Verify before any
// registry/endpoint update (spec.md I1, P1).
func Verify(e *Envelope, derivePeerID func(pub []byte) string) bool {
	pub, err := base64.StdEncoding.DecodeString(e.PublicKey)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return false
	}
	if derivePeerID(pub) != e.FromPeerID {
		return false
	}
	sig, err := base64.StdEncoding.DecodeString(e.Signature)
	if err != nil {
		return false
	}
	digest, err := e.canonicalBytes()
	if err != nil {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), digest, sig)
}

// EncodeJSON serializes e as canonical JSON (the first wire form; starts
// with '{').
func EncodeJSON(e *Envelope) ([]byte, error) {
	return json.Marshal(e)
}

// DecodeAuto detects the wire form by the leading byte ('{' = JSON, else
// binary) and decodes accordingly (spec.md §6).
func DecodeAuto(data []byte) (*Envelope, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("wire: decode: empty datagram")
	}
	if data[0] == '{' {
		var e Envelope
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("wire: decode json: %w", err)
		}
		return &e, nil
	}
	return decodeBinary(data)
}
