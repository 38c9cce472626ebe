// Package identity manages the node's Ed25519 signing keypair and the
// stable peer_id/machine_id derived from it, grounded on the teacher's
// LoadOrCreateIdentity (pkg/crypto-equivalent key persistence) in
// atvirokodosprendimai/wgmesh/pkg/daemon/config.go and the libp2p-style
// "load existing key or generate" pattern in shurlinet/shurli's identity.go.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/google/uuid"
)

// PeerIDLength is the number of hex characters in a peer_id: the first 8
// bytes of SHA-256(public_key), lowercase hex.
const PeerIDLength = 16

// Identity holds this node's durable Ed25519 keypair and its derived peer_id.
type Identity struct {
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
	PeerID     string
}

// MachineID is a process-local stable identifier distinguishing multiple
// installs that share one Identity.
type MachineID string

// NewMachineID generates a fresh machine_id.
func NewMachineID() MachineID {
	return MachineID(uuid.New().String())
}

// DerivePeerID computes peer_id = lowercase hex of the first 8 bytes of
// SHA-256(public_key).
func DerivePeerID(pub ed25519.PublicKey) string {
	sum := sha256.Sum256(pub)
	return hex.EncodeToString(sum[:8])
}

// Generate creates a fresh Ed25519 identity.
func Generate() (*Identity, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("identity: generate keypair: %w", err)
	}
	return &Identity{PublicKey: pub, PrivateKey: priv, PeerID: DerivePeerID(pub)}, nil
}

// LoadOrCreate loads a private key from path, or generates and persists a
// new one if the file does not exist. The file holds the raw 64-byte Ed25519
// private key (which embeds the public key in its second half).
func LoadOrCreate(path string) (*Identity, error) {
	if data, err := os.ReadFile(path); err == nil {
		if len(data) != ed25519.PrivateKeySize {
			return nil, fmt.Errorf("identity: key file %s has wrong size %d, want %d", path, len(data), ed25519.PrivateKeySize)
		}
		priv := ed25519.PrivateKey(data)
		pub := priv.Public().(ed25519.PublicKey)
		return &Identity{PublicKey: pub, PrivateKey: priv, PeerID: DerivePeerID(pub)}, nil
	}

	id, err := Generate()
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, id.PrivateKey, 0600); err != nil {
		return nil, fmt.Errorf("identity: save key to %s: %w", path, err)
	}
	return id, nil
}

// Sign signs data with the node's private key.
func (id *Identity) Sign(data []byte) []byte {
	return ed25519.Sign(id.PrivateKey, data)
}

// Verify checks sig over data against pub, and that peer_id derives from pub.
func Verify(pub ed25519.PublicKey, peerID string, data, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	if DerivePeerID(pub) != peerID {
		return false
	}
	return ed25519.Verify(pub, data, sig)
}
