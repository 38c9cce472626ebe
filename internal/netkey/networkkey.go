// Package netkey implements the shared network secret, its invite-link
// encoding, and the set of joined networks. The invite format mirrors the
// teacher's own "secret as shareable URI" idiom
// (atvirokodosprendimai/wgmesh/pkg/daemon/config.go FormatSecretURI /
// parseSecret: "wgmesh://v1/<secret>"), generalized to spec.md's
// "omerta://join/<base64(canonical-json)>" scheme and widened from a bare
// secret to a full NetworkKey (secret + name + bootstrap peers).
package netkey

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	// SecretSize is the length in bytes of the symmetric network secret.
	SecretSize = 32

	// InviteScheme is the URI scheme+path prefix for invite links.
	InviteScheme = "omerta://join/"
)

// NetworkKey is the shared secret that admits a node to a network, plus the
// metadata needed to join it.
type NetworkKey struct {
	NetworkName     string   `json:"networkName"`
	NetworkKey      []byte   `json:"networkKey"`
	BootstrapPeers  []string `json:"bootstrapPeers"`
}

// canonical is the exact JSON shape encoded in invite links: field order and
// base64 encoding of the key must match bit for bit across implementations
// so NetworkID stays stable.
type canonical struct {
	NetworkName    string   `json:"networkName"`
	NetworkKey     string   `json:"networkKey"`
	BootstrapPeers []string `json:"bootstrapPeers"`
}

// Generate creates a new NetworkKey with a random 32-byte secret.
func Generate(name string, bootstrapPeers []string) (*NetworkKey, error) {
	secret := make([]byte, SecretSize)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("netkey: generate secret: %w", err)
	}
	return &NetworkKey{NetworkName: name, NetworkKey: secret, BootstrapPeers: bootstrapPeers}, nil
}

// NetworkID returns the deterministic digest identifying this network:
// SHA-256(key || "|" || name), hex-encoded.
func (k *NetworkKey) NetworkID() string {
	h := sha256.New()
	h.Write(k.NetworkKey)
	h.Write([]byte("|"))
	h.Write([]byte(k.NetworkName))
	return fmt.Sprintf("%x", h.Sum(nil))
}

// Encode produces the omerta://join/<base64url(canonical-json)> invite link.
func (k *NetworkKey) Encode() (string, error) {
	if len(k.NetworkKey) != SecretSize {
		return "", fmt.Errorf("netkey: encode: key must be %d bytes, got %d", SecretSize, len(k.NetworkKey))
	}
	c := canonical{
		NetworkName:    k.NetworkName,
		NetworkKey:     base64.StdEncoding.EncodeToString(k.NetworkKey),
		BootstrapPeers: k.BootstrapPeers,
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("netkey: encode: marshal: %w", err)
	}
	return InviteScheme + base64.URLEncoding.EncodeToString(raw), nil
}

// Decode parses an omerta://join/... invite link back into a NetworkKey.
// Any other scheme, malformed base64, or missing field is an error.
func Decode(link string) (*NetworkKey, error) {
	if !strings.HasPrefix(link, InviteScheme) {
		return nil, fmt.Errorf("netkey: decode: not an %s link", InviteScheme)
	}
	encoded := strings.TrimPrefix(link, InviteScheme)
	raw, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("netkey: decode: invalid base64: %w", err)
	}
	var c canonical
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("netkey: decode: invalid json: %w", err)
	}
	if c.NetworkName == "" {
		return nil, fmt.Errorf("netkey: decode: missing networkName")
	}
	if c.NetworkKey == "" {
		return nil, fmt.Errorf("netkey: decode: missing networkKey")
	}
	key, err := base64.StdEncoding.DecodeString(c.NetworkKey)
	if err != nil {
		return nil, fmt.Errorf("netkey: decode: invalid networkKey base64: %w", err)
	}
	if len(key) != SecretSize {
		return nil, fmt.Errorf("netkey: decode: networkKey must be %d bytes, got %d", SecretSize, len(key))
	}
	return &NetworkKey{NetworkName: c.NetworkName, NetworkKey: key, BootstrapPeers: c.BootstrapPeers}, nil
}
