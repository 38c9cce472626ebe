// Package node implements the Mesh Node orchestrator (spec.md C14): the
// public start/stop lifecycle, channel send/receive surface, route
// selection across direct/relay/hole-punch paths, and the event stream.
// Grounded on the teacher's Daemon lifecycle
// (atvirokodosprendimai/wgmesh/pkg/daemon/daemon.go NewDaemon/Run/Shutdown):
// same ctx/cancel + sync.WaitGroup background-loop shape, generalized from
// WireGuard interface reconciliation to wiring the mesh core's own
// subsystems together.
package node

import (
	"fmt"
	"time"

	"github.com/omertanet/omerta/internal/endpoints"
	"github.com/omertanet/omerta/internal/gossip"
	"github.com/omertanet/omerta/internal/holepunch"
	"github.com/omertanet/omerta/internal/identity"
	"github.com/omertanet/omerta/internal/meshcore"
	"github.com/omertanet/omerta/internal/netkey"
)

// Config configures a Node. Identity, MachineID, and Network are required;
// all other fields take the spec's documented defaults when zero.
type Config struct {
	Identity  *identity.Identity
	MachineID identity.MachineID
	Network   *netkey.NetworkKey

	Port                   int
	DataDir                string
	BootstrapPeers         []string
	CanRelay               bool
	CanCoordinateHolePunch bool
	EndpointValidationMode endpoints.ValidationMode

	MaxCachedPeers    int
	KeepaliveInterval time.Duration
	ConnectionTimeout time.Duration

	Gossip             gossip.Config
	FreshnessMaxAge    time.Duration
	FreshnessMaxContacts int
	QueryMaxHops       int
	QueryInterval      time.Duration

	CoordinatorRequestTimeout time.Duration
	CoordinatorCleanupInterval time.Duration

	Retry meshcore.RetryPolicy

	HolePuncher holepunch.PuncherConfig
}

func (c *Config) validate() error {
	if c.Identity == nil {
		return meshcore.New(meshcore.KindInvalidConfiguration, "node", "validate", fmt.Errorf("identity is required"))
	}
	if c.Network == nil || len(c.Network.NetworkKey) != netkey.SecretSize {
		return meshcore.New(meshcore.KindInvalidConfiguration, "node", "validate", fmt.Errorf("network key must be %d bytes", netkey.SecretSize))
	}
	if c.Port < 0 || c.Port > 65535 {
		return meshcore.New(meshcore.KindInvalidPort, "node", "validate", fmt.Errorf("port %d out of range", c.Port))
	}
	if c.EndpointValidationMode == "" {
		c.EndpointValidationMode = endpoints.ModeStrict
	}
	if c.ConnectionTimeout <= 0 {
		c.ConnectionTimeout = 30 * time.Second
	}
	if c.Retry == (meshcore.RetryPolicy{}) {
		c.Retry = meshcore.RetryNetwork
	}
	return nil
}
