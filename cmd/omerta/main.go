// Command omerta runs a mesh node and provides CLI utilities for joining,
// inspecting, and testing connectivity to a network, grounded on the
// teacher's main.go subcommand-dispatch shape (join/init/status/test-peer/qr).
package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/omertanet/omerta/internal/endpoints"
	"github.com/omertanet/omerta/internal/identity"
	"github.com/omertanet/omerta/internal/meshcore"
	"github.com/omertanet/omerta/internal/natpredict"
	"github.com/omertanet/omerta/internal/netkey"
	"github.com/omertanet/omerta/internal/node"
	"github.com/omertanet/omerta/internal/peercache"
	"github.com/omertanet/omerta/internal/wire"

	"flag"
)

var version = "dev"

func main() {
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-v" {
			fmt.Println("omerta " + version)
			return
		}
	}

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "init":
		initCmd()
	case "join":
		joinCmd()
	case "leave":
		leaveCmd()
	case "status":
		statusCmd()
	case "test-peer":
		testPeerCmd()
	case "qr":
		qrCmd()
	case "keepalive-stats":
		keepaliveStatsCmd()
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`omerta - authenticated peer-to-peer mesh core

SUBCOMMANDS:
  init --name <network-name> [--bootstrap host:port,...]
                                 Generate a new network key and print its invite link
  join --secret <INVITE_URI> [--port N] [--data-dir DIR] [--can-relay]
       [--can-coordinate-punch]
                                 Start a mesh node and join the network
  leave --network-id ID --data-dir DIR
                                 Mark a joined network inactive without forgetting it
  status --data-dir DIR         Show persisted peer/endpoint state
  test-peer --secret <INVITE_URI> --peer <IP:PORT> [--port N]
                                 Send a bare ping to a peer and report the pong
  qr --secret <INVITE_URI>      Render the invite URI as a text QR code
  keepalive-stats --data-dir DIR
                                 Show peer reliability and when each peer was cached

EXAMPLES:
  omerta init --name homelab --bootstrap 203.0.113.5:7777
  omerta join --secret "omerta://join/...." --data-dir /var/lib/omerta
  omerta test-peer --secret "omerta://join/...." --peer 203.0.113.5:7777`)
}

func fail(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// failOnError reports err with its meshcore.Kind when available (letting the
// operator tell a transient send_failed from a permanent invalid_configuration
// at a glance), falling back to a plain error string otherwise.
func failOnError(context string, err error) {
	if coreErr, ok := meshcore.AsError(err); ok {
		fail("%s: %s (%v)", context, coreErr.Kind, coreErr)
	}
	fail("%s: %v", context, err)
}

// initCmd handles "init --name ... [--bootstrap ...]": generates a fresh
// NetworkKey and prints its shareable invite link.
func initCmd() {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	name := fs.String("name", "", "Network name (required)")
	bootstrap := fs.String("bootstrap", "", "Comma-separated bootstrap peer endpoints")
	fs.Parse(os.Args[2:])

	if *name == "" {
		fail("Error: --name is required\nUsage: omerta init --name <NAME> [--bootstrap host:port,...]")
	}

	var peers []string
	if *bootstrap != "" {
		for _, p := range strings.Split(*bootstrap, ",") {
			peers = append(peers, strings.TrimSpace(p))
		}
	}

	nk, err := netkey.Generate(*name, peers)
	if err != nil {
		fail("Failed to generate network key: %v", err)
	}
	uri, err := nk.Encode()
	if err != nil {
		fail("Failed to encode invite link: %v", err)
	}

	fmt.Println("Generated network:")
	fmt.Println()
	fmt.Println(uri)
	fmt.Println()
	fmt.Println("Share this with every node that should join the network.")
	fmt.Printf("Run: omerta join --secret \"%s\"\n", uri)
}

// joinCmd handles "join --secret <URI>": starts a node and blocks until
// SIGINT/SIGTERM, logging the event stream to stdout.
func joinCmd() {
	fs := flag.NewFlagSet("join", flag.ExitOnError)
	secret := fs.String("secret", "", "Invite URI (required)")
	port := fs.Int("port", 0, "UDP listen port (0 = ephemeral)")
	dataDir := fs.String("data-dir", "", "Directory for persisted state (empty = none)")
	canRelay := fs.Bool("can-relay", false, "Advertise willingness to relay for symmetric-NAT peers")
	canCoordinate := fs.Bool("can-coordinate-punch", false, "Advertise willingness to coordinate hole punches")
	fs.Parse(os.Args[2:])

	if *secret == "" {
		fail("Error: --secret is required\nUsage: omerta join --secret <INVITE_URI>")
	}

	nk, err := netkey.Decode(*secret)
	if err != nil {
		fail("Failed to parse invite URI: %v", err)
	}

	id, err := loadIdentity(*dataDir)
	if err != nil {
		fail("Failed to load identity: %v", err)
	}
	machineID, err := loadOrCreateMachineID(*dataDir)
	if err != nil {
		fail("Failed to load machine id: %v", err)
	}

	if *dataDir != "" {
		if err := os.MkdirAll(*dataDir, 0700); err != nil {
			fail("Failed to create data dir: %v", err)
		}
		store, err := netkey.OpenStore(filepath.Join(*dataDir, "networks.json"))
		if err != nil {
			fail("Failed to open network store: %v", err)
		}
		if err := store.Join(nk); err != nil {
			fail("Failed to record joined network: %v", err)
		}
	}

	n, err := node.New(node.Config{
		Identity:               id,
		MachineID:              machineID,
		Network:                nk,
		Port:                   *port,
		DataDir:                *dataDir,
		BootstrapPeers:         nk.BootstrapPeers,
		CanRelay:               *canRelay,
		CanCoordinateHolePunch: *canCoordinate,
	})
	if err != nil {
		fail("Failed to construct node: %v", err)
	}

	events := n.Events()
	if err := n.Start(); err != nil {
		failOnError("Failed to start node", err)
	}
	fmt.Printf("peer_id=%s network=%s\n", id.PeerID, nk.NetworkName)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	for {
		select {
		case ev := <-events:
			logEvent(ev)
		case <-sigCh:
			fmt.Println("shutting down...")
			n.Stop()
			return
		}
	}
}

// leaveCmd handles "leave --network-id ID --data-dir DIR": marks a joined
// network inactive in the store without forgetting its key, so status
// still shows it was once joined.
func leaveCmd() {
	fs := flag.NewFlagSet("leave", flag.ExitOnError)
	networkID := fs.String("network-id", "", "Network id to leave (required, see 'status')")
	dataDir := fs.String("data-dir", "", "Directory holding persisted state (required)")
	fs.Parse(os.Args[2:])

	if *networkID == "" || *dataDir == "" {
		fail("Usage: omerta leave --network-id <ID> --data-dir <DIR>")
	}

	store, err := netkey.OpenStore(filepath.Join(*dataDir, "networks.json"))
	if err != nil {
		fail("Failed to open network store: %v", err)
	}
	nk, ok := store.Get(*networkID)
	if !ok {
		fail("Not a member of network %s", *networkID)
	}
	if err := store.Leave(*networkID); err != nil {
		fail("Failed to leave network: %v", err)
	}
	fmt.Printf("Left network %s (%s)\n", nk.NetworkName, *networkID)
}

func logEvent(ev node.Event) {
	switch ev.Kind {
	case node.EventStarted:
		fmt.Println("node started")
	case node.EventStopped:
		fmt.Println("node stopped")
	case node.EventPeerConnected:
		fmt.Printf("peer connected: %s (direct=%v)\n", ev.PeerID, ev.IsDirect)
	case node.EventPeerDisconnected:
		fmt.Printf("peer disconnected: %s\n", ev.PeerID)
	case node.EventNATDetected:
		fmt.Printf("nat detected for %s: %s\n", ev.PeerID, ev.NATType)
	case node.EventHolePunchFailed:
		fmt.Printf("hole punch failed with %s: %s\n", ev.PeerID, ev.Reason)
	}
}

// statusCmd handles "status --data-dir DIR": prints persisted state without
// starting a node.
func statusCmd() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	dataDir := fs.String("data-dir", "", "Directory holding persisted state (required)")
	fs.Parse(os.Args[2:])

	if *dataDir == "" {
		fail("Error: --data-dir is required\nUsage: omerta status --data-dir <DIR>")
	}

	fmt.Println("Mesh Status")
	fmt.Println("===========")

	if store, err := netkey.OpenStore(filepath.Join(*dataDir, "networks.json")); err == nil {
		active := store.Active()
		fmt.Printf("Joined networks: %d\n", len(active))
		for _, nk := range active {
			fmt.Printf("  %s (%s)\n", nk.NetworkName, nk.NetworkID())
		}
	}

	endpointsPath := filepath.Join(*dataDir, "peer_endpoints.json")
	mgr, err := endpoints.Load(endpointsPath, endpoints.ModeStrict)
	if err != nil {
		fmt.Printf("No endpoint store at %s (%v)\n", endpointsPath, err)
	}

	peersPath := filepath.Join(*dataDir, "peers.json")
	cache, err := peercache.Load(peersPath, peercache.DefaultMaxCachedPeers, peercache.DefaultTTL)
	if err != nil {
		fmt.Printf("No peer cache at %s (%v)\n", peersPath, err)
		return
	}
	entries := cache.All()
	fmt.Printf("Known peers: %d\n", len(entries))
	for _, e := range entries {
		knownEndpoints := 0
		if mgr != nil {
			knownEndpoints = len(mgr.GetAllEndpoints(e.Announcement.PeerID))
		}
		fmt.Printf("  %s  reliability=%.2f  reach=%d  endpoints=%d  capabilities=%s\n",
			e.Announcement.PeerID, e.Reliability(), len(e.Announcement.Reachability), knownEndpoints, strings.Join(e.Announcement.Capabilities, ","))
	}
}

// keepaliveStatsCmd handles "keepalive-stats --data-dir DIR": a peer
// reliability/freshness summary, distinct from status's raw dump.
func keepaliveStatsCmd() {
	fs := flag.NewFlagSet("keepalive-stats", flag.ExitOnError)
	dataDir := fs.String("data-dir", "", "Directory holding persisted state (required)")
	fs.Parse(os.Args[2:])

	if *dataDir == "" {
		fail("Error: --data-dir is required\nUsage: omerta keepalive-stats --data-dir <DIR>")
	}

	peersPath := filepath.Join(*dataDir, "peers.json")
	cache, err := peercache.Load(peersPath, peercache.DefaultMaxCachedPeers, peercache.DefaultTTL)
	if err != nil {
		fail("Failed to load peer cache: %v", err)
	}

	entries := cache.All()
	if len(entries) == 0 {
		fmt.Println("No peers tracked yet")
		return
	}

	fmt.Printf("%-18s %-12s %-10s\n", "PEER", "RELIABILITY", "CACHED_AT")
	fmt.Println(strings.Repeat("-", 44))
	for _, e := range entries {
		fmt.Printf("%-18s %-12.2f %-10s\n", e.Announcement.PeerID, e.Reliability(), e.CachedAt.Format(time.RFC3339))
	}
}

// testPeerCmd handles "test-peer --secret <URI> --peer <IP:PORT>": sends a
// bare ping and reports whether a pong comes back, per the teacher's
// testPeerCmd connectivity check.
func testPeerCmd() {
	fs := flag.NewFlagSet("test-peer", flag.ExitOnError)
	secret := fs.String("secret", "", "Invite URI (required)")
	peerAddr := fs.String("peer", "", "Peer endpoint to test (IP:PORT, required)")
	localPort := fs.Int("port", 0, "Local UDP port (0 = ephemeral)")
	fs.Parse(os.Args[2:])

	if *secret == "" || *peerAddr == "" {
		fail("Usage: omerta test-peer --secret <INVITE_URI> --peer <IP:PORT>")
	}

	nk, err := netkey.Decode(*secret)
	if err != nil {
		fail("Failed to parse invite URI: %v", err)
	}
	datagramKey, err := wire.DatagramKey(nk.NetworkKey)
	if err != nil {
		fail("Failed to derive datagram key: %v", err)
	}

	id, err := identity.Generate()
	if err != nil {
		fail("Failed to generate test identity: %v", err)
	}

	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: *localPort})
	if err != nil {
		fail("Failed to bind UDP: %v", err)
	}
	defer conn.Close()
	fmt.Printf("Listening on port %d\n", conn.LocalAddr().(*net.UDPAddr).Port)

	peerUDP, err := net.ResolveUDPAddr("udp", *peerAddr)
	if err != nil {
		fail("Failed to resolve peer: %v", err)
	}

	env, err := wire.Sign(id.PrivateKey, id.PublicKey, id.PeerID, uuid.New().String(), "", "", wire.Payload{
		Kind: wire.KindPing,
		Ping: &wire.PingPayload{MyNATType: string(natpredict.Unknown), RequestFullList: true},
	}, float64(time.Now().UnixNano())/1e9)
	if err != nil {
		fail("Failed to sign ping: %v", err)
	}
	sealed, err := wire.SealEnvelope(datagramKey, env, false)
	if err != nil {
		fail("Failed to seal envelope: %v", err)
	}

	fmt.Printf("Sending ping to %s (%d bytes)...\n", *peerAddr, len(sealed))
	if _, err := conn.WriteToUDP(sealed, peerUDP); err != nil {
		fail("Failed to send: %v", err)
	}

	fmt.Println("Waiting for pong (5s timeout)...")
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	buf := make([]byte, 65536)
	n, from, err := conn.ReadFromUDP(buf)
	if err != nil {
		fail("No response: %v\n\nPossible issues:\n- Peer not running or wrong port\n- Firewall blocking UDP\n- Different secrets (different network keys)", err)
	}
	fmt.Printf("Received %d bytes from %s\n", n, from.String())

	reply, err := wire.OpenEnvelope(datagramKey, buf[:n])
	if err != nil {
		fail("Failed to decrypt reply (wrong secret?): %v", err)
	}
	if reply.Payload.Kind != wire.KindPong || reply.Payload.Pong == nil {
		fail("Unexpected reply kind: %s", reply.Payload.Kind)
	}

	fmt.Println("SUCCESS! Peer exchange working!")
	fmt.Printf("  Peer id:         %s\n", reply.FromPeerID)
	fmt.Printf("  Your endpoint:   %s\n", reply.Payload.Pong.YourEndpoint)
	fmt.Printf("  Peer's NAT type: %s\n", reply.Payload.Pong.MyNATType)
}

// qrCmd handles "qr --secret <URI>": renders the URI as a text QR code,
// grounded on the teacher's text-block placeholder (a real QR library is
// not in the examples pack, so this keeps the teacher's own fallback).
func qrCmd() {
	fs := flag.NewFlagSet("qr", flag.ExitOnError)
	secret := fs.String("secret", "", "Invite URI to render (required)")
	fs.Parse(os.Args[2:])

	if *secret == "" {
		fail("Error: --secret is required\nUsage: omerta qr --secret <INVITE_URI>")
	}

	fmt.Println("Network Invite QR Code")
	fmt.Println("=======================")
	fmt.Println()
	fmt.Printf("URI: %s\n", *secret)
	fmt.Println()
	printTextQR(*secret)
	fmt.Println()
	fmt.Println("Scan this QR code or copy the URI to join the network.")
}

func printTextQR(data string) {
	const maxLineWidth = 40
	width := len(data)
	if width > maxLineWidth {
		width = maxLineWidth
	}

	border := strings.Repeat("██", width+2)
	fmt.Println(border)
	fmt.Printf("██%s██\n", strings.Repeat("  ", width))
	for i := 0; i < len(data); i += width {
		end := i + width
		if end > len(data) {
			end = len(data)
		}
		chunk := data[i:end]
		padding := strings.Repeat(" ", (width-len(chunk))*2)
		fmt.Printf("██  %s%s  ██\n", chunk, padding)
	}
	fmt.Printf("██%s██\n", strings.Repeat("  ", width))
	fmt.Println(border)
}

// loadIdentity loads or creates the node's durable Ed25519 identity under
// dataDir, or generates an ephemeral one if dataDir is empty.
func loadIdentity(dataDir string) (*identity.Identity, error) {
	if dataDir == "" {
		return identity.Generate()
	}
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, err
	}
	return identity.LoadOrCreate(filepath.Join(dataDir, "identity.key"))
}

// loadOrCreateMachineID reads the persisted machine_id for this install, or
// mints and saves a new one: machine_id is meant to be stable across
// restarts of the same install, per spec.md's identity model.
func loadOrCreateMachineID(dataDir string) (identity.MachineID, error) {
	if dataDir == "" {
		return identity.NewMachineID(), nil
	}
	path := filepath.Join(dataDir, "machine_id")
	if data, err := os.ReadFile(path); err == nil {
		return identity.MachineID(strings.TrimSpace(string(data))), nil
	}
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return "", err
	}
	id := identity.NewMachineID()
	if err := os.WriteFile(path, []byte(id), 0600); err != nil {
		return "", err
	}
	return id, nil
}
