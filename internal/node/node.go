package node

import (
	"context"
	"net"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/omertanet/omerta/internal/endpoints"
	"github.com/omertanet/omerta/internal/freshness"
	"github.com/omertanet/omerta/internal/gossip"
	"github.com/omertanet/omerta/internal/holepunch"
	"github.com/omertanet/omerta/internal/keepalive"
	"github.com/omertanet/omerta/internal/meshcore"
	"github.com/omertanet/omerta/internal/natpredict"
	"github.com/omertanet/omerta/internal/peercache"
	"github.com/omertanet/omerta/internal/ratelimit"
	"github.com/omertanet/omerta/internal/registry"
	"github.com/omertanet/omerta/internal/relay"
	"github.com/omertanet/omerta/internal/telemetry"
	"github.com/omertanet/omerta/internal/transport"
	"github.com/omertanet/omerta/internal/wire"
)

// ChannelHandler receives data sent on a channel via SendOnChannel/data
// payloads.
type ChannelHandler func(fromPeer string, data []byte)

// RequestHandler receives inbound request payloads; callers respond with
// Node.Respond.
type RequestHandler func(fromPeer, requestID string, data []byte)

// Node orchestrates every mesh-core subsystem behind the public surface
// described in spec.md §5: start/stop lifecycle, channel send/receive,
// and the event stream.
type Node struct {
	cfg         Config
	log         *telemetry.Logger
	datagramKey []byte

	transport  *transport.Transport
	endpointMgr *endpoints.Manager
	registry   *registry.Registry
	peerCache  *peercache.Cache
	natPredict *natpredict.Predictor
	contacts   *freshness.RecentContactTracker
	pathFail   *freshness.PathFailureReporter
	freshQuery *freshness.FreshnessQuery
	keepalive  *keepalive.Scheduler
	gossipE    *gossip.Engine
	relayTable *relay.Table
	relayFwd   *relay.Forwarder
	coord      *holepunch.Coordinator
	dedup      *dedupSet
	ipLimiter  *ratelimit.IPRateLimiter
	sendLimit  *rate.Limiter

	events eventBus

	handlersMu sync.RWMutex
	handlers   map[string]ChannelHandler
	reqHandler RequestHandler

	pendingMu    sync.Mutex
	pending      map[string]chan []byte
	pendingPunch *pendingPunchState
	probes       chan holepunch.Probe

	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New constructs a Node from cfg. Callers must call Start before sending or
// receiving anything.
func New(cfg Config) (*Node, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	datagramKey, err := wire.DatagramKey(cfg.Network.NetworkKey)
	if err != nil {
		return nil, meshcore.New(meshcore.KindInvalidConfiguration, "node", "new", err)
	}

	n := &Node{
		cfg:         cfg,
		log:         telemetry.NewLogger("node"),
		datagramKey: datagramKey,
		transport:   transport.New(telemetry.NewLogger("transport")),
		endpointMgr: endpoints.NewManager(cfg.EndpointValidationMode, cfg.Network.NetworkID()),
		registry:    registry.New(),
		relayTable:  relay.NewTable(cfg.Identity.PeerID),
		natPredict:  natpredict.New(natpredict.DefaultMinObservations, ""),
		ipLimiter:   ratelimit.NewDefault(),
		sendLimit:   rate.NewLimiter(rate.Limit(200), 400),
		handlers:    make(map[string]ChannelHandler),
		pending:     make(map[string]chan []byte),
		probes:      make(chan holepunch.Probe, 8),
	}

	peerCache, err := peercache.New(cfg.MaxCachedPeers, 0)
	if err != nil {
		return nil, err
	}
	n.peerCache = peerCache

	contacts, err := freshness.NewRecentContactTracker(cfg.FreshnessMaxContacts, cfg.FreshnessMaxAge)
	if err != nil {
		return nil, err
	}
	n.contacts = contacts
	n.pathFail = freshness.NewPathFailureReporter(0)
	n.freshQuery = freshness.NewFreshnessQuery(cfg.QueryMaxHops, cfg.QueryInterval)

	n.gossipE = gossip.New(cfg.Identity.PeerID, cfg.Gossip)

	n.relayFwd = relay.NewForwarder(cfg.Identity.PeerID, n.sendRawTo, n.bestEndpointForPeer)

	n.coord = holepunch.NewCoordinator(&coordinatorSender{n: n}, cfg.CoordinatorRequestTimeout)

	dedup, err := newDedupSet(DefaultDedupCapacity, 0)
	if err != nil {
		return nil, err
	}
	n.dedup = dedup

	n.keepalive = keepalive.New(keepalive.Config{Interval: cfg.KeepaliveInterval}, n.sendKeepalivePing, n.endpointMgr.GetBestEndpoint, n.onKeepaliveFailure)

	return n, nil
}

// Start binds the UDP socket, restores persisted state, and begins all
// background loops. Calling Start twice returns already_started.
func (n *Node) Start() error {
	n.mu.Lock()
	if n.running {
		n.mu.Unlock()
		return meshcore.New(meshcore.KindAlreadyStarted, "node", "start", nil)
	}

	if err := n.transport.Start(n.cfg.Port); err != nil {
		n.mu.Unlock()
		return meshcore.New(meshcore.KindConnectionFailed, "node", "start", err)
	}

	n.restorePersistedState()

	n.ctx, n.cancel = context.WithCancel(context.Background())
	n.running = true
	n.mu.Unlock()

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.receiveLoop()
	}()

	n.keepalive.Start(n.ctx)
	n.coord.Start(n.cfg.CoordinatorCleanupInterval)

	for _, peer := range n.cfg.BootstrapPeers {
		n.bootstrapPeer(peer)
	}

	n.emit(Event{Kind: EventStarted})
	n.log.Printf("started on port %d", n.transport.Port())
	return nil
}

// Stop halts all background activity, persists state, and closes the
// socket. Idempotent.
func (n *Node) Stop() error {
	n.mu.Lock()
	if !n.running {
		n.mu.Unlock()
		return nil
	}
	n.running = false
	cancel := n.cancel
	n.mu.Unlock()

	cancel()
	n.keepalive.Stop()
	n.coord.Stop()
	n.transport.Stop()
	n.wg.Wait()

	n.persistState()
	n.emit(Event{Kind: EventStopped})
	return nil
}

// OnChannel registers handler for inbound data payloads addressed to
// channel.
func (n *Node) OnChannel(channel string, handler ChannelHandler) {
	n.handlersMu.Lock()
	defer n.handlersMu.Unlock()
	n.handlers[channel] = handler
}

// OnRequest registers the single handler invoked for inbound request
// payloads.
func (n *Node) OnRequest(handler RequestHandler) {
	n.handlersMu.Lock()
	defer n.handlersMu.Unlock()
	n.reqHandler = handler
}

// RecordPotentialRelay records viaRelay as a candidate path to forPeer,
// learned via gossip about a symmetric peer.
func (n *Node) RecordPotentialRelay(forPeer, viaRelay string) {
	n.relayTable.Record(forPeer, viaRelay)
}

func (n *Node) restorePersistedState() {
	if n.cfg.DataDir == "" {
		return
	}
	if m, err := endpoints.LoadForNetwork(n.endpointsPath(), n.cfg.Network.NetworkID(), n.cfg.EndpointValidationMode); err == nil {
		n.endpointMgr = m
	} else {
		n.log.Error("restore", "send_failed", err)
	}
	if c, err := peercache.Load(n.peersPath(), n.cfg.MaxCachedPeers, 0); err == nil {
		n.peerCache = c
	} else {
		n.log.Error("restore", "send_failed", err)
	}
}

func (n *Node) persistState() {
	if n.cfg.DataDir == "" {
		return
	}
	if err := n.endpointMgr.Save(n.endpointsPath()); err != nil {
		n.log.Error("persist", "send_failed", err)
	}
	if err := n.peerCache.Save(n.peersPath()); err != nil {
		n.log.Error("persist", "send_failed", err)
	}
}

func (n *Node) endpointsPath() string { return filepath.Join(n.cfg.DataDir, "peer_endpoints.json") }
func (n *Node) peersPath() string     { return filepath.Join(n.cfg.DataDir, "peers.json") }

func (n *Node) receiveLoop() {
	for dg := range n.transport.Incoming() {
		n.handleDatagram(dg)
	}
}

func (n *Node) bootstrapPeer(endpoint string) {
	addr, err := net.ResolveUDPAddr("udp", endpoint)
	if err != nil {
		n.log.Error("bootstrap", "malformed_endpoint", err)
		return
	}
	env, err := wire.Sign(n.cfg.Identity.PrivateKey, n.cfg.Identity.PublicKey, n.cfg.Identity.PeerID, string(n.cfg.MachineID), "", "", wire.Payload{
		Kind: wire.KindPing,
		Ping: &wire.PingPayload{MyNATType: string(n.natPredict.Predict().NATType), RequestFullList: true},
	}, nowSeconds())
	if err != nil {
		n.log.Error("bootstrap", "send_failed", err)
		return
	}
	if err := n.sealAndSend(env, addr); err != nil {
		n.log.Error("bootstrap", "send_failed", err)
	}
}

func nowSeconds() float64 { return float64(time.Now().UnixNano()) / 1e9 }
