// Package transport owns the raw UDP socket (spec.md C3 UDP Transport):
// binding, sending, and receiving datagrams with their source address, with
// no knowledge of envelopes or payload semantics. Grounded on the teacher's
// PeerExchange socket handling
// (atvirokodosprendimai/wgmesh/pkg/discovery/exchange.go Start/listenLoop),
// pulled out of the message-handling code it was entangled with there.
package transport

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/omertanet/omerta/internal/telemetry"
)

// MaxDatagramSize is the largest UDP datagram this transport will read.
const MaxDatagramSize = 65536

// readPollInterval bounds how long each blocking read waits before checking
// for shutdown, mirroring the teacher's 1-second SetReadDeadline poll.
const readPollInterval = time.Second

// Datagram is a received UDP packet paired with its source address.
type Datagram struct {
	Data []byte
	From *net.UDPAddr
}

// Transport is a bound UDP socket that delivers received datagrams on a
// channel until Stop is called.
type Transport struct {
	log *telemetry.Logger

	mu      sync.RWMutex
	conn    *net.UDPConn
	port    int
	running bool
	stopCh  chan struct{}

	incoming chan Datagram
}

// New constructs a Transport bound to no socket yet; call Start to bind.
func New(log *telemetry.Logger) *Transport {
	return &Transport{log: log, incoming: make(chan Datagram, 256)}
}

// Start binds a UDP socket on port (0 picks an ephemeral port) and begins
// the receive loop.
func (t *Transport) Start(port int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return fmt.Errorf("transport: already started")
	}

	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: port})
	if err != nil {
		return fmt.Errorf("transport: bind port %d: %w", port, err)
	}

	t.conn = conn
	t.port = conn.LocalAddr().(*net.UDPAddr).Port
	t.stopCh = make(chan struct{})
	t.running = true

	go t.receiveLoop(conn, t.stopCh)

	t.log.Printf("listening on UDP port %d", t.port)
	return nil
}

// Stop closes the socket and the receive loop. Idempotent.
func (t *Transport) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.running {
		return
	}
	t.running = false
	close(t.stopCh)
	t.conn.Close()
}

// Port returns the bound local port, or 0 if not started.
func (t *Transport) Port() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.port
}

// Incoming returns the channel of received datagrams. Closed when Stop
// completes draining the receive loop.
func (t *Transport) Incoming() <-chan Datagram {
	return t.incoming
}

// SendTo writes data to addr. Safe to call concurrently with receiveLoop.
func (t *Transport) SendTo(data []byte, addr *net.UDPAddr) error {
	t.mu.RLock()
	conn := t.conn
	running := t.running
	t.mu.RUnlock()

	if !running || conn == nil {
		return fmt.Errorf("transport: not started")
	}
	if _, err := conn.WriteToUDP(data, addr); err != nil {
		return fmt.Errorf("transport: send to %s: %w", addr, err)
	}
	return nil
}

func (t *Transport) receiveLoop(conn *net.UDPConn, stopCh chan struct{}) {
	defer close(t.incoming)
	buf := make([]byte, MaxDatagramSize)

	for {
		select {
		case <-stopCh:
			return
		default:
		}

		conn.SetReadDeadline(time.Now().Add(readPollInterval))
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			select {
			case <-stopCh:
				return
			default:
				t.log.Error("receive", "connection_failed", err)
				continue
			}
		}

		data := make([]byte, n)
		copy(data, buf[:n])

		select {
		case t.incoming <- Datagram{Data: data, From: from}:
		case <-stopCh:
			return
		}
	}
}
