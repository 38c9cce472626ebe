package holepunch

import (
	"context"
	"fmt"
	"net"
	"time"
)

// Defaults per spec.md §4.4.
const (
	DefaultProbeCount         = 5
	DefaultProbeInterval      = 200 * time.Millisecond
	DefaultResponseProbeCount = 3
	DefaultTimeout            = 10 * time.Second
)

// FailReason enumerates why a punch attempt failed.
type FailReason string

const (
	FailTimeout         FailReason = "timeout"
	FailBothSymmetric   FailReason = "both_symmetric"
	FailSendFailed      FailReason = "send_failed"
	FailInvalidEndpoint FailReason = "invalid_endpoint"
	FailCancelled       FailReason = "cancelled"
)

// Result is the outcome of a punch attempt: exactly one of Success or
// Failure (via Reason) is populated.
type Result struct {
	Success  bool
	Endpoint string
	RTT      time.Duration

	Reason      FailReason
	SocketError string // populated when Reason indicates a raw socket error
}

// PuncherConfig configures one punch attempt; zero fields take spec
// defaults.
type PuncherConfig struct {
	ProbeCount         int
	ProbeInterval      time.Duration
	ResponseProbeCount int
	Timeout            time.Duration
}

func (c PuncherConfig) withDefaults() PuncherConfig {
	if c.ProbeCount <= 0 {
		c.ProbeCount = DefaultProbeCount
	}
	if c.ProbeInterval <= 0 {
		c.ProbeInterval = DefaultProbeInterval
	}
	if c.ResponseProbeCount <= 0 {
		c.ResponseProbeCount = DefaultResponseProbeCount
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// ProbeSender writes a raw probe datagram to addr. Implemented by the
// node's transport.Transport so the punch shares its socket rather than
// binding a second one on the same local port (the mapping a punch relies
// on is keyed to the port peers already know, which is the port the main
// transport already owns).
type ProbeSender interface {
	SendTo(data []byte, addr *net.UDPAddr) error
}

// Punch runs the puncher state machine against targetEndpoint over an
// already-bound shared socket: sender writes outbound probes, and probes
// delivers inbound ones as demultiplexed by the caller's receive loop (see
// IsHoleProbe). senderID identifies this node in outgoing probes.
func Punch(ctx context.Context, sender ProbeSender, probes <-chan Probe, targetEndpoint string, senderID [16]byte, cfg PuncherConfig) Result {
	cfg = cfg.withDefaults()

	targetAddr, err := net.ResolveUDPAddr("udp", targetEndpoint)
	if err != nil {
		return Result{Reason: FailInvalidEndpoint}
	}

	timeoutTimer := time.NewTimer(cfg.Timeout)
	defer timeoutTimer.Stop()

	ticker := time.NewTicker(cfg.ProbeInterval)
	defer ticker.Stop()

	sendProbe := func(seq uint32, isResponse bool) error {
		probe := Probe{Sequence: seq, TimestampNS: time.Now().UnixNano(), IsResponse: isResponse, SenderID: senderID}
		return sender.SendTo(Encode(probe), targetAddr)
	}

	if err := sendProbe(0, false); err != nil {
		return Result{Reason: FailSendFailed, SocketError: err.Error()}
	}
	sent := 1

	for {
		select {
		case <-ctx.Done():
			return Result{Reason: FailCancelled}
		case probe := <-probes:
			rtt := time.Duration(time.Now().UnixNano()-probe.TimestampNS) * time.Nanosecond
			if rtt < 0 {
				rtt = 0
			}
			for i := 0; i < cfg.ResponseProbeCount; i++ {
				sendProbe(uint32(sent+i), true)
			}
			return Result{Success: true, Endpoint: targetEndpoint, RTT: rtt}
		case <-ticker.C:
			if sent >= cfg.ProbeCount {
				continue
			}
			if err := sendProbe(uint32(sent), false); err != nil {
				return Result{Reason: FailSendFailed, SocketError: err.Error()}
			}
			sent++
		case <-timeoutTimer.C:
			return Result{Reason: FailTimeout}
		}
	}
}

// PunchOrImpossible first checks NAT compatibility; if the pairing is
// impossible (both symmetric), it returns fail(both_symmetric) without
// sending any probes, per spec.md P5.
func PunchOrImpossible(ctx context.Context, sender ProbeSender, probes <-chan Probe, targetEndpoint, initiatorNAT, responderNAT string, senderID [16]byte, cfg PuncherConfig) Result {
	if _, canSucceed := CheckCompatibility(initiatorNAT, responderNAT); !canSucceed {
		return Result{Reason: FailBothSymmetric}
	}
	return Punch(ctx, sender, probes, targetEndpoint, senderID, cfg)
}

// Error implements error-adjacent formatting for logging a failed Result.
func (r Result) Error() string {
	if r.Success {
		return ""
	}
	if r.SocketError != "" {
		return fmt.Sprintf("%s: %s", r.Reason, r.SocketError)
	}
	return string(r.Reason)
}
