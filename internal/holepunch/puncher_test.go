package holepunch

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"
)

// loopbackSender records every probe it is asked to send and, if echo is
// set, immediately hands a synthesized response probe back on replies:
// stands in for the node's transport.Transport without needing a real
// socket or a second node.
type loopbackSender struct {
	sent    []Probe
	echo    bool
	replies chan Probe
}

func (s *loopbackSender) SendTo(data []byte, addr *net.UDPAddr) error {
	probe, err := Decode(data)
	if err != nil {
		return err
	}
	s.sent = append(s.sent, probe)
	if s.echo && !probe.IsResponse {
		go func() {
			s.replies <- Probe{Sequence: probe.Sequence, TimestampNS: probe.TimestampNS, IsResponse: true, SenderID: probe.SenderID}
		}()
	}
	return nil
}

func TestPunchSucceedsWhenReplyArrivesOnSharedSocket(t *testing.T) {
	sender := &loopbackSender{echo: true, replies: make(chan Probe, 4)}
	res := Punch(context.Background(), sender, sender.replies, "127.0.0.1:9000", TruncatedSenderID("peer-a"), PuncherConfig{Timeout: time.Second})
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if res.Endpoint != "127.0.0.1:9000" {
		t.Fatalf("got endpoint %q", res.Endpoint)
	}
	if len(sender.sent) < 1 {
		t.Fatal("expected at least one probe sent")
	}
}

func TestPunchTimesOutWithoutReply(t *testing.T) {
	sender := &loopbackSender{}
	probes := make(chan Probe)
	res := Punch(context.Background(), sender, probes, "127.0.0.1:9000", TruncatedSenderID("peer-a"),
		PuncherConfig{Timeout: 50 * time.Millisecond, ProbeInterval: 10 * time.Millisecond, ProbeCount: 2})
	if res.Success || res.Reason != FailTimeout {
		t.Fatalf("got %+v, want fail(timeout)", res)
	}
}

func TestPunchReturnsSendFailedWhenSocketErrors(t *testing.T) {
	sender := failingSender{}
	res := Punch(context.Background(), sender, make(chan Probe), "127.0.0.1:9000", TruncatedSenderID("peer-a"), PuncherConfig{})
	if res.Success || res.Reason != FailSendFailed {
		t.Fatalf("got %+v, want fail(send_failed)", res)
	}
}

type failingSender struct{}

func (failingSender) SendTo(data []byte, addr *net.UDPAddr) error {
	return fmt.Errorf("socket gone")
}

func TestPunchCancelledByContext(t *testing.T) {
	sender := &loopbackSender{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := Punch(ctx, sender, make(chan Probe), "127.0.0.1:9000", TruncatedSenderID("peer-a"), PuncherConfig{Timeout: time.Second})
	if res.Success || res.Reason != FailCancelled {
		t.Fatalf("got %+v, want fail(cancelled)", res)
	}
}
