package gossip

import (
	"testing"
	"time"

	"github.com/omertanet/omerta/internal/wire"
)

func TestLearnNeverQueuesSelf(t *testing.T) {
	e := New("self-peer", Config{})
	e.Learn(wire.PeerEndpointInfo{PeerID: "self-peer"})
	if e.QueueLen() != 0 {
		t.Fatalf("expected self to never be queued, got queue length %d", e.QueueLen())
	}
}

func TestLearnDoesNotResetExistingCount(t *testing.T) {
	e := New("self-peer", Config{Fanout: 5})
	e.Learn(wire.PeerEndpointInfo{PeerID: "peer-x"})
	e.BuildOutboundList("other")
	e.BuildOutboundList("other")

	count, ok := e.CountFor("peer-x")
	if !ok || count != 3 {
		t.Fatalf("count = %d, ok=%v, want 3 after two inclusions", count, ok)
	}

	e.Learn(wire.PeerEndpointInfo{PeerID: "peer-x"}) // re-add, should not reset

	count, ok = e.CountFor("peer-x")
	if !ok || count != 3 {
		t.Fatalf("count after re-learn = %d, want unchanged 3 (I4)", count)
	}
}

func TestGossipExhaustion(t *testing.T) {
	// S5: peer X with fanout 5, built 5 times, excluding peer Y, appears in
	// all 5 outputs and the queue ends up empty.
	e := New("self-peer", Config{Fanout: 5})
	e.Learn(wire.PeerEndpointInfo{PeerID: "peer-x"})

	appearances := 0
	for i := 0; i < 5; i++ {
		out := e.BuildOutboundList("peer-y")
		for _, info := range out {
			if info.PeerID == "peer-x" {
				appearances++
			}
		}
	}

	if appearances != 5 {
		t.Fatalf("peer-x appeared %d times, want 5", appearances)
	}
	if e.QueueLen() != 0 {
		t.Fatalf("expected queue to be empty after exhausting fanout, got %d", e.QueueLen())
	}
}

func TestBuildOutboundListExcludesRecipientAndSelf(t *testing.T) {
	e := New("self-peer", Config{})
	e.Learn(wire.PeerEndpointInfo{PeerID: "peer-y"})
	e.Learn(wire.PeerEndpointInfo{PeerID: "peer-z"})

	out := e.BuildOutboundList("peer-y")
	for _, info := range out {
		if info.PeerID == "peer-y" || info.PeerID == "self-peer" {
			t.Fatalf("outbound list must exclude recipient and self, got %v", info)
		}
	}
}

func TestBuildOutboundListCapsAtMaxPerMessage(t *testing.T) {
	e := New("self-peer", Config{MaxPerMessage: 3})
	for i := 0; i < 10; i++ {
		e.Learn(wire.PeerEndpointInfo{PeerID: string(rune('a' + i))})
	}
	out := e.BuildOutboundList("nobody")
	if len(out) != 3 {
		t.Fatalf("len(out) = %d, want 3", len(out))
	}
}

func TestFirstHandTaggingAppliesToOutput(t *testing.T) {
	e := New("self-peer", Config{})
	e.Learn(wire.PeerEndpointInfo{PeerID: "peer-x"})
	e.MarkFirstHand("peer-x")

	out := e.BuildOutboundList("nobody")
	if len(out) != 1 || !out[0].IsFirstHand {
		t.Fatalf("expected peer-x to be tagged first-hand in output, got %+v", out)
	}
}

func TestNeedsFullListRequest(t *testing.T) {
	if !NeedsFullListRequest(false, time.Time{}) {
		t.Fatal("no endpoint at all should request full list")
	}
	if !NeedsFullListRequest(true, time.Time{}) {
		t.Fatal("zero last-contact time should request full list")
	}
	if !NeedsFullListRequest(true, time.Now().Add(-2*time.Minute)) {
		t.Fatal("contact older than reconnect window should request full list")
	}
	if NeedsFullListRequest(true, time.Now()) {
		t.Fatal("recently contacted peer should not request full list")
	}
}
