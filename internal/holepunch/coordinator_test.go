package holepunch

import (
	"sync"
	"testing"
	"time"
)

type fakeSender struct {
	mu       sync.Mutex
	invites  []Invite
	executes []Execute
}

func (f *fakeSender) SendInvite(targetPeer string, inv Invite) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invites = append(f.invites, inv)
	return nil
}

func (f *fakeSender) SendExecute(peer string, ex Execute) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executes = append(f.executes, ex)
	return nil
}

func TestHandleRequestSendsInviteAndTransitionsState(t *testing.T) {
	sender := &fakeSender{}
	c := NewCoordinator(sender, 0)

	ok := c.HandleRequest("req-1", "peer-a", "peer-b", "1.2.3.4:9000")
	if !ok {
		t.Fatal("expected request to be accepted")
	}
	state, found := c.State("req-1")
	if !found || state != StateInviteSent {
		t.Fatalf("state = %v, found=%v, want invite_sent", state, found)
	}
	if len(sender.invites) != 1 || sender.invites[0].InitiatorPeer != "peer-a" {
		t.Fatalf("unexpected invites: %+v", sender.invites)
	}
}

func TestHandleAcceptSendsExecuteToBothPeersConcurrently(t *testing.T) {
	sender := &fakeSender{}
	c := NewCoordinator(sender, 0)
	c.HandleRequest("req-1", "peer-a", "peer-b", "1.2.3.4:9000")

	c.HandleAccept("req-1", "1.2.3.4:9000", "5.6.7.8:9001")

	if len(sender.executes) != 2 {
		t.Fatalf("expected 2 execute messages, got %d", len(sender.executes))
	}
	for _, ex := range sender.executes {
		if !ex.SimultaneousSend {
			t.Fatal("expected simultaneous_send true on both execute messages")
		}
	}
	state, _ := c.State("req-1")
	if state != StateExecuting {
		t.Fatalf("state = %v, want executing", state)
	}
}

func TestRequestCapRejectsBeyondMax(t *testing.T) {
	sender := &fakeSender{}
	c := NewCoordinator(sender, 0)
	for i := 0; i < MaxConcurrentRequests; i++ {
		if !c.HandleRequest(string(rune('a'+i%26))+string(rune(i)), "peer-a", "peer-b", "") {
			t.Fatalf("request %d unexpectedly rejected before cap", i)
		}
	}
	if c.HandleRequest("overflow", "peer-a", "peer-b", "") {
		t.Fatal("expected request beyond cap to be rejected")
	}
}

func TestSweepExpiresStaleRequests(t *testing.T) {
	sender := &fakeSender{}
	c := NewCoordinator(sender, 5*time.Millisecond)
	c.HandleRequest("req-1", "peer-a", "peer-b", "")

	expired := c.Sweep(time.Now().Add(10 * time.Millisecond))
	if expired != 1 {
		t.Fatalf("expired = %d, want 1", expired)
	}
	state, found := c.State("req-1")
	if !found || state != StateExpired {
		t.Fatalf("state = %v, found=%v, want expired", state, found)
	}
}

func TestSweepRemovesCompletedAndExpiredRequests(t *testing.T) {
	sender := &fakeSender{}
	c := NewCoordinator(sender, 0)
	c.HandleRequest("req-1", "peer-a", "peer-b", "")
	c.Complete("req-1", true)

	c.Sweep(time.Now())
	if _, found := c.State("req-1"); found {
		t.Fatal("expected completed request to be removed from tracking")
	}
}

func TestStartStopCleanupDoesNotPanic(t *testing.T) {
	c := NewCoordinator(&fakeSender{}, 0)
	c.Start(5 * time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	c.Stop()
}

func TestPunchOrImpossibleReturnsBothSymmetricWithoutBinding(t *testing.T) {
	res := PunchOrImpossible(nil, nil, nil, "1.2.3.4:9000", "symmetric", "symmetric", TruncatedSenderID("x"), PuncherConfig{})
	if res.Success || res.Reason != FailBothSymmetric {
		t.Fatalf("got %+v, want fail(both_symmetric)", res)
	}
}
