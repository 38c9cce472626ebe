package peercache

import (
	"testing"
	"time"

	"github.com/omertanet/omerta/internal/wire"
)

func TestPutGetAndReliabilityPreserved(t *testing.T) {
	c, err := New(8, time.Hour)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	c.Put(wire.PeerAnnouncement{PeerID: "peer-a", TTLSeconds: 60})
	c.RecordSuccess("peer-a")
	c.RecordSuccess("peer-a")
	c.RecordFailure("peer-a")

	entry, ok := c.Get("peer-a")
	if !ok {
		t.Fatal("expected peer-a to be cached")
	}
	if entry.SuccessCount != 2 || entry.FailureCount != 1 {
		t.Fatalf("got success=%d failure=%d", entry.SuccessCount, entry.FailureCount)
	}

	// Re-announcing the same peer must not reset reliability counters.
	c.Put(wire.PeerAnnouncement{PeerID: "peer-a", TTLSeconds: 120})
	entry, _ = c.Get("peer-a")
	if entry.SuccessCount != 2 || entry.FailureCount != 1 {
		t.Fatalf("counters reset on re-announce: success=%d failure=%d", entry.SuccessCount, entry.FailureCount)
	}
	if entry.Reliability() < 0.66 || entry.Reliability() > 0.67 {
		t.Fatalf("reliability = %v, want ~0.667", entry.Reliability())
	}
}

func TestGetExpiresByTTL(t *testing.T) {
	c, err := New(8, time.Millisecond)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.Put(wire.PeerAnnouncement{PeerID: "peer-a"})
	time.Sleep(5 * time.Millisecond)

	if _, ok := c.Get("peer-a"); ok {
		t.Fatal("expected entry to be expired")
	}
}

func TestEvictionAtCapacity(t *testing.T) {
	c, err := New(2, time.Hour)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.Put(wire.PeerAnnouncement{PeerID: "peer-a"})
	c.Put(wire.PeerAnnouncement{PeerID: "peer-b"})
	c.Put(wire.PeerAnnouncement{PeerID: "peer-c"})

	if _, ok := c.Get("peer-a"); ok {
		t.Fatal("expected least-recently-used peer-a to be evicted")
	}
	if _, ok := c.Get("peer-c"); !ok {
		t.Fatal("expected most recently added peer-c to remain cached")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/peers.json"

	c, err := New(8, time.Hour)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.Put(wire.PeerAnnouncement{PeerID: "peer-a"})
	c.RecordSuccess("peer-a")
	if err := c.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path, 8, time.Hour)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	entry, ok := loaded.Get("peer-a")
	if !ok {
		t.Fatal("expected peer-a to survive round trip")
	}
	if entry.SuccessCount != 1 {
		t.Fatalf("success count not preserved: got %d", entry.SuccessCount)
	}
}
