package freshness

import (
	"testing"
	"time"

	"github.com/omertanet/omerta/internal/wire"
)

func TestRecentContactTrackerTouchAndHasRecentContact(t *testing.T) {
	tracker, err := NewRecentContactTracker(8, 300*time.Millisecond)
	if err != nil {
		t.Fatalf("NewRecentContactTracker: %v", err)
	}
	tracker.Touch("peer-a", wire.Reachability{}, 20, ConnectionDirect, "path-1")

	if !tracker.HasRecentContact("peer-a", 0) {
		t.Fatal("expected peer-a to have a recent contact")
	}
	time.Sleep(400 * time.Millisecond)
	if tracker.HasRecentContact("peer-a", 0) {
		t.Fatal("expected contact to have aged out")
	}
}

func TestRemoveContactsUsingPath(t *testing.T) {
	tracker, err := NewRecentContactTracker(8, time.Hour)
	if err != nil {
		t.Fatalf("NewRecentContactTracker: %v", err)
	}
	tracker.Touch("peer-a", wire.Reachability{}, 10, ConnectionDirect, "path-1")
	tracker.Touch("peer-b", wire.Reachability{}, 10, ConnectionDirect, "path-2")

	tracker.RemoveContactsUsingPath("path-1")

	if _, ok := tracker.Get("peer-a"); ok {
		t.Fatal("expected peer-a's contact (path-1) to be removed")
	}
	if _, ok := tracker.Get("peer-b"); !ok {
		t.Fatal("expected peer-b's contact (path-2) to remain")
	}
}

func TestPathFailureReporterRateLimit(t *testing.T) {
	r := NewPathFailureReporter(50 * time.Millisecond)

	if !r.ReportFailure("peer-a", "path-1") {
		t.Fatal("expected first report to succeed")
	}
	if r.ReportFailure("peer-a", "path-1") {
		t.Fatal("expected immediate re-report to be rate-limited")
	}
	if !r.IsFailed("peer-a", "path-1") {
		t.Fatal("expected path-1 to be marked failed")
	}

	time.Sleep(60 * time.Millisecond)
	if !r.ReportFailure("peer-a", "path-1") {
		t.Fatal("expected report after interval to succeed")
	}
}

func TestPathFailureReporterDoesNotConflatePaths(t *testing.T) {
	r := NewPathFailureReporter(time.Hour)
	r.ReportFailure("peer-a", "path-1")
	if r.IsFailed("peer-a", "path-2") {
		t.Fatal("failure on path-1 must not mark path-2 as failed")
	}
}

func TestFreshnessQueryRateLimitsPerPeer(t *testing.T) {
	q := NewFreshnessQuery(3, 50*time.Millisecond)

	if !q.ShouldQuery("peer-a") {
		t.Fatal("expected first query to be allowed")
	}
	if q.ShouldQuery("peer-a") {
		t.Fatal("expected immediate re-query to be rate-limited")
	}
	if !q.ShouldQuery("peer-b") {
		t.Fatal("expected a different peer to be unaffected by peer-a's rate limit")
	}

	time.Sleep(60 * time.Millisecond)
	if !q.ShouldQuery("peer-a") {
		t.Fatal("expected query after interval to be allowed")
	}
}

func TestFreshnessQueryShouldForward(t *testing.T) {
	q := NewFreshnessQuery(3, time.Minute)
	if !q.ShouldForward(1) {
		t.Fatal("expected forwarding with hops remaining")
	}
	if q.ShouldForward(0) {
		t.Fatal("expected no forwarding once hops are exhausted")
	}
}

func TestFreshnessQueryMaxHopsDefaultsWhenUnset(t *testing.T) {
	q := NewFreshnessQuery(0, time.Minute)
	if q.MaxHops() != DefaultQueryMaxHops {
		t.Fatalf("got %d, want default %d", q.MaxHops(), DefaultQueryMaxHops)
	}

	q2 := NewFreshnessQuery(5, time.Minute)
	if q2.MaxHops() != 5 {
		t.Fatalf("got %d, want configured 5", q2.MaxHops())
	}
}
