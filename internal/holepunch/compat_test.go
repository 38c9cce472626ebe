package holepunch

import "testing"

func TestCheckCompatibilityBothSymmetricImpossible(t *testing.T) {
	strategy, canSucceed := CheckCompatibility("symmetric", "symmetric")
	if canSucceed {
		t.Fatal("both symmetric must be incompatible")
	}
	if strategy != StrategyImpossible {
		t.Fatalf("strategy = %s, want impossible", strategy)
	}
}

func TestCheckCompatibilityResponderSymmetric(t *testing.T) {
	strategy, canSucceed := CheckCompatibility("port_restricted_cone", "symmetric")
	if !canSucceed {
		t.Fatal("responder-only symmetric must be compatible")
	}
	if strategy != StrategyResponderFirst {
		t.Fatalf("strategy = %s, want responder_first", strategy)
	}
}

func TestCheckCompatibilityInitiatorSymmetric(t *testing.T) {
	strategy, canSucceed := CheckCompatibility("symmetric", "port_restricted_cone")
	if !canSucceed {
		t.Fatal("initiator-only symmetric must be compatible")
	}
	if strategy != StrategyInitiatorFirst {
		t.Fatalf("strategy = %s, want initiator_first", strategy)
	}
}

func TestCheckCompatibilityNeitherSymmetric(t *testing.T) {
	strategy, canSucceed := CheckCompatibility("public", "port_restricted_cone")
	if !canSucceed || strategy != StrategySimultaneous {
		t.Fatalf("got (%s, %v), want (simultaneous, true)", strategy, canSucceed)
	}
}

func TestCheckCompatibilityUnknownTreatedAsSimultaneous(t *testing.T) {
	strategy, canSucceed := CheckCompatibility("unknown", "symmetric")
	// responder symmetric still governs even when initiator is unknown.
	if !canSucceed || strategy != StrategyResponderFirst {
		t.Fatalf("got (%s, %v), want (responder_first, true)", strategy, canSucceed)
	}

	strategy, canSucceed = CheckCompatibility("unknown", "public")
	if !canSucceed || strategy != StrategySimultaneous {
		t.Fatalf("got (%s, %v), want (simultaneous, true)", strategy, canSucceed)
	}
}
