package natpredict

import "testing"

func TestPredictUnknownBelowMinObservations(t *testing.T) {
	p := New(2, "")
	p.Observe("peer1", "1.2.3.4:5000")
	result := p.Predict()
	if result.NATType != Unknown {
		t.Fatalf("got %v, want Unknown with a single reporter", result.NATType)
	}
}

func TestPredictPortRestrictedCone(t *testing.T) {
	p := New(2, "")
	p.Observe("peer1", "1.2.3.4:5000")
	p.Observe("peer2", "1.2.3.4:5000")

	result := p.Predict()
	if result.NATType != PortRestrictedCone {
		t.Fatalf("got %v, want PortRestrictedCone", result.NATType)
	}
	if result.Confidence != 2 {
		t.Fatalf("confidence = %d, want 2", result.Confidence)
	}
}

func TestPredictPublicWhenMatchesLocalEndpoint(t *testing.T) {
	p := New(2, "1.2.3.4:5000")
	p.Observe("peer1", "1.2.3.4:5000")
	p.Observe("peer2", "1.2.3.4:5000")

	result := p.Predict()
	if result.NATType != Public {
		t.Fatalf("got %v, want Public", result.NATType)
	}
	if result.PublicEndpoint != "1.2.3.4:5000" {
		t.Fatalf("PublicEndpoint = %q", result.PublicEndpoint)
	}
}

func TestPredictSymmetricOnDifferentPorts(t *testing.T) {
	p := New(2, "")
	p.Observe("peer1", "1.2.3.4:5000")
	p.Observe("peer2", "1.2.3.4:5001")

	result := p.Predict()
	if result.NATType != Symmetric {
		t.Fatalf("got %v, want Symmetric", result.NATType)
	}
}

func TestPredictSymmetricOnDifferentHosts(t *testing.T) {
	p := New(2, "")
	p.Observe("peer1", "1.2.3.4:5000")
	p.Observe("peer2", "5.6.7.8:5000")

	result := p.Predict()
	if result.NATType != Symmetric {
		t.Fatalf("got %v, want Symmetric", result.NATType)
	}
}

func TestReplacingObservationReclassifies(t *testing.T) {
	// S4: peer1 -> X, peer2 -> X gives port_restricted_cone; replacing
	// peer2's observation with a different port flips to symmetric.
	p := New(2, "")
	p.Observe("peer1", "1.2.3.4:5000")
	p.Observe("peer2", "1.2.3.4:5000")
	if result := p.Predict(); result.NATType != PortRestrictedCone {
		t.Fatalf("initial classification = %v, want PortRestrictedCone", result.NATType)
	}

	p.Observe("peer2", "1.2.3.4:5001")
	result := p.Predict()
	if result.NATType != Symmetric {
		t.Fatalf("got %v, want Symmetric after replacing observation", result.NATType)
	}
	if result.PublicEndpoint != "" {
		t.Fatalf("expected no PublicEndpoint for symmetric classification, got %q", result.PublicEndpoint)
	}
}

func TestReset(t *testing.T) {
	p := New(2, "")
	p.Observe("peer1", "1.2.3.4:5000")
	p.Observe("peer2", "1.2.3.4:5000")
	p.Reset()

	if result := p.Predict(); result.NATType != Unknown || result.Confidence != 0 {
		t.Fatalf("got %+v after Reset, want Unknown/0", result)
	}
}
