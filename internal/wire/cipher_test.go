package wire

import (
	"bytes"
	"testing"
)

func TestSealOpenRoundTrip(t *testing.T) {
	key, err := DatagramKey([]byte("a shared network secret, 32+ bytes"))
	if err != nil {
		t.Fatalf("DatagramKey: %v", err)
	}
	plaintext := []byte(`{"hello":"world"}`)

	sealed, err := Seal(key, plaintext)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if bytes.Contains(sealed, plaintext) {
		t.Fatal("sealed datagram must not contain the plaintext verbatim")
	}

	opened, err := Open(key, sealed)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(opened, plaintext) {
		t.Fatalf("round trip mismatch: got %q want %q", opened, plaintext)
	}
}

func TestOpenRejectsWrongKey(t *testing.T) {
	keyA, _ := DatagramKey([]byte("network-a-secret"))
	keyB, _ := DatagramKey([]byte("network-b-secret"))

	sealed, err := Seal(keyA, []byte("secret payload"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if _, err := Open(keyB, sealed); err == nil {
		t.Fatal("expected Open to fail with the wrong network's key")
	}
}

func TestOpenRejectsTamperedCiphertext(t *testing.T) {
	key, _ := DatagramKey([]byte("network-secret"))
	sealed, err := Seal(key, []byte("payload"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	tampered := append([]byte(nil), sealed...)
	tampered[len(tampered)-1] ^= 0xFF
	if _, err := Open(key, tampered); err == nil {
		t.Fatal("expected Open to reject tampered ciphertext")
	}
}

func TestSealEnvelopeOpenEnvelopeRoundTrip(t *testing.T) {
	pub, priv, peerID := mustIdentity(t)
	payload := Payload{Kind: KindPing, Ping: &PingPayload{MyNATType: "unknown"}}
	env, err := Sign(priv, pub, peerID, "machine-1", "", "", payload, 7.0)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	key, err := DatagramKey([]byte("network-secret"))
	if err != nil {
		t.Fatalf("DatagramKey: %v", err)
	}

	for _, useJSON := range []bool{true, false} {
		sealed, err := SealEnvelope(key, env, useJSON)
		if err != nil {
			t.Fatalf("SealEnvelope(json=%v): %v", useJSON, err)
		}
		opened, err := OpenEnvelope(key, sealed)
		if err != nil {
			t.Fatalf("OpenEnvelope(json=%v): %v", useJSON, err)
		}
		if opened.MessageID != env.MessageID {
			t.Fatalf("message_id mismatch (json=%v): got %q want %q", useJSON, opened.MessageID, env.MessageID)
		}
		if !Verify(opened, derivePeerIDForTest) {
			t.Fatalf("expected sealed/opened envelope to verify (json=%v)", useJSON)
		}
	}
}
