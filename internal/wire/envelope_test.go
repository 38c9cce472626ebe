package wire

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func mustIdentity(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey, string) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return pub, priv, derivePeerIDForTest(pub)
}

// derivePeerIDForTest mirrors identity.DerivePeerID without importing the
// identity package, avoiding an import cycle in tests.
func derivePeerIDForTest(pub ed25519.PublicKey) string {
	sum := sha256.Sum256(pub)
	return hex.EncodeToString(sum[:8])
}

func TestSignVerifyRoundTrip(t *testing.T) {
	pub, priv, peerID := mustIdentity(t)

	payload := Payload{Kind: KindPing, Ping: &PingPayload{MyNATType: "public"}}
	env, err := Sign(priv, pub, peerID, "machine-1", "", "general", payload, 1000.5)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	if !Verify(env, derivePeerIDForTest) {
		t.Fatal("expected Verify to succeed for freshly signed envelope")
	}
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	pub, priv, peerID := mustIdentity(t)
	payload := Payload{Kind: KindPing, Ping: &PingPayload{MyNATType: "public"}}
	env, err := Sign(priv, pub, peerID, "machine-1", "", "general", payload, 1000.5)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	env.Payload.Ping.MyNATType = "symmetric"
	if Verify(env, derivePeerIDForTest) {
		t.Fatal("expected Verify to fail after payload tampering")
	}
}

func TestVerifyRejectsMismatchedPeerID(t *testing.T) {
	pub, priv, _ := mustIdentity(t)
	payload := Payload{Kind: KindPing, Ping: &PingPayload{}}
	env, err := Sign(priv, pub, "0000000000000000", "machine-1", "", "", payload, 1.0)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if Verify(env, derivePeerIDForTest) {
		t.Fatal("expected Verify to fail when from_peer_id does not derive from public_key")
	}
}

func TestValidateChannel(t *testing.T) {
	tests := []struct {
		name    string
		channel string
		wantErr bool
	}{
		{name: "empty is valid", channel: ""},
		{name: "simple name", channel: "general"},
		{name: "dashes and underscores", channel: "team-chat_1"},
		{name: "too long", channel: stringRepeat("a", 65), wantErr: true},
		{name: "invalid character", channel: "bad channel!", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateChannel(tt.channel)
			if tt.wantErr && err == nil {
				t.Fatal("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestDecodeAutoJSONAndBinary(t *testing.T) {
	pub, priv, peerID := mustIdentity(t)
	payload := Payload{Kind: KindData, Data: &DataPayload{Bytes: []byte("hello")}}
	env, err := Sign(priv, pub, peerID, "machine-1", "peer-2", "chan", payload, 42.0)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	jsonBytes, err := EncodeJSON(env)
	if err != nil {
		t.Fatalf("EncodeJSON: %v", err)
	}
	decoded, err := DecodeAuto(jsonBytes)
	if err != nil {
		t.Fatalf("DecodeAuto(json): %v", err)
	}
	if decoded.MessageID != env.MessageID || decoded.Payload.Data.Bytes == nil {
		t.Fatalf("json round trip mismatch: %+v", decoded)
	}

	binBytes, err := EncodeBinary(env)
	if err != nil {
		t.Fatalf("EncodeBinary: %v", err)
	}
	decodedBin, err := DecodeAuto(binBytes)
	if err != nil {
		t.Fatalf("DecodeAuto(binary): %v", err)
	}
	if decodedBin.MessageID != env.MessageID {
		t.Fatalf("binary round trip message_id mismatch: got %q want %q", decodedBin.MessageID, env.MessageID)
	}
	if decodedBin.ToPeerID != env.ToPeerID || decodedBin.Channel != env.Channel {
		t.Fatalf("binary round trip field mismatch: %+v", decodedBin)
	}
	if decodedBin.Payload.Kind != KindData || string(decodedBin.Payload.Data.Bytes) != "hello" {
		t.Fatalf("binary round trip payload mismatch: %+v", decodedBin.Payload)
	}
	if !Verify(decodedBin, derivePeerIDForTest) {
		t.Fatal("expected signature to verify after binary round trip")
	}
}

func stringRepeat(s string, n int) string {
	out := make([]byte, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, s[0])
	}
	return string(out)
}
