package wire

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
)

// BinaryVersion is the leading version byte of the binary wire form
// (spec.md §6). JSON envelopes are distinguished from binary ones by their
// leading byte ('{' vs this value), so BinaryVersion must never equal '{'
// (0x7B).
const BinaryVersion byte = 0x01

// EncodeBinary serializes e as the length-prefixed binary wire form (the
// second wire form; starts with BinaryVersion, never '{').
func EncodeBinary(e *Envelope) ([]byte, error) {
	return encodeBinary(e)
}

// encodeBinary writes e in the length-prefixed binary wire form: a version
// byte, then each string field prefixed with a uint16 length, then hop_count
// (u8), timestamp (f64 raw bits), the tagged payload, and a length-prefixed
// signature. Grounded on the teacher's length-prefixed framing in
// pkg/discovery/transport.go's UDP datagram reader, generalized from a
// single message type to the full envelope.
func encodeBinary(e *Envelope) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(BinaryVersion)

	for _, s := range []string{e.MessageID, e.FromPeerID, e.PublicKey, e.MachineID, e.ToPeerID, e.Channel} {
		if err := writeString(&buf, s); err != nil {
			return nil, fmt.Errorf("wire: encode binary: %w", err)
		}
	}
	buf.WriteByte(e.HopCount)

	var tsBits [8]byte
	binary.BigEndian.PutUint64(tsBits[:], math.Float64bits(e.Timestamp))
	buf.Write(tsBits[:])

	payloadBody, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("wire: encode binary: payload: %w", err)
	}
	buf.WriteByte(byte(e.Payload.Kind))
	if err := writeBytes(&buf, payloadBody); err != nil {
		return nil, fmt.Errorf("wire: encode binary: %w", err)
	}

	if err := writeString(&buf, mustDecodeSig(e.Signature)); err != nil {
		return nil, fmt.Errorf("wire: encode binary: %w", err)
	}
	return buf.Bytes(), nil
}

// mustDecodeSig round-trips a base64 signature back to raw bytes so the
// binary form stores it as opaque bytes rather than double-base64-encoding;
// an already-invalid signature is passed through unchanged so callers never
// see a silent substitution.
func mustDecodeSig(sig string) string {
	raw, err := base64.StdEncoding.DecodeString(sig)
	if err != nil {
		return sig
	}
	return string(raw)
}

func decodeBinary(data []byte) (*Envelope, error) {
	r := bytes.NewReader(data)
	version, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("wire: decode binary: read version: %w", err)
	}
	if version != BinaryVersion {
		return nil, fmt.Errorf("wire: decode binary: unsupported version %d", version)
	}

	fields := make([]string, 6)
	for i := range fields {
		s, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("wire: decode binary: field %d: %w", i, err)
		}
		fields[i] = s
	}

	hopCount, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("wire: decode binary: hop_count: %w", err)
	}

	var tsBits [8]byte
	if _, err := io.ReadFull(r, tsBits[:]); err != nil {
		return nil, fmt.Errorf("wire: decode binary: timestamp: %w", err)
	}
	timestamp := math.Float64frombits(binary.BigEndian.Uint64(tsBits[:]))

	kindByte, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("wire: decode binary: payload kind: %w", err)
	}
	body, err := readBytes(r)
	if err != nil {
		return nil, fmt.Errorf("wire: decode binary: payload body: %w", err)
	}
	var payload Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("wire: decode binary: payload unmarshal: %w", err)
	}
	payload.Kind = PayloadKind(kindByte)

	sigRaw, err := readString(r)
	if err != nil {
		return nil, fmt.Errorf("wire: decode binary: signature: %w", err)
	}

	return &Envelope{
		MessageID:  fields[0],
		FromPeerID: fields[1],
		PublicKey:  fields[2],
		MachineID:  fields[3],
		ToPeerID:   fields[4],
		Channel:    fields[5],
		HopCount:   hopCount,
		Timestamp:  timestamp,
		Payload:    payload,
		Signature:  base64.StdEncoding.EncodeToString([]byte(sigRaw)),
	}, nil
}

func writeString(buf *bytes.Buffer, s string) error {
	return writeBytes(buf, []byte(s))
}

func writeBytes(buf *bytes.Buffer, b []byte) error {
	if len(b) > math.MaxUint16 {
		return fmt.Errorf("field of %d bytes exceeds max length %d", len(b), math.MaxUint16)
	}
	var length [2]byte
	binary.BigEndian.PutUint16(length[:], uint16(len(b)))
	buf.Write(length[:])
	buf.Write(b)
	return nil
}

func readString(r *bytes.Reader) (string, error) {
	b, err := readBytes(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	var length [2]byte
	if _, err := io.ReadFull(r, length[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint16(length[:])
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}
