package holepunch

import (
	"encoding/binary"
	"fmt"
)

// ProbeSize is the fixed size of a hole-punch probe datagram.
const ProbeSize = 64

// probeMagic identifies a hole-punch probe distinct from envelope traffic.
var probeMagic = [4]byte{0x6f, 0x6d, 0x70, 0x63} // "ompc"

// Probe is a fixed 64-byte UDP datagram used to open/verify a NAT mapping.
type Probe struct {
	Sequence   uint32
	TimestampNS int64
	IsResponse bool
	SenderID   [16]byte // truncated peer_id bytes
}

// Encode packs p into the fixed 64-byte wire layout:
// magic(4) seq(4) timestamp(8) is_response(1) sender_id(16) padding(31).
func Encode(p Probe) []byte {
	buf := make([]byte, ProbeSize)
	copy(buf[0:4], probeMagic[:])
	binary.BigEndian.PutUint32(buf[4:8], p.Sequence)
	binary.BigEndian.PutUint64(buf[8:16], uint64(p.TimestampNS))
	if p.IsResponse {
		buf[16] = 1
	}
	copy(buf[17:33], p.SenderID[:])
	return buf
}

// IsHoleProbe reports whether data begins with the probe magic and has the
// expected fixed size.
func IsHoleProbe(data []byte) bool {
	if len(data) != ProbeSize {
		return false
	}
	return data[0] == probeMagic[0] && data[1] == probeMagic[1] && data[2] == probeMagic[2] && data[3] == probeMagic[3]
}

// Decode parses a probe datagram. Returns an error if data is not a valid
// probe per IsHoleProbe.
func Decode(data []byte) (Probe, error) {
	if !IsHoleProbe(data) {
		return Probe{}, fmt.Errorf("holepunch: not a probe datagram")
	}
	var p Probe
	p.Sequence = binary.BigEndian.Uint32(data[4:8])
	p.TimestampNS = int64(binary.BigEndian.Uint64(data[8:16]))
	p.IsResponse = data[16] == 1
	copy(p.SenderID[:], data[17:33])
	return p, nil
}

// TruncatedSenderID derives the 16-byte sender id field from a peer_id
// string (hex peer_ids are 16 chars; shorter ids are zero-padded, longer
// ones truncated).
func TruncatedSenderID(peerID string) [16]byte {
	var out [16]byte
	copy(out[:], peerID)
	return out
}
