// Package transport implements a reliable-delivery layer on top of raw UDP
// datagrams: sequencing, checksummed framing, acknowledgements, duplicate
// suppression, and exponential-backoff retransmission.
package transport

import (
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// PacketType identifies the kind of message carried by a frame.
type PacketType uint8

const (
	TypeData PacketType = iota
	TypeACK
	TypeSyncRequest
	TypeSyncResponse
	TypeHeartbeat
	TypeDiscovery
)

func (t PacketType) String() string {
	switch t {
	case TypeData:
		return "DATA"
	case TypeACK:
		return "ACK"
	case TypeSyncRequest:
		return "SYNC_REQUEST"
	case TypeSyncResponse:
		return "SYNC_RESPONSE"
	case TypeHeartbeat:
		return "HEARTBEAT"
	case TypeDiscovery:
		return "DISCOVERY"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(t))
	}
}

const (
	// ProtocolVersion is the single supported wire version. Frames with any
	// other version byte are dropped silently by the receive path.
	ProtocolVersion uint8 = 1

	// HeaderSize is the fixed frame header: version(1) | type(1) | seq(4) | checksum(4).
	HeaderSize = 10

	// MaxDatagramSize is the conservative UDP payload ceiling this protocol
	// targets (mirrors the historical 65507-byte practical UDP datagram max).
	MaxDatagramSize = 65507
	// MaxPayloadSize is the largest payload that fits after the header.
	MaxPayloadSize = MaxDatagramSize - HeaderSize
)

// Packet is a single framed message: header fields plus an opaque,
// already-encoded JSON payload.
type Packet struct {
	Type    PacketType
	Seq     uint32
	Payload []byte
}

// checksum computes the wire checksum for payload: the high 8 hex digits of
// MD5(payload), interpreted as a big-endian uint32. This exactly matches the
// reference scheme (int(hashlib.md5(data).hexdigest()[:8], 16)); the empty
// payload has the defined checksum of MD5(b"") truncated the same way.
func checksum(payload []byte) uint32 {
	sum := md5.Sum(payload)
	hexDigits := hex.EncodeToString(sum[:])[:8]
	var v uint32
	_, _ = fmt.Sscanf(hexDigits, "%08x", &v)
	return v
}

// Serialize encodes the packet to its wire form, truncating an oversized
// payload to MaxPayloadSize. A truncated payload will fail checksum
// verification at the receiver and be dropped — that is the specified,
// intentional send-failure behavior for over-budget payloads.
func (p Packet) Serialize() []byte {
	payload := p.Payload
	if len(payload) > MaxPayloadSize {
		payload = payload[:MaxPayloadSize]
	}

	buf := make([]byte, HeaderSize+len(payload))
	buf[0] = ProtocolVersion
	buf[1] = byte(p.Type)
	binary.BigEndian.PutUint32(buf[2:6], p.Seq)
	binary.BigEndian.PutUint32(buf[6:10], checksum(payload))
	copy(buf[HeaderSize:], payload)
	return buf
}

// Deserialize parses a wire frame. It returns ok=false (never an error) for
// any malformed, wrong-version, or checksum-mismatched frame — all such
// frames are meant to be dropped silently by the caller, per spec.
func Deserialize(data []byte) (Packet, bool) {
	if len(data) < HeaderSize {
		return Packet{}, false
	}

	version := data[0]
	if version != ProtocolVersion {
		return Packet{}, false
	}

	pktType := PacketType(data[1])
	seq := binary.BigEndian.Uint32(data[2:6])
	wantSum := binary.BigEndian.Uint32(data[6:10])
	payload := data[HeaderSize:]

	if checksum(payload) != wantSum {
		return Packet{}, false
	}

	// Copy the payload out: data may be a reused recvfrom buffer.
	owned := make([]byte, len(payload))
	copy(owned, payload)

	return Packet{Type: pktType, Seq: seq, Payload: owned}, true
}
