// Package codec implements the data-channel wire format: opcode/key-id
// framing, the DATA_V1/DATA_V2 discriminator, IP-version probing of
// decrypted payloads, and the keepalive ping payload.
package codec

import (
	"encoding/binary"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"dcoengine/domain/dcoerr"
)

// Opcode identifies the kind of frame an opcode byte encodes.
type Opcode byte

const (
	// OpDataV1 frames carry a key-id and a packet-id but no peer-id;
	// used when the engine is not multiplexing by peer-id.
	OpDataV1 Opcode = 6
	// OpDataV2 frames additionally carry a 24-bit peer-id between the
	// opcode byte and the packet-id.
	OpDataV2 Opcode = 9
)

const (
	peerIDLen   = 3
	pktIDLen    = 4
	headerLenV1 = 1 + pktIDLen
	headerLenV2 = 1 + peerIDLen + pktIDLen
)

// KeepaliveLen is the fixed size of the keepalive ping payload, checked
// for an exact match against KeepalivePayload.
const KeepaliveLen = 16

// KeepalivePayload is the OpenVPN data-channel keepalive ping: a fixed
// 16-byte sequence that is never a valid IP packet and is recognized
// without decrypting further.
var KeepalivePayload = [KeepaliveLen]byte{
	0x2a, 0x18, 0x7b, 0xf3, 0x64, 0x1e, 0xb4, 0xcb,
	0x07, 0xed, 0x2d, 0x0a, 0x98, 0x1f, 0xc7, 0x48,
}

// Header is a decoded data-channel header.
type Header struct {
	Op       Opcode
	KeyID    byte
	PeerID   uint32 // only meaningful when Op == OpDataV2
	PacketID uint32
}

// EncodeOpcodeByte packs a 5-bit opcode and 3-bit key-id into one byte.
func EncodeOpcodeByte(op Opcode, keyID byte) byte {
	return byte(op)<<3 | (keyID & 0x07)
}

// DecodeOpcodeByte unpacks the opcode byte into its opcode and key-id.
func DecodeOpcodeByte(b byte) (Opcode, byte) {
	return Opcode(b >> 3), b & 0x07
}

// IsData reports whether op is a data-channel opcode this codec can
// parse a header for, as opposed to a control-channel opcode that must
// be dispatched elsewhere without ever reaching the crypto context.
func IsData(op Opcode) bool {
	return op == OpDataV1 || op == OpDataV2
}

// Decode parses a data-channel header from the front of buf and
// returns the header plus the remaining bytes (AEAD ciphertext+tag).
// Non-data opcodes are rejected with dcoerr.ErrMalformed; callers are
// expected to have already dispatched on the opcode via DecodeOpcodeByte
// before calling Decode.
func Decode(buf []byte) (Header, []byte, error) {
	if len(buf) < 1 {
		return Header{}, nil, dcoerr.ErrMalformed
	}
	op, keyID := DecodeOpcodeByte(buf[0])
	if !IsData(op) {
		return Header{}, nil, dcoerr.ErrMalformed
	}

	h := Header{Op: op, KeyID: keyID}
	rest := buf[1:]

	if op == OpDataV2 {
		if len(rest) < peerIDLen+pktIDLen {
			return Header{}, nil, dcoerr.ErrMalformed
		}
		h.PeerID = uint32(rest[0])<<16 | uint32(rest[1])<<8 | uint32(rest[2])
		rest = rest[peerIDLen:]
	}

	if len(rest) < pktIDLen {
		return Header{}, nil, dcoerr.ErrMalformed
	}
	h.PacketID = binary.BigEndian.Uint32(rest[:pktIDLen])
	rest = rest[pktIDLen:]

	return h, rest, nil
}

// Encode writes h followed by ciphertext into a freshly allocated
// buffer sized to exactly fit, matching the allocation-free sizing
// style of fixed-header wire encoders: callers size their buffer once
// and never grow it.
func Encode(h Header, ciphertext []byte) []byte {
	hlen := headerLenV1
	if h.Op == OpDataV2 {
		hlen = headerLenV2
	}
	buf := make([]byte, hlen+len(ciphertext))
	buf[0] = EncodeOpcodeByte(h.Op, h.KeyID)
	off := 1
	if h.Op == OpDataV2 {
		buf[off] = byte(h.PeerID >> 16)
		buf[off+1] = byte(h.PeerID >> 8)
		buf[off+2] = byte(h.PeerID)
		off += peerIDLen
	}
	binary.BigEndian.PutUint32(buf[off:off+pktIDLen], h.PacketID)
	off += pktIDLen
	copy(buf[off:], ciphertext)
	return buf
}

// IsKeepalive reports whether payload is exactly the keepalive ping.
func IsKeepalive(payload []byte) bool {
	if len(payload) != KeepaliveLen {
		return false
	}
	for i := range payload {
		if payload[i] != KeepalivePayload[i] {
			return false
		}
	}
	return true
}

// ProbeIPVersion inspects the high nibble of a decrypted payload's
// first byte, as an IPv4/IPv6 header always carries its version there,
// and validates the header's own declared length against the buffer:
// too short to hold a header of that version, or a declared total
// length that overruns the buffer, is rejected. It returns ok=false
// for anything else (including a keepalive, which callers should
// check for first).
func ProbeIPVersion(payload []byte) (version int, ok bool) {
	if len(payload) < 1 {
		return 0, false
	}
	switch payload[0] >> 4 {
	case 4:
		if len(payload) < ipv4.HeaderLen {
			return 0, false
		}
		totalLen := binary.BigEndian.Uint16(payload[2:4])
		if int(totalLen) > len(payload) {
			return 0, false
		}
		return 4, true
	case 6:
		if len(payload) < ipv6.HeaderLen {
			return 0, false
		}
		payloadLen := binary.BigEndian.Uint16(payload[4:6])
		if ipv6.HeaderLen+int(payloadLen) > len(payload) {
			return 0, false
		}
		return 6, true
	default:
		return 0, false
	}
}
