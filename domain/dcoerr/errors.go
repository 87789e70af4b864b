// Package dcoerr defines the sentinel error taxonomy shared by the
// packet-id, crypto, codec and transport packages.
package dcoerr

import "errors"

var (
	// ErrNoPeer is returned when a packet is queued for transmission
	// and no peer is currently bound to the engine.
	ErrNoPeer = errors.New("dcoerr: no peer bound")

	// ErrNoRoute is returned by the transport adapter when no route
	// exists to the peer's external address.
	ErrNoRoute = errors.New("dcoerr: no route to peer")

	// ErrNoKey is returned when a crypto context is requested for a
	// key-id that has no installed key.
	ErrNoKey = errors.New("dcoerr: no key installed for key-id")

	// ErrRekeyNeeded is returned when the transmit packet-id sequence
	// has exhausted its range and a new key must be negotiated before
	// any further packet can be sent under the current key-id.
	ErrRekeyNeeded = errors.New("dcoerr: rekey needed")

	// ErrCryptoFail is returned when AEAD open or seal fails.
	ErrCryptoFail = errors.New("dcoerr: crypto operation failed")

	// ErrPktIDZero is returned when a received packet-id is zero.
	ErrPktIDZero = errors.New("dcoerr: packet-id is zero")

	// ErrPktIDReplay is returned when a received packet-id falls
	// within the replay window and has already been seen.
	ErrPktIDReplay = errors.New("dcoerr: packet-id replay detected")

	// ErrPktIDBacktrack is returned when a received packet-id falls
	// further behind the window base than the window can represent.
	ErrPktIDBacktrack = errors.New("dcoerr: packet-id backtrack out of window")

	// ErrPktIDExpired is returned when a received packet-id falls at
	// or below the floor established by a prior window expiry.
	ErrPktIDExpired = errors.New("dcoerr: packet-id expired")

	// ErrEpochBacktrack is returned when a received packet's epoch is
	// older than the epoch the receive window has already advanced to.
	ErrEpochBacktrack = errors.New("dcoerr: epoch backtrack")

	// ErrMalformed is returned when a frame fails to parse as a
	// data-channel frame (a control-channel opcode included) or a
	// plaintext packet fails the IP header probe.
	ErrMalformed = errors.New("dcoerr: malformed packet")

	// ErrOOM is returned when a packet buffer cannot be allocated.
	ErrOOM = errors.New("dcoerr: out of memory")
)
