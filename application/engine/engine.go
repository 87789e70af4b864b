// Package engine implements the datapath engine: the TX pipeline
// (tun -> encrypt -> UDP) and RX pipeline (UDP -> decrypt -> tun), and
// the opcode dispatch rule that keeps control-channel traffic off the
// data-channel fast path.
package engine

import (
	"net/netip"
	"sync/atomic"

	"dcoengine/application/codec"
	"dcoengine/application/controlplane"
	"dcoengine/application/peer"
)

// Tun is the virtual network interface the engine reads plaintext
// packets from and writes plaintext packets to.
type Tun interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
}

// Transport is the subset of infrastructure/transport.Transport the
// engine depends on, kept narrow here so engine tests can supply a
// fake without importing the transport package.
type Transport interface {
	Send(frame []byte, dst netip.AddrPort) error
	Recv(buf []byte) (n int, src netip.AddrPort, err error)
}

// Logger is the ambient logging contract. The engine logs each dropped
// packet and each failed send or tun write through it as it happens;
// it applies no rate limiting of its own.
type Logger interface {
	Printf(format string, v ...any)
}

// Config holds the caller's sizing settings for the engine.
type Config struct {
	// MTU is the plaintext MTU the caller configured. The engine stores
	// it but does not check packet sizes against it.
	MTU int
	// Headroom is the encapsulation overhead the caller configured. The
	// engine stores it but does not read it: each outgoing frame is
	// allocated at exactly its encoded size.
	Headroom int
}

// Engine is a single tunnel instance's datapath: exactly one current
// peer, a transport, a control-plane collaborator and a tun device.
type Engine struct {
	current atomic.Pointer[peer.Peer]

	transport Transport
	tun       Tun
	cp        controlplane.Queue
	log       Logger
	cfg       Config
}

// New returns an Engine with no peer installed.
func New(tr Transport, tun Tun, cp controlplane.Queue, log Logger, cfg Config) *Engine {
	return &Engine{transport: tr, tun: tun, cp: cp, log: log, cfg: cfg}
}

// SetPeer atomically publishes p as the current peer. A nil p clears
// the engine back to "no link".
func (e *Engine) SetPeer(p *peer.Peer) {
	e.current.Store(p)
}

// Peer returns the current peer, or nil if none is installed. Callers
// load it once at the top of a pipeline pass and operate on that
// snapshot for the remainder of the pass, per the engine's read-side
// guard contract.
func (e *Engine) Peer() *peer.Peer {
	return e.current.Load()
}

// dispatchOpcode reports whether buf's leading opcode byte is a
// data-channel opcode; non-data opcodes (and malformed buffers too
// short to carry one) are forwarded to the control plane verbatim and
// must never reach the crypto context.
func (e *Engine) dispatchOpcode(buf []byte) (op codec.Opcode, isData bool) {
	if len(buf) < 1 {
		return 0, false
	}
	op, _ = codec.DecodeOpcodeByte(buf[0])
	return op, codec.IsData(op)
}
