// Package controlplane defines the collaborator interface the engine
// uses to hand control-channel frames and control-plane events to
// whatever implements key exchange and peer management — both
// explicitly out of scope for the data-channel engine itself.
package controlplane

import "dcoengine/application/peer"

// Queue receives control-channel traffic and control-plane events the
// data-channel engine cannot act on itself.
type Queue interface {
	// Deliver hands a non-data opcode frame to the control channel,
	// verbatim, for the caller to parse and act on.
	Deliver(frame []byte) error

	// RekeyRequired notifies the control plane that p's transmit
	// packet-id space under the active key-id is exhausted and a new
	// key must be negotiated before any further data can be sent.
	RekeyRequired(p *peer.Peer, keyID byte)
}
