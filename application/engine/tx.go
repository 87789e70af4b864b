package engine

import (
	"errors"
	"time"

	"dcoengine/application/codec"
	"dcoengine/application/crypto"
	"dcoengine/application/peer"
	"dcoengine/domain/dcoerr"
)

// HandlePlaintext is the TX entry point: a plaintext IP packet read
// from Tun. It probes the IP header, acquires the current peer and its
// primary crypto context, and submits the packet to AEAD encrypt.
func (e *Engine) HandlePlaintext(packet []byte) error {
	if _, ok := codec.ProbeIPVersion(packet); !ok {
		return dcoerr.ErrMalformed
	}
	return e.transmit(packet)
}

// HandleSpecial transmits a raw special-message payload (keepalive,
// explicit-exit-notify) through the same pipeline as data, skipping
// the IP-header probe.
func (e *Engine) HandleSpecial(payload []byte) error {
	return e.transmit(payload)
}

func (e *Engine) transmit(payload []byte) error {
	p := e.Peer()
	if p == nil {
		return dcoerr.ErrNoPeer
	}

	ctx, err := p.PrimaryContext()
	if err != nil {
		return err
	}

	keyID := ctx.KeyID()
	onDone := func(r crypto.Result) {
		e.onEncryptDone(p, keyID, r)
	}
	ctx.Encrypt(payload, nil, onDone)
	return nil
}

// onEncryptDone is the TX pipeline's post-encrypt handler, shared
// between the synchronous and asynchronous completion paths.
func (e *Engine) onEncryptDone(p *peer.Peer, keyID byte, res crypto.Result) {
	if res.Outcome == crypto.OutcomeErr {
		if errors.Is(res.Err, dcoerr.ErrRekeyNeeded) {
			if e.cp != nil {
				e.cp.RekeyRequired(p, keyID)
			}
			return
		}
		if e.log != nil {
			e.log.Printf("dcoengine: tx drop: %v", res.Err)
		}
		return
	}

	hdr := codec.Header{Op: codec.OpDataV1, KeyID: keyID, PacketID: res.PktID}
	frame := codec.Encode(hdr, res.Data)

	dst := p.Binding().External
	if err := e.transport.Send(frame, dst); err != nil {
		if e.log != nil {
			e.log.Printf("dcoengine: tx send failed: %v", err)
		}
		return
	}
	p.TouchTx(len(frame), time.Now())
}
