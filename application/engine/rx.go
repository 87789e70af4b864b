package engine

import (
	"net/netip"
	"time"

	"dcoengine/application/codec"
	"dcoengine/application/crypto"
	"dcoengine/application/peer"
	"dcoengine/domain/dcoerr"
)

// HandleFrame is the RX entry point: a single UDP payload (the bytes
// after the UDP header) arriving from src. It does not wait for the
// decrypt itself: a synchronous decrypt completes inline, an
// asynchronous one is handled entirely from onDecryptDone once the
// worker finishes. With a worker pool installed, handing the decrypt
// to the pool blocks while the pool's queue is full.
func (e *Engine) HandleFrame(frame []byte, src netip.AddrPort) error {
	_, isData := e.dispatchOpcode(frame)

	p := e.Peer()

	if !isData || p == nil {
		return e.forwardControl(frame)
	}

	if p.Binding().External != src {
		return e.forwardControl(frame)
	}

	hdr, ciphertext, err := codec.Decode(frame)
	if err != nil {
		return err
	}

	ctx, err := p.Context(hdr.KeyID)
	if err != nil {
		return err
	}

	onDone := func(r crypto.Result) {
		e.onDecryptDone(p, len(frame), r)
	}
	ctx.Decrypt(ciphertext, nil, ctx.Epoch(), hdr.PacketID, onDone)
	return nil
}

// onDecryptDone is the RX pipeline's post-decrypt handler, shared
// between the synchronous and asynchronous completion paths.
func (e *Engine) onDecryptDone(p *peer.Peer, wireLen int, res crypto.Result) {
	if res.Outcome == crypto.OutcomeErr {
		if e.log != nil {
			e.log.Printf("dcoengine: rx drop: %v", res.Err)
		}
		return
	}

	now := time.Now()
	p.TouchRx(wireLen, now)

	if codec.IsKeepalive(res.Data) {
		return
	}

	if _, ok := codec.ProbeIPVersion(res.Data); !ok {
		if e.log != nil {
			e.log.Printf("dcoengine: rx drop: %v", dcoerr.ErrMalformed)
		}
		return
	}

	if _, err := e.tun.Write(res.Data); err != nil && e.log != nil {
		e.log.Printf("dcoengine: tun write failed: %v", err)
	}
}

func (e *Engine) forwardControl(frame []byte) error {
	if e.cp == nil {
		return nil
	}
	return e.cp.Deliver(frame)
}
