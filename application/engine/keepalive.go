package engine

import (
	"context"
	"time"

	"dcoengine/application/codec"
)

// RunKeepaliveLoop periodically checks the current peer's RX activity
// and sends a keepalive ping once it has been idle for pingInterval;
// once idle for deadTimeout it clears the peer, leaving the engine
// back at "no link" for the control plane to reinstall. It blocks
// until ctx is cancelled, in the same ticker-loop style as a session
// idle reaper.
func (e *Engine) RunKeepaliveLoop(ctx context.Context, pingInterval, deadTimeout, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.tickKeepalive(pingInterval, deadTimeout)
		}
	}
}

func (e *Engine) tickKeepalive(pingInterval, deadTimeout time.Duration) {
	p := e.Peer()
	if p == nil {
		return
	}

	now := time.Now()
	if p.IdleSince(now, deadTimeout) {
		if e.log != nil {
			e.log.Printf("dcoengine: peer idle for %s, clearing link", deadTimeout)
		}
		e.SetPeer(nil)
		return
	}

	if p.IdleSince(now, pingInterval) {
		if err := e.HandleSpecial(codec.KeepalivePayload[:]); err != nil && e.log != nil {
			e.log.Printf("dcoengine: keepalive send failed: %v", err)
		}
	}
}
