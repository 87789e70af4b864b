// Package peer holds the single-peer state the engine operates
// against: its current binding, its per-key-id crypto contexts, and
// activity/traffic counters used for keepalive and telemetry.
//
// The engine publishes *Peer through an atomic.Pointer so a swap to a
// new peer (reconnection, rekey to a fresh binding) never blocks an
// in-flight RX/TX operation reading the old one; readers load the
// pointer once at the top of a pipeline pass and operate on a
// consistent snapshot for the rest of that pass.
package peer

import (
	"sync/atomic"
	"time"

	"dcoengine/application/crypto"
	"dcoengine/domain/dcoerr"
)

const maxKeyID = 8

// Peer is the data-channel state for one tunnel endpoint.
type Peer struct {
	binding atomic.Pointer[Binding]

	contexts     [maxKeyID]atomic.Pointer[crypto.Context]
	primaryKeyID atomic.Int32

	rxBytes   atomic.Uint64
	txBytes   atomic.Uint64
	rxPackets atomic.Uint64
	txPackets atomic.Uint64

	lastRxUnixNano atomic.Int64
	lastTxUnixNano atomic.Int64
}

// New returns a Peer bound to the given binding with no installed keys
// and no primary context selected.
func New(b Binding) *Peer {
	p := &Peer{}
	p.binding.Store(&b)
	p.primaryKeyID.Store(-1)
	return p
}

// Binding returns the peer's current binding.
func (p *Peer) Binding() Binding {
	return *p.binding.Load()
}

// Rebind atomically swaps the peer's binding, e.g. after observing
// traffic from a new source address/port for an already-authenticated
// peer.
func (p *Peer) Rebind(b Binding) {
	p.binding.Store(&b)
}

// InstallContext installs ctx at its own key-id slot, replacing any
// context previously installed at that slot.
func (p *Peer) InstallContext(ctx *crypto.Context) {
	if int(ctx.KeyID()) >= maxKeyID {
		return
	}
	p.contexts[ctx.KeyID()].Store(ctx)
}

// Context returns the installed crypto context for keyID, or
// dcoerr.ErrNoKey if none has been installed.
func (p *Peer) Context(keyID byte) (*crypto.Context, error) {
	if int(keyID) >= maxKeyID {
		return nil, dcoerr.ErrNoKey
	}
	ctx := p.contexts[keyID].Load()
	if ctx == nil {
		return nil, dcoerr.ErrNoKey
	}
	return ctx, nil
}

// RemoveContext clears the crypto context at keyID, e.g. once a rekey
// has superseded it and the old key must no longer decrypt anything.
// If keyID was the primary, the peer is left with no primary context
// until SetPrimary is called again.
func (p *Peer) RemoveContext(keyID byte) {
	if int(keyID) >= maxKeyID {
		return
	}
	p.contexts[keyID].Store(nil)
	p.primaryKeyID.CompareAndSwap(int32(keyID), -1)
}

// SetPrimary selects keyID as the context used for new TX operations.
// A context must already be installed at keyID.
func (p *Peer) SetPrimary(keyID byte) error {
	if int(keyID) >= maxKeyID {
		return dcoerr.ErrNoKey
	}
	if p.contexts[keyID].Load() == nil {
		return dcoerr.ErrNoKey
	}
	p.primaryKeyID.Store(int32(keyID))
	return nil
}

// PrimaryContext returns the context currently selected for TX, or
// dcoerr.ErrNoKey if none has been selected.
func (p *Peer) PrimaryContext() (*crypto.Context, error) {
	kid := p.primaryKeyID.Load()
	if kid < 0 {
		return nil, dcoerr.ErrNoKey
	}
	return p.Context(byte(kid))
}

// TouchRx records n received bytes and refreshes the last-rx timestamp.
// Called for every received data-channel packet, including keepalives.
func (p *Peer) TouchRx(n int, now time.Time) {
	p.rxBytes.Add(uint64(n))
	p.rxPackets.Add(1)
	p.lastRxUnixNano.Store(now.UnixNano())
}

// TouchTx records n transmitted bytes and refreshes the last-tx
// timestamp.
func (p *Peer) TouchTx(n int, now time.Time) {
	p.txBytes.Add(uint64(n))
	p.txPackets.Add(1)
	p.lastTxUnixNano.Store(now.UnixNano())
}

// Stats is a point-in-time snapshot of traffic counters.
type Stats struct {
	RxBytes, TxBytes     uint64
	RxPackets, TxPackets uint64
	LastRx, LastTx       time.Time
}

// Stats returns a snapshot of the peer's traffic counters.
func (p *Peer) Stats() Stats {
	return Stats{
		RxBytes:   p.rxBytes.Load(),
		TxBytes:   p.txBytes.Load(),
		RxPackets: p.rxPackets.Load(),
		TxPackets: p.txPackets.Load(),
		LastRx:    unixNanoOrZero(p.lastRxUnixNano.Load()),
		LastTx:    unixNanoOrZero(p.lastTxUnixNano.Load()),
	}
}

func unixNanoOrZero(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// IdleSince reports whether the peer has received nothing for at
// least timeout, as of now. A peer that has never received anything
// is not reported idle. Used by a keepalive reaper to decide when to
// send a ping or consider the peer dead.
func (p *Peer) IdleSince(now time.Time, timeout time.Duration) bool {
	last := unixNanoOrZero(p.lastRxUnixNano.Load())
	if last.IsZero() {
		return false
	}
	return now.Sub(last) >= timeout
}
