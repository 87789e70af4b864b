// Package crypto implements the data-channel crypto context: AEAD
// encrypt/decrypt with a completion model that supports both
// synchronous and worker-pool-deferred completion, as required by the
// engine's RX/TX pipelines.
package crypto

import (
	"crypto/cipher"
	"encoding/binary"

	"dcoengine/domain/dcoerr"
	"dcoengine/domain/packetid"
)

// Outcome classifies a Result.
type Outcome int

const (
	// OutcomePending means the operation was handed to a worker and
	// Done will be invoked later via the supplied completion func.
	OutcomePending Outcome = iota
	// OutcomeOk means the operation completed synchronously and
	// succeeded; Result.Data holds the output.
	OutcomeOk
	// OutcomeErr means the operation completed synchronously and
	// failed; Result.Err holds the reason.
	OutcomeErr
)

// Result is returned by Encrypt/Decrypt and passed to the completion
// func when an operation finishes asynchronously.
type Result struct {
	Outcome Outcome
	Data    []byte
	Err     error

	// Epoch and PktID are the nonce material the operation used (or
	// would have used, for an encrypt that failed before sealing).
	// Populated for both encrypt and decrypt so a completion handler
	// never needs to capture them separately from the call site.
	Epoch, PktID uint32
}

// Done is invoked exactly once per Encrypt/Decrypt call, either inline
// (for a synchronous Ok/Err outcome) or later from a worker goroutine
// (for a Pending outcome). Callers must not assume which.
type Done func(Result)

// Context is a single key-id's crypto state: one AEAD cipher pair
// (distinct keys in each direction), a transmit packet-id source, and
// a receive packet-id/replay window.
type Context struct {
	keyID byte
	epoch uint32

	sealAEAD cipher.AEAD
	openAEAD cipher.AEAD

	Xmit *packetid.Xmit
	Recv *packetid.Recv

	pool *WorkerPool
}

// NewContext builds a crypto context for the given key-id. epoch is
// fixed for the lifetime of the context, per the packet-id transmit
// source's contract; a rekey installs a new context with a new epoch
// rather than mutating this one. pool may be nil, in which case
// Encrypt/Decrypt always complete synchronously.
func NewContext(keyID byte, sealAEAD, openAEAD cipher.AEAD, epoch uint32, pool *WorkerPool) *Context {
	return &Context{
		keyID:    keyID,
		epoch:    epoch,
		sealAEAD: sealAEAD,
		openAEAD: openAEAD,
		Xmit:     packetid.NewXmit(epoch),
		Recv:     &packetid.Recv{},
		pool:     pool,
	}
}

// KeyID returns the 3-bit key-id this context answers for.
func (c *Context) KeyID() byte { return c.keyID }

// Epoch returns the fixed epoch this context was created with.
func (c *Context) Epoch() uint32 { return c.epoch }

// BuildNonce packs a 4-byte epoch and 4-byte packet-id into a
// cipher.AEAD-sized nonce, left-padding with zero bytes as the AEAD's
// NonceSize requires.
func BuildNonce(aead cipher.AEAD, epoch, pktID uint32) []byte {
	nonce := make([]byte, aead.NonceSize())
	off := len(nonce) - 8
	binary.BigEndian.PutUint32(nonce[off:off+4], epoch)
	binary.BigEndian.PutUint32(nonce[off+4:off+8], pktID)
	return nonce
}

// Encrypt seals plaintext under the next transmit packet-id, returning
// the wire nonce material (epoch, packet-id) alongside the ciphertext
// so the caller can stamp the outgoing header. done is invoked exactly
// once; Encrypt itself also returns the immediate Result so callers
// that never go async can skip registering a completion closure.
func (c *Context) Encrypt(plaintext, aad []byte, done Done) (epoch, pktID uint32, res Result) {
	epoch, pktID, err := c.Xmit.Next()
	if err != nil {
		r := Result{Outcome: OutcomeErr, Err: err, Epoch: epoch}
		deliver(done, r)
		return epoch, pktID, r
	}

	seal := func() Result {
		nonce := BuildNonce(c.sealAEAD, epoch, pktID)
		ct := c.sealAEAD.Seal(nil, nonce, plaintext, aad)
		return Result{Outcome: OutcomeOk, Data: ct, Epoch: epoch, PktID: pktID}
	}

	if c.pool == nil {
		r := seal()
		deliver(done, r)
		return epoch, pktID, r
	}

	c.pool.Submit(func() Result { return seal() }, done)
	return epoch, pktID, Result{Outcome: OutcomePending}
}

// Decrypt opens ciphertext sent under (epoch, pktID) and, only on a
// successful AEAD open, runs the packet-id replay check before
// signaling success — a forged or replayed packet must never advance
// or be exposed via the replay window.
func (c *Context) Decrypt(ciphertext, aad []byte, epoch, pktID uint32, done Done) Result {
	open := func() Result {
		nonce := BuildNonce(c.openAEAD, epoch, pktID)
		pt, err := c.openAEAD.Open(nil, nonce, ciphertext, aad)
		if err != nil {
			return Result{Outcome: OutcomeErr, Err: dcoerr.ErrCryptoFail, Epoch: epoch, PktID: pktID}
		}
		if rerr := c.Recv.Accept(pktID, epoch); rerr != nil {
			return Result{Outcome: OutcomeErr, Err: rerr, Epoch: epoch, PktID: pktID}
		}
		return Result{Outcome: OutcomeOk, Data: pt, Epoch: epoch, PktID: pktID}
	}

	if c.pool == nil {
		r := open()
		deliver(done, r)
		return r
	}

	c.pool.Submit(open, done)
	return Result{Outcome: OutcomePending}
}

func deliver(done Done, r Result) {
	if done != nil {
		done(r)
	}
}
