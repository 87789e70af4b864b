package packetid

import (
	"sync/atomic"

	"dcoengine/domain/dcoerr"
)

// Xmit is the transmit-side packet-id source for one crypto context.
// It packs a 32-bit epoch and a 32-bit packet-id counter into a single
// uint64 so Next can advance it with a single compare-and-swap, mirroring the
// original source's atomic64 seq_num field in ovpn_pktid_xmit.
type Xmit struct {
	seq atomic.Uint64
}

// NewXmit returns a transmit source starting at the given epoch, with
// its packet-id counter at zero.
func NewXmit(epoch uint32) *Xmit {
	x := &Xmit{}
	x.seq.Store(uint64(epoch) << 32)
	return x
}

// NewXmitAt returns a transmit source resumed at a specific epoch and
// packet-id counter value, e.g. when recovering persisted state or
// exercising the near-exhaustion path in a test.
func NewXmitAt(epoch, id uint32) *Xmit {
	x := &Xmit{}
	x.seq.Store(uint64(epoch)<<32 | uint64(id))
	return x
}

// Next returns the next (epoch, packet-id) pair to stamp on an
// outgoing packet. It returns dcoerr.ErrRekeyNeeded, without consuming
// a packet-id, once the 32-bit packet-id space under the current epoch
// is exhausted; the caller must rekey (advance the epoch) before
// sending further data under this context.
func (x *Xmit) Next() (epoch uint32, id uint32, err error) {
	for {
		cur := x.seq.Load()
		epoch = uint32(cur >> 32)
		id = uint32(cur)
		if id == 0xFFFFFFFF {
			return epoch, 0, dcoerr.ErrRekeyNeeded
		}
		next := cur + 1
		if x.seq.CompareAndSwap(cur, next) {
			return epoch, id + 1, nil
		}
	}
}

// SetEpoch resets the counter to the start of the given epoch; the next
// call to Next returns packet-id 1 under it.
func (x *Xmit) SetEpoch(epoch uint32) {
	x.seq.Store(uint64(epoch) << 32)
}
