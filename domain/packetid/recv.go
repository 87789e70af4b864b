// Package packetid implements the data-channel packet-id anti-replay
// detector and the transmit-side packet-id source.
//
// Recv is a direct port of the Linux ovpn-dco kernel module's
// __ovpn_pktid_recv sliding-window algorithm: a bitmap window of
// windowSize packet-ids, a floor below which ids are considered
// permanently expired, and an epoch field that resets the whole window
// when a peer moves to a new epoch.
package packetid

import (
	"sync"
	"time"

	"dcoengine/domain/dcoerr"
)

const (
	windowSize = 256
	windowBits = windowSize - 1
	windowWords = windowSize / 64
)

// recvExpire is how long a receive window stays valid without any
// accepted packet-id before its floor is raised to the highest
// accepted id, mirroring PKTID_RECV_EXPIRE in the original source.
const recvExpire = 30 * time.Second

// Recv tracks the replay state for a single crypto context's receive
// direction. Zero value is ready to use.
type Recv struct {
	mu sync.Mutex

	base    uint32
	extent  uint32
	id      uint32
	idFloor uint32
	epoch   uint32
	expire  time.Time
	history [windowWords]uint64

	maxBacktrack uint32

	// now is overridable in tests; defaults to time.Now.
	now func() time.Time
}

func index(base uint32, i int32) uint32 {
	return uint32((int64(base) + int64(i)) & windowBits)
}

func (r *Recv) bit(i uint32) bool {
	return r.history[i/64]&(1<<(i%64)) != 0
}

func (r *Recv) setBit(i uint32) {
	r.history[i/64] |= 1 << (i % 64)
}

func (r *Recv) clearBit(i uint32) {
	r.history[i/64] &^= 1 << (i % 64)
}

func (r *Recv) clock() time.Time {
	if r.now != nil {
		return r.now()
	}
	return time.Now()
}

// Accept validates pktID against the receive window for the given
// epoch and, if valid, records it. It returns one of the Pkt-ID
// sentinel errors from dcoerr on rejection.
func (r *Recv) Accept(pktID uint32, epoch uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock()

	if !r.expire.IsZero() && !now.Before(r.expire) {
		r.idFloor = r.id
	}

	if pktID == 0 {
		return dcoerr.ErrPktIDZero
	}

	if epoch != r.epoch {
		if epoch > r.epoch {
			r.base = 0
			r.extent = 0
			r.id = 0
			r.idFloor = 0
			r.epoch = epoch
			r.history = [windowWords]uint64{}
		} else {
			return dcoerr.ErrEpochBacktrack
		}
	}

	switch {
	case pktID == r.id+1:
		r.base = index(r.base, -1)
		r.setBit(r.base)
		if r.extent < windowSize {
			r.extent++
		}
		r.id = pktID

	case pktID > r.id:
		delta := pktID - r.id
		if delta < windowSize {
			r.base = index(r.base, -int32(delta))
			r.setBit(r.base)
			r.extent += delta
			if r.extent > windowSize {
				r.extent = windowSize
			}
			for i := uint32(1); i < delta; i++ {
				r.clearBit(index(r.base, int32(i)))
			}
		} else {
			r.base = 0
			r.extent = windowSize
			r.history = [windowWords]uint64{}
			r.setBit(0)
		}
		r.id = pktID

	default:
		delta := r.id - pktID
		if delta > r.maxBacktrack {
			r.maxBacktrack = delta
		}
		if delta >= r.extent {
			return dcoerr.ErrPktIDBacktrack
		}
		if pktID <= r.idFloor {
			return dcoerr.ErrPktIDExpired
		}
		ri := index(r.base, int32(delta))
		if r.bit(ri) {
			return dcoerr.ErrPktIDReplay
		}
		r.setBit(ri)
	}

	r.expire = now.Add(recvExpire)
	return nil
}

// Epoch returns the epoch the window is currently tracking.
func (r *Recv) Epoch() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.epoch
}
