//go:build !linux

package transport

import "log"

// SetMark is a no-op outside Linux; SO_MARK has no equivalent on other
// platforms this engine targets.
func (t *UDPTransport) SetMark(mark int) error {
	log.Printf("transport: SO_MARK is unsupported on this platform, ignoring mark=%d", mark)
	return nil
}

// SetHopLimit is a no-op outside Linux.
func (t *UDPTransport) SetHopLimit(hops int) error {
	log.Printf("transport: hop-limit override is unsupported on this platform, ignoring hops=%d", hops)
	return nil
}
