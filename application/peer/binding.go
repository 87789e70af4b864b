package peer

import "net/netip"

// Binding is the transport-level address pair a peer is currently
// reachable at: its external (public, routable) address and the
// internal tunnel address assigned to it.
type Binding struct {
	External netip.AddrPort
	Internal netip.Addr
}

// IsZero reports whether b has never been set.
func (b Binding) IsZero() bool {
	return !b.External.IsValid() && !b.Internal.IsValid()
}
