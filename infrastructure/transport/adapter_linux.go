//go:build linux

package transport

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// SetMark sets SO_MARK on the transport's socket, letting the host's
// routing policy steer outgoing data-channel traffic the way
// ovpn_udp4_output/ovpn_udp6_output rely on a cached per-peer route.
func (t *UDPTransport) SetMark(mark int) error {
	raw, err := t.SyscallConn()
	if err != nil {
		return fmt.Errorf("transport: syscall conn: %w", err)
	}
	var sockErr error
	if err := raw.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_MARK, mark)
	}); err != nil {
		return fmt.Errorf("transport: control: %w", err)
	}
	if sockErr != nil {
		return fmt.Errorf("transport: SO_MARK: %w", sockErr)
	}
	return nil
}

// SetHopLimit sets the outgoing TTL/hop-limit for both IPv4 and IPv6
// sends, mirroring the hop-limit inheritance the original source
// applies when forwarding a decrypted packet's TTL onto the
// re-encapsulated UDP datagram.
func (t *UDPTransport) SetHopLimit(hops int) error {
	raw, err := t.SyscallConn()
	if err != nil {
		return fmt.Errorf("transport: syscall conn: %w", err)
	}
	var sockErr error
	if err := raw.Control(func(fd uintptr) {
		if err := unix.SetsockoptInt(int(fd), unix.IPPROTO_IP, unix.IP_TTL, hops); err != nil {
			sockErr = err
			return
		}
		// Best-effort: the socket may be IPv4-only, in which case
		// this option is simply not applicable.
		_ = unix.SetsockoptInt(int(fd), unix.IPPROTO_IPV6, unix.IPV6_UNICAST_HOPS, hops)
	}); err != nil {
		return fmt.Errorf("transport: control: %w", err)
	}
	if sockErr != nil {
		return fmt.Errorf("transport: hop limit: %w", sockErr)
	}
	return nil
}
