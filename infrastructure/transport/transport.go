// Package transport is the data-channel's UDP transport adapter: it
// sends encoded data-channel frames to a peer's external address and
// reads frames arriving on the bound socket.
package transport

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"syscall"

	"dcoengine/domain/dcoerr"
)

// Transport is the collaborator the engine's RX/TX pipelines read from
// and write to. Implementations own exactly one bound UDP socket.
type Transport interface {
	// Send writes frame to dst. It returns dcoerr.ErrNoRoute when the
	// kernel reports no route exists rather than a generic I/O error,
	// so the caller can distinguish it from a transient send failure.
	Send(frame []byte, dst netip.AddrPort) error
	// Recv reads the next frame into buf, returning the number of
	// bytes read and the source address.
	Recv(buf []byte) (n int, src netip.AddrPort, err error)
	Close() error
}

// UDPTransport is the default Transport, backed by a single
// net.UDPConn, matching TunGo's udp_listener wrapper style.
type UDPTransport struct {
	conn *net.UDPConn
}

// Listen binds a UDP socket at addr (host:port) and returns a
// UDPTransport over it.
func Listen(addr string) (*UDPTransport, error) {
	laddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: resolve %q: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %q: %w", addr, err)
	}
	return &UDPTransport{conn: conn}, nil
}

func (t *UDPTransport) Send(frame []byte, dst netip.AddrPort) error {
	_, err := t.conn.WriteToUDPAddrPort(frame, dst)
	if err != nil {
		if isNoRoute(err) {
			return dcoerr.ErrNoRoute
		}
		return fmt.Errorf("transport: send to %s: %w", dst, err)
	}
	return nil
}

func (t *UDPTransport) Recv(buf []byte) (int, netip.AddrPort, error) {
	n, _, _, addr, err := t.conn.ReadMsgUDPAddrPort(buf, nil)
	if err != nil {
		return 0, netip.AddrPort{}, fmt.Errorf("transport: recv: %w", err)
	}
	return n, addr, nil
}

func (t *UDPTransport) Close() error {
	return t.conn.Close()
}

// SyscallConn exposes the underlying socket for platform-specific
// adapters (adapter_linux.go) to set socket options on.
func (t *UDPTransport) SyscallConn() (syscall.RawConn, error) {
	return t.conn.SyscallConn()
}

func isNoRoute(err error) bool {
	return errors.Is(err, syscall.ENETUNREACH) || errors.Is(err, syscall.EHOSTUNREACH)
}
