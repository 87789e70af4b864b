package engine

import (
	"crypto/rand"
	"errors"
	"net/netip"
	"sync"
	"testing"

	"golang.org/x/crypto/chacha20poly1305"

	"dcoengine/application/codec"
	"dcoengine/application/crypto"
	"dcoengine/application/peer"
	"dcoengine/domain/dcoerr"
	"dcoengine/domain/packetid"
)

type fakeTun struct {
	mu      sync.Mutex
	written [][]byte
}

func (f *fakeTun) Read(p []byte) (int, error) { return 0, nil }

func (f *fakeTun) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := append([]byte(nil), p...)
	f.written = append(f.written, cp)
	return len(p), nil
}

func (f *fakeTun) writes() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.written...)
}

type fakeTransport struct {
	mu   sync.Mutex
	sent []sentFrame
}

type sentFrame struct {
	frame []byte
	dst   netip.AddrPort
}

func (f *fakeTransport) Send(frame []byte, dst netip.AddrPort) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentFrame{frame: append([]byte(nil), frame...), dst: dst})
	return nil
}

func (f *fakeTransport) Recv(buf []byte) (int, netip.AddrPort, error) { return 0, netip.AddrPort{}, nil }

type fakeControlPlane struct {
	mu            sync.Mutex
	delivered     [][]byte
	rekeyRequests []rekeyRequest
}

type rekeyRequest struct {
	peer  *peer.Peer
	keyID byte
}

func (f *fakeControlPlane) Deliver(frame []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delivered = append(f.delivered, append([]byte(nil), frame...))
	return nil
}

func (f *fakeControlPlane) RekeyRequired(p *peer.Peer, keyID byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rekeyRequests = append(f.rekeyRequests, rekeyRequest{peer: p, keyID: keyID})
}

func (f *fakeControlPlane) rekeys() []rekeyRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]rekeyRequest(nil), f.rekeyRequests...)
}

func newTestEngine(t *testing.T) (*Engine, *fakeTun, *fakeTransport, *fakeControlPlane) {
	t.Helper()
	tun := &fakeTun{}
	tr := &fakeTransport{}
	cp := &fakeControlPlane{}
	e := New(tr, tun, cp, nil, Config{MTU: 1500, Headroom: 64})
	return e, tun, tr, cp
}

func installSymmetricContext(t *testing.T, keyID byte, epoch uint32) *crypto.Context {
	t.Helper()
	var key [chacha20poly1305.KeySize]byte
	if _, err := rand.Read(key[:]); err != nil {
		t.Fatalf("rand: %v", err)
	}
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		t.Fatalf("aead: %v", err)
	}
	return crypto.NewContext(keyID, aead, aead, epoch, nil)
}

func TestEngine_TXRX_RoundTrip(t *testing.T) {
	e, tun, tr, _ := newTestEngine(t)

	binding := peer.Binding{
		External: netip.MustParseAddrPort("203.0.113.9:1194"),
		Internal: netip.MustParseAddr("10.8.0.2"),
	}
	p := peer.New(binding)
	ctx := installSymmetricContext(t, 3, 1000)
	p.InstallContext(ctx)
	if err := p.SetPrimary(3); err != nil {
		t.Fatalf("set primary: %v", err)
	}
	e.SetPeer(p)

	ipv4Packet := append([]byte{0x45, 0x00, 0x00, 0x14, 1, 2, 3, 4, 5, 6, 7, 8}, make([]byte, 8)...)
	if err := e.HandlePlaintext(ipv4Packet); err != nil {
		t.Fatalf("HandlePlaintext: %v", err)
	}

	if len(tr.sent) != 1 {
		t.Fatalf("expected exactly one frame sent, got %d", len(tr.sent))
	}
	sent := tr.sent[0]
	if sent.dst != binding.External {
		t.Fatalf("expected frame sent to peer binding, got %v", sent.dst)
	}
	gotOp, gotKeyID := codec.DecodeOpcodeByte(sent.frame[0])
	if gotOp != codec.OpDataV1 || gotKeyID != 3 {
		t.Fatalf("unexpected opcode byte: op=%v keyID=%d", gotOp, gotKeyID)
	}

	if err := e.HandleFrame(sent.frame, binding.External); err != nil {
		t.Fatalf("HandleFrame: %v", err)
	}

	writes := tun.writes()
	if len(writes) != 1 {
		t.Fatalf("expected one tun write, got %d", len(writes))
	}
	if string(writes[0]) != string(ipv4Packet) {
		t.Fatalf("round-trip mismatch: got %v want %v", writes[0], ipv4Packet)
	}
}

func TestEngine_RX_NonDataOpcodeForwardedToControlPlane(t *testing.T) {
	e, tun, _, cp := newTestEngine(t)

	binding := peer.Binding{
		External: netip.MustParseAddrPort("203.0.113.9:1194"),
		Internal: netip.MustParseAddr("10.8.0.2"),
	}
	p := peer.New(binding)
	e.SetPeer(p)

	controlFrame := []byte{codec.EncodeOpcodeByte(codec.Opcode(1), 0), 0xAA, 0xBB}
	if err := e.HandleFrame(controlFrame, binding.External); err != nil {
		t.Fatalf("HandleFrame: %v", err)
	}

	if len(cp.delivered) != 1 || string(cp.delivered[0]) != string(controlFrame) {
		t.Fatalf("expected control frame forwarded verbatim, got %v", cp.delivered)
	}
	if len(tun.writes()) != 0 {
		t.Fatalf("control-channel frame must never reach the tun device")
	}
}

func TestEngine_RX_NoPeerForwardsToControlPlane(t *testing.T) {
	e, _, _, cp := newTestEngine(t)

	dataFrame := codec.Encode(codec.Header{Op: codec.OpDataV1, KeyID: 0, PacketID: 1}, []byte{1, 2, 3})
	src := netip.MustParseAddrPort("198.51.100.1:1194")
	if err := e.HandleFrame(dataFrame, src); err != nil {
		t.Fatalf("HandleFrame: %v", err)
	}
	if len(cp.delivered) != 1 {
		t.Fatalf("expected frame forwarded to control plane when no peer is installed")
	}
}

func TestEngine_RX_UnknownKeyIDDropped(t *testing.T) {
	e, tun, _, _ := newTestEngine(t)

	binding := peer.Binding{
		External: netip.MustParseAddrPort("203.0.113.9:1194"),
		Internal: netip.MustParseAddr("10.8.0.2"),
	}
	p := peer.New(binding)
	p.InstallContext(installSymmetricContext(t, 0, 1))
	p.InstallContext(installSymmetricContext(t, 1, 1))
	e.SetPeer(p)

	frame := codec.Encode(codec.Header{Op: codec.OpDataV2, KeyID: 5, PacketID: 1}, []byte{1, 2})
	err := e.HandleFrame(frame, binding.External)
	if !errors.Is(err, dcoerr.ErrNoKey) {
		t.Fatalf("expected no-key error, got %v", err)
	}
	if len(tun.writes()) != 0 {
		t.Fatalf("unknown key-id must never reach the tun device")
	}
}

func TestEngine_TX_NoPeerFails(t *testing.T) {
	e, _, tr, _ := newTestEngine(t)
	err := e.HandlePlaintext(append([]byte{0x45, 0, 0, 0}, make([]byte, 16)...))
	if !errors.Is(err, dcoerr.ErrNoPeer) {
		t.Fatalf("expected no-peer error, got %v", err)
	}
	if len(tr.sent) != 0 {
		t.Fatalf("no frame should be sent without a peer")
	}
}

func TestEngine_TX_WrapSignalsRekeyRequired(t *testing.T) {
	e, _, tr, cp := newTestEngine(t)

	binding := peer.Binding{
		External: netip.MustParseAddrPort("203.0.113.9:1194"),
		Internal: netip.MustParseAddr("10.8.0.2"),
	}
	p := peer.New(binding)
	ctx := installSymmetricContext(t, 2, 1)
	ctx.Xmit = packetid.NewXmitAt(1, 0xFFFFFFFF)
	p.InstallContext(ctx)
	if err := p.SetPrimary(2); err != nil {
		t.Fatalf("set primary: %v", err)
	}
	e.SetPeer(p)

	ipv4Packet := append([]byte{0x45, 0x00, 0x00, 0x14, 1, 2, 3, 4, 5, 6, 7, 8}, make([]byte, 8)...)
	if err := e.HandlePlaintext(ipv4Packet); err != nil {
		t.Fatalf("HandlePlaintext: %v", err)
	}

	rekeys := cp.rekeys()
	if len(rekeys) != 1 {
		t.Fatalf("expected exactly one rekey-required event, got %d", len(rekeys))
	}
	if rekeys[0].peer != p || rekeys[0].keyID != 2 {
		t.Fatalf("unexpected rekey-required event: %+v", rekeys[0])
	}
	if len(tr.sent) != 0 {
		t.Fatalf("no frame should be emitted when the packet-id space is exhausted")
	}
}

func TestEngine_RX_KeepaliveUpdatesTimestampWithoutTunWrite(t *testing.T) {
	e, tun, tr, _ := newTestEngine(t)

	binding := peer.Binding{
		External: netip.MustParseAddrPort("203.0.113.9:1194"),
		Internal: netip.MustParseAddr("10.8.0.2"),
	}
	p := peer.New(binding)
	ctx := installSymmetricContext(t, 0, 1)
	p.InstallContext(ctx)
	if err := p.SetPrimary(0); err != nil {
		t.Fatalf("set primary: %v", err)
	}
	e.SetPeer(p)

	if err := e.HandleSpecial(codec.KeepalivePayload[:]); err != nil {
		t.Fatalf("HandleSpecial: %v", err)
	}
	if len(tr.sent) != 1 {
		t.Fatalf("expected keepalive frame to be sent")
	}

	if err := e.HandleFrame(tr.sent[0].frame, binding.External); err != nil {
		t.Fatalf("HandleFrame: %v", err)
	}

	if len(tun.writes()) != 0 {
		t.Fatalf("a keepalive must never be handed to the tun device")
	}
	stats := p.Stats()
	if stats.LastRx.IsZero() {
		t.Fatalf("expected keepalive to refresh the rx timestamp")
	}
}
