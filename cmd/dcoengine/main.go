// Command dcoengine runs the data-channel packet engine as a
// single-peer UDP tunnel endpoint. Key exchange, peer management, and
// TUN device creation are all external collaborators per the engine's
// scope; this command wires a static key (supplied out of band) and
// runs the RX loop and the keepalive loop. No TUN device is wired up:
// decrypted packets go to a discard stand-in that only logs their
// size, nothing is read for TX, and control-channel frames are dropped
// because no control plane is installed.
package main

import (
	"context"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/crypto/chacha20poly1305"

	"dcoengine/application/crypto"
	"dcoengine/application/engine"
	"dcoengine/application/peer"
	"dcoengine/infrastructure/logging"
	"dcoengine/infrastructure/settings"
	"dcoengine/infrastructure/transport"
	"dcoengine/infrastructure/tunio"
)

func main() {
	listenAddr := flag.String("listen", ":1194", "local UDP address to bind")
	peerAddr := flag.String("peer", "", "peer's external UDP address (host:port)")
	sharedKeyHex := flag.String("key", "", "hex-encoded shared secret (32+ bytes after SHA-256); out-of-band, stands in for a completed key exchange")
	keyID := flag.Uint("keyid", 0, "key-id (0-7) to install the static key under")
	mtu := flag.Int("mtu", settings.DefaultEthernetMTU, "plaintext MTU")
	flag.Parse()

	if *peerAddr == "" || *sharedKeyHex == "" {
		fmt.Fprintln(os.Stderr, "dcoengine: -peer and -key are required")
		flag.Usage()
		os.Exit(2)
	}
	if *keyID > 7 {
		fmt.Fprintln(os.Stderr, "dcoengine: -keyid must be in 0..7")
		os.Exit(2)
	}

	logger := logging.NewStdLogger()

	tr, err := transport.Listen(*listenAddr)
	if err != nil {
		log.Fatalf("dcoengine: listen: %v", err)
	}
	defer tr.Close()

	external, err := netip.ParseAddrPort(*peerAddr)
	if err != nil {
		log.Fatalf("dcoengine: invalid -peer address: %v", err)
	}

	aead, err := aeadFromHexKey(*sharedKeyHex)
	if err != nil {
		log.Fatalf("dcoengine: %v", err)
	}

	p := peer.New(peer.Binding{External: external})
	ctx := crypto.NewContext(byte(*keyID), aead, aead, 1, nil)
	p.InstallContext(ctx)
	if err := p.SetPrimary(byte(*keyID)); err != nil {
		log.Fatalf("dcoengine: %v", err)
	}

	tun := tunio.NewDiscard(func(n int) {
		logger.Printf("dcoengine: received %d plaintext bytes (no tun device wired up)", n)
	})

	eng := engine.New(tr, tun, nil, logger, engine.Config{
		MTU:      settings.ResolveMTU(*mtu),
		Headroom: settings.UDPChacha20Overhead,
	})
	eng.SetPeer(p)

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Printf("dcoengine: shutting down")
		cancel()
	}()

	go eng.RunKeepaliveLoop(appCtx, settings.PingInterval, settings.PingRestartTimeout, settings.IdleReaperInterval)

	runRXLoop(appCtx, eng, tr, settings.UDPBufferSize(*mtu), logger)
}

func runRXLoop(ctx context.Context, eng *engine.Engine, tr *transport.UDPTransport, bufSize int, logger *logging.StdLogger) {
	buf := make([]byte, bufSize)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, src, err := tr.Recv(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Printf("dcoengine: recv: %v", err)
			time.Sleep(10 * time.Millisecond)
			continue
		}

		if err := eng.HandleFrame(buf[:n], src); err != nil {
			logger.Printf("dcoengine: drop frame from %s: %v", src, err)
		}
	}
}

func aeadFromHexKey(hexKey string) (cipher.AEAD, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid -key: %w", err)
	}
	key := sha256.Sum256(raw)
	return chacha20poly1305.New(key[:])
}
