package ingress

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ample-labs/geyser-gateway/log"
	"github.com/ample-labs/geyser-gateway/metrics"
	"github.com/ample-labs/geyser-gateway/transport"
	"github.com/ample-labs/geyser-gateway/types"
)

// generateSelfSignedCert writes a self-signed cert/key pair valid for fqdn
// to the test's temp dir and returns their paths.
func generateSelfSignedCert(t *testing.T, fqdn string) (certPath, keyPath string) {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: fqdn},
		DNSNames:     []string{fqdn},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		IsCA:         true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &priv.PublicKey, priv)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}

	dir := t.TempDir()
	certPath = filepath.Join(dir, "cert.pem")
	keyPath = filepath.Join(dir, "key.pem")

	certOut, err := os.Create(certPath)
	if err != nil {
		t.Fatalf("create cert file: %v", err)
	}
	defer certOut.Close()
	if err := pem.Encode(certOut, &pem.Block{Type: "CERTIFICATE", Bytes: der}); err != nil {
		t.Fatalf("encode cert: %v", err)
	}

	keyOut, err := os.Create(keyPath)
	if err != nil {
		t.Fatalf("create key file: %v", err)
	}
	defer keyOut.Close()
	if err := pem.Encode(keyOut, &pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}); err != nil {
		t.Fatalf("encode key: %v", err)
	}
	return certPath, keyPath
}

// loopbackAddr picks a free UDP port on localhost for integration-style tests.
func loopbackAddr(t *testing.T) string {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		t.Fatalf("find free port: %v", err)
	}
	addr := conn.LocalAddr().String()
	conn.Close()
	return addr
}

func writeProducerConfig(t *testing.T, cfg types.ProducerConfig) string {
	t.Helper()
	raw, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	path := filepath.Join(t.TempDir(), "producer.json")
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// TestAdapter_OnLoad_AssemblesPipeline drives the Adapter the way the host
// loader actually would: construct via NewPlugin, call OnLoad with a real
// config file, submit events through the plugin.ProducerCallbacks surface,
// and confirm a real transport.Client sees them arrive, before calling
// OnUnload and confirming the server stops accepting connections.
func TestAdapter_OnLoad_AssemblesPipeline(t *testing.T) {
	fqdn := "localhost"
	certPath, keyPath := generateSelfSignedCert(t, fqdn)
	bindAddr := loopbackAddr(t)

	configPath := writeProducerConfig(t, types.ProducerConfig{
		BindAddr: bindAddr,
		TransportOpts: types.TransportOpts{
			CertPath: certPath,
			KeyPath:  keyPath,
			FQDN:     fqdn,
		},
	})

	m := metrics.NewCollector()
	logger := log.NewLogger(log.SessionContext{})
	a := NewPlugin(m, logger)

	if err := a.OnLoad(configPath); err != nil {
		t.Fatalf("OnLoad: %v", err)
	}
	defer a.OnUnload()

	a.NotifyEndOfStartup()

	clientTLS, gerr := transport.ClientTLSConfig(certPath, fqdn)
	if gerr != nil {
		t.Fatalf("ClientTLSConfig: %v", gerr)
	}
	client := transport.NewClient(transport.ClientConfig{UpstreamAddr: bindAddr, TLS: clientTLS}, m, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	events := client.Events(ctx)

	if err := a.NotifyTransaction(42, []byte("hello")); err != nil {
		t.Fatalf("NotifyTransaction: %v", err)
	}

	select {
	case env := <-events[types.EventKindTransaction]:
		if env.Slot != 42 {
			t.Errorf("Slot = %d, want 42", env.Slot)
		}
		if string(env.Payload) != "hello" {
			t.Errorf("Payload = %q, want %q", env.Payload, "hello")
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for transaction to arrive over the wire")
	}
}

// TestAdapter_OnLoad_WiresCoalescer confirms account updates submitted
// through UpdateAccount reach a connected client when the config enables
// the coalescer, proving the forwarder goroutine bridges the two.
func TestAdapter_OnLoad_WiresCoalescer(t *testing.T) {
	fqdn := "localhost"
	certPath, keyPath := generateSelfSignedCert(t, fqdn)
	bindAddr := loopbackAddr(t)

	configPath := writeProducerConfig(t, types.ProducerConfig{
		BindAddr: bindAddr,
		TransportOpts: types.TransportOpts{
			CertPath: certPath,
			KeyPath:  keyPath,
			FQDN:     fqdn,
		},
		UseCoalescer: true,
		CoalescerUs:  5000,
	})

	m := metrics.NewCollector()
	logger := log.NewLogger(log.SessionContext{})
	a := NewPlugin(m, logger)

	if err := a.OnLoad(configPath); err != nil {
		t.Fatalf("OnLoad: %v", err)
	}
	defer a.OnUnload()

	a.NotifyEndOfStartup()

	clientTLS, gerr := transport.ClientTLSConfig(certPath, fqdn)
	if gerr != nil {
		t.Fatalf("ClientTLSConfig: %v", gerr)
	}
	client := transport.NewClient(transport.ClientConfig{UpstreamAddr: bindAddr, TLS: clientTLS}, m, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	events := client.Events(ctx)

	if err := a.UpdateAccount(7, [32]byte{1, 2, 3}, 1, []byte("acct")); err != nil {
		t.Fatalf("UpdateAccount: %v", err)
	}

	select {
	case env := <-events[types.EventKindAccount]:
		if env.Slot != 7 {
			t.Errorf("Slot = %d, want 7", env.Slot)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for coalesced account update to arrive over the wire")
	}
}
