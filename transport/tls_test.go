package transport

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"
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

func TestServerTLSConfig_Valid(t *testing.T) {
	certPath, keyPath := generateSelfSignedCert(t, "localhost")
	cfg, gerr := ServerTLSConfig(certPath, keyPath)
	if gerr != nil {
		t.Fatalf("ServerTLSConfig: %v", gerr)
	}
	if len(cfg.Certificates) != 1 {
		t.Errorf("Certificates len = %d, want 1", len(cfg.Certificates))
	}
	if cfg.NextProtos[0] != "ample/0.1" {
		t.Errorf("NextProtos[0] = %q, want ample/0.1", cfg.NextProtos[0])
	}
}

func TestServerTLSConfig_MissingFiles(t *testing.T) {
	if _, gerr := ServerTLSConfig("/nonexistent/cert.pem", "/nonexistent/key.pem"); gerr == nil {
		t.Fatal("expected error for missing cert/key files")
	}
}

func TestClientTLSConfig_PinsServerCert(t *testing.T) {
	certPath, _ := generateSelfSignedCert(t, "gateway.internal")
	cfg, gerr := ClientTLSConfig(certPath, "gateway.internal")
	if gerr != nil {
		t.Fatalf("ClientTLSConfig: %v", gerr)
	}
	if cfg.ServerName != "gateway.internal" {
		t.Errorf("ServerName = %q, want gateway.internal", cfg.ServerName)
	}
	if cfg.RootCAs == nil {
		t.Error("RootCAs should be populated with the pinned cert")
	}
}

func TestClientTLSConfig_InvalidPEM(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.pem")
	if err := os.WriteFile(path, []byte("not a cert"), 0o600); err != nil {
		t.Fatalf("write bad cert: %v", err)
	}
	if _, gerr := ClientTLSConfig(path, "x"); gerr == nil {
		t.Fatal("expected error for invalid PEM")
	}
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
