package transport

import (
	"crypto/tls"
	"crypto/x509"
	"os"

	"github.com/ample-labs/geyser-gateway/types"
)

// ServerTLSConfig loads a PEM certificate/key pair and returns a tls.Config
// suitable for a QUIC listener: no client auth (the producer does not
// verify consumer identity; access control is an upstream concern), ALPN
// pinned to the gateway's wire protocol.
func ServerTLSConfig(certPath, keyPath string) (*tls.Config, *types.GatewayError) {
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, types.NewGatewayError(types.ErrTlsLoad, "loading server cert/key pair", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{types.ALPNProtocol},
		MinVersion:   tls.VersionTLS13,
	}, nil
}

// ClientTLSConfig builds a tls.Config that pins the server's certificate:
// the consumer does not trust a system root store, since producer and
// consumer are deployed as a matched pair with a known cert. fqdn is
// checked against the pinned certificate's subject during verification.
func ClientTLSConfig(certPath, fqdn string) (*tls.Config, *types.GatewayError) {
	pem, err := os.ReadFile(certPath)
	if err != nil {
		return nil, types.NewGatewayError(types.ErrTlsLoad, "reading pinned server cert", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, types.NewGatewayError(types.ErrTlsLoad, "pinned server cert is not valid PEM", nil)
	}
	return &tls.Config{
		RootCAs:    pool,
		ServerName: fqdn,
		NextProtos: []string{types.ALPNProtocol},
		MinVersion: tls.VersionTLS13,
	}, nil
}
