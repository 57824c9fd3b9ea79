// Package transport wraps the QUIC listener setup shared by the exchange
// and enforcement endpoints: TLS material loading and ALPN configuration.
package transport

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"time"

	"github.com/quic-go/quic-go"
)

// ALPN is the application-layer protocol negotiated over QUIC-TLS for both
// core endpoints.
const ALPN = "rta/1"

// HandshakeTimeout bounds how long a QUIC handshake may take before the
// listener gives up on a connecting client.
const HandshakeTimeout = 5 * time.Second

// ServerTLSConfig loads a PEM certificate/key pair and returns a tls.Config
// suitable for quic.ListenAddr, with ALPN pinned to ALPN.
func ServerTLSConfig(certPath, keyPath string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("loading TLS certificate: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{ALPN},
		MinVersion:   tls.VersionTLS13,
	}, nil
}

// Listen binds a QUIC listener at addr with the given TLS configuration.
func Listen(addr string, tlsConf *tls.Config) (*quic.Listener, error) {
	qConf := &quic.Config{
		HandshakeIdleTimeout: HandshakeTimeout,
		MaxIdleTimeout:       30 * time.Second,
	}
	return quic.ListenAddr(addr, tlsConf, qConf)
}

// GenerateEphemeralTLSConfig builds an in-memory self-signed certificate for
// "localhost", for tests and local smoke runs that don't have real PKI
// material on hand.
func GenerateEphemeralTLSConfig() (*tls.Config, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating ephemeral key: %w", err)
	}

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{Organization: []string{"rta-test"}},
		DNSNames:     []string{"localhost"},
		NotBefore:    time.Now().Add(-time.Minute),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &priv.PublicKey, priv)
	if err != nil {
		return nil, fmt.Errorf("creating ephemeral certificate: %w", err)
	}

	cert := tls.Certificate{Certificate: [][]byte{der}, PrivateKey: priv}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{ALPN},
		MinVersion:   tls.VersionTLS13,
	}, nil
}
