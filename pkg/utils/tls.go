package utils

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// LoadClientCertificate loads a PEM client certificate and key. When keyFile
// is empty the key is expected in certFile.
func LoadClientCertificate(certFile, keyFile string) (*tls.Certificate, error) {
	if keyFile == "" {
		keyFile = certFile
	}
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load client key pair: %w", err)
	}
	return &cert, nil
}

// ClientTLSConfig builds the TLS configuration of an outgoing session.
// caFile: CA bundle used to verify servers (optional, system roots if empty)
// cert: client certificate for mutual TLS (optional)
func ClientTLSConfig(verify bool, cert *tls.Certificate, caFile string) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		InsecureSkipVerify: !verify, //nolint:gosec // opt-in through --insecure
	}

	if cert != nil {
		tlsConfig.Certificates = []tls.Certificate{*cert}
	}

	if caFile != "" {
		caCert, err := os.ReadFile(caFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}

		certPool := x509.NewCertPool()
		if !certPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to append CA certificate")
		}
		tlsConfig.RootCAs = certPool
	}

	return tlsConfig, nil
}
