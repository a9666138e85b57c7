// Package tlsconfig builds TLS configurations from PEM files
// for both the server and the client side of the API.
package tlsconfig

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
)

var ErrNoCertificates = errors.New("no certificates found")

// Server returns a configuration that presents the certificate and, when
// clientCA is not empty, only accepts clients with a certificate signed by it.
func Server(cert string, key string, clientCA string) (*tls.Config, error) {
	certificate, err := tls.LoadX509KeyPair(cert, key)
	if err != nil {
		return nil, fmt.Errorf("failed to load TLS certificate %s and key %s: %w", cert, key, err)
	}

	config := &tls.Config{
		Certificates: []tls.Certificate{certificate},
		MinVersion:   tls.VersionTLS12,
	}

	if clientCA != "" {
		pool, err := loadPool(clientCA)
		if err != nil {
			return nil, err
		}

		config.ClientCAs = pool
		config.ClientAuth = tls.RequireAndVerifyClientCert
	}

	return config, nil
}

type Client struct {
	// Verify the server certificate against CACert
	// instead of accepting any certificate
	Verify bool
	CACert string

	// Client certificate, presented only when both are set
	Cert string
	Key  string
}

func (client *Client) Config() (*tls.Config, error) {
	config := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}

	if client.Verify {
		if client.CACert != "" {
			pool, err := loadPool(client.CACert)
			if err != nil {
				return nil, err
			}

			config.RootCAs = pool
		}
	} else {
		//nolint:gosec // verification is opt-in, same as with the --tlsverify flag
		config.InsecureSkipVerify = true
	}

	if client.Cert != "" && client.Key != "" {
		certificate, err := tls.LoadX509KeyPair(client.Cert, client.Key)
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS client certificate %s and key %s: %w",
				client.Cert, client.Key, err)
		}

		config.Certificates = []tls.Certificate{certificate}
	}

	return config, nil
}

func loadPool(path string) (*x509.CertPool, error) {
	pemBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate %s: %w", path, err)
	}

	pool := x509.NewCertPool()

	if !pool.AppendCertsFromPEM(pemBytes) {
		return nil, fmt.Errorf("%w in CA certificate %s", ErrNoCertificates, path)
	}

	return pool, nil
}
