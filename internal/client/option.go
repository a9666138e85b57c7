package client

import (
	"crypto/tls"
	"io"
	"net/http"
)

type Option func(client *Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(client *Client) {
		client.httpClient = httpClient
	}
}

// WithProgressOutput enables the upload progress bar when pushing models.
func WithProgressOutput(w io.Writer) Option {
	return func(client *Client) {
		client.progressOutput = w
	}
}

// WithTLSConfig talks to the server over HTTPS. Ignored when
// a custom HTTP client is provided with WithHTTPClient().
func WithTLSConfig(tlsConfig *tls.Config) Option {
	return func(client *Client) {
		client.tlsConfig = tlsConfig
	}
}
