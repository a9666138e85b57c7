// Package models implements the commands that manage
// the models of a running Tensorcraft server.
package models

import (
	"errors"
	"github.com/cirruslabs/tensorcraft/internal/client"
	"github.com/cirruslabs/tensorcraft/internal/tlsconfig"
	"github.com/spf13/cobra"
	"os"
	"path/filepath"
)

var serviceURL string
var useTLS bool
var tlsVerify bool
var tlsCACert string
var tlsCert string
var tlsKey string

func addClientFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&serviceURL, "service-url", "s", client.DefaultServiceURL,
		"URL of the Tensorcraft server")
	cmd.Flags().BoolVar(&useTLS, "tls", false,
		"use TLS")
	cmd.Flags().BoolVar(&tlsVerify, "tlsverify", false,
		"use TLS and verify the server certificate")
	cmd.Flags().StringVar(&tlsCACert, "tlscacert", defaultTLSPath("cacert.pem"),
		"trust only the server certificates signed by this CA")
	cmd.Flags().StringVar(&tlsCert, "tlscert", defaultTLSPath("cert.pem"),
		"path to the TLS client certificate file")
	cmd.Flags().StringVar(&tlsKey, "tlskey", defaultTLSPath("key.pem"),
		"path to the TLS client key file")
}

func newClient(cmd *cobra.Command, opts ...client.Option) (*client.Client, error) {
	if useTLS || tlsVerify {
		tlsClient := &tlsconfig.Client{
			Verify: tlsVerify,
			CACert: tlsCACert,
		}

		// The default client certificate is optional, but
		// the one that was asked for explicitly is not
		if cmd.Flags().Changed("tlscert") || cmd.Flags().Changed("tlskey") ||
			(fileExists(tlsCert) && fileExists(tlsKey)) {
			tlsClient.Cert = tlsCert
			tlsClient.Key = tlsKey
		}

		tlsConfig, err := tlsClient.Config()
		if err != nil {
			return nil, err
		}

		opts = append(opts, client.WithTLSConfig(tlsConfig))
	}

	return client.New(serviceURL, opts...)
}

func defaultTLSPath(name string) string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(homeDir, ".tensorcraft", name)
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}

	_, err := os.Stat(path)

	return !errors.Is(err, os.ErrNotExist) && err == nil
}
