package server

import (
	"crypto/tls"
	"go.uber.org/zap"
)

type Option func(server *Server)

func WithLogger(logger *zap.SugaredLogger) Option {
	return func(server *Server) {
		server.logger = logger
	}
}

// WithTLSConfig serves the API over HTTPS.
func WithTLSConfig(tlsConfig *tls.Config) Option {
	return func(server *Server) {
		server.tlsConfig = tlsConfig
	}
}
