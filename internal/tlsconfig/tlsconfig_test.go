package tlsconfig_test

import (
	"crypto/tls"
	"github.com/cirruslabs/tensorcraft/internal/testutil"
	"github.com/cirruslabs/tensorcraft/internal/tlsconfig"
	"github.com/stretchr/testify/require"
	"os"
	"path/filepath"
	"testing"
)

func TestServer(t *testing.T) {
	files := testutil.TLS(t)

	config, err := tlsconfig.Server(files.ServerCert, files.ServerKey, "")
	require.NoError(t, err)
	require.Len(t, config.Certificates, 1)
	require.Equal(t, tls.NoClientCert, config.ClientAuth)

	config, err = tlsconfig.Server(files.ServerCert, files.ServerKey, files.CACert)
	require.NoError(t, err)
	require.Equal(t, tls.RequireAndVerifyClientCert, config.ClientAuth)
	require.NotNil(t, config.ClientCAs)
}

func TestClient(t *testing.T) {
	files := testutil.TLS(t)

	config, err := (&tlsconfig.Client{}).Config()
	require.NoError(t, err)
	require.True(t, config.InsecureSkipVerify)
	require.Empty(t, config.Certificates)

	config, err = (&tlsconfig.Client{
		Verify: true,
		CACert: files.CACert,
		Cert:   files.ClientCert,
		Key:    files.ClientKey,
	}).Config()
	require.NoError(t, err)
	require.False(t, config.InsecureSkipVerify)
	require.NotNil(t, config.RootCAs)
	require.Len(t, config.Certificates, 1)
}

func TestInvalidCA(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ca.pem")
	require.NoError(t, os.WriteFile(path, []byte("not a certificate"), 0600))

	_, err := (&tlsconfig.Client{Verify: true, CACert: path}).Config()
	require.ErrorIs(t, err, tlsconfig.ErrNoCertificates)
}
