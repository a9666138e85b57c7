package run

import (
	"github.com/stretchr/testify/require"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func TestLockPidfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tensorcraft.pid")

	unlock, err := lockPidfile(path)
	require.NoError(t, err)

	pidBytes, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, strconv.Itoa(os.Getpid()), strings.TrimSpace(string(pidBytes)))

	// Another server can't use the same PID file
	_, err = lockPidfile(path)
	require.Error(t, err)

	unlock()

	_, err = os.Stat(path)
	require.ErrorIs(t, err, os.ErrNotExist)
}
