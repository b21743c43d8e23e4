package integration

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

// chdir switches the working directory to dir and restores the previous
// one when the test finishes, mirroring testing.T.Chdir.
func chdir(t *testing.T, dir string) {
	t.Helper()

	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))

	t.Cleanup(func() {
		require.NoError(t, os.Chdir(prev))
	})
}
