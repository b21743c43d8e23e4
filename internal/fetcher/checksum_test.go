package fetcher

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestFileChecksumHex verifies a known SHA-256 digest.
func TestFileChecksumHex(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "input.txt")
	require.NoError(t, os.WriteFile(path, []byte("test"), 0o644))

	digest, err := FileChecksumHex(path)
	require.NoError(t, err)
	// sha256("test")
	require.Equal(t, "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08", digest)
}

// TestChecksumEncoding round-trips the lockfile encoding.
func TestChecksumEncoding(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "input.txt")
	require.NoError(t, os.WriteFile(path, []byte("payload"), 0o644))

	sum, err := FileChecksum(path)
	require.NoError(t, err)
	require.Len(t, sum, 32)

	decoded, err := DecodeChecksum(EncodeChecksum(sum))
	require.NoError(t, err)
	require.Equal(t, sum, decoded)
}

// TestFileChecksumMissingFile surfaces the underlying error.
func TestFileChecksumMissingFile(t *testing.T) {
	t.Parallel()

	_, err := FileChecksum(filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
}
