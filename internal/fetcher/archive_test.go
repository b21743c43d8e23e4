package fetcher

import (
	"archive/tar"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"
)

// buildTarGz produces a gzip-compressed tarball with the given members.
func buildTarGz(t *testing.T, members map[string][]byte) []byte {
	t.Helper()

	var buf bytes.Buffer

	gz := gzip.NewWriter(&buf)
	writeTar(t, gz, members)
	require.NoError(t, gz.Close())

	return buf.Bytes()
}

// buildTarXz produces an xz-compressed tarball with the given members.
func buildTarXz(t *testing.T, members map[string][]byte) []byte {
	t.Helper()

	var buf bytes.Buffer

	xzWriter, err := xz.NewWriter(&buf)
	require.NoError(t, err)
	writeTar(t, xzWriter, members)
	require.NoError(t, xzWriter.Close())

	return buf.Bytes()
}

func writeTar(t *testing.T, output io.Writer, members map[string][]byte) {
	t.Helper()

	tw := tar.NewWriter(output)

	names := make([]string, 0, len(members))
	for name := range members {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {
		body := members[name]
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name: name,
			Mode: 0o644,
			Size: int64(len(body)),
		}))

		_, err := tw.Write(body)
		require.NoError(t, err)
	}

	require.NoError(t, tw.Close())
}

// TestExtractArchiveTarGz unpacks a gzip tarball preserving relative layout.
func TestExtractArchiveTarGz(t *testing.T) {
	t.Parallel()

	archive := buildTarGz(t, map[string][]byte{
		"repo/gtk_popup.py":           []byte("script"),
		"repo/docs/gtk-popup.service": []byte("unit"),
	})

	dir := t.TempDir()
	archivePath := filepath.Join(dir, "src.tar.gz")
	require.NoError(t, os.WriteFile(archivePath, archive, 0o644))

	members, err := extractArchive(archivePath, dir)
	require.NoError(t, err)
	require.ElementsMatch(t,
		[]string{"repo/gtk_popup.py", "repo/docs/gtk-popup.service"}, members)

	body, err := os.ReadFile(filepath.Join(dir, "repo", "gtk_popup.py"))
	require.NoError(t, err)
	require.Equal(t, []byte("script"), body)
}

// TestExtractArchiveTarXz unpacks an xz tarball.
func TestExtractArchiveTarXz(t *testing.T) {
	t.Parallel()

	archive := buildTarXz(t, map[string][]byte{
		"repo/gtk_popup.py": []byte("script"),
	})

	dir := t.TempDir()
	archivePath := filepath.Join(dir, "src.tar.xz")
	require.NoError(t, os.WriteFile(archivePath, archive, 0o644))

	members, err := extractArchive(archivePath, dir)
	require.NoError(t, err)
	require.Equal(t, []string{"repo/gtk_popup.py"}, members)
}

// TestExtractArchiveRejectsTraversal refuses members that escape the destination.
func TestExtractArchiveRejectsTraversal(t *testing.T) {
	t.Parallel()

	archive := buildTarGz(t, map[string][]byte{
		"../escape.py": []byte("nope"),
	})

	dir := t.TempDir()
	archivePath := filepath.Join(dir, "src.tar.gz")
	require.NoError(t, os.WriteFile(archivePath, archive, 0o644))

	_, err := extractArchive(archivePath, dir)
	require.ErrorIs(t, err, errUnsafeArchivePath)
}

// TestExtractArchiveUnsupported rejects unknown archive suffixes.
func TestExtractArchiveUnsupported(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	archivePath := filepath.Join(dir, "src.zip")
	require.NoError(t, os.WriteFile(archivePath, []byte("zip?"), 0o644))

	_, err := extractArchive(archivePath, dir)
	require.Error(t, err)
}
