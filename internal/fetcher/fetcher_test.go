package fetcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gtk-phone-popup/packager/internal/recipe"
)

// serveFiles starts an HTTP server exposing the given name -> body pairs.
func serveFiles(t *testing.T, files map[string][]byte) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	for name, body := range files {
		name, body := name, body

		mux.HandleFunc("/"+name, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write(body)
		})
	}

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	return ts
}

func sha256Hex(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// TestFetchVerifiesChecksum downloads a file and checks the declared digest.
func TestFetchVerifiesChecksum(t *testing.T) {
	t.Parallel()

	body := []byte("#!/usr/bin/env python3\n")
	ts := serveFiles(t, map[string][]byte{"gtk_popup.py": body})

	f, err := New()
	require.NoError(t, err)

	src := &recipe.Source{
		URL:      ts.URL + "/gtk_popup.py",
		Checksum: recipe.FormatChecksum(sha256Hex(body)),
	}

	destDir := t.TempDir()

	localPath, err := f.Fetch(context.Background(), src, destDir)
	require.NoError(t, err)

	fetched, err := os.ReadFile(localPath)
	require.NoError(t, err)
	require.Equal(t, body, fetched)
}

// TestFetchRejectsChecksumMismatch fails when content does not match the declaration.
func TestFetchRejectsChecksumMismatch(t *testing.T) {
	t.Parallel()

	ts := serveFiles(t, map[string][]byte{"gtk_popup.py": []byte("tampered")})

	f, err := New()
	require.NoError(t, err)

	src := &recipe.Source{
		URL:      ts.URL + "/gtk_popup.py",
		Checksum: recipe.FormatChecksum(sha256Hex([]byte("expected"))),
	}

	_, err = f.Fetch(context.Background(), src, t.TempDir())
	require.ErrorIs(t, err, errChecksumMismatch)
}

// TestFetchSkipLeavesContentUnverified mirrors the legacy SKIP behavior.
func TestFetchSkipLeavesContentUnverified(t *testing.T) {
	t.Parallel()

	ts := serveFiles(t, map[string][]byte{"gtk-popup.service": []byte("[Unit]\n")})

	f, err := New()
	require.NoError(t, err)

	src := &recipe.Source{
		URL:      ts.URL + "/gtk-popup.service",
		Checksum: recipe.ChecksumSkip,
	}

	localPath, err := f.Fetch(context.Background(), src, t.TempDir())
	require.NoError(t, err)

	_, err = os.Stat(localPath)
	require.NoError(t, err)
}

// TestFetchBadHTTPStatus surfaces non-200 responses as errors.
func TestFetchBadHTTPStatus(t *testing.T) {
	t.Parallel()

	ts := serveFiles(t, map[string][]byte{})

	f, err := New()
	require.NoError(t, err)

	src := &recipe.Source{
		URL:      ts.URL + "/missing-file",
		Checksum: recipe.ChecksumSkip,
	}

	_, err = f.Fetch(context.Background(), src, t.TempDir())
	require.ErrorIs(t, err, errBadHTTPStatus)
}

// TestFetchLocalPath copies plain local files.
func TestFetchLocalPath(t *testing.T) {
	t.Parallel()

	body := []byte("[Unit]\nDescription=popup\n")
	originDir := t.TempDir()
	origin := filepath.Join(originDir, "gtk-popup.service")
	require.NoError(t, os.WriteFile(origin, body, 0o644))

	f, err := New()
	require.NoError(t, err)

	src := &recipe.Source{
		URL:      origin,
		Checksum: recipe.FormatChecksum(sha256Hex(body)),
	}

	localPath, err := f.Fetch(context.Background(), src, t.TempDir())
	require.NoError(t, err)

	fetched, err := os.ReadFile(localPath)
	require.NoError(t, err)
	require.Equal(t, body, fetched)
}

// TestFetchSignatureWithoutKeyring refuses sources declaring a signature
// when no keyring is configured.
func TestFetchSignatureWithoutKeyring(t *testing.T) {
	t.Parallel()

	body := []byte("content")
	ts := serveFiles(t, map[string][]byte{
		"file":     body,
		"file.sig": []byte("not checked"),
	})

	f, err := New()
	require.NoError(t, err)

	src := &recipe.Source{
		URL:       ts.URL + "/file",
		Checksum:  recipe.FormatChecksum(sha256Hex(body)),
		Signature: ts.URL + "/file.sig",
	}

	_, err = f.Fetch(context.Background(), src, t.TempDir())
	require.ErrorIs(t, err, errKeyringRequired)
}

// TestFetchAllExtractsArchives unpacks tarball sources and indexes their members.
func TestFetchAllExtractsArchives(t *testing.T) {
	t.Parallel()

	archive := buildTarGz(t, map[string][]byte{
		"gtk-phone-popup/gtk_popup.py":              []byte("print('hi')\n"),
		"gtk-phone-popup/systemd/gtk-popup.service": []byte("[Unit]\n"),
	})

	ts := serveFiles(t, map[string][]byte{"snapshot.tar.gz": archive})

	f, err := New()
	require.NoError(t, err)

	sources := []recipe.Source{{
		URL:      ts.URL + "/snapshot.tar.gz",
		Checksum: recipe.FormatChecksum(sha256Hex(archive)),
	}}

	destDir := t.TempDir()

	fetched, err := f.FetchAll(context.Background(), sources, destDir)
	require.NoError(t, err)

	require.Contains(t, fetched, "snapshot.tar.gz")
	require.Contains(t, fetched, "gtk-phone-popup/gtk_popup.py")
	require.Contains(t, fetched, "gtk-phone-popup/systemd/gtk-popup.service")

	script, err := os.ReadFile(fetched["gtk-phone-popup/gtk_popup.py"])
	require.NoError(t, err)
	require.Equal(t, []byte("print('hi')\n"), script)
}
