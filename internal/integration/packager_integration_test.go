package integration

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gtk-phone-popup/packager/internal/recipe"
	"github.com/gtk-phone-popup/packager/internal/service/installer"
	"github.com/gtk-phone-popup/packager/internal/service/packager"
)

// TestPackager_WritesLockfile fetches the sources and pins their checksums.
func TestPackager_WritesLockfile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	ts := startSourceServer(t)
	recipePath := writePopupRecipe(t, dir, ts.URL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := packager.Run(ctx, &packager.Options{
		RecipePath: recipePath,
		ConfigPath: filepath.Join(dir, "no-settings.yaml"),
	})
	require.NoError(t, err)

	lock, err := recipe.LoadLockfile(recipe.LockfilePath(recipePath))
	require.NoError(t, err)
	require.Equal(t, "gtk-phone-popup", lock.Name)
	require.Equal(t, "0.1.0", lock.Version)

	scriptSum := sha256.Sum256(popupScript)
	unitSum := sha256.Sum256(popupUnit)

	require.Equal(t, base64.StdEncoding.EncodeToString(scriptSum[:]), lock.Sources["gtk_popup.py"])
	require.Equal(t, base64.StdEncoding.EncodeToString(unitSum[:]), lock.Sources["gtk-popup.service"])
}

// TestInstaller_EnforcesLockfile rejects sources that changed after packaging,
// even though the recipe itself declares SKIP.
func TestInstaller_EnforcesLockfile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	// Mutable server: content changes after the lockfile is generated.
	script := popupScript

	mux := http.NewServeMux()
	mux.HandleFunc("/gtk_popup.py", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(script)
	})
	mux.HandleFunc("/gtk-popup.service", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(popupUnit)
	})

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	recipePath := writePopupRecipe(t, dir, ts.URL)

	require.NoError(t, packager.Run(context.Background(), &packager.Options{
		RecipePath: recipePath,
		ConfigPath: filepath.Join(dir, "no-settings.yaml"),
	}))

	// The upstream content is replaced between packaging and install.
	script = []byte("#!/usr/bin/env python3\nprint('not the released script')\n")

	root := filepath.Join(dir, "root")

	err := installer.Run(context.Background(), &installer.Options{
		RecipePath: recipePath,
		ConfigPath: filepath.Join(dir, "no-settings.yaml"),
		Root:       root,
		NoStop:     true,
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "lockfile")
}
