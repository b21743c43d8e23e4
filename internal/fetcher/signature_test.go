package fetcher

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/stretchr/testify/require"

	"github.com/gtk-phone-popup/packager/internal/recipe"
)

// signedFixture generates a signing key and a detached armored signature over
// payload, writing the armored public keyring, the payload, and the signature
// into dir. It returns the keyring, payload, and signature paths.
func signedFixture(t *testing.T, dir string, payload []byte) (string, string, string) {
	t.Helper()

	entity, err := openpgp.NewEntity("Popup Release", "", "release@gtk-phone-popup.invalid", nil)
	require.NoError(t, err)

	var pub bytes.Buffer

	w, err := armor.Encode(&pub, openpgp.PublicKeyType, nil)
	require.NoError(t, err)
	require.NoError(t, entity.Serialize(w))
	require.NoError(t, w.Close())

	keyringPath := filepath.Join(dir, "trusted.asc")
	require.NoError(t, os.WriteFile(keyringPath, pub.Bytes(), 0o600))

	signedPath := filepath.Join(dir, "gtk_popup.py")
	require.NoError(t, os.WriteFile(signedPath, payload, 0o600))

	var sig bytes.Buffer
	require.NoError(t, openpgp.ArmoredDetachSign(&sig, entity, bytes.NewReader(payload), nil))

	signaturePath := filepath.Join(dir, "gtk_popup.py.sig")
	require.NoError(t, os.WriteFile(signaturePath, sig.Bytes(), 0o600))

	return keyringPath, signedPath, signaturePath
}

// TestVerifyDetachedSignature accepts a genuine signature and rejects the
// same signature over tampered content.
func TestVerifyDetachedSignature(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	keyringPath, signedPath, signaturePath := signedFixture(t, dir, []byte("print('call')\n"))

	ring, err := loadKeyring(keyringPath)
	require.NoError(t, err)

	require.NoError(t, verifyDetached(ring, signedPath, signaturePath))

	tamperedPath := filepath.Join(dir, "tampered.py")
	require.NoError(t, os.WriteFile(tamperedPath, []byte("print('hangup')\n"), 0o600))
	require.Error(t, verifyDetached(ring, tamperedPath, signaturePath))
}

// TestFetchVerifiesSignature runs the whole fetch path with a keyring: a
// source declaring a valid detached signature passes, a signature from a key
// outside the keyring fails.
func TestFetchVerifiesSignature(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	payload := []byte("print('call')\n")
	keyringPath, signedPath, signaturePath := signedFixture(t, dir, payload)

	f, err := New(WithKeyring(keyringPath))
	require.NoError(t, err)

	src := &recipe.Source{
		URL:       signedPath,
		Checksum:  recipe.ChecksumSkip,
		Signature: signaturePath,
	}

	localPath, err := f.Fetch(context.Background(), src, t.TempDir())
	require.NoError(t, err)

	fetched, err := os.ReadFile(localPath)
	require.NoError(t, err)
	require.Equal(t, payload, fetched)

	// A signature made by a key the keyring has never seen must not verify.
	strangerDir := t.TempDir()
	_, _, strangerSignature := signedFixture(t, strangerDir, payload)

	src.Signature = strangerSignature
	_, err = f.Fetch(context.Background(), src, t.TempDir())
	require.Error(t, err)
}
