package fetcher

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ProtonMail/go-crypto/openpgp"
)

// keyring holds trusted public keys for source signature verification.
type keyring = openpgp.EntityList

var errNoKeysInKeyring = errors.New("no keys found in keyring")

// loadKeyring reads a PGP public keyring, trying the armored format first and
// falling back to binary.
func loadKeyring(path string) (keyring, error) {
	keyFile, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open keyring: %w", err)
	}

	defer func() {
		_ = keyFile.Close()
	}()

	entityList, err := openpgp.ReadArmoredKeyRing(keyFile)
	if err != nil {
		if _, err = keyFile.Seek(0, 0); err != nil {
			return nil, fmt.Errorf("rewind keyring: %w", err)
		}

		entityList, err = openpgp.ReadKeyRing(keyFile)
		if err != nil {
			return nil, fmt.Errorf("read keyring: %w", err)
		}
	}

	if len(entityList) == 0 {
		return nil, errNoKeysInKeyring
	}

	return entityList, nil
}

// verifyDetached checks a detached signature over a signed file, trying the
// armored signature format first and falling back to binary.
func verifyDetached(ring keyring, signedPath, signaturePath string) error {
	signed, err := os.Open(filepath.Clean(signedPath))
	if err != nil {
		return err
	}

	defer func() {
		_ = signed.Close()
	}()

	signature, err := os.Open(filepath.Clean(signaturePath))
	if err != nil {
		return err
	}

	defer func() {
		_ = signature.Close()
	}()

	if _, err = openpgp.CheckArmoredDetachedSignature(ring, signed, signature, nil); err == nil {
		return nil
	}

	if _, err = signed.Seek(0, 0); err != nil {
		return err
	}

	if _, err = signature.Seek(0, 0); err != nil {
		return err
	}

	_, err = openpgp.CheckDetachedSignature(ring, signed, signature, nil)

	return err
}
