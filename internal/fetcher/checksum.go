package fetcher

import (
	"crypto"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	// Ensure SHA256 is available for checksum calculation.
	_ "crypto/sha256"
)

// ChecksumFunction is used for all source and artifact hashing.
const ChecksumFunction crypto.Hash = crypto.SHA256

var errHashUnavailable = errors.New("hash function unavailable")

// FileChecksum returns the raw checksum bytes for a file using ChecksumFunction.
func FileChecksum(path string) ([]byte, error) {
	if !ChecksumFunction.Available() {
		return nil, fmt.Errorf("checksum calculation not possible: %w", errHashUnavailable)
	}

	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = f.Close()
	}()

	hasher := ChecksumFunction.New()
	if _, err = io.Copy(hasher, f); err != nil {
		return nil, fmt.Errorf("calculate checksum: %w", err)
	}

	return hasher.Sum(nil), nil
}

// FileChecksumHex returns the lowercase hex digest of a file.
func FileChecksumHex(path string) (string, error) {
	sum, err := FileChecksum(path)
	if err != nil {
		return "", err
	}

	return hex.EncodeToString(sum), nil
}

// EncodeChecksum renders raw checksum bytes in the lockfile encoding.
func EncodeChecksum(sum []byte) string {
	return base64.StdEncoding.EncodeToString(sum)
}

// DecodeChecksum parses the lockfile encoding back into raw checksum bytes.
func DecodeChecksum(encoded string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(encoded)
}
