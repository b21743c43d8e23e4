package recipe

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LockfilePermissions keeps lockfiles world-readable; they carry no secrets.
const LockfilePermissions = 0o644

var errLockfileEmpty = errors.New("lockfile has no source checksums")

// Lockfile records the checksums actually computed from fetched sources for a
// given recipe version. It is written by the packager and preferred over the
// recipe's declared checksums by the installer and verifier.
type Lockfile struct {
	// Name and Version identify the recipe the checksums were computed for.
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Release string `yaml:"release,omitempty"`
	// GeneratedAt is when the packager produced this lockfile.
	GeneratedAt time.Time `yaml:"generated_at"`
	// Sources maps fetched file names to base64-encoded SHA-256 digests.
	Sources map[string]string `yaml:"sources"`
}

// LockfilePath derives the lockfile location from a recipe path:
// gtk-phone-popup.yaml becomes gtk-phone-popup.lock.yaml alongside it.
func LockfilePath(recipePath string) string {
	ext := filepath.Ext(recipePath)
	return strings.TrimSuffix(recipePath, ext) + ".lock" + ext
}

// LoadLockfile reads a lockfile from disk. os.ErrNotExist passes through so
// callers can treat an absent lockfile as "fall back to recipe checksums".
func LoadLockfile(path string) (*Lockfile, error) {
	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read lockfile: %w", err)
	}

	var lock Lockfile
	if err := yaml.Unmarshal(contents, &lock); err != nil {
		return nil, fmt.Errorf("unmarshal lockfile: %w", err)
	}

	if len(lock.Sources) == 0 {
		return nil, errLockfileEmpty
	}

	return &lock, nil
}

// SaveLockfile writes the lockfile to the provided path.
func SaveLockfile(path string, lock *Lockfile) error {
	if len(lock.Sources) == 0 {
		return errLockfileEmpty
	}

	data, err := yaml.Marshal(lock)
	if err != nil {
		return fmt.Errorf("marshal lockfile: %w", err)
	}

	if err := os.WriteFile(filepath.Clean(path), data, LockfilePermissions); err != nil {
		return fmt.Errorf("write lockfile: %w", err)
	}

	return nil
}
