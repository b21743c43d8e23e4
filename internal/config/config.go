package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds tool-level settings shared by the popup packaging binaries.
type Config struct {
	// InstallRoot is the filesystem root that destination paths are joined
	// onto. "/" installs into the live system; any other directory acts as a
	// staging root (DESTDIR).
	InstallRoot string `yaml:"install_root"`
	// CacheDir is where fetched sources are stored between runs.
	CacheDir string `yaml:"cache_dir"`
	// KeyringPath points to an armored PGP public keyring used to verify
	// detached source signatures. Empty disables signature verification.
	KeyringPath string `yaml:"keyring_path"`
	// DownloadTimeout bounds a single source download.
	DownloadTimeout time.Duration `yaml:"download_timeout"`
}

const (
	// DefaultConfigFilename is the default filename for tool settings.
	DefaultConfigFilename = "popup-packager-settings.yaml"

	// DefaultInstallRoot is the live system root.
	DefaultInstallRoot = "/"

	// DefaultDownloadTimeout bounds a single source download.
	DefaultDownloadTimeout = 5 * time.Minute

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errInstallRootNotAbsolute is returned when the install root is a relative path.
	errInstallRootNotAbsolute = errors.New("install root must be an absolute path")
)

// Default returns a configuration populated with defaults.
func Default() *Config {
	return &Config{
		InstallRoot:     DefaultInstallRoot,
		CacheDir:        defaultCacheDir(),
		DownloadTimeout: DefaultDownloadTimeout,
	}
}

// Load reads configuration from the provided path and validates essential fields.
// A missing file is not an error: defaults are returned instead, so the
// binaries work without a settings file present.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}

		return nil, fmt.Errorf("read settings: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(contents, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes settings to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks required fields and fills unset values with defaults.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.InstallRoot == "" {
		cfg.InstallRoot = DefaultInstallRoot
	}

	if !filepath.IsAbs(cfg.InstallRoot) {
		return fmt.Errorf("%q: %w", cfg.InstallRoot, errInstallRootNotAbsolute)
	}

	if cfg.CacheDir == "" {
		cfg.CacheDir = defaultCacheDir()
	}

	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = DefaultDownloadTimeout
	}

	return nil
}

// defaultCacheDir resolves the per-user cache directory,
// falling back to a temporary directory when the user cache is unavailable.
func defaultCacheDir() string {
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}

	return filepath.Join(base, "popup-packager")
}
