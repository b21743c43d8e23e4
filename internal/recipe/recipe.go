package recipe

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ChecksumSkip is the literal checksum value that disables integrity
// verification for a source. Accepted for compatibility with hand-written
// recipes, but the packager exists to replace it with a real digest.
const ChecksumSkip = "SKIP"

// checksumPrefix is the only supported digest scheme in recipe files.
const checksumPrefix = "sha256:"

var (
	errNameRequired           = errors.New("package name must be provided")
	errVersionRequired        = errors.New("package version must be provided")
	errNoSources              = errors.New("at least one source must be declared")
	errNoPlacements           = errors.New("at least one install placement must be declared")
	errDestinationNotAbsolute = errors.New("destination must be an absolute path")
	errSourceNameRequired     = errors.New("placement source name must be provided")
	errBadChecksum            = errors.New("checksum must be SKIP or sha256:<hex digest>")
	errLauncherPathRequired   = errors.New("launcher path and target must be absolute paths")
	errSourceURLRequired      = errors.New("source url must be provided")
)

// Mode is an octal permission mode serialized as a string ("0755") in YAML.
type Mode os.FileMode

// UnmarshalYAML parses an octal string into a file mode.
func (m *Mode) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := strconv.ParseUint(strings.TrimPrefix(value.Value, "0o"), 8, 32)
	if err != nil {
		return fmt.Errorf("parse mode %q: %w", value.Value, err)
	}

	*m = Mode(parsed)

	return nil
}

// MarshalYAML renders the mode back as a zero-padded octal string.
func (m Mode) MarshalYAML() (any, error) {
	return fmt.Sprintf("%04o", os.FileMode(m)), nil
}

// FileMode converts the mode to the standard library representation.
func (m Mode) FileMode() os.FileMode {
	return os.FileMode(m)
}

// Source is one fetched origin: a URL (http, https, file, or a plain local
// path), its declared checksum, and an optional detached signature origin.
type Source struct {
	// URL is where the source is fetched from.
	URL string `yaml:"url"`
	// Checksum is "sha256:<hex>" or SKIP.
	Checksum string `yaml:"checksum"`
	// Signature is an optional URL of a detached armored PGP signature.
	Signature string `yaml:"signature,omitempty"`
}

// FileName returns the base name the fetched source is stored under.
func (s *Source) FileName() string {
	if u, err := url.Parse(s.URL); err == nil && u.Path != "" {
		return path.Base(u.Path)
	}

	return filepath.Base(s.URL)
}

// SkipsVerification reports whether the declared checksum disables verification.
func (s *Source) SkipsVerification() bool {
	return strings.EqualFold(strings.TrimSpace(s.Checksum), ChecksumSkip)
}

// Placement maps a fetched file name onto an absolute destination path with a
// fixed permission mode.
type Placement struct {
	// Source is the base name of a fetched (or extracted) file.
	Source string `yaml:"source"`
	// Destination is the absolute path the file is installed to.
	Destination string `yaml:"destination"`
	// Mode is the permission mode applied to the installed file.
	Mode Mode `yaml:"mode"`
}

// Launcher declares the generated forwarding launcher: a shell stub at Path
// that execs the interpreter on Target, passing all arguments through.
type Launcher struct {
	// Path is the absolute path the launcher is installed to.
	Path string `yaml:"path"`
	// Target is the absolute path of the installed script the launcher runs.
	Target string `yaml:"target"`
}

// Recipe is the package descriptor: identity metadata, runtime dependencies,
// fetched sources, and the install mapping applied to them.
type Recipe struct {
	Name         string      `yaml:"name"`
	Version      string      `yaml:"version"`
	Release      string      `yaml:"release"`
	Description  string      `yaml:"description"`
	License      string      `yaml:"license"`
	Architecture string      `yaml:"architecture"`
	Interpreter  string      `yaml:"interpreter"`
	Dependencies []string    `yaml:"dependencies"`
	Sources      []Source    `yaml:"sources"`
	Install      []Placement `yaml:"install"`
	Launcher     *Launcher   `yaml:"launcher,omitempty"`
}

// Load reads a recipe from disk, checks it against the embedded schema,
// decodes it, and validates semantic constraints.
func Load(path string) (*Recipe, error) {
	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read recipe: %w", err)
	}

	if err := validateSchema(contents); err != nil {
		return nil, fmt.Errorf("recipe %s: %w", path, err)
	}

	var r Recipe
	if err := yaml.Unmarshal(contents, &r); err != nil {
		return nil, fmt.Errorf("unmarshal recipe: %w", err)
	}

	if err := Validate(&r); err != nil {
		return nil, fmt.Errorf("recipe %s: %w", path, err)
	}

	return &r, nil
}

// Validate enforces the structural invariants of a recipe: identity fields
// present, sources well-formed, and every destination fixed and absolute.
func Validate(r *Recipe) error {
	if strings.TrimSpace(r.Name) == "" {
		return errNameRequired
	}

	if strings.TrimSpace(r.Version) == "" {
		return errVersionRequired
	}

	if len(r.Sources) == 0 {
		return errNoSources
	}

	for i := range r.Sources {
		if err := validateSource(&r.Sources[i]); err != nil {
			return err
		}
	}

	if len(r.Install) == 0 {
		return errNoPlacements
	}

	for _, placement := range r.Install {
		if strings.TrimSpace(placement.Source) == "" {
			return errSourceNameRequired
		}

		if !filepath.IsAbs(placement.Destination) {
			return fmt.Errorf("%q: %w", placement.Destination, errDestinationNotAbsolute)
		}
	}

	if r.Launcher != nil {
		if !filepath.IsAbs(r.Launcher.Path) || !filepath.IsAbs(r.Launcher.Target) {
			return errLauncherPathRequired
		}
	}

	return nil
}

// validateSource checks a single source declaration.
func validateSource(s *Source) error {
	if strings.TrimSpace(s.URL) == "" {
		return errSourceURLRequired
	}

	if s.SkipsVerification() {
		return nil
	}

	digest, ok := strings.CutPrefix(s.Checksum, checksumPrefix)
	if !ok || len(digest) != 64 {
		return fmt.Errorf("%q: %w", s.Checksum, errBadChecksum)
	}

	for _, c := range digest {
		if !strings.ContainsRune("0123456789abcdefABCDEF", c) {
			return fmt.Errorf("%q: %w", s.Checksum, errBadChecksum)
		}
	}

	return nil
}

// DeclaredDigest returns the hex digest of a non-SKIP checksum declaration.
func (s *Source) DeclaredDigest() string {
	return strings.TrimPrefix(s.Checksum, checksumPrefix)
}

// FormatChecksum renders a hex digest in the recipe checksum notation.
func FormatChecksum(hexDigest string) string {
	return checksumPrefix + hexDigest
}
