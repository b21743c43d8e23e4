package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/gtk-phone-popup/packager/internal/logger"
	"github.com/gtk-phone-popup/packager/internal/recipe"
)

const (
	// downloadPermissions is applied to freshly fetched files; placements
	// re-apply their declared modes at install time.
	downloadPermissions = 0o644

	// defaultTimeout bounds a single download when the caller sets none.
	defaultTimeout = 5 * time.Minute
)

var (
	errBadHTTPStatus    = errors.New("unexpected http status")
	errChecksumMismatch = errors.New("source checksum mismatch")
	errKeyringRequired  = errors.New("source declares a signature but no keyring is configured")
)

// Fetcher retrieves recipe sources into a working directory, enforcing
// checksums and detached signatures where declared.
type Fetcher struct {
	client   *http.Client
	keyring  keyring
	timeout  time.Duration
	progress bool
}

// Option configures fetcher behaviour.
type Option func(*Fetcher) error

// WithTimeout bounds a single source download.
func WithTimeout(timeout time.Duration) Option {
	return func(f *Fetcher) error {
		if timeout > 0 {
			f.timeout = timeout
		}

		return nil
	}
}

// WithKeyring loads an armored PGP public keyring used to verify
// detached source signatures.
func WithKeyring(path string) Option {
	return func(f *Fetcher) error {
		if path == "" {
			return nil
		}

		ring, err := loadKeyring(path)
		if err != nil {
			return err
		}

		f.keyring = ring

		return nil
	}
}

// WithProgress toggles the download progress bar (off in tests and scripts).
func WithProgress(enabled bool) Option {
	return func(f *Fetcher) error {
		f.progress = enabled
		return nil
	}
}

// New constructs a fetcher with the provided options.
func New(opts ...Option) (*Fetcher, error) {
	f := &Fetcher{
		client:  http.DefaultClient,
		timeout: defaultTimeout,
	}

	for _, opt := range opts {
		if err := opt(f); err != nil {
			return nil, err
		}
	}

	return f, nil
}

// FetchAll retrieves every source into destDir and returns a map from logical
// file name (base name, or archive-relative path for extracted members) to
// the local path. Archive sources are extracted after verification.
func (f *Fetcher) FetchAll(ctx context.Context, sources []recipe.Source, destDir string) (map[string]string, error) {
	fetched := make(map[string]string, len(sources))

	for i := range sources {
		src := &sources[i]

		localPath, err := f.Fetch(ctx, src, destDir)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", src.URL, err)
		}

		fetched[src.FileName()] = localPath

		if !isArchive(src.FileName()) {
			continue
		}

		members, err := extractArchive(localPath, destDir)
		if err != nil {
			return nil, fmt.Errorf("extract %s: %w", src.FileName(), err)
		}

		for _, member := range members {
			fetched[member] = filepath.Join(destDir, filepath.FromSlash(member))
		}

		logger.InfoKV(ctx, "Extracted archive source",
			"archive", src.FileName(), "members", len(members))
	}

	return fetched, nil
}

// Fetch retrieves a single source into destDir, verifies its checksum and,
// when declared, its detached signature. It returns the local file path.
func (f *Fetcher) Fetch(ctx context.Context, src *recipe.Source, destDir string) (string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("create working directory: %w", err)
	}

	localPath := filepath.Join(destDir, src.FileName())

	if err := f.retrieve(ctx, src.URL, localPath); err != nil {
		return "", err
	}

	if err := f.verifyChecksum(ctx, src, localPath); err != nil {
		return "", err
	}

	if src.Signature != "" {
		if err := f.verifySignature(ctx, src, localPath, destDir); err != nil {
			return "", err
		}
	}

	return localPath, nil
}

// retrieve fetches a URL (or copies a local path) to localPath.
func (f *Fetcher) retrieve(ctx context.Context, origin, localPath string) error {
	parsed, err := url.Parse(origin)
	if err == nil && (parsed.Scheme == "http" || parsed.Scheme == "https") {
		return f.download(ctx, origin, localPath)
	}

	localOrigin := origin
	if err == nil && parsed.Scheme == "file" {
		localOrigin = parsed.Path
	}

	return copyLocal(localOrigin, localPath)
}

// download streams an HTTP(S) source to disk.
func (f *Fetcher) download(ctx context.Context, origin, localPath string) error {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin, http.NoBody)
	if err != nil {
		return err
	}

	response, err := f.client.Do(req)
	if err != nil {
		return err
	}

	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("%s, %s: %w", origin, response.Status, errBadHTTPStatus)
	}

	outputFile, err := os.OpenFile(filepath.Clean(localPath), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, downloadPermissions)
	if err != nil {
		return err
	}

	var output io.Writer = outputFile

	if f.progress {
		bar := progressbar.DefaultBytes(response.ContentLength, filepath.Base(localPath))
		output = io.MultiWriter(outputFile, bar)
	}

	if _, err = io.Copy(output, response.Body); err != nil {
		_ = outputFile.Close()
		return err
	}

	return outputFile.Close()
}

// copyLocal copies a file from a local origin path.
func copyLocal(origin, localPath string) error {
	input, err := os.Open(filepath.Clean(origin))
	if err != nil {
		return err
	}

	defer func() {
		_ = input.Close()
	}()

	output, err := os.OpenFile(filepath.Clean(localPath), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, downloadPermissions)
	if err != nil {
		return err
	}

	if _, err = io.Copy(output, input); err != nil {
		_ = output.Close()
		return err
	}

	return output.Close()
}

// verifyChecksum compares the declared digest with the fetched content.
// A SKIP declaration leaves the source unverified; that is logged loudly
// because it disables the integrity guarantee entirely.
func (f *Fetcher) verifyChecksum(ctx context.Context, src *recipe.Source, localPath string) error {
	if src.SkipsVerification() {
		logger.WarnKV(ctx, "Source checksum verification is disabled (SKIP)",
			"source", src.FileName())

		return nil
	}

	actual, err := FileChecksumHex(localPath)
	if err != nil {
		return err
	}

	if !strings.EqualFold(actual, src.DeclaredDigest()) {
		return fmt.Errorf("%s: declared %s, got sha256:%s: %w",
			src.FileName(), src.Checksum, actual, errChecksumMismatch)
	}

	logger.DebugKV(ctx, "Source checksum verified", "source", src.FileName())

	return nil
}

// verifySignature fetches the detached signature and checks it against the keyring.
func (f *Fetcher) verifySignature(ctx context.Context, src *recipe.Source, localPath, destDir string) error {
	if len(f.keyring) == 0 {
		return fmt.Errorf("%s: %w", src.FileName(), errKeyringRequired)
	}

	signaturePath := filepath.Join(destDir, src.FileName()+".sig")
	if err := f.retrieve(ctx, src.Signature, signaturePath); err != nil {
		return fmt.Errorf("fetch signature: %w", err)
	}

	if err := verifyDetached(f.keyring, localPath, signaturePath); err != nil {
		return fmt.Errorf("verify signature for %s: %w", src.FileName(), err)
	}

	logger.InfoKV(ctx, "Source signature verified", "source", src.FileName())

	return nil
}

// isArchive reports whether a fetched file should be unpacked.
func isArchive(name string) bool {
	switch {
	case strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"):
		return true
	case strings.HasSuffix(name, ".tar.xz"):
		return true
	default:
		return false
	}
}
