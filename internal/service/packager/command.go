package packager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gtk-phone-popup/packager/internal/config"
	"github.com/gtk-phone-popup/packager/internal/fetcher"
	"github.com/gtk-phone-popup/packager/internal/logger"
	"github.com/gtk-phone-popup/packager/internal/recipe"
	"github.com/gtk-phone-popup/packager/internal/service/installer"
)

// Options contains inputs for the packager entry point.
type Options struct {
	// RecipePath is the recipe YAML to compute checksums for.
	RecipePath string
	// ConfigPath is the optional path to the settings YAML file.
	ConfigPath string
	// OutputPath overrides the derived lockfile location.
	OutputPath string
	// ShowProgress enables the download progress bar.
	ShowProgress bool
}

// packager fetches sources and produces the integrity lockfile.
// It is unexported; callers should use Run, which encapsulates setup and validation.
type packager struct {
	cfg        *config.Config
	rcp        *recipe.Recipe
	outputPath string
	workDir    string
}

// errInstallRunning indicates that an install is in progress and packaging must wait.
var errInstallRunning = errors.New("an install is running now")

// Run executes the packaging workflow.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "popup-packager")

	p, err := newPackager(ctx, opts)
	if err != nil {
		return fmt.Errorf("initialize packager: %w", err)
	}

	defer p.cleanup()

	if err = p.run(ctx); err != nil {
		return fmt.Errorf("packager failed: %w", err)
	}

	logger.Info(ctx, "Packager completed successfully")

	return nil
}

// newPackager loads configuration and the recipe and resolves the lockfile path.
func newPackager(ctx context.Context, opts *Options) (*packager, error) {
	if installer.IsInstallRunningNow(ctx) {
		return nil, errInstallRunning
	}

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	rcp, err := recipe.Load(opts.RecipePath)
	if err != nil {
		return nil, err
	}

	outputPath := opts.OutputPath
	if outputPath == "" {
		outputPath = recipe.LockfilePath(opts.RecipePath)
	}

	p := &packager{
		cfg:        cfg,
		rcp:        rcp,
		outputPath: outputPath,
	}

	p.workDir, err = os.MkdirTemp("", "popup-packager-")
	if err != nil {
		return nil, err
	}

	return p, nil
}

// run fetches every source and writes the computed checksums to the lockfile.
func (p *packager) run(ctx context.Context) error {
	logger.Info(ctx, "Fetching sources to compute checksums")

	f, err := fetcher.New(
		fetcher.WithTimeout(p.cfg.DownloadTimeout),
		fetcher.WithKeyring(p.cfg.KeyringPath),
		fetcher.WithProgress(false),
	)
	if err != nil {
		return err
	}

	fetched, err := f.FetchAll(ctx, p.rcp.Sources, p.workDir)
	if err != nil {
		return fmt.Errorf("fetch sources: %w", err)
	}

	lock, err := p.buildLockfile(ctx, fetched)
	if err != nil {
		return err
	}

	logger.InfoKV(ctx, "Saving lockfile", "path", p.outputPath)

	if err = recipe.SaveLockfile(p.outputPath, lock); err != nil {
		return err
	}

	p.printNextSteps(ctx, lock)

	return nil
}

// buildLockfile computes a real digest for every declared source, replacing
// any SKIP declarations with enforced checksums.
func (p *packager) buildLockfile(ctx context.Context, fetched map[string]string) (*recipe.Lockfile, error) {
	lock := &recipe.Lockfile{
		Name:        p.rcp.Name,
		Version:     p.rcp.Version,
		Release:     p.rcp.Release,
		GeneratedAt: time.Now().UTC(),
		Sources:     make(map[string]string, len(p.rcp.Sources)),
	}

	for i := range p.rcp.Sources {
		src := &p.rcp.Sources[i]

		localPath, ok := fetched[src.FileName()]
		if !ok {
			return nil, fmt.Errorf("%s: %w", src.FileName(), os.ErrNotExist)
		}

		checksum, err := fetcher.FileChecksum(localPath)
		if err != nil {
			return nil, err
		}

		lock.Sources[src.FileName()] = fetcher.EncodeChecksum(checksum)

		if src.SkipsVerification() {
			logger.WarnKV(ctx, "Recipe declares SKIP; lockfile now pins this source",
				"source", src.FileName())
		}
	}

	return lock, nil
}

// printNextSteps logs human-readable guidance for the created lockfile.
func (p *packager) printNextSteps(ctx context.Context, lock *recipe.Lockfile) {
	names := make([]string, 0, len(lock.Sources))
	for name := range lock.Sources {
		names = append(names, name)
	}

	sort.Strings(names)

	var builder strings.Builder

	builder.WriteString("Lockfile written to ")
	builder.WriteString(p.outputPath)
	builder.WriteString(". It pins the following sources:\n")
	builder.WriteString(strings.Join(names, ",\n"))
	builder.WriteString("\nCommit it next to the recipe so installs verify these checksums.")

	logger.Info(ctx, builder.String())
}

// cleanup removes the temporary fetch directory.
func (p *packager) cleanup() {
	if p.workDir != "" {
		if _, err := os.Stat(p.workDir); err == nil {
			_ = os.RemoveAll(filepath.Clean(p.workDir))
		}
	}
}
