package verifier

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gtk-phone-popup/packager/internal/config"
	"github.com/gtk-phone-popup/packager/internal/fetcher"
	"github.com/gtk-phone-popup/packager/internal/logger"
	"github.com/gtk-phone-popup/packager/internal/recipe"
	"github.com/gtk-phone-popup/packager/internal/repository/state"
	"github.com/gtk-phone-popup/packager/internal/service/installer"
)

// Options controls what the verifier audits.
type Options struct {
	// RecipePath is the recipe YAML describing the expected layout.
	RecipePath string
	// ConfigPath is the optional path to the settings YAML file.
	ConfigPath string
	// Root overrides the configured install root.
	Root string
}

// Finding is one divergence between the recipe contract and the installed tree.
type Finding struct {
	// Destination is the audited path, install root included.
	Destination string
	// Problem describes the divergence.
	Problem string
}

// errVerificationFailed is returned when the installed tree diverges from the contract.
var errVerificationFailed = errors.New("installed tree does not match the recipe")

// Run audits the installed tree against the recipe and the install record.
// Every finding is reported; the error summarizes the overall result.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "popup-verifier")

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	rcp, err := recipe.Load(opts.RecipePath)
	if err != nil {
		return fmt.Errorf("load recipe: %w", err)
	}

	root := cfg.InstallRoot
	if opts.Root != "" {
		root = opts.Root
	}

	lock := loadLockfile(ctx, opts.RecipePath)
	record := loadRecord(ctx, root, rcp.Name)

	if lock == nil && record == nil {
		logger.Warn(ctx, "No lockfile and no install record, content checks are skipped")
	}

	findings := Audit(rcp, record, lock, root)
	if len(findings) == 0 {
		logger.InfoKV(ctx, "Installed tree matches the recipe",
			"package", rcp.Name, "root", root)

		return nil
	}

	for _, finding := range findings {
		logger.ErrorKV(ctx, "Verification finding",
			"destination", finding.Destination, "problem", finding.Problem)
	}

	return fmt.Errorf("%d finding(s): %w", len(findings), errVerificationFailed)
}

// loadRecord reads the install record; absence is tolerated because the
// lockfile can still vouch for placement contents.
func loadRecord(ctx context.Context, root, name string) *state.Record {
	repo := state.NewFileRepository(installer.RecordPath(root, name))

	record, err := repo.Load(ctx)
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			logger.Warn(ctx, "No install record found")
		} else {
			logger.WarnKV(ctx, "Unable to read install record", "error", err)
		}

		return nil
	}

	return record
}

// loadLockfile reads the lockfile sitting next to the recipe, when present.
func loadLockfile(ctx context.Context, recipePath string) *recipe.Lockfile {
	path := recipe.LockfilePath(recipePath)

	lock, err := recipe.LoadLockfile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Debug(ctx, "No lockfile found next to the recipe")
		} else {
			logger.WarnKV(ctx, "Unable to read lockfile", "path", path, "error", err)
		}

		return nil
	}

	logger.InfoKV(ctx, "Auditing against lockfile checksums", "path", path)

	return lock
}

// Audit checks every placement and the launcher against the installed tree.
// Lockfile pins take precedence over recorded checksums; the launcher is
// generated rather than fetched, so only the record can vouch for it.
func Audit(rcp *recipe.Recipe, record *state.Record, lock *recipe.Lockfile, root string) []Finding {
	var findings []Finding

	for _, placement := range rcp.Install {
		findings = append(findings,
			auditFile(record, lock, root, placement.Source, placement.Destination, placement.Mode.FileMode())...)
	}

	if rcp.Launcher != nil {
		findings = append(findings,
			auditFile(record, lock, root, "", rcp.Launcher.Path, installer.LauncherMode)...)
		findings = append(findings, auditLauncher(rcp, root)...)
	}

	return findings
}

// auditFile checks existence, permission bits, and the pinned or recorded
// checksum of one destination. Placements are verbatim copies, so the
// lockfile digest of the source is also the expected destination digest.
func auditFile(record *state.Record, lock *recipe.Lockfile, root, source, destination string, mode os.FileMode) []Finding {
	installedPath := filepath.Join(root, destination)

	info, err := os.Stat(installedPath)
	if err != nil {
		return []Finding{{Destination: installedPath, Problem: "file is missing"}}
	}

	var findings []Finding

	if info.Mode().Perm() != mode {
		findings = append(findings, Finding{
			Destination: installedPath,
			Problem: fmt.Sprintf("mode is %04o, expected %04o",
				info.Mode().Perm(), mode),
		})
	}

	var (
		encoded string
		origin  string
	)

	if lock != nil && source != "" {
		encoded, origin = lock.Sources[source], "lockfile"
	}

	if encoded == "" && record != nil {
		encoded, origin = record.Files[destination], "install record"
	}

	if encoded == "" {
		return findings
	}

	expected, err := fetcher.DecodeChecksum(encoded)
	if err != nil {
		findings = append(findings, Finding{
			Destination: installedPath,
			Problem:     origin + " carries an unreadable checksum",
		})

		return findings
	}

	actual, err := fetcher.FileChecksum(installedPath)
	if err != nil {
		findings = append(findings, Finding{
			Destination: installedPath,
			Problem:     "file is unreadable",
		})

		return findings
	}

	if !bytes.Equal(expected, actual) {
		findings = append(findings, Finding{
			Destination: installedPath,
			Problem:     "content differs from the " + origin + " checksum",
		})
	}

	return findings
}

// auditLauncher checks the forwarding contract of the generated launcher:
// it must exec the interpreter on the installed script and forward "$@".
func auditLauncher(rcp *recipe.Recipe, root string) []Finding {
	installedPath := filepath.Join(root, rcp.Launcher.Path)

	contents, err := os.ReadFile(filepath.Clean(installedPath))
	if err != nil {
		// Existence is reported by auditFile.
		return nil
	}

	expected := installer.RenderLauncher(rcp.Interpreter, rcp.Launcher.Target)
	if !bytes.Equal(contents, expected) {
		return []Finding{{
			Destination: installedPath,
			Problem:     "launcher does not forward arguments to the declared interpreter",
		}}
	}

	return nil
}
