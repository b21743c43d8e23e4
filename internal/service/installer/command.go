package installer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	goupdate "github.com/doitdistributed/go-update"
	"go.uber.org/zap/zapcore"

	"github.com/gtk-phone-popup/packager/internal/config"
	"github.com/gtk-phone-popup/packager/internal/fetcher"
	"github.com/gtk-phone-popup/packager/internal/logger"
	"github.com/gtk-phone-popup/packager/internal/recipe"
	"github.com/gtk-phone-popup/packager/internal/repository/state"
	"github.com/gtk-phone-popup/packager/internal/service/common"
)

var (
	errInstallerAlreadyRunning = errors.New("an install is already running")
	errSourceNotFetched        = errors.New("placement references a source that was not fetched")
	errLockfileMismatch        = errors.New("fetched source does not match lockfile checksum")
	errLockfileForeignRecipe   = errors.New("lockfile was generated for a different recipe")
	errSourceNotPinned         = errors.New("source has no lockfile checksum, regenerate the lockfile with popup-packager")
)

// Options are inputs accepted by the installer entry point.
type Options struct {
	// RecipePath is the recipe YAML describing what to install.
	RecipePath string
	// ConfigPath is the optional path to the settings YAML file.
	ConfigPath string
	// Root overrides the configured install root (DESTDIR-style staging).
	Root string
	// Uninstall removes the placed files and the install record instead.
	Uninstall bool
	// NoStop leaves running popup processes untouched before applying files.
	NoStop bool
	// ShowProgress enables the download progress bar.
	ShowProgress bool
}

// stagedArtifact is one fully prepared file waiting to be applied.
type stagedArtifact struct {
	name        string      // Logical source name, or "launcher".
	stagingPath string      // Where the verified content sits before apply.
	destination string      // Final absolute path, install root included.
	mode        os.FileMode // Permission bits applied at the destination.
	checksum    []byte      // SHA-256 of the staged content.
}

// runner holds the mutable state and helpers for a single install execution.
// It is intentionally unexported: call Run(ctx, Options) from callers.
type runner struct {
	opts    *Options
	cfg     *config.Config
	rcp     *recipe.Recipe
	lock    *recipe.Lockfile // Nil when no lockfile sits next to the recipe.
	root    string
	workDir string
	staged  []stagedArtifact
}

// Run executes the installer lifecycle and is the public entry point for the CLI.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "popup-installer")

	r, err := newRunner(ctx, opts)
	if err != nil {
		// Keep the other run's marker intact; remove our own.
		if !errors.Is(err, errInstallerAlreadyRunning) {
			r.cleanup(ctx)
		}

		return err
	}

	defer r.cleanup(ctx)

	if opts.Uninstall {
		return r.uninstall(ctx)
	}

	if err = r.run(ctx); err != nil {
		logger.ErrorKV(ctx, "Install failed", "error", err)
		return err
	}

	logger.Info(ctx, "Install completed")

	return nil
}

// newRunner prepares the run and writes a marker to avoid concurrent installs.
func newRunner(ctx context.Context, opts *Options) (*runner, error) {
	r := &runner{opts: opts}

	if IsInstallRunningNow(ctx) {
		return r, errInstallerAlreadyRunning
	}

	installMarker, err := os.Create(MarkerFilename)
	if err != nil {
		return r, err
	}

	if err = installMarker.Close(); err != nil {
		return r, err
	}

	r.cfg, err = config.Load(opts.ConfigPath)
	if err != nil {
		return r, err
	}

	r.rcp, err = recipe.Load(opts.RecipePath)
	if err != nil {
		return r, err
	}

	r.root = r.cfg.InstallRoot
	if opts.Root != "" {
		r.root = opts.Root
	}

	lockPath := recipe.LockfilePath(opts.RecipePath)
	if _, err = os.Stat(lockPath); err == nil {
		r.lock, err = recipe.LoadLockfile(lockPath)
		if err != nil {
			return r, err
		}

		logger.InfoKV(ctx, "Using lockfile checksums", "path", lockPath)
	}

	return r, nil
}

// run executes the install workflow:
// 1) Fetch sources into a temporary work directory.
// 2) Enforce lockfile checksums when a lockfile is present.
// 3) Stage every artifact, including the rendered launcher.
// 4) Short-circuit when the installed tree already matches.
// 5) Stop running popup processes.
// 6) Apply all placements, rolling back on mid-apply failure.
// 7) Record the install and print activation guidance.
func (r *runner) run(ctx context.Context) error {
	fetched, err := r.fetchSources(ctx)
	if err != nil {
		return fmt.Errorf("fetch sources: %w", err)
	}

	if err = r.enforceLockfile(fetched); err != nil {
		return err
	}

	logger.Info(ctx, "Staging artifacts")

	if err = r.stage(ctx, fetched); err != nil {
		return fmt.Errorf("stage artifacts: %w", err)
	}

	upToDate, err := r.installedTreeMatches()
	if err != nil {
		return err
	}

	if upToDate {
		logger.Info(ctx, "Installed files already match, nothing to do")
		return r.saveRecord(ctx)
	}

	if !r.opts.NoStop {
		logger.Info(ctx, "Stopping running popup processes")

		if err = common.TerminateProcessesByName(r.processNames()); err != nil {
			return fmt.Errorf("stop popup processes: %w", err)
		}
	}

	logger.Info(ctx, "Applying placements")

	if err = r.apply(ctx); err != nil {
		return fmt.Errorf("apply placements: %w", err)
	}

	if err = r.saveRecord(ctx); err != nil {
		return err
	}

	r.checkInterpreter(ctx)
	r.printNextSteps(ctx)

	return nil
}

// fetchSources retrieves every recipe source into the work directory.
func (r *runner) fetchSources(ctx context.Context) (map[string]string, error) {
	workDir, err := os.MkdirTemp("", workDirPattern)
	if err != nil {
		return nil, err
	}

	r.workDir = workDir

	if r.opts.ShowProgress {
		// The progress bar owns the terminal; keep per-source chatter out of it.
		ctx = logger.ToContext(ctx,
			logger.Logger().WithOptions(logger.WithLevel(zapcore.WarnLevel)))
	}

	f, err := fetcher.New(
		fetcher.WithTimeout(r.cfg.DownloadTimeout),
		fetcher.WithKeyring(r.cfg.KeyringPath),
		fetcher.WithProgress(r.opts.ShowProgress),
	)
	if err != nil {
		return nil, err
	}

	return f.FetchAll(ctx, r.rcp.Sources, filepath.Join(workDir, "sources"))
}

// enforceLockfile verifies every fetched recipe source against the lockfile
// checksums, closing the gap left by SKIP declarations in the recipe. A
// present lockfile must cover the whole recipe: a missing pin means the
// lockfile predates a source change and is stale.
func (r *runner) enforceLockfile(fetched map[string]string) error {
	if r.lock == nil {
		return nil
	}

	if r.lock.Name != r.rcp.Name || r.lock.Version != r.rcp.Version {
		return fmt.Errorf("lockfile is for %s %s, recipe is %s %s: %w",
			r.lock.Name, r.lock.Version, r.rcp.Name, r.rcp.Version, errLockfileForeignRecipe)
	}

	for i := range r.rcp.Sources {
		name := r.rcp.Sources[i].FileName()

		encoded, ok := r.lock.Sources[name]
		if !ok {
			return fmt.Errorf("%q: %w", name, errSourceNotPinned)
		}

		localPath, ok := fetched[name]
		if !ok {
			return fmt.Errorf("%q: %w", name, errSourceNotFetched)
		}

		expected, err := fetcher.DecodeChecksum(encoded)
		if err != nil {
			return fmt.Errorf("lockfile checksum for %s: %w", name, err)
		}

		actual, err := fetcher.FileChecksum(localPath)
		if err != nil {
			return err
		}

		if !bytes.Equal(expected, actual) {
			return fmt.Errorf("%s: %w", name, errLockfileMismatch)
		}
	}

	return nil
}

// stage copies every placement source into the staging directory verbatim and
// renders the forwarding launcher, computing checksums as it goes.
func (r *runner) stage(ctx context.Context, fetched map[string]string) error {
	stagingDir := filepath.Join(r.workDir, "staging")
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return err
	}

	r.staged = make([]stagedArtifact, 0, len(r.rcp.Install)+1)

	for i, placement := range r.rcp.Install {
		localPath, ok := fetched[placement.Source]
		if !ok {
			return fmt.Errorf("%q: %w", placement.Source, errSourceNotFetched)
		}

		contents, err := os.ReadFile(filepath.Clean(localPath))
		if err != nil {
			return err
		}

		stagingPath := filepath.Join(stagingDir, fmt.Sprintf("%d-%s", i, filepath.Base(placement.Source)))
		if err = os.WriteFile(stagingPath, contents, 0o600); err != nil {
			return err
		}

		checksum, err := fetcher.FileChecksum(stagingPath)
		if err != nil {
			return err
		}

		r.staged = append(r.staged, stagedArtifact{
			name:        placement.Source,
			stagingPath: stagingPath,
			destination: filepath.Join(r.root, placement.Destination),
			mode:        placement.Mode.FileMode(),
			checksum:    checksum,
		})
	}

	if r.rcp.Launcher != nil {
		stagingPath := filepath.Join(stagingDir, "launcher")
		contents := RenderLauncher(r.rcp.Interpreter, r.rcp.Launcher.Target)

		if err := os.WriteFile(stagingPath, contents, 0o600); err != nil {
			return err
		}

		checksum, err := fetcher.FileChecksum(stagingPath)
		if err != nil {
			return err
		}

		r.staged = append(r.staged, stagedArtifact{
			name:        "launcher",
			stagingPath: stagingPath,
			destination: filepath.Join(r.root, r.rcp.Launcher.Path),
			mode:        LauncherMode,
			checksum:    checksum,
		})

		logger.DebugKV(ctx, "Rendered forwarding launcher",
			"path", r.rcp.Launcher.Path, "target", r.rcp.Launcher.Target)
	}

	return nil
}

// installedTreeMatches reports whether every destination already carries the
// staged content and mode, which makes the whole run a no-op.
func (r *runner) installedTreeMatches() (bool, error) {
	for _, artifact := range r.staged {
		info, err := os.Stat(artifact.destination)
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		} else if err != nil {
			return false, err
		}

		if info.Mode().Perm() != artifact.mode {
			return false, nil
		}

		existing, err := fetcher.FileChecksum(artifact.destination)
		if err != nil {
			return false, err
		}

		if !bytes.Equal(existing, artifact.checksum) {
			return false, nil
		}
	}

	return true, nil
}

// apply places every staged artifact, keeping .old backups until the whole
// set lands; a mid-apply failure restores everything applied so far.
func (r *runner) apply(ctx context.Context) error {
	applied := make([]string, 0, len(r.staged))

	for _, artifact := range r.staged {
		logger.InfoKV(ctx, "Installing file",
			"destination", artifact.destination, "mode", fmt.Sprintf("%04o", artifact.mode))

		if err := r.applyOne(&artifact); err != nil {
			r.rollback(ctx, applied)
			return fmt.Errorf("install %s: %w", artifact.destination, err)
		}

		applied = append(applied, artifact.destination)
	}

	// Everything landed; drop the backups.
	for _, destination := range applied {
		oldFileName := destination + ".old"
		if _, err := os.Stat(oldFileName); err == nil {
			_ = os.Remove(oldFileName)
		}
	}

	return nil
}

// applyOne writes a single artifact through go-update with checksum validation.
func (r *runner) applyOne(artifact *stagedArtifact) error {
	if err := os.MkdirAll(filepath.Dir(artifact.destination), 0o755); err != nil {
		return err
	}

	if _, err := os.Stat(artifact.destination); err != nil && os.IsNotExist(err) {
		placeholder, err := os.Create(artifact.destination)
		if err != nil {
			return err
		}

		if err = placeholder.Close(); err != nil {
			return err
		}
	}

	data, err := os.ReadFile(artifact.stagingPath)
	if err != nil {
		return err
	}

	options := goupdate.Options{
		TargetPath: artifact.destination,
		TargetMode: artifact.mode,
		Checksum:   artifact.checksum,
		Hash:       fetcher.ChecksumFunction,
	}

	return goupdate.Apply(bytes.NewReader(data), options)
}

// rollback restores previously applied destinations from their .old backups.
func (r *runner) rollback(ctx context.Context, applied []string) {
	for _, destination := range applied {
		oldFileName := destination + ".old"
		if _, err := os.Stat(oldFileName); err != nil {
			continue
		}

		if err := os.Rename(oldFileName, destination); err != nil {
			logger.WarnKV(ctx, "Rollback failed for file",
				"destination", destination, "error", err)
		}
	}
}

// saveRecord persists the install record for the verifier and uninstall.
func (r *runner) saveRecord(ctx context.Context) error {
	actor, err := common.DetectActor()
	if err != nil {
		return err
	}

	files := make(map[string]string, len(r.staged))
	for _, artifact := range r.staged {
		files[strings.TrimPrefix(artifact.destination, strings.TrimSuffix(r.root, "/"))] =
			fetcher.EncodeChecksum(artifact.checksum)
	}

	record := &state.Record{
		Name:        r.rcp.Name,
		Version:     r.rcp.Version,
		Release:     r.rcp.Release,
		InstalledAt: time.Now().UTC(),
		Actor:       actor,
		Files:       files,
	}

	repo := state.NewFileRepository(RecordPath(r.root, r.rcp.Name))
	if err = repo.Save(ctx, record); err != nil {
		return err
	}

	logger.InfoKV(ctx, "Saved install record", "path", RecordPath(r.root, r.rcp.Name))

	return nil
}

// uninstall removes every placed file and the install record.
func (r *runner) uninstall(ctx context.Context) error {
	destinations := make([]string, 0, len(r.rcp.Install)+1)
	for _, placement := range r.rcp.Install {
		destinations = append(destinations, filepath.Join(r.root, placement.Destination))
	}

	if r.rcp.Launcher != nil {
		destinations = append(destinations, filepath.Join(r.root, r.rcp.Launcher.Path))
	}

	sort.Strings(destinations)

	for _, destination := range destinations {
		if err := os.Remove(destination); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", destination, err)
		}

		logger.InfoKV(ctx, "Removed file", "destination", destination)
	}

	repo := state.NewFileRepository(RecordPath(r.root, r.rcp.Name))
	if err := repo.Remove(ctx); err != nil {
		return err
	}

	logger.Info(ctx, "Uninstall completed")

	return nil
}

// processNames lists executable names to stop before replacing files.
func (r *runner) processNames() []string {
	names := make([]string, 0, len(r.rcp.Install)+1)
	for _, placement := range r.rcp.Install {
		names = append(names, filepath.Base(placement.Destination))
	}

	if r.rcp.Launcher != nil {
		names = append(names, filepath.Base(r.rcp.Launcher.Path))
	}

	return names
}

// checkInterpreter warns when the declared interpreter is absent on a live
// root; on a staging root the interpreter belongs to the target system.
func (r *runner) checkInterpreter(ctx context.Context) {
	if r.root != "/" || r.rcp.Interpreter == "" {
		return
	}

	if _, err := exec.LookPath(r.rcp.Interpreter); err != nil {
		logger.WarnKV(ctx, "Declared interpreter not found",
			"interpreter", r.rcp.Interpreter)
	}
}

// printNextSteps logs human-readable guidance for activating the service.
func (r *runner) printNextSteps(ctx context.Context) {
	var unitName string

	for _, placement := range r.rcp.Install {
		if strings.Contains(placement.Destination, "systemd/user") {
			unitName = filepath.Base(placement.Destination)
			break
		}
	}

	if unitName == "" {
		return
	}

	var builder strings.Builder

	builder.WriteString("Service unit installed. To activate it, run:\n")
	builder.WriteString("systemctl --user daemon-reload\n")
	builder.WriteString("systemctl --user enable --now ")
	builder.WriteString(unitName)

	logger.Info(ctx, builder.String())
}

// cleanup removes temporary artifacts and the running marker.
func (r *runner) cleanup(ctx context.Context) {
	if _, err := os.Stat(MarkerFilename); err == nil {
		_ = os.Remove(MarkerFilename)
	}

	if r.workDir != "" {
		if _, err := os.Stat(r.workDir); err == nil {
			_ = os.RemoveAll(r.workDir)
		}
	}

	logger.Debug(ctx, "The installer has been stopped")
}
