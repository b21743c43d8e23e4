package installer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/gtk-phone-popup/packager/internal/logger"
	"github.com/gtk-phone-popup/packager/internal/service/common"
)

const (
	// MarkerFilename marks that an install is running right now to avoid parallel execution.
	MarkerFilename = "popup-install-marker.bin"

	// recordDir is where install records live, relative to the install root.
	recordDir = "var/lib/popup-packager"

	// markerLifetime is the period after which a stale install marker is ignored.
	markerLifetime = 30 * time.Second

	// workDirPattern names the temporary fetch/staging directory.
	workDirPattern = "popup-installer-"
)

// RecordPath returns the install record location for a package under a root.
func RecordPath(root, packageName string) string {
	return filepath.Join(root, recordDir, packageName+".json")
}

// IsInstallRunningNow checks presence of a marker file and attempts recovery if it looks stale.
func IsInstallRunningNow(ctx context.Context) bool {
	logger.Debug(ctx, "Checking for the presence of an install marker")

	fileInfo, err := os.Stat(MarkerFilename)
	if err == nil {
		if time.Since(fileInfo.ModTime()) <= markerLifetime {
			return true
		}

		logger.Info(ctx, "The install marker is too old, attempting cleanup")

		if err = common.TerminateProcessesByName([]string{"popup-installer"}); err != nil {
			return true
		}

		if err = os.Remove(MarkerFilename); err != nil {
			return true
		}

		return false
	}

	if errors.Is(err, os.ErrNotExist) {
		return false
	}

	logger.Infof(ctx, "Unable to read install marker: %v", err)

	return false
}
