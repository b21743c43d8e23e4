package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gtk-phone-popup/packager/internal/config"
	"github.com/gtk-phone-popup/packager/internal/logger"
	"github.com/gtk-phone-popup/packager/internal/service/installer"
	"github.com/gtk-phone-popup/packager/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string

	// installRoot overrides the configured install root (DESTDIR-style).
	installRoot string

	// uninstall removes the placed files instead of installing.
	uninstall bool

	// noStop leaves running popup processes untouched.
	noStop bool

	// noProgress disables the download progress bar.
	noProgress bool

	// logLevel overrides the default logging level.
	logLevel string

	// rootCmd represents the base command for installing a recipe.
	rootCmd = &cobra.Command{
		Use:   "popup-installer [recipe]",
		Short: "Fetch recipe sources and place them on the filesystem",
		Args:  cobra.ExactArgs(1),
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return applyLogLevel(logLevel)
		},
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options := &installer.Options{
				RecipePath:   args[0],
				ConfigPath:   configPath,
				Root:         installRoot,
				Uninstall:    uninstall,
				NoStop:       noStop,
				ShowProgress: !noProgress,
			}

			return installer.Run(ctx, options)
		},
	}
)

// applyLogLevel raises or lowers the global logging level from the flag value.
func applyLogLevel(value string) error {
	if value == "" {
		return nil
	}

	level, ok := logger.ParseLogLevel(value)
	if !ok {
		return fmt.Errorf("unknown log level %q", value)
	}

	logger.SetLevel(level)

	return nil
}

// Execute runs the popup-installer CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().StringVarP(&installRoot, "root", "r", "", "install root (defaults to the configured root)")
	rootCmd.Flags().BoolVar(&uninstall, "uninstall", false, "remove the placed files and the install record")
	rootCmd.Flags().BoolVar(&noStop, "no-stop", false, "do not stop running popup processes before applying")
	rootCmd.Flags().BoolVar(&noProgress, "no-progress", false, "disable the download progress bar")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "logging level (debug, info, warn, error)")
}
