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
	"github.com/gtk-phone-popup/packager/internal/service/packager"
	"github.com/gtk-phone-popup/packager/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string

	// logLevel overrides the default logging level.
	logLevel string

	// outputPath overrides the derived lockfile location.
	outputPath string

	// rootCmd represents the base command for preparing the integrity lockfile.
	rootCmd = &cobra.Command{
		Use:   "popup-packager [recipe]",
		Short: "Fetch recipe sources and pin their checksums in a lockfile",
		Args:  cobra.ExactArgs(1),
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return applyLogLevel(logLevel)
		},
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options := &packager.Options{
				RecipePath: args[0],
				ConfigPath: configPath,
				OutputPath: outputPath,
			}

			return packager.Run(ctx, options)
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

// Execute runs the popup-packager CLI and exits with non-zero status on error.
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
	rootCmd.Flags().StringVarP(&outputPath, "output", "o", "", "lockfile path (defaults to <recipe>.lock.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "logging level (debug, info, warn, error)")
}
