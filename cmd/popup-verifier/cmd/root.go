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
	"github.com/gtk-phone-popup/packager/internal/service/verifier"
	"github.com/gtk-phone-popup/packager/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string

	// logLevel overrides the default logging level.
	logLevel string

	// installRoot overrides the configured install root.
	installRoot string

	// rootCmd represents the base command for auditing an installed tree.
	rootCmd = &cobra.Command{
		Use:   "popup-verifier [recipe]",
		Short: "Audit installed files against a recipe",
		Args:  cobra.ExactArgs(1),
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return applyLogLevel(logLevel)
		},
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options := &verifier.Options{
				RecipePath: args[0],
				ConfigPath: configPath,
				Root:       installRoot,
			}

			return verifier.Run(ctx, options)
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

// Execute runs the popup-verifier CLI and exits with non-zero status on error.
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
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "logging level (debug, info, warn, error)")
}
