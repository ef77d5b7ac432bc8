package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nexuspro/nexus-bundler/internal/config"
	"github.com/nexuspro/nexus-bundler/internal/logger"
	"github.com/nexuspro/nexus-bundler/internal/service/bundler"
	"github.com/nexuspro/nexus-bundler/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// logLevel is the minimum level for console output.
	logLevel string

	// rootCmd represents the base command for building the application bundle.
	rootCmd = &cobra.Command{
		Use:   "nexus-bundler",
		Short: "Package the NEXUS PRO desktop application into a macOS bundle.",
		Long: `Builds the NEXUS PRO .app bundle by driving the Python toolchain.

The pipeline verifies the interpreter and bundled model assets, installs
dependencies via pip, generates the application icon (best effort), wipes
previous build output and invokes PyInstaller once. The build succeeds only
if the expected bundle exists afterwards; its absolute path is reported.
All settings have defaults matching the stock source layout and can be
overridden through the configuration file.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			if level, ok := logger.ParseLogLevel(logLevel); ok {
				logger.SetLevel(level)
			}

			options := &bundler.Options{
				ConfigPath: configPath,
			}

			return bundler.Run(ctx, options)
		},
	}
)

// Execute runs the nexus-bundler CLI and exits with non-zero status on error.
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
	rootCmd.Flags().StringVarP(&logLevel, "log-level", "l", "info", "log level (debug, info, warn, error)")
}
