package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"ferrex/internal/app"
	"ferrex/internal/config"
	"ferrex/internal/logging"
)

// cliContext lazily opens the core config and Services exactly once
// per invocation: shared state resolves in PersistentPreRunE instead
// of every leaf command repeating it.
type cliContext struct {
	dataDir        string
	coreConfigPath string
	ffprobeBinary  string
	logLevel       string

	logger   *slog.Logger
	services *app.Services
}

func (c *cliContext) ensure() (*app.Services, error) {
	if c.services != nil {
		return c.services, nil
	}
	logger, err := logging.New(logging.Options{Level: c.logLevel, Format: "console"})
	if err != nil {
		return nil, err
	}
	c.logger = logger

	cfg, err := config.Load(c.coreConfigPath)
	if err != nil {
		return nil, err
	}

	services, err := app.Open(*cfg, app.Paths{DataDir: c.dataDir}, c.ffprobeBinary, logger)
	if err != nil {
		return nil, err
	}
	c.services = services
	return services, nil
}

func (c *cliContext) close() {
	if c.services != nil {
		_ = c.services.Close()
	}
}

func newRootCommand() *cobra.Command {
	ctx := &cliContext{}

	rootCmd := &cobra.Command{
		Use:           "ferrexctl",
		Short:         "Ferrex scan core operator CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensure()
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			ctx.close()
		},
	}
	rootCmd.InitDefaultHelpCmd()
	for _, c := range rootCmd.Commands() {
		if c.Name() == "help" {
			if c.Annotations == nil {
				c.Annotations = map[string]string{}
			}
			c.Annotations["skipConfigLoad"] = "true"
		}
	}

	rootCmd.PersistentFlags().StringVar(&ctx.dataDir, "data-dir", defaultDataDir(), "Directory holding ferrex's SQLite stores")
	rootCmd.PersistentFlags().StringVar(&ctx.coreConfigPath, "config", defaultDataDir()+"/ferrex.toml", "Path to the scan core's TOML config")
	rootCmd.PersistentFlags().StringVar(&ctx.ffprobeBinary, "ffprobe", "ffprobe", "Path to the ffprobe binary used by the Analyze actor")
	rootCmd.PersistentFlags().StringVar(&ctx.logLevel, "log-level", "warn", "Log level for CLI output (debug, info, warn, error)")

	rootCmd.AddCommand(newLibraryCommand(ctx))
	rootCmd.AddCommand(newScanCommand(ctx))

	return rootCmd
}

// shouldSkipConfig reports whether a command (or an ancestor of it,
// walking up via Parent) opted out of the PersistentPreRunE
// store-opening step via the skipConfigLoad annotation. Only the
// builtin help command does, here.
func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
