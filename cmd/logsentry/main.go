// Package main is the logsentry CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/logsentry/internal/app"
	"github.com/hyperjump/logsentry/internal/cli"
	"github.com/hyperjump/logsentry/internal/config"
	"github.com/hyperjump/logsentry/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/logsentry/config.yaml"
	defaultServerURL  = "http://localhost:8080"
)

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	serverURL  string
	output     string
	debug      bool
}

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used.
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func newLogger(cfg *config.Config, debug bool) (*zap.Logger, error) {
	return utils.NewLoggerWithFile(cfg.Debug || debug, utils.FileOptions{
		Path:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
}

// openComponents loads config and wires components for direct mode. The caller must
// call the returned cleanup func.
func openComponents(ctx context.Context, opts *rootOptions) (*app.Components, func(), error) {
	cfg, _, err := loadConfig(opts.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := newLogger(cfg, opts.debug)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	c, err := app.New(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, err
	}
	if err := c.Start(ctx, false); err != nil {
		c.Close()
		_ = logger.Sync()
		return nil, nil, err
	}
	return c, func() {
		c.Close()
		_ = logger.Sync()
	}, nil
}

func (o *rootOptions) format() (cli.OutputFormat, error) {
	return cli.ParseOutputFormat(o.output)
}

// joinArgs joins positional args with spaces so multi-word log lines work with or without quoting.
func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "logsentry",
		Short: "Embedding-based anomaly detection for security logs",
		Long: `logsentry scores log lines by their distance to a baseline of normal logs.
A line is anomalous when its anomaly score exceeds a threshold calibrated from
the baseline itself.

Example usage:
  logsentry ingest --seed                         # Load the built-in baseline
  logsentry ingest /var/log/normal/               # Ingest baseline files
  logsentry calibrate                             # Derive the threshold
  logsentry detect "Process mimikatz.exe started" # Score one line`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", defaultConfigPath, "config file path")
	root.PersistentFlags().StringVar(&opts.serverURL, "server", defaultServerURL,
		`server URL; use --server "" to work directly on local storage`)
	root.PersistentFlags().StringVarP(&opts.output, "output", "o", string(cli.OutputText), "output format: text, compact or json")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")

	root.AddCommand(
		newServerCmd(opts),
		newDetectCmd(opts),
		newCalibrateCmd(opts),
		newIngestCmd(opts),
		newStatusCmd(opts),
		newRulesCmd(opts),
		newWatchCmd(opts),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "logsentry version %s\n", version)
		},
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
