package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hyperjump/logsentry/internal/config"
)

func newWatchCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Manage the baseline directories watched by the server",
		Long: `Manage watch.directories in the config file. The server ingests new and changed
files under these directories; restart it to apply changes.`,
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "add <dir>",
			Short: "Add a directory to watch",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return editWatchDirs(cmd, opts, args[0], true)
			},
		},
		&cobra.Command{
			Use:   "remove <dir>",
			Short: "Stop watching a directory",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return editWatchDirs(cmd, opts, args[0], false)
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List watched directories",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, _, err := loadConfig(opts.configPath)
				if err != nil {
					return err
				}
				for _, d := range cfg.Watch.Directories {
					fmt.Fprintln(cmd.OutOrStdout(), d)
				}
				return nil
			},
		},
	)
	return cmd
}

func editWatchDirs(cmd *cobra.Command, opts *rootOptions, dir string, add bool) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	cfg, path, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}

	dirs := make([]string, 0, len(cfg.Watch.Directories)+1)
	found := false
	for _, d := range cfg.Watch.Directories {
		if d == abs {
			found = true
			if !add {
				continue
			}
		}
		dirs = append(dirs, d)
	}
	w := cmd.OutOrStdout()
	switch {
	case add && found:
		fmt.Fprintf(w, "Already watched: %s\n", abs)
		return nil
	case !add && !found:
		return fmt.Errorf("not watched: %s", abs)
	case add:
		dirs = append(dirs, abs)
	}
	cfg.Watch.Directories = dirs
	if err := config.Save(path, cfg); err != nil {
		return err
	}
	if add {
		fmt.Fprintf(w, "Added: %s\n", abs)
	} else {
		fmt.Fprintf(w, "Removed: %s\n", abs)
	}
	return nil
}
