// SPDX-License-Identifier: MPL-2.0

// Package cmd contains all CLI commands for dnaforge.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"dnaforge/internal/issue"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"

	// verbose enables verbose output
	verbose bool
	// cfgFile allows specifying a custom config file
	cfgFile string

	// rootCmd represents the base command when called without any subcommands
	rootCmd = &cobra.Command{
		Use:   "dnaforge",
		Short: "Compose projects from reusable DNA modules",
		Long: TitleStyle.Render("dnaforge") + SubtitleStyle.Render(" - Compose projects from reusable DNA modules") + `

dnaforge assembles project scaffolding from versioned DNA modules.
Modules declare semver dependencies, conflicts, and framework support
in 'dnamod.cue' manifests; the engine resolves them into a validated
install order, merges their configuration, and manages installs with
rollback points.

` + SubtitleStyle.Render("Quick Start:") + `
  1. Put *.dnamod module packages somewhere on disk
  2. Point dnaforge at them in config.cue includes
  3. Compose them with: dnaforge compose --module <id> ...

` + SubtitleStyle.Render("Examples:") + `
  dnaforge module list                    List available modules
  dnaforge compose -f react -m auth       Validate a composition
  dnaforge install auth                   Install a module
  dnaforge watch                          Hot-reload module sources`,
	}
)

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/dnaforge/config.cue)")

	app := NewApp(Dependencies{})
	rootCmd.AddCommand(newComposeCommand(app))
	rootCmd.AddCommand(newResolveCommand(app))
	rootCmd.AddCommand(newModuleCommand(app))
	rootCmd.AddCommand(newInstallCommand(app))
	rootCmd.AddCommand(newUpdateCommand(app))
	rootCmd.AddCommand(newRemoveCommand(app))
	rootCmd.AddCommand(newRollbackCommand(app))
	rootCmd.AddCommand(newCleanupCommand(app))
	rootCmd.AddCommand(newHistoryCommand(app))
	rootCmd.AddCommand(newWatchCommand(app))
	rootCmd.AddCommand(newConfigCommand(app))
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	// Use fang.Execute for enhanced Cobra styling
	// Pass version via fang.WithVersion() since fang overrides rootCmd.Version
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}

// formatErrorForDisplay formats an error for user display.
// If the error is an ActionableError, it uses the Format method.
// In verbose mode, shows the full error chain.
func formatErrorForDisplay(err error, verboseMode bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verboseMode)
	}
	return err.Error()
}
