// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"dnaforge/internal/config"

	"github.com/spf13/cobra"
)

// newConfigCommand creates the `dnaforge config` command tree.
func newConfigCommand(app *App) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage dnaforge configuration",
		Long: `Manage dnaforge configuration.

Configuration is stored in:
  - Linux: ~/.config/dnaforge/config.cue
  - macOS: ~/Library/Application Support/dnaforge/config.cue
  - Windows: %APPDATA%\dnaforge\config.cue`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showConfig(cmd.Context(), app)
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(app)
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgDir, err := config.ConfigDir()
			if err != nil {
				return err
			}
			fmt.Fprintln(app.stdout, filepath.Join(cfgDir, "config.cue"))
			return nil
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "dump",
		Short: "Output raw configuration as CUE",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.Config.Load(cmd.Context(), config.LoadOptions{ConfigFilePath: cfgFile})
			if err != nil {
				return err
			}
			fmt.Fprint(app.stdout, config.GenerateCUE(cfg))
			return nil
		},
	})

	return cfgCmd
}

func showConfig(ctx context.Context, app *App) error {
	cfg, err := app.Config.Load(ctx, config.LoadOptions{ConfigFilePath: cfgFile})
	if err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Error: ")+formatErrorForDisplay(err, verbose))
		return err
	}

	out := app.stdout
	keyStyle := ModuleStyle
	valueStyle := SuccessStyle

	fmt.Fprintln(out, TitleStyle.Render("Current Configuration"))
	fmt.Fprintln(out)

	// Derive the config file path from the standard config directory; the
	// provider does not cache resolved paths.
	if cfgDir, dirErr := config.ConfigDir(); dirErr == nil {
		cfgPath := filepath.Join(cfgDir, "config.cue")
		if _, statErr := os.Stat(cfgPath); statErr == nil {
			fmt.Fprintf(out, "%s: %s\n", keyStyle.Render("Config file"), cfgPath)
		} else {
			fmt.Fprintf(out, "%s: %s\n", keyStyle.Render("Config file"), SubtitleStyle.Render("(using defaults)"))
		}
	}
	fmt.Fprintln(out)

	fmt.Fprintf(out, "%s:\n", keyStyle.Render("includes"))
	if len(cfg.Includes) == 0 {
		fmt.Fprintf(out, "  %s\n", SubtitleStyle.Render("(none configured)"))
	} else {
		for _, inc := range cfg.Includes {
			if inc.Alias != "" {
				fmt.Fprintf(out, "  - %s (alias: %s)\n", valueStyle.Render(string(inc.Path)), valueStyle.Render(string(inc.Alias)))
			} else {
				fmt.Fprintf(out, "  - %s\n", valueStyle.Render(string(inc.Path)))
			}
		}
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "%s:\n", keyStyle.Render("resolution"))
	fmt.Fprintf(out, "  strategy: %s\n", valueStyle.Render(string(cfg.Resolution.Strategy)))
	fmt.Fprintf(out, "  allow_experimental: %s\n", valueStyle.Render(fmt.Sprintf("%v", cfg.Resolution.AllowExperimental)))
	fmt.Fprintf(out, "  allow_deprecated: %s\n", valueStyle.Render(fmt.Sprintf("%v", cfg.Resolution.AllowDeprecated)))
	fmt.Fprintf(out, "  allow_conflicts: %s\n", valueStyle.Render(fmt.Sprintf("%v", cfg.Resolution.AllowConflicts)))

	fmt.Fprintln(out)
	fmt.Fprintf(out, "%s:\n", keyStyle.Render("thresholds"))
	fmt.Fprintf(out, "  max_modules: %s\n", valueStyle.Render(fmt.Sprintf("%d", cfg.Thresholds.MaxModules)))
	fmt.Fprintf(out, "  max_complexity: %s\n", valueStyle.Render(fmt.Sprintf("%d", cfg.Thresholds.MaxComplexity)))
	fmt.Fprintf(out, "  max_depth: %s\n", valueStyle.Render(fmt.Sprintf("%d", cfg.Thresholds.MaxDepth)))

	fmt.Fprintln(out)
	fmt.Fprintf(out, "%s:\n", keyStyle.Render("watch"))
	fmt.Fprintf(out, "  reload_strategy: %s\n", valueStyle.Render(string(cfg.Watch.ReloadStrategy)))
	if len(cfg.Watch.IgnorePatterns) > 0 {
		fmt.Fprintf(out, "  ignore_patterns:\n")
		for _, p := range cfg.Watch.IgnorePatterns {
			fmt.Fprintf(out, "    - %s\n", valueStyle.Render(p))
		}
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "%s:\n", keyStyle.Render("ui"))
	fmt.Fprintf(out, "  color_scheme: %s\n", valueStyle.Render(string(cfg.UI.ColorScheme)))
	fmt.Fprintf(out, "  verbose: %s\n", valueStyle.Render(fmt.Sprintf("%v", cfg.UI.Verbose)))

	return nil
}

func initConfig(app *App) error {
	cfgDir, err := config.ConfigDir()
	if err != nil {
		return err
	}
	cfgPath := filepath.Join(cfgDir, "config.cue")
	if _, statErr := os.Stat(cfgPath); statErr == nil {
		fmt.Fprintf(app.stdout, "%s config file already exists at %s\n", WarningStyle.Render("!"), cfgPath)
		return nil
	}
	if err := config.CreateDefaultConfig(); err != nil {
		return err
	}
	fmt.Fprintf(app.stdout, "%s created %s\n", SuccessStyle.Render("✓"), cfgPath)
	return nil
}
