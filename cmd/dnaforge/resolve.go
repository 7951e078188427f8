// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"dnaforge/pkg/resolver"

	"github.com/spf13/cobra"
)

type resolveFlags struct {
	framework         string
	strategy          string
	maxDepth          int
	allowExperimental bool
	allowDeprecated   bool
	allowConflicts    bool
	exclude           []string
}

// newResolveCommand creates the `dnaforge resolve` command.
func newResolveCommand(app *App) *cobra.Command {
	flags := &resolveFlags{}

	cmd := &cobra.Command{
		Use:   "resolve <module>...",
		Short: "Resolve module dependencies without composing",
		Long: `Resolve module dependencies without composing.

Walks the dependency graph of the given modules, selects versions
per the active strategy, and prints the install order and any
conflicts. Useful for inspecting what a composition would pull in.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(cmd, app, flags, args)
		},
	}

	cmd.Flags().StringVarP(&flags.framework, "framework", "f", "", "target framework id")
	cmd.Flags().StringVar(&flags.strategy, "strategy", "", "version selection strategy (latest, stable, minimal, compatible, performance)")
	cmd.Flags().IntVar(&flags.maxDepth, "max-depth", 0, "dependency depth limit (0 = unbounded)")
	cmd.Flags().BoolVar(&flags.allowExperimental, "allow-experimental", false, "admit experimental module versions")
	cmd.Flags().BoolVar(&flags.allowDeprecated, "allow-deprecated", false, "admit deprecated module versions")
	cmd.Flags().BoolVar(&flags.allowConflicts, "allow-conflicts", false, "downgrade warning-severity conflicts")
	cmd.Flags().StringArrayVar(&flags.exclude, "exclude", nil, "module id to skip entirely (repeatable)")

	return cmd
}

func runResolve(cmd *cobra.Command, app *App, flags *resolveFlags, args []string) error {
	svc, err := app.Services(cmd.Context())
	if err != nil {
		return err
	}
	app.reportDiagnostics(svc)

	strategy, err := parseStrategy(flags.strategy, svc)
	if err != nil {
		return err
	}

	rctx := resolver.Context{
		Framework:         flags.framework,
		Strategy:          strategy,
		AllowExperimental: flags.allowExperimental || svc.Cfg.Resolution.AllowExperimental,
		AllowDeprecated:   flags.allowDeprecated || svc.Cfg.Resolution.AllowDeprecated,
		AllowConflicts:    flags.allowConflicts || svc.Cfg.Resolution.AllowConflicts,
		MaxDepth:          flags.maxDepth,
	}
	if len(flags.exclude) > 0 {
		rctx.Exclude = make(map[string]bool, len(flags.exclude))
		for _, id := range flags.exclude {
			rctx.Exclude[id] = true
		}
	}

	result := svc.Resolver.Resolve(args, rctx)

	out := app.stdout
	if result.Success {
		fmt.Fprintln(out, SuccessStyle.Render("✓ resolution succeeded"))
	} else {
		fmt.Fprintln(out, ErrorStyle.Render("✗ resolution failed"))
	}

	if len(result.InstallOrder) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, TitleStyle.Render("Install order"))
		for i, id := range result.InstallOrder {
			if m := result.Resolved[id]; m != nil {
				fmt.Fprintf(out, "  %d. %s %s\n", i+1, ModuleStyle.Render(id), SubtitleStyle.Render(m.Version.String()))
			} else {
				fmt.Fprintf(out, "  %d. %s\n", i+1, ModuleStyle.Render(id))
			}
		}
	}

	for _, c := range result.Conflicts {
		style := WarningStyle
		if c.Blocking() {
			style = ErrorStyle
		}
		fmt.Fprintf(app.stderr, "%s %s\n", style.Render("Conflict:"), c.String())
	}
	for _, w := range result.Warnings {
		fmt.Fprintf(app.stderr, "%s %s\n", WarningStyle.Render("Warning:"), w)
	}

	if verbose {
		fmt.Fprintln(out)
		fmt.Fprintf(out, "%s nodes=%d depth=%d cached=%v duration=%s\n",
			VerboseStyle.Render("metrics:"),
			result.Metrics.NodesVisited, result.Metrics.MaxDepth,
			result.Metrics.CacheHit, result.Metrics.Duration)
	}

	if !result.Success {
		return &ExitError{Code: 1, Err: fmt.Errorf("resolution failed")}
	}
	return nil
}

// parseStrategy maps the --strategy flag to a resolver strategy, falling
// back to the configured default when the flag is unset.
func parseStrategy(flag string, svc *Services) (resolver.Strategy, error) {
	switch flag {
	case "latest":
		return resolver.StrategyLatest, nil
	case "stable":
		return resolver.StrategyStable, nil
	case "minimal":
		return resolver.StrategyMinimal, nil
	case "compatible":
		return resolver.StrategyCompatible, nil
	case "performance":
		return resolver.StrategyPerformance, nil
	case "":
		return resolutionStrategy(svc.Cfg.Resolution.Strategy), nil
	default:
		return "", fmt.Errorf("unknown strategy %q (want latest, stable, minimal, compatible, or performance)", flag)
	}
}
