// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"strings"
	"time"

	"dnaforge/pkg/dnamod"
	"dnaforge/pkg/lifecycle"
	"dnaforge/pkg/semver"

	"github.com/spf13/cobra"
)

type lifecycleFlags struct {
	force            bool
	dryRun           bool
	removeDependents bool
	autoMigrate      bool
}

func (f *lifecycleFlags) options() lifecycle.Options {
	return lifecycle.Options{
		Force:            f.force,
		DryRun:           f.dryRun,
		RemoveDependents: f.removeDependents,
		AutoMigrate:      f.autoMigrate,
	}
}

func addCommonLifecycleFlags(cmd *cobra.Command, flags *lifecycleFlags) {
	cmd.Flags().BoolVar(&flags.force, "force", false, "bypass precondition checks")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "report what would happen without mutating anything")
}

// newInstallCommand creates the `dnaforge install` command.
func newInstallCommand(app *App) *cobra.Command {
	flags := &lifecycleFlags{}

	cmd := &cobra.Command{
		Use:   "install <module>[@version]",
		Short: "Install a module from the configured sources",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := app.Services(cmd.Context())
			if err != nil {
				return err
			}
			app.reportDiagnostics(svc)

			mod, err := catalogModule(svc, args[0])
			if err != nil {
				return err
			}
			res := svc.Lifecycle.Install(cmd.Context(), mod, flags.options())
			return printLifecycleResult(app, res)
		},
	}
	addCommonLifecycleFlags(cmd, flags)
	return cmd
}

// newUpdateCommand creates the `dnaforge update` command.
func newUpdateCommand(app *App) *cobra.Command {
	flags := &lifecycleFlags{}

	cmd := &cobra.Command{
		Use:   "update <module>[@version]",
		Short: "Update an installed module, running its migration path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := app.Services(cmd.Context())
			if err != nil {
				return err
			}
			app.reportDiagnostics(svc)

			target, err := catalogModule(svc, args[0])
			if err != nil {
				return err
			}
			res := svc.Lifecycle.Update(cmd.Context(), target, flags.options())
			printMigrationPlan(app, res.Migration)
			return printLifecycleResult(app, res)
		},
	}
	addCommonLifecycleFlags(cmd, flags)
	cmd.Flags().BoolVar(&flags.autoMigrate, "auto-migrate", false, "permit breaking migration steps")
	return cmd
}

// newRemoveCommand creates the `dnaforge remove` command.
func newRemoveCommand(app *App) *cobra.Command {
	flags := &lifecycleFlags{}

	cmd := &cobra.Command{
		Use:   "remove <module>",
		Short: "Remove an installed module",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := app.Services(cmd.Context())
			if err != nil {
				return err
			}
			res := svc.Lifecycle.Remove(cmd.Context(), args[0], flags.options())
			return printLifecycleResult(app, res)
		},
	}
	addCommonLifecycleFlags(cmd, flags)
	cmd.Flags().BoolVar(&flags.removeDependents, "cascade", false, "also remove modules depending on this one")
	return cmd
}

// newRollbackCommand creates the `dnaforge rollback` command.
func newRollbackCommand(app *App) *cobra.Command {
	flags := &lifecycleFlags{}
	var pointID string

	cmd := &cobra.Command{
		Use:   "rollback <module>",
		Short: "Undo a module's most recent lifecycle operation",
		Long: `Undo a module's most recent lifecycle operation.

Each install, update, and remove creates a rollback point capturing
the prior registry entry and a backup of the module's files. Rollback
restores that state. Use --point to target a specific rollback point;
'dnaforge rollback --list' shows the available ones.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := app.Services(cmd.Context())
			if err != nil {
				return err
			}
			listRequested, _ := cmd.Flags().GetBool("list")
			if listRequested {
				return listRollbackPoints(app, svc)
			}
			if len(args) == 0 {
				return fmt.Errorf("module id is required (or use --list)")
			}
			id := pointID
			if id == "" {
				latest, ok := latestPointFor(svc, args[0])
				if !ok {
					return fmt.Errorf("no rollback point for module %s", args[0])
				}
				id = latest
			}
			res := svc.Lifecycle.Rollback(cmd.Context(), args[0], id, flags.options())
			return printLifecycleResult(app, res)
		},
	}
	addCommonLifecycleFlags(cmd, flags)
	cmd.Flags().StringVar(&pointID, "point", "", "rollback point id (default: the module's most recent)")
	cmd.Flags().Bool("list", false, "list available rollback points")
	return cmd
}

// newCleanupCommand creates the `dnaforge cleanup` command.
func newCleanupCommand(app *App) *cobra.Command {
	var olderThan time.Duration
	var keep int

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Evict old rollback points and their backups",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := app.Services(cmd.Context())
			if err != nil {
				return err
			}
			res := svc.Lifecycle.Cleanup(olderThan, keep)
			fmt.Fprintf(app.stdout, "%s %d rollback point(s), freed %d byte(s)\n",
				SuccessStyle.Render("Removed"), res.Removed, res.FreedBytes)
			for _, e := range res.Errors {
				fmt.Fprintf(app.stderr, "%s %s\n", WarningStyle.Render("Warning:"), e)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 7*24*time.Hour, "evict points older than this")
	cmd.Flags().IntVar(&keep, "keep", 3, "always keep this many newest points per module")
	return cmd
}

// newHistoryCommand creates the `dnaforge history` command.
func newHistoryCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "Show the lifecycle operation journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := app.Services(cmd.Context())
			if err != nil {
				return err
			}
			entries, err := svc.Lifecycle.History()
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(app.stdout, SubtitleStyle.Render("no operations recorded"))
				return nil
			}
			for _, e := range entries {
				status := SuccessStyle.Render("ok")
				if !e.Success {
					status = ErrorStyle.Render("failed")
				}
				fmt.Fprintf(app.stdout, "%s  %-8s %s %s [%s]\n",
					SubtitleStyle.Render(e.Timestamp.Format(time.RFC3339)),
					e.Operation, ModuleStyle.Render(e.ModuleID), e.Version, status)
			}
			return nil
		},
	}
}

// catalogModule looks up "id" or "id@version" in the discovered catalog.
func catalogModule(svc *Services, ref string) (*dnamod.Module, error) {
	id, version, pinned := strings.Cut(ref, "@")
	if !pinned {
		return svc.Registry.Current(id)
	}
	return svc.Registry.Version(id, semver.SemVer(version))
}

func latestPointFor(svc *Services, moduleID string) (string, bool) {
	var best *lifecycle.RollbackPoint
	for _, p := range svc.Lifecycle.Points() {
		if p.ModuleID != moduleID {
			continue
		}
		if best == nil || p.CreatedAt.After(best.CreatedAt) {
			best = p
		}
	}
	if best == nil {
		return "", false
	}
	return best.ID, true
}

func listRollbackPoints(app *App, svc *Services) error {
	points := svc.Lifecycle.Points()
	if len(points) == 0 {
		fmt.Fprintln(app.stdout, SubtitleStyle.Render("no rollback points"))
		return nil
	}
	for _, p := range points {
		reversible := SuccessStyle.Render("reversible")
		if !p.Reversible {
			reversible = WarningStyle.Render("irreversible")
		}
		fmt.Fprintf(app.stdout, "%s  %-8s %s %s [%s]\n",
			p.ID, p.Operation, ModuleStyle.Render(p.ModuleID), p.Version, reversible)
	}
	return nil
}

func printMigrationPlan(app *App, mig *lifecycle.Migration) {
	if mig == nil || len(mig.Steps) == 0 {
		return
	}
	fmt.Fprintf(app.stdout, "%s %s -> %s\n", TitleStyle.Render("Migration"), mig.From, mig.To)
	for _, step := range mig.Steps {
		marker := ""
		if step.Breaking {
			marker = " " + WarningStyle.Render("[breaking]")
		}
		fmt.Fprintf(app.stdout, "  -> %s%s %s\n", step.To, marker, SubtitleStyle.Render(step.Description))
	}
}

func printLifecycleResult(app *App, res *lifecycle.Result) error {
	for _, w := range res.Warnings {
		fmt.Fprintf(app.stderr, "%s %s\n", WarningStyle.Render("Warning:"), w)
	}
	for _, e := range res.Errors {
		fmt.Fprintf(app.stderr, "%s %s\n", ErrorStyle.Render("Error:"), e)
	}
	if !res.Success {
		return &ExitError{Code: 1, Err: fmt.Errorf("%s %s failed", res.Operation, res.ModuleID)}
	}
	version := ""
	if res.Version != "" {
		version = " " + res.Version.String()
	}
	fmt.Fprintf(app.stdout, "%s %s %s%s (%s)\n",
		SuccessStyle.Render("✓"), res.Operation, ModuleStyle.Render(res.ModuleID), version, res.Duration.Round(time.Millisecond))
	if res.RollbackPointID != "" && verbose {
		fmt.Fprintf(app.stdout, "%s %s\n", VerboseStyle.Render("rollback point:"), res.RollbackPointID)
	}
	return nil
}
