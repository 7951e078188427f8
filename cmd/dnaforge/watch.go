// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"path/filepath"
	"time"

	"dnaforge/internal/config"
	"dnaforge/internal/fscap"
	"dnaforge/internal/watch"
	"dnaforge/pkg/composer"

	"github.com/spf13/cobra"
)

type watchFlags struct {
	framework    string
	template     string
	modules      []string
	noPreserve   bool
	freshSession bool
	moduleReload string
	configReload string
	depReload    string
	tmplReload   string
}

// newWatchCommand creates the `dnaforge watch` command.
func newWatchCommand(app *App) *cobra.Command {
	flags := &watchFlags{}

	cmd := &cobra.Command{
		Use:   "watch [path...]",
		Short: "Watch module sources and hot-reload on changes",
		Long: `Watch module sources and hot-reload on changes.

Changes are classified as module, config, dependency, or template
changes, each with its own debounce window and reload strategy.
While a reload runs, newly closing batches are dropped rather than
queued. In-memory module state is deep-copied around reloads so it
survives re-registration. The session (state, snapshots, reload
history) is persisted on exit and restored on the next watch run.

With no paths, the configured module sources are watched. Passing
--module keeps a composition actively validated: each relevant
reload recomputes it and reports when it turns invalid.`,
		Example: `  dnaforge watch
  dnaforge watch ./modules
  dnaforge watch -f react -m auth -m database`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, app, flags, args)
		},
	}

	cmd.Flags().StringVarP(&flags.framework, "framework", "f", "", "framework for the live composition")
	cmd.Flags().StringVarP(&flags.template, "template", "t", "", "template flavor for the live composition")
	cmd.Flags().StringArrayVarP(&flags.modules, "module", "m", nil, "module id for the live composition (repeatable)")
	cmd.Flags().BoolVar(&flags.noPreserve, "no-preserve-state", false, "skip state snapshot/restore around reloads")
	cmd.Flags().BoolVar(&flags.freshSession, "fresh", false, "start a fresh session, ignoring saved state")
	cmd.Flags().StringVar(&flags.moduleReload, "module-reload", "", "module reload strategy (full, incremental, smart)")
	cmd.Flags().StringVar(&flags.configReload, "config-reload", "", "config reload strategy (reload, update, merge)")
	cmd.Flags().StringVar(&flags.depReload, "dependency-reload", "", "dependency reload strategy (cascade, selective, minimal)")
	cmd.Flags().StringVar(&flags.tmplReload, "template-reload", "", "template reload strategy (regenerate, patch, skip)")

	return cmd
}

func runWatch(cmd *cobra.Command, app *App, flags *watchFlags, args []string) error {
	svc, err := app.Services(cmd.Context())
	if err != nil {
		return err
	}
	app.reportDiagnostics(svc)

	paths := args
	if len(paths) == 0 {
		paths = svc.Roots
	}
	if len(paths) == 0 {
		return fmt.Errorf("nothing to watch: no paths given and no module sources configured")
	}

	session := watch.NewSession(paths)
	statePath, err := sessionStatePath()
	if err != nil {
		return err
	}
	if !flags.freshSession {
		if err := session.Restore(svc.FS, statePath); err != nil {
			fmt.Fprintf(app.stderr, "%s restoring session state: %v\n", WarningStyle.Render("Warning:"), err)
		}
	}

	if len(flags.modules) > 0 {
		comp := composer.Composition{
			Name:         "watch",
			Framework:    flags.framework,
			TemplateType: flags.template,
			Modules:      flags.modules,
		}
		result := svc.Engine.Compose(comp)
		session.SetComposition(comp, result)
		printComposeResult(app, result)
	}

	reloader := watch.NewReloader(
		session, svc.Registry, svc.Resolver, svc.Engine, svc.Loader,
		paths, watchStrategies(svc.Cfg, flags), !flags.noPreserve, svc.Logger,
	)

	watcher, err := watch.New(watch.Config{
		Paths:    paths,
		Ignore:   svc.Cfg.Watch.IgnorePatterns,
		Debounce: debounceWindows(svc.Cfg),
		OnBatch:  reloader.HandleBatch,
		OnDrop:   reloader.DropBatch,
		Stderr:   app.stderr,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(app.stdout, "%s %d path(s), session %s\n",
		TitleStyle.Render("Watching"), len(paths), SubtitleStyle.Render(session.ID))

	// Run blocks until the context is cancelled (Ctrl+C) or the watcher
	// hits a fatal filesystem error.
	return finishWatch(app, svc.FS, session, statePath, watcher.Run(cmd.Context()))
}

// finishWatch persists session state and reports the watcher outcome. State
// is saved even when the watcher failed so an abnormal exit keeps history.
func finishWatch(app *App, fs fscap.Capability, session *watch.Session, statePath string, runErr error) error {
	if err := session.Save(fs, statePath); err != nil {
		fmt.Fprintf(app.stderr, "%s saving session state: %v\n", WarningStyle.Render("Warning:"), err)
	}
	if runErr != nil {
		return runErr
	}

	stats := session.Stats()
	fmt.Fprintf(app.stdout, "%s reloads=%d errors=%d dropped=%d\n",
		TitleStyle.Render("Session ended:"), stats.Reloads, stats.Errors, stats.DroppedBatches)
	return nil
}

func sessionStatePath() (string, error) {
	stateDir, err := config.StateDir()
	if err != nil {
		return "", fmt.Errorf("resolving state directory: %w", err)
	}
	return filepath.Join(stateDir, "watch-session.json"), nil
}

// watchStrategies derives per-category reload strategies from the configured
// reload mode, with per-category flag overrides taking precedence.
func watchStrategies(cfg *config.Config, flags *watchFlags) watch.Strategies {
	var strategies watch.Strategies
	switch cfg.Watch.ReloadStrategy {
	case config.ReloadSimple:
		strategies = watch.Strategies{
			Module:     watch.ModuleReloadFull,
			Config:     watch.ConfigReloadAll,
			Dependency: watch.DependencyReloadMinimal,
			Template:   watch.TemplateRegenerate,
		}
	case config.ReloadSmart:
		strategies = watch.Strategies{
			Module:     watch.ModuleReloadSmart,
			Config:     watch.ConfigReloadPatch,
			Dependency: watch.DependencyReloadSelective,
			Template:   watch.TemplatePatch,
		}
	default: // cascade
		strategies = watch.DefaultStrategies()
	}

	if flags.moduleReload != "" {
		strategies.Module = flags.moduleReload
	}
	if flags.configReload != "" {
		strategies.Config = flags.configReload
	}
	if flags.depReload != "" {
		strategies.Dependency = flags.depReload
	}
	if flags.tmplReload != "" {
		strategies.Template = flags.tmplReload
	}
	return strategies
}

// debounceWindows converts configured per-category debounce milliseconds.
func debounceWindows(cfg *config.Config) map[watch.Category]time.Duration {
	if len(cfg.Watch.DebounceMs) == 0 {
		return nil
	}
	windows := make(map[watch.Category]time.Duration, len(cfg.Watch.DebounceMs))
	for name, ms := range cfg.Watch.DebounceMs {
		windows[watch.Category(name)] = time.Duration(ms) * time.Millisecond
	}
	return windows
}
