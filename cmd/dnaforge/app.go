// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"dnaforge/internal/config"
	"dnaforge/internal/fscap"
	"dnaforge/internal/hookrunner"
	"dnaforge/pkg/composer"
	"dnaforge/pkg/dnamod"
	"dnaforge/pkg/lifecycle"
	"dnaforge/pkg/registry"
	"dnaforge/pkg/resolver"
	"dnaforge/pkg/source"

	"github.com/charmbracelet/log"
)

type (
	// App wires CLI services and shared dependencies. It is the composition
	// root for the CLI layer; Cobra handlers delegate through it instead of
	// constructing engine services themselves.
	App struct {
		Config config.Provider
		stdout io.Writer
		stderr io.Writer

		mu       sync.Mutex
		services *Services
	}

	// Dependencies defines the injection points for building an App. Nil
	// fields are replaced with production defaults by NewApp.
	Dependencies struct {
		Config config.Provider
		Stdout io.Writer
		Stderr io.Writer
	}

	// Services holds the engine stack assembled from the loaded
	// configuration. Built once per App; every command shares the same
	// registry and caches.
	Services struct {
		Cfg      *config.Config
		Registry *registry.Registry
		Resolver *resolver.Resolver
		Engine   *composer.Engine
		// Installed tracks lifecycle-managed modules, rebuilt from the
		// install root on startup. Distinct from Registry, which is the
		// catalog of everything discoverable from sources.
		Installed *registry.Registry
		Lifecycle *lifecycle.Manager
		Loader    *source.Loader
		Logger    *log.Logger
		// FS is the shared filesystem capability for state persistence.
		FS fscap.Capability

		// Roots are the directories module sources were loaded from,
		// in include order. The watcher watches these.
		Roots []string
		// Diagnostics are per-source load problems that did not prevent
		// startup (broken manifests are skipped, not fatal).
		Diagnostics []source.Diagnostic
	}
)

// NewApp creates an App with production defaults for any nil dependency.
func NewApp(deps Dependencies) *App {
	app := &App{
		Config: deps.Config,
		stdout: deps.Stdout,
		stderr: deps.Stderr,
	}
	if app.Config == nil {
		app.Config = config.NewProvider()
	}
	if app.stdout == nil {
		app.stdout = os.Stdout
	}
	if app.stderr == nil {
		app.stderr = os.Stderr
	}
	return app
}

// Services loads configuration and assembles the engine stack. The result is
// cached: repeated calls within one process reuse the same registry.
func (a *App) Services(ctx context.Context) (*Services, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.services != nil {
		return a.services, nil
	}

	cfg, err := a.Config.Load(ctx, config.LoadOptions{ConfigFilePath: cfgFile})
	if err != nil {
		return nil, err
	}

	if cfg.UI.Verbose {
		verbose = true
	}
	logger := log.NewWithOptions(a.stderr, log.Options{Prefix: "dnaforge"})
	if verbose {
		logger.SetLevel(log.DebugLevel)
	}

	loader := source.NewLoader(logger)
	descriptors, roots, err := moduleSources(cfg)
	if err != nil {
		return nil, err
	}
	loaded := loader.Load(descriptors...)

	reg := registry.New(logger)
	for _, m := range loaded.Modules {
		if regErr := reg.Register(m); regErr != nil {
			loaded.Diagnostics = append(loaded.Diagnostics, source.Diagnostic{
				Source:  source.Descriptor{Location: m.Path},
				Path:    m.Path,
				Message: regErr.Error(),
			})
		}
	}

	res := resolver.New(reg, logger)
	engine := composer.New(reg, res, logger, engineOptions(cfg))

	lcCfg, err := lifecycleConfig(cfg)
	if err != nil {
		return nil, err
	}
	installed := registry.New(logger)
	if err := restoreInstalled(installed, lcCfg.InstallRoot); err != nil {
		return nil, err
	}
	fs := fscap.NewOS()
	manager := lifecycle.New(installed, fs, hookrunner.New(logger), logger, lcCfg)

	a.services = &Services{
		Cfg:         cfg,
		Registry:    reg,
		Installed:   installed,
		Resolver:    res,
		Engine:      engine,
		Lifecycle:   manager,
		Loader:      loader,
		Logger:      logger,
		FS:          fs,
		Roots:       roots,
		Diagnostics: loaded.Diagnostics,
	}
	return a.services, nil
}

// moduleSources maps configured includes plus the user modules directory to
// source descriptors. Include order is preserved; the modules directory is
// scanned last so explicit includes win alias collisions.
func moduleSources(cfg *config.Config) ([]source.Descriptor, []string, error) {
	var descriptors []source.Descriptor
	var roots []string

	for _, inc := range cfg.Includes {
		path := string(inc.Path)
		if inc.IsModule() {
			descriptors = append(descriptors, source.Descriptor{
				Kind:     source.KindPackage,
				Location: path,
				Alias:    string(inc.Alias),
			})
			roots = append(roots, filepath.Dir(path))
			continue
		}
		descriptors = append(descriptors, source.Descriptor{
			Kind:     source.KindLocal,
			Location: path,
		})
		roots = append(roots, path)
	}

	modulesDir, err := config.ModulesDir()
	if err != nil {
		return nil, nil, fmt.Errorf("resolving modules directory: %w", err)
	}
	descriptors = append(descriptors, source.Descriptor{
		Kind:     source.KindLocal,
		Location: modulesDir,
	})
	roots = append(roots, modulesDir)

	return descriptors, dedupePaths(roots), nil
}

func dedupePaths(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	out := paths[:0]
	for _, p := range paths {
		clean := filepath.Clean(p)
		if seen[clean] {
			continue
		}
		seen[clean] = true
		out = append(out, clean)
	}
	return out
}

// engineOptions converts configuration thresholds and resolution policy to
// composer options. Zero thresholds keep the built-in defaults.
func engineOptions(cfg *config.Config) composer.Options {
	opts := composer.DefaultOptions()
	opts.Strategy = resolutionStrategy(cfg.Resolution.Strategy)
	opts.AllowExperimental = cfg.Resolution.AllowExperimental
	opts.AllowDeprecated = cfg.Resolution.AllowDeprecated

	t := cfg.Thresholds
	if t.MaxModules > 0 {
		opts.Thresholds.MaxModules = t.MaxModules
	}
	if t.MaxComplexity > 0 {
		opts.Thresholds.MaxComplexity = t.MaxComplexity
	}
	if t.MaxDepth > 0 {
		opts.Thresholds.MaxDepth = t.MaxDepth
	}
	if t.ModuleWeight > 0 {
		opts.Thresholds.ModuleWeight = t.ModuleWeight
	}
	if t.DependencyWeight > 0 {
		opts.Thresholds.DependencyWeight = t.DependencyWeight
	}
	if t.ConflictWeight > 0 {
		opts.Thresholds.ConflictWeight = t.ConflictWeight
	}
	return opts
}

// resolutionStrategy maps the config strategy names to resolver strategies.
func resolutionStrategy(s config.Strategy) resolver.Strategy {
	switch s {
	case config.StrategyLatest:
		return resolver.StrategyLatest
	case config.StrategyMinimal:
		return resolver.StrategyMinimal
	case config.StrategyCompatible:
		return resolver.StrategyCompatible
	case config.StrategyPerformance:
		return resolver.StrategyPerformance
	default:
		return resolver.StrategyStable
	}
}

// lifecycleConfig fills unset lifecycle paths with defaults under the user
// state directory.
func lifecycleConfig(cfg *config.Config) (lifecycle.Config, error) {
	lc := lifecycle.Config{
		InstallRoot: cfg.Lifecycle.InstallRoot,
		BackupRoot:  cfg.Lifecycle.BackupRoot,
		JournalPath: cfg.Lifecycle.JournalPath,
	}
	if lc.InstallRoot != "" && lc.BackupRoot != "" && lc.JournalPath != "" {
		return lc, nil
	}

	stateDir, err := config.StateDir()
	if err != nil {
		return lifecycle.Config{}, fmt.Errorf("resolving state directory: %w", err)
	}
	if lc.InstallRoot == "" {
		lc.InstallRoot = filepath.Join(stateDir, "installed")
	}
	if lc.BackupRoot == "" {
		lc.BackupRoot = filepath.Join(stateDir, "backups")
	}
	if lc.JournalPath == "" {
		lc.JournalPath = filepath.Join(stateDir, "journal.toml")
	}
	return lc, nil
}

// restoreInstalled rebuilds the installed-module registry from the install
// root, one materialized directory per module id. Directories without a
// readable manifest are skipped; a missing install root means nothing is
// installed yet.
func restoreInstalled(reg *registry.Registry, installRoot string) error {
	entries, err := os.ReadDir(installRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading install root: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		manifest := filepath.Join(installRoot, entry.Name(), source.ManifestName)
		m, perr := dnamod.ParseManifest(manifest)
		if perr != nil {
			continue
		}
		if rerr := reg.Register(m); rerr != nil {
			return fmt.Errorf("restoring installed module %s: %w", entry.Name(), rerr)
		}
	}
	return nil
}

// reportDiagnostics prints non-fatal module load problems to stderr.
func (a *App) reportDiagnostics(svc *Services) {
	for _, d := range svc.Diagnostics {
		fmt.Fprintf(a.stderr, "%s %s: %s\n", WarningStyle.Render("Warning:"), d.Path, d.Message)
	}
}
