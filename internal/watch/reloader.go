// SPDX-License-Identifier: MPL-2.0

package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"dnaforge/pkg/composer"
	"dnaforge/pkg/registry"
	"dnaforge/pkg/resolver"
	"dnaforge/pkg/source"

	"github.com/charmbracelet/log"
)

type (
	// Strategies selects how each change category propagates. Zero values
	// fall back to the defaults in DefaultStrategies.
	Strategies struct {
		Module     string // full | incremental | smart
		Config     string // reload | update | merge
		Dependency string // cascade | selective | minimal
		Template   string // regenerate | patch | skip
	}

	// Reloader turns coalesced change batches into registry, resolver, and
	// composition updates while the session preserves module state.
	Reloader struct {
		session    *Session
		registry   *registry.Registry
		resolver   *resolver.Resolver
		engine     *composer.Engine
		loader     *source.Loader
		logger     *log.Logger
		roots      []string
		strategies Strategies
		preserve   bool
	}
)

// DefaultStrategies mirror the engine defaults: smart module diffing,
// full config recompute, cascading dependency reloads, template regeneration.
func DefaultStrategies() Strategies {
	return Strategies{
		Module:     ModuleReloadSmart,
		Config:     ConfigReloadAll,
		Dependency: DependencyReloadCascade,
		Template:   TemplateRegenerate,
	}
}

// NewReloader wires a reloader over the engine services. preserveState
// controls snapshot/restore around module reloads.
func NewReloader(
	session *Session,
	reg *registry.Registry,
	res *resolver.Resolver,
	engine *composer.Engine,
	loader *source.Loader,
	roots []string,
	strategies Strategies,
	preserveState bool,
	logger *log.Logger,
) *Reloader {
	if logger == nil {
		logger = log.Default()
	}
	defaults := DefaultStrategies()
	if strategies.Module == "" {
		strategies.Module = defaults.Module
	}
	if strategies.Config == "" {
		strategies.Config = defaults.Config
	}
	if strategies.Dependency == "" {
		strategies.Dependency = defaults.Dependency
	}
	if strategies.Template == "" {
		strategies.Template = defaults.Template
	}
	return &Reloader{
		session:    session,
		registry:   reg,
		resolver:   res,
		engine:     engine,
		loader:     loader,
		logger:     logger.With("component", "hotreload"),
		roots:      roots,
		strategies: strategies,
		preserve:   preserveState,
	}
}

// HandleBatch processes one debounced batch. Reload failures are recorded in
// the session's bounded histories and never returned as errors: the watcher
// must keep running.
func (r *Reloader) HandleBatch(ctx context.Context, batch Batch) error {
	start := time.Now()
	rec := ReloadRecord{
		Time:     start,
		Category: batch.Category,
		Paths:    batchPaths(batch),
	}

	var err error
	switch batch.Category {
	case CategoryModule:
		rec.Strategy = r.strategies.Module
		err = r.reloadModules(ctx, batch)
	case CategoryConfig:
		rec.Strategy = r.strategies.Config
		err = r.reloadConfig(batch)
	case CategoryDependency:
		rec.Strategy = r.strategies.Dependency
		err = r.reloadDependencies(batch)
	case CategoryTemplate:
		rec.Strategy = r.strategies.Template
		err = r.reloadTemplates(batch)
	default:
		rec.Strategy = "ignored"
	}

	rec.Duration = time.Since(start).Milliseconds()
	if err != nil {
		rec.Error = err.Error()
		r.session.RecordError(fmt.Sprintf("%s reload: %v", batch.Category, err))
		r.logger.Error("reload failed", "category", batch.Category, "error", err)
	} else {
		r.logger.Info("reload complete",
			"category", batch.Category, "strategy", rec.Strategy,
			"paths", len(rec.Paths), "duration", time.Since(start))
	}
	r.session.RecordReload(rec)
	return nil
}

// DropBatch records a batch skipped by the watcher's reentrancy guard.
func (r *Reloader) DropBatch(batch Batch) {
	r.session.MarkDropped()
	r.logger.Warn("reload batch dropped", "category", batch.Category, "events", len(batch.Events))
}

func batchPaths(batch Batch) []string {
	paths := make([]string, 0, len(batch.Events))
	for _, evt := range batch.Events {
		paths = append(paths, evt.Path)
	}
	return paths
}

// reloadModules re-registers every changed module, preserving in-memory state
// across the reload. The smart strategy skips modules whose manifest did not
// change; full additionally recomputes every cached composition.
func (r *Reloader) reloadModules(ctx context.Context, batch Batch) error {
	reloaded := make(map[string]bool)

	for _, evt := range batch.Events {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		moduleDir, ok := r.moduleDirFor(evt.Path)
		if !ok {
			continue
		}
		shortName := source.ShortName(moduleDir)
		if reloaded[shortName] {
			continue
		}

		if evt.Type == ChangeRemove && !source.IsModule(moduleDir) {
			// The module directory itself is gone. Registry removal stays
			// a lifecycle decision; the reload only drops cached results.
			r.logger.Warn("watched module disappeared", "module", shortName)
			r.resolver.PurgeCache()
			continue
		}

		// Smart: only a manifest change alters resolution inputs; other
		// file edits inside the module reload nothing but the caches.
		if r.strategies.Module == ModuleReloadSmart && !isManifest(evt.Path) {
			r.resolver.PurgeCache()
			continue
		}

		if err := r.reloadOne(moduleDir); err != nil {
			return err
		}
		reloaded[shortName] = true
	}

	if len(reloaded) == 0 {
		return nil
	}

	// Cascading dependency strategy: reload every registered dependent of
	// the changed modules so stale resolution state cannot survive.
	if r.strategies.Dependency == DependencyReloadCascade {
		for id := range reloaded {
			for _, depID := range r.dependentsOf(id) {
				if !reloaded[depID] {
					r.snapshotAndRestore(depID)
					reloaded[depID] = true
				}
			}
		}
	}

	r.resolver.PurgeCache()
	if r.strategies.Module == ModuleReloadFull {
		r.recomputeCompositions(nil)
	} else {
		r.recomputeCompositions(reloaded)
	}
	return nil
}

// reloadOne re-parses one module directory and re-registers it, wrapping the
// mutation in a state snapshot/restore when preservation is enabled.
func (r *Reloader) reloadOne(moduleDir string) error {
	result := r.loader.Load(source.Descriptor{Kind: source.KindPackage, Location: moduleDir})
	if len(result.Modules) == 0 {
		if len(result.Diagnostics) > 0 {
			return fmt.Errorf("reload %s: %s", moduleDir, result.Diagnostics[0].Message)
		}
		return fmt.Errorf("reload %s: no module found", moduleDir)
	}
	m := result.Modules[0]

	if r.preserve {
		if err := r.session.Snapshot(m.ID); err != nil {
			return err
		}
	}
	if err := r.registry.Register(m); err != nil {
		return fmt.Errorf("re-register %s: %w", m.ID, err)
	}
	if r.preserve {
		r.session.RestoreLatest(m.ID)
	}
	return nil
}

// snapshotAndRestore cycles a dependent's preserved state without re-parsing
// it; its manifest did not change, but its resolution context did.
func (r *Reloader) snapshotAndRestore(moduleID string) {
	if !r.preserve {
		return
	}
	if err := r.session.Snapshot(moduleID); err != nil {
		r.session.RecordError(fmt.Sprintf("snapshot %s: %v", moduleID, err))
		return
	}
	r.session.RestoreLatest(moduleID)
}

// dependentsOf returns the ids of registered modules whose current version
// declares a dependency on moduleID.
func (r *Reloader) dependentsOf(moduleID string) []string {
	var dependents []string
	for _, id := range r.registry.IDs() {
		m, err := r.registry.Current(id)
		if err != nil {
			continue
		}
		if m.DependsOn(moduleID) {
			dependents = append(dependents, id)
		}
	}
	return dependents
}

// reloadConfig reacts to configuration changes. The reload strategy
// recomputes every cached composition; update and merge only invalidate so
// the next access recomputes lazily.
func (r *Reloader) reloadConfig(Batch) error {
	r.resolver.PurgeCache()
	switch r.strategies.Config {
	case ConfigReloadAll:
		r.recomputeCompositions(nil)
	case ConfigReloadPatch, ConfigReloadMerge:
		r.session.InvalidateCompositions()
	}
	return nil
}

// reloadDependencies reacts to lock/dependency file changes.
func (r *Reloader) reloadDependencies(batch Batch) error {
	r.resolver.PurgeCache()
	switch r.strategies.Dependency {
	case DependencyReloadCascade:
		r.recomputeCompositions(nil)
	case DependencyReloadSelective:
		touched := make(map[string]bool)
		for _, evt := range batch.Events {
			if dir, ok := r.moduleDirFor(evt.Path); ok {
				touched[source.ShortName(dir)] = true
			}
		}
		r.recomputeCompositions(touched)
	case DependencyReloadMinimal:
		// Cache purge is enough; compositions recompute on demand.
	}
	return nil
}

// reloadTemplates reacts to template tree changes. Regeneration recomputes
// the compositions so their next generation pass sees fresh templates; patch
// invalidates only; skip records the event and does nothing.
func (r *Reloader) reloadTemplates(Batch) error {
	switch r.strategies.Template {
	case TemplateRegenerate:
		r.recomputeCompositions(nil)
	case TemplatePatch:
		r.session.InvalidateCompositions()
	case TemplateSkip:
	}
	return nil
}

// recomputeCompositions re-runs the composer for cached compositions. A nil
// filter recomputes all; otherwise only compositions referencing a filtered
// module id are recomputed.
func (r *Reloader) recomputeCompositions(filter map[string]bool) {
	for _, name := range r.session.CompositionNames() {
		active, ok := r.session.Composition(name)
		if !ok {
			continue
		}
		if filter != nil && !compositionTouches(active.Spec, filter) {
			continue
		}
		result := r.engine.Compose(active.Spec)
		r.session.SetComposition(active.Spec, result)
		if !result.Valid {
			r.session.RecordError(fmt.Sprintf("composition %s invalid after reload", name))
		}
	}
}

func compositionTouches(spec composer.Composition, filter map[string]bool) bool {
	for _, id := range spec.Modules {
		if filter[id] {
			return true
		}
	}
	return false
}

// moduleDirFor walks a changed path upward looking for the enclosing
// *.dnamod directory, resolving against the watch roots.
func (r *Reloader) moduleDirFor(rel string) (string, bool) {
	normalized := filepath.ToSlash(rel)
	segments := strings.Split(normalized, "/")
	for i, seg := range segments {
		if !strings.HasSuffix(seg, source.ModuleSuffix) {
			continue
		}
		sub := filepath.Join(segments[:i+1]...)
		if filepath.IsAbs(rel) {
			return string(filepath.Separator) + sub, true
		}
		for _, root := range r.roots {
			candidate := filepath.Join(root, sub)
			if source.IsModule(candidate) {
				return candidate, true
			}
		}
		// Removed module dirs no longer stat; return the first root guess.
		if len(r.roots) > 0 {
			return filepath.Join(r.roots[0], sub), true
		}
	}
	return "", false
}

// isManifest reports whether the changed path is a module manifest file.
func isManifest(path string) bool {
	return filepath.Base(path) == source.ManifestName
}
