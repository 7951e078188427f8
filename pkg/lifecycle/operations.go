// SPDX-License-Identifier: MPL-2.0

package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"dnaforge/pkg/dnamod"
)

func errNoSnapshot(rp *RollbackPoint) error {
	return fmt.Errorf("rollback point %s has no module snapshot", rp.ID)
}

// Install registers a module and materializes its file tree. Installing an
// already-installed module is refused unless forced.
func (m *Manager) Install(ctx context.Context, mod *dnamod.Module, opts Options) *Result {
	start := time.Now()
	res := newResult(OpInstall, mod.ID, mod.Version)

	if !m.begin(mod.ID) {
		return m.finish(res.fail("%v: %s", ErrOperationInFlight, mod.ID), start)
	}
	defer m.end(mod.ID)
	m.emit(EventStarted, OpInstall, mod.ID, "")

	if m.registry.Has(mod.ID) && !opts.Force {
		return m.finish(res.fail("module %s is already installed; use force to reinstall", mod.ID), start)
	}

	if opts.DryRun {
		res.warnf("dry-run: install of %s was not applied", mod.Key())
		return m.finish(res, start)
	}

	if _, err := m.createRollbackPoint(OpInstall, mod.ID, res); err != nil {
		return m.finish(res.fail("rollback point: %v", err), start)
	}

	if err := m.runHooks(ctx, OpInstall, mod.ID, mod.Hooks.PreInstall, m.hookWorkDir(mod)); err != nil {
		return m.finish(res.fail("pre-install hook: %v", err), start)
	}

	if err := m.registry.Register(mod); err != nil {
		return m.finish(res.fail("register: %v", err), start)
	}
	if mod.Path != "" {
		if err := m.files.Copy(mod.Path, m.moduleDir(mod.ID)); err != nil {
			return m.finish(res.fail("materialize files: %v", err), start)
		}
	}

	if err := m.runHooks(ctx, OpInstall, mod.ID, mod.Hooks.PostInstall, m.hookWorkDir(mod)); err != nil {
		res.warnf("post-install hook: %v", err)
	}

	return m.finish(res, start)
}

// Update moves an installed module to a new version, planning and executing
// the manifest's migration path between the two versions. A breaking
// migration is refused unless auto-migration or force is requested.
func (m *Manager) Update(ctx context.Context, target *dnamod.Module, opts Options) *Result {
	start := time.Now()
	res := newResult(OpUpdate, target.ID, target.Version)

	if !m.begin(target.ID) {
		return m.finish(res.fail("%v: %s", ErrOperationInFlight, target.ID), start)
	}
	defer m.end(target.ID)
	m.emit(EventStarted, OpUpdate, target.ID, "")

	current, err := m.registry.Current(target.ID)
	if err != nil {
		return m.finish(res.fail("module %s is not installed", target.ID), start)
	}
	if current.Version == target.Version && !opts.Force {
		return m.finish(res.fail("module %s is already at %s", target.ID, target.Version), start)
	}

	steps, breaking := target.MigrationPath(current.Version, target.Version)
	res.Migration = &Migration{
		From:     current.Version,
		To:       target.Version,
		Steps:    steps,
		Breaking: breaking,
	}
	if breaking && !opts.AutoMigrate && !opts.Force {
		return m.finish(res.fail(
			"migration %s -> %s contains breaking steps; retry with auto-migrate or force",
			current.Version, target.Version), start)
	}

	if opts.DryRun {
		res.warnf("dry-run: update of %s to %s was not applied", target.ID, target.Version)
		return m.finish(res, start)
	}

	if _, err := m.createRollbackPoint(OpUpdate, target.ID, res); err != nil {
		return m.finish(res.fail("rollback point: %v", err), start)
	}

	if err := m.runHooks(ctx, OpUpdate, target.ID, target.Hooks.PreUpdate, m.hookWorkDir(target)); err != nil {
		return m.finish(res.fail("pre-update hook: %v", err), start)
	}

	for _, step := range steps {
		if err := m.runHooks(ctx, OpUpdate, target.ID, step.Commands, m.hookWorkDir(target)); err != nil {
			return m.finish(res.fail("migration step to %s: %v", step.To, err), start)
		}
	}

	if err := m.registry.Register(target); err != nil {
		return m.finish(res.fail("register: %v", err), start)
	}
	if target.Path != "" {
		dir := m.moduleDir(target.ID)
		if err := m.files.Remove(dir); err != nil {
			return m.finish(res.fail("clear module files: %v", err), start)
		}
		if err := m.files.Copy(target.Path, dir); err != nil {
			return m.finish(res.fail("materialize files: %v", err), start)
		}
	}

	if err := m.runHooks(ctx, OpUpdate, target.ID, target.Hooks.PostUpdate, m.hookWorkDir(target)); err != nil {
		res.warnf("post-update hook: %v", err)
	}

	return m.finish(res, start)
}

// Remove uninstalls a module. When other installed modules depend on it, the
// removal is refused unless dependents are cascaded or the call is forced.
func (m *Manager) Remove(ctx context.Context, moduleID string, opts Options) *Result {
	start := time.Now()
	res := newResult(OpRemove, moduleID, "")

	if !m.begin(moduleID) {
		return m.finish(res.fail("%v: %s", ErrOperationInFlight, moduleID), start)
	}
	defer m.end(moduleID)
	m.emit(EventStarted, OpRemove, moduleID, "")

	current, err := m.registry.Current(moduleID)
	if err != nil {
		return m.finish(res.fail("module %s is not installed", moduleID), start)
	}
	res.Version = current.Version

	dependents := m.dependentsOf(moduleID)
	if len(dependents) > 0 && !opts.RemoveDependents && !opts.Force {
		return m.finish(res.fail(
			"module %s is required by %s; remove dependents first or cascade",
			moduleID, strings.Join(dependents, ", ")), start)
	}

	if opts.DryRun {
		res.warnf("dry-run: remove of %s was not applied", moduleID)
		return m.finish(res, start)
	}

	if opts.RemoveDependents {
		for _, dependent := range dependents {
			depRes := m.Remove(ctx, dependent, opts)
			if !depRes.Success {
				return m.finish(res.fail("cascade remove of %s: %s", dependent, firstOrEmpty(depRes.Errors)), start)
			}
			res.warnf("removed dependent %s", dependent)
		}
	}

	if _, err := m.createRollbackPoint(OpRemove, moduleID, res); err != nil {
		return m.finish(res.fail("rollback point: %v", err), start)
	}

	if err := m.runHooks(ctx, OpRemove, moduleID, current.Hooks.PreRemove, m.hookWorkDir(current)); err != nil {
		return m.finish(res.fail("pre-remove hook: %v", err), start)
	}

	if err := m.registry.Remove(moduleID); err != nil {
		return m.finish(res.fail("unregister: %v", err), start)
	}
	if err := m.files.Remove(m.moduleDir(moduleID)); err != nil {
		return m.finish(res.fail("delete module files: %v", err), start)
	}

	if err := m.runHooks(ctx, OpRemove, moduleID, current.Hooks.PostRemove, m.cfg.InstallRoot); err != nil {
		res.warnf("post-remove hook: %v", err)
	}

	return m.finish(res, start)
}

// Rollback undoes the operation a rollback point was created for: undoing an
// install deletes the registry entry, undoing a remove restores it, undoing
// an update re-points the registry at the prior version. Backed-up files are
// restored in every case, and a consumed rollback point is deleted.
func (m *Manager) Rollback(ctx context.Context, moduleID, rollbackID string, opts Options) *Result {
	start := time.Now()
	res := newResult(OpRollback, moduleID, "")

	if !m.begin(moduleID) {
		return m.finish(res.fail("%v: %s", ErrOperationInFlight, moduleID), start)
	}
	defer m.end(moduleID)
	m.emit(EventStarted, OpRollback, moduleID, "")

	rp, ok := m.Point(rollbackID)
	if !ok {
		return m.finish(res.fail("rollback point %s does not exist", rollbackID), start)
	}
	if rp.ModuleID != moduleID {
		return m.finish(res.fail("rollback point %s belongs to module %s", rollbackID, rp.ModuleID), start)
	}
	if !rp.Reversible {
		return m.finish(res.fail("rollback point %s is not reversible", rollbackID), start)
	}
	res.Version = rp.Version

	if opts.DryRun {
		res.warnf("dry-run: rollback of %s was not applied", moduleID)
		return m.finish(res, start)
	}

	if err := m.revert(rp); err != nil {
		return m.finish(res.fail("revert %s: %v", rp.Operation, err), start)
	}

	m.discardPoint(rp, res)
	return m.finish(res, start)
}

// revert applies the inverse of the recorded operation.
func (m *Manager) revert(rp *RollbackPoint) error {
	dir := m.moduleDir(rp.ModuleID)

	switch rp.Operation {
	case OpInstall:
		if m.registry.Has(rp.ModuleID) {
			if err := m.registry.Remove(rp.ModuleID); err != nil {
				return err
			}
		}
		if err := m.files.Remove(dir); err != nil {
			return err
		}

	case OpRemove:
		if rp.Snapshot == nil {
			return errNoSnapshot(rp)
		}
		if err := m.registry.Register(rp.Snapshot); err != nil {
			return err
		}

	case OpUpdate:
		if rp.Snapshot == nil {
			return errNoSnapshot(rp)
		}
		if current := m.registry.Snapshot(rp.ModuleID); current != nil && current.Version != rp.Snapshot.Version {
			if err := m.registry.RemoveVersion(rp.ModuleID, current.Version); err != nil {
				return err
			}
		}
		if err := m.registry.Register(rp.Snapshot); err != nil {
			return err
		}
		if err := m.files.Remove(dir); err != nil {
			return err
		}
	}

	if rp.BackupPath != "" {
		if err := m.files.Copy(rp.BackupPath, dir); err != nil {
			return err
		}
	}
	return nil
}

// discardPoint deletes a consumed rollback point and its backup.
func (m *Manager) discardPoint(rp *RollbackPoint, res *Result) {
	if rp.BackupPath != "" {
		if err := m.files.Remove(rp.BackupPath); err != nil {
			res.warnf("delete backup: %v", err)
		}
	}
	m.mu.Lock()
	delete(m.points, rp.ID)
	m.mu.Unlock()
}
