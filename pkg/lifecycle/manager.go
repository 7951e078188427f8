// SPDX-License-Identifier: MPL-2.0

// Package lifecycle executes module install, update, remove, and rollback as
// a uniform operation pipeline: precondition validation, rollback-point
// creation with filesystem backups, pre-hooks, the mutation itself,
// post-hooks, and a journal append. Exactly one operation runs per module id
// at a time; operations on distinct ids are independent.
package lifecycle

import (
	"context"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"dnaforge/internal/fscap"
	"dnaforge/internal/hookrunner"
	"dnaforge/pkg/dnamod"
	"dnaforge/pkg/registry"
	"dnaforge/pkg/semver"
)

type (
	// Config locates the manager's on-disk state.
	Config struct {
		// InstallRoot is where module file trees are materialized, one
		// directory per module id.
		InstallRoot string
		// BackupRoot holds rollback backups, one directory per rollback id.
		BackupRoot string
		// JournalPath is the TOML operation-history file.
		JournalPath string
		// OnEvent, when set, receives progress events in operation order.
		OnEvent func(Event)
	}

	// Manager runs lifecycle operations against a registry and filesystem.
	Manager struct {
		registry *registry.Registry
		files    fscap.Capability
		hooks    *hookrunner.Runner
		logger   *log.Logger
		cfg      Config

		mu       sync.Mutex
		inFlight map[string]bool
		points   map[string]*RollbackPoint
	}
)

// New creates a lifecycle manager. A nil logger falls back to the default.
func New(reg *registry.Registry, files fscap.Capability, hooks *hookrunner.Runner, logger *log.Logger, cfg Config) *Manager {
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{
		registry: reg,
		files:    files,
		hooks:    hooks,
		logger:   logger.With("component", "lifecycle"),
		cfg:      cfg,
		inFlight: make(map[string]bool),
		points:   make(map[string]*RollbackPoint),
	}
}

// begin acquires the per-module operation slot.
func (m *Manager) begin(moduleID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inFlight[moduleID] {
		return false
	}
	m.inFlight[moduleID] = true
	return true
}

func (m *Manager) end(moduleID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inFlight, moduleID)
}

func (m *Manager) emit(eventType EventType, op OpKind, moduleID, message string) {
	if m.cfg.OnEvent == nil {
		return
	}
	m.cfg.OnEvent(Event{
		Type:      eventType,
		Operation: op,
		ModuleID:  moduleID,
		Message:   message,
		Time:      time.Now(),
	})
}

// moduleDir is the install location for a module's file tree.
func (m *Manager) moduleDir(moduleID string) string {
	return filepath.Join(m.cfg.InstallRoot, moduleID)
}

// createRollbackPoint snapshots the module's registry state and backs up its
// installed file tree under BackupRoot/<rollback id>.
func (m *Manager) createRollbackPoint(op OpKind, moduleID string, res *Result) (*RollbackPoint, error) {
	rp := &RollbackPoint{
		ID:         uuid.NewString(),
		ModuleID:   moduleID,
		Operation:  op,
		CreatedAt:  time.Now(),
		Reversible: true,
	}

	if snapshot := m.registry.Snapshot(moduleID); snapshot != nil {
		rp.Snapshot = snapshot
		rp.Version = snapshot.Version
	}

	dir := m.moduleDir(moduleID)
	exists, err := m.files.Exists(dir)
	if err != nil {
		return nil, err
	}
	if exists {
		rp.BackupPath = filepath.Join(m.cfg.BackupRoot, rp.ID)
		if err := m.files.Copy(dir, rp.BackupPath); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	m.points[rp.ID] = rp
	m.mu.Unlock()

	res.RollbackPointID = rp.ID
	m.emit(EventRollbackPoint, op, moduleID, "rollback point "+rp.ID)
	return rp, nil
}

// Point returns a rollback point by id.
func (m *Manager) Point(id string) (*RollbackPoint, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rp, ok := m.points[id]
	return rp, ok
}

// Points returns all rollback points, oldest first.
func (m *Manager) Points() []*RollbackPoint {
	m.mu.Lock()
	defer m.mu.Unlock()

	points := make([]*RollbackPoint, 0, len(m.points))
	for _, rp := range m.points {
		points = append(points, rp)
	}
	sort.Slice(points, func(i, j int) bool {
		return points[i].CreatedAt.Before(points[j].CreatedAt)
	})
	return points
}

// dependentsOf lists registered module ids whose current version declares a
// non-optional dependency on id.
func (m *Manager) dependentsOf(id string) []string {
	var dependents []string
	for _, otherID := range m.registry.IDs() {
		if otherID == id {
			continue
		}
		other, err := m.registry.Current(otherID)
		if err != nil {
			continue
		}
		for _, dep := range other.Dependencies {
			if dep.ModuleID == id && !dep.Optional {
				dependents = append(dependents, otherID)
				break
			}
		}
	}
	return dependents
}

// finish stamps duration, journals the outcome, and emits the final event.
func (m *Manager) finish(res *Result, start time.Time) *Result {
	res.Duration = time.Since(start)

	if err := m.appendJournal(res); err != nil {
		res.warnf("journal append failed: %v", err)
	}

	if res.Success {
		m.emit(EventCompleted, res.Operation, res.ModuleID, "")
	} else {
		m.emit(EventFailed, res.Operation, res.ModuleID, firstOrEmpty(res.Errors))
	}
	m.logger.Info("operation finished",
		"op", res.Operation, "module", res.ModuleID, "success", res.Success, "duration", res.Duration)
	return res
}

func firstOrEmpty(errs []string) string {
	if len(errs) == 0 {
		return ""
	}
	return errs[0]
}

func newResult(op OpKind, moduleID string, version semver.SemVer) *Result {
	return &Result{Operation: op, ModuleID: moduleID, Version: version, Success: true}
}

// runHooks executes a hook command list; any failure is fatal for pre-hooks
// and the caller decides for post-hooks.
func (m *Manager) runHooks(ctx context.Context, op OpKind, moduleID string, commands []string, workDir string) error {
	if len(commands) == 0 {
		return nil
	}
	for _, command := range commands {
		m.emit(EventHook, op, moduleID, command)
	}
	_, err := m.hooks.RunAll(ctx, commands, workDir)
	return err
}

// hookWorkDir picks the directory hook commands run in: the installed module
// tree when present, otherwise the module's source path, otherwise the
// install root.
func (m *Manager) hookWorkDir(mod *dnamod.Module) string {
	dir := m.moduleDir(mod.ID)
	if exists, err := m.files.Exists(dir); err == nil && exists {
		return dir
	}
	if mod.Path != "" {
		return mod.Path
	}
	return m.cfg.InstallRoot
}
