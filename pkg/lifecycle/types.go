// SPDX-License-Identifier: MPL-2.0

package lifecycle

import (
	"errors"
	"fmt"
	"time"

	"dnaforge/pkg/dnamod"
	"dnaforge/pkg/semver"
)

// ErrOperationInFlight is returned when an operation is requested for a
// module that already has one running.
var ErrOperationInFlight = errors.New("operation already in flight for module")

// OpKind names a lifecycle operation.
type OpKind string

const (
	OpInstall  OpKind = "install"
	OpUpdate   OpKind = "update"
	OpRemove   OpKind = "remove"
	OpRollback OpKind = "rollback"
)

// EventType classifies progress events emitted during operations.
type EventType string

const (
	EventStarted       EventType = "started"
	EventRollbackPoint EventType = "rollback_point"
	EventHook          EventType = "hook"
	EventCompleted     EventType = "completed"
	EventFailed        EventType = "failed"
)

type (
	// Options modify how a lifecycle operation runs.
	Options struct {
		// Force bypasses precondition checks (already-installed, dependents,
		// breaking migrations).
		Force bool
		// DryRun short-circuits before any mutation and reports success with
		// a warning.
		DryRun bool
		// RemoveDependents cascades a remove into each dependent module.
		RemoveDependents bool
		// AutoMigrate permits breaking migration steps during update.
		AutoMigrate bool
	}

	// RollbackPoint records the pre-operation state needed to undo a
	// lifecycle mutation.
	RollbackPoint struct {
		ID        string        `json:"id"`
		ModuleID  string        `json:"module_id"`
		Version   semver.SemVer `json:"version,omitempty"`
		Operation OpKind        `json:"operation"`
		CreatedAt time.Time     `json:"created_at"`
		// BackupPath is the directory tree copied before the mutation; empty
		// when the module had no files on disk.
		BackupPath string `json:"backup_path,omitempty"`
		// Reversible is false when the original state cannot be restored.
		Reversible bool `json:"reversible"`

		// Snapshot is the module value as registered before the operation,
		// used to restore the registry on rollback.
		Snapshot *dnamod.Module `json:"-"`
	}

	// Migration is the planned step sequence for an update between two
	// versions.
	Migration struct {
		From  semver.SemVer          `json:"from"`
		To    semver.SemVer          `json:"to"`
		Steps []dnamod.MigrationStep `json:"steps"`
		// Breaking is true when any step is breaking; such a migration is
		// refused unless auto-migration or force is requested.
		Breaking bool `json:"breaking"`
	}

	// Result is the outcome of one lifecycle operation. Operations always
	// return a Result; expected failures are recorded in Errors rather than
	// returned as Go errors.
	Result struct {
		Success   bool          `json:"success"`
		Operation OpKind        `json:"operation"`
		ModuleID  string        `json:"module_id"`
		Version   semver.SemVer `json:"version,omitempty"`
		Duration  time.Duration `json:"duration"`
		Errors    []string      `json:"errors,omitempty"`
		Warnings  []string      `json:"warnings,omitempty"`
		// RollbackPointID names the point created for this operation, when one was.
		RollbackPointID string     `json:"rollback_point_id,omitempty"`
		Migration       *Migration `json:"migration,omitempty"`
	}

	// CleanupResult reports a rollback-point eviction pass.
	CleanupResult struct {
		Removed    int      `json:"removed"`
		FreedBytes int64    `json:"freed_bytes"`
		Errors     []string `json:"errors,omitempty"`
	}

	// Event is one entry of the ordered progress stream.
	Event struct {
		Type      EventType `json:"type"`
		Operation OpKind    `json:"operation"`
		ModuleID  string    `json:"module_id"`
		Message   string    `json:"message,omitempty"`
		Time      time.Time `json:"time"`
	}
)

func (r *Result) fail(format string, args ...any) *Result {
	r.Success = false
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	return r
}

func (r *Result) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}
