// SPDX-License-Identifier: MPL-2.0

package watch

import "time"

const (
	// CategoryModule covers module manifests and module source files.
	CategoryModule Category = "module"
	// CategoryConfig covers engine and composition configuration files.
	CategoryConfig Category = "config"
	// CategoryDependency covers lock and dependency declaration files.
	CategoryDependency Category = "dependency"
	// CategoryTemplate covers template trees.
	CategoryTemplate Category = "template"
	// CategoryUnknown is the fallback for unclassifiable paths.
	CategoryUnknown Category = "unknown"

	// ChangeAdd is a file or directory creation.
	ChangeAdd ChangeType = "add"
	// ChangeModify is a content change.
	ChangeModify ChangeType = "change"
	// ChangeRemove is a deletion or rename-away.
	ChangeRemove ChangeType = "remove"

	// Module reload strategies.
	ModuleReloadFull        = "full"
	ModuleReloadIncremental = "incremental"
	ModuleReloadSmart       = "smart"

	// Config reload strategies.
	ConfigReloadAll   = "reload"
	ConfigReloadPatch = "update"
	ConfigReloadMerge = "merge"

	// Dependency reload strategies.
	DependencyReloadCascade   = "cascade"
	DependencyReloadSelective = "selective"
	DependencyReloadMinimal   = "minimal"

	// Template reload strategies.
	TemplateRegenerate = "regenerate"
	TemplatePatch      = "patch"
	TemplateSkip       = "skip"
)

type (
	// Category classifies a filesystem change for debouncing and strategy
	// selection. Each category debounces independently.
	Category string

	// ChangeType distinguishes creations, modifications, and removals.
	ChangeType string

	// ChangeEvent is one classified filesystem event.
	ChangeEvent struct {
		Path     string     `json:"path"`
		Category Category   `json:"category"`
		Type     ChangeType `json:"type"`
		Time     time.Time  `json:"time"`
	}

	// Batch is the set of coalesced events handed to the reload handler
	// when a category's debounce window closes.
	Batch struct {
		Category Category
		Events   []ChangeEvent
	}

	// ReloadRecord is one entry of the bounded reload history.
	ReloadRecord struct {
		Time     time.Time `json:"time"`
		Category Category  `json:"category"`
		Strategy string    `json:"strategy"`
		Paths    []string  `json:"paths"`
		Duration int64     `json:"durationMs"`
		Error    string    `json:"error,omitempty"`
	}
)

// debounceDefaults maps each category to its default quiet window.
// Config and dependency changes tend to arrive in editor-save bursts and
// invalidate more downstream state, so they wait longer.
var debounceDefaults = map[Category]time.Duration{
	CategoryModule:     300 * time.Millisecond,
	CategoryConfig:     500 * time.Millisecond,
	CategoryDependency: time.Second,
	CategoryTemplate:   300 * time.Millisecond,
	CategoryUnknown:    500 * time.Millisecond,
}
