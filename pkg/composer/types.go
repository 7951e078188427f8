// SPDX-License-Identifier: MPL-2.0

package composer

import (
	"fmt"
	"time"

	"dnaforge/pkg/dnamod"
	"dnaforge/pkg/resolver"
)

// ErrorCode identifies a composition failure mode.
type ErrorCode string

const (
	CodeModuleNotFound        ErrorCode = "MODULE_NOT_FOUND"
	CodeFrameworkIncompatible ErrorCode = "FRAMEWORK_INCOMPATIBLE"
	CodeModuleConflict        ErrorCode = "MODULE_CONFLICT"
	CodeConfigInvalid         ErrorCode = "CONFIG_INVALID"
	CodeComplexityExceeded    ErrorCode = "COMPLEXITY_EXCEEDED"
	CodeModuleCountExceeded   ErrorCode = "MODULE_COUNT_EXCEEDED"
	// CodeInternal wraps any unexpected failure into one critical entry.
	CodeInternal ErrorCode = "INTERNAL"
)

// Warning codes for threshold breaches that do not invalidate a composition.
const (
	WarnSlowComposition = "SLOW_COMPOSITION"
	WarnDepthExceeded   = "DEPTH_EXCEEDED"
	WarnMemoryPressure  = "MEMORY_PRESSURE"
)

type (
	// Composition is a requested combination of modules to validate and
	// materialize together.
	Composition struct {
		Name      string `json:"name"`
		Framework string `json:"framework"`
		// TemplateType is the project template flavor (e.g., "app", "library").
		TemplateType string `json:"template_type,omitempty"`
		// Modules lists the requested root module ids.
		Modules []string `json:"modules"`
		// GlobalConfig applies to every module, over its declared defaults.
		GlobalConfig map[string]any `json:"global_config,omitempty"`
		// ModuleConfig holds per-module overrides applied last.
		ModuleConfig map[string]map[string]any `json:"module_config,omitempty"`
	}

	// Error is one structured composition error.
	Error struct {
		Code     ErrorCode `json:"code"`
		ModuleID string    `json:"module_id,omitempty"`
		Message  string    `json:"message"`
		// Critical errors abort the remaining pipeline phases.
		Critical bool `json:"critical,omitempty"`
	}

	// Warning is one non-blocking composition finding.
	Warning struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}

	// Metrics records per-composition measurements.
	Metrics struct {
		Duration time.Duration `json:"duration"`
		// Complexity is the heuristic composition cost, computed from module,
		// dependency, and conflict counts with configurable weights.
		Complexity  int    `json:"complexity"`
		ModuleCount int    `json:"module_count"`
		HeapBytes   uint64 `json:"heap_bytes"`
	}

	// Result is the outcome of one composition call.
	Result struct {
		// Valid is true iff no error-severity entries exist across all phases.
		Valid bool `json:"valid"`
		// Modules holds the resolved modules in install order.
		Modules []*dnamod.Module `json:"modules"`
		// InstallOrder lists resolved module ids, dependencies first.
		InstallOrder []string `json:"install_order"`
		// MergedConfig maps module id to its merged, validated configuration.
		MergedConfig map[string]map[string]any `json:"merged_config"`
		Errors       []Error                   `json:"errors"`
		Warnings     []Warning                 `json:"warnings"`
		Metrics      Metrics                   `json:"metrics"`

		// Resolution is the underlying resolver result, kept for diagnostics
		// and the optimizer. Nil when resolution was never reached.
		Resolution *resolver.Result `json:"-"`
	}
)

func (e Error) Error() string {
	if e.ModuleID != "" {
		return fmt.Sprintf("%s [%s]: %s", e.Code, e.ModuleID, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// HasError reports whether any error with the given code was recorded.
func (r *Result) HasError(code ErrorCode) bool {
	for _, e := range r.Errors {
		if e.Code == code {
			return true
		}
	}
	return false
}

func (r *Result) addError(e Error) { r.Errors = append(r.Errors, e) }

func (r *Result) warn(code, format string, args ...any) {
	r.Warnings = append(r.Warnings, Warning{Code: code, Message: fmt.Sprintf(format, args...)})
}
