// SPDX-License-Identifier: MPL-2.0

// Package composer validates a requested module set against a target
// framework, merges per-module configuration, enforces safety and
// performance budgets, and drives per-module file generation in dependency
// order.
package composer

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"dnaforge/pkg/dnamod"
	"dnaforge/pkg/registry"
	"dnaforge/pkg/resolver"
)

// Thresholds are the configurable performance budgets checked after a
// composition completes. The constants are heuristics, not a cost model;
// hosts tune them through the configuration layer.
type Thresholds struct {
	// MaxDuration triggers a SLOW_COMPOSITION warning when exceeded.
	MaxDuration time.Duration
	// MaxHeapBytes triggers a MEMORY_PRESSURE warning when exceeded.
	MaxHeapBytes uint64
	// MaxComplexity fails the composition when the heuristic score exceeds it.
	MaxComplexity int
	// MaxModules fails the composition when more modules resolve.
	MaxModules int
	// MaxDepth bounds the dependency graph and warns when reached.
	MaxDepth int

	// Complexity weights per resolved module, dependency edge, and declared
	// conflict.
	ModuleWeight     int
	DependencyWeight int
	ConflictWeight   int
}

// DefaultThresholds returns the stock performance budgets.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxDuration:      5 * time.Second,
		MaxHeapBytes:     512 << 20,
		MaxComplexity:    500,
		MaxModules:       25,
		MaxDepth:         10,
		ModuleWeight:     10,
		DependencyWeight: 5,
		ConflictWeight:   3,
	}
}

type (
	// Options configure an Engine.
	Options struct {
		Thresholds        Thresholds
		Strategy          resolver.Strategy
		AllowExperimental bool
		AllowDeprecated   bool
		// RedundancyExemptCategory is the one category where the optimizer
		// tolerates multiple modules.
		RedundancyExemptCategory string
	}

	// Engine is the composition engine.
	Engine struct {
		registry *registry.Registry
		resolver *resolver.Resolver
		logger   *log.Logger
		opts     Options
	}
)

// DefaultOptions returns engine options with stock thresholds and the
// STABLE resolution strategy.
func DefaultOptions() Options {
	return Options{
		Thresholds:               DefaultThresholds(),
		Strategy:                 resolver.StrategyStable,
		RedundancyExemptCategory: "ui",
	}
}

// New creates a composition engine. A nil logger falls back to the default.
func New(reg *registry.Registry, res *resolver.Resolver, logger *log.Logger, opts Options) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	if opts.Thresholds == (Thresholds{}) {
		opts.Thresholds = DefaultThresholds()
	}
	return &Engine{
		registry: reg,
		resolver: res,
		logger:   logger.With("component", "composer"),
		opts:     opts,
	}
}

// Compose validates and resolves a composition. Expected failure modes are
// structured into the Result; unexpected panics are recovered and converted
// into a single critical error entry.
func (e *Engine) Compose(comp Composition) (result *Result) {
	start := time.Now()
	result = &Result{MergedConfig: make(map[string]map[string]any)}

	defer func() {
		if r := recover(); r != nil {
			result.addError(Error{
				Code:     CodeInternal,
				Message:  fmt.Sprintf("unexpected failure: %v", r),
				Critical: true,
			})
			result.Valid = false
		}
	}()

	// Phase 1: structural validation.
	if !e.validateStructure(comp, result) {
		result.Metrics.Duration = time.Since(start)
		return result
	}

	if len(comp.Modules) == 0 {
		result.Valid = true
		result.Metrics.Duration = time.Since(start)
		return result
	}

	// Phase 2: dependency resolution.
	resolution := e.resolver.Resolve(comp.Modules, resolver.Context{
		Framework:         comp.Framework,
		Strategy:          e.opts.Strategy,
		AllowExperimental: e.opts.AllowExperimental,
		AllowDeprecated:   e.opts.AllowDeprecated,
		MaxDepth:          e.opts.Thresholds.MaxDepth,
	})
	result.Resolution = resolution
	e.adoptResolution(resolution, result)

	// Phase 3: safety checks.
	e.checkSafety(comp, result)

	// Phase 4: configuration merge and validation.
	e.mergeConfigs(comp, result)

	// Phase 5: performance validation.
	result.Metrics.Duration = time.Since(start)
	e.checkThresholds(resolution, result)

	result.Valid = len(result.Errors) == 0
	e.logger.Debug("composition complete",
		"name", comp.Name, "valid", result.Valid,
		"modules", result.Metrics.ModuleCount, "complexity", result.Metrics.Complexity)
	return result
}

// validateStructure checks that every referenced module id exists in the
// registry. Missing ids are critical and stop the pipeline.
func (e *Engine) validateStructure(comp Composition, result *Result) bool {
	ok := true
	for _, id := range comp.Modules {
		if id == "" {
			result.addError(Error{Code: CodeModuleNotFound, Message: "empty module reference", Critical: true})
			ok = false
			continue
		}
		if !e.registry.Has(id) {
			result.addError(Error{
				Code:     CodeModuleNotFound,
				ModuleID: id,
				Message:  fmt.Sprintf("module %q is not registered", id),
				Critical: true,
			})
			ok = false
		}
	}
	return ok
}

// adoptResolution copies the resolver outcome into the composition result.
func (e *Engine) adoptResolution(resolution *resolver.Result, result *Result) {
	result.InstallOrder = resolution.InstallOrder
	for _, id := range resolution.InstallOrder {
		if m, ok := resolution.Resolved[id]; ok {
			result.Modules = append(result.Modules, m)
		}
	}
	result.Metrics.ModuleCount = len(resolution.Resolved)

	for _, c := range resolution.Conflicts {
		if !c.Blocking() {
			result.warn("RESOLUTION", "%s", c.String())
			continue
		}
		code := CodeModuleConflict
		if c.Kind == resolver.KindPlatform {
			code = CodeFrameworkIncompatible
		}
		result.addError(Error{Code: code, ModuleID: c.ModuleID, Message: c.Detail})
	}
	for _, w := range resolution.Warnings {
		result.warn("RESOLUTION", "%s", w)
	}
}

// checkSafety re-asserts framework support and pairwise explicit conflicts
// over the resolved set.
func (e *Engine) checkSafety(comp Composition, result *Result) {
	for _, m := range result.Modules {
		if comp.Framework != "" && !m.SupportsFramework(comp.Framework) && !hasFrameworkError(result, m.ID) {
			result.addError(Error{
				Code:     CodeFrameworkIncompatible,
				ModuleID: m.ID,
				Message:  fmt.Sprintf("%s does not support framework %s", m.ID, comp.Framework),
			})
		}
	}

	for i, a := range result.Modules {
		for _, b := range result.Modules[i+1:] {
			for _, pair := range [][2]string{{a.ID, b.ID}, {b.ID, a.ID}} {
				from, against := pair[0], pair[1]
				declared := result.Resolution.Resolved[from].ConflictWith(against)
				if declared == nil {
					continue
				}
				msg := fmt.Sprintf("%s conflicts with %s: %s", from, against, declared.Reason)
				if declared.Severity == dnamod.SeverityError {
					if !hasConflictError(result, from, against) {
						result.addError(Error{Code: CodeModuleConflict, ModuleID: from, Message: msg})
					}
				} else if !hasConflictError(result, from, against) && !hasConflictWarning(result, from, against) {
					result.warn(string(CodeModuleConflict), "%s", msg)
				}
			}
		}
	}
}

// hasFrameworkError reports whether a FRAMEWORK_INCOMPATIBLE error for the
// module is already recorded, so resolution and safety phases do not
// double-report it.
func hasFrameworkError(result *Result, moduleID string) bool {
	for _, err := range result.Errors {
		if err.Code == CodeFrameworkIncompatible && err.ModuleID == moduleID {
			return true
		}
	}
	return false
}

// hasConflictError reports whether a MODULE_CONFLICT mentioning both ids is
// already recorded, so phases 2 and 3 do not double-report the same pair.
func hasConflictError(result *Result, a, b string) bool {
	for _, err := range result.Errors {
		if err.Code != CodeModuleConflict {
			continue
		}
		if (err.ModuleID == a || err.ModuleID == b) &&
			strings.Contains(err.Message, a) && strings.Contains(err.Message, b) {
			return true
		}
	}
	return false
}

// hasConflictWarning reports whether a warning mentioning both ids is already
// recorded, so the resolver sweep and the safety pass do not double-report a
// warning-severity declared conflict.
func hasConflictWarning(result *Result, a, b string) bool {
	for _, w := range result.Warnings {
		if strings.Contains(w.Message, a) && strings.Contains(w.Message, b) {
			return true
		}
	}
	return false
}

// mergeConfigs merges each module's configuration layers and runs the
// contract checks. Validator messages surface verbatim.
func (e *Engine) mergeConfigs(comp Composition, result *Result) {
	for _, m := range result.Modules {
		merged := m.Config.MergedConfig(comp.GlobalConfig, comp.ModuleConfig[m.ID])
		result.MergedConfig[m.ID] = merged

		for _, problem := range m.Config.CheckConfig(merged) {
			result.addError(Error{Code: CodeConfigInvalid, ModuleID: m.ID, Message: problem})
		}
	}
}

// checkThresholds applies the performance budgets. Duration, depth, and
// memory breaches warn; complexity and module-count overages are errors.
func (e *Engine) checkThresholds(resolution *resolver.Result, result *Result) {
	th := e.opts.Thresholds

	result.Metrics.Complexity = e.Complexity(resolution)

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	result.Metrics.HeapBytes = mem.HeapAlloc

	if th.MaxDuration > 0 && result.Metrics.Duration > th.MaxDuration {
		result.warn(WarnSlowComposition, "composition took %s (budget %s)", result.Metrics.Duration, th.MaxDuration)
	}
	if th.MaxHeapBytes > 0 && result.Metrics.HeapBytes > th.MaxHeapBytes {
		result.warn(WarnMemoryPressure, "heap usage %d bytes exceeds budget %d", result.Metrics.HeapBytes, th.MaxHeapBytes)
	}
	if th.MaxDepth > 0 && resolution.Metrics.MaxDepth >= th.MaxDepth {
		result.warn(WarnDepthExceeded, "dependency graph reached depth %d (budget %d)", resolution.Metrics.MaxDepth, th.MaxDepth)
	}
	if th.MaxComplexity > 0 && result.Metrics.Complexity > th.MaxComplexity {
		result.addError(Error{
			Code:    CodeComplexityExceeded,
			Message: fmt.Sprintf("complexity %d exceeds budget %d", result.Metrics.Complexity, th.MaxComplexity),
		})
	}
	if th.MaxModules > 0 && result.Metrics.ModuleCount > th.MaxModules {
		result.addError(Error{
			Code:    CodeModuleCountExceeded,
			Message: fmt.Sprintf("%d modules exceed budget %d", result.Metrics.ModuleCount, th.MaxModules),
		})
	}
}

// Complexity computes the heuristic composition cost over a resolution:
// weighted counts of modules, declared dependencies, and declared conflicts.
func (e *Engine) Complexity(resolution *resolver.Result) int {
	th := e.opts.Thresholds
	var deps, conflicts int
	for _, m := range resolution.Resolved {
		deps += len(m.Dependencies)
		conflicts += len(m.Conflicts)
	}
	return th.ModuleWeight*len(resolution.Resolved) + th.DependencyWeight*deps + th.ConflictWeight*conflicts
}
