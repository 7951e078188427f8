// SPDX-License-Identifier: MPL-2.0

package composer

import (
	"fmt"

	"dnaforge/pkg/dnamod"
)

type (
	// Suggestion is one optimizer finding.
	Suggestion struct {
		// Kind is "conflict", "redundancy", or "compatibility".
		Kind     string `json:"kind"`
		ModuleID string `json:"module_id"`
		Message  string `json:"message"`
		// Remove marks suggestions the optimized composition acts on.
		Remove bool `json:"remove,omitempty"`
	}

	// Optimization compares a composition against an automatically reduced
	// alternative.
	Optimization struct {
		Suggestions []Suggestion `json:"suggestions"`
		// Optimized is the alternative composition with flagged modules removed.
		Optimized Composition `json:"optimized"`
		// OriginalComplexity and OptimizedComplexity allow a before/after
		// comparison of the heuristic cost.
		OriginalComplexity  int `json:"original_complexity"`
		OptimizedComplexity int `json:"optimized_complexity"`
	}
)

// Optimize analyzes a composition and proposes an alternative: modules
// involved in blocking conflicts are suggested for removal, more than one
// module in the same category (outside the exempt category) is flagged as
// redundant, and partial framework compatibility is surfaced as a warning
// suggestion without removal.
func (e *Engine) Optimize(comp Composition) *Optimization {
	opt := &Optimization{}

	result := e.Compose(comp)
	opt.OriginalComplexity = result.Metrics.Complexity

	remove := make(map[string]bool)

	for _, err := range result.Errors {
		if err.Code != CodeModuleConflict || err.ModuleID == "" || remove[err.ModuleID] {
			continue
		}
		remove[err.ModuleID] = true
		opt.Suggestions = append(opt.Suggestions, Suggestion{
			Kind:     "conflict",
			ModuleID: err.ModuleID,
			Message:  fmt.Sprintf("remove %s to resolve: %s", err.ModuleID, err.Message),
			Remove:   true,
		})
	}

	e.flagRedundancy(comp, remove, opt)
	e.flagPartialSupport(comp, result, opt)

	for _, id := range comp.Modules {
		if !remove[id] {
			opt.Optimized.Modules = append(opt.Optimized.Modules, id)
		}
	}
	opt.Optimized.Name = comp.Name
	opt.Optimized.Framework = comp.Framework
	opt.Optimized.TemplateType = comp.TemplateType
	opt.Optimized.GlobalConfig = comp.GlobalConfig
	opt.Optimized.ModuleConfig = comp.ModuleConfig

	opt.OptimizedComplexity = e.Compose(opt.Optimized).Metrics.Complexity
	return opt
}

// flagRedundancy marks all but the first requested module of each category
// for removal, honoring the exempt category.
func (e *Engine) flagRedundancy(comp Composition, remove map[string]bool, opt *Optimization) {
	firstInCategory := make(map[string]string)
	for _, id := range comp.Modules {
		if remove[id] {
			continue
		}
		m, err := e.registry.Current(id)
		if err != nil || m.Category == "" || m.Category == e.opts.RedundancyExemptCategory {
			continue
		}
		keeper, seen := firstInCategory[m.Category]
		if !seen {
			firstInCategory[m.Category] = id
			continue
		}
		remove[id] = true
		opt.Suggestions = append(opt.Suggestions, Suggestion{
			Kind:     "redundancy",
			ModuleID: id,
			Message:  fmt.Sprintf("%s duplicates category %q already covered by %s", id, m.Category, keeper),
			Remove:   true,
		})
	}
}

// flagPartialSupport surfaces partial framework compatibility findings from
// the composition's warnings as non-removing suggestions.
func (e *Engine) flagPartialSupport(comp Composition, result *Result, opt *Optimization) {
	if comp.Framework == "" || result.Resolution == nil {
		return
	}
	for _, m := range result.Modules {
		sup := m.Support(comp.Framework)
		if sup == nil || !sup.Supported {
			continue
		}
		if sup.Level == dnamod.CompatPartial {
			opt.Suggestions = append(opt.Suggestions, Suggestion{
				Kind:     "compatibility",
				ModuleID: m.ID,
				Message:  fmt.Sprintf("%s has only partial support for %s", m.ID, comp.Framework),
			})
		}
	}
}
