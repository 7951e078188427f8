// SPDX-License-Identifier: MPL-2.0

package resolver

import (
	"fmt"
	"time"

	"dnaforge/pkg/dnamod"
	"dnaforge/pkg/semver"
)

// Strategy selects among multiple candidate versions satisfying a constraint.
type Strategy string

const (
	// StrategyLatest picks the highest semver.
	StrategyLatest Strategy = "LATEST"
	// StrategyStable picks the highest non-prerelease, falling back to latest.
	StrategyStable Strategy = "STABLE"
	// StrategyMinimal picks the lowest version still satisfying the constraint.
	StrategyMinimal Strategy = "MINIMAL"
	// StrategyCompatible picks the highest-scoring candidate, weighing
	// stability flags and framework compatibility.
	StrategyCompatible Strategy = "COMPATIBLE"
	// StrategyPerformance is an alias for STABLE, reserved as an extension
	// point for a cost-model-driven selection.
	StrategyPerformance Strategy = "PERFORMANCE"
)

// ConflictKind classifies a dependency conflict.
type ConflictKind string

const (
	// KindVersion marks unsatisfiable or contradictory version requirements.
	KindVersion ConflictKind = "version"
	// KindIncompatible marks an explicit declared conflict between modules.
	KindIncompatible ConflictKind = "incompatible"
	// KindCircular marks a dependency cycle.
	KindCircular ConflictKind = "circular"
	// KindPlatform marks missing target-framework support.
	KindPlatform ConflictKind = "platform"
)

type (
	// Context carries the policy for one resolution call. It is read-only
	// during resolution.
	Context struct {
		// Framework is the target framework; empty means framework-agnostic.
		Framework string
		Strategy  Strategy
		// AllowExperimental admits experimental module versions as candidates.
		AllowExperimental bool
		// AllowDeprecated admits deprecated module versions as candidates.
		AllowDeprecated bool
		// AllowConflicts downgrades warning-severity declared conflicts to
		// warnings instead of blocking the resolution.
		AllowConflicts bool
		// MaxDepth bounds the dependency graph depth; 0 means unbounded.
		MaxDepth int
		// Exclude lists module ids skipped entirely during the walk.
		Exclude map[string]bool
		// Preferred overrides the requester's constraint for a module id.
		Preferred map[string]semver.Range
	}

	// Conflict is one structured resolution conflict.
	Conflict struct {
		Kind     ConflictKind    `json:"kind"`
		ModuleID string          `json:"module_id"`
		Detail   string          `json:"detail"`
		Severity dnamod.Severity `json:"severity"`
	}

	// Node is one entry in the resolution arena. Nodes exist only for the
	// duration of a single resolution call.
	Node struct {
		ModuleID string
		// Requested is the constraint that first brought the module in.
		Requested semver.Range
		Resolved  *dnamod.Module
		Depth     int
		// Parents lists the module ids that require this node.
		Parents []string
		// Children lists the dependency ids reachable from this node.
		Children []string
	}

	// Metrics records per-call resolution measurements.
	Metrics struct {
		Duration     time.Duration `json:"duration"`
		NodesVisited int           `json:"nodes_visited"`
		// MaxDepth is the deepest dependency level reached during the walk.
		MaxDepth int  `json:"max_depth"`
		CacheHit bool `json:"cache_hit"`
	}

	// Result is the outcome of one resolution call.
	Result struct {
		// Success is true iff no error-severity conflicts were found.
		Success bool `json:"success"`
		// Resolved maps module id to the selected module version.
		Resolved map[string]*dnamod.Module `json:"resolved"`
		// InstallOrder is a dependency-respecting ordering of Resolved.
		// When Success is false because of a cycle, it holds only the
		// acyclic prefix plus the cycle participants in arbitrary order.
		InstallOrder []string   `json:"install_order"`
		Conflicts    []Conflict `json:"conflicts"`
		Warnings     []string   `json:"warnings"`
		Metrics      Metrics    `json:"metrics"`
	}
)

func (c Conflict) String() string {
	return fmt.Sprintf("%s conflict on %s: %s", c.Kind, c.ModuleID, c.Detail)
}

// Blocking reports whether the conflict prevents a successful resolution.
func (c Conflict) Blocking() bool { return c.Severity == dnamod.SeverityError }

// HasBlockingConflicts reports whether any error-severity conflict exists.
func (r *Result) HasBlockingConflicts() bool {
	for _, c := range r.Conflicts {
		if c.Blocking() {
			return true
		}
	}
	return false
}
