// SPDX-License-Identifier: MPL-2.0

// Package resolver builds a dependency graph for a requested set of root
// modules, selects concrete versions per strategy, detects cycles and
// conflicts, and computes a dependency-respecting install order.
//
// Resolution state lives in a per-call node arena walked iteratively with an
// explicit stack, so graph depth never translates into call-stack depth.
// Results are cached by a canonical encoding of the inputs.
package resolver

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"dnaforge/internal/dag"
	"dnaforge/pkg/dnamod"
	"dnaforge/pkg/registry"
	"dnaforge/pkg/semver"
)

// Resolver resolves module dependency graphs against a registry.
type Resolver struct {
	registry *registry.Registry
	logger   *log.Logger
	cache    *resultCache
}

// New creates a resolver backed by the given registry. A nil logger falls
// back to the default.
func New(reg *registry.Registry, logger *log.Logger) *Resolver {
	if logger == nil {
		logger = log.Default()
	}
	return &Resolver{
		registry: reg,
		logger:   logger.With("component", "resolver"),
		cache:    newResultCache(DefaultCacheCapacity),
	}
}

// PurgeCache drops every cached resolution result. The hot-reload pipeline
// calls this after registry mutations.
func (r *Resolver) PurgeCache() { r.cache.purge() }

// frame is one unit of pending work on the explicit walk stack. An exit
// frame unwinds cycle-detection state when a node's subtree is done.
type frame struct {
	id     string
	rng    semver.Range
	parent string
	depth  int
	exit   bool
}

// Resolve resolves the root module set under the given context. It never
// returns an error for expected failure modes; all of those are structured
// into the Result.
func (r *Resolver) Resolve(rootIDs []string, rctx Context) *Result {
	start := time.Now()

	key := cacheKey(rootIDs, rctx)
	if cached, ok := r.cache.get(key); ok {
		hit := *cached
		hit.Metrics.CacheHit = true
		return &hit
	}

	res := &Result{Resolved: make(map[string]*dnamod.Module)}
	arena := make(map[string]*Node)

	stack := make([]frame, 0, len(rootIDs)*2)
	for i := len(rootIDs) - 1; i >= 0; i-- {
		stack = append(stack, frame{id: rootIDs[i]})
	}

	// onPath and path track the ancestry of the node currently being
	// expanded, for cycle detection and rendering.
	onPath := make(map[string]bool)
	var path []string

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if f.exit {
			delete(onPath, f.id)
			path = path[:len(path)-1]
			continue
		}
		if rctx.Exclude[f.id] {
			continue
		}

		res.Metrics.NodesVisited++
		if f.depth > res.Metrics.MaxDepth {
			res.Metrics.MaxDepth = f.depth
		}

		if onPath[f.id] {
			res.Conflicts = append(res.Conflicts, Conflict{
				Kind:     KindCircular,
				ModuleID: f.id,
				Detail:   fmt.Sprintf("dependency cycle: %s", renderCycle(path, f.id)),
				Severity: dnamod.SeverityError,
			})
			continue
		}

		if node, ok := arena[f.id]; ok {
			stack = r.reconcile(res, node, f, rctx, stack)
			continue
		}

		if rctx.MaxDepth > 0 && f.depth > rctx.MaxDepth {
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("dependency %s exceeds max depth %d and was not expanded", f.id, rctx.MaxDepth))
			continue
		}

		mod, err := r.candidate(f.id, f.rng, rctx)
		if err != nil {
			res.Conflicts = append(res.Conflicts, Conflict{
				Kind:     KindVersion,
				ModuleID: f.id,
				Detail:   err.Error(),
				Severity: dnamod.SeverityError,
			})
			continue
		}

		node := &Node{
			ModuleID:  f.id,
			Requested: f.rng,
			Resolved:  mod,
			Depth:     f.depth,
		}
		if f.parent != "" {
			node.Parents = append(node.Parents, f.parent)
		}
		arena[f.id] = node
		res.Resolved[f.id] = mod

		onPath[f.id] = true
		path = append(path, f.id)
		stack = append(stack, frame{id: f.id, exit: true})
		stack = pushDependencies(stack, node, mod, f.depth+1)
	}

	r.sweepDeclaredConflicts(res, rctx)
	r.validateFrameworkSupport(res, rctx)
	r.computeInstallOrder(res)

	res.Success = !res.HasBlockingConflicts()
	res.Metrics.Duration = time.Since(start)

	r.logger.Debug("resolution complete",
		"roots", rootIDs, "success", res.Success,
		"resolved", len(res.Resolved), "conflicts", len(res.Conflicts))

	r.cache.put(key, res)
	return res
}

// pushDependencies schedules a module's dependencies in declaration order
// and records them as arena children.
func pushDependencies(stack []frame, node *Node, mod *dnamod.Module, depth int) []frame {
	deps := mod.Dependencies
	for i := len(deps) - 1; i >= 0; i-- {
		stack = append(stack, frame{
			id:     deps[i].ModuleID,
			rng:    deps[i].Range,
			parent: mod.ID,
			depth:  depth,
		})
	}
	node.Children = node.Children[:0]
	for _, dep := range deps {
		node.Children = append(node.Children, dep.ModuleID)
	}
	return stack
}

// reconcile handles a request for a module that is already resolved. If the
// resolved version satisfies the new constraint, resolution proceeds with a
// warning when the constraints differ. Otherwise LATEST-family strategies
// tie-break to the higher version with a warning, and every other strategy
// records a hard version conflict.
func (r *Resolver) reconcile(res *Result, node *Node, f frame, rctx Context, stack []frame) []frame {
	if f.parent != "" {
		node.Parents = append(node.Parents, f.parent)
	}

	rng := f.rng
	if preferred, ok := rctx.Preferred[f.id]; ok {
		rng = preferred
	}
	if rng == "" {
		return stack
	}

	current := node.Resolved.Version.String()
	if semver.Satisfies(current, rng.String()) {
		if node.Requested != "" && node.Requested != f.rng {
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("module %s resolved at %s satisfies both %q and %q", f.id, current, node.Requested, f.rng))
		}
		return stack
	}

	contender, err := r.candidate(f.id, f.rng, rctx)
	if err != nil {
		res.Conflicts = append(res.Conflicts, Conflict{
			Kind:     KindVersion,
			ModuleID: f.id,
			Detail:   err.Error(),
			Severity: dnamod.SeverityError,
		})
		return stack
	}

	switch rctx.Strategy {
	case StrategyLatest, StrategyStable, StrategyPerformance, "":
		winner := higherVersion(node.Resolved, contender)
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("version conflict for %s: %s vs %s, selected %s",
				f.id, node.Resolved.Version, contender.Version, winner.Version))
		if winner != node.Resolved {
			node.Resolved = winner
			res.Resolved[f.id] = winner
			stack = pushDependencies(stack, node, winner, node.Depth+1)
		}
	default:
		res.Conflicts = append(res.Conflicts, Conflict{
			Kind:     KindVersion,
			ModuleID: f.id,
			Detail: fmt.Sprintf("requirements %q and %q on %s are mutually unsatisfiable",
				node.Requested, f.rng, f.id),
			Severity: dnamod.SeverityError,
		})
	}
	return stack
}

// sweepDeclaredConflicts re-checks every resolved pair for explicit declared
// conflicts in either direction.
func (r *Resolver) sweepDeclaredConflicts(res *Result, rctx Context) {
	ids := sortedIDs(res.Resolved)
	for i, a := range ids {
		for _, b := range ids[i+1:] {
			r.checkDeclared(res, rctx, res.Resolved[a], res.Resolved[b])
			r.checkDeclared(res, rctx, res.Resolved[b], res.Resolved[a])
		}
	}
}

func (r *Resolver) checkDeclared(res *Result, rctx Context, from, against *dnamod.Module) {
	declared := from.ConflictWith(against.ID)
	if declared == nil {
		return
	}

	detail := fmt.Sprintf("%s declares a conflict with %s: %s", from.ID, against.ID, declared.Reason)
	if declared.Resolution != "" {
		detail += " (" + declared.Resolution + ")"
	}

	if declared.Severity == dnamod.SeverityError || !rctx.AllowConflicts {
		res.Conflicts = append(res.Conflicts, Conflict{
			Kind:     KindIncompatible,
			ModuleID: from.ID,
			Detail:   detail,
			Severity: dnamod.SeverityError,
		})
		return
	}
	res.Warnings = append(res.Warnings, detail)
}

// validateFrameworkSupport re-validates target-framework compatibility of
// every resolved module. Candidate filtering already enforces this on the
// main path; reconciliation swaps can bypass it.
func (r *Resolver) validateFrameworkSupport(res *Result, rctx Context) {
	if rctx.Framework == "" {
		return
	}
	for _, id := range sortedIDs(res.Resolved) {
		m := res.Resolved[id]
		if !m.SupportsFramework(rctx.Framework) {
			res.Conflicts = append(res.Conflicts, Conflict{
				Kind:     KindPlatform,
				ModuleID: id,
				Detail:   fmt.Sprintf("%s does not support framework %s", id, rctx.Framework),
				Severity: dnamod.SeverityError,
			})
			continue
		}
		if m.CompatWith(rctx.Framework) == dnamod.CompatPartial {
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("%s has only partial support for framework %s", id, rctx.Framework))
		}
	}
}

// computeInstallOrder runs Kahn's algorithm over non-optional dependency
// edges. A non-empty residual means a cycle escaped the walk; the residual
// is appended so the order stays complete, and the cycle is surfaced as a
// blocking circular conflict rather than trusted silently.
func (r *Resolver) computeInstallOrder(res *Result) {
	g := dag.New()
	for _, id := range sortedIDs(res.Resolved) {
		g.AddNode(id)
	}
	for _, id := range sortedIDs(res.Resolved) {
		for _, dep := range res.Resolved[id].Dependencies {
			if dep.Optional {
				continue
			}
			if _, ok := res.Resolved[dep.ModuleID]; ok {
				g.AddEdge(dep.ModuleID, id)
			}
		}
	}

	order, residual := g.LenientSort()
	res.InstallOrder = append(order, residual...)

	if len(residual) == 0 {
		return
	}
	for _, c := range res.Conflicts {
		if c.Kind == KindCircular {
			return
		}
	}
	res.Conflicts = append(res.Conflicts, Conflict{
		Kind:     KindCircular,
		ModuleID: residual[0],
		Detail:   fmt.Sprintf("dependency cycle among: %s", strings.Join(residual, ", ")),
		Severity: dnamod.SeverityError,
	})
}

// renderCycle renders the dependency path segment that closes on id.
func renderCycle(path []string, id string) string {
	for i, p := range path {
		if p == id {
			return strings.Join(append(append([]string(nil), path[i:]...), id), " -> ")
		}
	}
	return id
}

func sortedIDs(resolved map[string]*dnamod.Module) []string {
	ids := make([]string, 0, len(resolved))
	for id := range resolved {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
