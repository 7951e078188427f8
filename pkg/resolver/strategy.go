// SPDX-License-Identifier: MPL-2.0

package resolver

import (
	"fmt"

	"dnaforge/pkg/dnamod"
	"dnaforge/pkg/semver"
)

// candidate picks the module version for id under the given constraint and
// policy. The candidate set is filtered by constraint satisfaction, stability
// policy flags, and target-framework support before the strategy reduces it
// to a single version.
func (r *Resolver) candidate(id string, rng semver.Range, rctx Context) (*dnamod.Module, error) {
	if preferred, ok := rctx.Preferred[id]; ok {
		rng = preferred
	}

	versions := r.registry.Versions(id)
	if len(versions) == 0 {
		return nil, fmt.Errorf("module %s is not registered", id)
	}

	var candidates []*dnamod.Module
	for _, vs := range versions {
		if rng != "" && !semver.Satisfies(vs, rng.String()) {
			continue
		}
		m, err := r.registry.Version(id, semver.SemVer(vs))
		if err != nil {
			continue
		}
		if m.Experimental && !rctx.AllowExperimental {
			continue
		}
		if m.Deprecated && !rctx.AllowDeprecated {
			continue
		}
		if rctx.Framework != "" && !m.SupportsFramework(rctx.Framework) {
			continue
		}
		candidates = append(candidates, m)
	}

	if len(candidates) == 0 {
		if rng != "" {
			return nil, fmt.Errorf("no version of %s satisfies %q under the current policy", id, rng)
		}
		return nil, fmt.Errorf("no version of %s is eligible under the current policy", id)
	}

	return reduce(candidates, rctx.Strategy, rctx.Framework), nil
}

// reduce applies the strategy to a non-empty candidate set. Candidates arrive
// sorted descending by version (registry.Versions order).
func reduce(candidates []*dnamod.Module, strategy Strategy, framework string) *dnamod.Module {
	switch strategy {
	case StrategyMinimal:
		return candidates[len(candidates)-1]

	case StrategyStable, StrategyPerformance:
		for _, m := range candidates {
			if !isPrerelease(m) {
				return m
			}
		}
		return candidates[0]

	case StrategyCompatible:
		best := candidates[0]
		bestScore := score(best, framework)
		for _, m := range candidates[1:] {
			if s := score(m, framework); s > bestScore {
				best, bestScore = m, s
			}
		}
		return best

	default: // LATEST
		return candidates[0]
	}
}

// score rates a candidate for the COMPATIBLE strategy. Ties favor the higher
// version because candidates are scanned in descending order.
func score(m *dnamod.Module, framework string) int {
	s := 100
	if m.Experimental {
		s -= 20
	}
	if m.Deprecated {
		s -= 30
	}
	if isPrerelease(m) {
		s -= 10
	}
	switch m.CompatWith(framework) {
	case dnamod.CompatFull:
		s += 20
	case dnamod.CompatPartial:
		s += 10
	}
	return s
}

func isPrerelease(m *dnamod.Module) bool {
	v, err := semver.Parse(m.Version.String())
	if err != nil {
		return false
	}
	return v.IsPrerelease()
}

// higherVersion returns the module with the greater semver of the pair.
func higherVersion(a, b *dnamod.Module) *dnamod.Module {
	va, errA := semver.Parse(a.Version.String())
	vb, errB := semver.Parse(b.Version.String())
	if errA != nil || errB != nil {
		return a
	}
	if vb.Compare(va) > 0 {
		return b
	}
	return a
}
