// SPDX-License-Identifier: MPL-2.0

// Package registry holds versioned DNA module metadata and the pairwise
// compatibility matrix consumed by the resolver and composition engine.
//
// The registry is the only shared mutable state in the engine; it is mutated
// exclusively by Register and the lifecycle manager's remove/restore path,
// and every mutation is mutex-guarded.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"dnaforge/pkg/dnamod"
	"dnaforge/pkg/semver"
)

// ErrModuleNotFound is returned when a module id (or id/version pair) is not
// registered.
var ErrModuleNotFound = errors.New("module not found")

type (
	// Stats carries per-entry performance counters.
	Stats struct {
		// Registrations counts register calls for this id (including idempotent re-registers).
		Registrations int64
		// Lookups counts successful reads of this entry.
		Lookups int64
		// LastRegister is how long the most recent register call took,
		// including the compatibility matrix recompute.
		LastRegister time.Duration
	}

	// entry is one module id with all registered versions.
	entry struct {
		versions map[semver.SemVer]*dnamod.Module
		// current points at the highest stable version seen.
		current semver.SemVer
		// compat maps every other registered id to a compatibility level.
		compat map[string]dnamod.CompatLevel
		stats  Stats
	}

	// Registry is the versioned module store.
	Registry struct {
		mu      sync.RWMutex
		entries map[string]*entry
		logger  *log.Logger
	}
)

// New creates an empty registry. A nil logger falls back to the default.
func New(logger *log.Logger) *Registry {
	if logger == nil {
		logger = log.Default()
	}
	return &Registry{
		entries: make(map[string]*entry),
		logger:  logger.With("component", "registry"),
	}
}

// Register upserts the (id, version) entry. Registering an identical pair is
// idempotent. If the version is a newer stable release, the entry's "current"
// pointer advances. The compatibility entry between this module and every
// other registered module is recomputed in O(n).
func (r *Registry) Register(m *dnamod.Module) error {
	if m == nil {
		return fmt.Errorf("register: nil module")
	}
	if m.ID == "" {
		return fmt.Errorf("register: empty module id")
	}
	if ok, errs := m.Version.IsValid(); !ok {
		return fmt.Errorf("register %s: %w", m.ID, errs[0])
	}

	start := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[m.ID]
	if !ok {
		e = &entry{
			versions: make(map[semver.SemVer]*dnamod.Module),
			compat:   make(map[string]dnamod.CompatLevel),
		}
		r.entries[m.ID] = e
	}

	e.versions[m.Version] = m
	e.stats.Registrations++

	if r.shouldAdvanceCurrent(e, m.Version) {
		e.current = m.Version
	}

	r.recomputeCompat(m.ID)

	e.stats.LastRegister = time.Since(start)
	r.logger.Debug("registered module", "id", m.ID, "version", m.Version, "current", e.current)
	return nil
}

// shouldAdvanceCurrent decides whether version becomes the entry's current
// pointer: always for the first registration, then only for stable releases
// that outrank the existing pointer (or replace a prerelease pointer).
func (r *Registry) shouldAdvanceCurrent(e *entry, version semver.SemVer) bool {
	if e.current == "" {
		return true
	}

	next, err := semver.Parse(version.String())
	if err != nil {
		return false
	}
	cur, err := semver.Parse(e.current.String())
	if err != nil {
		return true
	}

	if next.IsPrerelease() {
		return false
	}
	if cur.IsPrerelease() {
		return true
	}
	return next.Compare(cur) > 0
}

// recomputeCompat refreshes the compatibility classification between id and
// every other registered module, in both directions. Classification follows
// the current versions:
//   - NONE when either side declares an explicit conflict against the other,
//     or the two share no supported framework
//   - FULL when a direct dependency relation exists between them
//   - PARTIAL otherwise
func (r *Registry) recomputeCompat(id string) {
	self := r.currentLocked(id)
	if self == nil {
		return
	}

	for otherID, otherEntry := range r.entries {
		if otherID == id {
			continue
		}
		other := r.currentLocked(otherID)
		if other == nil {
			continue
		}
		level := classify(self, other)
		r.entries[id].compat[otherID] = level
		otherEntry.compat[id] = level
	}
}

// classify computes the compatibility level between two modules.
func classify(a, b *dnamod.Module) dnamod.CompatLevel {
	if a.ConflictWith(b.ID) != nil || b.ConflictWith(a.ID) != nil {
		return dnamod.CompatNone
	}
	if !sharesFramework(a, b) {
		return dnamod.CompatNone
	}
	if a.DependsOn(b.ID) || b.DependsOn(a.ID) {
		return dnamod.CompatFull
	}
	return dnamod.CompatPartial
}

// sharesFramework reports whether the two modules both support at least one
// common framework. Modules declaring no framework records are treated as
// framework-agnostic and share with everything.
func sharesFramework(a, b *dnamod.Module) bool {
	if len(a.Frameworks) == 0 || len(b.Frameworks) == 0 {
		return true
	}
	for _, fa := range a.Frameworks {
		if !fa.Supported {
			continue
		}
		for _, fb := range b.Frameworks {
			if fb.Supported && fa.Framework == fb.Framework {
				return true
			}
		}
	}
	return false
}

// currentLocked returns the current version of id. Caller holds r.mu.
func (r *Registry) currentLocked(id string) *dnamod.Module {
	e, ok := r.entries[id]
	if !ok || e.current == "" {
		return nil
	}
	return e.versions[e.current]
}

// Current returns the entry's current module version.
func (r *Registry) Current(id string) (*dnamod.Module, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrModuleNotFound, id)
	}
	m := e.versions[e.current]
	if m == nil {
		return nil, fmt.Errorf("%w: %s", ErrModuleNotFound, id)
	}
	e.stats.Lookups++
	return m, nil
}

// Version returns a specific registered version of a module.
func (r *Registry) Version(id string, version semver.SemVer) (*dnamod.Module, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrModuleNotFound, id)
	}
	m, ok := e.versions[version]
	if !ok {
		return nil, fmt.Errorf("%w: %s@%s", ErrModuleNotFound, id, version)
	}
	e.stats.Lookups++
	return m, nil
}

// Versions returns all registered version strings for id, sorted descending.
func (r *Registry) Versions(id string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return nil
	}
	versions := make([]string, 0, len(e.versions))
	for v := range e.versions {
		versions = append(versions, v.String())
	}
	return semver.Sort(versions)
}

// Has reports whether any version of id is registered.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return ok && len(e.versions) > 0
}

// IDs returns all registered module ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of registered module ids.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// ByCategory returns the current version of every module in the category.
func (r *Registry) ByCategory(category string) []*dnamod.Module {
	return r.filter(func(m *dnamod.Module) bool {
		return m.Category == category
	})
}

// ByFramework returns the current version of every module that supports the
// framework.
func (r *Registry) ByFramework(framework string) []*dnamod.Module {
	return r.filter(func(m *dnamod.Module) bool {
		return m.SupportsFramework(framework)
	})
}

// Search returns modules whose id, name, description, or category contains
// the keyword (case-insensitive).
func (r *Registry) Search(keyword string) []*dnamod.Module {
	needle := strings.ToLower(keyword)
	return r.filter(func(m *dnamod.Module) bool {
		return strings.Contains(strings.ToLower(m.ID), needle) ||
			strings.Contains(strings.ToLower(m.Name), needle) ||
			strings.Contains(strings.ToLower(m.Description), needle) ||
			strings.Contains(strings.ToLower(m.Category), needle)
	})
}

// filter applies a predicate over the current version of every entry,
// returning matches sorted by id for deterministic output.
func (r *Registry) filter(pred func(*dnamod.Module) bool) []*dnamod.Module {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matches []*dnamod.Module
	for id := range r.entries {
		m := r.currentLocked(id)
		if m != nil && pred(m) {
			matches = append(matches, m)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].ID < matches[j].ID })
	return matches
}

// Compatibility returns the computed compatibility level between two module
// ids. Unregistered pairs report NONE.
func (r *Registry) Compatibility(a, b string) dnamod.CompatLevel {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[a]
	if !ok {
		return dnamod.CompatNone
	}
	level, ok := e.compat[b]
	if !ok {
		return dnamod.CompatNone
	}
	return level
}

// StatsFor returns the performance counters for a module id.
func (r *Registry) StatsFor(id string) (Stats, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return Stats{}, false
	}
	return e.stats, true
}

// Remove deletes a module id entirely. It is reserved for the lifecycle
// manager; nothing else removes registry entries.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[id]; !ok {
		return fmt.Errorf("%w: %s", ErrModuleNotFound, id)
	}
	delete(r.entries, id)
	for _, e := range r.entries {
		delete(e.compat, id)
	}
	r.logger.Debug("removed module", "id", id)
	return nil
}

// RemoveVersion deletes one registered version of a module and re-derives
// the current pointer from the remaining versions. Removing the last version
// drops the entry entirely. Reserved for the lifecycle manager's rollback
// path.
func (r *Registry) RemoveVersion(id string, version semver.SemVer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrModuleNotFound, id)
	}
	if _, ok := e.versions[version]; !ok {
		return fmt.Errorf("%w: %s@%s", ErrModuleNotFound, id, version)
	}
	delete(e.versions, version)

	if len(e.versions) == 0 {
		delete(r.entries, id)
		for _, other := range r.entries {
			delete(other.compat, id)
		}
		return nil
	}

	remaining := make([]string, 0, len(e.versions))
	for v := range e.versions {
		remaining = append(remaining, v.String())
	}
	sorted := semver.Sort(remaining)

	// Highest stable wins; a prerelease holds the pointer only when nothing
	// stable remains.
	e.current = ""
	for _, vs := range sorted {
		if v, err := semver.Parse(vs); err == nil && !v.IsPrerelease() {
			e.current = semver.SemVer(vs)
			break
		}
	}
	if e.current == "" && len(sorted) > 0 {
		e.current = semver.SemVer(sorted[0])
	}

	r.recomputeCompat(id)
	return nil
}

// Snapshot returns the current module for id without touching counters, for
// rollback bookkeeping. Returns nil when absent.
func (r *Registry) Snapshot(id string) *dnamod.Module {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.currentLocked(id)
}
