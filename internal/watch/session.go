// SPDX-License-Identifier: MPL-2.0

package watch

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"dnaforge/internal/fscap"
	"dnaforge/pkg/composer"

	"github.com/google/uuid"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

const (
	// maxSnapshots bounds the per-module snapshot ring.
	maxSnapshots = 10
	// maxHistory bounds the reload and error histories.
	maxHistory = 50
)

type (
	// ActiveComposition pairs a composition spec with its latest result so
	// reloads can recompute it.
	ActiveComposition struct {
		Spec   composer.Composition
		Result *composer.Result
	}

	// Session is the live state of one hot-reload run: preserved module
	// state, per-module snapshot rings, composition cache, and bounded
	// histories. One session exists per running watcher.
	Session struct {
		ID           string
		StartedAt    time.Time
		WatchedPaths []string

		mu            sync.Mutex
		moduleStates  map[string]any
		snapshots     map[string][]any
		compositions  map[string]*ActiveComposition
		reloadHistory []ReloadRecord
		errorHistory  []string
		droppedCount  int
	}

	// SessionStats is a point-in-time summary of session activity.
	SessionStats struct {
		Reloads        int
		Errors         int
		DroppedBatches int
		TrackedModules int
	}

	// stateFile is the on-disk session schema. Module states and snapshots
	// are encoded as [id, value] pairs.
	stateFile struct {
		SessionID      string            `json:"sessionId"`
		Timestamp      time.Time         `json:"timestamp"`
		ModuleStates   [][2]any          `json:"moduleStates"`
		StateSnapshots [][2]any          `json:"stateSnapshots"`
		ReloadHistory  []ReloadRecord    `json:"reloadHistory"`
	}
)

// NewSession creates a session with a fresh id for the given watch roots.
func NewSession(paths []string) *Session {
	return &Session{
		ID:           uuid.NewString(),
		StartedAt:    time.Now(),
		WatchedPaths: append([]string(nil), paths...),
		moduleStates: make(map[string]any),
		snapshots:    make(map[string][]any),
		compositions: make(map[string]*ActiveComposition),
	}
}

// deepCopy round-trips a value through JSON so later mutations of the
// original cannot leak into preserved state.
func deepCopy(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("snapshot state: %w", err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("snapshot state: %w", err)
	}
	return out, nil
}

// SetModuleState records the current in-memory state for a module.
func (s *Session) SetModuleState(moduleID string, state any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.moduleStates[moduleID] = state
}

// ModuleState returns the current preserved state for a module.
func (s *Session) ModuleState(moduleID string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.moduleStates[moduleID]
	return state, ok
}

// Snapshot deep-copies the module's current state into its snapshot ring.
// The ring keeps the most recent maxSnapshots entries. Modules with no
// recorded state are a no-op.
func (s *Session) Snapshot(moduleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.moduleStates[moduleID]
	if !ok {
		return nil
	}
	copied, err := deepCopy(state)
	if err != nil {
		return err
	}

	ring := append(s.snapshots[moduleID], copied)
	if len(ring) > maxSnapshots {
		ring = ring[len(ring)-maxSnapshots:]
	}
	s.snapshots[moduleID] = ring
	return nil
}

// RestoreLatest reapplies the most recent snapshot as the module's current
// state. The snapshot stays in the ring so repeated restores are stable.
func (s *Session) RestoreLatest(moduleID string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ring := s.snapshots[moduleID]
	if len(ring) == 0 {
		return nil, false
	}
	latest := ring[len(ring)-1]
	s.moduleStates[moduleID] = latest
	return latest, true
}

// SetComposition caches a composition spec with its latest result under the
// spec's name.
func (s *Session) SetComposition(spec composer.Composition, result *composer.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.compositions[spec.Name] = &ActiveComposition{Spec: spec, Result: result}
}

// Composition returns a cached composition by name.
func (s *Session) Composition(name string) (*ActiveComposition, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	active, ok := s.compositions[name]
	return active, ok
}

// CompositionNames returns the names of all cached compositions.
func (s *Session) CompositionNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := maps.Keys(s.compositions)
	slices.Sort(names)
	return names
}

// InvalidateCompositions drops every cached composition result while keeping
// the specs so they can be recomputed.
func (s *Session) InvalidateCompositions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, active := range s.compositions {
		active.Result = nil
	}
}

// RecordReload appends a record to the bounded reload history.
func (s *Session) RecordReload(rec ReloadRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reloadHistory = append(s.reloadHistory, rec)
	if len(s.reloadHistory) > maxHistory {
		s.reloadHistory = s.reloadHistory[len(s.reloadHistory)-maxHistory:]
	}
}

// RecordError appends a message to the bounded error history.
func (s *Session) RecordError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorHistory = append(s.errorHistory, msg)
	if len(s.errorHistory) > maxHistory {
		s.errorHistory = s.errorHistory[len(s.errorHistory)-maxHistory:]
	}
}

// MarkDropped counts a batch skipped by the reentrancy guard.
func (s *Session) MarkDropped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.droppedCount++
}

// ReloadHistory returns a copy of the reload history, oldest first.
func (s *Session) ReloadHistory() []ReloadRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ReloadRecord, len(s.reloadHistory))
	copy(out, s.reloadHistory)
	return out
}

// Errors returns a copy of the error history, oldest first.
func (s *Session) Errors() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.errorHistory))
	copy(out, s.errorHistory)
	return out
}

// Stats summarizes session activity.
func (s *Session) Stats() SessionStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionStats{
		Reloads:        len(s.reloadHistory),
		Errors:         len(s.errorHistory),
		DroppedBatches: s.droppedCount,
		TrackedModules: len(s.moduleStates),
	}
}

// Save persists the session to a JSON state file through the filesystem
// capability. Cached compositions are deliberately excluded; they are
// recomputed on the next run.
func (s *Session) Save(fs fscap.Capability, path string) error {
	s.mu.Lock()
	file := stateFile{
		SessionID:     s.ID,
		Timestamp:     time.Now(),
		ReloadHistory: append([]ReloadRecord(nil), s.reloadHistory...),
	}
	for id, state := range s.moduleStates {
		file.ModuleStates = append(file.ModuleStates, [2]any{id, state})
	}
	for id, ring := range s.snapshots {
		file.StateSnapshots = append(file.StateSnapshots, [2]any{id, ring})
	}
	s.mu.Unlock()

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session state: %w", err)
	}
	if err := fs.Write(path, data); err != nil {
		return fmt.Errorf("write session state: %w", err)
	}
	return nil
}

// Restore loads a previously saved state file into the session, merging its
// module states, snapshots, and reload history. A missing file is not an
// error; the session simply starts fresh.
func (s *Session) Restore(fs fscap.Capability, path string) error {
	exists, err := fs.Exists(path)
	if err != nil {
		return fmt.Errorf("read session state: %w", err)
	}
	if !exists {
		return nil
	}

	data, err := fs.Read(path)
	if err != nil {
		return fmt.Errorf("read session state: %w", err)
	}

	var file stateFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("decode session state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, pair := range file.ModuleStates {
		id, ok := pair[0].(string)
		if !ok {
			continue
		}
		s.moduleStates[id] = pair[1]
	}
	for _, pair := range file.StateSnapshots {
		id, ok := pair[0].(string)
		if !ok {
			continue
		}
		if ring, ok := pair[1].([]any); ok {
			if len(ring) > maxSnapshots {
				ring = ring[len(ring)-maxSnapshots:]
			}
			s.snapshots[id] = ring
		}
	}
	s.reloadHistory = append(s.reloadHistory, file.ReloadHistory...)
	if len(s.reloadHistory) > maxHistory {
		s.reloadHistory = s.reloadHistory[len(s.reloadHistory)-maxHistory:]
	}
	return nil
}
