// SPDX-License-Identifier: MPL-2.0

package lifecycle

import (
	"fmt"
	"time"
)

// Cleanup evicts rollback points older than the cutoff, then trims the
// remainder down to the retained count, oldest first. Backups are deleted
// through the filesystem capability and their sizes reported as freed bytes;
// delete failures are collected but do not stop the pass.
func (m *Manager) Cleanup(olderThan time.Duration, keep int) *CleanupResult {
	result := &CleanupResult{}
	cutoff := time.Now().Add(-olderThan)

	points := m.Points()

	var evict, retained []*RollbackPoint
	for _, rp := range points {
		if !rp.CreatedAt.After(cutoff) {
			evict = append(evict, rp)
		} else {
			retained = append(retained, rp)
		}
	}
	if keep > 0 && len(retained) > keep {
		overflow := len(retained) - keep
		evict = append(evict, retained[:overflow]...)
	}

	for _, rp := range evict {
		if rp.BackupPath != "" {
			size, err := m.files.Size(rp.BackupPath)
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("size %s: %v", rp.BackupPath, err))
			} else {
				result.FreedBytes += size
			}
			if err := m.files.Remove(rp.BackupPath); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("delete %s: %v", rp.BackupPath, err))
				continue
			}
		}

		m.mu.Lock()
		delete(m.points, rp.ID)
		m.mu.Unlock()
		result.Removed++
	}

	m.logger.Debug("cleanup finished", "removed", result.Removed, "freed_bytes", result.FreedBytes)
	return result
}
