// SPDX-License-Identifier: MPL-2.0

package watch

import (
	"path/filepath"
	"strings"
)

// Classify maps a path (relative, slash-normalized or OS-native) to a change
// category by heuristic pattern match. Order matters: the module manifest
// name wins over the generic config heuristics, and dependency/lock files win
// over plain module sources.
func Classify(path string) Category {
	normalized := filepath.ToSlash(strings.ToLower(path))
	base := filepath.Base(normalized)

	switch {
	case base == "dnamod.cue" || strings.HasSuffix(normalized, ".dnamod/module.cue"):
		return CategoryModule
	case base == "config.cue" || base == "dnaforge.cue" || strings.Contains(base, "config"):
		return CategoryConfig
	case strings.Contains(base, "lock") || strings.Contains(base, "dependencies"):
		return CategoryDependency
	case strings.Contains(normalized, "templates/") || strings.Contains(normalized, "/template/"):
		return CategoryTemplate
	case strings.Contains(normalized, ".dnamod/"):
		return CategoryModule
	default:
		return CategoryUnknown
	}
}
