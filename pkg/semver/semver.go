// SPDX-License-Identifier: MPL-2.0

// Package semver implements semantic version parsing, comparison, and
// constraint resolution for DNA module version selection.
//
// Constraints support the operators = ^ ~ > >= < <= and space-separated
// conjunctions (e.g., ">=1.0.0 <2.0.0"). Prerelease versions sort below
// their release counterparts.
package semver

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Version represents a parsed semantic version.
type Version struct {
	Major      int
	Minor      int
	Patch      int
	Prerelease string
	Original   string
}

// Constraint represents a parsed version constraint. A constraint is a
// conjunction of one or more terms; a version satisfies the constraint only
// when it matches every term.
type Constraint struct {
	terms []constraintTerm
	// Original is the original constraint string.
	Original string
}

// constraintTerm is a single operator/version pair within a constraint.
type constraintTerm struct {
	// op is the comparison operator (=, ^, ~, >, >=, <, <=).
	op string
	// version is the version to compare against.
	version *Version
}

// semverRegex matches semantic version strings.
var semverRegex = regexp.MustCompile(`^v?(\d+)(?:\.(\d+))?(?:\.(\d+))?(?:-([0-9A-Za-z\-\.]+))?(?:\+([0-9A-Za-z\-\.]+))?$`)

// constraintRegex matches a single version constraint term.
var constraintRegex = regexp.MustCompile(`^([~^]|>=|<=|>|<|=)?v?(\d+(?:\.\d+)?(?:\.\d+)?(?:-[0-9A-Za-z\-\.]+)?)$`)

// Parse parses a version string into a Version struct.
func Parse(s string) (*Version, error) {
	matches := semverRegex.FindStringSubmatch(strings.TrimSpace(s))
	if matches == nil {
		return nil, fmt.Errorf("invalid version format: %s", s)
	}

	v := &Version{Original: s}

	var err error
	v.Major, err = strconv.Atoi(matches[1])
	if err != nil {
		return nil, fmt.Errorf("invalid major version: %w", err)
	}

	if matches[2] != "" {
		v.Minor, err = strconv.Atoi(matches[2])
		if err != nil {
			return nil, fmt.Errorf("invalid minor version: %w", err)
		}
	}

	if matches[3] != "" {
		v.Patch, err = strconv.Atoi(matches[3])
		if err != nil {
			return nil, fmt.Errorf("invalid patch version: %w", err)
		}
	}

	if matches[4] != "" {
		v.Prerelease = matches[4]
	}

	return v, nil
}

// String returns the version as a string.
func (v *Version) String() string {
	return v.Original
}

// IsPrerelease reports whether the version carries a prerelease label.
func (v *Version) IsPrerelease() bool {
	return v.Prerelease != ""
}

// Compare compares two versions.
// Returns -1 if v < other, 0 if v == other, 1 if v > other.
func (v *Version) Compare(other *Version) int {
	if v.Major != other.Major {
		if v.Major < other.Major {
			return -1
		}
		return 1
	}

	if v.Minor != other.Minor {
		if v.Minor < other.Minor {
			return -1
		}
		return 1
	}

	if v.Patch != other.Patch {
		if v.Patch < other.Patch {
			return -1
		}
		return 1
	}

	// Prerelease versions have lower precedence than releases.
	if v.Prerelease == "" && other.Prerelease != "" {
		return 1
	}
	if v.Prerelease != "" && other.Prerelease == "" {
		return -1
	}
	if v.Prerelease != other.Prerelease {
		if v.Prerelease < other.Prerelease {
			return -1
		}
		return 1
	}

	return 0
}

// ParseConstraint parses a version constraint string. Multiple space-separated
// terms form a conjunction: every term must match.
func ParseConstraint(s string) (*Constraint, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty constraint")
	}

	c := &Constraint{Original: s}
	for _, raw := range strings.Fields(s) {
		matches := constraintRegex.FindStringSubmatch(raw)
		if matches == nil {
			return nil, fmt.Errorf("invalid constraint format: %s", raw)
		}

		op := matches[1]
		if op == "" {
			op = "="
		}

		version, err := Parse(matches[2])
		if err != nil {
			return nil, fmt.Errorf("invalid version in constraint: %w", err)
		}

		c.terms = append(c.terms, constraintTerm{op: op, version: version})
	}

	return c, nil
}

// Matches checks if a version satisfies every term of the constraint.
func (c *Constraint) Matches(v *Version) bool {
	for _, term := range c.terms {
		if !term.matches(v) {
			return false
		}
	}
	return true
}

func (t constraintTerm) matches(v *Version) bool {
	switch t.op {
	case "=":
		return v.Compare(t.version) == 0

	case "^":
		// Caret: allows changes that do not modify the left-most non-zero digit
		// ^1.2.3 := >=1.2.3 <2.0.0
		// ^0.2.3 := >=0.2.3 <0.3.0
		// ^0.0.3 := >=0.0.3 <0.0.4
		if v.Compare(t.version) < 0 {
			return false
		}
		if t.version.Major != 0 {
			return v.Major == t.version.Major
		}
		if t.version.Minor != 0 {
			return v.Major == 0 && v.Minor == t.version.Minor
		}
		return v.Major == 0 && v.Minor == 0 && v.Patch == t.version.Patch

	case "~":
		// Tilde: allows patch-level changes
		// ~1.2.3 := >=1.2.3 <1.3.0
		if v.Compare(t.version) < 0 {
			return false
		}
		return v.Major == t.version.Major && v.Minor == t.version.Minor

	case ">":
		return v.Compare(t.version) > 0

	case ">=":
		return v.Compare(t.version) >= 0

	case "<":
		return v.Compare(t.version) < 0

	case "<=":
		return v.Compare(t.version) <= 0

	default:
		return false
	}
}

// Satisfies reports whether version satisfies the constraint string.
// Invalid inputs report false.
func Satisfies(version, constraint string) bool {
	v, err := Parse(version)
	if err != nil {
		return false
	}
	c, err := ParseConstraint(constraint)
	if err != nil {
		return false
	}
	return c.Matches(v)
}

// MaxSatisfying finds the highest version satisfying the constraint.
func MaxSatisfying(constraintStr string, availableVersions []string) (string, error) {
	matching, err := satisfying(constraintStr, availableVersions)
	if err != nil {
		return "", err
	}
	return matching[len(matching)-1].Original, nil
}

// MinSatisfying finds the lowest version satisfying the constraint.
func MinSatisfying(constraintStr string, availableVersions []string) (string, error) {
	matching, err := satisfying(constraintStr, availableVersions)
	if err != nil {
		return "", err
	}
	return matching[0].Original, nil
}

// satisfying returns the matching versions sorted ascending, or an error when
// nothing is available or matches.
func satisfying(constraintStr string, availableVersions []string) ([]*Version, error) {
	constraint, err := ParseConstraint(constraintStr)
	if err != nil {
		return nil, err
	}

	var versions []*Version
	for _, vs := range availableVersions {
		v, err := Parse(vs)
		if err != nil {
			continue // Skip invalid versions
		}
		versions = append(versions, v)
	}

	if len(versions) == 0 {
		return nil, fmt.Errorf("no valid versions available")
	}

	var matching []*Version
	for _, v := range versions {
		if constraint.Matches(v) {
			matching = append(matching, v)
		}
	}

	if len(matching) == 0 {
		return nil, fmt.Errorf("no version matches constraint %q (available: %v)", constraintStr, availableVersions)
	}

	sort.Slice(matching, func(i, j int) bool {
		return matching[i].Compare(matching[j]) < 0
	})

	return matching, nil
}

// IsValidVersion checks if a string is a valid semantic version.
func IsValidVersion(s string) bool {
	_, err := Parse(s)
	return err == nil
}

// IsValidConstraint checks if a string is a valid version constraint.
func IsValidConstraint(s string) bool {
	_, err := ParseConstraint(s)
	return err == nil
}

// Sort sorts a slice of version strings in descending order (newest first).
// Invalid versions are dropped.
func Sort(versions []string) []string {
	var parsed []*Version
	for _, vs := range versions {
		v, err := Parse(vs)
		if err != nil {
			continue
		}
		parsed = append(parsed, v)
	}

	sort.Slice(parsed, func(i, j int) bool {
		return parsed[i].Compare(parsed[j]) > 0
	})

	result := make([]string, len(parsed))
	for i, v := range parsed {
		result[i] = v.Original
	}

	return result
}

// Filter filters a slice of version strings by a constraint.
func Filter(constraintStr string, versions []string) ([]string, error) {
	constraint, err := ParseConstraint(constraintStr)
	if err != nil {
		return nil, err
	}

	var matching []string
	for _, vs := range versions {
		v, err := Parse(vs)
		if err != nil {
			continue
		}
		if constraint.Matches(v) {
			matching = append(matching, vs)
		}
	}

	return matching, nil
}
