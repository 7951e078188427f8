// SPDX-License-Identifier: MPL-2.0

package semver

import (
	"errors"
	"slices"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantErr    bool
		major      int
		minor      int
		patch      int
		prerelease string
	}{
		{name: "full version", input: "1.2.3", major: 1, minor: 2, patch: 3},
		{name: "v prefix", input: "v2.0.1", major: 2, patch: 1},
		{name: "prerelease", input: "1.0.0-alpha.1", major: 1, prerelease: "alpha.1"},
		{name: "build metadata ignored", input: "1.0.0+build.5", major: 1},
		{name: "major only", input: "3", major: 3},
		{name: "major minor", input: "1.4", major: 1, minor: 4},
		{name: "garbage", input: "not-a-version", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Parse(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Parse(%q) expected error, got %+v", tt.input, v)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) unexpected error: %v", tt.input, err)
			}
			if v.Major != tt.major || v.Minor != tt.minor || v.Patch != tt.patch || v.Prerelease != tt.prerelease {
				t.Errorf("Parse(%q) = %d.%d.%d-%s, want %d.%d.%d-%s",
					tt.input, v.Major, v.Minor, v.Patch, v.Prerelease, tt.major, tt.minor, tt.patch, tt.prerelease)
			}
		})
	}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
		want int
	}{
		{name: "equal", a: "1.0.0", b: "1.0.0", want: 0},
		{name: "major", a: "2.0.0", b: "1.9.9", want: 1},
		{name: "minor", a: "1.2.0", b: "1.3.0", want: -1},
		{name: "patch", a: "1.0.2", b: "1.0.1", want: 1},
		{name: "release beats prerelease", a: "1.0.0", b: "1.0.0-rc.1", want: 1},
		{name: "prerelease below release", a: "1.0.0-alpha", b: "1.0.0", want: -1},
		{name: "prerelease ordering", a: "1.0.0-alpha", b: "1.0.0-beta", want: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := Parse(tt.a)
			if err != nil {
				t.Fatalf("Parse(%q): %v", tt.a, err)
			}
			b, err := Parse(tt.b)
			if err != nil {
				t.Fatalf("Parse(%q): %v", tt.b, err)
			}
			if got := a.Compare(b); got != tt.want {
				t.Errorf("Compare(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestConstraintMatches(t *testing.T) {
	tests := []struct {
		name       string
		constraint string
		version    string
		want       bool
	}{
		{name: "exact match", constraint: "1.2.3", version: "1.2.3", want: true},
		{name: "exact mismatch", constraint: "1.2.3", version: "1.2.4", want: false},
		{name: "caret within major", constraint: "^1.2.0", version: "1.9.9", want: true},
		{name: "caret next major", constraint: "^1.2.0", version: "2.0.0", want: false},
		{name: "caret zero major", constraint: "^0.2.3", version: "0.2.9", want: true},
		{name: "caret zero major minor bump", constraint: "^0.2.3", version: "0.3.0", want: false},
		{name: "tilde patch", constraint: "~1.2.3", version: "1.2.9", want: true},
		{name: "tilde minor bump", constraint: "~1.2.3", version: "1.3.0", want: false},
		{name: "gte", constraint: ">=1.0.0", version: "1.0.0", want: true},
		{name: "lt", constraint: "<2.0.0", version: "2.0.0", want: false},
		{name: "conjunction inside", constraint: ">=1.0.0 <2.0.0", version: "1.5.0", want: true},
		{name: "conjunction outside", constraint: ">=1.0.0 <2.0.0", version: "2.1.0", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Satisfies(tt.version, tt.constraint); got != tt.want {
				t.Errorf("Satisfies(%q, %q) = %v, want %v", tt.version, tt.constraint, got, tt.want)
			}
		})
	}
}

func TestMaxMinSatisfying(t *testing.T) {
	available := []string{"1.0.0", "1.2.0", "1.5.3", "2.0.0", "2.1.0-beta.1", "bogus"}

	max, err := MaxSatisfying("^1.0.0", available)
	if err != nil {
		t.Fatalf("MaxSatisfying: %v", err)
	}
	if max != "1.5.3" {
		t.Errorf("MaxSatisfying(^1.0.0) = %q, want 1.5.3", max)
	}

	min, err := MinSatisfying("^1.0.0", available)
	if err != nil {
		t.Fatalf("MinSatisfying: %v", err)
	}
	if min != "1.0.0" {
		t.Errorf("MinSatisfying(^1.0.0) = %q, want 1.0.0", min)
	}

	if _, err := MaxSatisfying("^3.0.0", available); err == nil {
		t.Error("MaxSatisfying(^3.0.0) expected error for unmatchable constraint")
	}
}

func TestSortAndFilter(t *testing.T) {
	sorted := Sort([]string{"1.0.0", "0.9.0", "2.0.0", "1.0.0-rc.1", "junk"})
	want := []string{"2.0.0", "1.0.0", "1.0.0-rc.1", "0.9.0"}
	if !slices.Equal(sorted, want) {
		t.Errorf("Sort() = %v, want %v", sorted, want)
	}

	filtered, err := Filter("~1.0.0", []string{"1.0.0", "1.0.5", "1.1.0"})
	if err != nil {
		t.Fatalf("Filter: %v", err)
	}
	if !slices.Equal(filtered, []string{"1.0.0", "1.0.5"}) {
		t.Errorf("Filter(~1.0.0) = %v", filtered)
	}
}

func TestTypedStrings(t *testing.T) {
	if ok, _ := SemVer("1.2.3").IsValid(); !ok {
		t.Error("SemVer(1.2.3).IsValid() = false, want true")
	}
	if ok, errs := SemVer("nope").IsValid(); ok || len(errs) != 1 {
		t.Errorf("SemVer(nope).IsValid() = %v, %v", ok, errs)
	} else if !errors.Is(errs[0], ErrInvalidSemVer) {
		t.Errorf("expected ErrInvalidSemVer, got %v", errs[0])
	}

	if ok, _ := Range("^1.0.0").IsValid(); !ok {
		t.Error("Range(^1.0.0).IsValid() = false, want true")
	}
	if ok, errs := Range("@@").IsValid(); ok || !errors.Is(errs[0], ErrInvalidRange) {
		t.Errorf("Range(@@).IsValid() = %v, %v", ok, errs)
	}
}
