// SPDX-License-Identifier: MPL-2.0

package platform

import (
	"errors"
	"testing"
)

func TestDetectSandboxFrom(t *testing.T) {
	flatpakPresent := func(path string) error {
		if path == "/.flatpak-info" {
			return nil
		}
		return errors.New("not found")
	}
	noFiles := func(string) error { return errors.New("not found") }

	tests := []struct {
		name     string
		getenv   func(string) string
		stat     func(string) error
		expected SandboxType
	}{
		{
			name:     "no sandbox",
			getenv:   func(string) string { return "" },
			stat:     noFiles,
			expected: SandboxNone,
		},
		{
			name: "snap",
			getenv: func(key string) string {
				if key == "SNAP_NAME" {
					return "dnaforge"
				}
				return ""
			},
			stat:     noFiles,
			expected: SandboxSnap,
		},
		{
			name:     "flatpak",
			getenv:   func(string) string { return "" },
			stat:     flatpakPresent,
			expected: SandboxFlatpak,
		},
		{
			name: "flatpak takes precedence over snap",
			getenv: func(key string) string {
				if key == "SNAP_NAME" {
					return "dnaforge"
				}
				return ""
			},
			stat:     flatpakPresent,
			expected: SandboxFlatpak,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := detectSandboxFrom(tt.getenv, tt.stat)
			if result != tt.expected {
				t.Errorf("detectSandboxFrom = %q, want %q", result, tt.expected)
			}
		})
	}
}

func TestIsInSandboxConsistency(t *testing.T) {
	if IsInSandbox() != (DetectSandbox() != SandboxNone) {
		t.Error("IsInSandbox inconsistent with DetectSandbox")
	}
}

func TestSandboxTypeConstants(t *testing.T) {
	types := []SandboxType{SandboxNone, SandboxFlatpak, SandboxSnap}
	seen := make(map[SandboxType]bool)
	for _, st := range types {
		if seen[st] {
			t.Errorf("duplicate SandboxType constant: %q", st)
		}
		seen[st] = true
	}

	// SandboxNone must stay the zero value for boolean-like checks.
	if SandboxNone != "" {
		t.Errorf("SandboxNone should be empty string, got %q", SandboxNone)
	}
}
