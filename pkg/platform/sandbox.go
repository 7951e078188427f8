// SPDX-License-Identifier: MPL-2.0

package platform

import (
	"os"
	"sync"
)

// SandboxType identifies the application sandbox the process runs in, if any.
type SandboxType string

const (
	// SandboxNone indicates no sandbox environment detected.
	SandboxNone SandboxType = ""
	// SandboxFlatpak indicates a Flatpak sandbox environment.
	SandboxFlatpak SandboxType = "flatpak"
	// SandboxSnap indicates a Snap sandbox environment.
	SandboxSnap SandboxType = "snap"
)

// Detection runs once per process; the sandbox cannot change at runtime.
//
// INVARIANT: detectSandboxFrom MUST NOT panic. Unlike sync.Once (where Do
// treats a panic as "returned" and silently no-ops on subsequent calls),
// sync.OnceValue propagates the panic on every call.
var detectOnce = sync.OnceValue(func() SandboxType {
	return detectSandboxFrom(os.Getenv, statFile)
})

// DetectSandbox returns the sandbox the current process is running in.
// The result is cached after the first call.
//
// Detection methods:
//   - Flatpak: existence of /.flatpak-info
//   - Snap: the SNAP_NAME environment variable
func DetectSandbox() SandboxType {
	return detectOnce()
}

// IsInSandbox reports whether the current process runs inside a sandbox.
func IsInSandbox() bool {
	return DetectSandbox() != SandboxNone
}

// detectSandboxFrom performs sandbox detection using the provided lookup
// functions. Accepting getenv and stat as parameters lets tests inject
// fixtures without mutating process-wide state.
func detectSandboxFrom(getenv func(string) string, stat func(string) error) SandboxType {
	// Flatpak takes precedence; /.flatpak-info is present in every
	// Flatpak sandbox.
	if err := stat("/.flatpak-info"); err == nil {
		return SandboxFlatpak
	}

	// SNAP_NAME is set for all snaps.
	if getenv("SNAP_NAME") != "" {
		return SandboxSnap
	}

	return SandboxNone
}

// statFile adapts os.Stat to the func(string) error signature used by
// detectSandboxFrom.
func statFile(path string) error {
	_, err := os.Stat(path)
	return err
}
