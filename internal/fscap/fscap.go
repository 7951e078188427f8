// SPDX-License-Identifier: MPL-2.0

// Package fscap is the filesystem capability consumed by file generation,
// backups, and restore. Engine packages never touch the OS directly; they
// receive a Capability so tests can substitute an in-memory filesystem.
package fscap

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// Capability exposes the narrow set of filesystem operations the engine needs.
type Capability interface {
	Exists(path string) (bool, error)
	Read(path string) ([]byte, error)
	Write(path string, data []byte) error
	Copy(src, dst string) error
	MkdirAll(path string) error
	Remove(path string) error
	List(path string) ([]string, error)
	Size(path string) (int64, error)
}

// aferoCap implements Capability over an afero.Fs.
type aferoCap struct {
	fs afero.Fs
}

// New returns a Capability backed by the given afero filesystem.
func New(afs afero.Fs) Capability {
	return &aferoCap{fs: afs}
}

// NewOS returns a Capability backed by the real OS filesystem.
func NewOS() Capability {
	return &aferoCap{fs: afero.NewOsFs()}
}

// NewMem returns a Capability backed by an in-memory filesystem, for tests.
func NewMem() Capability {
	return &aferoCap{fs: afero.NewMemMapFs()}
}

func (c *aferoCap) Exists(path string) (bool, error) {
	_, err := c.fs.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("stat %s: %w", path, err)
}

func (c *aferoCap) Read(path string) ([]byte, error) {
	data, err := afero.ReadFile(c.fs, path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// Write creates parent directories as needed.
func (c *aferoCap) Write(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := c.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create parent directory for %s: %w", path, err)
		}
	}
	if err := afero.WriteFile(c.fs, path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Copy copies a file or directory tree from src to dst.
func (c *aferoCap) Copy(src, dst string) error {
	info, err := c.fs.Stat(src)
	if err != nil {
		return fmt.Errorf("stat %s: %w", src, err)
	}

	if !info.IsDir() {
		data, err := c.Read(src)
		if err != nil {
			return err
		}
		return c.Write(dst, data)
	}

	return afero.Walk(c.fs, src, func(path string, fi fs.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if fi.IsDir() {
			return c.fs.MkdirAll(target, 0o755)
		}
		data, err := c.Read(path)
		if err != nil {
			return err
		}
		return c.Write(target, data)
	})
}

func (c *aferoCap) MkdirAll(path string) error {
	if err := c.fs.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", path, err)
	}
	return nil
}

// Remove deletes a file or directory tree. Missing paths are not an error.
func (c *aferoCap) Remove(path string) error {
	if err := c.fs.RemoveAll(path); err != nil {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

func (c *aferoCap) List(path string) ([]string, error) {
	entries, err := afero.ReadDir(c.fs, path)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", path, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

// Size returns the total byte size of a file or directory tree.
// Missing paths report zero so cleanup can treat already-deleted backups as freed.
func (c *aferoCap) Size(path string) (int64, error) {
	info, err := c.fs.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}

	if !info.IsDir() {
		return info.Size(), nil
	}

	var total int64
	err = afero.Walk(c.fs, path, func(_ string, fi fs.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !fi.IsDir() {
			total += fi.Size()
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("walk %s: %w", path, err)
	}
	return total, nil
}
