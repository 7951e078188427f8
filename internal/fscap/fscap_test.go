// SPDX-License-Identifier: MPL-2.0

package fscap

import (
	"slices"
	"testing"
)

func TestWriteReadExists(t *testing.T) {
	c := NewMem()

	exists, err := c.Exists("a/b/file.txt")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if exists {
		t.Fatal("Exists reported true for missing file")
	}

	if err := c.Write("a/b/file.txt", []byte("hello")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	data, err := c.Read("a/b/file.txt")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("Read = %q, want %q", data, "hello")
	}

	exists, err = c.Exists("a/b/file.txt")
	if err != nil || !exists {
		t.Errorf("Exists after write = %v, %v", exists, err)
	}
}

func TestCopyTree(t *testing.T) {
	c := NewMem()
	files := map[string]string{
		"src/manifest.cue":    "module: \"auth\"",
		"src/hooks/pre.sh":    "echo pre",
		"src/templates/a.txt": "content",
	}
	for path, content := range files {
		if err := c.Write(path, []byte(content)); err != nil {
			t.Fatalf("Write(%s): %v", path, err)
		}
	}

	if err := c.Copy("src", "backup/src"); err != nil {
		t.Fatalf("Copy: %v", err)
	}

	for path, content := range files {
		copied := "backup/" + path
		data, err := c.Read(copied)
		if err != nil {
			t.Fatalf("Read(%s): %v", copied, err)
		}
		if string(data) != content {
			t.Errorf("copied %s = %q, want %q", copied, data, content)
		}
	}
}

func TestListAndRemove(t *testing.T) {
	c := NewMem()
	if err := c.Write("dir/a.txt", []byte("a")); err != nil {
		t.Fatal(err)
	}
	if err := c.Write("dir/b.txt", []byte("b")); err != nil {
		t.Fatal(err)
	}

	names, err := c.List("dir")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	slices.Sort(names)
	if !slices.Equal(names, []string{"a.txt", "b.txt"}) {
		t.Errorf("List = %v", names)
	}

	if err := c.Remove("dir"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	exists, _ := c.Exists("dir/a.txt")
	if exists {
		t.Error("file survived Remove of parent dir")
	}

	// Removing an already-missing path is not an error.
	if err := c.Remove("dir"); err != nil {
		t.Errorf("Remove of missing path: %v", err)
	}
}

func TestSize(t *testing.T) {
	c := NewMem()
	if err := c.Write("tree/one.bin", make([]byte, 10)); err != nil {
		t.Fatal(err)
	}
	if err := c.Write("tree/sub/two.bin", make([]byte, 32)); err != nil {
		t.Fatal(err)
	}

	size, err := c.Size("tree")
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	if size != 42 {
		t.Errorf("Size = %d, want 42", size)
	}

	size, err = c.Size("missing")
	if err != nil || size != 0 {
		t.Errorf("Size(missing) = %d, %v, want 0, nil", size, err)
	}
}
