// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestProviderLoadDefaults(t *testing.T) {
	p := NewProvider()

	cfg, err := p.Load(context.Background(), LoadOptions{ConfigDirPath: t.TempDir()})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Resolution.Strategy != StrategyStable {
		t.Errorf("strategy = %s, want default stable", cfg.Resolution.Strategy)
	}
}

func TestProviderLoadExplicitFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.cue")
	if err := os.WriteFile(path, []byte(`resolution: {strategy: "latest"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	p := NewProvider()
	cfg, err := p.Load(context.Background(), LoadOptions{ConfigFilePath: path})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Resolution.Strategy != StrategyLatest {
		t.Errorf("strategy = %s, want latest", cfg.Resolution.Strategy)
	}
}

func TestProviderLoadInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.cue")
	if err := os.WriteFile(path, []byte(`resolution: {strategy: 42}`), 0o644); err != nil {
		t.Fatal(err)
	}

	p := NewProvider()
	if _, err := p.Load(context.Background(), LoadOptions{ConfigFilePath: path}); err == nil {
		t.Fatal("Load() succeeded for invalid config")
	}
}
