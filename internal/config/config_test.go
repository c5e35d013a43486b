package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default config failed validation: %v", err)
	}
	if cfg.Bench.Iterations != 32 || len(cfg.Bench.Sizes) != 1 || cfg.Bench.Sizes[0] != 1024 {
		t.Errorf("Unexpected defaults: %+v", cfg.Bench)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		key    string
	}{
		{"zero iterations", func(c *Config) { c.Bench.Iterations = 0 }, "bench.iterations"},
		{"negative warmup", func(c *Config) { c.Bench.Warmup = -1 }, "bench.warmup"},
		{"no sizes", func(c *Config) { c.Bench.Sizes = nil }, "bench.sizes"},
		{"zero size", func(c *Config) { c.Bench.Sizes = []int{16, 0} }, "bench.sizes"},
		{"unknown backend", func(c *Config) { c.Bench.Backend = "cuda" }, "bench.backend"},
		{"opencl without binary", func(c *Config) { c.Bench.Backend = "opencl"; c.Bench.Binary = "" }, "bench.binary"},
		{"unknown format", func(c *Config) { c.Output.Format = "json" }, "output.format"},
		{"unknown level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			var cerr *Error
			if !errors.As(err, &cerr) {
				t.Fatalf("Expected *Error, got %T (%v)", err, err)
			}
			if cerr.Key != tt.key {
				t.Errorf("Error key = %q, want %q", cerr.Key, tt.key)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `bench:
  iterations: 8
  sizes: [256, 4096]
  range: true
  shared: true
output:
  format: bench
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Bench.Iterations != 8 {
		t.Errorf("Iterations = %d, want 8", cfg.Bench.Iterations)
	}
	if len(cfg.Bench.Sizes) != 2 || cfg.Bench.Sizes[1] != 4096 {
		t.Errorf("Sizes = %v, want [256 4096]", cfg.Bench.Sizes)
	}
	if !cfg.Bench.Range || !cfg.Bench.Shared || cfg.Bench.Task {
		t.Errorf("Unexpected selection: %+v", cfg.Bench)
	}
	if cfg.Output.Format != "bench" {
		t.Errorf("Format = %q, want bench", cfg.Output.Format)
	}
	if cfg.Bench.Backend != "sim" {
		t.Errorf("Backend default lost: %q", cfg.Bench.Backend)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("bench:\n  iterations: 8\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MEMBENCH_BENCH_ITERATIONS", "3")

	cfg, err := LoadWith(viper.New(), path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Bench.Iterations != 3 {
		t.Errorf("Iterations = %d, want 3 from the environment", cfg.Bench.Iterations)
	}
}

func TestLoadInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("bench: [unterminated"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(path)
	var cerr *Error
	if !errors.As(err, &cerr) {
		t.Fatalf("Expected *Error, got %T (%v)", err, err)
	}
}

func TestExpandPaths(t *testing.T) {
	t.Setenv("MEMBENCH_TEST_DIR", "/opt/bitstreams")
	cfg := DefaultConfig()
	cfg.Bench.Binary = "$MEMBENCH_TEST_DIR/membench.aocx"
	cfg.ExpandPaths()
	if cfg.Bench.Binary != "/opt/bitstreams/membench.aocx" {
		t.Errorf("Binary = %q", cfg.Bench.Binary)
	}
}
