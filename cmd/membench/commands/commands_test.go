package commands

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xupit3r/membench/internal/config"
)

// execute runs a fresh command tree with an empty home directory.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.Contains(out, "Membench v"+Version) {
		t.Errorf("Unexpected version output:\n%s", out)
	}
}

func TestRunBenchFormat(t *testing.T) {
	out, err := execute(t, "run", "-q", "--task", "--buffer", "-i", "2", "-s", "64", "--check", "--format", "bench")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	for _, want := range []string{
		"iterations: 2",
		"BenchmarkMembench/mode=task/strategy=buffer/size=64/stage=reader",
		"BenchmarkMembench/mode=task/strategy=buffer/size=64/stage=stage-out",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Output missing %q:\n%s", want, out)
		}
	}
}

func TestRunEveryCombination(t *testing.T) {
	out, err := execute(t, "run", "-q", "--no-color",
		"--task", "--range", "--autorun", "--buffer", "--shared",
		"-i", "2", "-s", "32", "-s", "64")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if got := strings.Count(out, "Bandwidth (GB/s)"); got != 12 {
		t.Errorf("Got %d reports, want 12:\n%s", got, out)
	}
	for _, want := range []string{"task / buffer", "range / shared", "autorun / shared", "Batch size: 64"} {
		if !strings.Contains(out, want) {
			t.Errorf("Output missing %q", want)
		}
	}
}

func TestRunConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantKey string
	}{
		{"no mode", []string{"run", "--buffer"}, "bench.mode"},
		{"no strategy", []string{"run", "--task"}, "bench.strategy"},
		{"range size", []string{"run", "--range", "--buffer", "-s", "100"}, "bench.sizes"},
		{"iterations", []string{"run", "--task", "--buffer", "-i", "0"}, "bench.iterations"},
		{"format", []string{"run", "--task", "--buffer", "--format", "csv"}, "output.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name+" lenient", func(t *testing.T) {
			out, err := execute(t, append(tt.args, "-q")...)
			if err != nil {
				t.Errorf("Lenient run should succeed, got %v", err)
			}
			if strings.Contains(out, "Bandwidth") || strings.Contains(out, "Benchmark") {
				t.Errorf("Nothing should be benchmarked:\n%s", out)
			}
		})
		t.Run(tt.name+" strict", func(t *testing.T) {
			_, err := execute(t, append(tt.args, "-q", "--strict")...)
			var cfgErr *config.Error
			if !errors.As(err, &cfgErr) {
				t.Fatalf("Expected *config.Error, got %v", err)
			}
			if cfgErr.Key != tt.wantKey {
				t.Errorf("Key = %q, want %q", cfgErr.Key, tt.wantKey)
			}
		})
	}
}

func TestRunFromConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "membench.yaml")
	data := `bench:
  task: true
  shared: true
  iterations: 3
  sizes: [48]
output:
  format: bench
logging:
  console: false
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "run", "--config", path)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	for _, want := range []string{"iterations: 3", "mode=task/strategy=shared/size=48"} {
		if !strings.Contains(out, want) {
			t.Errorf("Output missing %q:\n%s", want, out)
		}
	}
}

func TestRunFlagOverridesEnv(t *testing.T) {
	t.Setenv("MEMBENCH_BENCH_ITERATIONS", "5")

	out, err := execute(t, "run", "-q", "--autorun", "--buffer", "-s", "16", "--format", "bench")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !strings.Contains(out, "iterations: 5") {
		t.Errorf("Environment should set iterations:\n%s", out)
	}

	out, err = execute(t, "run", "-q", "--autorun", "--buffer", "-s", "16", "--format", "bench", "-i", "2")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !strings.Contains(out, "iterations: 2") {
		t.Errorf("Flag should override environment:\n%s", out)
	}
}

func TestRunBadDeviceIndex(t *testing.T) {
	_, err := execute(t, "run", "-q", "--task", "--buffer", "-d", "3")
	if err == nil {
		t.Fatal("Expected an error for a missing device")
	}
	if isConfigError(err) {
		t.Errorf("Missing device should be a device error, got %v", err)
	}
}

func TestDevicesCommand(t *testing.T) {
	out, err := execute(t, "devices", "-q")
	if err != nil {
		t.Fatalf("devices failed: %v", err)
	}
	for _, want := range []string{"Backend: sim", "Platform 0: membench simulator", "Device 0: sim0", "System Information:"} {
		if !strings.Contains(out, want) {
			t.Errorf("Output missing %q:\n%s", want, out)
		}
	}
}

func TestCompletionCommand(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr bool
	}{
		{"bash completion", []string{"completion", "bash"}, false},
		{"zsh completion", []string{"completion", "zsh"}, false},
		{"fish completion", []string{"completion", "fish"}, false},
		{"powershell completion", []string{"completion", "powershell"}, false},
		{"invalid shell", []string{"completion", "invalid"}, true},
		{"no shell specified", []string{"completion"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, tt.args...)
			if (err != nil) != tt.wantErr {
				t.Errorf("Execute() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !strings.Contains(out, "membench") {
				t.Error("Completion script should mention membench")
			}
		})
	}
}

func TestUsageErrors(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	for _, args := range [][]string{
		{"run", "--no-such-flag"},
		{"run", "-i", "many"},
		{"no-such-command"},
		{"completion", "invalid"},
	} {
		err := Execute(context.Background(), args)
		var usage *UsageError
		if !errors.As(err, &usage) {
			t.Errorf("%v: expected *UsageError, got %v", args, err)
		}
	}
}

func TestOpenBackendUnknown(t *testing.T) {
	_, err := OpenBackend(&config.BenchConfig{Backend: "cuda"})
	if !isConfigError(err) {
		t.Errorf("Expected a config error, got %v", err)
	}
	if _, err := ListPlatforms("cuda"); !isConfigError(err) {
		t.Errorf("Expected a config error, got %v", err)
	}
}
