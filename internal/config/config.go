package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Bench   BenchConfig   `mapstructure:"bench"`
	Output  OutputConfig  `mapstructure:"output"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type BenchConfig struct {
	Binary     string `mapstructure:"binary"`
	Backend    string `mapstructure:"backend"`
	Platform   int    `mapstructure:"platform"`
	Device     int    `mapstructure:"device"`
	Iterations int    `mapstructure:"iterations"`
	Sizes      []int  `mapstructure:"sizes"`
	Warmup     int    `mapstructure:"warmup"`
	Check      bool   `mapstructure:"check"`

	Task    bool `mapstructure:"task"`
	Range   bool `mapstructure:"range"`
	Autorun bool `mapstructure:"autorun"`

	Buffer bool `mapstructure:"buffer"`
	Shared bool `mapstructure:"shared"`
}

type OutputConfig struct {
	Format string `mapstructure:"format"`
	Color  bool   `mapstructure:"color"`
	Strict bool   `mapstructure:"strict"`
}

type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	File    string `mapstructure:"file"`
	Console bool   `mapstructure:"console"`
}

// Error is a configuration problem. No benchmark runs when one is reported.
type Error struct {
	Key string
	Err error
}

func (e *Error) Error() string {
	if e.Key == "" {
		return "configuration error: " + e.Err.Error()
	}
	return fmt.Sprintf("configuration error: %s: %v", e.Key, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf builds an *Error for key.
func Errorf(key, format string, args ...any) *Error {
	return &Error{Key: key, Err: fmt.Errorf(format, args...)}
}

// Dir is the per-user configuration directory.
func Dir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".membench")
}

// DefaultConfig returns configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Bench: BenchConfig{
			Binary:     "./membench.aocx",
			Backend:    "sim",
			Platform:   0,
			Device:     0,
			Iterations: 32,
			Sizes:      []int{1024},
			Warmup:     0,
		},
		Output: OutputConfig{
			Format: "text",
			Color:  true,
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
		},
	}
}

// Load loads configuration from file, environment, and defaults
func Load(cfgFile string) (*Config, error) {
	return LoadWith(viper.New(), cfgFile)
}

// LoadWith loads configuration into v, which may already carry bound
// command-line flags. Flags take precedence over the environment, which
// takes precedence over the config file.
func LoadWith(v *viper.Viper, cfgFile string) (*Config, error) {
	cfg := DefaultConfig()
	setDefaults(v, cfg)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(Dir())
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName("config")
	}

	// MEMBENCH_BENCH_ITERATIONS=8 sets bench.iterations
	v.SetEnvPrefix("MEMBENCH")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, &Error{Err: fmt.Errorf("reading config: %w", err)}
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, &Error{Err: fmt.Errorf("unmarshaling config: %w", err)}
	}

	cfg.ExpandPaths()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Bench.Iterations < 1 {
		return Errorf("bench.iterations", "must be at least 1, got %d", c.Bench.Iterations)
	}
	if c.Bench.Warmup < 0 {
		return Errorf("bench.warmup", "must not be negative, got %d", c.Bench.Warmup)
	}
	if len(c.Bench.Sizes) == 0 {
		return Errorf("bench.sizes", "at least one batch size is required")
	}
	for _, s := range c.Bench.Sizes {
		if s < 1 {
			return Errorf("bench.sizes", "batch size must be positive, got %d", s)
		}
	}
	if c.Bench.Platform < 0 || c.Bench.Device < 0 {
		return Errorf("bench.platform", "platform and device indices must not be negative")
	}

	validBackends := []string{"sim", "opencl"}
	if !contains(validBackends, c.Bench.Backend) {
		return Errorf("bench.backend", "must be one of: %v", validBackends)
	}
	if c.Bench.Backend == "opencl" && c.Bench.Binary == "" {
		return Errorf("bench.binary", "a program binary is required for the opencl backend")
	}

	validFormats := []string{"text", "bench"}
	if !contains(validFormats, c.Output.Format) {
		return Errorf("output.format", "must be one of: %v", validFormats)
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLevels, c.Logging.Level) {
		return Errorf("logging.level", "must be one of: %v", validLevels)
	}

	return nil
}

// ExpandPaths expands ~ and environment variables in paths
func (c *Config) ExpandPaths() {
	c.Bench.Binary = expandPath(c.Bench.Binary)
	c.Logging.File = expandPath(c.Logging.File)
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return os.ExpandEnv(path)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("bench.binary", cfg.Bench.Binary)
	v.SetDefault("bench.backend", cfg.Bench.Backend)
	v.SetDefault("bench.platform", cfg.Bench.Platform)
	v.SetDefault("bench.device", cfg.Bench.Device)
	v.SetDefault("bench.iterations", cfg.Bench.Iterations)
	v.SetDefault("bench.sizes", cfg.Bench.Sizes)
	v.SetDefault("bench.warmup", cfg.Bench.Warmup)
	v.SetDefault("bench.check", cfg.Bench.Check)
	v.SetDefault("bench.task", cfg.Bench.Task)
	v.SetDefault("bench.range", cfg.Bench.Range)
	v.SetDefault("bench.autorun", cfg.Bench.Autorun)
	v.SetDefault("bench.buffer", cfg.Bench.Buffer)
	v.SetDefault("bench.shared", cfg.Bench.Shared)

	v.SetDefault("output.format", cfg.Output.Format)
	v.SetDefault("output.color", cfg.Output.Color)
	v.SetDefault("output.strict", cfg.Output.Strict)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.console", cfg.Logging.Console)
}
