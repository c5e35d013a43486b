package pipeline

import (
	"context"
	"fmt"

	"github.com/xupit3r/membench/internal/config"
	"github.com/xupit3r/membench/internal/device"
	"github.com/xupit3r/membench/internal/logging"
	"github.com/xupit3r/membench/internal/memory"
)

// Suite is every combination of modes, strategies and sizes to run.
type Suite struct {
	Modes      []Mode
	Strategies []memory.Strategy
	Sizes      []int
	Iterations int
	Warmup     int
	Check      bool
	Filler     Filler
}

// SuiteFromConfig builds the suite selected by cfg.
func SuiteFromConfig(cfg *config.BenchConfig) Suite {
	s := Suite{
		Sizes:      append([]int(nil), cfg.Sizes...),
		Iterations: cfg.Iterations,
		Warmup:     cfg.Warmup,
		Check:      cfg.Check,
	}
	if cfg.Task {
		s.Modes = append(s.Modes, Task)
	}
	if cfg.Range {
		s.Modes = append(s.Modes, Range)
	}
	if cfg.Autorun {
		s.Modes = append(s.Modes, Autorun)
	}
	if cfg.Buffer {
		s.Strategies = append(s.Strategies, memory.Copy)
	}
	if cfg.Shared {
		s.Strategies = append(s.Strategies, memory.Mapped)
	}
	return s
}

// Params expands the suite in run order: sizes, then modes, then
// strategies.
func (s Suite) Params() []Params {
	var out []Params
	for _, size := range s.Sizes {
		for _, mode := range s.Modes {
			for _, strategy := range s.Strategies {
				out = append(out, Params{
					Mode:       mode,
					Strategy:   strategy,
					Size:       size,
					Iterations: s.Iterations,
					Warmup:     s.Warmup,
					Check:      s.Check,
					Filler:     s.Filler,
				})
			}
		}
	}
	return out
}

// Validate checks the whole suite before any device work starts.
func (s Suite) Validate() error {
	if len(s.Modes) == 0 {
		return config.Errorf("bench.mode", "no dispatch mode selected (use --task, --range or --autorun)")
	}
	if len(s.Strategies) == 0 {
		return config.Errorf("bench.strategy", "no memory strategy selected (use --buffer or --shared)")
	}
	if len(s.Sizes) == 0 {
		return config.Errorf("bench.sizes", "at least one batch size is required")
	}
	for _, p := range s.Params() {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// RunSuite runs every configuration of s one after another, handing each
// result to emit. The first failure stops the suite.
func RunSuite(ctx context.Context, dev device.Context, s Suite, emit func(*Result) error) error {
	if err := s.Validate(); err != nil {
		return err
	}

	params := s.Params()
	for i, p := range params {
		logging.Infof("Running %s/%s size=%d (%d/%d)", p.Mode, p.Strategy, p.Size, i+1, len(params))

		res, err := Run(ctx, dev, p)
		if err != nil {
			return fmt.Errorf("%s/%s size=%d: %w", p.Mode, p.Strategy, p.Size, err)
		}
		if emit != nil {
			if err := emit(res); err != nil {
				return fmt.Errorf("emit result: %w", err)
			}
		}
	}
	return nil
}
