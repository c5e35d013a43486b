package commands

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/xupit3r/membench/internal/config"
	"github.com/xupit3r/membench/internal/logging"
	"github.com/xupit3r/membench/internal/memory"
	"github.com/xupit3r/membench/internal/pipeline"
	"github.com/xupit3r/membench/internal/report"
	"github.com/xupit3r/membench/internal/system"
)

func newRunCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the bandwidth benchmark",
		Long: `Run the reader, compute and writer pipeline for every selected
combination of dispatch mode, memory strategy and batch size.

At least one mode (--task, --range, --autorun) and one strategy (--buffer,
--shared) must be selected. Without --strict a configuration problem is
reported and the command exits successfully without benchmarking.`,
		Example: `  membench run --task --buffer
  membench run --task --range --autorun --buffer --shared -i 100 -s 4096 -s 65536
  membench run --backend opencl -a kernels.aocx --range --shared --check --format bench`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBench(cmd, o)
		},
	}

	f := cmd.Flags()
	f.StringP("aocx", "a", "./membench.aocx", "device program binary")
	f.IntP("platform", "p", 0, "platform index")
	f.IntP("device", "d", 0, "device index")
	f.IntP("iterations", "i", 32, "repetitions per configuration")
	f.IntSliceP("size", "s", []int{1024}, "elements per batch (repeatable)")
	f.Bool("task", false, "run the single work-item kernels")
	f.Bool("range", false, "run the NDRange kernels")
	f.Bool("autorun", false, "run the kernels with a device resident compute stage")
	f.Bool("buffer", false, "copy host memory to and from device buffers")
	f.Bool("shared", false, "map device buffers into host memory")
	f.Bool("check", false, "validate every iteration's output")
	f.Int("warmup", 0, "untimed iterations before measuring")
	f.String("format", "text", "output format (text or bench)")
	f.Bool("strict", false, "exit non-zero on configuration errors")

	for key, name := range map[string]string{
		"bench.binary":     "aocx",
		"bench.platform":   "platform",
		"bench.device":     "device",
		"bench.iterations": "iterations",
		"bench.sizes":      "size",
		"bench.task":       "task",
		"bench.range":      "range",
		"bench.autorun":    "autorun",
		"bench.buffer":     "buffer",
		"bench.shared":     "shared",
		"bench.check":      "check",
		"bench.warmup":     "warmup",
		"output.format":    "format",
		"output.strict":    "strict",
	} {
		o.v.BindPFlag(key, f.Lookup(name))
	}

	return cmd
}

// loadConfig reads the configuration and starts logging.
func (o *options) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadWith(o.v, o.cfgFile)
	if err != nil {
		return nil, err
	}
	if noColor, _ := cmd.Flags().GetBool("no-color"); noColor {
		cfg.Output.Color = false
	}

	if err := logging.Init(o.logLevel(cfg.Logging.Level), cfg.Logging.File, cfg.Logging.Console); err != nil {
		return nil, fmt.Errorf("initializing logging: %w", err)
	}
	if used := o.v.ConfigFileUsed(); used != "" {
		logging.Debugf("Using config file: %s", used)
	}
	return cfg, nil
}

// configError reports err. Unless --strict is set the command still
// succeeds.
func (o *options) configError(err error) error {
	if o.v.GetBool("output.strict") {
		return err
	}
	logging.Warnf("%v; nothing was benchmarked", err)
	return nil
}

func runBench(cmd *cobra.Command, o *options) (err error) {
	cfg, err := o.loadConfig(cmd)
	if err != nil {
		if isConfigError(err) {
			return o.configError(err)
		}
		return err
	}

	suite := pipeline.SuiteFromConfig(&cfg.Bench)
	if err := suite.Validate(); err != nil {
		return o.configError(err)
	}

	format, err := report.ParseFormat(cfg.Output.Format)
	if err != nil {
		return o.configError(config.Errorf("output.format", "%v", err))
	}
	emitter, err := report.New(cmd.OutOrStdout(), format, report.Options{Color: cfg.Output.Color})
	if err != nil {
		return err
	}

	checkHeadroom(suite)

	dev, err := OpenBackend(&cfg.Bench)
	if err != nil {
		if isConfigError(err) {
			return o.configError(err)
		}
		return err
	}
	defer func() {
		if rerr := dev.Release(); rerr != nil && err == nil {
			err = fmt.Errorf("releasing device: %w", rerr)
		}
	}()

	info := dev.Info()
	logging.WithFields(logrus.Fields{
		"platform": info.Platform,
		"device":   DeviceName(info),
		"backend":  cfg.Bench.Backend,
	}).Info("Device ready")

	return pipeline.RunSuite(cmd.Context(), dev, suite, emitter.Emit)
}

// checkHeadroom warns when the largest run may not fit in host memory.
func checkHeadroom(s pipeline.Suite) {
	largest := 0
	for _, size := range s.Sizes {
		largest = max(largest, size)
	}
	copies := false
	for _, strategy := range s.Strategies {
		copies = copies || strategy == memory.Copy
	}
	if err := system.CheckHeadroom(system.HostFootprint(largest, copies)); err != nil {
		logging.Warnf("Low host memory: %v", err)
	}
}
