package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xupit3r/membench/internal/device"
	"github.com/xupit3r/membench/internal/memory"
)

// Mode selects the kernel family and launch geometry.
type Mode int

const (
	// Task launches each stage as a single work item looping over the batch
	Task Mode = iota
	// Range launches one work item per element in groups of RangeGroupSize
	Range
	// Autorun launches reader and writer only; compute runs on its own
	Autorun
)

// RangeGroupSize is the local work size of range launches.
const RangeGroupSize = 16

// Modes lists every mode in report order.
var Modes = []Mode{Task, Range, Autorun}

func (m Mode) String() string {
	switch m {
	case Task:
		return "task"
	case Range:
		return "range"
	case Autorun:
		return "autorun"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode accepts "task", "range" or "autorun".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "task", "single":
		return Task, nil
	case "range", "ndrange":
		return Range, nil
	case "autorun":
		return Autorun, nil
	}
	return 0, fmt.Errorf("unknown dispatch mode %q (want task, range or autorun)", s)
}

// Kernels returns the reader, compute and writer entry points. Compute is
// empty in autorun mode.
func (m Mode) Kernels() (reader, compute, writer string) {
	switch m {
	case Range:
		return "reader_range", "compute_range", "writer_range"
	case Autorun:
		return "reader_autorun", "", "writer_autorun"
	default:
		return "reader_single", "compute_single", "writer_single"
	}
}

// WorkSize returns the global and local launch sizes for a batch.
func (m Mode) WorkSize(size int) (global, local [3]int) {
	if m == Range {
		return [3]int{size, 1, 1}, [3]int{RangeGroupSize, 1, 1}
	}
	return [3]int{1, 1, 1}, [3]int{1, 1, 1}
}

// HostCompute reports whether the host enqueues the compute stage.
func (m Mode) HostCompute() bool {
	return m != Autorun
}

// stage indices into Binding.Queues and Binding.Kernels
const (
	readerStage = iota
	computeStage
	writerStage
	numStages
)

// Binding owns the three queues and the kernels of one run.
type Binding struct {
	Mode    Mode
	Queues  [numStages]device.Queue
	Kernels [numStages]device.Kernel

	argsSet bool
}

// Bind creates the queues and kernels for mode. On failure everything
// created so far is released.
func Bind(ctx device.Context, mode Mode) (b *Binding, err error) {
	b = &Binding{Mode: mode}
	defer func() {
		if err != nil {
			b.Release()
			b = nil
		}
	}()

	for i := range b.Queues {
		q, err := ctx.CreateQueue()
		if err != nil {
			return b, fmt.Errorf("bind %s: %w", mode, err)
		}
		b.Queues[i] = q
	}

	reader, compute, writer := mode.Kernels()
	for i, name := range [numStages]string{reader, compute, writer} {
		if name == "" {
			continue
		}
		k, err := ctx.CreateKernel(name)
		if err != nil {
			return b, fmt.Errorf("bind %s: %w", mode, err)
		}
		b.Kernels[i] = k
	}
	return b, nil
}

// SetArgs binds the kernel arguments: reader (src, size), compute (size),
// writer (dst, size). Arguments are bound once per run.
func (b *Binding) SetArgs(src, dst memory.Region, size int) error {
	if b.argsSet {
		return errors.New("kernel arguments already bound")
	}
	n := int32(size)

	if k := b.Kernels[readerStage]; k != nil {
		if err := k.SetArg(0, src.Mem()); err != nil {
			return err
		}
		if err := k.SetArg(1, n); err != nil {
			return err
		}
	}
	if k := b.Kernels[computeStage]; k != nil {
		if err := k.SetArg(0, n); err != nil {
			return err
		}
	}
	if k := b.Kernels[writerStage]; k != nil {
		if err := k.SetArg(0, dst.Mem()); err != nil {
			return err
		}
		if err := k.SetArg(1, n); err != nil {
			return err
		}
	}
	b.argsSet = true
	return nil
}

// Release frees kernels then queues. It keeps going past failures and
// returns all of them.
func (b *Binding) Release() error {
	var errs []error
	for i, k := range b.Kernels {
		if k == nil {
			continue
		}
		if err := k.Release(); err != nil {
			errs = append(errs, err)
		}
		b.Kernels[i] = nil
	}
	for i, q := range b.Queues {
		if q == nil {
			continue
		}
		if err := q.Release(); err != nil {
			errs = append(errs, err)
		}
		b.Queues[i] = nil
	}
	return errors.Join(errs...)
}
