// Package pipeline runs the reader → compute → writer benchmark on a
// device. A run binds three queues and the mode's kernels, allocates a
// source and a destination region and then drives one iteration at a time:
// fill, stage in, dispatch, stage out, drain, validate, record.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/xupit3r/membench/internal/config"
	"github.com/xupit3r/membench/internal/device"
	"github.com/xupit3r/membench/internal/logging"
	"github.com/xupit3r/membench/internal/memory"
	"github.com/xupit3r/membench/internal/timing"
)

// Source values are drawn from [FillLow, FillHigh).
const (
	FillLow  = 36.5
	FillHigh = 37.5
)

// Epsilon is the largest accepted difference between a result and the
// square of its source.
const Epsilon = float32(1.0 / (1 << 23))

// Filler writes the source values of one iteration.
type Filler interface {
	Fill(iteration int, dst []float32)
}

// RandomFiller draws uniformly from [FillLow, FillHigh).
type RandomFiller struct {
	rng *rand.Rand
}

// NewRandomFiller returns a filler with a fixed seed. The zero RandomFiller
// uses the runtime-seeded global source.
func NewRandomFiller(seed uint64) *RandomFiller {
	return &RandomFiller{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (f *RandomFiller) Fill(_ int, dst []float32) {
	next := rand.Float64
	if f != nil && f.rng != nil {
		next = f.rng.Float64
	}
	top := math.Nextafter32(FillHigh, 0)
	for i := range dst {
		v := float32(FillLow + next()*(FillHigh-FillLow))
		if v > top {
			v = top
		}
		dst[i] = v
	}
}

// Params describe one benchmark run.
type Params struct {
	Mode       Mode
	Strategy   memory.Strategy
	Size       int
	Iterations int
	Warmup     int
	Check      bool
	Filler     Filler
}

// Validate reports parameter problems as configuration errors without
// touching the device.
func (p Params) Validate() error {
	if p.Size < 1 {
		return config.Errorf("bench.sizes", "batch size must be positive, got %d", p.Size)
	}
	if p.Iterations < 1 {
		return config.Errorf("bench.iterations", "must be at least 1, got %d", p.Iterations)
	}
	if p.Warmup < 0 {
		return config.Errorf("bench.warmup", "must not be negative, got %d", p.Warmup)
	}
	if p.Mode == Range && p.Size%RangeGroupSize != 0 {
		return config.Errorf("bench.sizes", "range mode needs a batch size divisible by %d, got %d", RangeGroupSize, p.Size)
	}
	switch p.Mode {
	case Task, Range, Autorun:
	default:
		return config.Errorf("bench.mode", "unknown dispatch mode %v", p.Mode)
	}
	switch p.Strategy {
	case memory.Copy, memory.Mapped:
	default:
		return config.Errorf("bench.strategy", "unknown memory strategy %v", p.Strategy)
	}
	return nil
}

// Result is the outcome of one run.
type Result struct {
	Mode       Mode
	Strategy   memory.Strategy
	Size       int
	Warmup     int
	Device     device.Info
	Report     *timing.Report
	SrcMapTime time.Duration
	DstMapTime time.Duration
}

// ActiveStages are the stages with host-enqueued work in this run.
func (r *Result) ActiveStages() []timing.Stage {
	stages := []timing.Stage{timing.Reader}
	if r.Mode.HostCompute() {
		stages = append(stages, timing.Compute)
	}
	stages = append(stages, timing.Writer)
	if r.Strategy == memory.Copy {
		stages = append(stages, timing.StageIn, timing.StageOut)
	}
	return stages
}

// iteration progress flags
type iterState uint8

const (
	filled iterState = 1 << iota
	dispatched
	transferred
	drained
	validated
)

// kernelStage maps binding slots to timing stages.
var kernelStage = [numStages]timing.Stage{timing.Reader, timing.Compute, timing.Writer}

type iteration struct {
	index  int
	state  iterState
	events [timing.NumStages]device.Event
}

// release frees every event the iteration created, whatever state it
// stopped in.
func (it *iteration) release() error {
	var errs []error
	for i, ev := range it.events {
		if ev == nil {
			continue
		}
		if err := ev.Release(); err != nil {
			errs = append(errs, err)
		}
		it.events[i] = nil
	}
	return errors.Join(errs...)
}

type runner struct {
	params  Params
	binding *Binding
	src     memory.Region
	dst     memory.Region
	agg     *timing.Aggregator
	log     *logrus.Entry
}

// Run executes one benchmark configuration on dev. The device is borrowed;
// everything else the run creates is released before Run returns, on
// success and on failure alike.
func Run(ctx context.Context, dev device.Context, p Params) (res *Result, err error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.Filler == nil {
		p.Filler = &RandomFiller{}
	}

	log := logging.WithFields(logrus.Fields{
		"mode":     p.Mode.String(),
		"strategy": p.Strategy.String(),
		"size":     p.Size,
	})
	log.Debug("binding kernels")

	b, err := Bind(dev, p.Mode)
	if err != nil {
		return nil, err
	}
	defer releaseInto(&err, b.Release)

	src, err := memory.Allocate(dev, b.Queues[readerStage], p.Strategy, p.Size, memory.ReadOnly)
	if err != nil {
		return nil, fmt.Errorf("allocate source: %w", err)
	}
	defer releaseInto(&err, src.Release)

	dst, err := memory.Allocate(dev, b.Queues[writerStage], p.Strategy, p.Size, memory.WriteOnly)
	if err != nil {
		return nil, fmt.Errorf("allocate destination: %w", err)
	}
	defer releaseInto(&err, dst.Release)

	if err := b.SetArgs(src, dst, p.Size); err != nil {
		return nil, fmt.Errorf("set kernel arguments: %w", err)
	}

	r := &runner{
		params:  p,
		binding: b,
		src:     src,
		dst:     dst,
		agg:     timing.NewAggregator(p.Size),
		log:     log,
	}

	total := p.Warmup + p.Iterations
	for i := 0; i < total; i++ {
		// a drain in progress is never interrupted
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		timed := i >= p.Warmup
		if i == p.Warmup {
			r.agg.Start()
		}
		if err := r.iterate(i, timed); err != nil {
			return nil, err
		}
		if timed {
			r.agg.EndIteration()
		}
	}
	r.agg.Stop()

	res = &Result{
		Mode:     p.Mode,
		Strategy: p.Strategy,
		Size:     p.Size,
		Warmup:   p.Warmup,
		Device:   dev.Info(),
		Report:   r.agg.Report(),
	}
	if m, ok := src.(memory.MapTimer); ok {
		res.SrcMapTime = m.MapTime()
	}
	if m, ok := dst.(memory.MapTimer); ok {
		res.DstMapTime = m.MapTime()
	}

	log.WithField("wall", res.Report.Wall).Debug("run complete")
	return res, nil
}

// releaseInto runs release and adds its failure to *err.
func releaseInto(err *error, release func() error) {
	if rerr := release(); rerr != nil {
		*err = errors.Join(*err, rerr)
	}
}

func (r *runner) iterate(index int, timed bool) (err error) {
	it := &iteration{index: index}
	defer func() {
		releaseInto(&err, it.release)
		if err != nil {
			r.log.WithFields(logrus.Fields{
				"iteration": index,
				"state":     it.state,
			}).Debug("iteration aborted")
		}
	}()

	r.params.Filler.Fill(index, r.src.Host())
	it.state |= filled

	if s, ok := r.src.(memory.Stager); ok {
		ev, err := s.StageIn()
		if err != nil {
			return err
		}
		it.events[timing.StageIn] = ev
		it.state |= transferred
	}

	// no wait-lists: the kernels hand data to each other on the device
	global, local := r.params.Mode.WorkSize(r.params.Size)
	for stage, k := range r.binding.Kernels {
		if k == nil {
			continue
		}
		ev, err := r.binding.Queues[stage].EnqueueKernel(k, global, local)
		if err != nil {
			return fmt.Errorf("dispatch %s: %w", k.Name(), err)
		}
		it.events[kernelStage[stage]] = ev
	}
	it.state |= dispatched

	if s, ok := r.dst.(memory.Stager); ok {
		ev, err := s.StageOut()
		if err != nil {
			return err
		}
		it.events[timing.StageOut] = ev
		it.state |= transferred
	}

	for _, q := range r.binding.Queues {
		if err := q.Finish(); err != nil {
			return fmt.Errorf("drain iteration %d: %w", index, err)
		}
	}
	it.state |= drained

	if r.params.Check {
		if err := r.validate(index); err != nil {
			return err
		}
		it.state |= validated
	}

	if !timed {
		return nil
	}
	for stage, ev := range it.events {
		if ev == nil {
			continue
		}
		d, err := ev.Elapsed()
		if err != nil {
			return fmt.Errorf("profile %s: %w", timing.Stage(stage), err)
		}
		r.agg.Add(timing.Stage(stage), d)
	}
	return nil
}

func (r *runner) validate(index int) error {
	src := r.src.Host()
	dst := r.dst.Host()
	for i := range src {
		if residual(src[i], dst[i]) > Epsilon {
			return &ValidationError{
				Mode:      r.params.Mode,
				Strategy:  r.params.Strategy.String(),
				Iteration: index,
				Index:     i,
				Source:    src[i],
				Expected:  square(src[i]),
				Got:       dst[i],
			}
		}
	}
	return nil
}

// square rounds x*x to float32. The explicit conversion keeps the product
// from fusing into a later subtraction on FMA targets.
func square(x float32) float32 {
	return float32(x * x)
}

// residual is |dst - src²| against the rounded square.
func residual(src, dst float32) float32 {
	return float32(math.Abs(float64(dst - square(src))))
}
