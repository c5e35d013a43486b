// Package timing accumulates per-stage device time across benchmark
// iterations and derives average latency and bandwidth from it.
package timing

import (
	"fmt"
	"time"
)

// Stage identifies a timed step of one iteration.
type Stage int

const (
	Reader Stage = iota
	Compute
	Writer
	StageIn
	StageOut
	// NumStages is the number of timed stages
	NumStages
)

// Stages lists every stage in report order.
var Stages = []Stage{Reader, Compute, Writer, StageIn, StageOut}

func (s Stage) String() string {
	switch s {
	case Reader:
		return "reader"
	case Compute:
		return "compute"
	case Writer:
		return "writer"
	case StageIn:
		return "stage-in"
	case StageOut:
		return "stage-out"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// TrafficFactor is how many times a stage touches the batch per iteration.
// The compute stage both reads and writes a value for every element.
func (s Stage) TrafficFactor() int64 {
	if s == Compute {
		return 2
	}
	return 1
}

// Aggregator sums stage durations. It is owned by a single run and is not
// safe for concurrent use.
type Aggregator struct {
	size       int
	totals     [NumStages]time.Duration
	iterations int

	start time.Time
	wall  time.Duration
}

// NewAggregator creates an aggregator for batches of size float32 elements.
func NewAggregator(size int) *Aggregator {
	return &Aggregator{size: size}
}

// Add folds one completed event duration into a stage total.
func (a *Aggregator) Add(stage Stage, d time.Duration) {
	if stage < 0 || stage >= NumStages {
		return
	}
	a.totals[stage] += d
}

// EndIteration counts one timed iteration.
func (a *Aggregator) EndIteration() {
	a.iterations++
}

// Start opens the host wall-clock span. It is called once, before the
// first timed iteration.
func (a *Aggregator) Start() {
	a.start = time.Now()
}

// Stop closes the span opened by Start, once after the last iteration.
func (a *Aggregator) Stop() {
	if !a.start.IsZero() {
		a.wall = time.Since(a.start)
		a.start = time.Time{}
	}
}

// Total returns the accumulated time of a stage.
func (a *Aggregator) Total(stage Stage) time.Duration {
	if stage < 0 || stage >= NumStages {
		return 0
	}
	return a.totals[stage]
}

// Iterations returns the number of timed iterations.
func (a *Aggregator) Iterations() int {
	return a.iterations
}

// StageStats are the derived values of one stage.
type StageStats struct {
	Stage   Stage
	Total   time.Duration
	Average time.Duration
	Bytes   int64

	// Bandwidth in bytes per second; zero when Total is zero
	Bandwidth float64
}

// Report is the aggregated outcome of a run.
type Report struct {
	Iterations int
	Size       int
	Wall       time.Duration
	Stages     [NumStages]StageStats
}

// Stage returns the stats of one stage.
func (r *Report) Stage(s Stage) StageStats {
	if s < 0 || s >= NumStages {
		return StageStats{Stage: s}
	}
	return r.Stages[s]
}

// TotalItems is iterations × size.
func (r *Report) TotalItems() int64 {
	return int64(r.Iterations) * int64(r.Size)
}

// TotalBytes is the number of bytes one stage moves across the run.
func (r *Report) TotalBytes() int64 {
	return r.TotalItems() * 4
}

// Report derives averages and bandwidth from the accumulated totals.
func (a *Aggregator) Report() *Report {
	r := &Report{
		Iterations: a.iterations,
		Size:       a.size,
		Wall:       a.wall,
	}
	for _, s := range Stages {
		total := a.totals[s]
		st := StageStats{
			Stage: s,
			Total: total,
			Bytes: r.TotalBytes() * s.TrafficFactor(),
		}
		if a.iterations > 0 {
			st.Average = total / time.Duration(a.iterations)
		}
		st.Bandwidth = Bandwidth(st.Bytes, total)
		r.Stages[s] = st
	}
	return r
}

// Bandwidth returns bytes per second moved in d, or zero when d is zero.
func Bandwidth(bytes int64, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(bytes) * 1e9 / float64(d.Nanoseconds())
}
