// Package report renders benchmark results, either as a human readable
// table or in the Go benchmark format understood by benchstat.
package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/muesli/termenv"
	"golang.org/x/perf/benchfmt"

	"github.com/xupit3r/membench/internal/memory"
	"github.com/xupit3r/membench/internal/pipeline"
)

// Format selects the output encoding.
type Format string

const (
	Text  Format = "text"
	Bench Format = "bench"
)

// ParseFormat accepts "text" or "bench".
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case Text:
		return Text, nil
	case Bench:
		return Bench, nil
	}
	return "", fmt.Errorf("unknown output format %q (want text or bench)", s)
}

// Emitter writes one result at a time.
type Emitter interface {
	Emit(res *pipeline.Result) error
}

// Options tune the emitters.
type Options struct {
	// Color enables ANSI styling when the writer is a terminal
	Color bool
}

// New creates the emitter for format writing to w.
func New(w io.Writer, format Format, opts Options) (Emitter, error) {
	switch format {
	case Text, "":
		return newTextEmitter(w, opts), nil
	case Bench:
		return &benchEmitter{w: benchfmt.NewWriter(w)}, nil
	}
	return nil, fmt.Errorf("unknown output format %q", format)
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

type textEmitter struct {
	w io.Writer

	title  lipgloss.Style
	label  lipgloss.Style
	header lipgloss.Style
	cell   lipgloss.Style
	border lipgloss.Style
}

func newTextEmitter(w io.Writer, opts Options) *textEmitter {
	r := lipgloss.NewRenderer(w)
	if !opts.Color {
		r.SetColorProfile(termenv.Ascii)
	}
	return &textEmitter{
		w: w,
		title: r.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7B68EE")),
		label: r.NewStyle().
			Padding(0, 1).
			Align(lipgloss.Right),
		header: r.NewStyle().
			Padding(0, 1).
			Bold(true).
			Align(lipgloss.Center),
		cell: r.NewStyle().
			Padding(0, 1).
			Align(lipgloss.Right),
		border: r.NewStyle().
			Foreground(lipgloss.Color("#888888")),
	}
}

func (e *textEmitter) Emit(res *pipeline.Result) error {
	rep := res.Report
	var b strings.Builder

	fmt.Fprintln(&b, e.title.Render(fmt.Sprintf("%s / %s on %s", res.Mode, res.Strategy, res.Device.Name)))
	fmt.Fprintf(&b, "   Iterations: %d\n", rep.Iterations)
	if res.Warmup > 0 {
		fmt.Fprintf(&b, "       Warmup: %d\n", res.Warmup)
	}
	fmt.Fprintf(&b, "   Batch size: %d\n", rep.Size)
	fmt.Fprintf(&b, "  Total items: %d\n", rep.TotalItems())
	fmt.Fprintf(&b, " Total Memory: %d MB\n", rep.TotalBytes()*2/(1<<20))
	fmt.Fprintf(&b, "    Wall Time: %.4f ms\n", ms(rep.Wall))
	if res.Strategy == memory.Mapped {
		fmt.Fprintf(&b, "   src.map(): %.4f ms\n", ms(res.SrcMapTime))
		fmt.Fprintf(&b, "   dst.map(): %.4f ms\n", ms(res.DstMapTime))
	}
	b.WriteString("\n")

	stages := res.ActiveStages()
	headers := []string{""}
	totals := []string{"Total Time (ms)"}
	avgs := []string{"Avg Time (ms)"}
	bws := []string{"Bandwidth (GB/s)"}
	for _, s := range stages {
		st := rep.Stage(s)
		headers = append(headers, s.String())
		totals = append(totals, fmt.Sprintf("%.4f", ms(st.Total)))
		avgs = append(avgs, fmt.Sprintf("%.4f", ms(st.Average)))
		bws = append(bws, fmt.Sprintf("%.4f", st.Bandwidth/1e9))
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(e.border).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return e.header
			case col == 0:
				return e.label
			default:
				return e.cell
			}
		}).
		Headers(headers...).
		Rows(totals, avgs, bws)

	b.WriteString(t.Render())
	b.WriteString("\n\n")

	_, err := io.WriteString(e.w, b.String())
	return err
}

type benchEmitter struct {
	w *benchfmt.Writer
}

// Name returns the benchmark name of a result and stage, without the
// "Benchmark" prefix the writer adds.
func Name(res *pipeline.Result, stage string) string {
	return fmt.Sprintf("Membench/mode=%s/strategy=%s/size=%d/stage=%s",
		res.Mode, res.Strategy, res.Size, stage)
}

func (e *benchEmitter) Emit(res *pipeline.Result) error {
	rep := res.Report
	configs := []benchfmt.Config{
		{Key: "device", Value: []byte(res.Device.Name), File: true},
		{Key: "platform", Value: []byte(res.Device.Platform), File: true},
		{Key: "iterations", Value: []byte(strconv.Itoa(rep.Iterations)), File: true},
	}

	for _, s := range res.ActiveStages() {
		st := rep.Stage(s)
		r := &benchfmt.Result{
			Config: configs,
			Name:   benchfmt.Name(Name(res, s.String())),
			Iters:  rep.Iterations,
			Values: []benchfmt.Value{
				{Value: float64(st.Average.Nanoseconds()), Unit: "ns/op"},
				{Value: st.Bandwidth, Unit: "B/s"},
			},
		}
		if err := e.w.Write(r); err != nil {
			return err
		}
	}

	if res.Strategy == memory.Mapped {
		r := &benchfmt.Result{
			Config: configs,
			Name:   benchfmt.Name(Name(res, "map")),
			Iters:  1,
			Values: []benchfmt.Value{
				{Value: float64(res.SrcMapTime.Nanoseconds()), Unit: "src-ns/op"},
				{Value: float64(res.DstMapTime.Nanoseconds()), Unit: "dst-ns/op"},
			},
		}
		if err := e.w.Write(r); err != nil {
			return err
		}
	}
	return nil
}
