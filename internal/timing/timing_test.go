package timing

import (
	"testing"
	"time"
)

func TestBandwidthFormula(t *testing.T) {
	agg := NewAggregator(1024)
	for i := 0; i < 100; i++ {
		agg.Add(Reader, 100*time.Microsecond)
		agg.Add(Compute, 100*time.Microsecond)
		agg.EndIteration()
	}

	r := agg.Report()
	reader := r.Stage(Reader)
	if reader.Total != 10*time.Millisecond {
		t.Fatalf("Reader total = %v, want 10ms", reader.Total)
	}
	if reader.Average != 100*time.Microsecond {
		t.Errorf("Reader average = %v, want 100µs", reader.Average)
	}
	if reader.Bandwidth != 40960000 {
		t.Errorf("Reader bandwidth = %v B/s, want 40960000", reader.Bandwidth)
	}
	if compute := r.Stage(Compute); compute.Bandwidth != 81920000 {
		t.Errorf("Compute bandwidth = %v B/s, want 81920000", compute.Bandwidth)
	}
}

func TestZeroTotalHasZeroBandwidth(t *testing.T) {
	agg := NewAggregator(1024)
	agg.Add(Reader, time.Millisecond)
	agg.EndIteration()

	r := agg.Report()
	for _, s := range []Stage{Compute, Writer, StageIn, StageOut} {
		st := r.Stage(s)
		if st.Total != 0 || st.Bandwidth != 0 {
			t.Errorf("%s: total %v bandwidth %v, want zero", s, st.Total, st.Bandwidth)
		}
	}
}

func TestNoIterations(t *testing.T) {
	r := NewAggregator(16).Report()
	if r.Iterations != 0 || r.Stage(Reader).Average != 0 {
		t.Errorf("Empty report has iterations %d average %v", r.Iterations, r.Stage(Reader).Average)
	}
}

func TestReportTotals(t *testing.T) {
	agg := NewAggregator(256)
	for i := 0; i < 4; i++ {
		agg.EndIteration()
	}
	r := agg.Report()
	if r.TotalItems() != 1024 {
		t.Errorf("TotalItems = %d, want 1024", r.TotalItems())
	}
	if r.TotalBytes() != 4096 {
		t.Errorf("TotalBytes = %d, want 4096", r.TotalBytes())
	}
	if r.Stage(Compute).Bytes != 8192 {
		t.Errorf("Compute bytes = %d, want 8192", r.Stage(Compute).Bytes)
	}
}

func TestWallSpan(t *testing.T) {
	agg := NewAggregator(1)
	agg.Stop()
	if agg.Report().Wall != 0 {
		t.Error("Stop without Start accumulated time")
	}
	agg.Start()
	time.Sleep(time.Millisecond)
	agg.Stop()
	wall := agg.Report().Wall
	if wall < time.Millisecond {
		t.Errorf("Wall = %v, want at least 1ms", wall)
	}
	agg.Stop()
	if agg.Report().Wall != wall {
		t.Error("A second Stop changed the span")
	}
}

func TestStageNames(t *testing.T) {
	want := []string{"reader", "compute", "writer", "stage-in", "stage-out"}
	for i, s := range Stages {
		if s.String() != want[i] {
			t.Errorf("Stage %d = %q, want %q", i, s, want[i])
		}
	}
}
