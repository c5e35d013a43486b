package sim

import (
	"sync"
	"time"

	"github.com/xupit3r/membench/internal/device"
)

type event struct {
	dev  *Device
	done chan struct{}

	// written by the queue goroutine before done is closed
	start time.Time
	end   time.Time
	err   error

	mu       sync.Mutex
	released bool
}

func newEvent(d *Device) *event {
	d.track(&d.stats.Events, 1)
	return &event{dev: d, done: make(chan struct{})}
}

func (e *event) complete(start, end time.Time, err error) {
	e.start = start
	e.end = end.Add(e.dev.overhead)
	e.err = err
	close(e.done)
}

func (e *event) isReleased() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.released
}

func (e *event) Wait() error {
	if e.isReleased() {
		return device.Errorf("wait event", device.InvalidEvent, "event already released")
	}
	<-e.done
	return e.err
}

func (e *event) Elapsed() (time.Duration, error) {
	if e.isReleased() {
		return 0, device.Errorf("profile event", device.InvalidEvent, "event already released")
	}
	select {
	case <-e.done:
	default:
		return 0, device.Errorf("profile event", device.ProfilingInfoUnavailable, "command not complete")
	}
	return e.end.Sub(e.start), nil
}

func (e *event) Release() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.released {
		return device.Errorf("release event", device.InvalidEvent, "event released twice")
	}
	e.released = true
	e.dev.track(&e.dev.stats.Events, -1)
	return nil
}
