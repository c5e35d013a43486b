// Package memory provides the two host/device buffer strategies the
// benchmark compares.
//
// A CopyRegion keeps a host shadow array and a separate device allocation;
// data crosses the bus through explicit StageIn/StageOut transfers. A
// MappedRegion maps a host-visible device allocation once and hands out the
// mapped view directly, so it has no transfer step at all. Only CopyRegion
// implements Stager.
package memory

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xupit3r/membench/internal/device"
)

// Strategy selects how host data reaches the device.
type Strategy int

const (
	Copy Strategy = iota
	Mapped
)

// Strategies lists every strategy in report order.
var Strategies = []Strategy{Copy, Mapped}

func (s Strategy) String() string {
	switch s {
	case Copy:
		return "buffer"
	case Mapped:
		return "shared"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// ParseStrategy accepts "buffer" or "shared".
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buffer", "copy":
		return Copy, nil
	case "shared", "mapped":
		return Mapped, nil
	}
	return 0, fmt.Errorf("unknown memory strategy %q (want buffer or shared)", s)
}

// Access is the direction the device uses a region in.
type Access int

const (
	// ReadOnly regions are pipeline sources: the host writes, the device reads
	ReadOnly Access = iota
	// WriteOnly regions are pipeline destinations: the device writes, the host reads
	WriteOnly
)

func (a Access) String() string {
	if a == WriteOnly {
		return "write-only"
	}
	return "read-only"
}

func (a Access) device() device.Access {
	if a == WriteOnly {
		return device.WriteOnly
	}
	return device.ReadOnly
}

func (a Access) mapFlags() device.MapFlags {
	if a == WriteOnly {
		return device.MapRead
	}
	return device.MapWrite
}

// Region is a batch of float32 values reachable from both host and device.
type Region interface {
	// Host returns the host view. It panics once the region is released.
	Host() []float32

	// Len is the number of elements
	Len() int

	// Mem is the device allocation kernels are bound to
	Mem() device.Mem

	// Queue is the queue that owns the region's transfers
	Queue() device.Queue

	Strategy() Strategy

	// Release frees the region. Releasing twice panics.
	Release() error
}

// Stager is implemented by regions that need explicit transfers between the
// host view and device memory.
type Stager interface {
	// StageIn enqueues host → device
	StageIn() (device.Event, error)
	// StageOut enqueues device → host
	StageOut() (device.Event, error)
}

// Allocate creates a region of n elements whose transfers run on q.
func Allocate(ctx device.Context, q device.Queue, strategy Strategy, n int, access Access) (Region, error) {
	if n <= 0 {
		return nil, device.Errorf("allocate region", device.InvalidValue, "invalid element count %d", n)
	}
	switch strategy {
	case Copy:
		return newCopyRegion(ctx, q, n, access)
	case Mapped:
		return newMappedRegion(ctx, q, n, access)
	}
	return nil, device.Errorf("allocate region", device.InvalidValue, "unknown strategy %v", strategy)
}

// CopyRegion is a host shadow array paired with a device allocation.
type CopyRegion struct {
	queue  device.Queue
	mem    device.Mem
	host   device.HostArray
	view   []float32
	access Access

	released bool
}

func newCopyRegion(ctx device.Context, q device.Queue, n int, access Access) (*CopyRegion, error) {
	mem, err := ctx.CreateBuffer(access.device(), int64(n)*4, false)
	if err != nil {
		return nil, fmt.Errorf("copy region: %w", err)
	}
	host, err := ctx.AllocHost(n)
	if err != nil {
		mem.Release()
		return nil, fmt.Errorf("copy region: %w", err)
	}
	return &CopyRegion{
		queue:  q,
		mem:    mem,
		host:   host,
		view:   host.Floats(),
		access: access,
	}, nil
}

func (r *CopyRegion) Host() []float32 {
	if r.released {
		panic("memory: Host called on a released copy region")
	}
	return r.view
}

func (r *CopyRegion) Len() int { return len(r.view) }
func (r *CopyRegion) Mem() device.Mem { return r.mem }
func (r *CopyRegion) Queue() device.Queue { return r.queue }
func (r *CopyRegion) Strategy() Strategy { return Copy }
func (r *CopyRegion) Access() Access { return r.access }

// StageIn enqueues a write of the host shadow into device memory.
func (r *CopyRegion) StageIn() (device.Event, error) {
	ev, err := r.queue.EnqueueWrite(r.mem, r.Host())
	if err != nil {
		return nil, fmt.Errorf("stage in: %w", err)
	}
	return ev, nil
}

// StageOut enqueues a read of device memory into the host shadow.
func (r *CopyRegion) StageOut() (device.Event, error) {
	ev, err := r.queue.EnqueueRead(r.mem, r.Host())
	if err != nil {
		return nil, fmt.Errorf("stage out: %w", err)
	}
	return ev, nil
}

func (r *CopyRegion) Release() error {
	if r.released {
		panic("memory: copy region released twice")
	}
	r.released = true
	r.view = nil

	var errs []error
	if err := r.mem.Release(); err != nil {
		errs = append(errs, err)
	}
	if err := r.host.Free(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// MappedRegion is a host-visible device allocation mapped for the lifetime
// of the region.
type MappedRegion struct {
	queue  device.Queue
	mem    device.Mem
	view   []float32
	access Access

	mapTime  time.Duration
	released bool
}

func newMappedRegion(ctx device.Context, q device.Queue, n int, access Access) (*MappedRegion, error) {
	mem, err := ctx.CreateBuffer(access.device(), int64(n)*4, true)
	if err != nil {
		return nil, fmt.Errorf("mapped region: %w", err)
	}

	view, ev, err := q.EnqueueMap(mem, access.mapFlags())
	if err != nil {
		mem.Release()
		return nil, fmt.Errorf("mapped region: %w", err)
	}
	elapsed, err := ev.Elapsed()
	if rerr := ev.Release(); err == nil {
		err = rerr
	}
	r := &MappedRegion{
		queue:   q,
		mem:     mem,
		view:    view,
		access:  access,
		mapTime: elapsed,
	}
	if err != nil {
		r.Release()
		return nil, fmt.Errorf("mapped region: %w", err)
	}
	return r, nil
}

func (r *MappedRegion) Host() []float32 {
	if r.released {
		panic("memory: Host called on a released mapped region")
	}
	return r.view
}

func (r *MappedRegion) Len() int { return len(r.view) }
func (r *MappedRegion) Mem() device.Mem { return r.mem }
func (r *MappedRegion) Queue() device.Queue { return r.queue }
func (r *MappedRegion) Strategy() Strategy { return Mapped }
func (r *MappedRegion) Access() Access { return r.access }

// MapTime is the device time the acquiring map took.
func (r *MappedRegion) MapTime() time.Duration {
	return r.mapTime
}

// Release unmaps the view, waits for the unmap to finish and frees the
// device allocation.
func (r *MappedRegion) Release() error {
	if r.released {
		panic("memory: mapped region released twice")
	}
	r.released = true
	view := r.view
	r.view = nil

	var errs []error
	ev, err := r.queue.EnqueueUnmap(r.mem, view)
	if err != nil {
		errs = append(errs, err)
	} else {
		if err := ev.Wait(); err != nil {
			errs = append(errs, err)
		}
		if err := ev.Release(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := r.mem.Release(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// MapTimer is implemented by regions that record how long acquiring the
// host view took.
type MapTimer interface {
	MapTime() time.Duration
}
