// Package sim implements device.Context as an in-process accelerator model.
//
// Each queue is a goroutine draining commands in order, kernels run as Go
// code and the reader, compute and writer kernels hand elements to each other
// over device-internal channels, the way an FPGA program uses pipes. The
// device keeps live resource counters so tests can check that runs release
// everything they create.
package sim

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/xupit3r/membench/internal/device"
)

// Operation names reported in errors and accepted by WithFault.
const (
	OpCreateQueue   = "create queue"
	OpCreateKernel  = "create kernel"
	OpCreateBuffer  = "create buffer"
	OpAllocHost     = "alloc host"
	OpEnqueueWrite  = "enqueue write"
	OpEnqueueRead   = "enqueue read"
	OpEnqueueMap    = "enqueue map"
	OpEnqueueUnmap  = "enqueue unmap"
	OpEnqueueKernel = "enqueue kernel"
	OpFinish        = "finish"
	OpSetArg        = "set kernel arg"
)

const (
	defaultPipeDepth      = 64
	defaultLaunchOverhead = time.Microsecond
)

// Stats counts live device resources and the total number of device calls.
type Stats struct {
	Queues     int
	Buffers    int
	Kernels    int
	Events     int
	HostArrays int
	Mappings   int
	Ops        int64
}

// Live reports the number of resources not yet released.
func (s Stats) Live() int {
	return s.Queues + s.Buffers + s.Kernels + s.Events + s.HostArrays + s.Mappings
}

// Launch records one kernel enqueue.
type Launch struct {
	Kernel string
	Global [3]int
	Local  [3]int
}

// Option configures a Device.
type Option func(*Device)

// WithFault makes every call of the named operation fail.
func WithFault(op string) Option {
	return func(d *Device) {
		d.faults[op] = true
	}
}

// WithComputeBias adds bias to every value the compute stage produces.
func WithComputeBias(bias float32) Option {
	return func(d *Device) {
		d.computeBias = bias
	}
}

// WithMemoryLimit caps the total bytes of live device buffers.
func WithMemoryLimit(bytes int64) Option {
	return func(d *Device) {
		d.memLimit = bytes
	}
}

// WithPipeDepth sets the capacity of the inter-kernel channels.
func WithPipeDepth(n int) Option {
	return func(d *Device) {
		if n > 0 {
			d.pipeDepth = n
		}
	}
}

// WithLaunchOverhead sets the fixed per-command latency added to every
// event's device timestamps.
func WithLaunchOverhead(overhead time.Duration) Option {
	return func(d *Device) {
		d.overhead = overhead
	}
}

type element struct {
	index int
	value float32
}

// Device is the simulated accelerator. It implements device.Context.
type Device struct {
	info device.Info

	faults      map[string]bool
	computeBias float32
	memLimit    int64
	pipeDepth   int
	overhead    time.Duration

	mu       sync.Mutex
	stats    Stats
	memUsed  int64
	launches []Launch
	released bool

	// Device-internal channels between pipeline kernels.
	readerToCompute chan element
	computeToWriter chan element
	autorunIn       chan element
	autorunOut      chan element

	stop chan struct{}
	wg   sync.WaitGroup
}

// Platforms lists the single simulated platform.
func Platforms() []device.PlatformInfo {
	return []device.PlatformInfo{{
		Name:    "membench simulator",
		Vendor:  "membench",
		Version: "sim 1.0",
		Devices: []device.Info{defaultInfo()},
	}}
}

func defaultInfo() device.Info {
	return device.Info{
		Platform:     "membench simulator",
		Name:         fmt.Sprintf("sim0 (%s)", runtime.GOARCH),
		Vendor:       "membench",
		Version:      "sim 1.0",
		Type:         device.TypeAccelerator,
		ComputeUnits: runtime.NumCPU(),
	}
}

// Open creates a simulated device at the given platform and device index.
// Only index 0 exists for both.
func Open(platform, dev int, opts ...Option) (*Device, error) {
	if platform != 0 {
		return nil, device.Errorf("select platform", device.InvalidPlatform, "platform %d not found", platform)
	}
	if dev != 0 {
		return nil, device.Errorf("select device", device.DeviceNotFound, "device %d not found on platform %d", dev, platform)
	}
	return New(opts...), nil
}

// New creates a simulated device with the autorun compute kernel already
// running.
func New(opts ...Option) *Device {
	d := &Device{
		info:      defaultInfo(),
		faults:    make(map[string]bool),
		pipeDepth: defaultPipeDepth,
		overhead:  defaultLaunchOverhead,
		stop:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.info.GlobalMemBytes = d.memLimit

	d.readerToCompute = make(chan element, d.pipeDepth)
	d.computeToWriter = make(chan element, d.pipeDepth)
	d.autorunIn = make(chan element, d.pipeDepth)
	d.autorunOut = make(chan element, d.pipeDepth)

	d.wg.Add(1)
	go d.autorunCompute()

	return d
}

// autorunCompute is the device-resident compute stage used by the autorun
// kernels. It runs for the lifetime of the device without host launches.
func (d *Device) autorunCompute() {
	defer d.wg.Done()
	for {
		select {
		case <-d.stop:
			return
		case e := <-d.autorunIn:
			e.value = d.square(e.value)
			select {
			case d.autorunOut <- e:
			case <-d.stop:
				return
			}
		}
	}
}

func (d *Device) square(v float32) float32 {
	return float32(v*v) + d.computeBias
}

// Info implements device.Context.
func (d *Device) Info() device.Info {
	return d.info
}

// Stats returns a snapshot of the resource counters.
func (d *Device) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// Launches returns every kernel launch recorded so far.
func (d *Device) Launches() []Launch {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Launch, len(d.launches))
	copy(out, d.launches)
	return out
}

// call counts a device call and applies injected faults.
func (d *Device) call(op string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats.Ops++
	if d.released {
		return device.Errorf(op, device.InvalidDevice, "device released")
	}
	if d.faults[op] {
		return device.Errorf(op, device.OutOfResources, "injected fault")
	}
	return nil
}

// track adjusts a live counter under the device lock.
func (d *Device) track(counter *int, delta int) {
	d.mu.Lock()
	*counter += delta
	d.mu.Unlock()
}

// CreateQueue implements device.Context.
func (d *Device) CreateQueue() (device.Queue, error) {
	if err := d.call(OpCreateQueue); err != nil {
		return nil, err
	}
	q := newQueue(d)
	d.track(&d.stats.Queues, 1)
	return q, nil
}

// CreateBuffer implements device.Context.
func (d *Device) CreateBuffer(access device.Access, size int64, mappable bool) (device.Mem, error) {
	if err := d.call(OpCreateBuffer); err != nil {
		return nil, err
	}
	if size <= 0 || size%4 != 0 {
		return nil, device.Errorf(OpCreateBuffer, device.InvalidValue, "invalid buffer size %d", size)
	}

	d.mu.Lock()
	if d.memLimit > 0 && d.memUsed+size > d.memLimit {
		used := d.memUsed
		d.mu.Unlock()
		return nil, device.Errorf(OpCreateBuffer, device.MemObjectAllocationFail,
			"%d bytes requested, %d of %d in use", size, used, d.memLimit)
	}
	d.memUsed += size
	d.stats.Buffers++
	d.mu.Unlock()

	return &buffer{
		dev:      d,
		access:   access,
		mappable: mappable,
		data:     make([]float32, size/4),
	}, nil
}

// AllocHost implements device.Context.
func (d *Device) AllocHost(n int) (device.HostArray, error) {
	if err := d.call(OpAllocHost); err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, device.Errorf(OpAllocHost, device.InvalidValue, "invalid host array length %d", n)
	}
	d.track(&d.stats.HostArrays, 1)
	return &hostArray{dev: d, data: make([]float32, n)}, nil
}

// Release stops the device-resident kernels. Resources still alive stay
// visible in Stats.
func (d *Device) Release() error {
	d.mu.Lock()
	if d.released {
		d.mu.Unlock()
		return device.Errorf("release device", device.InvalidDevice, "device released twice")
	}
	d.released = true
	d.mu.Unlock()

	close(d.stop)
	d.wg.Wait()
	return nil
}

func (d *Device) recordLaunch(l Launch) {
	d.mu.Lock()
	d.launches = append(d.launches, l)
	d.mu.Unlock()
}

// now is the device clock.
func (d *Device) now() time.Time {
	return time.Now()
}

// send and recv move one element over a device channel unless the device is
// shutting down.
func (d *Device) send(ch chan<- element, e element) error {
	select {
	case ch <- e:
		return nil
	case <-d.stop:
		return errStopped
	}
}

func (d *Device) recv(ch <-chan element) (element, error) {
	select {
	case e := <-ch:
		return e, nil
	case <-d.stop:
		return element{}, errStopped
	}
}

var errStopped = device.Errorf("device", device.InvalidDevice, "device stopped")

type hostArray struct {
	dev   *Device
	mu    sync.Mutex
	data  []float32
	freed bool
}

func (h *hostArray) Floats() []float32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.data
}

func (h *hostArray) Free() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.freed {
		return device.Errorf("free host", device.InvalidValue, "host array freed twice")
	}
	h.freed = true
	h.data = nil
	h.dev.track(&h.dev.stats.HostArrays, -1)
	return nil
}
