package sim

import (
	"sync"

	"github.com/xupit3r/membench/internal/device"
)

const queueDepth = 256

type command struct {
	run func() error
	ev  *event
}

// queue executes its commands one at a time, in enqueue order, on its own
// goroutine.
type queue struct {
	dev  *Device
	cmds chan command

	pending sync.WaitGroup

	mu       sync.Mutex
	released bool

	failMu sync.Mutex
	failed error
}

func newQueue(d *Device) *queue {
	q := &queue{
		dev:  d,
		cmds: make(chan command, queueDepth),
	}
	go q.loop()
	return q
}

func (q *queue) loop() {
	for cmd := range q.cmds {
		start := q.dev.now()
		err := cmd.run()
		cmd.ev.complete(start, q.dev.now(), err)
		if err != nil {
			q.failMu.Lock()
			if q.failed == nil {
				q.failed = err
			}
			q.failMu.Unlock()
		}
		q.pending.Done()
	}
}

// enqueue queues run and returns its event. The caller has already counted
// the device call.
func (q *queue) enqueue(op string, run func() error) (*event, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.released {
		return nil, device.Errorf(op, device.InvalidCommandQueue, "queue already released")
	}
	ev := newEvent(q.dev)
	q.pending.Add(1)
	q.cmds <- command{run: run, ev: ev}
	return ev, nil
}

func (q *queue) EnqueueWrite(mem device.Mem, src []float32) (device.Event, error) {
	if err := q.dev.call(OpEnqueueWrite); err != nil {
		return nil, err
	}
	b, err := asBuffer(q.dev, OpEnqueueWrite, mem)
	if err != nil {
		return nil, err
	}
	if int64(len(src))*4 > b.Size() {
		return nil, device.Errorf(OpEnqueueWrite, device.InvalidValue, "%d floats do not fit in %d bytes", len(src), b.Size())
	}
	return q.enqueue(OpEnqueueWrite, func() error {
		data, err := b.live(OpEnqueueWrite)
		if err != nil {
			return err
		}
		copy(data, src)
		return nil
	})
}

func (q *queue) EnqueueRead(mem device.Mem, dst []float32) (device.Event, error) {
	if err := q.dev.call(OpEnqueueRead); err != nil {
		return nil, err
	}
	b, err := asBuffer(q.dev, OpEnqueueRead, mem)
	if err != nil {
		return nil, err
	}
	if int64(len(dst))*4 > b.Size() {
		return nil, device.Errorf(OpEnqueueRead, device.InvalidValue, "%d floats exceed %d bytes", len(dst), b.Size())
	}
	return q.enqueue(OpEnqueueRead, func() error {
		data, err := b.live(OpEnqueueRead)
		if err != nil {
			return err
		}
		copy(dst, data)
		return nil
	})
}

func (q *queue) EnqueueMap(mem device.Mem, flags device.MapFlags) ([]float32, device.Event, error) {
	if err := q.dev.call(OpEnqueueMap); err != nil {
		return nil, nil, err
	}
	b, err := asBuffer(q.dev, OpEnqueueMap, mem)
	if err != nil {
		return nil, nil, err
	}
	if flags&(device.MapRead|device.MapWrite) == 0 {
		return nil, nil, device.Errorf(OpEnqueueMap, device.InvalidValue, "no map direction")
	}

	var view []float32
	ev, err := q.enqueue(OpEnqueueMap, func() error {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.released {
			return device.Errorf(OpEnqueueMap, device.InvalidMemObject, "buffer already released")
		}
		b.mapped++
		view = b.data
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	// blocking map
	if err := ev.Wait(); err != nil {
		ev.Release()
		return nil, nil, err
	}
	q.dev.track(&q.dev.stats.Mappings, 1)
	return view, ev, nil
}

func (q *queue) EnqueueUnmap(mem device.Mem, host []float32) (device.Event, error) {
	if err := q.dev.call(OpEnqueueUnmap); err != nil {
		return nil, err
	}
	b, err := asBuffer(q.dev, OpEnqueueUnmap, mem)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	valid := b.mapped > 0 && len(host) > 0 && len(b.data) > 0 && &host[0] == &b.data[0]
	b.mu.Unlock()
	if !valid {
		return nil, device.Errorf(OpEnqueueUnmap, device.InvalidValue, "pointer is not a live mapping of this buffer")
	}

	return q.enqueue(OpEnqueueUnmap, func() error {
		b.mu.Lock()
		b.mapped--
		b.mu.Unlock()
		q.dev.track(&q.dev.stats.Mappings, -1)
		return nil
	})
}

func (q *queue) EnqueueKernel(k device.Kernel, global, local [3]int) (device.Event, error) {
	if err := q.dev.call(OpEnqueueKernel); err != nil {
		return nil, err
	}
	kern, ok := k.(*kernel)
	if !ok || kern.dev != q.dev {
		return nil, device.Errorf(OpEnqueueKernel, device.InvalidKernel, "not a kernel of this device: %T", k)
	}
	for i := range global {
		if global[i] <= 0 || local[i] <= 0 || global[i]%local[i] != 0 {
			return nil, device.Errorf(OpEnqueueKernel, device.InvalidWorkGroupSize,
				"%s: global %v is not divisible into local %v", kern.name, global, local)
		}
	}
	inv, err := kern.snapshot()
	if err != nil {
		return nil, err
	}

	q.dev.recordLaunch(Launch{Kernel: kern.name, Global: global, Local: local})
	return q.enqueue(OpEnqueueKernel, func() error {
		return inv.run(global, local)
	})
}

func (q *queue) Finish() error {
	if err := q.dev.call(OpFinish); err != nil {
		return err
	}
	q.mu.Lock()
	released := q.released
	q.mu.Unlock()
	if released {
		return device.Errorf(OpFinish, device.InvalidCommandQueue, "queue already released")
	}

	q.pending.Wait()

	q.failMu.Lock()
	defer q.failMu.Unlock()
	err := q.failed
	q.failed = nil
	return err
}

func (q *queue) Release() error {
	q.mu.Lock()
	if q.released {
		q.mu.Unlock()
		return device.Errorf("release queue", device.InvalidCommandQueue, "queue released twice")
	}
	q.released = true
	q.mu.Unlock()

	// Commands already queued still drain on the loop goroutine. A kernel
	// blocked on a pipe stays blocked until the device is released.
	close(q.cmds)
	q.dev.track(&q.dev.stats.Queues, -1)
	return nil
}
