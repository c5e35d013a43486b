package sim

import (
	"sync"

	"github.com/xupit3r/membench/internal/device"
)

type argKind int

const (
	argMem argKind = iota
	argInt
)

// program is the set of entry points the simulated binary exposes.
var program = map[string][]argKind{
	"reader_single":  {argMem, argInt},
	"compute_single": {argInt},
	"writer_single":  {argMem, argInt},
	"reader_range":   {argMem, argInt},
	"compute_range":  {argInt},
	"writer_range":   {argMem, argInt},
	"reader_autorun": {argMem, argInt},
	"writer_autorun": {argMem, argInt},
}

type kernel struct {
	dev  *Device
	name string
	kind []argKind

	mu       sync.Mutex
	args     []any
	released bool
}

// CreateKernel implements device.Context.
func (d *Device) CreateKernel(name string) (device.Kernel, error) {
	if err := d.call(OpCreateKernel); err != nil {
		return nil, err
	}
	kind, ok := program[name]
	if !ok {
		return nil, device.Errorf(OpCreateKernel, device.InvalidKernelName, "no kernel named %q", name)
	}
	d.track(&d.stats.Kernels, 1)
	return &kernel{
		dev:  d,
		name: name,
		kind: kind,
		args: make([]any, len(kind)),
	}, nil
}

func (k *kernel) Name() string {
	return k.name
}

func (k *kernel) SetArg(index int, value any) error {
	if err := k.dev.call(OpSetArg); err != nil {
		return err
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.released {
		return device.Errorf(OpSetArg, device.InvalidKernel, "%s: kernel already released", k.name)
	}
	if index < 0 || index >= len(k.kind) {
		return device.Errorf(OpSetArg, device.InvalidArgIndex, "%s: argument %d out of range", k.name, index)
	}

	switch k.kind[index] {
	case argMem:
		b, err := asBuffer(k.dev, OpSetArg, asMem(value))
		if err != nil {
			return device.Errorf(OpSetArg, device.InvalidArgValue, "%s: argument %d: %v", k.name, index, err)
		}
		k.args[index] = b
	case argInt:
		n, ok := asInt32(value)
		if !ok {
			return device.Errorf(OpSetArg, device.InvalidArgValue, "%s: argument %d wants an int32, got %T", k.name, index, value)
		}
		k.args[index] = n
	}
	return nil
}

func asMem(v any) device.Mem {
	m, _ := v.(device.Mem)
	return m
}

func asInt32(v any) (int32, bool) {
	switch n := v.(type) {
	case int32:
		return n, true
	case int:
		return int32(n), true
	default:
		return 0, false
	}
}

func (k *kernel) Release() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.released {
		return device.Errorf("release kernel", device.InvalidKernel, "%s: kernel released twice", k.name)
	}
	k.released = true
	k.args = nil
	k.dev.track(&k.dev.stats.Kernels, -1)
	return nil
}

// invocation is a kernel with its arguments captured at enqueue time.
type invocation struct {
	dev  *Device
	name string
	buf  *buffer
	n    int
}

func (k *kernel) snapshot() (*invocation, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.released {
		return nil, device.Errorf(OpEnqueueKernel, device.InvalidKernel, "%s: kernel already released", k.name)
	}
	inv := &invocation{dev: k.dev, name: k.name}
	for i, a := range k.args {
		switch v := a.(type) {
		case *buffer:
			inv.buf = v
		case int32:
			inv.n = int(v)
		default:
			return nil, device.Errorf(OpEnqueueKernel, device.InvalidKernelArgs, "%s: argument %d not set", k.name, i)
		}
	}
	if inv.buf != nil && int64(inv.n)*4 > inv.buf.Size() {
		return nil, device.Errorf(OpEnqueueKernel, device.InvalidKernelArgs,
			"%s: %d elements exceed a %d byte buffer", k.name, inv.n, inv.buf.Size())
	}
	return inv, nil
}

func (inv *invocation) run(global, local [3]int) error {
	d := inv.dev
	switch inv.name {
	case "reader_single":
		return inv.single(func(i int) error { return inv.read(d.readerToCompute, i) })
	case "compute_single":
		return inv.single(func(int) error { return inv.compute(d.readerToCompute, d.computeToWriter) })
	case "writer_single":
		return inv.single(func(int) error { return inv.write(d.computeToWriter) })
	case "reader_range":
		return inv.ndrange(global, local, func(i int) error { return inv.read(d.readerToCompute, i) })
	case "compute_range":
		return inv.ndrange(global, local, func(int) error { return inv.compute(d.readerToCompute, d.computeToWriter) })
	case "writer_range":
		return inv.ndrange(global, local, func(int) error { return inv.write(d.computeToWriter) })
	case "reader_autorun":
		return inv.single(func(i int) error { return inv.read(d.autorunIn, i) })
	case "writer_autorun":
		return inv.single(func(int) error { return inv.write(d.autorunOut) })
	}
	return device.Errorf(OpEnqueueKernel, device.InvalidKernel, "no kernel named %q", inv.name)
}

// single runs one work item that loops over the whole batch.
func (inv *invocation) single(step func(i int) error) error {
	for i := 0; i < inv.n; i++ {
		if err := step(i); err != nil {
			return err
		}
	}
	return nil
}

// ndrange runs one work item per global id. Items of a work group run
// concurrently; groups run one after another.
func (inv *invocation) ndrange(global, local [3]int, step func(i int) error) error {
	total := global[0] * global[1] * global[2]
	group := local[0] * local[1] * local[2]

	for base := 0; base < total; base += group {
		var wg sync.WaitGroup
		errs := make([]error, group)
		for l := 0; l < group; l++ {
			id := base + l
			if id >= inv.n {
				break
			}
			wg.Add(1)
			go func(l, id int) {
				defer wg.Done()
				errs[l] = step(id)
			}(l, id)
		}
		wg.Wait()
		for _, err := range errs {
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func (inv *invocation) read(out chan<- element, i int) error {
	data, err := inv.buf.live(OpEnqueueKernel)
	if err != nil {
		return err
	}
	return inv.dev.send(out, element{index: i, value: data[i]})
}

func (inv *invocation) compute(in <-chan element, out chan<- element) error {
	e, err := inv.dev.recv(in)
	if err != nil {
		return err
	}
	e.value = inv.dev.square(e.value)
	return inv.dev.send(out, e)
}

func (inv *invocation) write(in <-chan element) error {
	e, err := inv.dev.recv(in)
	if err != nil {
		return err
	}
	data, err := inv.buf.live(OpEnqueueKernel)
	if err != nil {
		return err
	}
	data[e.index] = e.value
	return nil
}
