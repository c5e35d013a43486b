package sim

import (
	"sync"

	"github.com/xupit3r/membench/internal/device"
)

// buffer is a device allocation. Mapping hands out the backing slice
// directly, the same zero-copy view a host-allocated OpenCL buffer gives.
type buffer struct {
	dev      *Device
	access   device.Access
	mappable bool

	mu       sync.Mutex
	data     []float32
	mapped   int
	released bool
}

func (b *buffer) Size() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int64(len(b.data)) * 4
}

func (b *buffer) Release() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return device.Errorf("release buffer", device.InvalidMemObject, "buffer released twice")
	}
	if b.mapped > 0 {
		return device.Errorf("release buffer", device.InvalidOperation, "buffer released with %d live mapping(s)", b.mapped)
	}
	size := int64(len(b.data)) * 4
	b.released = true
	b.data = nil

	b.dev.mu.Lock()
	b.dev.memUsed -= size
	b.dev.stats.Buffers--
	b.dev.mu.Unlock()
	return nil
}

// live returns the backing slice or an error when the buffer is gone.
func (b *buffer) live(op string) ([]float32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return nil, device.Errorf(op, device.InvalidMemObject, "buffer already released")
	}
	return b.data, nil
}

// asBuffer checks that mem was created by dev.
func asBuffer(dev *Device, op string, mem device.Mem) (*buffer, error) {
	b, ok := mem.(*buffer)
	if !ok || b == nil {
		return nil, device.Errorf(op, device.InvalidMemObject, "not a simulator buffer: %T", mem)
	}
	if b.dev != dev {
		return nil, device.Errorf(op, device.InvalidMemObject, "buffer belongs to another device")
	}
	if _, err := b.live(op); err != nil {
		return nil, err
	}
	return b, nil
}
