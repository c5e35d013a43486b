// Package device defines the compute-context abstraction the benchmark runs
// against: a device with a loaded program, in-order execution queues,
// device allocations, kernels and profiling events.
//
// Backends live in sub-packages. The sim backend is an in-process accelerator
// model; the opencl backend talks to a real OpenCL runtime when built with
// the opencl tag.
package device

import (
	"time"
)

// Context is a device paired with its compiled program. It is borrowed by
// every benchmark run and released once at the end of the process.
type Context interface {
	// Info describes the platform and device behind the context
	Info() Info

	// CreateQueue creates an in-order queue with profiling enabled
	CreateQueue() (Queue, error)

	// CreateKernel looks up a named entry point in the loaded program
	CreateKernel(name string) (Kernel, error)

	// CreateBuffer allocates size bytes of device memory
	CreateBuffer(access Access, size int64, mappable bool) (Mem, error)

	// AllocHost allocates n host floats suitable for asynchronous transfers
	AllocHost(n int) (HostArray, error)

	// Release frees the program and the device context
	Release() error
}

// Queue is an in-order asynchronous execution channel. Enqueue calls return
// as soon as the command is queued; the returned event completes later.
type Queue interface {
	// EnqueueWrite copies src into mem. src must stay untouched until the
	// event completes.
	EnqueueWrite(mem Mem, src []float32) (Event, error)

	// EnqueueRead copies mem into dst.
	EnqueueRead(mem Mem, dst []float32) (Event, error)

	// EnqueueMap maps mem into the host address space and blocks until the
	// mapping is usable.
	EnqueueMap(mem Mem, flags MapFlags) ([]float32, Event, error)

	// EnqueueUnmap ends a mapping obtained from EnqueueMap.
	EnqueueUnmap(mem Mem, host []float32) (Event, error)

	// EnqueueKernel launches kernel over an NDRange of global work items
	// split into groups of local work items.
	EnqueueKernel(kernel Kernel, global, local [3]int) (Event, error)

	// Finish blocks until every command queued so far has completed
	Finish() error

	// Release frees the queue
	Release() error
}

// Mem is a device allocation.
type Mem interface {
	Size() int64
	Release() error
}

// HostArray is host memory owned by the device runtime.
type HostArray interface {
	Floats() []float32
	Free() error
}

// Kernel is a named program entry point with bound arguments.
type Kernel interface {
	Name() string

	// SetArg binds argument index to a Mem or an int32 value
	SetArg(index int, value any) error

	Release() error
}

// Event is a single-use completion handle carrying device timestamps.
type Event interface {
	// Wait blocks until the command has completed
	Wait() error

	// Elapsed returns end minus start of the completed command
	Elapsed() (time.Duration, error)

	// Release frees the event. Events must be released exactly once.
	Release() error
}

// Access is the device-side access hint of an allocation.
type Access int

const (
	ReadWrite Access = iota
	ReadOnly
	WriteOnly
)

func (a Access) String() string {
	switch a {
	case ReadOnly:
		return "read-only"
	case WriteOnly:
		return "write-only"
	default:
		return "read-write"
	}
}

// MapFlags selects the host-side direction of a mapping.
type MapFlags int

const (
	MapRead MapFlags = 1 << iota
	MapWrite
)

// Type is the class of a compute device.
type Type int

const (
	TypeDefault Type = iota
	TypeCPU
	TypeGPU
	TypeAccelerator
)

func (t Type) String() string {
	switch t {
	case TypeCPU:
		return "CPU"
	case TypeGPU:
		return "GPU"
	case TypeAccelerator:
		return "Accelerator"
	default:
		return "Default"
	}
}

// Info describes a device.
type Info struct {
	Platform       string
	Name           string
	Vendor         string
	Version        string
	Type           Type
	ComputeUnits   int
	GlobalMemBytes int64
}

// PlatformInfo groups the devices reported by one platform.
type PlatformInfo struct {
	Name    string
	Vendor  string
	Version string
	Devices []Info
}
