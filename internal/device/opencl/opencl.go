//go:build opencl && cgo

// Package opencl implements device.Context on top of an OpenCL runtime.
// Build with -tags opencl; without the tag every entry point reports that
// OpenCL support was not compiled in.
package opencl

/*
#cgo linux CFLAGS: -I/opt/intelFPGA_pro/hld/host/include -I/opt/rocm/include -I/usr/include
#cgo linux LDFLAGS: -L/opt/rocm/lib -L/usr/lib/x86_64-linux-gnu -lOpenCL
#cgo darwin LDFLAGS: -framework OpenCL
#cgo windows LDFLAGS: -lOpenCL

#define CL_TARGET_OPENCL_VERSION 120
#define CL_USE_DEPRECATED_OPENCL_1_2_APIS

#ifdef __APPLE__
#include <OpenCL/opencl.h>
#else
#include <CL/cl.h>
#endif

#include <stdlib.h>

// Host allocations used for asynchronous transfers must be aligned for DMA.
static void* membench_alloc_host(size_t size) {
    void* ptr = NULL;
    if (posix_memalign(&ptr, 64, size) != 0) {
        return NULL;
    }
    return ptr;
}

static cl_program membench_program_from_binary(cl_context ctx, cl_device_id dev,
                                               const unsigned char* bin, size_t len,
                                               cl_int* bin_status, cl_int* status) {
    return clCreateProgramWithBinary(ctx, 1, &dev, &len, &bin, bin_status, status);
}
*/
import "C"

import (
	"fmt"
	"os"
	"sync"
	"time"
	"unsafe"

	"github.com/xupit3r/membench/internal/device"
)

// Available reports whether the package was built against OpenCL.
const Available = true

func check(status C.cl_int, op string) error {
	if status == C.CL_SUCCESS {
		return nil
	}
	return &device.Error{Op: op, Status: device.Status(status)}
}

func platformIDs() ([]C.cl_platform_id, error) {
	var n C.cl_uint
	if err := check(C.clGetPlatformIDs(0, nil, &n), "clGetPlatformIDs"); err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, device.Errorf("clGetPlatformIDs", device.InvalidPlatform, "no OpenCL platforms")
	}
	ids := make([]C.cl_platform_id, n)
	if err := check(C.clGetPlatformIDs(n, &ids[0], nil), "clGetPlatformIDs"); err != nil {
		return nil, err
	}
	return ids, nil
}

func deviceIDs(p C.cl_platform_id) ([]C.cl_device_id, error) {
	var n C.cl_uint
	if err := check(C.clGetDeviceIDs(p, C.CL_DEVICE_TYPE_ALL, 0, nil, &n), "clGetDeviceIDs"); err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, device.Errorf("clGetDeviceIDs", device.DeviceNotFound, "platform has no devices")
	}
	ids := make([]C.cl_device_id, n)
	if err := check(C.clGetDeviceIDs(p, C.CL_DEVICE_TYPE_ALL, n, &ids[0], nil), "clGetDeviceIDs"); err != nil {
		return nil, err
	}
	return ids, nil
}

func platformString(p C.cl_platform_id, param C.cl_platform_info) string {
	var size C.size_t
	if C.clGetPlatformInfo(p, param, 0, nil, &size) != C.CL_SUCCESS || size == 0 {
		return ""
	}
	buf := C.malloc(size)
	defer C.free(buf)
	if C.clGetPlatformInfo(p, param, size, buf, nil) != C.CL_SUCCESS {
		return ""
	}
	return C.GoString((*C.char)(buf))
}

func deviceString(d C.cl_device_id, param C.cl_device_info) string {
	var size C.size_t
	if C.clGetDeviceInfo(d, param, 0, nil, &size) != C.CL_SUCCESS || size == 0 {
		return ""
	}
	buf := C.malloc(size)
	defer C.free(buf)
	if C.clGetDeviceInfo(d, param, size, buf, nil) != C.CL_SUCCESS {
		return ""
	}
	return C.GoString((*C.char)(buf))
}

func deviceInfo(platform string, d C.cl_device_id) device.Info {
	var dtype C.cl_device_type
	var units C.cl_uint
	var mem C.cl_ulong
	C.clGetDeviceInfo(d, C.CL_DEVICE_TYPE, C.size_t(unsafe.Sizeof(dtype)), unsafe.Pointer(&dtype), nil)
	C.clGetDeviceInfo(d, C.CL_DEVICE_MAX_COMPUTE_UNITS, C.size_t(unsafe.Sizeof(units)), unsafe.Pointer(&units), nil)
	C.clGetDeviceInfo(d, C.CL_DEVICE_GLOBAL_MEM_SIZE, C.size_t(unsafe.Sizeof(mem)), unsafe.Pointer(&mem), nil)

	t := device.TypeDefault
	switch {
	case dtype&C.CL_DEVICE_TYPE_ACCELERATOR != 0:
		t = device.TypeAccelerator
	case dtype&C.CL_DEVICE_TYPE_GPU != 0:
		t = device.TypeGPU
	case dtype&C.CL_DEVICE_TYPE_CPU != 0:
		t = device.TypeCPU
	}

	return device.Info{
		Platform:       platform,
		Name:           deviceString(d, C.CL_DEVICE_NAME),
		Vendor:         deviceString(d, C.CL_DEVICE_VENDOR),
		Version:        deviceString(d, C.CL_DEVICE_VERSION),
		Type:           t,
		ComputeUnits:   int(units),
		GlobalMemBytes: int64(mem),
	}
}

// Platforms enumerates every OpenCL platform and its devices.
func Platforms() ([]device.PlatformInfo, error) {
	pids, err := platformIDs()
	if err != nil {
		return nil, err
	}
	var out []device.PlatformInfo
	for _, p := range pids {
		info := device.PlatformInfo{
			Name:    platformString(p, C.CL_PLATFORM_NAME),
			Vendor:  platformString(p, C.CL_PLATFORM_VENDOR),
			Version: platformString(p, C.CL_PLATFORM_VERSION),
		}
		if dids, err := deviceIDs(p); err == nil {
			for _, d := range dids {
				info.Devices = append(info.Devices, deviceInfo(info.Name, d))
			}
		}
		out = append(out, info)
	}
	return out, nil
}

// Context is an OpenCL context with the benchmark program built for one
// device.
type Context struct {
	info    device.Info
	device  C.cl_device_id
	context C.cl_context
	program C.cl_program

	mu       sync.Mutex
	released bool
}

// Open selects a platform and device by index and loads the precompiled
// program binary at path.
func Open(path string, platform, dev int) (*Context, error) {
	binary, err := os.ReadFile(path)
	if err != nil {
		return nil, &device.Error{Op: "load program binary", Status: device.InvalidBinary, Err: err}
	}
	if len(binary) == 0 {
		return nil, device.Errorf("load program binary", device.InvalidBinary, "%s is empty", path)
	}

	pids, err := platformIDs()
	if err != nil {
		return nil, err
	}
	if platform < 0 || platform >= len(pids) {
		return nil, device.Errorf("select platform", device.InvalidPlatform, "platform %d of %d", platform, len(pids))
	}
	dids, err := deviceIDs(pids[platform])
	if err != nil {
		return nil, err
	}
	if dev < 0 || dev >= len(dids) {
		return nil, device.Errorf("select device", device.DeviceNotFound, "device %d of %d", dev, len(dids))
	}

	c := &Context{
		device: dids[dev],
		info:   deviceInfo(platformString(pids[platform], C.CL_PLATFORM_NAME), dids[dev]),
	}

	var status C.cl_int
	c.context = C.clCreateContext(nil, 1, &c.device, nil, nil, &status)
	if err := check(status, "clCreateContext"); err != nil {
		return nil, err
	}

	cbin := C.CBytes(binary)
	defer C.free(cbin)
	var binStatus C.cl_int
	c.program = C.membench_program_from_binary(c.context, c.device,
		(*C.uchar)(cbin), C.size_t(len(binary)), &binStatus, &status)
	if err := check(status, "clCreateProgramWithBinary"); err != nil {
		C.clReleaseContext(c.context)
		return nil, err
	}
	if err := check(binStatus, "clCreateProgramWithBinary"); err != nil {
		C.clReleaseProgram(c.program)
		C.clReleaseContext(c.context)
		return nil, err
	}

	copts := C.CString("")
	defer C.free(unsafe.Pointer(copts))
	if err := check(C.clBuildProgram(c.program, 1, &c.device, copts, nil, nil), "clBuildProgram"); err != nil {
		C.clReleaseProgram(c.program)
		C.clReleaseContext(c.context)
		return nil, err
	}

	return c, nil
}

func (c *Context) Info() device.Info {
	return c.info
}

func (c *Context) CreateQueue() (device.Queue, error) {
	var status C.cl_int
	q := C.clCreateCommandQueue(c.context, c.device, C.CL_QUEUE_PROFILING_ENABLE, &status)
	if err := check(status, "clCreateCommandQueue"); err != nil {
		return nil, err
	}
	return &queue{q: q}, nil
}

func (c *Context) CreateKernel(name string) (device.Kernel, error) {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	var status C.cl_int
	k := C.clCreateKernel(c.program, cname, &status)
	if err := check(status, "clCreateKernel"); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return &kernel{k: k, name: name}, nil
}

func (c *Context) CreateBuffer(access device.Access, size int64, mappable bool) (device.Mem, error) {
	var flags C.cl_mem_flags
	switch access {
	case device.ReadOnly:
		flags = C.CL_MEM_READ_ONLY
	case device.WriteOnly:
		flags = C.CL_MEM_WRITE_ONLY
	default:
		flags = C.CL_MEM_READ_WRITE
	}
	if mappable {
		flags |= C.CL_MEM_ALLOC_HOST_PTR
	}
	var status C.cl_int
	m := C.clCreateBuffer(c.context, flags, C.size_t(size), nil, &status)
	if err := check(status, "clCreateBuffer"); err != nil {
		return nil, err
	}
	return &mem{m: m, size: size}, nil
}

func (c *Context) AllocHost(n int) (device.HostArray, error) {
	if n <= 0 {
		return nil, device.Errorf("alloc host", device.InvalidValue, "invalid host array length %d", n)
	}
	ptr := C.membench_alloc_host(C.size_t(n * 4))
	if ptr == nil {
		return nil, device.Errorf("alloc host", device.OutOfHostMemory, "posix_memalign of %d bytes", n*4)
	}
	return &hostArray{ptr: ptr, data: unsafe.Slice((*float32)(ptr), n)}, nil
}

func (c *Context) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return device.Errorf("release context", device.InvalidValue, "context released twice")
	}
	c.released = true
	if err := check(C.clReleaseProgram(c.program), "clReleaseProgram"); err != nil {
		return err
	}
	return check(C.clReleaseContext(c.context), "clReleaseContext")
}

type hostArray struct {
	ptr  unsafe.Pointer
	data []float32
}

func (h *hostArray) Floats() []float32 { return h.data }

func (h *hostArray) Free() error {
	if h.ptr == nil {
		return device.Errorf("free host", device.InvalidValue, "host array freed twice")
	}
	C.free(h.ptr)
	h.ptr = nil
	h.data = nil
	return nil
}

type mem struct {
	m    C.cl_mem
	size int64
}

func (m *mem) Size() int64 { return m.size }

func (m *mem) Release() error {
	return check(C.clReleaseMemObject(m.m), "clReleaseMemObject")
}

func asMem(op string, v device.Mem) (*mem, error) {
	m, ok := v.(*mem)
	if !ok || m == nil {
		return nil, device.Errorf(op, device.InvalidMemObject, "not an OpenCL buffer: %T", v)
	}
	return m, nil
}

type kernel struct {
	k    C.cl_kernel
	name string
}

func (k *kernel) Name() string { return k.name }

func (k *kernel) SetArg(index int, value any) error {
	var status C.cl_int
	switch v := value.(type) {
	case device.Mem:
		m, err := asMem("clSetKernelArg", v)
		if err != nil {
			return err
		}
		status = C.clSetKernelArg(k.k, C.cl_uint(index), C.size_t(unsafe.Sizeof(m.m)), unsafe.Pointer(&m.m))
	case int32:
		n := C.cl_int(v)
		status = C.clSetKernelArg(k.k, C.cl_uint(index), C.size_t(unsafe.Sizeof(n)), unsafe.Pointer(&n))
	case int:
		n := C.cl_int(v)
		status = C.clSetKernelArg(k.k, C.cl_uint(index), C.size_t(unsafe.Sizeof(n)), unsafe.Pointer(&n))
	default:
		return device.Errorf("clSetKernelArg", device.InvalidArgValue, "%s: unsupported argument type %T", k.name, value)
	}
	if err := check(status, "clSetKernelArg"); err != nil {
		return fmt.Errorf("%s arg %d: %w", k.name, index, err)
	}
	return nil
}

func (k *kernel) Release() error {
	return check(C.clReleaseKernel(k.k), "clReleaseKernel")
}

type queue struct {
	q C.cl_command_queue
}

func (q *queue) EnqueueWrite(m device.Mem, src []float32) (device.Event, error) {
	dm, err := asMem("clEnqueueWriteBuffer", m)
	if err != nil {
		return nil, err
	}
	if len(src) == 0 {
		return nil, device.Errorf("clEnqueueWriteBuffer", device.InvalidValue, "empty source")
	}
	var ev C.cl_event
	status := C.clEnqueueWriteBuffer(q.q, dm.m, C.CL_FALSE, 0, C.size_t(len(src)*4),
		unsafe.Pointer(&src[0]), 0, nil, &ev)
	if err := check(status, "clEnqueueWriteBuffer"); err != nil {
		return nil, err
	}
	return &event{e: ev}, nil
}

func (q *queue) EnqueueRead(m device.Mem, dst []float32) (device.Event, error) {
	dm, err := asMem("clEnqueueReadBuffer", m)
	if err != nil {
		return nil, err
	}
	if len(dst) == 0 {
		return nil, device.Errorf("clEnqueueReadBuffer", device.InvalidValue, "empty destination")
	}
	var ev C.cl_event
	status := C.clEnqueueReadBuffer(q.q, dm.m, C.CL_FALSE, 0, C.size_t(len(dst)*4),
		unsafe.Pointer(&dst[0]), 0, nil, &ev)
	if err := check(status, "clEnqueueReadBuffer"); err != nil {
		return nil, err
	}
	return &event{e: ev}, nil
}

func (q *queue) EnqueueMap(m device.Mem, flags device.MapFlags) ([]float32, device.Event, error) {
	dm, err := asMem("clEnqueueMapBuffer", m)
	if err != nil {
		return nil, nil, err
	}
	var cflags C.cl_map_flags
	if flags&device.MapRead != 0 {
		cflags |= C.CL_MAP_READ
	}
	if flags&device.MapWrite != 0 {
		cflags |= C.CL_MAP_WRITE
	}
	var ev C.cl_event
	var status C.cl_int
	ptr := C.clEnqueueMapBuffer(q.q, dm.m, C.CL_TRUE, cflags, 0, C.size_t(dm.size), 0, nil, &ev, &status)
	if err := check(status, "clEnqueueMapBuffer"); err != nil {
		return nil, nil, err
	}
	return unsafe.Slice((*float32)(ptr), int(dm.size/4)), &event{e: ev}, nil
}

func (q *queue) EnqueueUnmap(m device.Mem, host []float32) (device.Event, error) {
	dm, err := asMem("clEnqueueUnmapMemObject", m)
	if err != nil {
		return nil, err
	}
	if len(host) == 0 {
		return nil, device.Errorf("clEnqueueUnmapMemObject", device.InvalidValue, "empty mapping")
	}
	var ev C.cl_event
	status := C.clEnqueueUnmapMemObject(q.q, dm.m, unsafe.Pointer(&host[0]), 0, nil, &ev)
	if err := check(status, "clEnqueueUnmapMemObject"); err != nil {
		return nil, err
	}
	return &event{e: ev}, nil
}

func (q *queue) EnqueueKernel(k device.Kernel, global, local [3]int) (device.Event, error) {
	kern, ok := k.(*kernel)
	if !ok {
		return nil, device.Errorf("clEnqueueNDRangeKernel", device.InvalidKernel, "not an OpenCL kernel: %T", k)
	}
	dims := 1
	if global[2] > 1 {
		dims = 3
	} else if global[1] > 1 {
		dims = 2
	}
	var gws, lws [3]C.size_t
	for i := 0; i < 3; i++ {
		gws[i] = C.size_t(global[i])
		lws[i] = C.size_t(local[i])
	}
	var ev C.cl_event
	status := C.clEnqueueNDRangeKernel(q.q, kern.k, C.cl_uint(dims), nil, &gws[0], &lws[0], 0, nil, &ev)
	if err := check(status, "clEnqueueNDRangeKernel"); err != nil {
		return nil, fmt.Errorf("%s: %w", kern.name, err)
	}
	return &event{e: ev}, nil
}

func (q *queue) Finish() error {
	return check(C.clFinish(q.q), "clFinish")
}

func (q *queue) Release() error {
	return check(C.clReleaseCommandQueue(q.q), "clReleaseCommandQueue")
}

type event struct {
	e        C.cl_event
	released bool
}

func (e *event) Wait() error {
	return check(C.clWaitForEvents(1, &e.e), "clWaitForEvents")
}

func (e *event) Elapsed() (time.Duration, error) {
	var start, end C.cl_ulong
	status := C.clGetEventProfilingInfo(e.e, C.CL_PROFILING_COMMAND_START,
		C.size_t(unsafe.Sizeof(start)), unsafe.Pointer(&start), nil)
	if err := check(status, "clGetEventProfilingInfo"); err != nil {
		return 0, err
	}
	status = C.clGetEventProfilingInfo(e.e, C.CL_PROFILING_COMMAND_END,
		C.size_t(unsafe.Sizeof(end)), unsafe.Pointer(&end), nil)
	if err := check(status, "clGetEventProfilingInfo"); err != nil {
		return 0, err
	}
	return time.Duration(end - start), nil
}

func (e *event) Release() error {
	if e.released {
		return device.Errorf("clReleaseEvent", device.InvalidEvent, "event released twice")
	}
	e.released = true
	return check(C.clReleaseEvent(e.e), "clReleaseEvent")
}
