package sim

import (
	"errors"
	"testing"

	"github.com/xupit3r/membench/internal/device"
)

func TestOpen(t *testing.T) {
	dev, err := Open(0, 0)
	if err != nil {
		t.Fatalf("Open(0, 0) failed: %v", err)
	}
	defer dev.Release()

	info := dev.Info()
	if info.Name == "" {
		t.Error("Device name is empty")
	}
	if info.Type != device.TypeAccelerator {
		t.Errorf("Expected accelerator, got %v", info.Type)
	}
	t.Logf("Simulated device: %s (%s)", info.Name, info.Platform)
}

func TestOpenInvalidIndex(t *testing.T) {
	tests := []struct {
		platform, dev int
		want          device.Status
	}{
		{1, 0, device.InvalidPlatform},
		{0, 3, device.DeviceNotFound},
	}
	for _, tt := range tests {
		_, err := Open(tt.platform, tt.dev)
		if got := device.StatusOf(err); got != tt.want {
			t.Errorf("Open(%d, %d) status = %v, want %v", tt.platform, tt.dev, got, tt.want)
		}
	}
}

func TestPlatforms(t *testing.T) {
	platforms := Platforms()
	if len(platforms) != 1 || len(platforms[0].Devices) != 1 {
		t.Fatalf("Expected one platform with one device, got %+v", platforms)
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	dev := New()
	defer dev.Release()

	q, err := dev.CreateQueue()
	if err != nil {
		t.Fatalf("CreateQueue failed: %v", err)
	}
	mem, err := dev.CreateBuffer(device.ReadWrite, 64*4, false)
	if err != nil {
		t.Fatalf("CreateBuffer failed: %v", err)
	}

	src := make([]float32, 64)
	for i := range src {
		src[i] = float32(i) + 0.5
	}
	dst := make([]float32, 64)

	wev, err := q.EnqueueWrite(mem, src)
	if err != nil {
		t.Fatalf("EnqueueWrite failed: %v", err)
	}
	rev, err := q.EnqueueRead(mem, dst)
	if err != nil {
		t.Fatalf("EnqueueRead failed: %v", err)
	}
	if err := q.Finish(); err != nil {
		t.Fatalf("Finish failed: %v", err)
	}

	for i := range src {
		if dst[i] != src[i] {
			t.Fatalf("dst[%d] = %v, want %v", i, dst[i], src[i])
		}
	}

	for _, ev := range []device.Event{wev, rev} {
		d, err := ev.Elapsed()
		if err != nil {
			t.Fatalf("Elapsed failed: %v", err)
		}
		if d <= 0 {
			t.Errorf("Expected positive elapsed time, got %v", d)
		}
		if err := ev.Release(); err != nil {
			t.Errorf("Release event failed: %v", err)
		}
	}

	mem.Release()
	q.Release()
	if live := dev.Stats().Live(); live != 0 {
		t.Errorf("Expected no live resources, got %d (%+v)", live, dev.Stats())
	}
}

func TestCreateBufferValidation(t *testing.T) {
	dev := New(WithMemoryLimit(1024))
	defer dev.Release()

	if _, err := dev.CreateBuffer(device.ReadOnly, 6, false); device.StatusOf(err) != device.InvalidValue {
		t.Errorf("Expected INVALID_VALUE for unaligned size, got %v", err)
	}

	mem, err := dev.CreateBuffer(device.ReadOnly, 1024, false)
	if err != nil {
		t.Fatalf("CreateBuffer failed: %v", err)
	}
	if _, err := dev.CreateBuffer(device.ReadOnly, 4, false); device.StatusOf(err) != device.MemObjectAllocationFail {
		t.Errorf("Expected allocation failure past the limit, got %v", err)
	}
	mem.Release()

	again, err := dev.CreateBuffer(device.ReadOnly, 1024, false)
	if err != nil {
		t.Fatalf("CreateBuffer after release failed: %v", err)
	}
	again.Release()
}

func TestDoubleRelease(t *testing.T) {
	dev := New()
	defer dev.Release()

	mem, _ := dev.CreateBuffer(device.ReadOnly, 16, false)
	if err := mem.Release(); err != nil {
		t.Fatalf("First release failed: %v", err)
	}
	if err := mem.Release(); err == nil {
		t.Error("Expected error on second buffer release")
	}

	host, _ := dev.AllocHost(4)
	host.Free()
	if err := host.Free(); err == nil {
		t.Error("Expected error on second host free")
	}

	if dev.Stats().Buffers != 0 || dev.Stats().HostArrays != 0 {
		t.Errorf("Counters went negative or stayed live: %+v", dev.Stats())
	}
}

func TestMapUnmap(t *testing.T) {
	dev := New()
	defer dev.Release()

	q, _ := dev.CreateQueue()
	defer q.Release()
	mem, _ := dev.CreateBuffer(device.ReadOnly, 32, true)

	view, mev, err := q.EnqueueMap(mem, device.MapWrite)
	if err != nil {
		t.Fatalf("EnqueueMap failed: %v", err)
	}
	mev.Release()
	if len(view) != 8 {
		t.Fatalf("Expected 8 mapped floats, got %d", len(view))
	}
	if dev.Stats().Mappings != 1 {
		t.Errorf("Expected one live mapping, got %d", dev.Stats().Mappings)
	}

	if err := mem.Release(); device.StatusOf(err) != device.InvalidOperation {
		t.Errorf("Expected release of a mapped buffer to fail, got %v", err)
	}

	if _, err := q.EnqueueUnmap(mem, make([]float32, 8)); err == nil {
		t.Error("Expected unmap of a foreign pointer to fail")
	}

	uev, err := q.EnqueueUnmap(mem, view)
	if err != nil {
		t.Fatalf("EnqueueUnmap failed: %v", err)
	}
	if err := uev.Wait(); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	uev.Release()

	if err := mem.Release(); err != nil {
		t.Fatalf("Release after unmap failed: %v", err)
	}
	if dev.Stats().Mappings != 0 {
		t.Errorf("Expected no live mappings, got %d", dev.Stats().Mappings)
	}
}

func TestEventReleasedTwice(t *testing.T) {
	dev := New()
	defer dev.Release()

	q, _ := dev.CreateQueue()
	defer q.Release()
	mem, _ := dev.CreateBuffer(device.ReadWrite, 16, false)
	defer mem.Release()

	ev, err := q.EnqueueWrite(mem, make([]float32, 4))
	if err != nil {
		t.Fatalf("EnqueueWrite failed: %v", err)
	}
	ev.Wait()
	if err := ev.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if err := ev.Release(); device.StatusOf(err) != device.InvalidEvent {
		t.Errorf("Expected INVALID_EVENT, got %v", err)
	}
	if _, err := ev.Elapsed(); err == nil {
		t.Error("Expected Elapsed on a released event to fail")
	}
}

func TestCreateKernel(t *testing.T) {
	dev := New()
	defer dev.Release()

	for name := range program {
		k, err := dev.CreateKernel(name)
		if err != nil {
			t.Errorf("CreateKernel(%q) failed: %v", name, err)
			continue
		}
		if k.Name() != name {
			t.Errorf("Kernel name = %q, want %q", k.Name(), name)
		}
		k.Release()
	}

	if _, err := dev.CreateKernel("nope"); device.StatusOf(err) != device.InvalidKernelName {
		t.Errorf("Expected INVALID_KERNEL_NAME, got %v", err)
	}
}

func TestSetArgValidation(t *testing.T) {
	dev := New()
	defer dev.Release()

	k, _ := dev.CreateKernel("reader_single")
	defer k.Release()
	mem, _ := dev.CreateBuffer(device.ReadOnly, 16, false)
	defer mem.Release()

	if err := k.SetArg(2, int32(4)); device.StatusOf(err) != device.InvalidArgIndex {
		t.Errorf("Expected INVALID_ARG_INDEX, got %v", err)
	}
	if err := k.SetArg(0, int32(4)); device.StatusOf(err) != device.InvalidArgValue {
		t.Errorf("Expected INVALID_ARG_VALUE for int in a buffer slot, got %v", err)
	}
	if err := k.SetArg(1, mem); device.StatusOf(err) != device.InvalidArgValue {
		t.Errorf("Expected INVALID_ARG_VALUE for buffer in an int slot, got %v", err)
	}

	q, _ := dev.CreateQueue()
	defer q.Release()
	if _, err := q.EnqueueKernel(k, [3]int{1, 1, 1}, [3]int{1, 1, 1}); device.StatusOf(err) != device.InvalidKernelArgs {
		t.Errorf("Expected INVALID_KERNEL_ARGS with unset args, got %v", err)
	}
}

// runPipeline pushes src through reader, compute and writer kernels of the
// given family and returns what the writer stored.
func runPipeline(t *testing.T, dev *Device, names [3]string, global, local [3]int, src []float32) []float32 {
	t.Helper()
	n := len(src)

	var queues [3]device.Queue
	for i := range queues {
		q, err := dev.CreateQueue()
		if err != nil {
			t.Fatalf("CreateQueue failed: %v", err)
		}
		defer q.Release()
		queues[i] = q
	}

	in, _ := dev.CreateBuffer(device.ReadOnly, int64(n*4), false)
	defer in.Release()
	out, _ := dev.CreateBuffer(device.WriteOnly, int64(n*4), false)
	defer out.Release()

	ev, _ := queues[0].EnqueueWrite(in, src)
	queues[0].Finish()
	ev.Release()

	var events []device.Event
	for i, name := range names {
		if name == "" {
			continue
		}
		k, err := dev.CreateKernel(name)
		if err != nil {
			t.Fatalf("CreateKernel(%q) failed: %v", name, err)
		}
		defer k.Release()

		arg := 0
		switch i {
		case 0:
			k.SetArg(arg, in)
			arg++
		case 2:
			k.SetArg(arg, out)
			arg++
		}
		k.SetArg(arg, int32(n))

		ev, err := queues[i].EnqueueKernel(k, global, local)
		if err != nil {
			t.Fatalf("EnqueueKernel(%q) failed: %v", name, err)
		}
		events = append(events, ev)
	}
	for _, q := range queues {
		if err := q.Finish(); err != nil {
			t.Fatalf("Finish failed: %v", err)
		}
	}
	for _, ev := range events {
		ev.Release()
	}

	dst := make([]float32, n)
	ev, _ = queues[2].EnqueueRead(out, dst)
	queues[2].Finish()
	ev.Release()
	return dst
}

func TestPipelineKernels(t *testing.T) {
	src := make([]float32, 256)
	for i := range src {
		src[i] = float32(i%7) + 0.25
	}

	tests := []struct {
		name   string
		names  [3]string
		global [3]int
		local  [3]int
	}{
		{"single", [3]string{"reader_single", "compute_single", "writer_single"}, [3]int{1, 1, 1}, [3]int{1, 1, 1}},
		{"range", [3]string{"reader_range", "compute_range", "writer_range"}, [3]int{256, 1, 1}, [3]int{16, 1, 1}},
		{"autorun", [3]string{"reader_autorun", "", "writer_autorun"}, [3]int{1, 1, 1}, [3]int{1, 1, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := New(WithPipeDepth(8))
			defer dev.Release()

			dst := runPipeline(t, dev, tt.names, tt.global, tt.local, src)
			for i := range src {
				if want := src[i] * src[i]; dst[i] != want {
					t.Fatalf("dst[%d] = %v, want %v", i, dst[i], want)
				}
			}
			if live := dev.Stats().Live(); live != 0 {
				t.Errorf("Expected no live resources, got %+v", dev.Stats())
			}
		})
	}
}

func TestComputeBias(t *testing.T) {
	dev := New(WithComputeBias(1))
	defer dev.Release()

	src := []float32{2, 3}
	dst := runPipeline(t, dev,
		[3]string{"reader_single", "compute_single", "writer_single"},
		[3]int{1, 1, 1}, [3]int{1, 1, 1}, src)
	if dst[0] != 5 || dst[1] != 10 {
		t.Errorf("Expected biased squares [5 10], got %v", dst)
	}
}

func TestLaunchesRecorded(t *testing.T) {
	dev := New()
	defer dev.Release()

	runPipeline(t, dev,
		[3]string{"reader_range", "compute_range", "writer_range"},
		[3]int{32, 1, 1}, [3]int{16, 1, 1}, make([]float32, 32))

	launches := dev.Launches()
	if len(launches) != 3 {
		t.Fatalf("Expected 3 launches, got %d", len(launches))
	}
	for _, l := range launches {
		if l.Global != [3]int{32, 1, 1} || l.Local != [3]int{16, 1, 1} {
			t.Errorf("%s launched with %v/%v", l.Kernel, l.Global, l.Local)
		}
	}
}

func TestInvalidWorkGroupSize(t *testing.T) {
	dev := New()
	defer dev.Release()

	q, _ := dev.CreateQueue()
	defer q.Release()
	k, _ := dev.CreateKernel("compute_range")
	defer k.Release()
	k.SetArg(0, int32(20))

	_, err := q.EnqueueKernel(k, [3]int{20, 1, 1}, [3]int{16, 1, 1})
	if device.StatusOf(err) != device.InvalidWorkGroupSize {
		t.Errorf("Expected INVALID_WORK_GROUP_SIZE, got %v", err)
	}
}

func TestFaultInjection(t *testing.T) {
	dev := New(WithFault(OpCreateBuffer))
	defer dev.Release()

	_, err := dev.CreateBuffer(device.ReadOnly, 16, false)
	var derr *device.Error
	if !errors.As(err, &derr) {
		t.Fatalf("Expected *device.Error, got %T (%v)", err, err)
	}
	if derr.Op != OpCreateBuffer || derr.Status != device.OutOfResources {
		t.Errorf("Unexpected error: %v", derr)
	}
	if dev.Stats().Ops != 1 {
		t.Errorf("Expected one counted call, got %d", dev.Stats().Ops)
	}
}

func TestReleasedDevice(t *testing.T) {
	dev := New()
	if err := dev.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if err := dev.Release(); err == nil {
		t.Error("Expected error on second device release")
	}
	if _, err := dev.CreateQueue(); device.StatusOf(err) != device.InvalidDevice {
		t.Errorf("Expected INVALID_DEVICE, got %v", err)
	}
}
