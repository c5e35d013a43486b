package device

import (
	"errors"
	"fmt"
)

// Status is a runtime status code. Values follow the OpenCL numbering so
// that both backends report the same codes.
type Status int

const (
	Success                  Status = 0
	DeviceNotFound           Status = -1
	MemObjectAllocationFail  Status = -4
	OutOfResources           Status = -5
	OutOfHostMemory          Status = -6
	MapFailure               Status = -12
	InvalidValue             Status = -30
	InvalidPlatform          Status = -32
	InvalidDevice            Status = -33
	InvalidCommandQueue      Status = -36
	InvalidMemObject         Status = -38
	InvalidBinary            Status = -42
	InvalidProgramExecutable Status = -45
	InvalidKernelName        Status = -46
	InvalidKernel            Status = -48
	InvalidArgIndex          Status = -49
	InvalidArgValue          Status = -50
	InvalidKernelArgs        Status = -52
	InvalidWorkGroupSize     Status = -54
	InvalidEvent             Status = -58
	InvalidOperation         Status = -59
	ProfilingInfoUnavailable Status = -7
)

var statusNames = map[Status]string{
	Success:                  "SUCCESS",
	DeviceNotFound:           "DEVICE_NOT_FOUND",
	MemObjectAllocationFail:  "MEM_OBJECT_ALLOCATION_FAILURE",
	OutOfResources:           "OUT_OF_RESOURCES",
	OutOfHostMemory:          "OUT_OF_HOST_MEMORY",
	ProfilingInfoUnavailable: "PROFILING_INFO_NOT_AVAILABLE",
	MapFailure:               "MAP_FAILURE",
	InvalidValue:             "INVALID_VALUE",
	InvalidPlatform:          "INVALID_PLATFORM",
	InvalidDevice:            "INVALID_DEVICE",
	InvalidCommandQueue:      "INVALID_COMMAND_QUEUE",
	InvalidMemObject:         "INVALID_MEM_OBJECT",
	InvalidBinary:            "INVALID_BINARY",
	InvalidProgramExecutable: "INVALID_PROGRAM_EXECUTABLE",
	InvalidKernelName:        "INVALID_KERNEL_NAME",
	InvalidKernel:            "INVALID_KERNEL",
	InvalidArgIndex:          "INVALID_ARG_INDEX",
	InvalidArgValue:          "INVALID_ARG_VALUE",
	InvalidKernelArgs:        "INVALID_KERNEL_ARGS",
	InvalidWorkGroupSize:     "INVALID_WORK_GROUP_SIZE",
	InvalidEvent:             "INVALID_EVENT",
	InvalidOperation:         "INVALID_OPERATION",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("STATUS(%d)", int(s))
}

// Error is a failed device call. It names the operation so the top-level
// handler can print a useful message before exiting.
type Error struct {
	Op     string
	Status Status
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s failed: %s (%d)", e.Op, e.Status, int(e.Status))
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf builds an *Error for op with a formatted detail message.
func Errorf(op string, status Status, format string, args ...any) *Error {
	return &Error{Op: op, Status: status, Err: fmt.Errorf(format, args...)}
}

// StatusOf extracts the status code from err, or Success when err does not
// wrap an *Error.
func StatusOf(err error) Status {
	var derr *Error
	if errors.As(err, &derr) {
		return derr.Status
	}
	return Success
}
